// Package cluster owns the control node's view of backend
// registration and shard assignment: server_map, clients, and the
// monotonic server_id counter (§3, §4.1).
package cluster

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// Status is a backend's liveness as last observed by the control node.
type Status int

const (
	Alive Status = iota
	Dead
)

// ShardID identifies one of the two static shards, or None if a
// backend has not yet been assigned one.
type ShardID int

const (
	ShardNone ShardID = iota
	Shard1
	Shard2
)

// baseTables are bulk-loaded into every newly initialized shard.
var baseTables = []string{"user", "article", "user_read"}

// BackendMeta is the control node's record of one registered backend.
type BackendMeta struct {
	Uri    string
	Status Status
	Shard  ShardID
}

// Client is the full backend RPC surface (§6.2) as seen from the
// control node: both the bootstrap calls (Init, BulkLoad) the cluster
// manager issues during ClusterInit, and the query calls the
// execution engine and derived-table builders issue afterwards.
// internal/rpcwire supplies the concrete implementation; tests supply
// fakes.
type Client interface {
	Init(ctx context.Context, shard int) error
	BulkLoad(ctx context.Context, table string) error
	ExecSQL(ctx context.Context, sql string) ([]rowcodec.Row, error)
	ExecSqlFirst(ctx context.Context, sql string) (rowcodec.Row, error)
	ExecSqlDrop(ctx context.Context, sql string) error
	ExecSqlBatch(ctx context.Context, sql string, batchSize int) (<-chan []rowcodec.Row, <-chan error)
	StreamExecSql(ctx context.Context, sql string) (<-chan rowcodec.Row, <-chan error)
	Close() error
}

// Dialer opens a Client to the backend at uri.
type Dialer func(ctx context.Context, uri string) (Client, error)

// clientHandle serializes concurrent use of one backend's client: a
// single backend's RPC client is logically single-writer per
// in-flight call (§5).
type clientHandle struct {
	mu     sync.Mutex
	client Client
}

// Manager owns server_map, clients, and next_server_id (§3). No
// fine-grained or sharded locking is used: contention is bounded by
// the number of backends, which is exactly two (§9).
type Manager struct {
	mu     sync.RWMutex
	byID   map[uint64]*BackendMeta
	order  []uint64 // insertion order, for "first two ... in insertion order"
	next   atomic.Uint64
	dial   Dialer
	handle map[uint64]*clientHandle
}

// NewManager creates an empty Manager. dial opens a Client to a
// backend's URI; it is called only from ClusterInit.
func NewManager(dial Dialer) *Manager {
	return &Manager{
		byID:   make(map[uint64]*BackendMeta),
		handle: make(map[uint64]*clientHandle),
		dial:   dial,
	}
}

// Register allocates a new server_id and inserts a BackendMeta with
// status Alive and no shard assignment.
func (m *Manager) Register(uri string) uint64 {
	id := m.next.Add(1) - 1

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id] = &BackendMeta{Uri: uri, Status: Alive, Shard: ShardNone}
	m.order = append(m.order, id)
	return id
}

// ListStatus returns a deep copy of server_map; callers must not see
// later mutations.
func (m *Manager) ListStatus() map[uint64]BackendMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[uint64]BackendMeta, len(m.byID))
	for id, meta := range m.byID {
		out[id] = *meta
	}
	return out
}

// CheckInit returns the server_ids currently owning Shard1 and
// Shard2, or Uninitialize if the cluster hasn't been initialized yet.
func (m *Manager) CheckInit() (shard1ID, shard2ID uint64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s1, s2 *uint64
	for _, id := range m.order {
		meta := m.byID[id]
		if meta.Status != Alive {
			continue
		}
		switch meta.Shard {
		case Shard1:
			v := id
			s1 = &v
		case Shard2:
			v := id
			s2 = &v
		}
	}

	if s1 == nil || s2 == nil {
		return 0, 0, ddbserrors.New(ddbserrors.Uninitialize, "cluster has not been initialized")
	}
	return *s1, *s2, nil
}

// ClusterInit selects the first two Alive, unassigned backends in
// insertion order, dials them, issues Init+BulkLoad concurrently, and
// only then commits the shard assignment and client handles under the
// write lock. On any failure, server_map and clients are left
// unchanged (§4.1, property 2).
func (m *Manager) ClusterInit(ctx context.Context) error {
	candidates, err := m.pickCandidates()
	if err != nil {
		return err
	}

	clients := make([]Client, 2)
	handles := make([]*clientHandle, 2)

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range candidates {
		i, id := i, id
		shard := i + 1 // 1-based: candidates[0] -> Shard1, candidates[1] -> Shard2
		g.Go(func() error {
			uri := m.uriOf(id)
			client, err := m.dial(gctx, uri)
			if err != nil {
				return ddbserrors.Wrap(ddbserrors.TransportConnect, "dial backend", err)
			}

			if err := client.Init(gctx, shard); err != nil {
				client.Close()
				return err
			}
			for _, table := range baseTables {
				if err := client.BulkLoad(gctx, table); err != nil {
					client.Close()
					return err
				}
			}

			clients[i] = client
			handles[i] = &clientHandle{client: client}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, c := range clients {
			if c != nil {
				c.Close()
			}
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[candidates[0]].Shard = Shard1
	m.byID[candidates[1]].Shard = Shard2
	m.handle[candidates[0]] = handles[0]
	m.handle[candidates[1]] = handles[1]
	return nil
}

// pickCandidates selects the first two Alive, shard-unassigned
// backends in insertion order.
func (m *Manager) pickCandidates() ([2]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out [2]uint64
	n := 0
	for _, id := range m.order {
		meta := m.byID[id]
		if meta.Shard != ShardNone {
			if meta.Status != Alive {
				continue
			}
			return out, ddbserrors.New(ddbserrors.Initialized, "cluster has already been initialized")
		}
		if meta.Status != Alive {
			continue
		}
		if n < 2 {
			out[n] = id
			n++
		}
	}
	if n < 2 {
		return out, ddbserrors.New(ddbserrors.ServerNotAlive, "fewer than two alive, unassigned backends registered")
	}
	return out, nil
}

func (m *Manager) uriOf(id uint64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id].Uri
}

// ClientFor returns the shared connection handle for a backend's
// server_id, locking it for the duration of fn. Callers must not hold
// the handle across multiple independent calls.
func (m *Manager) ClientFor(id uint64, fn func(Client) error) error {
	m.mu.RLock()
	h, ok := m.handle[id]
	m.mu.RUnlock()
	if !ok {
		return ddbserrors.Newf(ddbserrors.ServerNotAlive, "no client handle for server_id %d", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.client)
}

// ExecSQL runs sql against the backend identified by serverID,
// satisfying internal/exec's Backend interface so the execution
// engine can route fragments by server_id without knowing about
// cluster.Manager's connection bookkeeping.
func (m *Manager) ExecSQL(ctx context.Context, serverID uint64, sql string) ([]rowcodec.Row, error) {
	var rows []rowcodec.Row
	err := m.ClientFor(serverID, func(c Client) error {
		r, err := c.ExecSQL(ctx, sql)
		rows = r
		return err
	})
	return rows, err
}

// ClientForShard returns the live Client for whichever server_id
// currently owns shard, for use by the derived-table builders which
// address backends by shard rather than by server_id.
func (m *Manager) ClientForShard(shard ShardID) (Client, error) {
	shard1ID, shard2ID, err := m.CheckInit()
	if err != nil {
		return nil, err
	}

	id := shard1ID
	if shard == Shard2 {
		id = shard2ID
	}

	m.mu.RLock()
	h, ok := m.handle[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ddbserrors.Newf(ddbserrors.ServerNotAlive, "no client handle for server_id %d", id)
	}
	return h.client, nil
}
