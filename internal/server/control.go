// Package server implements the control node's orchestrator: it wires
// the cluster manager, the planner-driven execution engine, and the
// derived-table builders behind the control RPC surface of §6.1,
// exposed to the network by internal/rpcwire.ControlServer.
package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ddbsgo/ddbs/internal/cluster"
	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/derive"
	"github.com/ddbsgo/ddbs/internal/exec"
	"github.com/ddbsgo/ddbs/internal/planner"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
	"github.com/ddbsgo/ddbs/internal/telemetry/logger"
	"github.com/ddbsgo/ddbs/internal/telemetry/metric"
)

// Control implements rpcwire.ControlService against a live cluster,
// execution engine, and derived-table builders.
type Control struct {
	cluster *cluster.Manager
	engine  *exec.Engine
	metrics *metric.Registry
}

// NewControl constructs a Control orchestrator. metrics may be nil.
func NewControl(mgr *cluster.Manager, engine *exec.Engine, metrics *metric.Registry) *Control {
	return &Control{cluster: mgr, engine: engine, metrics: metrics}
}

// newRequestID mints a correlation ID for one Exec/ClusterInit/derived
// build, threaded through the logger via the request context (§4.8).
func newRequestID() string {
	return ulid.Make().String()
}

func (c *Control) Register(ctx context.Context, uri string) (uint64, error) {
	return c.cluster.Register(uri), nil
}

func (c *Control) ListServerStatus(ctx context.Context) (map[uint64]cluster.BackendMeta, error) {
	return c.cluster.ListStatus(), nil
}

func (c *Control) ClusterInit(ctx context.Context) error {
	ctx = logger.WithRequestID(ctx, newRequestID())
	log := logger.L(ctx)
	log.Info("cluster init starting")

	if err := c.cluster.ClusterInit(ctx); err != nil {
		log.Error("cluster init failed", "error", err)
		return err
	}
	if c.metrics != nil {
		c.metrics.SetBackendsAlive(len(c.cluster.ListStatus()))
	}
	log.Info("cluster init complete")
	return nil
}

func (c *Control) GenerateBeReadTable(ctx context.Context) error {
	ctx = logger.WithRequestID(ctx, newRequestID())
	log := logger.L(ctx)

	shard1, shard2, err := c.shardClients()
	if err != nil {
		return err
	}

	start := time.Now()
	err = derive.BuildBeRead(ctx, shard1, shard2)
	if c.metrics != nil {
		c.metrics.ObserveDeriveBuild("be_read", time.Since(start).Seconds(), err)
	}
	if err != nil {
		log.Error("be_read build failed", "error", err)
		return err
	}
	log.Info("be_read build complete")
	return nil
}

func (c *Control) GeneratePopularTable(ctx context.Context, granularity int) error {
	ctx = logger.WithRequestID(ctx, newRequestID())
	log := logger.L(ctx)

	shard1, shard2, err := c.shardClients()
	if err != nil {
		return err
	}

	start := time.Now()
	err = derive.BuildPopularRankFor(ctx, granularity, shard1, shard2)
	if c.metrics != nil {
		c.metrics.ObserveDeriveBuild("popular_rank", time.Since(start).Seconds(), err)
	}
	if err != nil {
		log.Error("popular_rank build failed", "granularity", granularity, "error", err)
		return err
	}
	log.Info("popular_rank build complete", "granularity", granularity)
	return nil
}

// Exec plans and runs statement, returning the §6.5 result JSON.
func (c *Control) Exec(ctx context.Context, statement string) (string, error) {
	ctx = logger.WithRequestID(ctx, newRequestID())
	log := logger.L(ctx)
	log.Info("executing statement")

	shards, err := c.shardAssignment()
	if err != nil {
		return "", err
	}

	out, err := c.engine.Query(ctx, statement, shards)
	if err != nil {
		if !ddbserrors.OfKind(err, ddbserrors.UnsupportedSql) {
			log.Error("exec failed", "error", err)
			return "", err
		}

		serverID, insErr := c.engine.Insert(ctx, statement, shards)
		if insErr != nil {
			log.Error("exec failed", "error", insErr)
			return "", insErr
		}
		log.Info("insert routed", "server_id", serverID)
		return encodeInsertResult(), nil
	}

	return encodeQueryResult(out)
}

// GetArticle returns the text column of the replicated article row
// matching aid. article is fully replicated, so either shard serves it.
func (c *Control) GetArticle(ctx context.Context, aid string) (string, error) {
	client, err := c.cluster.ClientForShard(cluster.Shard1)
	if err != nil {
		return "", err
	}

	sql := "SELECT text FROM article WHERE aid = " + sqlStringLiteral(aid)
	row, err := client.ExecSqlFirst(ctx, sql)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", ddbserrors.Newf(ddbserrors.InvalidArg, "no article with aid %s", aid)
	}
	return string(row[0].Bytes), nil
}

func (c *Control) shardClients() (derive.BackendClient, derive.BackendClient, error) {
	shard1, err := c.cluster.ClientForShard(cluster.Shard1)
	if err != nil {
		return nil, nil, err
	}
	shard2, err := c.cluster.ClientForShard(cluster.Shard2)
	if err != nil {
		return nil, nil, err
	}
	return shard1, shard2, nil
}

func (c *Control) shardAssignment() (planner.ShardAssignment, error) {
	shard1ID, shard2ID, err := c.cluster.CheckInit()
	if err != nil {
		return planner.ShardAssignment{}, err
	}
	return planner.ShardAssignment{Shard1: shard1ID, Shard2: shard2ID}, nil
}

func sqlStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// resultSetJSON and profileJSON mirror §6.5's result shape exactly.
type resultSetJSON struct {
	Header []string `json:"header"`
	Table  [][]any  `json:"table"`
}

type profileJSON struct {
	TotalTime   float64 `json:"totalTime"`
	ParserTime  float64 `json:"parserTime"`
	RewriteTime float64 `json:"rewriteTime"`
	ExecTime    float64 `json:"execTime"`
}

type execResultJSON struct {
	ResultSet *resultSetJSON `json:"resultSet"`
	Profile   profileJSON    `json:"profile"`
}

func encodeQueryResult(out *exec.Output) (string, error) {
	table := make([][]any, len(out.Rows))
	for i, row := range out.Rows {
		jsonRow := make([]any, len(row))
		for j, v := range row {
			jsonRow[j] = valueToJSON(v)
		}
		table[i] = jsonRow
	}

	result := execResultJSON{
		ResultSet: &resultSetJSON{Header: out.Header, Table: table},
		Profile: profileJSON{
			TotalTime:   out.Profile.Total.Seconds(),
			ParserTime:  out.Profile.Parse.Seconds(),
			RewriteTime: out.Profile.Rewrite.Seconds(),
			ExecTime:    out.Profile.Exec.Seconds(),
		},
	}

	b, err := json.Marshal(result)
	if err != nil {
		return "", ddbserrors.Wrap(ddbserrors.DbTypeParse, "marshal exec result", err)
	}
	return string(b), nil
}

func encodeInsertResult() string {
	b, _ := json.Marshal(execResultJSON{ResultSet: nil})
	return string(b)
}

func valueToJSON(v rowcodec.Value) any {
	switch v.Kind {
	case rowcodec.KindNull:
		return nil
	case rowcodec.KindInt64:
		return v.Int64
	case rowcodec.KindUInt64:
		return v.UInt64
	case rowcodec.KindFloat32:
		return v.Float32
	case rowcodec.KindFloat64:
		return v.Float64
	default:
		return string(v.Bytes)
	}
}
