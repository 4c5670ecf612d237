// Package exec is the distributed execution engine: it fans a
// planner.Result's fragments out to backends, reduces the results
// (union or in-memory join), applies ORDER BY/LIMIT, and profiles the
// four phases the control node reports per query (§4.4).
package exec

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/planner"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
	"github.com/ddbsgo/ddbs/internal/sqlast"
	"github.com/ddbsgo/ddbs/internal/telemetry/metric"
)

// Backend is the subset of the backend RPC surface the execution
// engine needs to run one SQL fragment and get rows back.
type Backend interface {
	ExecSQL(ctx context.Context, serverID uint64, sql string) ([]rowcodec.Row, error)
}

// Profile records the four phase durations the spec's query profiler
// reports: total wall-clock, SQL parsing, plan rewriting, and
// distributed execution (§4.4).
type Profile struct {
	Total   time.Duration
	Parse   time.Duration
	Rewrite time.Duration
	Exec    time.Duration
}

// Output is the engine's result for a SELECT (or other forwarded
// statement): the projection header and the final, ordered, limited
// row set.
type Output struct {
	Header  []string
	Rows    []rowcodec.Row
	Profile Profile
}

// Engine executes planner output against a Backend, applying the
// engine's reduction and post-processing stages.
type Engine struct {
	backend Backend
	metrics *metric.Registry
}

// NewEngine constructs an Engine. metrics may be nil, in which case
// phase observations are dropped.
func NewEngine(backend Backend, metrics *metric.Registry) *Engine {
	return &Engine{backend: backend, metrics: metrics}
}

// Query plans and executes sql against shards, returning the merged,
// ordered, limited result. For INSERT INTO user, use Insert instead.
func (e *Engine) Query(ctx context.Context, sql string, shards planner.ShardAssignment) (*Output, error) {
	totalStart := time.Now()

	parseStart := time.Now()
	stmt, parseErr := sqlast.Parse(sql)
	parseElapsed := time.Since(parseStart)
	if parseErr != nil {
		e.observe("parse", parseElapsed)
		e.reject(parseErr)
		return nil, parseErr
	}
	e.observe("parse", parseElapsed)

	rewriteStart := time.Now()
	result, insertPlan, err := planner.PlanStatement(stmt, sql, shards)
	rewriteElapsed := time.Since(rewriteStart)
	e.observe("rewrite", rewriteElapsed)
	if err != nil {
		e.reject(err)
		return nil, err
	}
	if insertPlan != nil {
		return nil, ddbserrors.New(ddbserrors.UnsupportedSql, "use Insert for INSERT INTO user statements")
	}

	execStart := time.Now()
	rows, err := e.runGroups(ctx, result)
	execElapsed := time.Since(execStart)
	e.observe("exec", execElapsed)
	if err != nil {
		return nil, err
	}

	rows = applyOrderAndLimit(rows, result.Header, result.Order, result.Limit, result.HasLimit)

	totalElapsed := time.Since(totalStart)
	e.observe("total", totalElapsed)

	return &Output{
		Header: result.Header,
		Rows:   rows,
		Profile: Profile{
			Total:   totalElapsed,
			Parse:   parseElapsed,
			Rewrite: rewriteElapsed,
			Exec:    execElapsed,
		},
	}, nil
}

// Insert plans and executes an INSERT INTO user statement, returning
// the server_id it was routed to.
func (e *Engine) Insert(ctx context.Context, sql string, shards planner.ShardAssignment) (uint64, error) {
	_, insertPlan, err := planner.Plan(sql, shards)
	if err != nil {
		e.reject(err)
		return 0, err
	}
	if insertPlan == nil {
		return 0, ddbserrors.New(ddbserrors.UnsupportedSql, "sql is not an INSERT INTO user statement")
	}
	if _, err := e.backend.ExecSQL(ctx, insertPlan.ServerID, insertPlan.SQL); err != nil {
		return 0, err
	}
	return insertPlan.ServerID, nil
}

func (e *Engine) observe(phase string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObservePhase(phase, d.Seconds())
	}
}

func (e *Engine) reject(err error) {
	if e.metrics != nil {
		e.metrics.IncRejection(string(ddbserrors.KindOf(err)))
	}
}

// runGroups executes every FragmentGroup of a plan and reduces them:
// a single group is unioned across its present fragments; two groups
// (a Shard-classified join) are run concurrently and reduced via
// inMemoryJoin.
func (e *Engine) runGroups(ctx context.Context, result *planner.Result) ([]rowcodec.Row, error) {
	switch len(result.Groups) {
	case 0:
		return nil, nil
	case 1:
		return e.runGroup(ctx, result.Groups[0])
	case 2:
		var left, right []rowcodec.Row
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			left, err = e.runGroup(gctx, result.Groups[0])
			return err
		})
		g.Go(func() (err error) {
			right, err = e.runGroup(gctx, result.Groups[1])
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return inMemoryJoin(left, right, result.Join)
	default:
		return nil, ddbserrors.Newf(ddbserrors.UnsupportedSql, "unexpected fragment group count %d", len(result.Groups))
	}
}

// runGroup executes every present fragment in a group concurrently
// and unions the resulting rows.
func (e *Engine) runGroup(ctx context.Context, group planner.FragmentGroup) ([]rowcodec.Row, error) {
	present := make([]planner.Fragment, 0, len(group))
	for _, f := range group {
		if f.Present {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil, nil
	}

	results := make([][]rowcodec.Row, len(present))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range present {
		i, f := i, f
		g.Go(func() error {
			rows, err := e.backend.ExecSQL(gctx, f.ServerID, f.SQL)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []rowcodec.Row
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

// applyOrderAndLimit sorts rows per order (stable, by header column
// position) and truncates to limit, if present.
func applyOrderAndLimit(rows []rowcodec.Row, header []string, order []sqlast.OrderKey, limit int, hasLimit bool) []rowcodec.Row {
	if len(order) > 0 {
		idx := make([]int, len(order))
		for i, k := range order {
			idx[i] = headerIndex(header, k.Column)
		}
		sort.SliceStable(rows, func(a, b int) bool {
			for i, k := range order {
				pos := idx[i]
				if pos < 0 {
					continue
				}
				cmp := compareValues(rowAt(rows[a], pos), rowAt(rows[b], pos))
				if cmp == 0 {
					continue
				}
				if k.Ascending {
					return cmp < 0
				}
				return cmp > 0
			}
			return false
		})
	}

	if hasLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func headerIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func rowAt(row rowcodec.Row, pos int) rowcodec.Value {
	if pos < 0 || pos >= len(row) {
		return rowcodec.Null()
	}
	return row[pos]
}
