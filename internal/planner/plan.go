// Package planner transforms an input SQL statement into a per-shard
// execution plan: which fragment of SQL runs on which backend, how a
// cross-shard join result should be reduced, and how the middle tier
// should order/limit and label the merged rows. The planner is pure —
// it never opens a connection or touches a backend.
package planner

import (
	"github.com/xwb1989/sqlparser"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/sqlast"
)

// ShardAssignment names the backend currently owning each shard, as
// resolved by the caller from the cluster manager's server_map.
type ShardAssignment struct {
	Shard1 uint64
	Shard2 uint64
}

// Fragment is one (server_id, sql) pair. Present is false when that
// shard has been dead-eliminated and must not be queried.
type Fragment struct {
	ServerID uint64
	SQL      string
	Present  bool
}

// FragmentGroup is a set of fragments executed concurrently whose row
// streams are unioned.
type FragmentGroup []Fragment

// Result is the planner's output: the plan's fragment groups, the
// optional cross-shard join specification, the post-processing
// directives, and the projection header.
type Result struct {
	Groups   []FragmentGroup
	Join     *JoinSpec
	Order    []sqlast.OrderKey
	Limit    int
	HasLimit bool
	Header   []string
}

// InsertPlan is the planner's output for an `INSERT INTO user` routed
// by region (§6.3, §9 REDESIGN FLAG 4).
type InsertPlan struct {
	ServerID uint64
	SQL      string
}

// Plan parses sql and produces either a *Result (for SELECT and other
// forwarded statements) or an *InsertPlan (for INSERT INTO user).
// Exactly one return value is non-nil.
func Plan(sql string, shards ShardAssignment) (*Result, *InsertPlan, error) {
	stmt, err := sqlast.Parse(sql)
	if err != nil {
		return nil, nil, err
	}
	return PlanStatement(stmt, sql, shards)
}

// PlanStatement rewrites an already-parsed stmt (the original sql text
// is still needed verbatim for the "forward unchanged" fallback and as
// the INSERT statement's re-render target). Callers that already
// parsed sql once (e.g. to time parsing separately from rewriting)
// should call this instead of Plan to avoid a redundant parse.
func PlanStatement(stmt sqlast.Statement, sql string, shards ShardAssignment) (*Result, *InsertPlan, error) {
	if ins, ok := sqlast.AsInsert(stmt); ok && sqlast.IsInsertIntoUser(ins) {
		ip, err := planInsertUser(ins, shards)
		return nil, ip, err
	}

	sel, ok := sqlast.AsSelect(stmt)
	if !ok {
		// Forward unchanged to every shard (§1's "all other statements").
		return &Result{Groups: []FragmentGroup{{
			{ServerID: shards.Shard1, SQL: sql, Present: true},
			{ServerID: shards.Shard2, SQL: sql, Present: true},
		}}}, nil, nil
	}

	header := projectionHeader(sel)
	order := sqlast.OrderByColumns(sel)
	limit, hasLimit := sqlast.LimitCount(sel)

	te, single := sqlast.SingleTableExpr(sel)
	if !single {
		// Multi-table FROM: elimination path only, no join semantics.
		group, err := eliminationGroup(sel, shards)
		if err != nil {
			return nil, nil, err
		}
		return &Result{Groups: []FragmentGroup{group}, Order: order, Limit: limit, HasLimit: hasLimit, Header: header}, nil, nil
	}

	if join, isJoin := sqlast.AsJoin(te); isJoin {
		groups, spec, err := classifyJoin(sel, join, shards)
		if err != nil {
			return nil, nil, err
		}
		return &Result{Groups: groups, Join: spec, Order: order, Limit: limit, HasLimit: hasLimit, Header: header}, nil, nil
	}

	group, err := eliminationGroup(sel, shards)
	if err != nil {
		return nil, nil, err
	}
	return &Result{Groups: []FragmentGroup{group}, Order: order, Limit: limit, HasLimit: hasLimit, Header: header}, nil, nil
}

// eliminationGroup rewrites sel's WHERE clause per §4.3.2 and
// reassembles a fragment per surviving shard (§4.3.4). ORDER BY and
// LIMIT are stripped from every fragment: the middle tier re-applies
// them once after merging.
func eliminationGroup(sel *sqlparser.Select, shards ShardAssignment) (FragmentGroup, error) {
	shardWhere := ShardWhere(sqlast.Where(sel))

	servers := map[int]uint64{1: shards.Shard1, 2: shards.Shard2}

	group := make(FragmentGroup, 0, 2)
	for _, s := range []int{1, 2} {
		expr, alive := shardWhere[s]
		if !alive {
			group = append(group, Fragment{ServerID: servers[s], Present: false})
			continue
		}

		clone := sqlast.CloneSelect(sel)
		clone.OrderBy = nil
		clone.Limit = nil
		sqlast.SetWhere(clone, expr)

		group = append(group, Fragment{ServerID: servers[s], SQL: sqlast.String(clone), Present: true})
	}
	return group, nil
}

// projectionHeader extracts the output column list from sel's SELECT
// list, expanding `*` to the concatenated column lists of every table
// in FROM, in FROM order (§4.3.1).
func projectionHeader(sel *sqlparser.Select) []string {
	cols := sqlast.ProjectionColumns(sel)

	hasStar := false
	for _, c := range cols {
		if c == "*" {
			hasStar = true
			break
		}
	}
	if !hasStar {
		return cols
	}

	var header []string
	for _, te := range sel.From {
		expandTableExprColumns(te, &header)
	}
	return header
}

func expandTableExprColumns(te sqlparser.TableExpr, out *[]string) {
	switch e := te.(type) {
	case *sqlparser.AliasedTableExpr:
		if table, _, ok := sqlast.AliasedTable(e); ok {
			if cols, ok := Columns(table); ok {
				*out = append(*out, cols...)
			}
		}
	case *sqlparser.JoinTableExpr:
		expandTableExprColumns(e.LeftExpr, out)
		expandTableExprColumns(e.RightExpr, out)
	}
}

// planInsertUser routes an `INSERT INTO user` to the shard matching
// its region, reading the value by column name when the statement
// supplies a column list and falling back to the 11th positional
// value otherwise (§9 REDESIGN FLAG 4).
func planInsertUser(ins *sqlparser.Insert, shards ShardAssignment) (*InsertPlan, error) {
	region, err := insertRegion(ins)
	if err != nil {
		return nil, err
	}

	var serverID uint64
	switch region {
	case "Beijing":
		serverID = shards.Shard1
	case "HongKong":
		serverID = shards.Shard2
	default:
		return nil, ddbserrors.Newf(ddbserrors.InvalidArg, "unrecognized region %q in INSERT INTO user", region)
	}

	return &InsertPlan{ServerID: serverID, SQL: sqlast.String(ins)}, nil
}

// insertRegion extracts the region value for the (only) row of an
// INSERT INTO user statement.
func insertRegion(ins *sqlparser.Insert) (string, error) {
	values, ok := ins.Rows.(sqlparser.Values)
	if !ok || len(values) == 0 {
		return "", ddbserrors.New(ddbserrors.UnsupportedSql, "INSERT INTO user requires a VALUES row")
	}
	row := values[0]

	if len(ins.Columns) > 0 {
		for i, col := range ins.Columns {
			if col.String() == "region" {
				if i >= len(row) {
					return "", ddbserrors.New(ddbserrors.RpcInvalidArg, "INSERT INTO user: region column index out of range")
				}
				return literalString(row[i])
			}
		}
		return "", ddbserrors.New(ddbserrors.UnsupportedSql, "INSERT INTO user: column list has no region column")
	}

	const regionPositionalIndex = 10 // 11th value, 0-indexed
	if regionPositionalIndex >= len(row) {
		return "", ddbserrors.New(ddbserrors.RpcInvalidArg, "INSERT INTO user: fewer than 11 values and no column list")
	}
	return literalString(row[regionPositionalIndex])
}

func literalString(expr sqlparser.Expr) (string, error) {
	s, ok := sqlast.StringLiteral(expr)
	if !ok {
		return "", ddbserrors.New(ddbserrors.DbTypeParse, "expected a string literal for region")
	}
	return s, nil
}
