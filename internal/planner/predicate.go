package planner

import (
	"github.com/xwb1989/sqlparser"

	"github.com/ddbsgo/ddbs/internal/sqlast"
)

// pnode is one shard's rewritten predicate during the bottom-up walk.
// placeholder marks a shard-identifying leaf that has been satisfied
// unconditionally for that shard (§4.3.2's sentinel P); a later
// combine step collapses it against its sibling.
type pnode struct {
	placeholder bool
	expr        sqlparser.Expr
}

// regionShard reports whether expr is an atomic `region = "Beijing"`
// or `region = "HongKong"` equality, returning the shard it
// identifies (1 or 2).
func regionShard(expr sqlparser.Expr) (int, bool) {
	cmp, ok := expr.(*sqlparser.ComparisonExpr)
	if !ok || cmp.Operator != sqlparser.EqualStr {
		return 0, false
	}

	col, lit, ok := regionEquality(cmp.Left, cmp.Right)
	if !ok {
		col, lit, ok = regionEquality(cmp.Right, cmp.Left)
	}
	if !ok || col.Name != "region" {
		return 0, false
	}

	switch lit {
	case "Beijing":
		return 1, true
	case "HongKong":
		return 2, true
	default:
		return 0, false
	}
}

func regionEquality(a, b sqlparser.Expr) (sqlast.ColumnRef, string, bool) {
	col, ok := sqlast.AsColName(a)
	if !ok {
		return sqlast.ColumnRef{}, "", false
	}
	lit, ok := sqlast.StringLiteral(b)
	if !ok {
		return sqlast.ColumnRef{}, "", false
	}
	return col, lit, true
}

// eliminate performs the bottom-up shard-elimination walk of §4.3.2.
func eliminate(expr sqlparser.Expr) map[int]pnode {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		return combine(eliminate(e.Left), eliminate(e.Right), false, func(a, b sqlparser.Expr) sqlparser.Expr {
			return &sqlparser.AndExpr{Left: a, Right: b}
		})
	case *sqlparser.OrExpr:
		return combine(eliminate(e.Left), eliminate(e.Right), true, func(a, b sqlparser.Expr) sqlparser.Expr {
			return &sqlparser.OrExpr{Left: a, Right: b}
		})
	case *sqlparser.ParenExpr:
		return eliminate(e.Expr)
	default:
		if shard, ok := regionShard(expr); ok {
			return map[int]pnode{shard: {placeholder: true}}
		}
		// Shard-neutral leaf: sent to all shards unchanged.
		return map[int]pnode{1: {expr: expr}, 2: {expr: expr}}
	}
}

// combine applies the (P,P)->P / (P,x)->x / (x,P)->x / (x,y)->(x op y)
// algebra per shard. For AND, a shard missing from either side is
// absent from the result (dead-eliminated). For OR, a side missing a
// shard is false there, so the shard takes the other side's node, and
// (P,x) / (x,P) collapse to P; only a shard missing from both sides is
// absent.
func combine(l, r map[int]pnode, isOr bool, mk func(a, b sqlparser.Expr) sqlparser.Expr) map[int]pnode {
	out := make(map[int]pnode)
	for _, s := range []int{1, 2} {
		lp, lok := l[s]
		rp, rok := r[s]
		if !lok || !rok {
			if isOr && lok {
				out[s] = lp
			} else if isOr && rok {
				out[s] = rp
			}
			continue
		}
		switch {
		case lp.placeholder && rp.placeholder:
			out[s] = pnode{placeholder: true}
		case isOr && (lp.placeholder || rp.placeholder):
			out[s] = pnode{placeholder: true}
		case lp.placeholder:
			out[s] = rp
		case rp.placeholder:
			out[s] = lp
		default:
			out[s] = pnode{expr: mk(lp.expr, rp.expr)}
		}
	}
	return out
}

// ShardWhere rewrites a WHERE expression (nil meaning no WHERE at
// all) into a per-shard predicate map. A shard absent from the
// returned map is dead-eliminated: it must not be queried. A present
// shard with a nil sqlparser.Expr means "no predicate" (the
// top-level placeholder case): the fragment runs with no WHERE
// clause at all.
func ShardWhere(expr sqlparser.Expr) map[int]sqlparser.Expr {
	if expr == nil {
		return map[int]sqlparser.Expr{1: nil, 2: nil}
	}

	raw := eliminate(expr)
	out := make(map[int]sqlparser.Expr, len(raw))
	for s, p := range raw {
		if p.placeholder {
			out[s] = nil
			continue
		}
		out[s] = p.expr
	}
	return out
}
