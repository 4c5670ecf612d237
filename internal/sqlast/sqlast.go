// Package sqlast isolates the external SQL parser
// (github.com/xwb1989/sqlparser) behind a small set of
// navigation/reconstruction helpers used by internal/planner. The
// planner still imports sqlparser directly for its node types, so a
// parser swap touches both this file and internal/planner.
package sqlast

import (
	"github.com/xwb1989/sqlparser"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// Statement is a parsed SQL statement.
type Statement = sqlparser.Statement

// Parse parses sql into a Statement.
func Parse(sql string) (Statement, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.SqlParse, "parse statement", err)
	}
	return stmt, nil
}

// String reserializes a Statement (or any SQL node) back to SQL text.
func String(node sqlparser.SQLNode) string {
	return sqlparser.String(node)
}

// AsSelect reports whether stmt is a SELECT, returning it if so.
func AsSelect(stmt Statement) (*sqlparser.Select, bool) {
	sel, ok := stmt.(*sqlparser.Select)
	return sel, ok
}

// AsInsert reports whether stmt is an INSERT, returning it if so.
func AsInsert(stmt Statement) (*sqlparser.Insert, bool) {
	ins, ok := stmt.(*sqlparser.Insert)
	return ins, ok
}

// IsInsertIntoUser reports whether ins targets the "user" base table.
func IsInsertIntoUser(ins *sqlparser.Insert) bool {
	return ins.Table.Name.String() == "user"
}

// CloneSelect returns a shallow copy of sel whose top-level fields
// (Where/From/OrderBy/Limit) can be independently rewritten without
// mutating the original AST or a sibling fragment's copy.
func CloneSelect(sel *sqlparser.Select) *sqlparser.Select {
	clone := *sel
	return &clone
}

// Where returns sel's WHERE expression, or nil if it has none.
func Where(sel *sqlparser.Select) sqlparser.Expr {
	if sel.Where == nil {
		return nil
	}
	return sel.Where.Expr
}

// SetWhere installs expr as sel's WHERE clause. A nil expr removes the
// clause entirely.
func SetWhere(sel *sqlparser.Select, expr sqlparser.Expr) {
	if expr == nil {
		sel.Where = nil
		return
	}
	sel.Where = sqlparser.NewWhere(sqlparser.WhereStr, expr)
}

// SingleTableExpr reports whether sel's FROM clause is exactly one
// table expression (no comma-joined tables), returning it.
func SingleTableExpr(sel *sqlparser.Select) (sqlparser.TableExpr, bool) {
	if len(sel.From) != 1 {
		return nil, false
	}
	return sel.From[0], true
}

// AsJoin reports whether te is an inner join node (sqlparser.JoinStr),
// returning it. It does not check what the two sides are; callers do
// that with AliasedTable.
func AsJoin(te sqlparser.TableExpr) (*sqlparser.JoinTableExpr, bool) {
	join, ok := te.(*sqlparser.JoinTableExpr)
	if !ok {
		return nil, false
	}
	if join.Join != sqlparser.JoinStr {
		return nil, false
	}
	return join, true
}

// AliasedTable reports whether te is a plain aliased table reference,
// returning its base table name and effective alias (the base name
// itself when unaliased).
func AliasedTable(te sqlparser.TableExpr) (tableName string, alias string, ok bool) {
	aliased, isAliased := te.(*sqlparser.AliasedTableExpr)
	if !isAliased {
		return "", "", false
	}
	name, isTableName := aliased.Expr.(sqlparser.TableName)
	if !isTableName {
		return "", "", false
	}
	tableName = name.Name.String()
	alias = tableName
	if !aliased.As.IsEmpty() {
		alias = aliased.As.String()
	}
	return tableName, alias, true
}

// ProjectionColumns returns, for each SELECT expression, the column
// name it contributes, or "*" for a StarExpr (the caller expands
// that using the schema catalog).
func ProjectionColumns(sel *sqlparser.Select) []string {
	cols := make([]string, 0, len(sel.SelectExprs))
	for _, se := range sel.SelectExprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			cols = append(cols, "*")
		case *sqlparser.AliasedExpr:
			if !e.As.IsEmpty() {
				cols = append(cols, e.As.String())
				continue
			}
			if col, ok := e.Expr.(*sqlparser.ColName); ok {
				cols = append(cols, col.Name.String())
				continue
			}
			cols = append(cols, sqlparser.String(e.Expr))
		}
	}
	return cols
}

// ColumnRef describes a (possibly qualified) column reference found
// while walking a predicate tree.
type ColumnRef struct {
	Qualifier string // table alias, "" if unqualified
	Name      string
}

// AsColName reports whether expr is a column reference.
func AsColName(expr sqlparser.Expr) (ColumnRef, bool) {
	col, ok := expr.(*sqlparser.ColName)
	if !ok {
		return ColumnRef{}, false
	}
	return ColumnRef{Qualifier: col.Qualifier.Name.String(), Name: col.Name.String()}, true
}

// StringLiteral reports whether expr is a string literal, returning
// its value.
func StringLiteral(expr sqlparser.Expr) (string, bool) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.StrVal {
		return "", false
	}
	return string(val.Val), true
}

// RetargetColumn returns a copy of expr with any ColName reference to
// fromTable rewritten to toTable, used when pushing a join predicate
// down to one side of a Shard-classified join.
func RetargetColumn(expr sqlparser.Expr, fromTable, toTable string) sqlparser.Expr {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		if e.Qualifier.Name.String() == fromTable || e.Qualifier.Name.String() == "" {
			clone := *e
			clone.Qualifier = sqlparser.TableName{Name: sqlparser.NewTableIdent(toTable)}
			return &clone
		}
		return e
	case *sqlparser.ComparisonExpr:
		clone := *e
		clone.Left = RetargetColumn(e.Left, fromTable, toTable)
		clone.Right = RetargetColumn(e.Right, fromTable, toTable)
		return &clone
	case *sqlparser.AndExpr:
		clone := *e
		clone.Left = RetargetColumn(e.Left, fromTable, toTable)
		clone.Right = RetargetColumn(e.Right, fromTable, toTable)
		return &clone
	case *sqlparser.OrExpr:
		clone := *e
		clone.Left = RetargetColumn(e.Left, fromTable, toTable)
		clone.Right = RetargetColumn(e.Right, fromTable, toTable)
		return &clone
	case *sqlparser.ParenExpr:
		return &sqlparser.ParenExpr{Expr: RetargetColumn(e.Expr, fromTable, toTable)}
	default:
		return expr
	}
}

// RetargetColumnKey replaces every column reference inside expr with a
// reference to table.column. It is used when pushing a join predicate
// down to one side of a Shard-classified join: the predicate is
// reformulated in terms of that side's own join-key column rather
// than the original alias/column it was written against.
func RetargetColumnKey(expr sqlparser.Expr, table, column string) sqlparser.Expr {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		return &sqlparser.ColName{
			Name:      sqlparser.NewColIdent(column),
			Qualifier: sqlparser.TableName{Name: sqlparser.NewTableIdent(table)},
		}
	case *sqlparser.ComparisonExpr:
		clone := *e
		clone.Left = RetargetColumnKey(e.Left, table, column)
		clone.Right = RetargetColumnKey(e.Right, table, column)
		return &clone
	case *sqlparser.AndExpr:
		clone := *e
		clone.Left = RetargetColumnKey(e.Left, table, column)
		clone.Right = RetargetColumnKey(e.Right, table, column)
		return &clone
	case *sqlparser.OrExpr:
		clone := *e
		clone.Left = RetargetColumnKey(e.Left, table, column)
		clone.Right = RetargetColumnKey(e.Right, table, column)
		return &clone
	case *sqlparser.ParenExpr:
		return &sqlparser.ParenExpr{Expr: RetargetColumnKey(e.Expr, table, column)}
	default:
		return expr
	}
}

// NewSelectStarFrom builds a fresh "SELECT * FROM table [WHERE where]"
// statement, used to construct the per-side fragments of a
// Shard-classified join.
func NewSelectStarFrom(table string, where sqlparser.Expr) *sqlparser.Select {
	sel := &sqlparser.Select{
		SelectExprs: sqlparser.SelectExprs{&sqlparser.StarExpr{}},
		From: sqlparser.TableExprs{&sqlparser.AliasedTableExpr{
			Expr: sqlparser.TableName{Name: sqlparser.NewTableIdent(table)},
		}},
	}
	SetWhere(sel, where)
	return sel
}

// OrderByColumns returns the column names (and ascending flags) of
// sel's ORDER BY clause, in clause order.
func OrderByColumns(sel *sqlparser.Select) []OrderKey {
	keys := make([]OrderKey, 0, len(sel.OrderBy))
	for _, o := range sel.OrderBy {
		name := sqlparser.String(o.Expr)
		if col, ok := o.Expr.(*sqlparser.ColName); ok {
			name = col.Name.String()
		}
		keys = append(keys, OrderKey{Column: name, Ascending: o.Direction != sqlparser.DescScr})
	}
	return keys
}

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Column    string
	Ascending bool
}

// LimitCount returns sel's LIMIT row count and whether one was
// specified. OFFSET is not supported by the catalog of §6.3 and is
// ignored if present.
func LimitCount(sel *sqlparser.Select) (int, bool) {
	if sel.Limit == nil || sel.Limit.Rowcount == nil {
		return 0, false
	}
	val, ok := sel.Limit.Rowcount.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.IntVal {
		return 0, false
	}
	n := 0
	for _, c := range val.Val {
		n = n*10 + int(c-'0')
	}
	return n, true
}
