package planner

import (
	"github.com/xwb1989/sqlparser"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/sqlast"
)

// JoinSpec describes the in-memory join the execution engine must
// perform for a Shard-classified cross-shard join (§4.4). Rows from
// each side are matched by comparing the value at LeftKeyColumn in a
// left-side row against the value at RightKeyColumn in a right-side
// row, both looked up via planner.ColumnIndex against their own
// table's catalog entry.
type JoinSpec struct {
	LeftTable, RightTable         string
	LeftKeyColumn, RightKeyColumn string
}

// classifyJoin resolves the two sides of an INNER JOIN against the
// join policy table and builds the corresponding FragmentGroups.
func classifyJoin(sel *sqlparser.Select, join *sqlparser.JoinTableExpr, shards ShardAssignment) ([]FragmentGroup, *JoinSpec, error) {
	leftTable, leftAlias, ok1 := sqlast.AliasedTable(join.LeftExpr)
	rightTable, rightAlias, ok2 := sqlast.AliasedTable(join.RightExpr)
	if !ok1 || !ok2 {
		return nil, nil, ddbserrors.New(ddbserrors.UnsupportedSql, "join sides must be plain tables, not nested joins or subqueries")
	}

	var symtab SymbolTable
	symtab.Add(leftTable, leftAlias)
	symtab.Add(rightTable, rightAlias)
	tables := symtab.Tables()

	switch JoinPolicy(tables[0], tables[1]) {
	case NotShard:
		group, err := eliminationGroup(sel, shards)
		if err != nil {
			return nil, nil, err
		}
		return []FragmentGroup{group}, nil, nil

	case OnlyTwo:
		group := FragmentGroup{
			{ServerID: shards.Shard1, Present: false},
			{ServerID: shards.Shard2, SQL: sqlast.String(sel), Present: true},
		}
		return []FragmentGroup{group}, nil, nil

	default: // Shard
		leftKey, ok := JoinKeyColumn(leftTable)
		if !ok {
			return nil, nil, ddbserrors.Newf(ddbserrors.UnsupportedSql, "no join key registered for table %q", leftTable)
		}
		rightKey, ok := JoinKeyColumn(rightTable)
		if !ok {
			return nil, nil, ddbserrors.Newf(ddbserrors.UnsupportedSql, "no join key registered for table %q", rightTable)
		}

		where := sqlast.Where(sel)

		var leftWhere, rightWhere sqlparser.Expr
		if where != nil {
			leftWhere = sqlast.RetargetColumnKey(where, leftTable, leftKey)
			rightWhere = sqlast.RetargetColumnKey(where, rightTable, rightKey)
		}

		leftFragment := sqlast.String(sqlast.NewSelectStarFrom(leftTable, leftWhere))
		rightFragment := sqlast.String(sqlast.NewSelectStarFrom(rightTable, rightWhere))

		leftGroup := FragmentGroup{
			{ServerID: shards.Shard1, SQL: leftFragment, Present: true},
			{ServerID: shards.Shard2, SQL: leftFragment, Present: true},
		}
		rightGroup := FragmentGroup{
			{ServerID: shards.Shard1, SQL: rightFragment, Present: true},
			{ServerID: shards.Shard2, SQL: rightFragment, Present: true},
		}

		spec := &JoinSpec{LeftTable: leftTable, RightTable: rightTable, LeftKeyColumn: leftKey, RightKeyColumn: rightKey}
		return []FragmentGroup{leftGroup, rightGroup}, spec, nil
	}
}
