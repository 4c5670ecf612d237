package exec

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/planner"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// fakeBackend answers ExecSQL from a fixed per-(serverID,sql) table,
// so tests can assert exactly which fragments the engine dispatched.
type fakeBackend struct {
	byCall map[string][]rowcodec.Row
}

func key(serverID uint64, sql string) string {
	return sql + "@" + strconv.FormatUint(serverID, 10)
}

func (b *fakeBackend) ExecSQL(ctx context.Context, serverID uint64, sql string) ([]rowcodec.Row, error) {
	return b.byCall[key(serverID, sql)], nil
}

var shards = planner.ShardAssignment{Shard1: 1, Shard2: 2}

func TestQuery_ShardEliminatedToSingleShard(t *testing.T) {
	backend := &fakeBackend{byCall: map[string][]rowcodec.Row{
		key(1, `select * from user`): {
			{rowcodec.FromInt64(1), rowcodec.FromString("alice")},
		},
	}}
	e := NewEngine(backend, nil)

	out, err := e.Query(context.Background(), `SELECT * FROM user WHERE region = "Beijing"`, shards)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 1)
}

func TestQuery_UnionAcrossBothShards(t *testing.T) {
	backend := &fakeBackend{byCall: map[string][]rowcodec.Row{
		key(1, `select id from article`): {{rowcodec.FromInt64(1)}},
		key(2, `select id from article`): {{rowcodec.FromInt64(2)}},
	}}
	e := NewEngine(backend, nil)

	out, err := e.Query(context.Background(), `SELECT id FROM article`, shards)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 2)
}

func TestQuery_OrderByAndLimitApplied(t *testing.T) {
	backend := &fakeBackend{byCall: map[string][]rowcodec.Row{
		key(1, `select id from article`): {{rowcodec.FromInt64(3)}, {rowcodec.FromInt64(1)}},
		key(2, `select id from article`): {{rowcodec.FromInt64(2)}},
	}}
	e := NewEngine(backend, nil)

	out, err := e.Query(context.Background(), `SELECT id FROM article ORDER BY id LIMIT 2`, shards)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, int64(1), out.Rows[0][0].Int64)
	assert.Equal(t, int64(2), out.Rows[1][0].Int64)
}

func TestQuery_CrossShardJoinMatchesOnKey(t *testing.T) {
	// The planner broadcasts each side's fragment to both shards; the
	// stub splits each table's rows across shard1/shard2 the way a
	// real partitioned backend would, and tells the two table
	// fragments apart by which table name appears in the SQL text.
	// Rows are full catalog width, as a SELECT * fragment returns them.
	userCols, _ := planner.Columns("user")
	uidIdx, _ := planner.ColumnIndex("user", "uid")
	aidIdx, _ := planner.ColumnIndex("article", "aid")
	backend := &joinStubBackend{
		leftByShard:  map[uint64][]rowcodec.Row{1: {catalogRow("user", "uid", 100)}},
		rightByShard: map[uint64][]rowcodec.Row{2: {catalogRow("article", "aid", 100), catalogRow("article", "aid", 200)}},
	}
	e := NewEngine(backend, nil)

	out, err := e.Query(context.Background(), `SELECT * FROM user JOIN article ON user.uid = article.aid WHERE user.uid = 100`, shards)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 1)
	assert.Equal(t, int64(100), out.Rows[0][uidIdx].Int64)
	assert.Equal(t, int64(100), out.Rows[0][len(userCols)+aidIdx].Int64)
}

// catalogRow builds a full-width row of table with column set to key
// and every other column null.
func catalogRow(table, column string, key int64) rowcodec.Row {
	cols, _ := planner.Columns(table)
	idx, _ := planner.ColumnIndex(table, column)
	row := make(rowcodec.Row, len(cols))
	for i := range row {
		row[i] = rowcodec.Null()
	}
	row[idx] = rowcodec.FromInt64(key)
	return row
}

// joinStubBackend answers the left table's fragment with fixed rows
// per shard and the right table's fragment with fixed rows per shard,
// telling the two fragments apart by which table name appears in the
// SQL text.
type joinStubBackend struct {
	leftByShard, rightByShard map[uint64][]rowcodec.Row
}

func (b *joinStubBackend) ExecSQL(ctx context.Context, serverID uint64, sql string) ([]rowcodec.Row, error) {
	if strings.Contains(sql, "user") {
		return b.leftByShard[serverID], nil
	}
	return b.rightByShard[serverID], nil
}

func TestQuery_ParseError(t *testing.T) {
	backend := &fakeBackend{}
	e := NewEngine(backend, nil)

	_, err := e.Query(context.Background(), `SELEKT nonsense`, shards)
	require.Error(t, err)
	assert.True(t, ddbserrors.OfKind(err, ddbserrors.SqlParse))
}

func TestInsert_RoutesByRegion(t *testing.T) {
	backend := &fakeBackend{byCall: map[string][]rowcodec.Row{}}
	e := NewEngine(backend, nil)

	sid, err := e.Insert(context.Background(), `INSERT INTO user (uid, region) VALUES (1, "HongKong")`, shards)
	require.NoError(t, err)
	assert.Equal(t, shards.Shard2, sid)
}

func TestInsert_RejectsNonInsertStatement(t *testing.T) {
	backend := &fakeBackend{}
	e := NewEngine(backend, nil)

	_, err := e.Insert(context.Background(), `SELECT * FROM user`, shards)
	require.Error(t, err)
}
