package backend

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func newExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Executor{db: db, sem: semaphore.NewWeighted(8)}, mock
}

func TestExecSQL_SelectReturnsRows(t *testing.T) {
	e, mock := newExecutor(t)

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "alice").
		AddRow(int64(2), "bob")
	mock.ExpectQuery("select id, name from user").WillReturnRows(rows)

	got, err := e.ExecSQL(context.Background(), "select id, name from user")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0][0].Int64)
	assert.Equal(t, "bob", string(got[1][1].Bytes))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecSQL_NonQueryUsesExec(t *testing.T) {
	e, mock := newExecutor(t)
	mock.ExpectExec("update user set name").WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := e.ExecSQL(context.Background(), "update user set name = 'x' where id = 1")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecSqlFirst_EmptyResultSet(t *testing.T) {
	e, mock := newExecutor(t)
	mock.ExpectQuery("select").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := e.ExecSqlFirst(context.Background(), "select id from user where id = -1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestExecSqlDrop_RunsStatement(t *testing.T) {
	e, mock := newExecutor(t)
	mock.ExpectExec("drop table").WillReturnResult(sqlmock.NewResult(0, 0))

	err := e.ExecSqlDrop(context.Background(), "drop table be_read")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecSqlBatch_GroupsRowsIntoFixedSizeBatches(t *testing.T) {
	e, mock := newExecutor(t)

	rows := sqlmock.NewRows([]string{"aid"})
	for i := int64(1); i <= 5; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("select aid from popular_temp_daily").WillReturnRows(rows)

	out, errc := e.ExecSqlBatch(context.Background(), "select aid from popular_temp_daily", 2)

	var batches [][]int
	for batch := range out {
		ids := make([]int, len(batch))
		for i, r := range batch {
			ids[i] = int(r[0].Int64)
		}
		batches = append(batches, ids)
	}
	require.NoError(t, <-errc)

	require.Len(t, batches, 3)
	assert.Equal(t, []int{1, 2}, batches[0])
	assert.Equal(t, []int{3, 4}, batches[1])
	assert.Equal(t, []int{5}, batches[2])
}

func TestStreamExecSql_DeliversEveryRow(t *testing.T) {
	e, mock := newExecutor(t)
	rows := sqlmock.NewRows([]string{"aid"}).AddRow(int64(10)).AddRow(int64(20))
	mock.ExpectQuery("select aid from be_read").WillReturnRows(rows)

	out, errc := e.StreamExecSql(context.Background(), "select aid from be_read")

	var got []int64
	for row := range out {
		got = append(got, row[0].Int64)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []int64{10, 20}, got)
}

func TestInit_RejectsDifferentShard(t *testing.T) {
	e, mock := newExecutor(t)
	mock.ExpectExec("DROP PROCEDURE IF EXISTS insert_be_read").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE PROCEDURE insert_be_read").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, e.Init(context.Background(), 1))
	require.NoError(t, e.Init(context.Background(), 1), "re-init with the same shard is idempotent")

	err := e.Init(context.Background(), 2)
	require.Error(t, err)
}

func TestIsQuery(t *testing.T) {
	assert.True(t, isQuery("SELECT * FROM user"))
	assert.True(t, isQuery("  select 1"))
	assert.False(t, isQuery("INSERT INTO user VALUES (1)"))
	assert.False(t, isQuery("DROP TABLE be_read"))
}
