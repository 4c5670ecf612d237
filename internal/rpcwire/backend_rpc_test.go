package rpcwire

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

type fakeExecutor struct {
	initShard  int
	loaded     []string
	rows       map[string][]rowcodec.Row
	dropped    []string
	execErr    error
	batchRows  []rowcodec.Row
	batchSize  int
	streamRows []rowcodec.Row
	streamErr  error
}

func (f *fakeExecutor) Init(ctx context.Context, shard int) error {
	f.initShard = shard
	return nil
}

func (f *fakeExecutor) BulkLoad(ctx context.Context, table string) error {
	f.loaded = append(f.loaded, table)
	return nil
}

func (f *fakeExecutor) ExecSQL(ctx context.Context, sql string) ([]rowcodec.Row, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.rows[sql], nil
}

func (f *fakeExecutor) ExecSqlFirst(ctx context.Context, sql string) (rowcodec.Row, error) {
	rows := f.rows[sql]
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (f *fakeExecutor) ExecSqlDrop(ctx context.Context, sql string) error {
	f.dropped = append(f.dropped, sql)
	return nil
}

func (f *fakeExecutor) ExecSqlBatch(ctx context.Context, sql string, batchSize int) (<-chan []rowcodec.Row, <-chan error) {
	f.batchSize = batchSize
	out := make(chan []rowcodec.Row, 4)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for i := 0; i < len(f.batchRows); i += batchSize {
			end := i + batchSize
			if end > len(f.batchRows) {
				end = len(f.batchRows)
			}
			out <- f.batchRows[i:end]
		}
	}()
	return out, errc
}

func (f *fakeExecutor) StreamExecSql(ctx context.Context, sql string) (<-chan rowcodec.Row, <-chan error) {
	out := make(chan rowcodec.Row, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, r := range f.streamRows {
			out <- r
		}
		if f.streamErr != nil {
			errc <- f.streamErr
		}
	}()
	return out, errc
}

func startBackendServer(t *testing.T, exec BackendExecutor) (*BackendClient, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewBackendServer(exec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)

	client, err := DialBackend(context.Background(), ln.Addr().String())
	require.NoError(t, err)

	return client, func() {
		client.Close()
		cancel()
		ln.Close()
	}
}

func TestBackendRPC_InitAndBulkLoad(t *testing.T) {
	exec := &fakeExecutor{}
	client, closeAll := startBackendServer(t, exec)
	defer closeAll()

	require.NoError(t, client.Init(context.Background(), 1))
	assert.Equal(t, 1, exec.initShard)

	require.NoError(t, client.BulkLoad(context.Background(), "user"))
	assert.Equal(t, []string{"user"}, exec.loaded)
}

func TestBackendRPC_ExecSQLRoundTripsRows(t *testing.T) {
	rows := []rowcodec.Row{{rowcodec.FromInt64(1), rowcodec.FromString("a")}}
	exec := &fakeExecutor{rows: map[string][]rowcodec.Row{"select 1": rows}}
	client, closeAll := startBackendServer(t, exec)
	defer closeAll()

	got, err := client.ExecSQL(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestBackendRPC_ExecSQLPropagatesError(t *testing.T) {
	exec := &fakeExecutor{execErr: ddbserrors.New(ddbserrors.DbInternal, "boom")}
	client, closeAll := startBackendServer(t, exec)
	defer closeAll()

	_, err := client.ExecSQL(context.Background(), "select 1")
	require.Error(t, err)
	assert.True(t, ddbserrors.OfKind(err, ddbserrors.DbInternal))
}

func TestBackendRPC_ExecSqlFirstEmptyResult(t *testing.T) {
	exec := &fakeExecutor{rows: map[string][]rowcodec.Row{}}
	client, closeAll := startBackendServer(t, exec)
	defer closeAll()

	row, err := client.ExecSqlFirst(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestBackendRPC_ExecSqlDropRecordsStatement(t *testing.T) {
	exec := &fakeExecutor{}
	client, closeAll := startBackendServer(t, exec)
	defer closeAll()

	require.NoError(t, client.ExecSqlDrop(context.Background(), "drop table x"))
	assert.Equal(t, []string{"drop table x"}, exec.dropped)
}

func TestBackendRPC_ExecSqlBatchStreamsAllRows(t *testing.T) {
	rows := []rowcodec.Row{
		{rowcodec.FromInt64(1)}, {rowcodec.FromInt64(2)}, {rowcodec.FromInt64(3)},
	}
	exec := &fakeExecutor{batchRows: rows}
	client, closeAll := startBackendServer(t, exec)
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, errc := client.ExecSqlBatch(ctx, "select *", 2)
	var got []rowcodec.Row
	for batch := range out {
		got = append(got, batch...)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, rows, got)
}

func TestBackendRPC_StreamExecSqlDeliversEveryRow(t *testing.T) {
	rows := []rowcodec.Row{{rowcodec.FromInt64(1)}, {rowcodec.FromInt64(2)}}
	exec := &fakeExecutor{streamRows: rows}
	client, closeAll := startBackendServer(t, exec)
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, errc := client.StreamExecSql(ctx, "select *")
	var got []rowcodec.Row
	for row := range out {
		got = append(got, row)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, rows, got)
}
