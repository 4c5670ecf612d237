package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddbsgo/ddbs/internal/cluster"
	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/exec"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

type fakeClient struct {
	execRows map[string][]rowcodec.Row
}

func (c *fakeClient) Init(ctx context.Context, shard int) error       { return nil }
func (c *fakeClient) BulkLoad(ctx context.Context, table string) error { return nil }

func (c *fakeClient) ExecSQL(ctx context.Context, sql string) ([]rowcodec.Row, error) {
	return c.execRows[sql], nil
}

func (c *fakeClient) ExecSqlFirst(ctx context.Context, sql string) (rowcodec.Row, error) {
	rows := c.execRows[sql]
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (c *fakeClient) ExecSqlDrop(ctx context.Context, sql string) error { return nil }

func (c *fakeClient) ExecSqlBatch(ctx context.Context, sql string, batchSize int) (<-chan []rowcodec.Row, <-chan error) {
	out := make(chan []rowcodec.Row)
	errc := make(chan error, 1)
	close(out)
	close(errc)
	return out, errc
}

func (c *fakeClient) StreamExecSql(ctx context.Context, sql string) (<-chan rowcodec.Row, <-chan error) {
	out := make(chan rowcodec.Row)
	errc := make(chan error, 1)
	close(out)
	close(errc)
	return out, errc
}

func (c *fakeClient) Close() error { return nil }

// newTestControl builds a Control wired to a real cluster.Manager and
// exec.Engine. The dialer looks fixtures up by URI, so ClusterInit's
// concurrent per-backend dials (§4.1) deterministically hand each
// fakeClient to the backend it was registered for, regardless of
// which goroutine wins the race to dial first.
func newTestControl(t *testing.T, byURI map[string]*fakeClient) (*Control, *cluster.Manager) {
	t.Helper()
	mgr := cluster.NewManager(func(ctx context.Context, uri string) (cluster.Client, error) {
		c, ok := byURI[uri]
		require.True(t, ok, "no fixture registered for uri %q", uri)
		return c, nil
	})
	engine := exec.NewEngine(mgr, nil)
	return NewControl(mgr, engine, nil), mgr
}

func TestControl_RegisterAssignsIncrementingIDs(t *testing.T) {
	c, _ := newTestControl(t, nil)

	id1, err := c.Register(context.Background(), "127.0.0.1:9001")
	require.NoError(t, err)
	id2, err := c.Register(context.Background(), "127.0.0.1:9002")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestControl_ListServerStatusReflectsRegistrations(t *testing.T) {
	c, _ := newTestControl(t, nil)

	id, err := c.Register(context.Background(), "127.0.0.1:9001")
	require.NoError(t, err)

	status, err := c.ListServerStatus(context.Background())
	require.NoError(t, err)
	require.Contains(t, status, id)
	assert.Equal(t, "127.0.0.1:9001", status[id].Uri)
	assert.Equal(t, cluster.Alive, status[id].Status)
}

func TestControl_ClusterInitAssignsShards(t *testing.T) {
	c, mgr := newTestControl(t, map[string]*fakeClient{
		"127.0.0.1:9001": {},
		"127.0.0.1:9002": {},
	})

	_, err := c.Register(context.Background(), "127.0.0.1:9001")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "127.0.0.1:9002")
	require.NoError(t, err)

	require.NoError(t, c.ClusterInit(context.Background()))

	_, _, err = mgr.CheckInit()
	require.NoError(t, err)
}

func TestControl_ClusterInit_FailsWithFewerThanTwoBackends(t *testing.T) {
	c, _ := newTestControl(t, nil)

	_, err := c.Register(context.Background(), "127.0.0.1:9001")
	require.NoError(t, err)

	err = c.ClusterInit(context.Background())
	require.Error(t, err)
	assert.True(t, ddbserrors.OfKind(err, ddbserrors.ServerNotAlive))
}

func TestControl_GenerateBeReadTable_BeforeClusterInitFails(t *testing.T) {
	c, _ := newTestControl(t, nil)

	err := c.GenerateBeReadTable(context.Background())
	require.Error(t, err)
	assert.True(t, ddbserrors.OfKind(err, ddbserrors.Uninitialize))
}

func TestControl_GenerateBeReadTable_AfterClusterInitSucceeds(t *testing.T) {
	c, _ := newTestControl(t, map[string]*fakeClient{"a": {}, "b": {}})
	_, err := c.Register(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "b")
	require.NoError(t, err)
	require.NoError(t, c.ClusterInit(context.Background()))

	require.NoError(t, c.GenerateBeReadTable(context.Background()))
}

func TestControl_GeneratePopularTable_RejectsOutOfRangeGranularity(t *testing.T) {
	c, _ := newTestControl(t, map[string]*fakeClient{"a": {}, "b": {}})
	_, err := c.Register(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "b")
	require.NoError(t, err)
	require.NoError(t, c.ClusterInit(context.Background()))

	err = c.GeneratePopularTable(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, ddbserrors.OfKind(err, ddbserrors.InvalidArg))
}

func TestControl_Exec_SelectReturnsResultSetJSON(t *testing.T) {
	c, _ := newTestControl(t, map[string]*fakeClient{
		"a": {execRows: map[string][]rowcodec.Row{
			`select id from article`: {{rowcodec.FromInt64(1)}},
		}},
		"b": {execRows: map[string][]rowcodec.Row{
			`select id from article`: {{rowcodec.FromInt64(2)}},
		}},
	})
	_, err := c.Register(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "b")
	require.NoError(t, err)
	require.NoError(t, c.ClusterInit(context.Background()))

	out, err := c.Exec(context.Background(), `SELECT id FROM article`)
	require.NoError(t, err)

	var parsed execResultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.NotNil(t, parsed.ResultSet)
	assert.Len(t, parsed.ResultSet.Table, 2)
}

func TestControl_Exec_InsertReturnsNullResultSet(t *testing.T) {
	c, _ := newTestControl(t, map[string]*fakeClient{"a": {}, "b": {}})
	_, err := c.Register(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "b")
	require.NoError(t, err)
	require.NoError(t, c.ClusterInit(context.Background()))

	out, err := c.Exec(context.Background(), `INSERT INTO user (uid, region) VALUES (1, "HongKong")`)
	require.NoError(t, err)

	var parsed execResultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Nil(t, parsed.ResultSet)
}

func TestControl_GetArticle_Found(t *testing.T) {
	c, _ := newTestControl(t, map[string]*fakeClient{
		"a": {execRows: map[string][]rowcodec.Row{
			"SELECT text FROM article WHERE aid = '42'": {{rowcodec.FromString("hello world")}},
		}},
		"b": {},
	})
	_, err := c.Register(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "b")
	require.NoError(t, err)
	require.NoError(t, c.ClusterInit(context.Background()))

	text, err := c.GetArticle(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestControl_GetArticle_NotFound(t *testing.T) {
	c, _ := newTestControl(t, map[string]*fakeClient{"a": {}, "b": {}})
	_, err := c.Register(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Register(context.Background(), "b")
	require.NoError(t, err)
	require.NoError(t, c.ClusterInit(context.Background()))

	_, err = c.GetArticle(context.Background(), "42")
	require.Error(t, err)
}
