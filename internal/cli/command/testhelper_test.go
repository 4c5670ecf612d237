package command

import (
	"context"
	"flag"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ddbsgo/ddbs/internal/cluster"
	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rpcwire"
)

// fakeControlService is a minimal rpcwire.ControlService double, one
// field per RPC this package's commands exercise.
type fakeControlService struct {
	registered []string
	nextID     uint64
	serverMap  map[uint64]cluster.BackendMeta
	initErr    error
	beReadErr  error
	popular    []int
	execResult string
	execErr    error
	articles   map[string]string
}

func (f *fakeControlService) Register(ctx context.Context, uri string) (uint64, error) {
	f.registered = append(f.registered, uri)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeControlService) ListServerStatus(ctx context.Context) (map[uint64]cluster.BackendMeta, error) {
	return f.serverMap, nil
}

func (f *fakeControlService) ClusterInit(ctx context.Context) error { return f.initErr }

func (f *fakeControlService) GenerateBeReadTable(ctx context.Context) error { return f.beReadErr }

func (f *fakeControlService) GeneratePopularTable(ctx context.Context, granularity int) error {
	f.popular = append(f.popular, granularity)
	return nil
}

func (f *fakeControlService) Exec(ctx context.Context, statement string) (string, error) {
	return f.execResult, f.execErr
}

func (f *fakeControlService) GetArticle(ctx context.Context, aid string) (string, error) {
	text, ok := f.articles[aid]
	if !ok {
		return "", ddbserrors.Newf(ddbserrors.DbInternal, "no article with aid %s", aid)
	}
	return text, nil
}

// startTestControlServer binds a real loopback listener serving svc,
// the same harness internal/rpcwire's own tests use, so these command
// tests exercise the real wire encoding rather than a mock transport.
func startTestControlServer(t *testing.T, svc rpcwire.ControlService) (string, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rpcwire.NewControlServer(svc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)

	return ln.Addr().String(), func() {
		cancel()
		ln.Close()
	}
}

// testContext builds a *cli.Context with --addr and --output set, plus
// positional args, for driving one command Action directly.
func testContext(t *testing.T, addr string, output string, args ...string) *cli.Context {
	t.Helper()

	app := &cli.App{Name: "test", Flags: globalFlags()}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		require.NoError(t, f.Apply(set))
	}

	fullArgs := []string{"--addr", addr, "--output", output}
	fullArgs = append(fullArgs, args...)
	require.NoError(t, set.Parse(fullArgs))

	return cli.NewContext(app, set, nil)
}
