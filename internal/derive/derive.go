// Package derive builds the two derived analytic tables — be_read
// and popular_rank — by streaming aggregates from both shards through
// the control tier and writing the merged result back (§4.5, §4.6).
// It drives backends purely through the BackendClient RPC surface: it
// never opens a database connection of its own.
package derive

import (
	"context"

	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// BackendClient is the subset of a backend's RPC surface the derived
// table builders need. internal/rpcwire supplies the concrete
// implementation that forwards these calls over the wire to an
// internal/backend.Executor; tests supply in-memory fakes.
type BackendClient interface {
	ExecSqlDrop(ctx context.Context, sql string) error
	ExecSQL(ctx context.Context, sql string) ([]rowcodec.Row, error)
	ExecSqlFirst(ctx context.Context, sql string) (rowcodec.Row, error)
	ExecSqlBatch(ctx context.Context, sql string, batchSize int) (<-chan []rowcodec.Row, <-chan error)
	StreamExecSql(ctx context.Context, sql string) (<-chan rowcodec.Row, <-chan error)
}

// drainErr waits on an error channel after its paired data channel
// has been fully drained, the pattern every builder uses after a
// ranged read over a backend.Executor stream/batch channel.
func drainErr(errc <-chan error) error {
	return <-errc
}
