package rpcwire

import (
	"context"
	"net"
	"sync"

	"github.com/ddbsgo/ddbs/internal/ddbserrors"
	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// BackendClient dials one backend node and speaks the framed protocol
// of §6.2 over a single persistent connection. It implements
// cluster.Client, internal/exec's Backend (via cluster.Manager.ExecSQL),
// and internal/derive's BackendClient — every Go-side consumer of a
// remote backend's RPC surface.
type BackendClient struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialBackend connects to a backend node's RPC listener at addr.
func DialBackend(ctx context.Context, addr string) (*BackendClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.TransportConnect, "dial backend at "+addr, err)
	}
	return &BackendClient{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *BackendClient) Close() error {
	return c.conn.Close()
}

// roundTrip sends one request frame and reads back one response
// frame, serialized so concurrent callers don't interleave bytes on
// the shared connection.
func (c *BackendClient) roundTrip(method BackendMethod, args []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.conn, encodeRequest(method, args)); err != nil {
		return nil, err
	}
	frame, err := ReadFrame(c.conn)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.TransportConnect, "read backend rpc response", err)
	}
	return decodeResult(frame)
}

func (c *BackendClient) Init(ctx context.Context, shard int) error {
	_, err := c.roundTrip(MethodInit, encodeInitArgs(shard))
	return err
}

func (c *BackendClient) BulkLoad(ctx context.Context, table string) error {
	_, err := c.roundTrip(MethodBulkLoad, encodeTableArgs(table))
	return err
}

func (c *BackendClient) ExecSQL(ctx context.Context, sql string) ([]rowcodec.Row, error) {
	payload, err := c.roundTrip(MethodExecSQL, encodeSQLArgs(sql))
	if err != nil {
		return nil, err
	}
	return rowcodec.DecodeBatch(payload)
}

func (c *BackendClient) ExecSqlFirst(ctx context.Context, sql string) (rowcodec.Row, error) {
	payload, err := c.roundTrip(MethodExecSqlFirst, encodeSQLArgs(sql))
	if err != nil {
		return nil, err
	}
	return decodeFirstResult(payload)
}

func (c *BackendClient) ExecSqlDrop(ctx context.Context, sql string) error {
	_, err := c.roundTrip(MethodExecSqlDrop, encodeSQLArgs(sql))
	return err
}

// ExecSqlBatch sends the request then reads a sequence of chunk
// frames directly off the connection, since the response here is a
// stream rather than one frame. It holds the connection lock for the
// whole stream: concurrent callers on the same *BackendClient queue
// behind it, matching the single-writer-per-backend-connection model
// of cluster.clientHandle.
func (c *BackendClient) ExecSqlBatch(ctx context.Context, sql string, batchSize int) (<-chan []rowcodec.Row, <-chan error) {
	out := make(chan []rowcodec.Row, 4)
	errc := make(chan error, 1)

	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		defer close(out)
		defer close(errc)

		if err := WriteFrame(c.conn, encodeRequest(MethodExecSqlBatch, encodeBatchArgs(sql, batchSize))); err != nil {
			errc <- err
			return
		}
		for {
			frame, err := ReadFrame(c.conn)
			if err != nil {
				errc <- ddbserrors.Wrap(ddbserrors.TransportConnect, "read ExecSqlBatch chunk", err)
				return
			}
			if len(frame) == 0 {
				errc <- ddbserrors.New(ddbserrors.DeserializationError, "empty ExecSqlBatch chunk frame")
				return
			}
			kind, payload := streamChunk(frame[0]), frame[1:]
			switch kind {
			case chunkData:
				rows, err := rowcodec.DecodeBatch(payload)
				if err != nil {
					errc <- err
					return
				}
				select {
				case out <- rows:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			case chunkEnd:
				return
			case chunkErr:
				_, err := decodeResult(payload)
				errc <- err
				return
			}
		}
	}()

	return out, errc
}

// StreamExecSql is ExecSqlBatch's single-row analogue: the server
// encodes each row as a one-row batch chunk, which this unwraps.
func (c *BackendClient) StreamExecSql(ctx context.Context, sql string) (<-chan rowcodec.Row, <-chan error) {
	out := make(chan rowcodec.Row, 16)
	errc := make(chan error, 1)

	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		defer close(out)
		defer close(errc)

		if err := WriteFrame(c.conn, encodeRequest(MethodStreamExecSql, encodeSQLArgs(sql))); err != nil {
			errc <- err
			return
		}
		for {
			frame, err := ReadFrame(c.conn)
			if err != nil {
				errc <- ddbserrors.Wrap(ddbserrors.TransportConnect, "read StreamExecSql chunk", err)
				return
			}
			if len(frame) == 0 {
				errc <- ddbserrors.New(ddbserrors.DeserializationError, "empty StreamExecSql chunk frame")
				return
			}
			kind, payload := streamChunk(frame[0]), frame[1:]
			switch kind {
			case chunkData:
				rows, err := rowcodec.DecodeBatch(payload)
				if err != nil {
					errc <- err
					return
				}
				for _, row := range rows {
					select {
					case out <- row:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				}
			case chunkEnd:
				return
			case chunkErr:
				_, err := decodeResult(payload)
				errc <- err
				return
			}
		}
	}()

	return out, errc
}
