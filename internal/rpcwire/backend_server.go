package rpcwire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ddbsgo/ddbs/internal/rowcodec"
)

// BackendExecutor is the subset of internal/backend.Executor's
// surface the server dispatches requests to. A concrete *Executor
// satisfies it directly.
type BackendExecutor interface {
	Init(ctx context.Context, shard int) error
	BulkLoad(ctx context.Context, table string) error
	ExecSQL(ctx context.Context, sql string) ([]rowcodec.Row, error)
	ExecSqlFirst(ctx context.Context, sql string) (rowcodec.Row, error)
	ExecSqlDrop(ctx context.Context, sql string) error
	ExecSqlBatch(ctx context.Context, sql string, batchSize int) (<-chan []rowcodec.Row, <-chan error)
	StreamExecSql(ctx context.Context, sql string) (<-chan rowcodec.Row, <-chan error)
}

// BackendServer accepts connections from the control node and
// dispatches each request frame to a BackendExecutor, following the
// accept-loop/serve-connection shape of the teacher's redisserver.
type BackendServer struct {
	exec    BackendExecutor
	logger  *slog.Logger
	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewBackendServer creates a server dispatching to exec. If logger is
// nil, slog.Default() is used.
func NewBackendServer(exec BackendExecutor, logger *slog.Logger) *BackendServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendServer{exec: exec, logger: logger}
}

// ListenAndServe binds addr and serves connections until Shutdown is
// called.
func (s *BackendServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on an already-bound listener until
// Shutdown is called. ListenAndServe is Serve plus the net.Listen
// call; callers that need the bound address before serving (tests,
// ephemeral ports) can bind it themselves and call Serve directly.
func (s *BackendServer) Serve(ctx context.Context, ln net.Listener) error {
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("backend rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and waits for in-flight connections to
// finish handling their current request.
func (s *BackendServer) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			return err
		}
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BackendServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("backend rpc read error", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}
		if len(frame) == 0 {
			continue
		}

		if err := s.dispatch(ctx, conn, frame); err != nil {
			s.logger.Debug("backend rpc dispatch error", "remote", conn.RemoteAddr(), "error", err)
			return
		}
	}
}

func (s *BackendServer) dispatch(ctx context.Context, conn net.Conn, frame []byte) error {
	method := BackendMethod(frame[0])
	args := frame[1:]

	switch method {
	case MethodPing:
		return WriteFrame(conn, encodeOK(nil))

	case MethodInit:
		shard, err := decodeInitArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		if err := s.exec.Init(ctx, shard); err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(nil))

	case MethodBulkLoad:
		table, err := decodeTableArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		if err := s.exec.BulkLoad(ctx, table); err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(nil))

	case MethodExecSQL:
		sql, err := decodeSQLArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		rows, err := s.exec.ExecSQL(ctx, sql)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(rowcodec.EncodeBatch(rows)))

	case MethodExecSqlFirst:
		sql, err := decodeSQLArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		row, err := s.exec.ExecSqlFirst(ctx, sql)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(encodeFirstResult(row)))

	case MethodExecSqlDrop:
		sql, err := decodeSQLArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		if err := s.exec.ExecSqlDrop(ctx, sql); err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(nil))

	case MethodExecSqlBatch:
		sql, batchSize, err := decodeBatchArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		// The initial request frame gets no separate response; the
		// stream itself (of which the first frame may be chunkErr) is
		// the response.
		batches, errc := s.exec.ExecSqlBatch(ctx, sql, batchSize)
		return s.streamBatches(conn, batches, errc)

	case MethodStreamExecSql:
		sql, err := decodeSQLArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		rows, errc := s.exec.StreamExecSql(ctx, sql)
		return s.streamRows(conn, rows, errc)

	default:
		return WriteFrame(conn, encodeErr(unknownMethodError(frame[0])))
	}
}

func (s *BackendServer) streamBatches(conn net.Conn, batches <-chan []rowcodec.Row, errc <-chan error) error {
	for batch := range batches {
		if err := WriteFrame(conn, encodeChunk(chunkData, rowcodec.EncodeBatch(batch))); err != nil {
			return err
		}
	}
	if err := <-errc; err != nil {
		return WriteFrame(conn, encodeChunk(chunkErr, encodeErr(err)))
	}
	return WriteFrame(conn, encodeChunk(chunkEnd, nil))
}

func (s *BackendServer) streamRows(conn net.Conn, rows <-chan rowcodec.Row, errc <-chan error) error {
	for row := range rows {
		if err := WriteFrame(conn, encodeChunk(chunkData, rowcodec.EncodeBatch([]rowcodec.Row{row}))); err != nil {
			return err
		}
	}
	if err := <-errc; err != nil {
		return WriteFrame(conn, encodeChunk(chunkErr, encodeErr(err)))
	}
	return WriteFrame(conn, encodeChunk(chunkEnd, nil))
}
