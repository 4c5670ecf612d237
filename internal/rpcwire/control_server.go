package rpcwire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ddbsgo/ddbs/internal/cluster"
)

// ControlService is the control node's RPC surface (§6.1) that
// ControlServer dispatches requests to. internal/server's control
// node orchestrator implements it.
type ControlService interface {
	Register(ctx context.Context, uri string) (uint64, error)
	ListServerStatus(ctx context.Context) (map[uint64]cluster.BackendMeta, error)
	ClusterInit(ctx context.Context) error
	GenerateBeReadTable(ctx context.Context) error
	GeneratePopularTable(ctx context.Context, granularity int) error
	Exec(ctx context.Context, statement string) (string, error)
	GetArticle(ctx context.Context, aid string) (string, error)
}

// ControlServer accepts client connections and dispatches
// each request frame to a ControlService, mirroring BackendServer's
// accept-loop/serve-connection shape.
type ControlServer struct {
	svc     ControlService
	logger  *slog.Logger
	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewControlServer creates a server dispatching to svc. If logger is
// nil, slog.Default() is used.
func NewControlServer(svc ControlService, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlServer{svc: svc, logger: logger}
}

// ListenAndServe binds addr and serves connections until Shutdown is
// called.
func (s *ControlServer) ListenAndServe(ctx context.Context, addr string) error {
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
func (s *ControlServer) Serve(ctx context.Context, ln net.Listener) error {
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("control rpc server listening", "addr", ln.Addr().String())

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
func (s *ControlServer) Shutdown(ctx context.Context) error {
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

func (s *ControlServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("control rpc read error", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}
		if len(frame) == 0 {
			continue
		}
		if err := s.dispatch(ctx, conn, frame); err != nil {
			s.logger.Debug("control rpc dispatch error", "remote", conn.RemoteAddr(), "error", err)
			return
		}
	}
}

func (s *ControlServer) dispatch(ctx context.Context, conn net.Conn, frame []byte) error {
	method := ControlMethod(frame[0])
	args := frame[1:]

	switch method {
	case MethodCtlPing:
		return WriteFrame(conn, encodeOK(nil))

	case MethodCtlRegister:
		uri, err := decodeRegisterArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		id, err := s.svc.Register(ctx, uri)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(encodeUint64Result(id)))

	case MethodCtlListServerStatus:
		m, err := s.svc.ListServerStatus(ctx)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(encodeServerMapResult(m)))

	case MethodCtlClusterInit:
		if err := s.svc.ClusterInit(ctx); err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(nil))

	case MethodCtlGenerateBeReadTable:
		if err := s.svc.GenerateBeReadTable(ctx); err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(nil))

	case MethodCtlGeneratePopularTable:
		granularity, err := decodeGranularityArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		if err := s.svc.GeneratePopularTable(ctx, granularity); err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(nil))

	case MethodCtlExec:
		statement, err := decodeStringArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		result, err := s.svc.Exec(ctx, statement)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(encodeStringResult(result)))

	case MethodCtlGetArticle:
		aid, err := decodeStringArgs(args)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		text, err := s.svc.GetArticle(ctx, aid)
		if err != nil {
			return WriteFrame(conn, encodeErr(err))
		}
		return WriteFrame(conn, encodeOK(encodeStringResult(text)))

	default:
		return WriteFrame(conn, encodeErr(unknownCtlMethodError(frame[0])))
	}
}
