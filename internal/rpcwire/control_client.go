package rpcwire

import (
	"context"
	"net"
	"sync"

	"github.com/ddbsgo/ddbs/internal/cluster"
	"github.com/ddbsgo/ddbs/internal/ddbserrors"
)

// ControlClient dials the control node and speaks the framed protocol
// of §6.1. The ddbsctl administration tool uses it for every call,
// including Register, Exec and GetArticle.
type ControlClient struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialControl connects to the control node's RPC listener at addr.
func DialControl(ctx context.Context, addr string) (*ControlClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.TransportConnect, "dial control node at "+addr, err)
	}
	return &ControlClient{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *ControlClient) Close() error {
	return c.conn.Close()
}

func (c *ControlClient) roundTrip(method ControlMethod, args []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.conn, encodeCtlRequest(method, args)); err != nil {
		return nil, err
	}
	frame, err := ReadFrame(c.conn)
	if err != nil {
		return nil, ddbserrors.Wrap(ddbserrors.TransportConnect, "read control rpc response", err)
	}
	return decodeResult(frame)
}

func (c *ControlClient) Ping(ctx context.Context) error {
	_, err := c.roundTrip(MethodCtlPing, nil)
	return err
}

func (c *ControlClient) Register(ctx context.Context, uri string) (uint64, error) {
	payload, err := c.roundTrip(MethodCtlRegister, encodeRegisterArgs(uri))
	if err != nil {
		return 0, err
	}
	return decodeUint64Result(payload)
}

func (c *ControlClient) ListServerStatus(ctx context.Context) (map[uint64]cluster.BackendMeta, error) {
	payload, err := c.roundTrip(MethodCtlListServerStatus, nil)
	if err != nil {
		return nil, err
	}
	return decodeServerMapResult(payload)
}

func (c *ControlClient) ClusterInit(ctx context.Context) error {
	_, err := c.roundTrip(MethodCtlClusterInit, nil)
	return err
}

func (c *ControlClient) GenerateBeReadTable(ctx context.Context) error {
	_, err := c.roundTrip(MethodCtlGenerateBeReadTable, nil)
	return err
}

func (c *ControlClient) GeneratePopularTable(ctx context.Context, granularity int) error {
	_, err := c.roundTrip(MethodCtlGeneratePopularTable, encodeGranularityArgs(granularity))
	return err
}

func (c *ControlClient) Exec(ctx context.Context, statement string) (string, error) {
	payload, err := c.roundTrip(MethodCtlExec, encodeStringArgs(statement))
	if err != nil {
		return "", err
	}
	return decodeStringResult(payload)
}

func (c *ControlClient) GetArticle(ctx context.Context, aid string) (string, error) {
	payload, err := c.roundTrip(MethodCtlGetArticle, encodeStringArgs(aid))
	if err != nil {
		return "", err
	}
	return decodeStringResult(payload)
}
