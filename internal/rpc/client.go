package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
)

type state int32

const (
	stateConnecting state = iota
	stateOpen
	stateClosed
)

// Client is one websocket connection to a partition endpoint. Calls are
// serialized: the protocol has no request ids, so a response always
// belongs to the last request written.
type Client struct {
	addr string

	mu    sync.Mutex
	conn  *websocket.Conn
	state atomic.Int32
}

var dialer = &websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
}

// Dial connects to addr. A rejected handshake is reported as *StatusError.
func Dial(ctx context.Context, addr string) (*Client, error) {
	c := &Client{addr: addr}
	c.state.Store(int32(stateConnecting))

	conn, resp, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		c.state.Store(int32(stateClosed))
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, &StatusError{Status: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.conn = conn
	c.state.Store(int32(stateOpen))
	return c, nil
}

func (c *Client) Addr() string { return c.addr }

// Valid reports whether c may be reused for addr: the transport must still
// be open or connecting and bound to the same endpoint.
func (c *Client) Valid(addr string) bool {
	s := state(c.state.Load())
	return (s == stateOpen || s == stateConnecting) && c.addr == addr
}

// SendReceive writes req as one binary message and waits for the reply.
// Any transport failure leaves the client closed.
func (c *Client) SendReceive(ctx context.Context, req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state(c.state.Load()) == stateClosed {
		return nil, fmt.Errorf("send to %s: %w", c.addr, websocket.ErrCloseSent)
	}

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		c.fail()
		return nil, fmt.Errorf("send to %s: %w", c.addr, c.ctxErr(ctx, err))
	}
	mt, resp, err := c.conn.ReadMessage()
	if err != nil {
		c.fail()
		return nil, fmt.Errorf("receive from %s: %w", c.addr, c.ctxErr(ctx, err))
	}
	if mt != websocket.BinaryMessage {
		c.fail()
		return nil, fmt.Errorf("receive from %s: message type %d: %w", c.addr, mt, ErrProtocol)
	}
	return resp, nil
}

// ctxErr prefers the context's error when it caused the failure.
func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	return err
}

func (c *Client) fail() {
	c.state.Store(int32(stateClosed))
	_ = c.conn.Close()
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	if state(c.state.Swap(int32(stateClosed))) == stateClosed {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
