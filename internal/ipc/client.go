package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrClosed           = errors.New("client closed")
)

// Client is a synchronous connection to the daemon. Requests are
// serialized; Subscribe takes over the connection.
type Client struct {
	mu        sync.Mutex
	conn      net.Conn
	nextReqID atomic.Uint32
	timeout   time.Duration
}

// Dial connects to the daemon socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w (%s)", ErrDaemonNotRunning, socketPath)
		}
		return nil, fmt.Errorf("connect %s: %w", socketPath, err)
	}
	return &Client{conn: conn, timeout: 10 * time.Second}, nil
}

// SetTimeout bounds each request.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// request sends a message and waits for the reply with the same request
// ID, skipping keepalive pings.
func (c *Client) request(ctx context.Context, msgType MessageType, payload any, want MessageType, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrClosed
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = Encode(payload); err != nil {
			return fmt.Errorf("encode %s: %w", msgType, err)
		}
	}
	id := c.nextReqID.Add(1)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := NewMessage(msgType, id, body).Write(c.conn); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s reply: %w", msgType, err)
		}
		switch {
		case msg.Header.Type == MsgPing:
			continue
		case msg.Header.Type == MsgError:
			var e ErrorResponse
			if err := Decode(msg.Payload, &e); err != nil {
				return fmt.Errorf("decode error reply: %w", err)
			}
			return &e
		case msg.Header.RequestID != id:
			continue
		case msg.Header.Type != want:
			return fmt.Errorf("unexpected reply %s to %s", msg.Header.Type, msgType)
		}
		if out == nil || len(msg.Payload) == 0 {
			return nil
		}
		if err := Decode(msg.Payload, out); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Header.Type, err)
		}
		return nil
	}
}

// Ping checks the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, MsgPing, nil, MsgPong, nil)
}

// Status returns the daemon and engine status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.request(ctx, MsgStatusRequest, nil, MsgStatusResponse, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset returns the state machine to neutral.
func (c *Client) Reset(ctx context.Context) (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.request(ctx, MsgResetRequest, nil, MsgResetResponse, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reload asks the daemon to re-read its configuration.
func (c *Client) Reload(ctx context.Context) (*ReloadResponse, error) {
	var resp ReloadResponse
	if err := c.request(ctx, MsgReloadRequest, nil, MsgReloadResponse, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trace returns up to limit recorded transitions.
func (c *Client) Trace(ctx context.Context, limit int) (*TraceResponse, error) {
	var resp TraceResponse
	if err := c.request(ctx, MsgTraceRequest, &TraceRequest{Limit: limit}, MsgTraceResponse, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Metrics returns the Prometheus text exposition.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	var resp MetricsResponse
	if err := c.request(ctx, MsgMetricsRequest, nil, MsgMetricsResponse, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Subscribe streams state events to fn until ctx ends or the connection
// drops. The client cannot be used for requests afterwards.
func (c *Client) Subscribe(ctx context.Context, fn func(StateEvent)) error {
	if err := c.request(ctx, MsgSubscribe, nil, MsgSubscribeResp, nil); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		switch msg.Header.Type {
		case MsgPing:
			c.mu.Lock()
			err := NewMessage(MsgPong, msg.Header.RequestID, nil).Write(conn)
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("event stream: %w", err)
			}
		case MsgEvent:
			var ev StateEvent
			if err := Decode(msg.Payload, &ev); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			fn(ev)
		}
	}
}
