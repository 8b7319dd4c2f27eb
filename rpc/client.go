package rpc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a persistent connection to one RPC server. Calls are
// serialized: the transport ties one message to one connection
// round-trip at a time, so a single mutex guards the whole exchange
// rather than pipelining requests.
type Client struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// NewClient returns a client for addr. The connection is established
// lazily on the first Call.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Addr returns the remote address this client was constructed with.
func (c *Client) Addr() string { return c.addr }

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

// Call sends req (tagged reqTag) and decodes the response body into
// resp. An ErrorResponse from the server is surfaced as a plain error.
func (c *Client) Call(ctx context.Context, reqTag Tag, req, resp any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConn(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	body, err := encode(req)
	if err != nil {
		return fmt.Errorf("rpc: encode request: %w", err)
	}
	if err := writeFrame(c.conn, reqTag, body); err != nil {
		c.reset()
		return err
	}

	respTag, respBody, err := readFrame(c.r)
	if err != nil {
		c.reset()
		return fmt.Errorf("rpc: read response: %w", err)
	}

	if respTag == TagError {
		var e ErrorResponse
		if derr := decode(respBody, &e); derr == nil {
			return fmt.Errorf("rpc: server error: %s", e.Message)
		}
		return fmt.Errorf("rpc: server error, undecodable payload")
	}

	if resp == nil {
		return nil
	}
	if err := decode(respBody, resp); err != nil {
		return fmt.Errorf("rpc: decode response: %w", err)
	}
	return nil
}

func (c *Client) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("rpc: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

// reset drops the connection so the next Call redials; used after any
// I/O error, since the frame boundary is now unrecoverable.
func (c *Client) reset() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.r = nil
}
