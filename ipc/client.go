package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gsdkit/telegram-mcp/logger"
)

var (
	// ErrNotConnected is returned by Request before Connect or after Disconnect.
	ErrNotConnected = errors.New("not connected to daemon")
	// ErrRequestTimeout is returned when the daemon does not answer within the
	// method's timeout. The request id stays retired, so a late response is
	// silently dropped.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrConnectionClosed fails every in-flight request when the socket drops.
	ErrConnectionClosed = errors.New("connection closed")
)

type clientResult struct {
	resp Response
	err  error
}

// Client is an NDJSON IPC client over a Unix domain socket. Responses are
// matched to requests by uuid, so calls from multiple goroutines can share
// one connection.
type Client struct {
	socketPath string
	log        *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	pending map[string]chan clientResult
	closed  bool

	readerDone chan struct{}
}

// NewClient creates a client for the daemon socket at socketPath. It does not
// connect; call Connect.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		log:        logger.WithComponent("ipc-client"),
	}
}

// Connect dials the daemon socket and starts the response reader.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("daemon socket %s does not exist (daemon not running?): %w", c.socketPath, err)
		}
		return fmt.Errorf("connect to daemon at %s: %w", c.socketPath, err)
	}

	c.conn = conn
	c.closed = false
	c.pending = make(map[string]chan clientResult)
	c.readerDone = make(chan struct{})
	go c.readLoop(conn, c.readerDone)

	c.log.Debug("connected to daemon", "socket", c.socketPath)
	return nil
}

// Connected reports whether the client holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// Request sends one IPC call and waits for its response, the timeout, or ctx.
// On a daemon-reported error the returned error is a *RemoteError.
func (c *Client) Request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		raw = b
	}

	req := Request{ID: uuid.NewString(), Method: method, Params: raw}
	ch := make(chan clientResult, 1)

	c.mu.Lock()
	if c.conn == nil || c.closed {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	c.pending[req.ID] = ch
	c.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		c.retire(req.ID)
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		c.retire(req.ID)
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Error != nil {
			return nil, &RemoteError{Message: res.resp.Error.Message, Code: res.resp.Error.Code}
		}
		return res.resp.Result, nil
	case <-timer.C:
		c.retire(req.ID)
		return nil, fmt.Errorf("%s after %s: %w", method, timeout, ErrRequestTimeout)
	case <-ctx.Done():
		c.retire(req.ID)
		return nil, ctx.Err()
	}
}

// Disconnect closes the connection and fails any in-flight requests.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	done := c.readerDone
	c.conn = nil
	c.closed = true
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		<-done
	}
}

func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			c.failPending()
			return
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.log.Warn("malformed response line", "error", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			// Retired by timeout or cancellation.
			c.log.Debug("dropping late response", "id", resp.ID)
			continue
		}
		ch <- clientResult{resp: resp}
	}
}

func (c *Client) retire(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan clientResult)
	c.closed = true
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- clientResult{err: ErrConnectionClosed}
	}
}
