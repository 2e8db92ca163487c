package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/tagqueue/internal/tracing"
	"github.com/harun/tagqueue/pkg/tagqueue"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Client forwards invocations to a remote bridge. It implements tagqueue.Sink.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*tagqueue.Completion
	closed  bool

	closeOnce sync.Once
	done      chan struct{}
}

// DialOption configures Dial
type DialOption func(*dialOptions)

type dialOptions struct {
	secret string
	dialer *websocket.Dialer
}

// WithSecret sends secret on the upgrade request
func WithSecret(secret string) DialOption {
	return func(o *dialOptions) {
		o.secret = secret
	}
}

// WithDialer overrides websocket.DefaultDialer
func WithDialer(dialer *websocket.Dialer) DialOption {
	return func(o *dialOptions) {
		o.dialer = dialer
	}
}

// Dial connects to a bridge handler at url (ws:// or wss://)
func Dial(ctx context.Context, url string, logger zerolog.Logger, opts ...DialOption) (*Client, error) {
	o := dialOptions{dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&o)
	}

	header := http.Header{}
	if o.secret != "" {
		header.Set(SecretHeader, o.secret)
	}

	conn, resp, err := o.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial bridge %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial bridge %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger.With().Str("component", "wsbridge-client").Str("url", url).Logger(),
		pending: make(map[string]*tagqueue.Completion),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	c.logger.Info().Msg("Connected to bridge")
	return c, nil
}

// Invoke sends inv and returns without waiting for the reply
func (c *Client) Invoke(ctx context.Context, inv tagqueue.Invocation, reply *tagqueue.Completion) {
	logger := tracing.LoggerFromContext(ctx, c.logger)

	id, err := gonanoid.New()
	if err != nil {
		reply.Fail(fmt.Errorf("generate frame id: %w", err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		reply.Fail(ErrClosed)
		return
	}
	c.pending[id] = reply
	c.mu.Unlock()

	req := Request{
		ID:        id,
		CallID:    inv.CallID,
		Namespace: inv.Namespace,
		Method:    inv.Method,
		Args:      inv.Args,
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()

	if err != nil {
		if pending := c.take(id); pending != nil {
			pending.Fail(fmt.Errorf("write request: %w", err))
		}
		logger.Error().Err(err).Str("frameId", id).Msg("Failed to send request")
		return
	}

	logger.Debug().Str("frameId", id).Msg("Request sent")
}

func (c *Client) readLoop() {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Bridge connection lost")
			}
			c.shutdown()
			return
		}

		var rep Reply
		if err := json.Unmarshal(message, &rep); err != nil {
			c.logger.Warn().Err(err).Msg("Discarding malformed reply")
			continue
		}

		reply := c.take(rep.ID)
		if reply == nil {
			c.logger.Warn().Str("frameId", rep.ID).Msg("Reply for unknown request")
			continue
		}
		if rep.OK {
			reply.Succeed(rep.Message)
		} else {
			reply.Fail(&RemoteError{Message: rep.Error})
		}
	}
}

func (c *Client) take(id string) *tagqueue.Completion {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return reply
}

// Pending returns the number of requests awaiting a reply
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and fails every pending call with ErrClosed
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.writeMu.Lock()
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	c.shutdown()
	if err != nil && err != websocket.ErrCloseSent {
		return fmt.Errorf("close bridge connection: %w", err)
	}
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.pending
		c.pending = make(map[string]*tagqueue.Completion)
		c.mu.Unlock()

		c.conn.Close()
		close(c.done)

		for _, reply := range pending {
			reply.Fail(ErrClosed)
		}
		c.logger.Info().Int("failed", len(pending)).Msg("Bridge connection closed")
	})
}
