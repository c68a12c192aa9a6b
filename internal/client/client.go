// Package client is a headless participant for the sync server: it dials,
// decodes JSON frames, reports its connection state, and reconnects with
// exponential backoff after abnormal closures.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"collab-sync/internal/models"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected")

// State is the connection state exposed to the user interface
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Errored
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Client
type Options struct {
	// OnMessage receives every decodable frame, in arrival order
	OnMessage func(env models.Envelope, raw []byte)
	// OnStateChange is called on every state transition
	OnStateChange func(State)

	InitialInterval time.Duration // first reconnect delay
	MaxInterval     time.Duration // reconnect delay cap
	MaxElapsedTime  time.Duration // give up after this long without a connection; 0 retries forever
	WriteTimeout    time.Duration
}

func (o *Options) withDefaults() {
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// Client is a reconnecting websocket participant
type Client struct {
	url    string
	opts   Options
	dialer *websocket.Dialer

	mu    sync.Mutex // guards conn and state; also serializes writes
	conn  *websocket.Conn
	state State
}

// New creates a client for url (ws:// or wss://)
func New(url string, opts Options) *Client {
	opts.withDefaults()
	return &Client{
		url:    url,
		opts:   opts,
		dialer: websocket.DefaultDialer,
		state:  Disconnected,
	}
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// Run connects and processes frames until ctx is cancelled, the server
// closes the connection normally, or reconnecting gives up.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(Disconnected)

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			c.setState(Errored)
			return err
		}

		closeErr := c.readLoop(ctx, conn)

		if ctx.Err() != nil {
			return nil
		}
		if websocket.IsCloseError(closeErr, websocket.CloseNormalClosure) {
			log.Println("✓ Connection closed normally")
			return nil
		}

		log.Printf("❌ Connection lost: %v, reconnecting...", closeErr)
		c.setState(Errored)
	}
}

// connect dials with exponential backoff
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = c.opts.MaxElapsedTime

	var conn *websocket.Conn
	operation := func() error {
		c.setState(Connecting)
		dialed, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			return err
		}
		conn = dialed
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("⚠️  Dial %s failed: %v (retrying in %s)", c.url, err, wait)
		c.setState(Errored)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected)
	log.Printf("✅ Connected to %s", c.url)
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnecting")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
		conn.Close()
	})
	defer stop()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("Error parsing message: %v", err)
			continue
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(env, raw)
		}
	}
}

// Send encodes v as one JSON text frame
func (c *Client) Send(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// SendContent sends a content_change with the whole document body
func (c *Client) SendContent(content string) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return c.Send(struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	}{models.TypeContentChange, raw})
}

// SendCursor sends a cursor_update
func (c *Client) SendCursor(position, selectionStart, selectionEnd int) error {
	return c.Send(struct {
		Type string `json:"type"`
		models.CursorUpdate
	}{models.TypeCursorUpdate, models.CursorUpdate{
		Position:       position,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
	}})
}

// SendFormatting sends a formatting_change carrying only the supplied attributes
func (c *Client) SendFormatting(patch models.FormattingPatch) error {
	return c.Send(struct {
		Type string `json:"type"`
		models.FormattingChange
	}{models.TypeFormattingChange, models.FormattingChange{Formatting: patch}})
}
