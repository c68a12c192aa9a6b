package collaboration

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"collab-sync/internal/telemetry"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const waitTimeout = 3 * time.Second

// fakeConn is an in-memory Conn for unit tests
type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	pings    int
	writeErr error
	pingErr  error
	pong     func(string) error

	reads     chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:   make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.reads:
		return websocket.TextMessage, b, nil
	case <-c.closeCh:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.PingMessage {
		if c.pingErr != nil {
			return c.pingErr
		}
		c.pings++
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64)               {}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	c.pong = h
	c.mu.Unlock()
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func testMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics(prometheus.NewRegistry())
}

// admitFake admits a session backed by a fakeConn without starting its pumps
func admitFake(t *testing.T, r *Registry, queueSize int) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	s := newSession(conn, "127.0.0.1:40000", queueSize)
	if err := r.Admit(s, nil); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	return s, conn
}

// queued drains and decodes everything waiting in a session's send queue
func queued(t *testing.T, s *Session) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for {
		select {
		case frame := <-s.send:
			var m map[string]interface{}
			if err := json.Unmarshal(frame, &m); err != nil {
				t.Fatalf("queued frame %s is not JSON: %v", frame, err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

// testClient is a real websocket peer; its background reader keeps answering pings
type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan map[string]interface{}
	closed chan error
}

func startTestServer(t *testing.T, opts Options) (*SessionManager, *httptest.Server) {
	t.Helper()
	sm := NewSessionManager(opts, testMetrics())
	sm.Start()
	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(sm).HandleConnection))
	t.Cleanup(func() {
		sm.Shutdown()
		srv.Close()
	})
	return sm, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func connect(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	c := &testClient{
		t:      t,
		conn:   dial(t, srv),
		frames: make(chan map[string]interface{}, 64),
		closed: make(chan error, 1),
	}
	go func() {
		for {
			_, raw, err := c.conn.ReadMessage()
			if err != nil {
				c.closed <- err
				return
			}
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err != nil {
				m = map[string]interface{}{"type": "<invalid>", "raw": string(raw)}
			}
			c.frames <- m
		}
	}()
	t.Cleanup(func() { c.conn.Close() })
	return c
}

// join connects and returns the client together with its init message
func join(t *testing.T, srv *httptest.Server) (*testClient, map[string]interface{}) {
	t.Helper()
	c := connect(t, srv)
	init := c.expect("init")
	return c, init
}

func (c *testClient) send(v interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("send: %v", err)
	}
}

// expect waits for the next frame of the given type, skipping others
func (c *testClient) expect(msgType string) map[string]interface{} {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case m := <-c.frames:
			if m["type"] == msgType {
				return m
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", msgType)
			return nil
		}
	}
}

// expectNone fails if a frame of the given type arrives within d
func (c *testClient) expectNone(msgType string, d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case m := <-c.frames:
			if m["type"] == msgType {
				c.t.Fatalf("unexpected %s: %v", msgType, m)
			}
		case <-deadline:
			return
		}
	}
}

func idOf(init map[string]interface{}) string {
	id, _ := init["clientId"].(string)
	return id
}
