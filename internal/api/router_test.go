package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collab-sync/internal/models"
	"collab-sync/internal/services/collaboration"

	"github.com/gorilla/websocket"
)

type stubSessions struct {
	doc      collaboration.DocumentSnapshot
	sessions []models.SessionInfo
}

func (s *stubSessions) Document() collaboration.DocumentSnapshot { return s.doc }
func (s *stubSessions) Sessions() []models.SessionInfo          { return s.sessions }
func (s *stubSessions) ActiveCount() int                        { return len(s.sessions) }

type stubPresence struct {
	events []*models.PresenceEvent
	err    error
	limit  int
}

func (p *stubPresence) ListRecent(ctx context.Context, limit int) ([]*models.PresenceEvent, error) {
	p.limit = limit
	return p.events, p.err
}

func (p *stubPresence) ListBySession(ctx context.Context, sessionID string) ([]*models.PresenceEvent, error) {
	var result []*models.PresenceEvent
	for _, e := range p.events {
		if e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result, p.err
}

func newTestRouter(sessions SessionService, presence PresenceReader) http.Handler {
	sm := collaboration.NewSessionManager(collaboration.DefaultOptions(), nil)
	h := NewHandler(sessions, collaboration.NewWebSocketHandler(sm), presence)
	return SetupRoutes(h, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	}))
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RootBanner(t *testing.T) {
	h := newTestRouter(&stubSessions{}, nil)

	for _, path := range []string{"/", "/any/other/path"} {
		rec := serve(t, h, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if body := rec.Body.String(); body != "WebSocket server is running" {
			t.Errorf("GET %s body = %q", path, body)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
			t.Errorf("GET %s content type = %q", path, ct)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("GET %s missing CORS header", path)
		}
	}
}

func TestRouter_PreflightOnAnyPath(t *testing.T) {
	h := newTestRouter(&stubSessions{}, nil)

	for _, path := range []string{"/", "/api/health", "/whatever"} {
		rec := serve(t, h, http.MethodOptions, path)
		if rec.Code != http.StatusNoContent {
			t.Errorf("OPTIONS %s = %d, want 204", path, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("OPTIONS %s has a body", path)
		}
		if methods := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(methods, "GET") {
			t.Errorf("OPTIONS %s allow-methods = %q", path, methods)
		}
	}
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(&stubSessions{sessions: []models.SessionInfo{{ID: "user_1_abcdef"}}}, nil)

	rec := serve(t, h, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["sessions"] != float64(1) {
		t.Errorf("health = %v", body)
	}
}

func TestRouter_DocumentAndSessions(t *testing.T) {
	stub := &stubSessions{
		doc: collaboration.DocumentSnapshot{
			Body:       json.RawMessage(`"hello"`),
			Formatting: models.DefaultFormatting(),
		},
		sessions: []models.SessionInfo{
			{ID: "user_1_aaaaaa", Name: "User 1", Color: "#112233", ConnectedAt: time.Now()},
		},
	}
	h := newTestRouter(stub, nil)

	rec := serve(t, h, http.MethodGet, "/api/document")
	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc["content"] != "hello" {
		t.Errorf("document = %v", doc)
	}

	rec = serve(t, h, http.MethodGet, "/api/sessions")
	var sessions []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0]["id"] != "user_1_aaaaaa" {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestRouter_PresenceDisabled(t *testing.T) {
	h := newTestRouter(&stubSessions{}, nil)

	for _, path := range []string{"/api/presence", "/api/presence/user_1_aaaaaa"} {
		if rec := serve(t, h, http.MethodGet, path); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, rec.Code)
		}
	}
}

func TestRouter_PresenceLimit(t *testing.T) {
	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, defaultPresenceLimit},
		{"?limit=10", http.StatusOK, 10},
		{"?limit=100000", http.StatusOK, maxPresenceLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			presence := &stubPresence{}
			h := newTestRouter(&stubSessions{}, presence)

			rec := serve(t, h, http.MethodGet, "/api/presence"+tt.query)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if presence.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", presence.limit, tt.wantLimit)
			}
		})
	}
}

func TestRouter_SessionPresence(t *testing.T) {
	presence := &stubPresence{events: []*models.PresenceEvent{
		{ID: "1", SessionID: "user_1_aaaaaa", Kind: models.PresenceJoined},
		{ID: "2", SessionID: "user_1_aaaaaa", Kind: models.PresenceLeft, Reason: "closed"},
	}}
	h := newTestRouter(&stubSessions{}, presence)

	rec := serve(t, h, http.MethodGet, "/api/presence/user_1_aaaaaa")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var events []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %v", events)
	}

	if rec := serve(t, h, http.MethodGet, "/api/presence/user_9_zzzzzz"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session = %d, want 404", rec.Code)
	}

	presence.err = errors.New("db down")
	if rec := serve(t, h, http.MethodGet, "/api/presence"); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing store = %d, want 500", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestRouter(&stubSessions{}, nil)

	rec := serve(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "# metrics") {
		t.Errorf("GET /metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouter_UpgradeThroughMiddleware(t *testing.T) {
	sm := collaboration.NewSessionManager(collaboration.DefaultOptions(), nil)
	sm.Start()
	h := NewHandler(sm, collaboration.NewWebSocketHandler(sm), nil)
	srv := httptest.NewServer(SetupRoutes(h, nil))
	defer srv.Close()
	defer sm.Shutdown()

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	for _, path := range []string{"/", "/ws", "/editor/room"} {
		conn, _, err := websocket.DefaultDialer.Dial(base+path, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", path, err)
		}

		var init map[string]interface{}
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		if err := conn.ReadJSON(&init); err != nil {
			t.Fatalf("read init on %s: %v", path, err)
		}
		if init["type"] != models.TypeInit {
			t.Errorf("first frame on %s = %v, want init", path, init)
		}
		conn.Close()
	}
}
