package collaboration

import (
	"log"
	"net/http"

	"collab-sync/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const maxLoggedUserAgent = 50

// WebSocketHandler upgrades HTTP requests into collaboration sessions
type WebSocketHandler struct {
	sessionManager *SessionManager
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(sessionManager *SessionManager) *WebSocketHandler {
	return &WebSocketHandler{
		sessionManager: sessionManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers on any origin may join; there is no authentication in front of the editor
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// IsUpgrade reports whether r asks for a websocket
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// HandleConnection upgrades the request and blocks until the session ends
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Session",
		attribute.String("net.peer.addr", r.RemoteAddr),
		attribute.String("http.origin", origin),
		attribute.String("request.id", middleware.RequestID(r.Context())),
	)
	defer span.End()

	ua := r.UserAgent()
	if len(ua) > maxLoggedUserAgent {
		ua = ua[:maxLoggedUserAgent]
	}
	log.Printf("🔍 WebSocket upgrade from %s (origin=%q ua=%q path=%s)", r.RemoteAddr, origin, ua, r.URL.Path)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error
		log.Printf("⚠️  WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		middleware.AddSpanError(ctx, err)
		return
	}

	if err := h.sessionManager.Serve(ctx, conn, r.RemoteAddr); err != nil {
		middleware.AddSpanError(ctx, err)
	}
}
