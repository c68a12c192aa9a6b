package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"collab-sync/internal/services/collaboration"

	"github.com/gorilla/mux"
)

const (
	defaultPresenceLimit = 50
	maxPresenceLimit     = 500
)

// Handler handles HTTP requests
type Handler struct {
	sessions  SessionService
	wsHandler *collaboration.WebSocketHandler
	presence  PresenceReader
}

func NewHandler(sessions SessionService, wsHandler *collaboration.WebSocketHandler, presence PresenceReader) *Handler {
	return &Handler{
		sessions:  sessions,
		wsHandler: wsHandler,
		presence:  presence,
	}
}

// Root serves websocket upgrades on any path and a plain banner otherwise
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if collaboration.IsUpgrade(r) {
		h.wsHandler.HandleConnection(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("WebSocket server is running"))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": h.sessions.ActiveCount(),
	})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Document())
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Sessions())
}

func (h *Handler) ListPresence(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		http.Error(w, "presence journal is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultPresenceLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxPresenceLimit)
	}

	events, err := h.presence.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"limit":  limit,
	})
}

func (h *Handler) GetSessionPresence(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		http.Error(w, "presence journal is disabled", http.StatusServiceUnavailable)
		return
	}

	sessionID := mux.Vars(r)["id"]
	events, err := h.presence.ListBySession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		http.Error(w, "no presence events for "+sessionID, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
