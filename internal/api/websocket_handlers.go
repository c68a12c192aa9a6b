package api

import (
	"net/http"
)

// HandleWebSocket handles WebSocket connections for the shared document
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}
