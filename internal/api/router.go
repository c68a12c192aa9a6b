package api

import (
	"net/http"

	"collab-sync/internal/middleware"

	"github.com/gorilla/mux"
)

// SetupRoutes builds the HTTP surface. metrics may be nil to disable /metrics.
func SetupRoutes(h *Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/document", h.GetDocument).Methods("GET")
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/presence", h.ListPresence).Methods("GET")
	api.HandleFunc("/presence/{id}", h.GetSessionPresence).Methods("GET")

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	r.HandleFunc("/ws", h.HandleWebSocket)

	// Catch-all: upgrades are accepted on any path, and every path answers
	// preflight requests through the CORS middleware
	r.PathPrefix("/").HandlerFunc(h.Root)

	return r
}
