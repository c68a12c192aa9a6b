package api

import (
	"context"

	"collab-sync/internal/models"
	"collab-sync/internal/services/collaboration"
)

// SessionService defines what handlers need from the collaboration core
type SessionService interface {
	Document() collaboration.DocumentSnapshot
	Sessions() []models.SessionInfo
	ActiveCount() int
}

// PresenceReader reads the presence journal
// Nil when the journal is disabled.
type PresenceReader interface {
	ListRecent(ctx context.Context, limit int) ([]*models.PresenceEvent, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.PresenceEvent, error)
}
