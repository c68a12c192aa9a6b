package repository

import (
	"context"
	"fmt"

	"collab-sync/internal/models"

	"gorm.io/gorm"
)

/*
LEARNING: PRESENCE JOURNAL PERSISTENCE

Query patterns:
- Record: append one admission/departure row (called by journal workers)
- ListRecent: newest rows first, for the diagnostics endpoint
- ListBySession: full history of one session id
*/

// PresenceRepositoryImpl handles presence event storage
type PresenceRepositoryImpl struct {
	db *gorm.DB
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(db *gorm.DB) *PresenceRepositoryImpl {
	return &PresenceRepositoryImpl{db: db}
}

// Record stores one presence event; the KSUID is generated in BeforeCreate
func (r *PresenceRepositoryImpl) Record(ctx context.Context, event *models.PresenceEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to store presence event: %w", err)
	}
	return nil
}

// ListRecent returns the newest events first
func (r *PresenceRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*models.PresenceEvent, error) {
	var events []*models.PresenceEvent

	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list presence events: %w", err)
	}

	return events, nil
}

// ListBySession returns the events of one session in chronological order
func (r *PresenceRepositoryImpl) ListBySession(ctx context.Context, sessionID string) ([]*models.PresenceEvent, error) {
	var events []*models.PresenceEvent

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list presence events for %s: %w", sessionID, err)
	}

	return events, nil
}
