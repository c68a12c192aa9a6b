package services

import (
	"context"

	"collab-sync/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES

This package is the CONSUMER of the repository, so the interface lives here and
declares only what the journal workers call. The gorm implementation in
internal/repository never mentions it.
*/

// PresenceRepository defines what the journal needs from storage
type PresenceRepository interface {
	Record(ctx context.Context, event *models.PresenceEvent) error
}
