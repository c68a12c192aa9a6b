package collaboration

import "collab-sync/internal/models"

// PresenceJournal records admissions and departures.
// Submit must not block; the session lifecycle never waits on the journal.
type PresenceJournal interface {
	Submit(event *models.PresenceEvent) error
}
