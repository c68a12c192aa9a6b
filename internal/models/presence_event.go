package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
LEARNING: PRESENCE JOURNAL

The document itself lives only in memory. What we do keep (optionally) is a
journal of who joined and left, and why they left. It is diagnostic data:
nothing reads it back into the live document on startup.
*/

// PresenceKind is the kind of roster change being journaled
type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

// PresenceEvent stores a single admission or departure
type PresenceEvent struct {
	ID            string       `gorm:"type:char(27);primaryKey" json:"id"`
	SessionID     string       `gorm:"type:varchar(64);not null;index" json:"session_id"`
	DisplayName   string       `gorm:"type:varchar(64);not null" json:"display_name"`
	Color         string       `gorm:"type:varchar(16)" json:"color"`
	RemoteAddress string       `gorm:"type:varchar(128)" json:"remote_address"`
	Kind          PresenceKind `gorm:"type:varchar(16);not null" json:"kind"`
	Reason        string       `gorm:"type:varchar(32)" json:"reason,omitempty"`
	CreatedAt     time.Time    `gorm:"index" json:"created_at"`
}

// BeforeCreate generates KSUID
func (e *PresenceEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (PresenceEvent) TableName() string {
	return "presence_events"
}
