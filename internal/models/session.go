package models

import "time"

// UserInfo is the public identity of a session as shown in rosters
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"` // Hex color for cursor/highlight
}

// CursorState is the last-known caret and selection of one session
// Learning: This is ephemeral presence state - it is never part of the document body
type CursorState struct {
	Position       int       `json:"position"`
	SelectionStart int       `json:"selectionStart"`
	SelectionEnd   int       `json:"selectionEnd"`
	UpdatedAt      time.Time `json:"-"`
}

// SessionInfo is the diagnostic view of a session exposed over HTTP
type SessionInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Color          string    `json:"color"`
	RemoteAddress  string    `json:"remoteAddress"`
	ConnectedAt    time.Time `json:"connectedAt"`
	LastLivenessAt time.Time `json:"lastLivenessAt"`
}
