package models

import "encoding/json"

/*
LEARNING: JSON MESSAGE CONTRACT

Every frame is a UTF-8 text frame holding one JSON object with a "type" tag.
We decode the tag first (Envelope) and only then the type-specific body, so an
unknown type can still be relayed verbatim to the other sessions.
*/

// Server -> client message types
const (
	TypeInit             = "init"
	TypeContentUpdate    = "content_update"
	TypeCursorPosition   = "cursor_position"
	TypeFormattingUpdate = "formatting_update"
	TypeUserJoined       = "user_joined"
	TypeUserLeft         = "user_left"
)

// Client -> server message types
const (
	TypeContentChange    = "content_change"
	TypeCursorUpdate     = "cursor_update"
	TypeFormattingChange = "formatting_change"
)

// EmptyContent is the body of a freshly started document
var EmptyContent = json.RawMessage(`""`)

// Envelope carries only the mandatory type tag of a frame
type Envelope struct {
	Type string `json:"type"`
}

// InitMessage is the init frame as a client decodes it; sent once to a newly admitted session
type InitMessage struct {
	Type       string                 `json:"type"`
	Content    json.RawMessage        `json:"content"`
	ClientID   string                 `json:"clientId"`
	Clients    []UserInfo             `json:"clients"`
	Formatting Formatting             `json:"formatting"`
	Cursors    map[string]CursorState `json:"cursors"`
}

// InitHeader is the per-session part of init; the server appends the
// document's content and formatting to it when building the frame
type InitHeader struct {
	Type     string                 `json:"type"`
	ClientID string                 `json:"clientId"`
	Clients  []UserInfo             `json:"clients"`
	Cursors  map[string]CursorState `json:"cursors"`
}

// ContentUpdateMessage carries a whole-document replacement
type ContentUpdateMessage struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	From    string          `json:"from"`
}

// CursorPositionMessage announces another session's caret
type CursorPositionMessage struct {
	Type           string `json:"type"`
	ClientID       string `json:"clientId"`
	Position       int    `json:"position"`
	SelectionStart int    `json:"selectionStart"`
	SelectionEnd   int    `json:"selectionEnd"`
	UserColor      string `json:"userColor"`
}

// FormattingUpdateMessage carries the full merged formatting record
type FormattingUpdateMessage struct {
	Type       string     `json:"type"`
	Formatting Formatting `json:"formatting"`
	From       string     `json:"from"`
}

// UserJoinedMessage announces a new session to everyone else
type UserJoinedMessage struct {
	Type string   `json:"type"`
	User UserInfo `json:"user"`
}

// UserLeftMessage announces a departure
type UserLeftMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// ContentChange is the inbound body of a content_change frame
type ContentChange struct {
	Content json.RawMessage `json:"content"`
}

// CursorUpdate is the inbound body of a cursor_update frame
// Absent or null fields decode as zero, matching the client's "missing means 0" convention
type CursorUpdate struct {
	Position       int `json:"position"`
	SelectionStart int `json:"selectionStart"`
	SelectionEnd   int `json:"selectionEnd"`
}

// UnmarshalJSON accepts any JSON number and truncates it to a character offset
func (c *CursorUpdate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Position       *float64 `json:"position"`
		SelectionStart *float64 `json:"selectionStart"`
		SelectionEnd   *float64 `json:"selectionEnd"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Position = offset(raw.Position)
	c.SelectionStart = offset(raw.SelectionStart)
	c.SelectionEnd = offset(raw.SelectionEnd)
	return nil
}

// maxOffset keeps huge inputs inside the range where float64 holds integers exactly
const maxOffset = 1 << 53

func offset(v *float64) int {
	if v == nil {
		return 0
	}
	f := *v
	if f > maxOffset {
		f = maxOffset
	} else if f < -maxOffset {
		f = -maxOffset
	}
	return int(f)
}

// FormattingChange is the inbound body of a formatting_change frame
type FormattingChange struct {
	Formatting FormattingPatch `json:"formatting"`
}
