package collaboration

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"collab-sync/internal/models"

	"github.com/gorilla/websocket"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Conn is the part of *websocket.Conn a session uses.
// Close and WriteControl may be called concurrently with the other methods.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
	Close() error
}

// Session represents one admitted connection
// Identity fields are set at admission and never change afterwards.
type Session struct {
	ID          string
	Name        string
	Color       string
	RemoteAddr  string
	ConnectedAt time.Time

	seq  uint64 // admission order, for stable rosters
	conn Conn
	send chan []byte // Buffered channel for outbound frames, drained by writePump
	done chan struct{}

	closeOnce    sync.Once
	lastLiveness atomic.Int64 // unix nanos
	awaitingPong atomic.Bool
}

func newSession(conn Conn, remoteAddr string, queueSize int) *Session {
	now := time.Now()
	s := &Session{
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		conn:        conn,
		send:        make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
	s.lastLiveness.Store(now.UnixNano())
	return s
}

// Info is the public roster entry of the session
func (s *Session) Info() models.UserInfo {
	return models.UserInfo{ID: s.ID, Name: s.Name, Color: s.Color}
}

// Details is the diagnostic view of the session
func (s *Session) Details() models.SessionInfo {
	return models.SessionInfo{
		ID:             s.ID,
		Name:           s.Name,
		Color:          s.Color,
		RemoteAddress:  s.RemoteAddr,
		ConnectedAt:    s.ConnectedAt,
		LastLivenessAt: s.LastLivenessAt(),
	}
}

// Enqueue queues a frame for delivery without blocking.
// A full queue means the peer is not keeping up; the caller treats it as a delivery failure.
func (s *Session) Enqueue(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSendQueueFull
	}
}

// Done is closed once the session has been closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has departed
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close terminates the transport. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// closeGoingAway tells the peer the server is leaving before terminating
func (s *Session) closeGoingAway(writeTimeout time.Duration) {
	if s.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	}
	s.Close()
}

// LastLivenessAt is the last time the peer proved it was alive
func (s *Session) LastLivenessAt() time.Time {
	return time.Unix(0, s.lastLiveness.Load())
}

func (s *Session) markAlive(at time.Time) {
	s.lastLiveness.Store(at.UnixNano())
	s.awaitingPong.Store(false)
}

func (s *Session) probe(writeTimeout time.Duration) error {
	if s.conn == nil {
		return ErrSessionClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// writePump writes queued frames to the connection
// Learning: A single writer per connection keeps per-recipient ordering intact
func (s *Session) writePump(writeTimeout time.Duration, onError func(error)) {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				onError(err)
				return
			}
		}
	}
}
