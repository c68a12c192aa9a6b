package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"collab-sync/internal/models"
	"collab-sync/internal/telemetry"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

/*
LEARNING: SESSION MANAGER

The manager owns the shared state objects and wires the pieces together:

  connection ─► Registry.Admit ─► init (new session only) ─► user_joined (others)
            └─► readPump ─► inbound channel ─► Router.Route ─► Broadcaster
  LivenessMonitor ─► depart()   writePump failure ─► depart()
  Broadcaster failure ─► depart()   connection closed ─► depart()

Every exit path funnels into depart(), and Registry.Remove reports success to
exactly one caller, so each session is announced as gone exactly once.
*/

var ErrShuttingDown = errors.New("server is shutting down")

const inboundQueueSize = 32

// Options tunes the collaboration core
type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	MaxMessageBytes   int64
	StrictFormatting  bool
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendQueueSize:     256,
		StrictFormatting:  true,
	}
}

// SessionManager manages all active sessions of the shared document
type SessionManager struct {
	opts Options

	registry    *Registry
	document    *DocumentState
	cursors     *CursorTable
	broadcaster *Broadcaster
	router      *Router
	liveness    *LivenessMonitor
	metrics     *telemetry.Metrics
	journal     PresenceJournal

	lifecycleMu  sync.Mutex // orders wg.Add against Shutdown
	shuttingDown atomic.Bool
	wg           sync.WaitGroup // active Serve calls
}

// NewSessionManager creates a session manager with empty shared state.
// A nil metrics set is replaced by one on a private registry.
func NewSessionManager(opts Options, metrics *telemetry.Metrics) *SessionManager {
	if metrics == nil {
		metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}
	if opts.SendQueueSize < 1 {
		opts.SendQueueSize = 1
	}

	sm := &SessionManager{
		opts:     opts,
		registry: NewRegistry(),
		document: NewDocumentState(),
		cursors:  NewCursorTable(),
		metrics:  metrics,
	}
	sm.broadcaster = NewBroadcaster(sm.registry, metrics, func(s *Session, err error) {
		sm.depart(s, telemetry.ReasonSendFailed)
	})
	sm.router = NewRouter(sm.document, sm.cursors, sm.broadcaster, metrics, opts.StrictFormatting)
	sm.liveness = NewLivenessMonitor(sm.registry, opts.HeartbeatInterval, opts.WriteTimeout, metrics, sm.depart)

	return sm
}

// SetPresenceJournal sets the journal for admissions and departures
func (sm *SessionManager) SetPresenceJournal(journal PresenceJournal) {
	sm.journal = journal
}

// Start begins liveness monitoring
func (sm *SessionManager) Start() {
	log.Println("🔄 Starting session manager...")
	sm.liveness.Start()
	log.Printf("✓ Session manager started (heartbeat every %s)", sm.opts.HeartbeatInterval)
}

// Serve admits conn and runs the session until it ends.
// It blocks for the lifetime of the connection; inbound frames are processed
// in arrival order on the calling goroutine.
func (sm *SessionManager) Serve(ctx context.Context, conn Conn, remoteAddr string) error {
	sm.lifecycleMu.Lock()
	if sm.shuttingDown.Load() {
		sm.lifecycleMu.Unlock()
		conn.Close()
		return ErrShuttingDown
	}
	sm.wg.Add(1)
	sm.lifecycleMu.Unlock()
	defer sm.wg.Done()

	if sm.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(sm.opts.MaxMessageBytes)
	}

	if existing := sm.registry.CountByRemoteAddr(hostOf(remoteAddr)); existing > 0 {
		log.Printf("⚠️  Warning: %s already has %d active connection(s)", remoteAddr, existing)
	}

	s := newSession(conn, remoteAddr, sm.opts.SendQueueSize)
	unreached, err := sm.admit(ctx, s)
	if err != nil {
		log.Printf("❌ Rejecting connection from %s: %v", remoteAddr, err)
		conn.Close()
		return fmt.Errorf("admission failed: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		s.markAlive(time.Now())
		return nil
	})

	sm.metrics.SessionsAdmitted.Inc()
	sm.metrics.ActiveSessions.Set(float64(sm.registry.Len()))
	log.Printf("👤 Client connected: %s from %s (active: %d)", s.ID, remoteAddr, sm.registry.Len())
	sm.record(s, models.PresenceJoined, "")

	go s.writePump(sm.opts.WriteTimeout, func(err error) {
		log.Printf("❌ Write to %s failed: %v", s.ID, err)
		sm.depart(s, telemetry.ReasonSendFailed)
	})

	sm.broadcaster.report(models.TypeUserJoined, unreached)

	inbound := make(chan []byte, inboundQueueSize)
	go sm.readPump(s, inbound)

	for {
		select {
		case <-s.Done():
			return nil
		case frame, ok := <-inbound:
			if !ok {
				sm.depart(s, telemetry.ReasonClosed)
				return nil
			}
			// select picks at random when both are ready; frames queued behind a departure are discarded
			if s.Closed() {
				return nil
			}
			sm.router.Route(ctx, s, frame)
		}
	}
}

// encodedDocument is the content and formatting part of init, encoded ahead of admission
type encodedDocument struct {
	fields  []byte // {"content":...,"formatting":...}
	version uint64
}

func (sm *SessionManager) encodeDocument() (encodedDocument, error) {
	snap := sm.document.Snapshot()
	fields, err := json.Marshal(snap)
	if err != nil {
		return encodedDocument{}, fmt.Errorf("failed to encode document: %w", err)
	}
	return encodedDocument{fields: fields, version: snap.Version}, nil
}

// admit registers s and queues its init and the user_joined announcements.
// The document is encoded before the registry lock is taken, so a large body
// does not hold up broadcasts; greet re-encodes it only if it changed meanwhile.
func (sm *SessionManager) admit(ctx context.Context, s *Session) ([]deliveryFailure, error) {
	doc, err := sm.encodeDocument()
	if err != nil {
		return nil, err
	}

	var unreached []deliveryFailure
	peers := 0
	err = sm.registry.Admit(s, func(s *Session, others []*Session) error {
		var err error
		peers = len(others)
		unreached, err = sm.greet(ctx, s, others, doc)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Sent initial state to %s with %d other users", s.ID, peers)
	return unreached, nil
}

// greet runs under the registry lock, before s becomes visible to broadcasts.
// It queues init for s and user_joined for exactly the sessions listed in that
// init, so every peer learns about s once: from its own init or from user_joined.
// Failed user_joined deliveries are returned for reporting once the lock is released.
func (sm *SessionManager) greet(ctx context.Context, s *Session, others []*Session, doc encodedDocument) ([]deliveryFailure, error) {
	if sm.shuttingDown.Load() {
		return nil, ErrShuttingDown
	}

	// An update applied after doc was encoded broadcasts to a registry snapshot
	// that may predate s, so init has to carry it
	if sm.document.Version() != doc.version {
		var err error
		if doc, err = sm.encodeDocument(); err != nil {
			return nil, err
		}
	}

	clients := make([]models.UserInfo, 0, len(others))
	for _, o := range others {
		clients = append(clients, o.Info())
	}

	header, err := json.Marshal(models.InitHeader{
		Type:     models.TypeInit,
		ClientID: s.ID,
		Clients:  clients,
		Cursors:  sm.cursors.SnapshotExcept(s.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode init: %w", err)
	}
	joinedPayload, err := json.Marshal(models.UserJoinedMessage{
		Type: models.TypeUserJoined,
		User: s.Info(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode user_joined: %w", err)
	}

	if err := s.Enqueue(joinObjects(header, doc.fields)); err != nil {
		return nil, fmt.Errorf("failed to queue init: %w", err)
	}
	sm.cursors.Update(s.ID, 0, 0, 0)

	_, failed := sm.broadcaster.deliver(ctx, models.TypeUserJoined, joinedPayload, others)
	return failed, nil
}

// joinObjects merges two encoded JSON objects with disjoint keys
func joinObjects(a, b []byte) []byte {
	if len(b) <= 2 {
		return a
	}
	if len(a) <= 2 {
		return b
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a[:len(a)-1]...)
	out = append(out, ',')
	return append(out, b[1:]...)
}

// readPump reads frames and hands them to the session's dispatch loop
// Learning: the read loop never touches shared state itself
func (sm *SessionManager) readPump(s *Session, inbound chan<- []byte) {
	defer close(inbound)

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Printf("❌ Client error: %s: %v", s.ID, err)
			}
			return
		}

		// Any inbound traffic proves the peer is alive
		s.markAlive(time.Now())

		select {
		case inbound <- frame:
		case <-s.Done():
			return
		}
	}
}

// depart removes s and announces it, once, whatever the cause
func (sm *SessionManager) depart(s *Session, reason string) {
	if _, removed := sm.registry.Remove(s.ID); !removed {
		return
	}
	// Close before dropping the cursor: a Route that saw the session open can
	// only touch an entry that still exists, and Remove clears it afterwards
	if reason == telemetry.ReasonShutdown {
		s.closeGoingAway(sm.opts.WriteTimeout)
	} else {
		s.Close()
	}
	sm.cursors.Remove(s.ID)

	sm.metrics.SessionsDeparted.WithLabelValues(reason).Inc()
	sm.metrics.ActiveSessions.Set(float64(sm.registry.Len()))
	log.Printf("👋 Client disconnected: %s (%s, active: %d)", s.ID, reason, sm.registry.Len())
	sm.record(s, models.PresenceLeft, reason)

	if sm.shuttingDown.Load() {
		return
	}

	if _, err := sm.broadcaster.Broadcast(context.Background(), models.TypeUserLeft, models.UserLeftMessage{
		Type:     models.TypeUserLeft,
		ClientID: s.ID,
	}, ""); err != nil {
		log.Printf("❌ Failed to announce departure of %s: %v", s.ID, err)
	}
}

func (sm *SessionManager) record(s *Session, kind models.PresenceKind, reason string) {
	if sm.journal == nil {
		return
	}
	event := &models.PresenceEvent{
		SessionID:     s.ID,
		DisplayName:   s.Name,
		Color:         s.Color,
		RemoteAddress: s.RemoteAddr,
		Kind:          kind,
		Reason:        reason,
		CreatedAt:     time.Now(),
	}
	if err := sm.journal.Submit(event); err != nil {
		log.Printf("⚠️  Presence journal: %v", err)
	}
}

// Document exposes the shared document for read-only diagnostics
func (sm *SessionManager) Document() DocumentSnapshot {
	return sm.document.Snapshot()
}

// Sessions returns the current roster in admission order
func (sm *SessionManager) Sessions() []models.SessionInfo {
	sessions := sm.registry.Snapshot()
	result := make([]models.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s.Details())
	}
	return result
}

// ActiveCount returns the number of admitted sessions
func (sm *SessionManager) ActiveCount() int {
	return sm.registry.Len()
}

// Shutdown stops liveness monitoring and closes every session
func (sm *SessionManager) Shutdown() {
	log.Println("🛑 Shutting down session manager...")

	sm.lifecycleMu.Lock()
	sm.shuttingDown.Store(true)
	sm.lifecycleMu.Unlock()

	sm.liveness.Stop()

	for _, s := range sm.registry.Snapshot() {
		sm.depart(s, telemetry.ReasonShutdown)
	}
	sm.wg.Wait()

	log.Println("✓ Session manager shutdown complete")
}
