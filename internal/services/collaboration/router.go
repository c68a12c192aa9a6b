package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"collab-sync/internal/middleware"
	"collab-sync/internal/models"
	"collab-sync/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Router applies inbound frames to the shared state and fans them out
type Router struct {
	document         *DocumentState
	cursors          *CursorTable
	broadcaster      *Broadcaster
	metrics          *telemetry.Metrics
	strictFormatting bool
}

func NewRouter(document *DocumentState, cursors *CursorTable, broadcaster *Broadcaster, metrics *telemetry.Metrics, strictFormatting bool) *Router {
	return &Router{
		document:         document,
		cursors:          cursors,
		broadcaster:      broadcaster,
		metrics:          metrics,
		strictFormatting: strictFormatting,
	}
}

// Route handles one inbound frame from s.
// A malformed frame is logged and dropped; the returned error is informational
// and never a reason to close the connection.
func (r *Router) Route(ctx context.Context, s *Session, frame []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return r.drop(s, fmt.Errorf("%w: %v", ErrMalformedFrame, err))
	}
	if env.Type == "" {
		return r.drop(s, fmt.Errorf("%w: missing type", ErrMalformedFrame))
	}
	// A departed session no longer changes shared state or reaches anyone
	if s.Closed() {
		return ErrSessionClosed
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket.ProcessMessage",
		attribute.String("session.id", s.ID),
		attribute.String("message.type", env.Type),
		attribute.Int("message.size", len(frame)),
	)
	defer span.End()

	r.metrics.MessagesReceived.WithLabelValues(env.Type).Inc()

	var err error
	switch env.Type {
	case models.TypeContentChange:
		err = r.handleContentChange(ctx, s, frame)
	case models.TypeCursorUpdate:
		err = r.handleCursorUpdate(ctx, s, frame)
	case models.TypeFormattingChange:
		err = r.handleFormattingChange(ctx, s, frame)
	default:
		// Unknown types are relayed verbatim so newer clients can talk to each other
		r.broadcaster.BroadcastRaw(ctx, env.Type, frame, s.ID)
	}

	if err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, ErrMalformedFrame) || errors.Is(err, models.ErrInvalidFormatting) {
			return r.drop(s, err)
		}
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		log.Printf("❌ Error processing message from %s: %v", s.ID, err)
	}
	return err
}

func (r *Router) handleContentChange(ctx context.Context, s *Session, frame []byte) error {
	var msg models.ContentChange
	if err := json.Unmarshal(frame, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Content == nil {
		msg.Content = models.EmptyContent
	}

	r.document.ReplaceBody(msg.Content)

	_, err := r.broadcaster.Broadcast(ctx, models.TypeContentUpdate, models.ContentUpdateMessage{
		Type:    models.TypeContentUpdate,
		Content: msg.Content,
		From:    s.ID,
	}, s.ID)
	return err
}

func (r *Router) handleCursorUpdate(ctx context.Context, s *Session, frame []byte) error {
	var msg models.CursorUpdate
	if err := json.Unmarshal(frame, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	state, ok := r.cursors.Move(s.ID, msg.Position, msg.SelectionStart, msg.SelectionEnd)
	if !ok {
		return ErrSessionClosed
	}

	_, err := r.broadcaster.Broadcast(ctx, models.TypeCursorPosition, models.CursorPositionMessage{
		Type:           models.TypeCursorPosition,
		ClientID:       s.ID,
		Position:       state.Position,
		SelectionStart: state.SelectionStart,
		SelectionEnd:   state.SelectionEnd,
		UserColor:      s.Color,
	}, s.ID)
	return err
}

func (r *Router) handleFormattingChange(ctx context.Context, s *Session, frame []byte) error {
	var msg models.FormattingChange
	if err := json.Unmarshal(frame, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if r.strictFormatting {
		if err := msg.Formatting.Validate(); err != nil {
			return err
		}
	}

	merged := r.document.MergeFormatting(msg.Formatting)

	_, err := r.broadcaster.Broadcast(ctx, models.TypeFormattingUpdate, models.FormattingUpdateMessage{
		Type:       models.TypeFormattingUpdate,
		Formatting: merged,
		From:       s.ID,
	}, s.ID)
	return err
}

func (r *Router) drop(s *Session, err error) error {
	r.metrics.DecodeErrors.Inc()
	log.Printf("⚠️  Dropping frame from %s: %v", s.ID, err)
	return err
}
