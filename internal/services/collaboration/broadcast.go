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

/*
LEARNING: FAN-OUT WITHOUT HEAD-OF-LINE BLOCKING

Broadcast never writes to a socket itself. It serializes the message once and
drops the bytes into each recipient's buffered send queue; every session has
its own writer goroutine. A slow peer fills only its own queue, and a full
queue is treated as a delivery failure for that peer alone.
*/

// Broadcaster delivers one message to every session except an optional sender
type Broadcaster struct {
	registry *Registry
	metrics  *telemetry.Metrics

	// onFailure is called once per failed recipient, after the fan-out loop
	onFailure func(s *Session, err error)
}

func NewBroadcaster(registry *Registry, metrics *telemetry.Metrics, onFailure func(*Session, error)) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		metrics:   metrics,
		onFailure: onFailure,
	}
}

// Broadcast serializes msg and sends it to all sessions but excludeID
// An empty excludeID sends to everyone.
func (b *Broadcaster) Broadcast(ctx context.Context, msgType string, msg any, excludeID string) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s: %w", msgType, err)
	}
	return b.BroadcastRaw(ctx, msgType, payload, excludeID), nil
}

// BroadcastRaw sends pre-encoded bytes and returns how many recipients accepted them
func (b *Broadcaster) BroadcastRaw(ctx context.Context, msgType string, payload []byte, excludeID string) int {
	var recipients []*Session
	b.registry.ForEachExcept(excludeID, func(s *Session) {
		recipients = append(recipients, s)
	})

	sent, failed := b.deliver(ctx, msgType, payload, recipients)
	b.report(msgType, failed)
	return sent
}

type deliveryFailure struct {
	session *Session
	err     error
}

// deliver queues payload for each recipient without reporting failures.
// It takes no registry lock, so it may run inside Registry.Admit.
func (b *Broadcaster) deliver(ctx context.Context, msgType string, payload []byte, recipients []*Session) (int, []deliveryFailure) {
	var failed []deliveryFailure
	sent := 0

	for _, s := range recipients {
		if err := s.Enqueue(payload); err != nil {
			// Already departed while we were iterating: nothing to report
			if !errors.Is(err, ErrSessionClosed) {
				failed = append(failed, deliveryFailure{s, err})
			}
			continue
		}
		sent++
	}

	b.metrics.Broadcasts.WithLabelValues(msgType).Inc()
	middleware.AddSpanEvent(ctx, "broadcast",
		attribute.String("message.type", msgType),
		attribute.Int("recipients", sent),
		attribute.Int("failed", len(failed)),
	)
	if msgType != models.TypeContentUpdate {
		log.Printf("📡 Broadcasted %s to %d clients", msgType, sent)
	}

	return sent, failed
}

// report hands each failed recipient to onFailure; never call it under the registry lock
func (b *Broadcaster) report(msgType string, failed []deliveryFailure) {
	for _, f := range failed {
		b.metrics.DeliveryFailures.Inc()
		log.Printf("❌ Error broadcasting %s to %s: %v", msgType, f.session.ID, f.err)
		if b.onFailure != nil {
			b.onFailure(f.session, f.err)
		}
	}
}
