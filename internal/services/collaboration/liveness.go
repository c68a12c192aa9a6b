package collaboration

import (
	"log"
	"sync"
	"time"

	"collab-sync/internal/telemetry"
)

/*
LEARNING: TWO-CYCLE HEARTBEAT

Each session is either ALIVE or AWAITING_PONG:

  ALIVE --(probe sent)--> AWAITING_PONG --(pong)--> ALIVE
  AWAITING_PONG --(next sweep, still no pong)--> evicted

A peer therefore gets at least one full interval (up to almost two, depending
on when it went quiet) to answer before it is evicted. That tolerates
transient stalls at the cost of slower detection; for stricter detection,
shorten the interval rather than the grace.
*/

// LivenessMonitor probes every session on a fixed period and evicts the silent ones
type LivenessMonitor struct {
	registry     *Registry
	interval     time.Duration
	writeTimeout time.Duration
	metrics      *telemetry.Metrics

	// depart removes a session and announces its departure
	depart func(s *Session, reason string)

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewLivenessMonitor(registry *Registry, interval, writeTimeout time.Duration, metrics *telemetry.Metrics, depart func(*Session, string)) *LivenessMonitor {
	return &LivenessMonitor{
		registry:     registry,
		interval:     interval,
		writeTimeout: writeTimeout,
		metrics:      metrics,
		depart:       depart,
		done:         make(chan struct{}),
	}
}

// Start runs the sweep loop in its own goroutine
func (m *LivenessMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				_, evicted := m.Sweep()
				log.Printf("💓 Heartbeat check: %d active clients (%d evicted)", m.registry.Len(), evicted)
			}
		}
	}()
}

// Stop ends the sweep loop and waits for it
func (m *LivenessMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// Sweep runs one probe cycle
func (m *LivenessMonitor) Sweep() (probed, evicted int) {
	for _, s := range m.registry.Snapshot() {
		// Still flagged from the previous cycle: the last probe went unanswered
		if !s.awaitingPong.CompareAndSwap(false, true) {
			log.Printf("💀 Terminating inactive connection %s (last seen %s ago)",
				s.ID, time.Since(s.LastLivenessAt()).Round(time.Millisecond))
			m.metrics.LivenessEvictions.Inc()
			m.depart(s, telemetry.ReasonLiveness)
			evicted++
			continue
		}

		if err := s.probe(m.writeTimeout); err != nil {
			log.Printf("❌ Liveness probe to %s failed: %v", s.ID, err)
			m.depart(s, telemetry.ReasonSendFailed)
			continue
		}
		m.metrics.LivenessProbes.Inc()
		probed++
	}
	return probed, evicted
}
