package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"collab-sync/internal/models"
)

/*
LEARNING: WORKER POOL IN FRONT OF A DATABASE

Admissions and departures happen on hot paths (the read loop, the liveness
sweep, the broadcast fan-out). None of them may wait on a database, so events
go through a bounded queue drained by a few workers:

- Submit never blocks: a full queue drops the event and says so
- Shutdown stops intake, then lets workers drain what is already queued
*/

var (
	ErrJournalFull   = errors.New("presence journal queue full")
	ErrJournalClosed = errors.New("presence journal closed")
)

const journalWriteTimeout = 5 * time.Second

// PresenceJournalImpl writes presence events through a worker pool
type PresenceJournalImpl struct {
	repo PresenceRepository

	jobs    chan *models.PresenceEvent
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex // guards closed against concurrent Submit
	closed bool
}

// NewPresenceJournal creates the pool; call Start to spawn the workers
func NewPresenceJournal(repo PresenceRepository, numWorkers, queueSize int) *PresenceJournalImpl {
	return &PresenceJournalImpl{
		repo:    repo,
		jobs:    make(chan *models.PresenceEvent, queueSize),
		workers: numWorkers,
	}
}

// Start spawns the workers
func (j *PresenceJournalImpl) Start() {
	log.Printf("🔧 Starting presence journal with %d workers", j.workers)

	for i := 0; i < j.workers; i++ {
		j.wg.Add(1)
		go j.worker(i)
	}
}

func (j *PresenceJournalImpl) worker(id int) {
	defer j.wg.Done()

	// Ranging drains the queue after Shutdown closes it
	for event := range j.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		if err := j.repo.Record(ctx, event); err != nil {
			log.Printf("  Journal worker %d error: %v", id, err)
		}
		cancel()
	}
}

// Submit queues an event without blocking
func (j *PresenceJournalImpl) Submit(event *models.PresenceEvent) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrJournalClosed
	}

	select {
	case j.jobs <- event:
		return nil
	default:
		return ErrJournalFull
	}
}

// Shutdown stops accepting events and waits for the queue to drain
func (j *PresenceJournalImpl) Shutdown() {
	log.Println("🛑 Shutting down presence journal...")

	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.jobs)
	j.mu.Unlock()

	j.wg.Wait()

	log.Println("✓ Presence journal shutdown complete")
}

// QueueLength returns current number of pending events
func (j *PresenceJournalImpl) QueueLength() int {
	return len(j.jobs)
}
