package collaboration

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrIDExhausted = errors.New("could not allocate a unique session id")

const maxIDAttempts = 16

// Registry holds the set of admitted sessions
// Learning: the membership map is the single source of truth for "who receives broadcasts"
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	counter  uint64 // connections admitted so far, guarded by mu

	newID    func(n uint64) string
	newColor func() string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		newID:    defaultSessionID,
		newColor: randomColor,
	}
}

// defaultSessionID yields ids like user_3_9f1c2a
func defaultSessionID(n uint64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("user_%d_%s", n, suffix)
}

func randomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}

// Admit assigns identity to a new session and stores it.
// greet runs under the registry lock with the roster of the other sessions, so
// nothing admitted or removed concurrently can slip between the roster it
// observes and the moment the new session becomes visible to broadcasts.
// If greet fails, the session is not stored.
func (r *Registry) Admit(s *Session, greet func(s *Session, others []*Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	n := r.counter

	id := ""
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := r.newID(n)
		if _, taken := r.sessions[candidate]; !taken {
			id = candidate
			break
		}
	}
	if id == "" {
		return ErrIDExhausted
	}

	s.ID = id
	s.Name = fmt.Sprintf("User %d", n)
	s.Color = r.newColor()
	s.seq = n

	if greet != nil {
		if err := greet(s, r.sortedLocked()); err != nil {
			return err
		}
	}

	r.sessions[id] = s
	return nil
}

// Remove deletes a session. It reports true only for the call that actually
// removed it, which lets callers announce a departure exactly once.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return s, true
}

// Get returns the session with the given id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Snapshot returns all admitted sessions in admission order
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedLocked()
}

// ForEachExcept calls fn for every session other than id.
// It iterates over a point-in-time copy, so fn may remove sessions (including
// others in the copy) without any session being skipped or visited twice.
func (r *Registry) ForEachExcept(id string, fn func(*Session)) {
	for _, s := range r.Snapshot() {
		if s.ID == id {
			continue
		}
		fn(s)
	}
}

// Len returns the number of admitted sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// CountByRemoteAddr counts admitted sessions coming from the given host
func (r *Registry) CountByRemoteAddr(host string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.sessions {
		if hostOf(s.RemoteAddr) == host {
			count++
		}
	}
	return count
}

func (r *Registry) sortedLocked() []*Session {
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
