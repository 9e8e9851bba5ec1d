// Package broadcast is the single source of truth for what a session has
// printed. Every view, from the full terminal panel to any number of
// embedded mini views, reads from the same per-session buffer, so they can
// never show diverging scrollback.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

// DefaultCapacity is the per-session line retention used when no explicit
// capacity is configured.
const DefaultCapacity = 1000

// SubscribeFunc receives buffered history on attach and each appended line
// afterwards. The lines slice is in arrival order and must not be mutated.
// Callbacks run with the session's buffer lock held and must not call back
// into the store; keep them short and hand heavy work to a channel.
type SubscribeFunc func(lines []models.OutputLine)

type sessionBuffer struct {
	mu          sync.Mutex
	ring        *ringBuffer
	subscribers map[string]SubscribeFunc
}

// Store holds one bounded buffer plus subscriber list per session id.
type Store struct {
	mu       sync.Mutex
	capacity int
	buffers  map[string]*sessionBuffer
}

// NewStore creates a store whose per-session buffers hold up to capacity
// lines. Non-positive capacities fall back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		buffers:  make(map[string]*sessionBuffer),
	}
}

// buffer returns the session's buffer, creating it lazily on first output
// or first subscription.
func (s *Store) buffer(sessionID string) *sessionBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[sessionID]
	if !ok {
		b = &sessionBuffer{
			ring:        newRingBuffer(s.capacity),
			subscribers: make(map[string]SubscribeFunc),
		}
		s.buffers[sessionID] = b
	}
	return b
}

// Append adds a line to the session's buffer and synchronously notifies the
// subscribers attached at the start of the append. A subscriber attaching
// mid-append waits, receives its catch-up including this line, and is
// notified from the next append on.
func (s *Store) Append(sessionID string, line models.OutputLine) {
	b := s.buffer(sessionID)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring.write(line)
	single := []models.OutputLine{line}
	for _, fn := range b.subscribers {
		fn(single)
	}
}

// Subscribe attaches a callback to a session's output. The callback is
// invoked once immediately with the current buffered content (possibly
// empty), then once per subsequent append until the returned unsubscribe
// function is called.
func (s *Store) Subscribe(sessionID string, fn SubscribeFunc) (unsubscribe func()) {
	b := s.buffer(sessionID)
	b.mu.Lock()
	history := b.ring.snapshot()
	subID := uuid.New().String()
	b.subscribers[subID] = fn
	fn(history)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, subID)
	}
}

// Output returns a snapshot of the session's buffered lines in order.
// Late-mounting views use this to render current state without waiting for
// the next push.
func (s *Store) Output(sessionID string) []models.OutputLine {
	s.mu.Lock()
	b, ok := s.buffers[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.snapshot()
}

// Len reports how many lines the session's buffer currently holds.
func (s *Store) Len(sessionID string) int {
	s.mu.Lock()
	b, ok := s.buffers[sessionID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.len()
}

// Drop clears a session's buffer and subscriber list. Called on explicit
// session close; recovery failure deliberately leaves the buffer intact so
// the output stays inspectable.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, sessionID)
}
