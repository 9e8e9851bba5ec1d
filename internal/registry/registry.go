// Package registry holds the authoritative local record of terminal
// sessions. Everything else in the session layer refers to sessions by id
// and consults the registry for lifecycle flags.
package registry

import (
	"sync"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

// Registry is an in-memory table of sessions. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*models.Session)}
}

// Register records a session. Registering an id that already exists
// replaces the record.
func (r *Registry) Register(s *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns a copy of the session record, or false if unknown. A copy is
// returned so callers cannot mutate registry state without going through
// the mutator methods.
func (r *Registry) Get(id string) (models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return *s, true
}

// Remove deletes a session record. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListActive returns the sessions currently marked active.
func (r *Registry) ListActive() []models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	return out
}

// List returns all session records, active or not.
func (r *Registry) List() []models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// SetActive flips the active flag. Unknown ids are ignored.
func (r *Registry) SetActive(id string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.IsActive = active
	}
}

// IncrementReconnect bumps the session's reconnect counter and returns the
// new value. Unknown ids return 0.
func (r *Registry) IncrementReconnect(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return 0
	}
	s.ReconnectAttempts++
	return s.ReconnectAttempts
}

// ResetReconnect zeroes the session's reconnect counter.
func (r *Registry) ResetReconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.ReconnectAttempts = 0
	}
}
