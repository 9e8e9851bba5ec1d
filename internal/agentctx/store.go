// Package agentctx maps an agent conversation to the terminal session it
// owns. The policy is one persistent terminal per conversation unless a
// caller explicitly forces another, so tool calls can say "my terminal"
// without carrying raw session ids across turns.
package agentctx

import (
	"sync"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

// Store holds terminal-to-conversation bindings. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	byTerminal map[string]models.TerminalBinding
	byAgent    map[string]string // agent session id -> terminal id
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byTerminal: make(map[string]models.TerminalBinding),
		byAgent:    make(map[string]string),
	}
}

// Bind records a terminal as owned by a conversation. Binding a second
// terminal for the same conversation replaces the default: the previous
// terminal stays alive but no longer resolves implicitly.
func (s *Store) Bind(b models.TerminalBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byAgent[b.AgentSessionID]; ok && prev != b.TerminalID {
		delete(s.byTerminal, prev)
	}
	s.byTerminal[b.TerminalID] = b
	if b.AgentSessionID != "" {
		s.byAgent[b.AgentSessionID] = b.TerminalID
	}
}

// TerminalForAgent resolves a conversation's default terminal.
func (s *Store) TerminalForAgent(agentSessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAgent[agentSessionID]
	return id, ok
}

// Binding returns the binding for a terminal id.
func (s *Store) Binding(terminalID string) (models.TerminalBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byTerminal[terminalID]
	return b, ok
}

// Remove drops the binding for a terminal, if any. Called when the terminal
// closes or the owning conversation ends.
func (s *Store) Remove(terminalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byTerminal[terminalID]
	if !ok {
		return
	}
	delete(s.byTerminal, terminalID)
	if cur, ok := s.byAgent[b.AgentSessionID]; ok && cur == terminalID {
		delete(s.byAgent, b.AgentSessionID)
	}
}

// RemoveAgent drops every binding owned by a conversation.
func (s *Store) RemoveAgent(agentSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if terminalID, ok := s.byAgent[agentSessionID]; ok {
		delete(s.byTerminal, terminalID)
		delete(s.byAgent, agentSessionID)
	}
}

// List returns all current bindings.
func (s *Store) List() []models.TerminalBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TerminalBinding, 0, len(s.byTerminal))
	for _, b := range s.byTerminal {
		out = append(out, b)
	}
	return out
}
