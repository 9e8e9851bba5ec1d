// Package events is the typed publish/subscribe channel the session layer
// uses for cross-component signaling. It replaces stringly-typed global
// event names with one event type per occurrence.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

// Event is implemented by every event variant published on the bus.
type Event interface {
	EventSessionID() string
}

// Data carries one decoded output chunk.
type Data struct {
	SessionID string            `json:"sessionId"`
	Content   string            `json:"data"`
	Type      models.OutputType `json:"type"`
}

// SessionCreated announces a new terminal session.
type SessionCreated struct {
	SessionID string             `json:"sessionId"`
	Kind      models.SessionKind `json:"type"`
}

// SessionClosed announces that a session is gone.
type SessionClosed struct {
	SessionID string `json:"sessionId"`
}

// Error announces a terminal failure on a session, after recovery has been
// exhausted or for conditions that are never retried.
type Error struct {
	SessionID string    `json:"sessionId"`
	Err       string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentTerminalCreated hints the UI to auto-surface a terminal an agent
// just created.
type AgentTerminalCreated struct {
	SessionID      string             `json:"sessionId"`
	Kind           models.SessionKind `json:"type"`
	CreatedBy      models.Creator     `json:"createdBy"`
	WorkspaceRoot  string             `json:"workspaceRoot,omitempty"`
	AgentSessionID string             `json:"agentSessionId"`
}

// FocusSession hints the UI to expand a compact view into the full panel.
type FocusSession struct {
	SessionID string `json:"sessionId"`
}

func (e Data) EventSessionID() string                 { return e.SessionID }
func (e SessionCreated) EventSessionID() string       { return e.SessionID }
func (e SessionClosed) EventSessionID() string        { return e.SessionID }
func (e Error) EventSessionID() string                { return e.SessionID }
func (e AgentTerminalCreated) EventSessionID() string { return e.SessionID }
func (e FocusSession) EventSessionID() string         { return e.SessionID }

const subscriberBufCap = 100

// Bus fans events out to any number of listeners. Delivery is
// fire-and-forget: a listener whose channel is full misses the event rather
// than blocking the publisher.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string]chan Event)}
}

// Subscribe registers a listener. The returned channel is closed by
// Unsubscribe or Close.
func (b *Bus) Subscribe() (id string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id = uuid.New().String()
	c := make(chan Event, subscriberBufCap)
	b.listeners[id] = c
	return id, c
}

// Unsubscribe removes a listener and closes its channel. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.listeners[id]; ok {
		close(c)
		delete(b.listeners, id)
	}
}

// Publish delivers the event to every current listener without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.listeners {
		select {
		case c <- e:
		default:
			// Listener is not keeping up; drop rather than stall the bus.
		}
	}
}

// Close shuts down every listener channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.listeners {
		close(c)
		delete(b.listeners, id)
	}
}
