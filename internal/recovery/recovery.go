// Package recovery holds the bounded-retry policy applied to transient
// transport failures before a session is declared dead.
package recovery

import (
	"context"
	"time"

	"github.com/tristo-bit/skhoot-terminal/internal/events"
	"github.com/tristo-bit/skhoot-terminal/internal/registry"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// MaxReconnectAttempts is how many consecutive transport failures a session
// survives before it is marked inactive.
const MaxReconnectAttempts = 3

// Controller tracks per-session failure counts and demotes sessions that
// exhaust their attempts. It never retries a failed call itself; the caller
// (poller tick, next write) provides the retry cadence.
type Controller struct {
	tr          transport.Transport
	reg         *registry.Registry
	bus         *events.Bus
	maxAttempts int
}

// NewController wires the recovery policy to the registry and event bus.
// maxAttempts of 0 or less uses MaxReconnectAttempts.
func NewController(tr transport.Transport, reg *registry.Registry, bus *events.Bus, maxAttempts int) *Controller {
	if maxAttempts <= 0 {
		maxAttempts = MaxReconnectAttempts
	}
	return &Controller{tr: tr, reg: reg, bus: bus, maxAttempts: maxAttempts}
}

// MaxAttempts returns the configured bound.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// RecordFailure handles one transport-attributable write/read failure.
// It increments the session's counter, probes liveness, and returns true
// while the session should keep being retried. Once the bound is exceeded
// the session is flipped inactive, a terminal error event is emitted, and
// false is returned; no further automatic retry happens.
func (c *Controller) RecordFailure(ctx context.Context, sessionID string, cause error) (keepTrying bool) {
	if _, ok := c.reg.Get(sessionID); !ok {
		return false
	}

	attempts := c.reg.IncrementReconnect(sessionID)

	// A successful liveness probe means the blip was transient.
	if _, err := c.tr.SessionState(ctx, sessionID); err == nil {
		c.reg.ResetReconnect(sessionID)
		return true
	}

	if attempts < c.maxAttempts {
		return true
	}

	c.Demote(sessionID, cause)
	return false
}

// Demote marks a session inactive and announces the failure on the bus.
// Callers use it directly when a failure is known to be permanent, such as
// the backend reporting the session gone, where spending the retry budget
// would only delay the inevitable.
func (c *Controller) Demote(sessionID string, cause error) {
	c.reg.SetActive(sessionID, false)
	c.bus.Publish(events.Error{
		SessionID: sessionID,
		Err:       cause.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// RecordSuccess clears the session's failure count after any successful
// transport call.
func (c *Controller) RecordSuccess(sessionID string) {
	c.reg.ResetReconnect(sessionID)
}
