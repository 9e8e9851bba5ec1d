// Package poller turns the transport's pull-based read primitive into a
// push-based stream of output lines. Polling is a compatibility shim for
// backends without a duplex connection; the Streamer interface is the seam
// where a true streaming transport would plug in instead.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/tristo-bit/skhoot-terminal/internal/broadcast"
	"github.com/tristo-bit/skhoot-terminal/internal/events"
	"github.com/tristo-bit/skhoot-terminal/internal/models"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// DefaultInterval is how often a session is polled when no interval is
// configured.
const DefaultInterval = 100 * time.Millisecond

// Streamer delivers a session's output into the broadcast store until
// stopped. Stop must take effect before the session's remote resource is
// released so no tick fires against a dead session.
type Streamer interface {
	Start(sessionID string, plainText bool)
	Stop(sessionID string)
	StopAll()
}

// FailureFunc is consulted on each read error. Returning false stops the
// session's loop permanently.
type FailureFunc func(sessionID string, err error) (keepPolling bool)

// PollingStreamer implements Streamer with a fixed-interval read loop per
// session.
type PollingStreamer struct {
	tr        transport.Transport
	out       *broadcast.Store
	bus       *events.Bus
	interval  time.Duration
	onFailure FailureFunc

	mu    sync.Mutex
	stops map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// NewPollingStreamer wires a poller to its transport, broadcast store, and
// event bus. onFailure may be nil, in which case any read error stops the
// session's loop.
func NewPollingStreamer(tr transport.Transport, out *broadcast.Store, bus *events.Bus, interval time.Duration, onFailure FailureFunc) *PollingStreamer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if onFailure == nil {
		onFailure = func(string, error) bool { return false }
	}
	return &PollingStreamer{
		tr:        tr,
		out:       out,
		bus:       bus,
		interval:  interval,
		onFailure: onFailure,
		stops:     make(map[string]context.CancelFunc),
	}
}

// Start begins polling a session. Starting an already-polled session is a
// no-op. When plainText is set, ANSI control sequences are stripped before
// lines are published.
func (p *PollingStreamer) Start(sessionID string, plainText bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, running := p.stops[sessionID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.stops[sessionID] = cancel
	p.wg.Add(1)
	go p.loop(ctx, sessionID, plainText)
}

// Stop halts a session's loop. Safe to call for unknown or already-stopped
// sessions.
func (p *PollingStreamer) Stop(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.stops[sessionID]; ok {
		cancel()
		delete(p.stops, sessionID)
	}
}

// StopAll halts every loop and waits for them to drain.
func (p *PollingStreamer) StopAll() {
	p.mu.Lock()
	for id, cancel := range p.stops {
		cancel()
		delete(p.stops, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *PollingStreamer) loop(ctx context.Context, sessionID string, plainText bool) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunks, err := p.tr.Read(ctx, sessionID)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				// Transient errors retry on the next tick by virtue of
				// the timer; the failure hook decides when to give up.
				if !p.onFailure(sessionID, err) {
					p.Stop(sessionID)
					return
				}
				continue
			}
			p.publish(sessionID, chunks, plainText)
		}
	}
}

// publish emits one output line per chunk, preserving arrival order.
func (p *PollingStreamer) publish(sessionID string, chunks []models.Chunk, plainText bool) {
	for _, c := range chunks {
		content := c.Content
		if plainText {
			content = StripANSI(content)
		}
		ts := time.UnixMilli(c.Timestamp)
		if c.Timestamp == 0 {
			ts = time.Now().UTC()
		}
		line := models.OutputLine{
			SessionID: sessionID,
			Type:      c.Type,
			Content:   content,
			Timestamp: ts,
		}
		p.out.Append(sessionID, line)
		p.bus.Publish(events.Data{SessionID: sessionID, Content: content, Type: c.Type})
	}
}
