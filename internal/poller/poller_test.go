package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristo-bit/skhoot-terminal/internal/broadcast"
	"github.com/tristo-bit/skhoot-terminal/internal/events"
	"github.com/tristo-bit/skhoot-terminal/internal/models"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// scriptedTransport serves queued read results one batch per tick.
type scriptedTransport struct {
	mu      sync.Mutex
	batches [][]models.Chunk
	readErr error
	reads   int
}

func (s *scriptedTransport) queue(chunks ...models.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, chunks)
}

func (s *scriptedTransport) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *scriptedTransport) Read(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *scriptedTransport) CreateSession(context.Context, models.SessionKind, int, int) (string, error) {
	return "", errors.New("not implemented")
}
func (s *scriptedTransport) Write(context.Context, string, string) error    { return nil }
func (s *scriptedTransport) Resize(context.Context, string, int, int) error { return nil }
func (s *scriptedTransport) CloseSession(context.Context, string) error     { return nil }
func (s *scriptedTransport) ListSessions(context.Context) ([]models.RemoteSession, error) {
	return nil, nil
}
func (s *scriptedTransport) SessionHistory(context.Context, string) ([]models.Chunk, error) {
	return nil, nil
}
func (s *scriptedTransport) SessionState(context.Context, string) (string, error) {
	return "active", nil
}

var _ transport.Transport = (*scriptedTransport)(nil)

func chunk(content string) models.Chunk {
	return models.Chunk{Type: models.OutputStdout, Content: content, Timestamp: time.Now().UnixMilli()}
}

func TestPollingStreamer_DeliversChunksInOrder(t *testing.T) {
	tr := &scriptedTransport{}
	out := broadcast.NewStore(100)
	bus := events.NewBus()
	p := NewPollingStreamer(tr, out, bus, 5*time.Millisecond, nil)
	defer p.StopAll()

	for i := 0; i < 5; i++ {
		tr.queue(chunk(fmt.Sprintf("line-%d", i)))
	}

	p.Start("s1", false)

	require.Eventually(t, func() bool {
		return out.Len("s1") == 5
	}, time.Second, 5*time.Millisecond)

	lines := out.Output("s1")
	for i, l := range lines {
		assert.Equal(t, fmt.Sprintf("line-%d", i), l.Content, "arrival order must be preserved")
		assert.Equal(t, "s1", l.SessionID)
		assert.False(t, l.Timestamp.IsZero())
	}
}

func TestPollingStreamer_PublishesBusEvents(t *testing.T) {
	tr := &scriptedTransport{}
	out := broadcast.NewStore(100)
	bus := events.NewBus()
	_, ch := bus.Subscribe()
	p := NewPollingStreamer(tr, out, bus, 5*time.Millisecond, nil)
	defer p.StopAll()

	tr.queue(chunk("hello"))
	p.Start("s1", false)

	select {
	case e := <-ch:
		data, ok := e.(events.Data)
		require.True(t, ok)
		assert.Equal(t, "s1", data.SessionID)
		assert.Equal(t, "hello", data.Content)
		assert.Equal(t, models.OutputStdout, data.Type)
	case <-time.After(time.Second):
		t.Fatal("no bus event within deadline")
	}
}

func TestPollingStreamer_StripsANSIWhenPlainText(t *testing.T) {
	tr := &scriptedTransport{}
	out := broadcast.NewStore(100)
	p := NewPollingStreamer(tr, out, events.NewBus(), 5*time.Millisecond, nil)
	defer p.StopAll()

	tr.queue(chunk("\x1b[32mok\x1b[0m done"))
	p.Start("s1", true)

	require.Eventually(t, func() bool { return out.Len("s1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ok done", out.Output("s1")[0].Content)
}

func TestPollingStreamer_KeepsEscapesForShellViews(t *testing.T) {
	tr := &scriptedTransport{}
	out := broadcast.NewStore(100)
	p := NewPollingStreamer(tr, out, events.NewBus(), 5*time.Millisecond, nil)
	defer p.StopAll()

	raw := "\x1b[32mok\x1b[0m"
	tr.queue(chunk(raw))
	p.Start("s1", false)

	require.Eventually(t, func() bool { return out.Len("s1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, raw, out.Output("s1")[0].Content, "full panel renders escapes itself")
}

func TestPollingStreamer_FailureHookStopsLoop(t *testing.T) {
	tr := &scriptedTransport{readErr: errors.New("session gone")}
	out := broadcast.NewStore(100)

	var mu sync.Mutex
	failures := 0
	hook := func(sessionID string, err error) bool {
		mu.Lock()
		defer mu.Unlock()
		failures++
		return failures < 3
	}

	p := NewPollingStreamer(tr, out, events.NewBus(), 5*time.Millisecond, hook)
	defer p.StopAll()

	p.Start("s1", false)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failures == 3
	}, time.Second, 5*time.Millisecond)

	// Loop is dead: no further reads after the hook said stop.
	settled := tr.readCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, tr.readCount(), "no ticks after permanent stop")
}

func TestPollingStreamer_StopsWhenBackendForgetsSession(t *testing.T) {
	// A backend that has restarted answers 404 for every session it used
	// to own. The loop must reach the failure hook and die, not tick
	// against the dead id forever.
	var reads atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reads.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()
	tr := transport.NewHTTPTransport(srv.URL, srv.Client())

	var mu sync.Mutex
	hookCalls := 0
	var hookErr error
	hook := func(sessionID string, err error) bool {
		mu.Lock()
		defer mu.Unlock()
		hookCalls++
		hookErr = err
		return false
	}

	p := NewPollingStreamer(tr, broadcast.NewStore(10), events.NewBus(), 5*time.Millisecond, hook)
	defer p.StopAll()

	p.Start("gone-session", false)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hookCalls >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, hookCalls)
	assert.ErrorIs(t, hookErr, transport.ErrSessionNotFound,
		"the hook must see the session-gone signal, not a silent empty read")
	mu.Unlock()

	settled := reads.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, reads.Load(), "no further polls once the backend says gone")
}

func TestPollingStreamer_NilHookStopsOnFirstError(t *testing.T) {
	tr := &scriptedTransport{readErr: errors.New("boom")}
	p := NewPollingStreamer(tr, broadcast.NewStore(10), events.NewBus(), 5*time.Millisecond, nil)
	defer p.StopAll()

	p.Start("s1", false)

	require.Eventually(t, func() bool { return tr.readCount() >= 1 }, time.Second, 5*time.Millisecond)
	settled := tr.readCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, tr.readCount())
}

func TestPollingStreamer_StartIsIdempotent(t *testing.T) {
	tr := &scriptedTransport{}
	p := NewPollingStreamer(tr, broadcast.NewStore(10), events.NewBus(), 5*time.Millisecond, nil)
	defer p.StopAll()

	p.Start("s1", false)
	p.Start("s1", false)

	require.Eventually(t, func() bool { return tr.readCount() >= 3 }, time.Second, 5*time.Millisecond)

	p.StopAll()
	after := tr.readCount()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, tr.readCount(), after+1, "a duplicate Start must not leave a second loop running")
}

func TestPollingStreamer_StopUnknownSessionIsNoOp(t *testing.T) {
	p := NewPollingStreamer(&scriptedTransport{}, broadcast.NewStore(10), events.NewBus(), 5*time.Millisecond, nil)
	p.Stop("never-started")
	p.StopAll()
}
