package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristo-bit/skhoot-terminal/internal/events"
	"github.com/tristo-bit/skhoot-terminal/internal/models"
	"github.com/tristo-bit/skhoot-terminal/internal/store"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// fakeTransport is an in-memory backend double.
type fakeTransport struct {
	mu        sync.Mutex
	nextID    int
	sessions  map[string]bool
	writes    map[string][]string
	closes    []string
	createErr error
	writeErr  error
	closeErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sessions: make(map[string]bool),
		writes:   make(map[string][]string),
	}
}

func (f *fakeTransport) CreateSession(ctx context.Context, kind models.SessionKind, cols, rows int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := "term-" + string(rune('0'+f.nextID))
	f.sessions[id] = true
	return id, nil
}

func (f *fakeTransport) Write(ctx context.Context, sessionID, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes[sessionID] = append(f.writes[sessionID], data)
	return nil
}

func (f *fakeTransport) Read(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	return nil, nil
}

func (f *fakeTransport) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	return nil
}

func (f *fakeTransport) CloseSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, sessionID)
	if f.closeErr != nil {
		return f.closeErr
	}
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeTransport) ListSessions(ctx context.Context) ([]models.RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RemoteSession
	for id := range f.sessions {
		out = append(out, models.RemoteSession{SessionID: id, State: "active"})
	}
	return out, nil
}

func (f *fakeTransport) SessionHistory(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	return nil, nil
}

func (f *fakeTransport) SessionState(ctx context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[sessionID] {
		return "", errors.New("unknown session")
	}
	return "active", nil
}

func (f *fakeTransport) written(sessionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes[sessionID]...)
}

var _ transport.Transport = (*fakeTransport)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, tr transport.Transport) *Service {
	t.Helper()
	svc := New(tr, nil, quietLogger(), Config{
		PollInterval:   time.Hour, // ticks are irrelevant to these tests
		BufferCapacity: 100,
		MaxReconnects:  3,
	})
	t.Cleanup(svc.Shutdown)
	return svc
}

func newTestServiceWithDB(t *testing.T, tr transport.Transport) (*Service, store.Store) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	svc := New(tr, db, quietLogger(), Config{
		PollInterval:   time.Hour,
		BufferCapacity: 100,
		MaxReconnects:  3,
	})
	t.Cleanup(svc.Shutdown)
	return svc, db
}

func TestCreateSession_RegistersAndAnnounces(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	_, ch := svc.Bus().Subscribe()

	sess, err := svc.CreateSession(context.Background(), CreateOptions{
		Kind:      models.KindShell,
		CreatedBy: models.CreatedByUser,
	})
	require.NoError(t, err)
	assert.True(t, sess.IsActive)

	got, ok := svc.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, models.KindShell, got.Kind)

	e := <-ch
	created, ok := e.(events.SessionCreated)
	require.True(t, ok)
	assert.Equal(t, sess.ID, created.SessionID)
	assert.Len(t, ch, 0, "user-created sessions emit no agent hint")
}

func TestCreateSession_DefaultsKindAndCreator(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)

	sess, err := svc.CreateSession(context.Background(), CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.KindShell, sess.Kind)
	assert.Equal(t, models.CreatedByUser, sess.CreatedBy)
}

func TestCreateSession_AIEmitsAgentHint(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	_, ch := svc.Bus().Subscribe()

	sess, err := svc.CreateSession(context.Background(), CreateOptions{
		Kind:           models.KindAgentShell,
		CreatedBy:      models.CreatedByAI,
		AgentSessionID: "conv-a",
		WorkspaceRoot:  "/work",
	})
	require.NoError(t, err)

	<-ch // session-created
	e := <-ch
	hint, ok := e.(events.AgentTerminalCreated)
	require.True(t, ok)
	assert.Equal(t, sess.ID, hint.SessionID)
	assert.Equal(t, "conv-a", hint.AgentSessionID)
	assert.Equal(t, "/work", hint.WorkspaceRoot)
}

func TestCreateSession_TransportFailureSurfaces(t *testing.T) {
	tr := newFakeTransport()
	tr.createErr = &transport.CreationError{Reason: "spawn failed"}
	svc := newTestService(t, tr)

	_, err := svc.CreateSession(context.Background(), CreateOptions{})
	require.Error(t, err)
	var ce *transport.CreationError
	assert.ErrorAs(t, err, &ce)
	assert.Empty(t, svc.ListSessions(context.Background()), "nothing registered on failure")
}

func TestCreateForAgent_ReusesExistingBinding(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	first, reused, err := svc.CreateForAgent(ctx, "conv-a", "", "", false)
	require.NoError(t, err)
	assert.False(t, reused)

	second, reused, err := svc.CreateForAgent(ctx, "conv-a", "", "", false)
	require.NoError(t, err)
	assert.True(t, reused, "one persistent terminal per conversation")
	assert.Equal(t, first, second)
}

func TestCreateForAgent_ForceCreatesAnother(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	first, _, err := svc.CreateForAgent(ctx, "conv-a", "", "", false)
	require.NoError(t, err)

	second, reused, err := svc.CreateForAgent(ctx, "conv-a", "", "", true)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, first, second)

	// The newest terminal becomes the conversation's default.
	resolved, ok := svc.Bindings().TerminalForAgent("conv-a")
	require.True(t, ok)
	assert.Equal(t, second, resolved)
}

func TestCreateForAgent_ReplacesStaleBinding(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	first, _, err := svc.CreateForAgent(ctx, "conv-a", "", "", false)
	require.NoError(t, err)
	require.NoError(t, svc.CloseSession(ctx, first))

	second, reused, err := svc.CreateForAgent(ctx, "conv-a", "", "", false)
	require.NoError(t, err)
	assert.False(t, reused, "a dead default is replaced, not reused")
	assert.NotEqual(t, first, second)
}

func TestExecuteCommand_ExplicitSessionID(t *testing.T) {
	tr := newFakeTransport()
	svc, db := newTestServiceWithDB(t, tr)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateOptions{})
	require.NoError(t, err)

	target, err := svc.ExecuteCommand(ctx, "", sess.ID, "echo hi", models.CreatedByUser)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, target)
	assert.Equal(t, []string{"echo hi\n"}, tr.written(sess.ID), "newline appended for execution")

	history, err := db.ListCommands(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "echo hi", history[0].Command, "history stores the command without the newline")
}

func TestExecuteCommand_ResolvesDefaultBinding(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	id, _, err := svc.CreateForAgent(ctx, "conv-a", "", "", false)
	require.NoError(t, err)

	target, err := svc.ExecuteCommand(ctx, "conv-a", "", "make test", models.CreatedByAI)
	require.NoError(t, err)
	assert.Equal(t, id, target)
}

func TestExecuteCommand_NoDefaultTerminalFails(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)

	_, err := svc.ExecuteCommand(context.Background(), "conv-without-terminal", "", "ls", models.CreatedByAI)
	require.ErrorIs(t, err, ErrNoDefaultTerminal)
	assert.Contains(t, err.Error(), "create terminal first")
	assert.Empty(t, tr.writes, "never auto-creates or writes anywhere")
}

func TestExecuteCommand_UnknownExplicitSession(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)

	_, err := svc.ExecuteCommand(context.Background(), "conv-a", "ghost", "ls", models.CreatedByAI)
	assert.ErrorIs(t, err, transport.ErrSessionNotFound)
}

func TestWriteInput_UnknownSession(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)

	err := svc.WriteInput(context.Background(), "ghost", "data")
	assert.ErrorIs(t, err, transport.ErrSessionNotFound)
}

func TestWriteInput_TransientFailureConsumesRecoveryBudget(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateOptions{})
	require.NoError(t, err)

	tr.writeErr = &transport.WriteError{SessionID: sess.ID, Err: errors.New("pipe broken")}
	err = svc.WriteInput(ctx, sess.ID, "x")
	require.Error(t, err)

	// The backend still answers the liveness probe, so the counter was
	// reset and the session stays active.
	got, _ := svc.Get(sess.ID)
	assert.True(t, got.IsActive)
	assert.Equal(t, 0, got.ReconnectAttempts)
}

func TestWriteInput_ExhaustionDemotesSession(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateOptions{})
	require.NoError(t, err)
	_, ch := svc.Bus().Subscribe()

	// Backend fully gone: writes fail and the probe fails too.
	tr.mu.Lock()
	delete(tr.sessions, sess.ID)
	tr.mu.Unlock()
	tr.writeErr = &transport.WriteError{SessionID: sess.ID, Err: errors.New("backend gone")}

	for i := 0; i < 3; i++ {
		require.Error(t, svc.WriteInput(ctx, sess.ID, "x"))
	}

	got, ok := svc.Get(sess.ID)
	require.True(t, ok, "exhaustion demotes, it does not remove")
	assert.False(t, got.IsActive)

	e := <-ch
	errEvent, isErr := e.(events.Error)
	require.True(t, isErr)
	assert.Equal(t, sess.ID, errEvent.SessionID)
}

func TestReadFailure_GoneSessionDemotesWithoutRetryBudget(t *testing.T) {
	tr := newFakeTransport()
	svc, db := newTestServiceWithDB(t, tr)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateOptions{})
	require.NoError(t, err)
	_, ch := svc.Bus().Subscribe()

	gone := fmt.Errorf("%w: %s", transport.ErrSessionNotFound, sess.ID)
	keep := svc.onReadFailure(sess.ID, gone)
	assert.False(t, keep, "one gone signal ends polling, no three-strike retry")

	got, ok := svc.Get(sess.ID)
	require.True(t, ok, "demotion keeps the record for inspection")
	assert.False(t, got.IsActive)

	e := <-ch
	errEvent, isErr := e.(events.Error)
	require.True(t, isErr)
	assert.Equal(t, sess.ID, errEvent.SessionID)

	rec, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "inactive", rec.State)
}

func TestReadFailure_TransientErrorKeepsPolling(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateOptions{})
	require.NoError(t, err)

	// Backend still answers the liveness probe: a transient read error
	// must not end the loop.
	blip := &transport.ReadError{SessionID: sess.ID, Err: errors.New("timeout")}
	assert.True(t, svc.onReadFailure(sess.ID, blip))

	got, _ := svc.Get(sess.ID)
	assert.True(t, got.IsActive)
}

func TestCloseSession_CleansLocalStateEvenIfRemoteFails(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	id, _, err := svc.CreateForAgent(ctx, "conv-a", "", "", false)
	require.NoError(t, err)

	tr.closeErr = errors.New("backend unreachable")
	require.NoError(t, svc.CloseSession(ctx, id), "remote failure must not block local cleanup")

	_, ok := svc.Get(id)
	assert.False(t, ok, "registry record removed")
	_, ok = svc.Bindings().TerminalForAgent("conv-a")
	assert.False(t, ok, "binding removed")
	assert.Nil(t, svc.Output(id), "buffer dropped")

	require.NoError(t, svc.CloseSession(ctx, id), "second close is a no-op")
	require.NoError(t, svc.CloseSession(ctx, "never-existed"))
}

func TestCloseSession_PublishesEvent(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateOptions{})
	require.NoError(t, err)
	_, ch := svc.Bus().Subscribe()

	require.NoError(t, svc.CloseSession(ctx, sess.ID))

	e := <-ch
	closed, ok := e.(events.SessionClosed)
	require.True(t, ok)
	assert.Equal(t, sess.ID, closed.SessionID)
}

func TestInspect(t *testing.T) {
	tr := newFakeTransport()
	svc, _ := newTestServiceWithDB(t, tr)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, CreateOptions{Kind: models.KindAgentShell, CreatedBy: models.CreatedByAI})
	require.NoError(t, err)
	_, err = svc.ExecuteCommand(ctx, "", sess.ID, "pwd", models.CreatedByAI)
	require.NoError(t, err)

	insp, err := svc.Inspect(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", insp.Status)
	require.Len(t, insp.CommandHistory, 1)
	assert.Equal(t, "pwd", insp.CommandHistory[0].Command)

	_, err = svc.Inspect(ctx, "ghost")
	assert.ErrorIs(t, err, transport.ErrSessionNotFound)
}

func TestFocus_PublishesHint(t *testing.T) {
	tr := newFakeTransport()
	svc := newTestService(t, tr)
	_, ch := svc.Bus().Subscribe()

	svc.Focus("term-1")

	e := <-ch
	focus, ok := e.(events.FocusSession)
	require.True(t, ok)
	assert.Equal(t, "term-1", focus.SessionID)
}
