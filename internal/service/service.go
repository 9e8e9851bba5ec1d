// Package service is the explicitly constructed façade over the terminal
// session layer: transport, registry, poller, broadcast store, agent
// context, and recovery, wired once and passed by reference to every
// consumer (CLI commands, REST handlers, MCP tools).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tristo-bit/skhoot-terminal/internal/agentctx"
	"github.com/tristo-bit/skhoot-terminal/internal/broadcast"
	"github.com/tristo-bit/skhoot-terminal/internal/events"
	"github.com/tristo-bit/skhoot-terminal/internal/models"
	"github.com/tristo-bit/skhoot-terminal/internal/poller"
	"github.com/tristo-bit/skhoot-terminal/internal/recovery"
	"github.com/tristo-bit/skhoot-terminal/internal/registry"
	"github.com/tristo-bit/skhoot-terminal/internal/store"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// ErrNoDefaultTerminal is returned when a tool call omits a session id and
// the conversation has no bound terminal. Callers must create one
// explicitly; the service never auto-creates to avoid terminal sprawl.
var ErrNoDefaultTerminal = errors.New("no default terminal for this conversation: create terminal first")

// Config carries the tunables the service needs at construction.
type Config struct {
	PollInterval   time.Duration
	BufferCapacity int
	MaxReconnects  int
}

// Service coordinates session lifecycle and output synchronization.
type Service struct {
	tr       transport.Transport
	reg      *registry.Registry
	out      *broadcast.Store
	bindings *agentctx.Store
	bus      *events.Bus
	rec      *recovery.Controller
	streamer poller.Streamer
	db       store.Store
	log      *slog.Logger
}

// New wires a service from its parts. db may be nil when durable history is
// not wanted (tests, ephemeral CLI use). logger may be nil.
func New(tr transport.Transport, db store.Store, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	reg := registry.New()
	bus := events.NewBus()
	out := broadcast.NewStore(cfg.BufferCapacity)
	rec := recovery.NewController(tr, reg, bus, cfg.MaxReconnects)

	s := &Service{
		tr:       tr,
		reg:      reg,
		out:      out,
		bindings: agentctx.New(),
		bus:      bus,
		rec:      rec,
		db:       db,
		log:      logger,
	}
	s.streamer = poller.NewPollingStreamer(tr, out, bus, cfg.PollInterval, s.onReadFailure)
	return s
}

// onReadFailure routes poller tick errors through the recovery policy.
// Sessions the registry no longer knows are dead: stop polling for good.
func (s *Service) onReadFailure(sessionID string, err error) bool {
	if _, ok := s.reg.Get(sessionID); !ok {
		return false
	}
	if errors.Is(err, transport.ErrSessionNotFound) {
		// The backend has forgotten this id. No reconnect can revive it,
		// so demote now instead of burning the retry budget against a
		// session that can only keep answering 404.
		s.log.Warn("session gone on backend, stopping poll", "session", sessionID)
		s.rec.Demote(sessionID, err)
		s.persistInactive(sessionID)
		return false
	}
	keep := s.rec.RecordFailure(context.Background(), sessionID, err)
	if !keep {
		s.log.Warn("session recovery exhausted", "session", sessionID, "err", err)
		s.persistInactive(sessionID)
	}
	return keep
}

func (s *Service) persistInactive(sessionID string) {
	if s.db == nil {
		return
	}
	if err := s.db.UpdateSessionState(context.Background(), sessionID, "inactive"); err != nil {
		s.log.Warn("persist inactive state", "session", sessionID, "err", err)
	}
}

// Bus exposes the event bus for UI fan-out surfaces.
func (s *Service) Bus() *events.Bus { return s.bus }

// Outputs exposes the broadcast store for view subscriptions.
func (s *Service) Outputs() *broadcast.Store { return s.out }

// CreateOptions parameterizes session creation.
type CreateOptions struct {
	Kind           models.SessionKind
	CreatedBy      models.Creator
	WorkspaceRoot  string
	AgentSessionID string // set when an agent conversation owns the terminal
	Cols, Rows     int
}

// CreateSession allocates a remote pseudo-terminal, registers it, starts
// its output stream, and announces it on the bus.
func (s *Service) CreateSession(ctx context.Context, opts CreateOptions) (*models.Session, error) {
	if opts.Kind == "" {
		opts.Kind = models.KindShell
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = models.CreatedByUser
	}

	id, err := s.tr.CreateSession(ctx, opts.Kind, opts.Cols, opts.Rows)
	if err != nil {
		return nil, err
	}

	sess := &models.Session{
		ID:            id,
		Kind:          opts.Kind,
		IsActive:      true,
		CreatedBy:     opts.CreatedBy,
		WorkspaceRoot: opts.WorkspaceRoot,
		CreatedAt:     time.Now().UTC(),
	}
	s.reg.Register(sess)

	if opts.AgentSessionID != "" {
		s.bindings.Bind(models.TerminalBinding{
			TerminalID:     id,
			AgentSessionID: opts.AgentSessionID,
			CreatedBy:      opts.CreatedBy,
			WorkspaceRoot:  opts.WorkspaceRoot,
		})
	}

	if s.db != nil {
		err := s.db.CreateSession(ctx, &models.SessionRecord{
			ID:             id,
			Kind:           opts.Kind,
			CreatedBy:      opts.CreatedBy,
			WorkspaceRoot:  opts.WorkspaceRoot,
			AgentSessionID: opts.AgentSessionID,
			State:          "active",
			CreatedAt:      sess.CreatedAt,
		})
		if err != nil {
			s.log.Warn("persist session record", "session", id, "err", err)
		}
	}

	// Plain text for everything an AI or compact view consumes; the full
	// shell panel renders escape sequences itself.
	s.streamer.Start(id, opts.Kind != models.KindShell)

	s.bus.Publish(events.SessionCreated{SessionID: id, Kind: opts.Kind})
	if opts.CreatedBy == models.CreatedByAI {
		s.bus.Publish(events.AgentTerminalCreated{
			SessionID:      id,
			Kind:           opts.Kind,
			CreatedBy:      opts.CreatedBy,
			WorkspaceRoot:  opts.WorkspaceRoot,
			AgentSessionID: opts.AgentSessionID,
		})
	}

	s.log.Info("session created", "session", id, "kind", opts.Kind, "by", opts.CreatedBy)
	return sess, nil
}

// CreateForAgent creates or reuses the conversation's default terminal.
// Without force, an existing binding is reused rather than spawning another
// terminal for the same conversation.
func (s *Service) CreateForAgent(ctx context.Context, agentSessionID, workspaceRoot string, kind models.SessionKind, force bool) (sessionID string, reused bool, err error) {
	if !force {
		if existing, ok := s.bindings.TerminalForAgent(agentSessionID); ok {
			if sess, known := s.reg.Get(existing); known && sess.IsActive {
				return existing, true, nil
			}
			// Stale binding to a dead terminal; drop it and create fresh.
			s.bindings.Remove(existing)
		}
	}
	if kind == "" {
		kind = models.KindAgentShell
	}
	sess, err := s.CreateSession(ctx, CreateOptions{
		Kind:           kind,
		CreatedBy:      models.CreatedByAI,
		WorkspaceRoot:  workspaceRoot,
		AgentSessionID: agentSessionID,
	})
	if err != nil {
		return "", false, err
	}
	return sess.ID, false, nil
}

// WriteInput sends raw input to a session, recording the failure against
// the recovery budget when the transport is at fault.
func (s *Service) WriteInput(ctx context.Context, sessionID, data string) error {
	if _, ok := s.reg.Get(sessionID); !ok {
		return fmt.Errorf("%w: %s", transport.ErrSessionNotFound, sessionID)
	}
	if err := s.tr.Write(ctx, sessionID, data); err != nil {
		if transport.IsTransient(err) {
			s.rec.RecordFailure(ctx, sessionID, err)
		}
		return err
	}
	s.rec.RecordSuccess(sessionID)
	return nil
}

// ExecuteCommand resolves which terminal a command targets and writes it.
// Resolution: an explicit session id is used directly (and must be known);
// otherwise the conversation's default binding; otherwise the call fails.
// Terminals are never auto-created here.
func (s *Service) ExecuteCommand(ctx context.Context, agentSessionID, sessionID, command string, source models.Creator) (string, error) {
	if sessionID == "" {
		bound, ok := s.bindings.TerminalForAgent(agentSessionID)
		if !ok {
			return "", ErrNoDefaultTerminal
		}
		sessionID = bound
	}
	if _, ok := s.reg.Get(sessionID); !ok {
		return "", fmt.Errorf("%w: %s", transport.ErrSessionNotFound, sessionID)
	}

	if err := s.WriteInput(ctx, sessionID, command+"\n"); err != nil {
		return "", err
	}

	if s.db != nil {
		if _, err := s.db.AppendCommand(ctx, sessionID, command, source); err != nil {
			s.log.Warn("record command", "session", sessionID, "err", err)
		}
	}
	return sessionID, nil
}

// Resize adjusts a session's geometry. Failures are surfaced but the
// session stays usable at its prior size.
func (s *Service) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	if _, ok := s.reg.Get(sessionID); !ok {
		return fmt.Errorf("%w: %s", transport.ErrSessionNotFound, sessionID)
	}
	return s.tr.Resize(ctx, sessionID, cols, rows)
}

// CloseSession tears a session down: polling stops first so no tick can
// fire against the released resource, then the remote close, then local
// cleanup. Local state is cleared even when the remote close fails, and
// closing an unknown id is not an error.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	s.streamer.Stop(sessionID)

	closeErr := s.tr.CloseSession(ctx, sessionID)
	if closeErr != nil {
		s.log.Warn("remote close failed, removing local record anyway",
			"session", sessionID, "err", closeErr)
	}

	s.reg.Remove(sessionID)
	s.out.Drop(sessionID)
	s.bindings.Remove(sessionID)

	if s.db != nil {
		if err := s.db.MarkSessionClosed(ctx, sessionID); err != nil {
			s.log.Warn("mark session closed", "session", sessionID, "err", err)
		}
	}

	s.bus.Publish(events.SessionClosed{SessionID: sessionID})
	s.log.Info("session closed", "session", sessionID)
	return nil
}

// Get returns the registry's record for a session.
func (s *Service) Get(sessionID string) (models.Session, bool) {
	return s.reg.Get(sessionID)
}

// ListSessions returns the registry's view, annotated with the backend's
// state where it differs. The backend list may transiently diverge; the
// registry stays authoritative for what the UI can act on.
func (s *Service) ListSessions(ctx context.Context) []models.Session {
	local := s.reg.List()

	remote, err := s.tr.ListSessions(ctx)
	if err != nil {
		s.log.Warn("list remote sessions", "err", err)
		return local
	}
	known := make(map[string]string, len(remote))
	for _, r := range remote {
		known[r.SessionID] = r.State
	}
	for i := range local {
		if state, ok := known[local[i].ID]; ok {
			local[i].IsActive = local[i].IsActive && state != "closed"
		}
	}
	return local
}

// Output returns the buffered output snapshot for a session.
func (s *Service) Output(sessionID string) []models.OutputLine {
	return s.out.Output(sessionID)
}

// Inspection bundles everything a caller needs to understand a session's
// current condition.
type Inspection struct {
	Session        models.Session          `json:"session"`
	Status         string                  `json:"status"`
	CommandHistory []*models.CommandRecord `json:"commandHistory"`
	CurrentOutput  []models.OutputLine     `json:"currentOutput"`
}

// Inspect returns a session's status, command history, and buffered output.
func (s *Service) Inspect(ctx context.Context, sessionID string) (*Inspection, error) {
	sess, ok := s.reg.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrSessionNotFound, sessionID)
	}

	status := "active"
	if !sess.IsActive {
		status = "inactive"
	}

	var history []*models.CommandRecord
	if s.db != nil {
		var err error
		history, err = s.db.ListCommands(ctx, sessionID, 0)
		if err != nil {
			s.log.Warn("list command history", "session", sessionID, "err", err)
		}
	}

	return &Inspection{
		Session:        sess,
		Status:         status,
		CommandHistory: history,
		CurrentOutput:  s.out.Output(sessionID),
	}, nil
}

// Bindings exposes the agent context store (read paths for tools).
func (s *Service) Bindings() *agentctx.Store { return s.bindings }

// Focus publishes a UI hint to expand a compact view into the full panel.
func (s *Service) Focus(sessionID string) {
	s.bus.Publish(events.FocusSession{SessionID: sessionID})
}

// Shutdown stops all polling and closes the event bus. Sessions are left
// running on the backend; a later process can reattach via ListSessions.
func (s *Service) Shutdown() {
	s.streamer.StopAll()
	s.bus.Close()
}
