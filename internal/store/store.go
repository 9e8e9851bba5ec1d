package store

import (
	"context"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

// Store is the durable record of sessions and the commands sent to them.
// The in-memory registry stays authoritative for liveness; the store is
// what survives restarts and feeds inspection surfaces.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, rec *models.SessionRecord) error
	GetSession(ctx context.Context, id string) (*models.SessionRecord, error)
	ListSessions(ctx context.Context, includeClosed bool) ([]*models.SessionRecord, error)
	MarkSessionClosed(ctx context.Context, id string) error
	UpdateSessionState(ctx context.Context, id, state string) error

	// Command history
	AppendCommand(ctx context.Context, sessionID, command string, source models.Creator) (*models.CommandRecord, error)
	ListCommands(ctx context.Context, sessionID string, limit int) ([]*models.CommandRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
