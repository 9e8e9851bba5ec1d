package transport

import (
	"context"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

// Transport is the remote call surface for the backend process that owns the
// actual pseudo-terminals. Implementations must be safe for concurrent use.
type Transport interface {
	// CreateSession requests a new pseudo-terminal of the given kind and
	// returns its backend-assigned id. cols/rows of 0 mean backend default.
	CreateSession(ctx context.Context, kind models.SessionKind, cols, rows int) (string, error)

	// Write sends raw input to the session.
	Write(ctx context.Context, sessionID, data string) error

	// Read returns all output produced since the previous Read for the
	// session. It is non-blocking and may return an empty slice. A closed
	// session reads as empty, not as an error.
	Read(ctx context.Context, sessionID string) ([]models.Chunk, error)

	// Resize adjusts the pseudo-terminal geometry.
	Resize(ctx context.Context, sessionID string, cols, rows int) error

	// CloseSession releases the remote resource. Closing an already-closed
	// or unknown session is not an error.
	CloseSession(ctx context.Context, sessionID string) error

	// ListSessions enumerates sessions known to the backend.
	ListSessions(ctx context.Context) ([]models.RemoteSession, error)

	// SessionHistory returns the backend's retained output for a session.
	SessionHistory(ctx context.Context, sessionID string) ([]models.Chunk, error)

	// SessionState reports the backend's lifecycle state for a session.
	// Used as a cheap liveness probe by the recovery controller.
	SessionState(ctx context.Context, sessionID string) (string, error)
}
