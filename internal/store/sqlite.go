package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tristo-bit/skhoot-terminal/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
// Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's pool, preventing "database is
	// locked" errors from concurrent daemon requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

// CreateSession inserts a session record. CreatedAt defaults to now.
func (s *SQLiteStore) CreateSession(ctx context.Context, rec *models.SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.State == "" {
		rec.State = "active"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO terminal_sessions
		(id, kind, created_by, workspace_root, agent_session_id, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), string(rec.CreatedBy), rec.WorkspaceRoot,
		rec.AgentSessionID, rec.State, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns a session record by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, created_by, workspace_root,
		agent_session_id, state, created_at, closed_at
		FROM terminal_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns session records, newest first. Closed sessions are
// skipped unless includeClosed is set.
func (s *SQLiteStore) ListSessions(ctx context.Context, includeClosed bool) ([]*models.SessionRecord, error) {
	query := `SELECT id, kind, created_by, workspace_root, agent_session_id,
		state, created_at, closed_at FROM terminal_sessions`
	if !includeClosed {
		query += " WHERE closed_at IS NULL"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSessionClosed stamps closed_at and flips state. Idempotent: closing
// an already-closed or unknown id succeeds.
func (s *SQLiteStore) MarkSessionClosed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE terminal_sessions
		SET state = 'closed', closed_at = COALESCE(closed_at, ?)
		WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// UpdateSessionState sets the state column (e.g. "inactive" after recovery
// exhaustion).
func (s *SQLiteStore) UpdateSessionState(ctx context.Context, id, state string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE terminal_sessions SET state = ? WHERE id = ?", state, id)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	var kind, createdBy string
	var closedAt sql.NullTime
	err := row.Scan(&rec.ID, &kind, &createdBy, &rec.WorkspaceRoot,
		&rec.AgentSessionID, &rec.State, &rec.CreatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	rec.Kind = models.SessionKind(kind)
	rec.CreatedBy = models.Creator(createdBy)
	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}
	return &rec, nil
}

// --- Command history ---

// AppendCommand records one command sent to a session.
func (s *SQLiteStore) AppendCommand(ctx context.Context, sessionID, command string, source models.Creator) (*models.CommandRecord, error) {
	rec := &models.CommandRecord{
		ID:         newULID(),
		SessionID:  sessionID,
		Command:    command,
		Source:     source,
		ExecutedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO command_history
		(id, session_id, command, source, executed_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Command, string(rec.Source), rec.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("insert command: %w", err)
	}
	return rec, nil
}

// ListCommands returns a session's command history, oldest first. limit of
// 0 or less means no limit.
func (s *SQLiteStore) ListCommands(ctx context.Context, sessionID string, limit int) ([]*models.CommandRecord, error) {
	query := `SELECT id, session_id, command, source, executed_at
		FROM command_history WHERE session_id = ? ORDER BY executed_at ASC, id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var out []*models.CommandRecord
	for rows.Next() {
		var rec models.CommandRecord
		var source string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Command, &source, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		rec.Source = models.Creator(source)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
