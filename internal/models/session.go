package models

import "time"

// SessionKind distinguishes what a terminal session is used for.
type SessionKind string

const (
	KindShell      SessionKind = "shell"       // user-facing interactive shell
	KindAgentShell SessionKind = "agent-shell" // shell owned by an AI agent
	KindLogView    SessionKind = "log-view"    // read-only log follower
)

// Creator identifies which party requested a session.
type Creator string

const (
	CreatedByUser Creator = "user"
	CreatedByAI   Creator = "ai"
)

// Session is the local record of one pseudo-terminal-backed process.
// The registry owns the canonical copy; everything else refers to it by ID.
type Session struct {
	ID                string      `json:"id"`
	Kind              SessionKind `json:"kind"`
	IsActive          bool        `json:"isActive"`
	CreatedBy         Creator     `json:"createdBy"`
	WorkspaceRoot     string      `json:"workspaceRoot,omitempty"`
	ReconnectAttempts int         `json:"reconnectAttempts"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// RemoteSession is a session as reported by the backend's list endpoint.
// It may transiently diverge from the registry; reconciliation happens in
// the service layer, not the transport.
type RemoteSession struct {
	SessionID    string `json:"sessionId"`
	State        string `json:"state"`
	CreatedAt    int64  `json:"createdAt"`
	LastActivity int64  `json:"lastActivity"`
}
