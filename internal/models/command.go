package models

import "time"

// CommandRecord is one command sent to a session, kept for inspection.
type CommandRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Command    string    `json:"command"`
	Source     Creator   `json:"source"`
	ExecutedAt time.Time `json:"executedAt"`
}

// SessionRecord is the durable form of a session kept in the store. Unlike
// the in-memory registry entry it survives restarts and records when the
// session ended.
type SessionRecord struct {
	ID             string      `json:"id"`
	Kind           SessionKind `json:"kind"`
	CreatedBy      Creator     `json:"createdBy"`
	WorkspaceRoot  string      `json:"workspaceRoot,omitempty"`
	AgentSessionID string      `json:"agentSessionId,omitempty"`
	State          string      `json:"state"`
	CreatedAt      time.Time   `json:"createdAt"`
	ClosedAt       *time.Time  `json:"closedAt,omitempty"`
}
