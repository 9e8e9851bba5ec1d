package models

// TerminalBinding ties a terminal session to the agent conversation that
// owns it. At most one binding exists per agent session id at a time; tool
// calls that omit an explicit session id resolve through it.
type TerminalBinding struct {
	TerminalID     string  `json:"terminalId"`
	AgentSessionID string  `json:"agentSessionId"`
	CreatedBy      Creator `json:"createdBy"`
	WorkspaceRoot  string  `json:"workspaceRoot,omitempty"`
}
