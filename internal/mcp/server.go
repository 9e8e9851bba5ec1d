// Package mcp exposes the terminal session layer as MCP tools for an AI
// agent orchestrator. Tool failures are returned as structured JSON results
// (success, error, metadata.error_type, metadata.retryable) instead of
// protocol errors, so the orchestrator can decide whether to retry.
//
// Argument names are snake_case; that is the canonical external schema.
// The camelCase spellings some older callers used are deprecated and not
// accepted.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
	"github.com/tristo-bit/skhoot-terminal/internal/service"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// agentSessionEnv identifies the conversation a stdio MCP server instance
// belongs to. The orchestrator sets it when spawning the server.
const agentSessionEnv = "SKHOOT_AGENT_SESSION_ID"

// Server wraps the session service and exposes it as MCP tools.
type Server struct {
	svc *service.Service

	// agentSessionID scopes default-terminal resolution to one
	// conversation.
	agentSessionID string
}

// NewServer creates the MCP server wrapper. agentSessionID may be empty;
// tools that need default-terminal resolution then require explicit ids.
func NewServer(svc *service.Service, agentSessionID string) *Server {
	return &Server{svc: svc, agentSessionID: agentSessionID}
}

// NewServerFromEnv reads the agent session id from the environment.
func NewServerFromEnv(svc *service.Service) *Server {
	return NewServer(svc, os.Getenv(agentSessionEnv))
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("skhoot-terminal", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.createTool())
	srv.AddTool(s.executeTool())
	srv.AddTool(s.readTool())
	srv.AddTool(s.listTool())
	srv.AddTool(s.inspectTool())
	srv.AddTool(s.closeTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Structured results
// ---------------------------------------------------------------------------

type resultMetadata struct {
	ErrorType string `json:"error_type,omitempty"`
	Retryable bool   `json:"retryable"`
}

type toolResult struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	Metadata *resultMetadata `json:"metadata,omitempty"`
	Data     any             `json:"data,omitempty"`
}

func okResult(data any) *mcp.CallToolResult {
	payload, err := json.Marshal(toolResult{Success: true, Data: data})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(payload))
}

func failResult(err error) *mcp.CallToolResult {
	meta := &resultMetadata{ErrorType: classify(err), Retryable: retryable(err)}
	payload, merr := json.Marshal(toolResult{Success: false, Error: err.Error(), Metadata: meta})
	if merr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(payload))
}

func classify(err error) string {
	switch {
	case errors.Is(err, service.ErrNoDefaultTerminal):
		return "no_default_terminal"
	case errors.Is(err, transport.ErrSessionNotFound):
		return "session_not_found"
	default:
		var ce *transport.CreationError
		var we *transport.WriteError
		var re *transport.ReadError
		var rz *transport.ResizeError
		switch {
		case errors.As(err, &ce):
			return "creation_failed"
		case errors.As(err, &we):
			return "write_failed"
		case errors.As(err, &re):
			return "read_failed"
		case errors.As(err, &rz):
			return "resize_failed"
		}
		return "internal"
	}
}

// retryable is true only for transport blips the recovery layer has not
// yet given up on. Usage errors and unknown ids never retry.
func retryable(err error) bool {
	return transport.IsTransient(err)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// terminal_create
func (s *Server) createTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("terminal_create",
		mcp.WithDescription("Create a terminal session for this conversation, or reuse the existing one. Each conversation keeps a single persistent terminal unless force is set."),
		mcp.WithString("workspace_root", mcp.Description("Directory the shell starts in")),
		mcp.WithString("kind", mcp.Description("Session kind: shell, agent-shell (default), log-view")),
		mcp.WithBoolean("force", mcp.Description("Create a new terminal even if one is already bound")),
	)
	return tool, s.handleCreate
}

func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceRoot := request.GetString("workspace_root", "")
	kind := models.SessionKind(request.GetString("kind", string(models.KindAgentShell)))
	force := request.GetBool("force", false)

	sessionID, reused, err := s.svc.CreateForAgent(ctx, s.agentSessionID, workspaceRoot, kind, force)
	if err != nil {
		return failResult(err), nil
	}

	return okResult(map[string]any{
		"session_id": sessionID,
		"reused":     reused,
	}), nil
}

// terminal_execute
func (s *Server) executeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("terminal_execute",
		mcp.WithDescription("Run a command in a terminal session. Omit session_id to use this conversation's terminal; fails if none exists (call terminal_create first). Output arrives asynchronously: poll with terminal_read."),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command line to execute")),
		mcp.WithString("session_id", mcp.Description("Explicit terminal session id")),
	)
	return tool, s.handleExecute
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := request.RequireString("command")
	if err != nil || strings.TrimSpace(command) == "" {
		return failResult(errors.New("missing required parameter: command")), nil
	}
	sessionID := request.GetString("session_id", "")

	resolved, err := s.svc.ExecuteCommand(ctx, s.agentSessionID, sessionID, command, models.CreatedByAI)
	if err != nil {
		return failResult(err), nil
	}

	return okResult(map[string]any{
		"session_id": resolved,
		"command":    command,
	}), nil
}

// terminal_read
func (s *Server) readTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("terminal_read",
		mcp.WithDescription("Read the buffered output of a terminal session. Returns both the joined plain text and the individual output lines in order."),
		mcp.WithString("session_id", mcp.Description("Terminal session id; defaults to this conversation's terminal")),
	)
	return tool, s.handleRead
}

func (s *Server) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := s.resolveSession(request)
	if err != nil {
		return failResult(err), nil
	}

	sess, ok := s.svc.Get(sessionID)
	if !ok {
		return failResult(fmt.Errorf("%w: %s", transport.ErrSessionNotFound, sessionID)), nil
	}

	lines := s.svc.Output(sessionID)
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(l.Content)
	}

	status := "active"
	if !sess.IsActive {
		status = "inactive"
	}

	return okResult(map[string]any{
		"session_id": sessionID,
		"output":     sb.String(),
		"outputs":    lines,
		"status":     status,
	}), nil
}

// terminal_list
func (s *Server) listTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("terminal_list",
		mcp.WithDescription("List all terminal sessions with their kind, owner, and activity state."),
	)
	return tool, s.handleList
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.svc.ListSessions(ctx)

	type terminalInfo struct {
		SessionID     string `json:"session_id"`
		Kind          string `json:"kind"`
		CreatedBy     string `json:"created_by"`
		Active        bool   `json:"active"`
		WorkspaceRoot string `json:"workspace_root,omitempty"`
	}
	terminals := make([]terminalInfo, len(sessions))
	for i, sess := range sessions {
		terminals[i] = terminalInfo{
			SessionID:     sess.ID,
			Kind:          string(sess.Kind),
			CreatedBy:     string(sess.CreatedBy),
			Active:        sess.IsActive,
			WorkspaceRoot: sess.WorkspaceRoot,
		}
	}

	return okResult(map[string]any{
		"terminals": terminals,
		"count":     len(terminals),
	}), nil
}

// terminal_inspect
func (s *Server) inspectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("terminal_inspect",
		mcp.WithDescription("Inspect a terminal session: status, command history, current buffered output, and workspace root."),
		mcp.WithString("session_id", mcp.Description("Terminal session id; defaults to this conversation's terminal")),
	)
	return tool, s.handleInspect
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := s.resolveSession(request)
	if err != nil {
		return failResult(err), nil
	}

	insp, err := s.svc.Inspect(ctx, sessionID)
	if err != nil {
		return failResult(err), nil
	}

	commands := make([]string, len(insp.CommandHistory))
	for i, c := range insp.CommandHistory {
		commands[i] = c.Command
	}

	return okResult(map[string]any{
		"session_id":      sessionID,
		"status":          insp.Status,
		"command_history": commands,
		"current_output":  insp.CurrentOutput,
		"workspace_root":  insp.Session.WorkspaceRoot,
	}), nil
}

// terminal_close
func (s *Server) closeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("terminal_close",
		mcp.WithDescription("Close a terminal session and release its resources. Closing an already-closed session succeeds."),
		mcp.WithString("session_id", mcp.Description("Terminal session id; defaults to this conversation's terminal")),
	)
	return tool, s.handleClose
}

func (s *Server) handleClose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := s.resolveSession(request)
	if err != nil {
		return failResult(err), nil
	}

	if err := s.svc.CloseSession(ctx, sessionID); err != nil {
		return failResult(err), nil
	}

	return okResult(map[string]any{
		"session_id": sessionID,
		"closed":     true,
	}), nil
}

// resolveSession applies the same resolution order as execute: explicit id
// first, then the conversation's bound terminal.
func (s *Server) resolveSession(request mcp.CallToolRequest) (string, error) {
	if id := request.GetString("session_id", ""); id != "" {
		return id, nil
	}
	if id, ok := s.svc.Bindings().TerminalForAgent(s.agentSessionID); ok {
		return id, nil
	}
	return "", service.ErrNoDefaultTerminal
}
