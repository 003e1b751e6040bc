package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// SessionStartTool handles the mem_session_start MCP tool.
type SessionStartTool struct {
	store *memory.Store
}

// NewSessionStartTool creates a SessionStartTool.
func NewSessionStartTool(store *memory.Store) *SessionStartTool {
	return &SessionStartTool{store: store}
}

// Definition returns the MCP tool definition for mem_session_start.
func (t *SessionStartTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_session_start",
		mcp.WithDescription(
			"Open a working session. Pass the returned session ID as session_id on mem_add calls "+
				"so observations from the same stretch of work stay grouped.",
		),
		mcp.WithString("project",
			mcp.Description("Project name"),
		),
		mcp.WithString("working_dir",
			mcp.Description("Working directory for this session"),
		),
		mcp.WithString("agent_type",
			mcp.Description("What kind of agent is working (e.g. 'coder', 'researcher')"),
		),
	)
}

// Handle processes the mem_session_start tool call.
func (t *SessionStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := t.store.StartSession(memory.SessionParams{
		Project:    req.GetString("project", ""),
		WorkingDir: req.GetString("working_dir", ""),
		AgentType:  req.GetString("agent_type", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start session: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Session started at %s.\nSession ID: %d", sess.StartTime, sess.ID)), nil
}

// ─── SessionEndTool ──────────────────────────────────────────────────────────

// SessionEndTool handles the mem_session_end MCP tool.
type SessionEndTool struct {
	store *memory.Store
}

// NewSessionEndTool creates a SessionEndTool.
func NewSessionEndTool(store *memory.Store) *SessionEndTool {
	return &SessionEndTool{store: store}
}

// Definition returns the MCP tool definition for mem_session_end.
func (t *SessionEndTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_session_end",
		mcp.WithDescription("Close a working session, optionally recording a closing summary."),
		mcp.WithNumber("session_id",
			mcp.Required(),
			mcp.Description("Session ID from mem_session_start"),
		),
		mcp.WithString("summary",
			mcp.Description("What was accomplished during the session"),
		),
	)
}

// Handle processes the mem_session_end tool call.
func (t *SessionEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "session_id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	sess, err := t.store.EndSession(id, req.GetString("summary", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to end session: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %d ended at %s.", sess.ID, sess.EndTime)
	if sess.Summary != "" {
		fmt.Fprintf(&b, "\nSummary: %s", sess.Summary)
	}
	return mcp.NewToolResultText(b.String()), nil
}
