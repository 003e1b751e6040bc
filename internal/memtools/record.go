package memtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// AddTool handles the mem_add MCP tool.
type AddTool struct {
	store *memory.Store
}

// NewAddTool creates an AddTool with the given memory store.
func NewAddTool(store *memory.Store) *AddTool {
	return &AddTool{store: store}
}

// Definition returns the MCP tool definition for mem_add.
func (t *AddTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_add",
		mcp.WithDescription(
			"Record an observation in persistent memory. Call this PROACTIVELY after significant events — "+
				"decisions made, bugs fixed, discoveries, configuration changes, user preferences.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short, searchable title (e.g. 'Fixed N+1 query in user list')"),
		),
		mcp.WithString("summary",
			mcp.Description("Longer description of what was observed"),
		),
		mcp.WithString("project",
			mcp.Description("Project name"),
		),
		mcp.WithString("kind",
			mcp.Description("Category: decision, bugfix, pattern, config, discovery, preference"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags (e.g. 'auth, middleware')"),
		),
		mcp.WithString("timestamp",
			mcp.Description("Event time as YYYY-MM-DDTHH:MM:SSZ (default: now)"),
		),
		mcp.WithString("raw",
			mcp.Description("Optional raw payload to preserve verbatim"),
		),
		mcp.WithNumber("session_id",
			mcp.Description("Session to associate with"),
		),
		mcp.WithBoolean("auto_tags",
			mcp.Description("Derive extra tags from title and summary (default: false)"),
		),
	)
}

// Handle processes the mem_add tool call.
func (t *AddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	params := memory.AddParams{
		Timestamp: req.GetString("timestamp", ""),
		Project:   req.GetString("project", ""),
		Kind:      req.GetString("kind", ""),
		Title:     title,
		Summary:   req.GetString("summary", ""),
		Tags:      memory.SplitTags(req.GetString("tags", "")),
		Raw:       req.GetString("raw", ""),
		AutoTags:  boolArg(req, "auto_tags", false),
	}
	if sid := int64Arg(req, "session_id", 0); sid > 0 {
		params.SessionID = &sid
	}

	id, err := t.store.Add(params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add observation: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Observation saved: %q\nID: %d", title, id)), nil
}

// ─── GetTool ─────────────────────────────────────────────────────────────────

// GetTool handles the mem_get MCP tool.
type GetTool struct {
	store *memory.Store
}

// NewGetTool creates a GetTool.
func NewGetTool(store *memory.Store) *GetTool {
	return &GetTool{store: store}
}

// Definition returns the MCP tool definition for mem_get.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_get",
		mcp.WithDescription("Read one observation in full, untruncated."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Observation ID"),
		),
	)
}

// Handle processes the mem_get tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	o, err := t.store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get observation: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#%d [%s] %s\n\n", o.ID, o.Timestamp, o.Title)
	if o.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", o.Summary)
	}
	if o.Project != "" {
		fmt.Fprintf(&b, "Project: %s\n", o.Project)
	}
	if o.Kind != "" {
		fmt.Fprintf(&b, "Kind: %s\n", o.Kind)
	}
	if len(o.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(o.Tags, ", "))
	}
	if o.SessionID != nil {
		fmt.Fprintf(&b, "Session: %d\n", *o.SessionID)
	}
	if o.Raw != "" {
		fmt.Fprintf(&b, "\nRaw:\n%s\n", o.Raw)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── UpdateTool ──────────────────────────────────────────────────────────────

// UpdateTool handles the mem_update MCP tool.
type UpdateTool struct {
	store *memory.Store
}

// NewUpdateTool creates an UpdateTool.
func NewUpdateTool(store *memory.Store) *UpdateTool {
	return &UpdateTool{store: store}
}

// Definition returns the MCP tool definition for mem_update.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_update",
		mcp.WithDescription(
			"Update fields of an existing observation. Omitted fields are left unchanged.",
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Observation ID"),
		),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("summary", mcp.Description("New summary")),
		mcp.WithString("project", mcp.Description("New project")),
		mcp.WithString("kind", mcp.Description("New kind")),
		mcp.WithString("tags", mcp.Description("New comma-separated tag list (replaces existing tags)")),
		mcp.WithString("timestamp", mcp.Description("New event time as YYYY-MM-DDTHH:MM:SSZ")),
		mcp.WithString("raw", mcp.Description("New raw payload")),
	)
}

// Handle processes the mem_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	var params memory.UpdateParams
	args := req.GetArguments()
	setString := func(key string, dest **string) {
		if v, ok := args[key].(string); ok {
			*dest = &v
		}
	}
	setString("title", &params.Title)
	setString("summary", &params.Summary)
	setString("project", &params.Project)
	setString("kind", &params.Kind)
	setString("timestamp", &params.Timestamp)
	setString("raw", &params.Raw)
	if v, ok := args["tags"].(string); ok {
		params.Tags = append([]string{}, memory.SplitTags(v)...)
	}

	o, err := t.store.Update(id, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update observation: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Observation #%d updated: %q", o.ID, o.Title)), nil
}

// ─── DeleteTool ──────────────────────────────────────────────────────────────

// DeleteTool handles the mem_delete MCP tool.
type DeleteTool struct {
	store *memory.Store
}

// NewDeleteTool creates a DeleteTool.
func NewDeleteTool(store *memory.Store) *DeleteTool {
	return &DeleteTool{store: store}
}

// Definition returns the MCP tool definition for mem_delete.
func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_delete",
		mcp.WithDescription("Permanently delete an observation and its links."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Observation ID"),
		),
	)
}

// Handle processes the mem_delete tool call.
func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	deleted, err := t.store.Delete(id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("observation %d not found", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete observation: %v", err)), nil
	}
	if !deleted {
		return mcp.NewToolResultError(fmt.Sprintf("observation %d not found", id)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Observation #%d deleted.", id)), nil
}
