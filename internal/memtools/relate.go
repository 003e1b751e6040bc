package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// LinkTool handles the mem_link MCP tool.
type LinkTool struct {
	store *memory.Store
}

// NewLinkTool creates a LinkTool.
func NewLinkTool(store *memory.Store) *LinkTool {
	return &LinkTool{store: store}
}

// Definition returns the MCP tool definition for mem_link.
func (t *LinkTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_link",
		mcp.WithDescription(
			"Create a directed link between two observations. "+
				"Link types: related, child, parent, refines. Linking the same pair twice is a no-op.",
		),
		mcp.WithNumber("from_id",
			mcp.Required(),
			mcp.Description("Source observation ID"),
		),
		mcp.WithNumber("to_id",
			mcp.Required(),
			mcp.Description("Target observation ID"),
		),
		mcp.WithString("link_type",
			mcp.Description("Link type: related (default), child, parent, refines"),
		),
	)
}

// Handle processes the mem_link tool call.
func (t *LinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromID := int64Arg(req, "from_id", 0)
	toID := int64Arg(req, "to_id", 0)
	if fromID <= 0 || toID <= 0 {
		return mcp.NewToolResultError("'from_id' and 'to_id' are required"), nil
	}
	linkType := req.GetString("link_type", memory.LinkRelated)

	id, err := t.store.Link(fromID, toID, linkType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to link: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Linked #%d → #%d (%s), link ID: %d", fromID, toID, linkType, id)), nil
}

// ─── UnlinkTool ──────────────────────────────────────────────────────────────

// UnlinkTool handles the mem_unlink MCP tool.
type UnlinkTool struct {
	store *memory.Store
}

// NewUnlinkTool creates an UnlinkTool.
func NewUnlinkTool(store *memory.Store) *UnlinkTool {
	return &UnlinkTool{store: store}
}

// Definition returns the MCP tool definition for mem_unlink.
func (t *UnlinkTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_unlink",
		mcp.WithDescription("Remove a link between two observations."),
		mcp.WithNumber("from_id",
			mcp.Required(),
			mcp.Description("Source observation ID"),
		),
		mcp.WithNumber("to_id",
			mcp.Required(),
			mcp.Description("Target observation ID"),
		),
		mcp.WithString("link_type",
			mcp.Description("Only remove this link type (default: all types between the pair)"),
		),
	)
}

// Handle processes the mem_unlink tool call.
func (t *UnlinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromID := int64Arg(req, "from_id", 0)
	toID := int64Arg(req, "to_id", 0)
	if fromID <= 0 || toID <= 0 {
		return mcp.NewToolResultError("'from_id' and 'to_id' are required"), nil
	}

	removed, err := t.store.Unlink(fromID, toID, req.GetString("link_type", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to unlink: %v", err)), nil
	}
	if !removed {
		return mcp.NewToolResultText(fmt.Sprintf("No link between #%d and #%d.", fromID, toID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Unlinked #%d → #%d.", fromID, toID)), nil
}

// ─── RelatedTool ─────────────────────────────────────────────────────────────

// RelatedTool handles the mem_related MCP tool.
type RelatedTool struct {
	store *memory.Store
}

// NewRelatedTool creates a RelatedTool.
func NewRelatedTool(store *memory.Store) *RelatedTool {
	return &RelatedTool{store: store}
}

// Definition returns the MCP tool definition for mem_related.
func (t *RelatedTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_related",
		mcp.WithDescription("List observations linked from a given observation (one hop, outgoing)."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Observation ID"),
		),
		mcp.WithString("link_type",
			mcp.Description("Only follow this link type"),
		),
	)
}

// Handle processes the mem_related tool call.
func (t *RelatedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	related, err := t.store.Related(id, req.GetString("link_type", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list related: %v", err)), nil
	}
	if len(related) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Observation #%d has no outgoing links.", id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Observations linked from #%d:\n\n", id)
	for _, r := range related {
		fmt.Fprintf(&b, "[%s] ", r.LinkType)
		formatObservation(&b, r.Observation, 200)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── SimilarTool ─────────────────────────────────────────────────────────────

// SimilarTool handles the mem_similar MCP tool.
type SimilarTool struct {
	store *memory.Store
}

// NewSimilarTool creates a SimilarTool.
func NewSimilarTool(store *memory.Store) *SimilarTool {
	return &SimilarTool{store: store}
}

// Definition returns the MCP tool definition for mem_similar.
func (t *SimilarTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_similar",
		mcp.WithDescription(
			"Suggest unlinked observations similar to a given one, by shared tags and title wording. "+
				"Use the suggestions to decide what to mem_link.",
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Observation ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max suggestions (default: 5)"),
		),
	)
}

// Handle processes the mem_similar tool call.
func (t *SimilarTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	suggestions, err := t.store.SuggestSimilar(id, intArg(req, "limit", 5))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to suggest similar: %v", err)), nil
	}
	if len(suggestions) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No similar observations found for #%d.", id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Similar to #%d:\n\n", id)
	for _, s := range suggestions {
		fmt.Fprintf(&b, "#%d (%.2f) %s\n", s.ID, s.Score, s.Title)
	}
	return mcp.NewToolResultText(b.String()), nil
}
