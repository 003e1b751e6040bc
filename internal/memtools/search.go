package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// SearchTool handles the mem_search MCP tool.
type SearchTool struct {
	store *memory.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(store *memory.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for mem_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_search",
		mcp.WithDescription(
			"Search persistent memory. Use this to find past decisions, fixes, preferences, or any "+
				"recorded context. Queries support inline qualifiers: project:<name>, kind:<kind>, "+
				"tags:<a,b> — remaining words are matched as full text.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — keywords plus optional qualifiers (e.g. 'timeout project:api tags:redis')"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags every result must carry (combined with any tags: qualifier)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Results to skip, for paging (default: 0)"),
		),
	)
}

// Handle processes the mem_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	results, err := t.store.Search(query, memory.SearchOptions{
		Limit:        intArg(req, "limit", 10),
		Offset:       intArg(req, "offset", 0),
		RequiredTags: memory.SplitTags(req.GetString("tags", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No observations found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d observations:\n\n", len(results))
	for _, r := range results {
		formatObservation(&b, r.Observation, 300)
	}
	return mcp.NewToolResultText(b.String()), nil
}
