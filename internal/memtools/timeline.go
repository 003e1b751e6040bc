package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// TimelineTool handles the mem_timeline MCP tool.
type TimelineTool struct {
	store *memory.Store
}

// NewTimelineTool creates a TimelineTool.
func NewTimelineTool(store *memory.Store) *TimelineTool {
	return &TimelineTool{store: store}
}

// Definition returns the MCP tool definition for mem_timeline.
func (t *TimelineTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_timeline",
		mcp.WithDescription(
			"Show observations in chronological order, either around a specific observation "+
				"(around_id + window_minutes) or within an explicit time range (start/end). "+
				"Useful after mem_search to see what happened before and after a result.",
		),
		mcp.WithNumber("around_id",
			mcp.Description("Center the window on this observation"),
		),
		mcp.WithNumber("window_minutes",
			mcp.Description("Minutes either side of the anchor (default: 30)"),
		),
		mcp.WithString("start",
			mcp.Description("Range start as YYYY-MM-DDTHH:MM:SSZ"),
		),
		mcp.WithString("end",
			mcp.Description("Range end as YYYY-MM-DDTHH:MM:SSZ"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max entries (default: 50)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Entries to skip, for paging (default: 0)"),
		),
	)
}

// Handle processes the mem_timeline tool call.
func (t *TimelineTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := memory.TimelineQuery{
		AroundID:      int64Arg(req, "around_id", 0),
		WindowMinutes: intArg(req, "window_minutes", 0),
		Start:         req.GetString("start", ""),
		End:           req.GetString("end", ""),
		Limit:         intArg(req, "limit", 50),
		Offset:        intArg(req, "offset", 0),
	}
	if q.AroundID <= 0 && q.Start == "" && q.End == "" {
		return mcp.NewToolResultError("provide 'around_id' or a 'start'/'end' range"), nil
	}

	entries, err := t.store.Timeline(q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("timeline failed: %v", err)), nil
	}

	if len(entries) == 0 {
		return mcp.NewToolResultText("No observations in that window."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Timeline (%d entries):\n\n", len(entries))
	for _, o := range entries {
		marker := "  "
		if q.AroundID > 0 && o.ID == q.AroundID {
			marker = "➤ "
		}
		fmt.Fprintf(&b, "%s#%d [%s] %s\n", marker, o.ID, o.Timestamp, o.Title)
		if o.Summary != "" {
			fmt.Fprintf(&b, "      %s\n", memory.Truncate(o.Summary, 200))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
