package memtools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// StatsTool handles the mem_stats MCP tool.
type StatsTool struct {
	store *memory.Store
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(store *memory.Store) *StatsTool {
	return &StatsTool{store: store}
}

// Definition returns the MCP tool definition for mem_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_stats",
		mcp.WithDescription("Show memory statistics: totals, time span, and breakdowns by project, kind, and tag."),
	)
}

// Handle processes the mem_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load stats: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Observations: %d\nLinks: %d\nSessions: %d\n", stats.Observations, stats.Links, stats.Sessions)
	if stats.Earliest != "" {
		fmt.Fprintf(&b, "Span: %s — %s\n", stats.Earliest, stats.Latest)
	}

	writeCounts(&b, "By project", stats.Projects)
	writeCounts(&b, "By kind", stats.Kinds)

	if len(stats.TopTags) > 0 {
		b.WriteString("\nTop tags:\n")
		for _, tc := range stats.TopTags {
			fmt.Fprintf(&b, "  %s: %d\n", tc.Tag, tc.Count)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func writeCounts(b *strings.Builder, header string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "\n%s:\n", header)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %d\n", k, counts[k])
	}
}
