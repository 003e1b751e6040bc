// Package memtools provides MCP tool handlers for the observation store.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies (memory.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Tools are storage tools: they receive AI-generated content and persist it.
package memtools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// int64Arg extracts an id-sized integer argument from a tool request.
func int64Arg(req mcp.CallToolRequest, key string, defaultVal int64) int64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int64(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// formatObservation renders one observation as a compact display block.
func formatObservation(b *strings.Builder, o memory.Observation, snippetLen int) {
	fmt.Fprintf(b, "#%d [%s] %s\n", o.ID, o.Timestamp, o.Title)
	if o.Summary != "" {
		fmt.Fprintf(b, "    %s\n", memory.Truncate(o.Summary, snippetLen))
	}
	meta := make([]string, 0, 3)
	if o.Project != "" {
		meta = append(meta, "project: "+o.Project)
	}
	if o.Kind != "" {
		meta = append(meta, "kind: "+o.Kind)
	}
	if len(o.Tags) > 0 {
		meta = append(meta, "tags: "+strings.Join(o.Tags, ", "))
	}
	if len(meta) > 0 {
		fmt.Fprintf(b, "    %s\n", strings.Join(meta, " | "))
	}
	b.WriteString("\n")
}
