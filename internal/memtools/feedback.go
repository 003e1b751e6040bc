package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memtrail/memtrail/internal/memory"
)

// FeedbackTool handles the mem_feedback MCP tool.
type FeedbackTool struct {
	store *memory.Store
}

// NewFeedbackTool creates a FeedbackTool.
func NewFeedbackTool(store *memory.Store) *FeedbackTool {
	return &FeedbackTool{store: store}
}

// Definition returns the MCP tool definition for mem_feedback.
func (t *FeedbackTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_feedback",
		mcp.WithDescription(
			"Apply a natural-language correction to a stored observation. The instruction is classified "+
				"as a correction ('correct: ...', 'should be: ...'), a supplement ('add: ...', 'note: ...') "+
				"or a deletion ('delete'). Corrections can target one field ('correct: title: New title'). "+
				"Unrecognized instructions are appended as supplements — nothing is silently replaced. "+
				"Use dry_run to preview the change.",
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Observation ID the feedback targets"),
		),
		mcp.WithString("feedback",
			mcp.Required(),
			mcp.Description("The correction text (e.g. 'correct: summary: The key is xyz789 not abc123')"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Preview the diff without applying it (default: false)"),
		),
	)
}

// Handle processes the mem_feedback tool call.
func (t *FeedbackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	feedback := req.GetString("feedback", "")
	if strings.TrimSpace(feedback) == "" {
		return mcp.NewToolResultError("'feedback' is required"), nil
	}

	result, err := t.store.ApplyFeedback(id, feedback, boolArg(req, "dry_run", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("feedback failed: %v", err)), nil
	}

	var b strings.Builder
	verb := "applied to"
	if !result.Applied {
		verb = "previewed for"
	}
	fmt.Fprintf(&b, "Feedback (%s) %s observation #%d.\n", result.Action, verb, id)
	writeDiff(&b, result.Diff)
	return mcp.NewToolResultText(b.String()), nil
}

func writeDiff(b *strings.Builder, diff map[string]memory.FieldChange) {
	if len(diff) == 0 {
		b.WriteString("No field changes.\n")
		return
	}
	for _, field := range []string{"title", "summary", "project", "kind", "tags"} {
		change, ok := diff[field]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "\n%s:\n  - %s\n  + %s\n",
			field,
			memory.Truncate(change.Old, 200),
			memory.Truncate(change.New, 200),
		)
	}
}

// ─── FeedbackHistoryTool ─────────────────────────────────────────────────────

// FeedbackHistoryTool handles the mem_feedback_history MCP tool.
type FeedbackHistoryTool struct {
	store *memory.Store
}

// NewFeedbackHistoryTool creates a FeedbackHistoryTool.
func NewFeedbackHistoryTool(store *memory.Store) *FeedbackHistoryTool {
	return &FeedbackHistoryTool{store: store}
}

// Definition returns the MCP tool definition for mem_feedback_history.
func (t *FeedbackHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_feedback_history",
		mcp.WithDescription("Show the feedback audit trail for an observation, oldest first."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Observation ID"),
		),
	)
}

// Handle processes the mem_feedback_history tool call.
func (t *FeedbackHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	records, err := t.store.FeedbackHistory(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load history: %v", err)), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No feedback recorded for #%d.", id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Feedback history for #%d (%d entries):\n\n", id, len(records))
	for _, r := range records {
		status := "applied"
		if !r.Applied {
			status = "dry-run"
		}
		fmt.Fprintf(&b, "[%s] %s (%s)\n    %s\n", r.Timestamp, r.Action, status, memory.Truncate(r.FeedbackText, 200))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── FeedbackBatchTool ───────────────────────────────────────────────────────

// FeedbackBatchTool handles the mem_feedback_batch MCP tool.
type FeedbackBatchTool struct {
	store *memory.Store
}

// NewFeedbackBatchTool creates a FeedbackBatchTool.
func NewFeedbackBatchTool(store *memory.Store) *FeedbackBatchTool {
	return &FeedbackBatchTool{store: store}
}

// Definition returns the MCP tool definition for mem_feedback_batch.
func (t *FeedbackBatchTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_feedback_batch",
		mcp.WithDescription(
			"Apply feedback to several observations in one call. Items are independent: "+
				"one failure never blocks the rest.",
		),
		mcp.WithString("items",
			mcp.Required(),
			mcp.Description(`JSON array of {"id": <observation id>, "text": "<feedback>"} objects`),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Preview all diffs without applying (default: false)"),
		),
	)
}

// Handle processes the mem_feedback_batch tool call.
func (t *FeedbackBatchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("items", "")
	if raw == "" {
		return mcp.NewToolResultError("'items' is required"), nil
	}

	var items []memory.BatchFeedbackItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid 'items' JSON: %v", err)), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultError("'items' must contain at least one entry"), nil
	}

	result, err := t.store.BatchFeedback(items, boolArg(req, "dry_run", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("batch feedback failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Batch feedback: %d applied, %d failed.\n", result.Applied, result.Failed)
	for _, e := range result.Errors {
		fmt.Fprintf(&b, "  #%d: %s\n", e.ObservationID, e.Error)
	}
	return mcp.NewToolResultText(b.String()), nil
}
