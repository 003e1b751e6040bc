// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the memory store and injects
// it into the tool handlers. No business logic lives here — only wiring.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/memtrail/memtrail/internal/memory"
	"github.com/memtrail/memtrail/internal/memtools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all memory tools
// registered.
//
// The returned cleanup function closes the memory store's database
// connection and must be called on shutdown (typically via defer).
func New(cfg memory.Config) (*server.MCPServer, func(), error) {
	store, err := memory.New(cfg)
	if err != nil {
		return nil, noop, fmt.Errorf("opening memory store: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	s := server.NewMCPServer(
		"memtrail",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, store)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used when store init fails.
func noop() {}

// registerTools registers all memory MCP tools with the server.
func registerTools(s *server.MCPServer, ms *memory.Store) {
	// --- Session lifecycle ---
	sessionStart := memtools.NewSessionStartTool(ms)
	s.AddTool(sessionStart.Definition(), sessionStart.Handle)

	sessionEnd := memtools.NewSessionEndTool(ms)
	s.AddTool(sessionEnd.Definition(), sessionEnd.Handle)

	// --- Record & retrieve ---
	addTool := memtools.NewAddTool(ms)
	s.AddTool(addTool.Definition(), addTool.Handle)

	getTool := memtools.NewGetTool(ms)
	s.AddTool(getTool.Definition(), getTool.Handle)

	updateTool := memtools.NewUpdateTool(ms)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	deleteTool := memtools.NewDeleteTool(ms)
	s.AddTool(deleteTool.Definition(), deleteTool.Handle)

	// --- Query ---
	searchTool := memtools.NewSearchTool(ms)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	timelineTool := memtools.NewTimelineTool(ms)
	s.AddTool(timelineTool.Definition(), timelineTool.Handle)

	// --- Links & similarity ---
	linkTool := memtools.NewLinkTool(ms)
	s.AddTool(linkTool.Definition(), linkTool.Handle)

	unlinkTool := memtools.NewUnlinkTool(ms)
	s.AddTool(unlinkTool.Definition(), unlinkTool.Handle)

	relatedTool := memtools.NewRelatedTool(ms)
	s.AddTool(relatedTool.Definition(), relatedTool.Handle)

	similarTool := memtools.NewSimilarTool(ms)
	s.AddTool(similarTool.Definition(), similarTool.Handle)

	// --- Feedback corrections ---
	feedbackTool := memtools.NewFeedbackTool(ms)
	s.AddTool(feedbackTool.Definition(), feedbackTool.Handle)

	historyTool := memtools.NewFeedbackHistoryTool(ms)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	batchTool := memtools.NewFeedbackBatchTool(ms)
	s.AddTool(batchTool.Definition(), batchTool.Handle)

	// --- Statistics ---
	statsTool := memtools.NewStatsTool(ms)
	s.AddTool(statsTool.Definition(), statsTool.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how to use the memory store effectively.
func serverInstructions() string {
	return `You have access to memtrail, a persistent memory MCP server.
Memory survives between conversations — use it to build knowledge over time.

## Session Lifecycle
1. Call mem_session_start at the beginning of a working session
2. Record observations throughout with mem_add, passing the session_id
3. Call mem_session_end with a closing summary when done

## When to Record (call mem_add PROACTIVELY after each of these)
- Decisions made or tradeoffs accepted
- Bug fixes: what was wrong, why, how it was fixed
- Discoveries, gotchas, edge cases
- Configuration changes or environment setup
- User preferences and corrections

## When to Search (call mem_search)
- At the start of a session, to recover context
- Before making decisions (check whether prior decisions exist)
- When the user references something from a previous session

Queries support inline qualifiers: project:<name>, kind:<kind>, tags:<a,b>.
Example: "connection timeout project:api tags:redis,cache"

## Progressive Disclosure
1. mem_search for a topic
2. mem_timeline(around_id=...) to see what happened before and after a result
3. mem_get to read one observation in full
4. mem_related / mem_similar to follow or discover connections

## Corrections
When the user says a memory is wrong, use mem_feedback with their words:
- "correct: <new content>" replaces the summary
- "correct: title: <new title>" replaces one field
- "add: <note>" appends a supplement without erasing anything
- "delete" removes the observation
Use dry_run=true first when unsure what a correction will do.
Every correction is recorded in an audit trail — see mem_feedback_history.

## Links
Connect observations into a graph with mem_link (related, child, parent,
refines). Use mem_similar to find candidates worth linking.`
}
