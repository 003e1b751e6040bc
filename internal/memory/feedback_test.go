package memory_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/memtrail/memtrail/internal/memory"
)

func TestApplyFeedback_CorrectReplacesSummary(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "deploy note", Summary: "released at noon"})

	res, err := s.ApplyFeedback(id, "actually: released at 3pm after the rollback", false)
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	if res.Action != memory.FeedbackCorrect {
		t.Errorf("Action = %q, want correct", res.Action)
	}
	if !res.Applied {
		t.Error("Applied = false")
	}
	change, ok := res.Diff["summary"]
	if !ok {
		t.Fatalf("Diff = %v, missing summary", res.Diff)
	}
	if change.Old != "released at noon" || change.New != "released at 3pm after the rollback" {
		t.Errorf("diff = %+v", change)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != "released at 3pm after the rollback" {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestApplyFeedback_FieldTargetedCorrection(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "old title", Tags: []string{"stale"}})

	res, err := s.ApplyFeedback(id, "correct: title: fixed the auth flow", false)
	if err != nil {
		t.Fatalf("ApplyFeedback (title): %v", err)
	}
	if _, ok := res.Diff["title"]; !ok {
		t.Fatalf("Diff = %v, missing title", res.Diff)
	}

	if _, err := s.ApplyFeedback(id, "fix: tags: auth, OAuth Flow", false); err != nil {
		t.Fatalf("ApplyFeedback (tags): %v", err)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "fixed the auth flow" {
		t.Errorf("Title = %q", got.Title)
	}
	want := []string{"auth", "oauth-flow"}
	if len(got.Tags) != 2 || got.Tags[0] != want[0] || got.Tags[1] != want[1] {
		t.Errorf("Tags = %v, want %v", got.Tags, want)
	}
}

func TestApplyFeedback_SupplementAppends(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "incident", Summary: "db failover at 02:00"})

	res, err := s.ApplyFeedback(id, "additionally: alerting paged the wrong rotation", false)
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	if res.Action != memory.FeedbackSupplement {
		t.Errorf("Action = %q, want supplement", res.Action)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.HasPrefix(got.Summary, "db failover at 02:00") {
		t.Errorf("original summary lost: %q", got.Summary)
	}
	if !strings.Contains(got.Summary, "[supplement] alerting paged the wrong rotation") {
		t.Errorf("supplement not appended: %q", got.Summary)
	}
}

func TestApplyFeedback_SupplementUsesCurrentRow(t *testing.T) {
	cfg := memory.Config{
		DataDir:        t.TempDir(),
		WriteRetries:   2,
		RetryBaseDelay: time.Millisecond,
	}
	s1, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("open first store: %v", err)
	}
	t.Cleanup(func() { s1.Close() })
	s2, err := memory.New(cfg)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	t.Cleanup(func() { s2.Close() })

	id, err := s1.Add(memory.AddParams{Title: "release note", Summary: "first draft"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Another writer rewrites the summary through its own connection.
	newSummary := "second draft"
	if _, err := s2.Update(id, memory.UpdateParams{Summary: &newSummary}); err != nil {
		t.Fatalf("Update via second store: %v", err)
	}

	// The supplement must build on the row as stored, not on any earlier
	// snapshot held by the first store.
	res, err := s1.ApplyFeedback(id, "additionally: reviewed by two people", false)
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	if res.Diff["summary"].Old != "second draft" {
		t.Errorf("diff old = %q, want the concurrently written summary", res.Diff["summary"].Old)
	}

	got, err := s1.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := "second draft\n\n[supplement] reviewed by two people"
	if got.Summary != want {
		t.Errorf("Summary = %q, want %q", got.Summary, want)
	}
}

func TestApplyFeedback_UnknownTreatedAsSupplement(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "misc", Summary: "base"})

	res, err := s.ApplyFeedback(id, "the dashboards were green the whole time", false)
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	if res.Action != memory.FeedbackUnknown {
		t.Errorf("Action = %q, want unknown", res.Action)
	}

	got, _ := s.Get(id)
	if !strings.Contains(got.Summary, "[supplement] the dashboards were green the whole time") {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestApplyFeedback_Delete(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "obsolete", Summary: "superseded"})

	res, err := s.ApplyFeedback(id, "delete this, it was wrong", false)
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	if res.Action != memory.FeedbackDelete {
		t.Errorf("Action = %q, want delete", res.Action)
	}

	if _, err := s.Get(id); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get after delete feedback: %v, want ErrNotFound", err)
	}
}

func TestApplyFeedback_ChineseMarkers(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		text string
		want memory.FeedbackAction
	}{
		{"correct fullwidth colon", "修正：实际在周五上线", memory.FeedbackCorrect},
		{"supplement long marker", "补充说明：回滚花了十分钟", memory.FeedbackSupplement},
		{"delete bare", "标记删除", memory.FeedbackDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := mustAdd(t, s, memory.AddParams{Title: "记录", Summary: "初始内容"})
			res, err := s.ApplyFeedback(id, tt.text, false)
			if err != nil {
				t.Fatalf("ApplyFeedback(%q): %v", tt.text, err)
			}
			if res.Action != tt.want {
				t.Errorf("Action = %q, want %q", res.Action, tt.want)
			}
		})
	}
}

func TestApplyFeedback_DryRun(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "keep me", Summary: "before"})

	res, err := s.ApplyFeedback(id, "actually: after", true)
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	if res.Applied {
		t.Error("dry run reported Applied = true")
	}
	if res.Diff["summary"].New != "after" {
		t.Errorf("Diff = %v", res.Diff)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != "before" {
		t.Errorf("dry run mutated summary: %q", got.Summary)
	}

	// Dry runs still land in the audit trail, flagged as unapplied.
	history, err := s.FeedbackHistory(id)
	if err != nil {
		t.Fatalf("FeedbackHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1", len(history))
	}
	if history[0].Applied {
		t.Error("dry-run record marked applied")
	}
}

func TestApplyFeedback_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ApplyFeedback(404, "actually: anything", false)
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFeedbackHistory_OrderAndContent(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "note", Summary: "v1"})

	if _, err := s.ApplyFeedback(id, "actually: v2", false); err != nil {
		t.Fatalf("first feedback: %v", err)
	}
	if _, err := s.ApplyFeedback(id, "additionally: and a footnote", false); err != nil {
		t.Fatalf("second feedback: %v", err)
	}

	history, err := s.FeedbackHistory(id)
	if err != nil {
		t.Fatalf("FeedbackHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len = %d, want 2", len(history))
	}
	if history[0].Action != memory.FeedbackCorrect || history[1].Action != memory.FeedbackSupplement {
		t.Errorf("actions = %q, %q", history[0].Action, history[1].Action)
	}
	if history[0].FeedbackText != "actually: v2" {
		t.Errorf("FeedbackText = %q", history[0].FeedbackText)
	}
	if !history[0].Applied {
		t.Error("applied record flagged unapplied")
	}
}

func TestFeedbackHistory_GoneObservation(t *testing.T) {
	s := newTestStore(t)
	id := mustAdd(t, s, memory.AddParams{Title: "doomed"})
	if _, err := s.ApplyFeedback(id, "delete it", false); err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}

	_, err := s.FeedbackHistory(id)
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestBatchFeedback_PartialFailure(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, memory.AddParams{Title: "a", Summary: "one"})
	b := mustAdd(t, s, memory.AddParams{Title: "b", Summary: "two"})

	res, err := s.BatchFeedback([]memory.BatchFeedbackItem{
		{ObservationID: a, Text: "actually: updated one"},
		{ObservationID: 9999, Text: "actually: nobody home"},
		{ObservationID: b, Text: "additionally: extra context"},
	}, false)
	if err != nil {
		t.Fatalf("BatchFeedback: %v", err)
	}
	if res.Applied != 2 || res.Failed != 1 {
		t.Errorf("Applied/Failed = %d/%d, want 2/1", res.Applied, res.Failed)
	}
	if len(res.Errors) != 1 || res.Errors[0].ObservationID != 9999 {
		t.Errorf("Errors = %+v", res.Errors)
	}

	got, _ := s.Get(a)
	if got.Summary != "updated one" {
		t.Errorf("first item not applied: %q", got.Summary)
	}
}

func TestBatchFeedback_DryRun(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, memory.AddParams{Title: "a", Summary: "orig"})

	res, err := s.BatchFeedback([]memory.BatchFeedbackItem{
		{ObservationID: a, Text: "actually: changed"},
	}, true)
	if err != nil {
		t.Fatalf("BatchFeedback: %v", err)
	}
	// Dry-run previews still count as processed; the per-item flag says
	// nothing was written.
	if res.Applied != 1 || res.Failed != 0 {
		t.Errorf("Applied/Failed = %d/%d, want 1/0", res.Applied, res.Failed)
	}
	if len(res.Results) != 1 || res.Results[0].Applied {
		t.Errorf("Results = %+v", res.Results)
	}
	got, _ := s.Get(a)
	if got.Summary != "orig" {
		t.Errorf("dry run mutated: %q", got.Summary)
	}
}
