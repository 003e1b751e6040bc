package memory_test

import (
	"errors"
	"testing"

	"github.com/memtrail/memtrail/internal/memory"
)

func TestLink_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, memory.AddParams{Title: "cause"})
	b := mustAdd(t, s, memory.AddParams{Title: "effect"})

	id, err := s.Link(a, b, memory.LinkChild)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if id == 0 {
		t.Fatal("link id is zero")
	}

	links, err := s.LinksFor(a)
	if err != nil {
		t.Fatalf("LinksFor: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("len = %d, want 1", len(links))
	}
	l := links[0]
	if l.FromID != a || l.ToID != b || l.Type != memory.LinkChild {
		t.Errorf("link = %+v", l)
	}
	if l.CreatedAt == "" {
		t.Error("CreatedAt empty")
	}
}

func TestLink_DuplicateReturnsExisting(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, memory.AddParams{Title: "a"})
	b := mustAdd(t, s, memory.AddParams{Title: "b"})

	first, err := s.Link(a, b, memory.LinkRelated)
	if err != nil {
		t.Fatalf("first Link: %v", err)
	}
	second, err := s.Link(a, b, memory.LinkRelated)
	if err != nil {
		t.Fatalf("duplicate Link: %v", err)
	}
	if first != second {
		t.Errorf("duplicate link created new row: %d != %d", first, second)
	}

	// Same pair under a different type is a distinct link.
	other, err := s.Link(a, b, memory.LinkRefines)
	if err != nil {
		t.Fatalf("Link (other type): %v", err)
	}
	if other == first {
		t.Error("different link type collapsed into existing link")
	}
}

func TestLink_Validation(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, memory.AddParams{Title: "a"})
	b := mustAdd(t, s, memory.AddParams{Title: "b"})

	if _, err := s.Link(a, a, memory.LinkRelated); !errors.Is(err, memory.ErrValidation) {
		t.Errorf("self link error = %v, want ErrValidation", err)
	}
	if _, err := s.Link(a, b, "friendship"); !errors.Is(err, memory.ErrValidation) {
		t.Errorf("bad type error = %v, want ErrValidation", err)
	}
	if _, err := s.Link(a, 9999, memory.LinkRelated); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("missing endpoint error = %v, want ErrNotFound", err)
	}
}

func TestUnlink(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, memory.AddParams{Title: "a"})
	b := mustAdd(t, s, memory.AddParams{Title: "b"})
	if _, err := s.Link(a, b, memory.LinkRelated); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := s.Link(a, b, memory.LinkRefines); err != nil {
		t.Fatalf("Link: %v", err)
	}

	removed, err := s.Unlink(a, b, memory.LinkRelated)
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if !removed {
		t.Fatal("typed unlink removed nothing")
	}

	links, _ := s.LinksFor(a)
	if len(links) != 1 || links[0].Type != memory.LinkRefines {
		t.Fatalf("remaining links = %+v", links)
	}

	// Empty type removes every remaining link between the pair.
	removed, err = s.Unlink(a, b, "")
	if err != nil {
		t.Fatalf("Unlink all: %v", err)
	}
	if !removed {
		t.Fatal("unlink-all removed nothing")
	}
	removed, err = s.Unlink(a, b, "")
	if err != nil {
		t.Fatalf("Unlink empty: %v", err)
	}
	if removed {
		t.Error("unlink on empty pair reported removal")
	}
}

func TestRelated_OutgoingOnly(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, memory.AddParams{Title: "a"})
	b := mustAdd(t, s, memory.AddParams{Title: "b"})
	c := mustAdd(t, s, memory.AddParams{Title: "c"})
	if _, err := s.Link(a, b, memory.LinkChild); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := s.Link(c, a, memory.LinkRelated); err != nil {
		t.Fatalf("Link: %v", err)
	}

	got, err := s.Related(a, "")
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(got) != 1 || got[0].ID != b {
		t.Fatalf("Related(a) = %+v, want only b", got)
	}
	if got[0].LinkType != memory.LinkChild {
		t.Errorf("LinkType = %q", got[0].LinkType)
	}

	// Typed filter.
	got, err = s.Related(a, memory.LinkParent)
	if err != nil {
		t.Fatalf("Related typed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Related(a, parent) = %+v, want none", got)
	}
}

func TestRelated_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Related(42, "")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// ─── Similarity ──────────────────────────────────────────────────────────────

func TestSuggestSimilar_RanksByOverlap(t *testing.T) {
	s := newTestStore(t)
	subject := mustAdd(t, s, memory.AddParams{
		Title: "redis cache eviction storm",
		Tags:  []string{"redis", "cache", "perf"},
	})
	strong := mustAdd(t, s, memory.AddParams{
		Title: "redis cache warmup strategy",
		Tags:  []string{"redis", "cache"},
	})
	weak := mustAdd(t, s, memory.AddParams{
		Title: "quarterly planning notes",
		Tags:  []string{"perf"},
	})
	mustAdd(t, s, memory.AddParams{
		Title: "unrelated frontend tweak",
		Tags:  []string{"css"},
	})

	got, err := s.SuggestSimilar(subject, 10)
	if err != nil {
		t.Fatalf("SuggestSimilar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].ID != strong || got[1].ID != weak {
		t.Errorf("order = [%d %d], want [%d %d]", got[0].ID, got[1].ID, strong, weak)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %f <= %f", got[0].Score, got[1].Score)
	}
}

func TestSuggestSimilar_ExcludesSelfAndLinked(t *testing.T) {
	s := newTestStore(t)
	subject := mustAdd(t, s, memory.AddParams{Title: "redis outage", Tags: []string{"redis"}})
	linked := mustAdd(t, s, memory.AddParams{Title: "redis failover", Tags: []string{"redis"}})
	incoming := mustAdd(t, s, memory.AddParams{Title: "redis upgrade", Tags: []string{"redis"}})
	free := mustAdd(t, s, memory.AddParams{Title: "redis sizing", Tags: []string{"redis"}})

	if _, err := s.Link(subject, linked, memory.LinkRelated); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := s.Link(incoming, subject, memory.LinkRelated); err != nil {
		t.Fatalf("Link: %v", err)
	}

	got, err := s.SuggestSimilar(subject, 10)
	if err != nil {
		t.Fatalf("SuggestSimilar: %v", err)
	}
	if len(got) != 1 || got[0].ID != free {
		t.Errorf("got %+v, want only #%d", got, free)
	}
}

func TestSuggestSimilar_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SuggestSimilar(17, 5)
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
