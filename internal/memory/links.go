package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Recognized link types for the observation relation graph.
const (
	LinkRelated = "related"
	LinkChild   = "child"
	LinkParent  = "parent"
	LinkRefines = "refines"
)

func validLinkType(t string) bool {
	switch t {
	case LinkRelated, LinkChild, LinkParent, LinkRefines:
		return true
	}
	return false
}

// Link is a directed typed edge between two observations.
type Link struct {
	ID        int64  `json:"id"`
	FromID    int64  `json:"from_id"`
	ToID      int64  `json:"to_id"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

// Related pairs an observation with the edge type that reached it.
type Related struct {
	Observation
	LinkType string `json:"link_type"`
}

// SimilarResult is one candidate from the similarity suggester.
type SimilarResult struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Link creates a typed edge between two observations and returns its id.
// Self-links and unrecognized types fail with ErrValidation; a missing
// endpoint fails with ErrNotFound. Creating an edge that already exists
// is a no-op success returning the existing edge id.
func (s *Store) Link(fromID, toID int64, linkType string) (id int64, err error) {
	defer func(start time.Time) { s.observe("link", start, err) }(time.Now())

	if fromID == toID {
		return 0, fmt.Errorf("%w: cannot link observation %d to itself", ErrValidation, fromID)
	}
	if !validLinkType(linkType) {
		return 0, fmt.Errorf("%w: unrecognized link type %q (want related, child, parent, or refines)", ErrValidation, linkType)
	}

	err = s.withWrite(func(tx *sql.Tx) error {
		for _, obsID := range []int64{fromID, toID} {
			var exists int
			if err := tx.QueryRow(
				"SELECT 1 FROM observations WHERE id = ?", obsID,
			).Scan(&exists); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("observation %d: %w", obsID, ErrNotFound)
				}
				return fmt.Errorf("%w: check endpoint %d: %v", ErrStorage, obsID, err)
			}
		}

		res, err := tx.Exec(
			`INSERT OR IGNORE INTO observation_links (from_id, to_id, link_type, created_at)
			 VALUES (?, ?, ?, ?)`,
			fromID, toID, linkType, Now(),
		)
		if err != nil {
			return fmt.Errorf("%w: insert link: %v", ErrStorage, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			id, err = res.LastInsertId()
			return err
		}

		// Duplicate (from, to, type): return the existing edge.
		return tx.QueryRow(
			"SELECT id FROM observation_links WHERE from_id = ? AND to_id = ? AND link_type = ?",
			fromID, toID, linkType,
		).Scan(&id)
	})
	return id, err
}

// Unlink removes edges between two observations. An empty linkType removes
// every edge for the pair; otherwise only the matching type. Returns true
// when at least one edge was removed.
func (s *Store) Unlink(fromID, toID int64, linkType string) (removed bool, err error) {
	defer func(start time.Time) { s.observe("unlink", start, err) }(time.Now())

	if linkType != "" && !validLinkType(linkType) {
		return false, fmt.Errorf("%w: unrecognized link type %q", ErrValidation, linkType)
	}

	err = s.withWrite(func(tx *sql.Tx) error {
		var res sql.Result
		var execErr error
		if linkType != "" {
			res, execErr = tx.Exec(
				"DELETE FROM observation_links WHERE from_id = ? AND to_id = ? AND link_type = ?",
				fromID, toID, linkType,
			)
		} else {
			res, execErr = tx.Exec(
				"DELETE FROM observation_links WHERE from_id = ? AND to_id = ?",
				fromID, toID,
			)
		}
		if execErr != nil {
			return fmt.Errorf("%w: delete link: %v", ErrStorage, execErr)
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		return nil
	})
	return removed, err
}

// Related returns observations reachable by exactly one outgoing edge from
// id, optionally filtered to a single link type. It never traverses
// transitively.
func (s *Store) Related(id int64, linkType string) (results []Related, err error) {
	defer func(start time.Time) { s.observe("related", start, err) }(time.Now())

	if linkType != "" && !validLinkType(linkType) {
		return nil, fmt.Errorf("%w: unrecognized link type %q", ErrValidation, linkType)
	}
	if _, err := s.Get(id); err != nil {
		return nil, err
	}

	query := `
		SELECT o.id, o.timestamp, o.project, o.kind, o.title, o.summary,
		       o.tags, o.raw, o.session_id, l.link_type
		FROM observation_links l
		JOIN observations o ON o.id = l.to_id
		WHERE l.from_id = ?
	`
	args := []any{id}
	if linkType != "" {
		query += " AND l.link_type = ?"
		args = append(args, linkType)
	}
	query += " ORDER BY l.created_at ASC, o.id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query related: %v", ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Related
		var tagsJSON string
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Project, &r.Kind, &r.Title, &r.Summary,
			&tagsJSON, &r.Raw, &r.SessionID, &r.LinkType,
		); err != nil {
			return nil, fmt.Errorf("%w: scan related: %v", ErrStorage, err)
		}
		r.Tags = parseTagsJSON(tagsJSON)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LinksFor returns every edge touching an observation, oldest first.
func (s *Store) LinksFor(id int64) ([]Link, error) {
	rows, err := s.db.Query(
		`SELECT id, from_id, to_id, link_type, created_at
		 FROM observation_links
		 WHERE from_id = ? OR to_id = ?
		 ORDER BY created_at ASC, id ASC`,
		id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query links: %v", ErrStorage, err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.FromID, &l.ToID, &l.Type, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan link: %v", ErrStorage, err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Similarity weights: shared tags dominate, text token overlap refines.
const (
	similarTagWeight  = 0.6
	similarTextWeight = 0.4
)

// SuggestSimilar ranks every other observation by lexical/tag overlap with
// the target and returns the top limit candidates. The score combines the
// Jaccard overlap of tag sets with the Jaccard overlap of title+summary
// tokens, bounded to [0, 1]. The target itself and anything already linked
// with it (either direction) are excluded; zero-score candidates are
// dropped. Ties break by ascending id.
func (s *Store) SuggestSimilar(id int64, limit int) (results []SimilarResult, err error) {
	defer func(start time.Time) { s.observe("suggest_similar", start, err) }(time.Now())

	if limit <= 0 {
		limit = 5
	}

	target, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	linked := map[int64]bool{id: true}
	links, err := s.LinksFor(id)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		linked[l.FromID] = true
		linked[l.ToID] = true
	}

	targetTags := tagSet(target.Tags)
	targetTokens := textTokens(target.Title + " " + target.Summary)

	rows, err := s.db.Query(
		"SELECT id, title, summary, tags_text FROM observations WHERE id != ?", id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query candidates: %v", ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var candID int64
		var title, summary, tagsText string
		if err := rows.Scan(&candID, &title, &summary, &tagsText); err != nil {
			return nil, fmt.Errorf("%w: scan candidate: %v", ErrStorage, err)
		}
		if linked[candID] {
			continue
		}

		score := similarTagWeight*jaccard(targetTags, tagSet(strings.Fields(tagsText))) +
			similarTextWeight*jaccard(targetTokens, textTokens(title+" "+summary))
		if score <= 0 {
			continue
		}
		results = append(results, SimilarResult{ID: candID, Title: title, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate candidates: %v", ErrStorage, err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// textTokens lowercases and splits text, keeping tokens of 3+ characters
// that are not stopwords.
func textTokens(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]{}")
		if len(tok) < 3 || tagStopwords[tok] {
			continue
		}
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if b[k] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
