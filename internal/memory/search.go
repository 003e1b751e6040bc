package memory

import (
	"fmt"
	"strings"
	"time"
)

// SearchOptions holds filters and paging for ranked search.
type SearchOptions struct {
	Limit  int
	Offset int

	// RequiredTags is an AND filter: every tag must be present in the
	// observation's tag set. It is structural, applied before ranking,
	// and independent of any inline "tags:" qualifier in the query text.
	RequiredTags []string
}

// SearchResult embeds an Observation with its relevance score. Lower is
// more relevant (FTS5 bm25); filter-only results carry a zero score.
type SearchResult struct {
	Observation
	Score float64 `json:"score"`
}

// queryFilter is the structured part extracted from free query text.
type queryFilter struct {
	free    string
	project string
	kind    string
	tags    []string
}

// parseQuery splits inline qualifiers out of query text. Recognized
// prefixes: project:<name>, kind:<name>, tags:<comma-list>. A qualifier
// with an empty value is dropped rather than failing the query.
func parseQuery(query string) queryFilter {
	var f queryFilter
	var free []string

	for _, token := range strings.Fields(query) {
		lower := strings.ToLower(token)
		switch {
		case strings.HasPrefix(lower, "project:"):
			if v := token[len("project:"):]; v != "" {
				f.project = v
			}
		case strings.HasPrefix(lower, "kind:"):
			if v := token[len("kind:"):]; v != "" {
				f.kind = v
			}
		case strings.HasPrefix(lower, "tags:"):
			f.tags = append(f.tags, SplitTags(token[len("tags:"):])...)
		default:
			free = append(free, token)
		}
	}
	f.free = strings.Join(free, " ")
	return f
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

// Search runs a ranked full-text query over title, summary, and the
// flattened tag text, combined conjunctively with inline qualifiers and
// RequiredTags. Ranking is bm25 with ties broken by descending id; an
// empty free-text query with at least one filter returns filter-only
// results ordered by recency. Pagination over an unchanged store is
// deterministic.
func (s *Store) Search(query string, opts SearchOptions) (results []SearchResult, err error) {
	defer func(start time.Time) { s.observe("search", start, err) }(time.Now())

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	f := parseQuery(query)
	required := NormalizeTags(append(append([]string{}, f.tags...), opts.RequiredTags...))

	ftsQuery := sanitizeFTS(f.free)
	if ftsQuery == "" {
		return s.searchRecent(f, required, limit, opts.Offset)
	}

	sqlStr := `
		SELECT observations.id, observations.timestamp, observations.project,
		       observations.kind, observations.title, observations.summary,
		       observations.tags, observations.raw, observations.session_id,
		       bm25(observations_fts) AS score
		FROM observations_fts
		JOIN observations ON observations.id = observations_fts.rowid
		WHERE observations_fts MATCH ?
	`
	args := []any{ftsQuery}

	if f.project != "" {
		sqlStr += " AND observations.project = ?"
		args = append(args, f.project)
	}
	if f.kind != "" {
		sqlStr += " AND observations.kind = ?"
		args = append(args, f.kind)
	}
	sqlStr += tagFilterSQL(required, &args)

	sqlStr += " ORDER BY score, observations.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	return s.querySearchResults(sqlStr, args...)
}

// searchRecent is the filter-only path: no relevance match, recency order.
func (s *Store) searchRecent(f queryFilter, required []string, limit, offset int) ([]SearchResult, error) {
	sqlStr := `
		SELECT id, timestamp, project, kind, title, summary, tags, raw, session_id,
		       0.0 AS score
		FROM observations
		WHERE 1=1
	`
	var args []any

	if f.project != "" {
		sqlStr += " AND project = ?"
		args = append(args, f.project)
	}
	if f.kind != "" {
		sqlStr += " AND kind = ?"
		args = append(args, f.kind)
	}
	sqlStr += tagFilterSQL(required, &args)

	sqlStr += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.querySearchResults(sqlStr, args...)
}

func (s *Store) querySearchResults(query string, args ...any) ([]SearchResult, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStorage, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		var tagsJSON string
		if err := rows.Scan(
			&sr.ID, &sr.Timestamp, &sr.Project, &sr.Kind, &sr.Title,
			&sr.Summary, &tagsJSON, &sr.Raw, &sr.SessionID, &sr.Score,
		); err != nil {
			return nil, fmt.Errorf("%w: scan search result: %v", ErrStorage, err)
		}
		sr.Tags = parseTagsJSON(tagsJSON)
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate search results: %v", ErrStorage, err)
	}
	return results, nil
}
