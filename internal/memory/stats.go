package memory

import (
	"fmt"
	"sort"
)

// Stats is a snapshot of what the store currently holds.
type Stats struct {
	Observations int64            `json:"observations"`
	Links        int64            `json:"links"`
	Sessions     int64            `json:"sessions"`
	Earliest     string           `json:"earliest,omitempty"`
	Latest       string           `json:"latest,omitempty"`
	Projects     map[string]int64 `json:"projects"`
	Kinds        map[string]int64 `json:"kinds"`
	TopTags      []TagCount       `json:"top_tags"`
}

// TagCount pairs a tag with how many observations carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

const topTagLimit = 20

// Stats aggregates counts across observations, links and sessions.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{
		Projects: make(map[string]int64),
		Kinds:    make(map[string]int64),
	}

	row := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(MIN(timestamp), ''), COALESCE(MAX(timestamp), '') FROM observations`,
	)
	if err := row.Scan(&st.Observations, &st.Earliest, &st.Latest); err != nil {
		return nil, fmt.Errorf("%w: observation totals: %v", ErrStorage, err)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM observation_links`).Scan(&st.Links); err != nil {
		return nil, fmt.Errorf("%w: link totals: %v", ErrStorage, err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions); err != nil {
		return nil, fmt.Errorf("%w: session totals: %v", ErrStorage, err)
	}

	if err := s.groupCounts(`SELECT project, COUNT(*) FROM observations WHERE project != '' GROUP BY project`, st.Projects); err != nil {
		return nil, err
	}
	if err := s.groupCounts(`SELECT kind, COUNT(*) FROM observations WHERE kind != '' GROUP BY kind`, st.Kinds); err != nil {
		return nil, err
	}

	tags, err := s.tagCounts()
	if err != nil {
		return nil, err
	}
	st.TopTags = tags

	s.metrics.SetStorageCount("observations", st.Observations)
	s.metrics.SetStorageCount("links", st.Links)
	s.metrics.SetStorageCount("sessions", st.Sessions)

	return st, nil
}

func (s *Store) groupCounts(query string, dest map[string]int64) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("%w: group counts: %v", ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("%w: scan group count: %v", ErrStorage, err)
		}
		dest[key] = n
	}
	return rows.Err()
}

// tagCounts walks every observation's tag list. Tags live inside a JSON
// column, so the tally happens here rather than in SQL.
func (s *Store) tagCounts() ([]TagCount, error) {
	rows, err := s.db.Query(`SELECT tags FROM observations WHERE tags != '[]'`)
	if err != nil {
		return nil, fmt.Errorf("%w: query tags: %v", ErrStorage, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: scan tags: %v", ErrStorage, err)
		}
		for _, tag := range parseTagsJSON(raw) {
			counts[tag]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		tags = append(tags, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	if len(tags) > topTagLimit {
		tags = tags[:topTagLimit]
	}
	return tags, nil
}
