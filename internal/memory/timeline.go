package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimelineQuery selects a time slice of the store. The two modes are
// mutually exclusive: AroundID > 0 selects a symmetric window of
// WindowMinutes around the anchor observation's timestamp; otherwise
// Start/End bound an absolute range. All bounds are inclusive.
type TimelineQuery struct {
	AroundID      int64
	WindowMinutes int

	Start string
	End   string

	Limit  int
	Offset int
}

// Timeline returns observations in the requested window, ascending by
// timestamp with ties broken by ascending id. Around-id mode fails with
// ErrNotFound when the anchor does not exist and always includes the
// anchor itself. An absolute range with start after end yields an empty
// result, not an error.
func (s *Store) Timeline(q TimelineQuery) (results []Observation, err error) {
	defer func(start time.Time) { s.observe("timeline", start, err) }(time.Now())

	startTS, endTS := strings.TrimSpace(q.Start), strings.TrimSpace(q.End)

	if q.AroundID > 0 {
		var anchorTS string
		row := s.db.QueryRow("SELECT timestamp FROM observations WHERE id = ?", q.AroundID)
		switch scanErr := row.Scan(&anchorTS); {
		case errors.Is(scanErr, sql.ErrNoRows):
			return nil, fmt.Errorf("timeline anchor %d: %w", q.AroundID, ErrNotFound)
		case scanErr != nil:
			return nil, fmt.Errorf("%w: read anchor %d: %v", ErrStorage, q.AroundID, scanErr)
		}
		anchor, parseErr := time.Parse(TimeFormat, anchorTS)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: anchor timestamp %q: %v", ErrStorage, anchorTS, parseErr)
		}
		minutes := q.WindowMinutes
		if minutes <= 0 {
			minutes = 30
		}
		window := time.Duration(minutes) * time.Minute
		startTS = anchor.Add(-window).Format(TimeFormat)
		endTS = anchor.Add(window).Format(TimeFormat)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.MaxTimelineResults
	}

	query := "SELECT " + obsColumns + " FROM observations WHERE 1=1"
	var args []any
	if startTS != "" {
		query += " AND timestamp >= ?"
		args = append(args, startTS)
	}
	if endTS != "" {
		query += " AND timestamp <= ?"
		args = append(args, endTS)
	}
	query += " ORDER BY timestamp ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	return s.queryObservations(query, args...)
}
