package memory

import (
	"database/sql"
	"fmt"
	"time"
)

// ExportData is the portable snapshot format. It round-trips through
// Import: ids are preserved so links keep pointing at the right rows.
type ExportData struct {
	ExportedAt   string        `json:"exported_at"`
	Sessions     []Session     `json:"sessions"`
	Observations []Observation `json:"observations"`
	Links        []Link        `json:"links"`
}

// ImportResult reports what a snapshot import actually inserted. Rows
// whose id already exists are skipped, not overwritten.
type ImportResult struct {
	Sessions     int `json:"sessions"`
	Observations int `json:"observations"`
	Links        int `json:"links"`
	Skipped      int `json:"skipped"`
}

// Export snapshots the whole store.
func (s *Store) Export() (*ExportData, error) {
	data := &ExportData{ExportedAt: Now()}

	sessions, err := s.RecentSessions("", 1<<30)
	if err != nil {
		return nil, err
	}
	data.Sessions = sessions

	observations, err := s.queryObservations(
		`SELECT ` + obsColumns + ` FROM observations ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	data.Observations = observations

	rows, err := s.db.Query(
		`SELECT id, from_id, to_id, link_type, created_at FROM observation_links ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query links: %v", ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.FromID, &l.ToID, &l.Type, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan link: %v", ErrStorage, err)
		}
		data.Links = append(data.Links, l)
	}
	return data, rows.Err()
}

// Import loads a snapshot produced by Export. The whole import runs in
// one transaction: a malformed snapshot leaves the store untouched.
func (s *Store) Import(data *ExportData) (result *ImportResult, err error) {
	defer func(start time.Time) { s.observe("import", start, err) }(time.Now())

	result = &ImportResult{}
	err = s.withWrite(func(tx *sql.Tx) error {
		for _, sess := range data.Sessions {
			res, err := tx.Exec(
				`INSERT OR IGNORE INTO sessions (id, start_time, end_time, project, working_dir, agent_type, summary, status)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sess.ID, sess.StartTime, nullableString(sess.EndTime), sess.Project,
				sess.WorkingDir, sess.AgentType, sess.Summary, sess.Status,
			)
			if err != nil {
				return fmt.Errorf("%w: import session %d: %v", ErrStorage, sess.ID, err)
			}
			countInserted(res, &result.Sessions, &result.Skipped)
		}

		for _, obs := range data.Observations {
			tags := NormalizeTags(obs.Tags)
			res, err := tx.Exec(
				`INSERT OR IGNORE INTO observations (id, timestamp, project, kind, title, summary, tags, tags_text, raw, session_id)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				obs.ID, obs.Timestamp, obs.Project, obs.Kind, obs.Title, obs.Summary,
				tagsToJSON(tags), tagsToText(tags), obs.Raw, obs.SessionID,
			)
			if err != nil {
				return fmt.Errorf("%w: import observation %d: %v", ErrStorage, obs.ID, err)
			}
			countInserted(res, &result.Observations, &result.Skipped)
		}

		for _, l := range data.Links {
			if !validLinkType(l.Type) {
				return fmt.Errorf("%w: link %d has unknown type %q", ErrValidation, l.ID, l.Type)
			}
			res, err := tx.Exec(
				`INSERT OR IGNORE INTO observation_links (id, from_id, to_id, link_type, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				l.ID, l.FromID, l.ToID, l.Type, l.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("%w: import link %d: %v", ErrStorage, l.ID, err)
			}
			countInserted(res, &result.Links, &result.Skipped)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func countInserted(res sql.Result, inserted *int, skipped *int) {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		*inserted++
	} else {
		*skipped++
	}
}
