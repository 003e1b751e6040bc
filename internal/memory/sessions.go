package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Session groups observations captured during one working stretch.
// Observations reference sessions weakly: deleting or completing a
// session never cascades to its observations.
type Session struct {
	ID         int64  `json:"id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time,omitempty"`
	Project    string `json:"project"`
	WorkingDir string `json:"working_dir,omitempty"`
	AgentType  string `json:"agent_type,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Status     string `json:"status"`
}

// SessionParams carries the optional context recorded at session start.
type SessionParams struct {
	Project    string
	WorkingDir string
	AgentType  string
}

// StartSession opens a new active session and returns it.
func (s *Store) StartSession(p SessionParams) (sess *Session, err error) {
	defer func(start time.Time) { s.observe("session_start", start, err) }(time.Now())

	now := Now()
	err = s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO sessions (start_time, project, working_dir, agent_type, status)
			 VALUES (?, ?, ?, ?, ?)`,
			now, p.Project, p.WorkingDir, p.AgentType, SessionActive,
		)
		if err != nil {
			return fmt.Errorf("%w: insert session: %v", ErrStorage, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: session id: %v", ErrStorage, err)
		}
		sess = &Session{
			ID:         id,
			StartTime:  now,
			Project:    p.Project,
			WorkingDir: p.WorkingDir,
			AgentType:  p.AgentType,
			Status:     SessionActive,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// EndSession marks a session completed, stamping its end time and an
// optional closing summary. Ending an already-completed session only
// refreshes the summary when one is given.
func (s *Store) EndSession(id int64, summary string) (sess *Session, err error) {
	defer func(start time.Time) { s.observe("session_end", start, err) }(time.Now())

	err = s.withWrite(func(tx *sql.Tx) error {
		cur, err := getSessionTx(tx, id)
		if err != nil {
			return err
		}
		if cur.Status == SessionActive {
			cur.EndTime = Now()
			cur.Status = SessionCompleted
		}
		if summary != "" {
			cur.Summary = summary
		}
		_, err = tx.Exec(
			`UPDATE sessions SET end_time = ?, summary = ?, status = ? WHERE id = ?`,
			nullableString(cur.EndTime), cur.Summary, cur.Status, id,
		)
		if err != nil {
			return fmt.Errorf("%w: update session: %v", ErrStorage, err)
		}
		sess = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession looks up one session by id.
func (s *Store) GetSession(id int64) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, start_time, end_time, project, working_dir, agent_type, summary, status
		 FROM sessions WHERE id = ?`,
		id,
	)
	return scanSession(row, id)
}

func getSessionTx(tx *sql.Tx, id int64) (*Session, error) {
	row := tx.QueryRow(
		`SELECT id, start_time, end_time, project, working_dir, agent_type, summary, status
		 FROM sessions WHERE id = ?`,
		id,
	)
	return scanSession(row, id)
}

func scanSession(row *sql.Row, id int64) (*Session, error) {
	var sess Session
	var endTime sql.NullString
	err := row.Scan(&sess.ID, &sess.StartTime, &endTime, &sess.Project,
		&sess.WorkingDir, &sess.AgentType, &sess.Summary, &sess.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan session: %v", ErrStorage, err)
	}
	sess.EndTime = endTime.String
	return &sess, nil
}

// RecentSessions lists sessions newest-first, optionally filtered by
// project. A non-positive limit falls back to 20.
func (s *Store) RecentSessions(project string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, start_time, end_time, project, working_dir, agent_type, summary, status
		 FROM sessions`
	args := []any{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY start_time DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query sessions: %v", ErrStorage, err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var endTime sql.NullString
		if err := rows.Scan(&sess.ID, &sess.StartTime, &endTime, &sess.Project,
			&sess.WorkingDir, &sess.AgentType, &sess.Summary, &sess.Status); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", ErrStorage, err)
		}
		sess.EndTime = endTime.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SessionObservations lists the observations recorded under a session,
// oldest first.
func (s *Store) SessionObservations(id int64) ([]Observation, error) {
	if _, err := s.GetSession(id); err != nil {
		return nil, err
	}
	return s.queryObservations(
		`SELECT `+obsColumns+` FROM observations
		 WHERE session_id = ?
		 ORDER BY timestamp ASC, id ASC`,
		id,
	)
}
