// Package memory implements the durable observation store for memtrail.
//
// It persists short text observations (decisions, incidents, notes) in a
// single SQLite database with FTS5 full-text search, and layers the
// retrieval engines on top: ranked search with tag filters, time-windowed
// timelines, a typed link graph with similarity suggestions, and a
// natural-language feedback pipeline that corrects existing records.
package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memtrail/memtrail/internal/metrics"
	_ "modernc.org/sqlite"
)

// TimeFormat is the canonical timestamp layout: ISO-8601 UTC, second
// precision. Stored timestamps compare correctly as strings.
const TimeFormat = "2006-01-02T15:04:05Z"

const schemaVersion = 2

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Now returns the current UTC time in the canonical layout.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// ─── Types ───────────────────────────────────────────────────────────────────

// Observation is a single memory record. The id is immutable and never
// reused; every other field can be edited.
type Observation struct {
	ID        int64    `json:"id"`
	Timestamp string   `json:"timestamp"`
	Project   string   `json:"project"`
	Kind      string   `json:"kind"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Raw       string   `json:"raw,omitempty"`
	SessionID *int64   `json:"session_id,omitempty"`
}

// AddParams holds the input for creating a new observation.
type AddParams struct {
	Timestamp string // defaults to now
	Project   string
	Kind      string
	Title     string
	Summary   string
	Raw       string
	Tags      []string
	SessionID *int64
	AutoTags  bool // derive tags from title+summary when none given
}

// UpdateParams holds partial update fields. Nil pointers (and a nil Tags
// slice) leave the field unchanged; an empty non-nil Tags slice clears the
// tag set.
type UpdateParams struct {
	Timestamp *string
	Project   *string
	Kind      *string
	Title     *string
	Summary   *string
	Raw       *string
	Tags      []string
	AutoTags  bool
}

// ListOptions filters and pages a recency-ordered listing.
type ListOptions struct {
	Limit        int
	Offset       int
	Project      string
	Kind         string
	RequiredTags []string
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir            string
	MaxSearchResults   int
	MaxTimelineResults int

	// Write contention handling: a writer retries up to WriteRetries times
	// with jittered exponential backoff starting at RetryBaseDelay, then
	// fails with ErrBusy.
	WriteRetries   int
	RetryBaseDelay time.Duration

	// Metrics receives operation timings. Nil means no-op.
	Metrics metrics.Collector
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:            filepath.Join(home, ".memtrail"),
		MaxSearchResults:   50,
		MaxTimelineResults: 200,
		WriteRetries:       5,
		RetryBaseDelay:     25 * time.Millisecond,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent memory engine backed by SQLite + FTS5.
type Store struct {
	db      *sql.DB
	cfg     Config
	metrics metrics.Collector
}

// New creates a Store with the given configuration. It creates the data
// directory if needed, opens SQLite in WAL mode, and ensures the schema.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "memory.db")
	db, err := openDB("sqlite", "file:"+dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 2000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	def := DefaultConfig()
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = def.MaxSearchResults
	}
	if cfg.MaxTimelineResults <= 0 {
		cfg.MaxTimelineResults = def.MaxTimelineResults
	}
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = def.WriteRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}

	mc := cfg.Metrics
	if mc == nil {
		mc = metrics.NewNoopCollector()
	}

	s := &Store{db: db, cfg: cfg, metrics: mc}
	if err := s.EnsureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Schema ──────────────────────────────────────────────────────────────────

// EnsureSchema creates all tables, indexes, the FTS5 virtual table, and its
// sync triggers. It is idempotent and safe to call on every start; the
// schema version lives in the meta table.
func (s *Store) EnsureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS observations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  TEXT NOT NULL,
			project    TEXT NOT NULL DEFAULT '',
			kind       TEXT NOT NULL DEFAULT '',
			title      TEXT NOT NULL DEFAULT '',
			summary    TEXT NOT NULL DEFAULT '',
			tags       TEXT NOT NULL DEFAULT '[]',
			tags_text  TEXT NOT NULL DEFAULT '',
			raw        TEXT NOT NULL DEFAULT '',
			session_id INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_obs_timestamp ON observations(timestamp, id);
		CREATE INDEX IF NOT EXISTS idx_obs_project   ON observations(project);
		CREATE INDEX IF NOT EXISTS idx_obs_kind      ON observations(kind);

		CREATE TABLE IF NOT EXISTS observation_links (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id    INTEGER NOT NULL,
			to_id      INTEGER NOT NULL,
			link_type  TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_links_unique ON observation_links(from_id, to_id, link_type);
		CREATE INDEX IF NOT EXISTS idx_links_from ON observation_links(from_id);
		CREATE INDEX IF NOT EXISTS idx_links_to   ON observation_links(to_id);

		CREATE TABLE IF NOT EXISTS feedback_log (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			observation_id INTEGER NOT NULL,
			action         TEXT NOT NULL,
			feedback_text  TEXT NOT NULL,
			applied        INTEGER NOT NULL DEFAULT 0,
			diff           TEXT NOT NULL DEFAULT '{}',
			timestamp      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feedback_obs ON feedback_log(observation_id, timestamp, id);

		CREATE TABLE IF NOT EXISTS sessions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time  TEXT NOT NULL,
			end_time    TEXT,
			project     TEXT NOT NULL DEFAULT '',
			working_dir TEXT NOT NULL DEFAULT '',
			agent_type  TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'active'
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS observations_fts USING fts5(
			title,
			summary,
			tags_text,
			raw,
			content='observations',
			content_rowid='id'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS sync triggers keep the index in step with every write inside the
	// same transaction — no visibility window between a write and search.
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='observations_ai'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		triggers := `
			CREATE TRIGGER observations_ai AFTER INSERT ON observations BEGIN
				INSERT INTO observations_fts(rowid, title, summary, tags_text, raw)
				VALUES (new.id, new.title, new.summary, new.tags_text, new.raw);
			END;

			CREATE TRIGGER observations_ad AFTER DELETE ON observations BEGIN
				INSERT INTO observations_fts(observations_fts, rowid, title, summary, tags_text, raw)
				VALUES ('delete', old.id, old.title, old.summary, old.tags_text, old.raw);
			END;

			CREATE TRIGGER observations_au AFTER UPDATE ON observations BEGIN
				INSERT INTO observations_fts(observations_fts, rowid, title, summary, tags_text, raw)
				VALUES ('delete', old.id, old.title, old.summary, old.tags_text, old.raw);
				INSERT INTO observations_fts(rowid, title, summary, tags_text, raw)
				VALUES (new.id, new.title, new.summary, new.tags_text, new.raw);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fmt.Sprintf("%d", schemaVersion))
	return err
}

// ─── Write transactions ──────────────────────────────────────────────────────

// withWrite runs fn inside a single transaction, retrying on lock
// contention with jittered exponential backoff. After the retry budget is
// exhausted it fails with ErrBusy rather than waiting indefinitely.
func (s *Store) withWrite(fn func(tx *sql.Tx) error) error {
	delay := s.cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 25 * time.Millisecond
	}
	retries := s.cfg.WriteRetries
	if retries <= 0 {
		retries = 5
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int64N(int64(delay)/2 + 1))
			time.Sleep(delay + jitter)
			delay *= 2
		}

		err := s.runWrite(fn)
		if err == nil {
			return nil
		}
		if !isLocked(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrBusy, lastErr)
}

func (s *Store) runWrite(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isLocked reports whether an error is SQLite lock contention.
func isLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// observe records an operation outcome for metrics.
func (s *Store) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		s.metrics.RecordError(op, errorType(err))
	}
	s.metrics.RecordOperation(op, status, time.Since(start))
}

// ─── Observations ────────────────────────────────────────────────────────────

const obsColumns = "id, timestamp, project, kind, title, summary, tags, raw, session_id"

// Add creates a new observation and returns its id. Tags are normalized;
// the flattened tag text used by search is recomputed on every write.
func (s *Store) Add(p AddParams) (id int64, err error) {
	defer func(start time.Time) { s.observe("add", start, err) }(time.Now())

	if strings.TrimSpace(p.Title) == "" {
		return 0, fmt.Errorf("%w: title is required", ErrValidation)
	}

	ts := strings.TrimSpace(p.Timestamp)
	if ts == "" {
		ts = Now()
	} else if _, err := time.Parse(TimeFormat, ts); err != nil {
		return 0, fmt.Errorf("%w: timestamp %q is not %s", ErrValidation, ts, TimeFormat)
	}

	tags := NormalizeTags(p.Tags)
	if len(tags) == 0 && p.AutoTags {
		tags = AutoTags(p.Title, p.Summary, 6)
	}

	err = s.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO observations (timestamp, project, kind, title, summary, tags, tags_text, raw, session_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ts, p.Project, p.Kind, p.Title, p.Summary,
			tagsToJSON(tags), tagsToText(tags), p.Raw, p.SessionID,
		)
		if err != nil {
			return fmt.Errorf("%w: insert observation: %v", ErrStorage, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// Get retrieves a single observation by id.
func (s *Store) Get(id int64) (*Observation, error) {
	row := s.db.QueryRow(
		"SELECT "+obsColumns+" FROM observations WHERE id = ?", id,
	)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("observation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get observation: %v", ErrStorage, err)
	}
	return o, nil
}

// GetMany retrieves observations by id, newest first. Missing ids are
// silently absent from the result.
func (s *Store) GetMany(ids []int64) ([]Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryObservations(
		"SELECT "+obsColumns+" FROM observations WHERE id IN ("+placeholders+") ORDER BY timestamp DESC, id DESC",
		args...,
	)
}

// Update applies the provided fields to an observation and returns the
// updated record. If tags are supplied they replace the set after
// normalization.
func (s *Store) Update(id int64, p UpdateParams) (obs *Observation, err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	err = s.withWrite(func(tx *sql.Tx) error {
		obs, err = updateTx(tx, id, p)
		return err
	})
	return obs, err
}

// getTx reads one observation inside an open transaction.
func getTx(tx *sql.Tx, id int64) (*Observation, error) {
	row := tx.QueryRow("SELECT "+obsColumns+" FROM observations WHERE id = ?", id)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("observation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read observation: %v", ErrStorage, err)
	}
	return o, nil
}

func updateTx(tx *sql.Tx, id int64, p UpdateParams) (*Observation, error) {
	current, err := getTx(tx, id)
	if err != nil {
		return nil, err
	}

	if p.Timestamp != nil {
		if _, err := time.Parse(TimeFormat, *p.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: timestamp %q is not %s", ErrValidation, *p.Timestamp, TimeFormat)
		}
		current.Timestamp = *p.Timestamp
	}
	if p.Project != nil {
		current.Project = *p.Project
	}
	if p.Kind != nil {
		current.Kind = *p.Kind
	}
	if p.Title != nil {
		current.Title = *p.Title
	}
	if p.Summary != nil {
		current.Summary = *p.Summary
	}
	if p.Raw != nil {
		current.Raw = *p.Raw
	}
	if p.Tags != nil {
		current.Tags = NormalizeTags(p.Tags)
	} else if p.AutoTags {
		current.Tags = AutoTags(current.Title, current.Summary, 6)
	}

	_, err = tx.Exec(
		`UPDATE observations
		 SET timestamp = ?, project = ?, kind = ?, title = ?, summary = ?,
		     tags = ?, tags_text = ?, raw = ?
		 WHERE id = ?`,
		current.Timestamp, current.Project, current.Kind, current.Title,
		current.Summary, tagsToJSON(current.Tags), tagsToText(current.Tags),
		current.Raw, id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: update observation: %v", ErrStorage, err)
	}
	return current, nil
}

// Delete physically removes an observation and every link touching it.
// Feedback history rows are retained for audit but become unreachable
// through FeedbackHistory. Returns false when the id did not exist.
func (s *Store) Delete(id int64) (deleted bool, err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	err = s.withWrite(func(tx *sql.Tx) error {
		deleted, err = deleteTx(tx, id)
		return err
	})
	return deleted, err
}

func deleteTx(tx *sql.Tx, id int64) (bool, error) {
	if _, err := tx.Exec(
		"DELETE FROM observation_links WHERE from_id = ? OR to_id = ?", id, id,
	); err != nil {
		return false, fmt.Errorf("%w: cascade links: %v", ErrStorage, err)
	}
	res, err := tx.Exec("DELETE FROM observations WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("%w: delete observation: %v", ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns observations ordered by recency with optional structural
// filters. RequiredTags uses AND semantics: every tag must be present.
func (s *Store) List(opts ListOptions) ([]Observation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.MaxSearchResults
	}

	query := "SELECT " + obsColumns + " FROM observations WHERE 1=1"
	var args []any

	if opts.Project != "" {
		query += " AND project = ?"
		args = append(args, opts.Project)
	}
	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}
	query += tagFilterSQL(NormalizeTags(opts.RequiredTags), &args)

	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	return s.queryObservations(query, args...)
}

// tagFilterSQL appends one exact set-membership predicate per required tag,
// checked against the stored tags JSON. Exact equality keeps tags containing
// pattern characters like "_" from matching anything but themselves.
func tagFilterSQL(tags []string, args *[]any) string {
	var b strings.Builder
	for _, tag := range tags {
		b.WriteString(" AND EXISTS (SELECT 1 FROM json_each(observations.tags) WHERE json_each.value = ?)")
		*args = append(*args, tag)
	}
	return b.String()
}

// ─── Scan helpers ────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*Observation, error) {
	var o Observation
	var tagsJSON string
	if err := row.Scan(
		&o.ID, &o.Timestamp, &o.Project, &o.Kind, &o.Title, &o.Summary,
		&tagsJSON, &o.Raw, &o.SessionID,
	); err != nil {
		return nil, err
	}
	o.Tags = parseTagsJSON(tagsJSON)
	return &o, nil
}

func (s *Store) queryObservations(query string, args ...any) ([]Observation, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query observations: %v", ErrStorage, err)
	}
	defer rows.Close()

	var results []Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan observation: %v", ErrStorage, err)
		}
		results = append(results, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate observations: %v", ErrStorage, err)
	}
	return results, nil
}
