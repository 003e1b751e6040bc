package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FeedbackAction classifies what a piece of free-text feedback asks for.
type FeedbackAction string

const (
	FeedbackCorrect    FeedbackAction = "correct"
	FeedbackSupplement FeedbackAction = "supplement"
	FeedbackDelete     FeedbackAction = "delete"
	FeedbackUnknown    FeedbackAction = "unknown"
)

// supplementMarkerPrefix is prepended to appended text so the history of
// additions stays visible inline in the summary.
const supplementMarkerPrefix = "[supplement] "

// Recognized instruction markers, English and Chinese. Longer markers come
// first so "补充说明" wins over "补充" and "additionally" over "add".
// Delete markers match as bare prefixes; correct and supplement markers
// require a following colon (ASCII or fullwidth).
var (
	deleteMarkers     = []string{"标记删除", "删除", "delete", "remove", "drop"}
	correctMarkers    = []string{"should be", "actually", "correct", "update", "fix", "修正", "修改", "改为", "应该是", "实际是"}
	supplementMarkers = []string{"additionally", "supplement", "note", "also", "add", "补充说明", "补充", "添加", "还需要"}
)

// editableFieldPattern matches an explicit field designator at the start
// of correction text: "<field>: <value>" for a known editable field.
var editableFieldPattern = regexp.MustCompile(`(?is)^(title|summary|project|kind|tags)\s*[:：]\s*(.*)$`)

// intent is the tagged variant produced by classification. Apply logic
// switches on action only, so new markers slot in without touching it.
type intent struct {
	action FeedbackAction
	field  string // explicit field designator, corrections only
	value  string
}

// classifyFeedback inspects feedback text for recognized markers, checked
// in priority order: delete, then correct, then supplement. Text with no
// marker classifies as unknown and is applied like a supplement — the
// store never silently replaces content it cannot confidently classify.
func classifyFeedback(text string) intent {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)

	for _, m := range deleteMarkers {
		if strings.HasPrefix(lower, m) {
			return intent{action: FeedbackDelete}
		}
	}

	for _, m := range correctMarkers {
		rest, ok := trimMarker(t, m)
		if !ok {
			continue
		}
		if match := editableFieldPattern.FindStringSubmatch(rest); match != nil {
			return intent{
				action: FeedbackCorrect,
				field:  strings.ToLower(match[1]),
				value:  strings.TrimSpace(match[2]),
			}
		}
		return intent{action: FeedbackCorrect, value: rest}
	}

	for _, m := range supplementMarkers {
		if rest, ok := trimMarker(t, m); ok {
			return intent{action: FeedbackSupplement, value: rest}
		}
	}

	return intent{action: FeedbackUnknown, value: t}
}

// trimMarker strips a leading marker plus its required colon separator.
func trimMarker(text, marker string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(text), marker) {
		return "", false
	}
	rest := strings.TrimLeft(text[len(marker):], " \t")
	switch {
	case strings.HasPrefix(rest, ":"):
		rest = rest[1:]
	case strings.HasPrefix(rest, "："):
		rest = rest[len("："):]
	default:
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// FieldChange records one field's before/after values in a diff.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// FeedbackResult is the outcome of one feedback invocation.
type FeedbackResult struct {
	ObservationID int64                  `json:"observation_id"`
	Action        FeedbackAction         `json:"action"`
	Diff          map[string]FieldChange `json:"diff"`
	Applied       bool                   `json:"applied"`
}

// FeedbackRecord is one append-only audit entry. Rows with Applied=true
// are never mutated or deleted; rows for a deleted observation are
// retained but unreachable through FeedbackHistory.
type FeedbackRecord struct {
	ID            int64                  `json:"id"`
	ObservationID int64                  `json:"observation_id"`
	Action        FeedbackAction         `json:"action"`
	FeedbackText  string                 `json:"feedback_text"`
	Applied       bool                   `json:"applied"`
	Diff          map[string]FieldChange `json:"diff"`
	Timestamp     string                 `json:"timestamp"`
}

// mutationFor turns a classified intent into the update it implies plus
// the field diff, without touching the store.
func mutationFor(obs *Observation, in intent) (UpdateParams, map[string]FieldChange) {
	diff := make(map[string]FieldChange)
	var p UpdateParams

	switch in.action {
	case FeedbackDelete:
		diff["title"] = FieldChange{Old: obs.Title}
		diff["summary"] = FieldChange{Old: obs.Summary}

	case FeedbackCorrect:
		switch in.field {
		case "title":
			diff["title"] = FieldChange{Old: obs.Title, New: in.value}
			v := in.value
			p.Title = &v
		case "project":
			diff["project"] = FieldChange{Old: obs.Project, New: in.value}
			v := in.value
			p.Project = &v
		case "kind":
			diff["kind"] = FieldChange{Old: obs.Kind, New: in.value}
			v := in.value
			p.Kind = &v
		case "tags":
			tags := SplitTags(in.value)
			diff["tags"] = FieldChange{
				Old: strings.Join(obs.Tags, ", "),
				New: strings.Join(tags, ", "),
			}
			p.Tags = append([]string{}, tags...)
		default:
			// No explicit field designator: the whole summary is replaced.
			diff["summary"] = FieldChange{Old: obs.Summary, New: in.value}
			v := in.value
			p.Summary = &v
		}

	case FeedbackSupplement, FeedbackUnknown:
		appended := supplementMarkerPrefix + in.value
		if obs.Summary != "" {
			appended = obs.Summary + "\n\n" + appended
		}
		diff["summary"] = FieldChange{Old: obs.Summary, New: appended}
		p.Summary = &appended
	}

	return p, diff
}

// ApplyFeedback parses a free-text instruction targeting one observation,
// classifies it, and applies the resulting mutation. With dryRun the diff
// is computed and returned but the observation is untouched. Every
// invocation — dry-run included — appends an audit record; a missing
// target fails with ErrNotFound before any record is written. The target
// is read inside the write transaction, so the diff and any summary
// append are computed against the row as it is at write time, never a
// stale pre-transaction snapshot.
func (s *Store) ApplyFeedback(id int64, text string, dryRun bool) (result *FeedbackResult, err error) {
	defer func(start time.Time) { s.observe("feedback", start, err) }(time.Now())

	in := classifyFeedback(text)

	err = s.withWrite(func(tx *sql.Tx) error {
		obs, err := getTx(tx, id)
		if err != nil {
			return err
		}
		params, diff := mutationFor(obs, in)

		diffJSON, err := json.Marshal(diff)
		if err != nil {
			return fmt.Errorf("%w: encode diff: %v", ErrStorage, err)
		}

		if !dryRun {
			if in.action == FeedbackDelete {
				if _, err := deleteTx(tx, id); err != nil {
					return err
				}
			} else {
				if _, err := updateTx(tx, id, params); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Exec(
			`INSERT INTO feedback_log (observation_id, action, feedback_text, applied, diff, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(in.action), text, boolToInt(!dryRun), string(diffJSON), Now(),
		); err != nil {
			return fmt.Errorf("%w: record feedback: %v", ErrStorage, err)
		}

		result = &FeedbackResult{
			ObservationID: id,
			Action:        in.action,
			Diff:          diff,
			Applied:       !dryRun,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FeedbackHistory returns the audit trail for an observation, oldest
// first. Once the observation is deleted its history is unreachable and
// the lookup fails with ErrNotFound.
func (s *Store) FeedbackHistory(id int64) ([]FeedbackRecord, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, observation_id, action, feedback_text, applied, diff, timestamp
		 FROM feedback_log
		 WHERE observation_id = ?
		 ORDER BY timestamp ASC, id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query feedback history: %v", ErrStorage, err)
	}
	defer rows.Close()

	var records []FeedbackRecord
	for rows.Next() {
		var r FeedbackRecord
		var action, diffJSON string
		var applied int
		if err := rows.Scan(&r.ID, &r.ObservationID, &action, &r.FeedbackText, &applied, &diffJSON, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan feedback record: %v", ErrStorage, err)
		}
		r.Action = FeedbackAction(action)
		r.Applied = applied != 0
		if diffJSON != "" {
			_ = json.Unmarshal([]byte(diffJSON), &r.Diff)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// BatchFeedbackItem targets one observation with one instruction.
type BatchFeedbackItem struct {
	ObservationID int64  `json:"id"`
	Text          string `json:"text"`
}

// BatchFeedbackError reports one failed batch item.
type BatchFeedbackError struct {
	ObservationID int64  `json:"id"`
	Error         string `json:"error"`
}

// BatchFeedbackResult is the partial-failure report for a batch.
type BatchFeedbackResult struct {
	Applied int                  `json:"applied"`
	Failed  int                  `json:"failed"`
	Errors  []BatchFeedbackError `json:"errors,omitempty"`
	Results []FeedbackResult     `json:"results,omitempty"`
}

// BatchFeedback applies each item independently: one item's failure never
// aborts the rest. Applied counts items processed successfully, including
// dry-run previews.
func (s *Store) BatchFeedback(items []BatchFeedbackItem, dryRun bool) (*BatchFeedbackResult, error) {
	result := &BatchFeedbackResult{}
	for _, item := range items {
		res, err := s.ApplyFeedback(item.ObservationID, item.Text, dryRun)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BatchFeedbackError{
				ObservationID: item.ObservationID,
				Error:         err.Error(),
			})
			continue
		}
		result.Applied++
		result.Results = append(result.Results, *res)
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
