package memory

import "errors"

// Sentinel errors for the expected failure modes of the store. Callers
// match them with errors.Is; everything else is a wrapped storage error.
var (
	// ErrNotFound is returned when an observation, session, or timeline
	// anchor id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for bad input: self-links, unrecognized
	// link types, malformed filters.
	ErrValidation = errors.New("validation failed")

	// ErrBusy is returned when a writer could not acquire the database
	// lock within the bounded retry window.
	ErrBusy = errors.New("database busy")

	// ErrStorage wraps unrecoverable I/O failures from the underlying
	// database. The caller decides whether to retry.
	ErrStorage = errors.New("storage error")
)

// errorType maps an error to its metrics label.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "storage"
	}
}
