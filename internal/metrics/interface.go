package metrics

import "time"

// Collector receives operation outcomes from the store. Implementations
// include the Prometheus-backed collector for the long-running servers
// and the no-op collector for one-shot CLI use and tests.
type Collector interface {
	RecordOperation(operation string, status string, duration time.Duration)
	RecordError(operation string, errorType string)
	SetStorageCount(storageType string, count int64)
}
