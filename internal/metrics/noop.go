package metrics

import "time"

// NoopCollector discards everything. It is the default when no collector
// is configured, which keeps the store free of nil checks.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordOperation(operation string, status string, duration time.Duration) {}

func (n *NoopCollector) RecordError(operation string, errorType string) {}

func (n *NoopCollector) SetStorageCount(storageType string, count int64) {}
