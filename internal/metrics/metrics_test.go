package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordOperation(t *testing.T) {
	collector := NewCollector()

	collector.RecordOperation("add", "success", 10*time.Millisecond)
	collector.RecordOperation("add", "success", 15*time.Millisecond)
	collector.RecordOperation("add", "error", 5*time.Millisecond)
	collector.RecordOperation("search", "success", 2*time.Millisecond)

	if got := testutil.CollectAndCount(collector.operationsTotal); got != 3 {
		t.Errorf("expected 3 counter series (add/success, add/error, search/success), got %d", got)
	}
	if got := testutil.ToFloat64(collector.operationsTotal.WithLabelValues("add", "success")); got != 2 {
		t.Errorf("expected 2 add/success operations, got %f", got)
	}
	if got := testutil.CollectAndCount(collector.operationDuration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestCollector_RecordError(t *testing.T) {
	collector := NewCollector()

	collector.RecordError("add", "validation")
	collector.RecordError("add", "validation")
	collector.RecordError("get", "not_found")

	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("add", "validation")); got != 2 {
		t.Errorf("expected 2 add/validation errors, got %f", got)
	}
	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("get", "not_found")); got != 1 {
		t.Errorf("expected 1 get/not_found error, got %f", got)
	}
}

func TestCollector_SetStorageCount(t *testing.T) {
	collector := NewCollector()

	collector.SetStorageCount("observations", 42)
	collector.SetStorageCount("observations", 7)
	collector.SetStorageCount("links", 3)

	if got := testutil.ToFloat64(collector.storageCount.WithLabelValues("observations")); got != 7 {
		t.Errorf("gauge should hold the latest value, got %f", got)
	}
	if got := testutil.ToFloat64(collector.storageCount.WithLabelValues("links")); got != 3 {
		t.Errorf("expected links gauge 3, got %f", got)
	}
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors must not collide: each owns a private registry.
	a := NewCollector()
	b := NewCollector()
	a.RecordOperation("add", "success", time.Millisecond)

	families, err := b.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "memtrail_operations_total" {
			t.Error("fresh collector already carries another collector's samples")
		}
	}
}

func TestNoopCollector_SafeEverywhere(t *testing.T) {
	var c Collector = NewNoopCollector()
	c.RecordOperation("add", "success", time.Millisecond)
	c.RecordError("add", "validation")
	c.SetStorageCount("observations", 1)
}
