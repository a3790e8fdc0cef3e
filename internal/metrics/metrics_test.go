package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSessionTracksActiveGauge(t *testing.T) {
	before := testutil.ToFloat64(sessions.WithLabelValues("started"))
	RecordSession("started")
	if got := testutil.ToFloat64(sessions.WithLabelValues("started")); got != before+1 {
		t.Fatalf("expected started counter to grow by one, got %v -> %v", before, got)
	}
	if testutil.ToFloat64(sessionActive) != 1 {
		t.Fatalf("expected active gauge to be 1")
	}
	RecordSession("stopped")
	if testutil.ToFloat64(sessionActive) != 0 {
		t.Fatalf("expected active gauge to be 0")
	}
}

func TestObserveHookCountsFailures(t *testing.T) {
	before := testutil.ToFloat64(hookFailures.WithLabelValues("start", "timeout"))
	ObserveHook("start", 20*time.Millisecond, "")
	ObserveHook("start", time.Second, "timeout")
	if got := testutil.ToFloat64(hookFailures.WithLabelValues("start", "timeout")); got != before+1 {
		t.Fatalf("expected one timeout failure, got %v", got-before)
	}
}

func TestInstanceGauge(t *testing.T) {
	before := testutil.ToFloat64(instancesActive)
	InstanceOpened()
	InstanceOpened()
	InstanceClosed()
	if got := testutil.ToFloat64(instancesActive); got != before+1 {
		t.Fatalf("expected gauge to grow by one, got %v", got-before)
	}
	InstanceClosed()
}
