package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/requests", "200"))
	RecordAPIRequest("GET", "/requests", 200, 15*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/requests", "200"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestRecordExternalCallCountsErrors(t *testing.T) {
	errBefore := testutil.ToFloat64(ExternalRequestErrors.WithLabelValues("emby", "items"))
	RecordExternalCall("emby", "items", time.Millisecond, nil)
	RecordExternalCall("emby", "items", time.Millisecond, errors.New("refused"))
	errAfter := testutil.ToFloat64(ExternalRequestErrors.WithLabelValues("emby", "items"))
	if errAfter-errBefore != 1 {
		t.Fatalf("expected one error, got %v", errAfter-errBefore)
	}
}

func TestRecordCircuitTransition(t *testing.T) {
	tests := []struct {
		to   string
		want float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		RecordCircuitTransition("emby", "closed", tt.to)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("emby")); got != tt.want {
			t.Fatalf("state %s: expected gauge %v, got %v", tt.to, tt.want, got)
		}
	}
}

func TestRecordReconcileRun(t *testing.T) {
	okBefore := testutil.ToFloat64(ReconcileRuns.WithLabelValues("ok"))
	completedBefore := testutil.ToFloat64(ReconcileCompleted)
	skippedBefore := testutil.ToFloat64(ReconcileRuns.WithLabelValues("skipped"))

	RecordReconcileRun(time.Second, 3, 2, nil)
	RecordReconcileRun(time.Second, 5, 0, errors.New("boom"))
	RecordReconcileSkipped()

	if got := testutil.ToFloat64(ReconcileRuns.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Fatalf("expected one ok run, got %v", got)
	}
	if got := testutil.ToFloat64(ReconcileCompleted) - completedBefore; got != 3 {
		t.Fatalf("expected failed runs not to count completions, got %v", got)
	}
	if got := testutil.ToFloat64(ReconcilePending); got != 2 {
		t.Fatalf("expected pending gauge 2, got %v", got)
	}
	if got := testutil.ToFloat64(ReconcileRuns.WithLabelValues("skipped")) - skippedBefore; got != 1 {
		t.Fatalf("expected one skipped run, got %v", got)
	}
}
