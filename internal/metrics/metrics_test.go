package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Observe("decide", OutcomeOK, time.Now())
	m.Observe("decide", OutcomeOK, time.Now())
	m.Observe("decide", OutcomeError, time.Now())

	if got := testutil.ToFloat64(m.Operations().WithLabelValues("decide", OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok, got %v", got)
	}
	if got := testutil.ToFloat64(m.Operations().WithLabelValues("decide", OutcomeError)); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "crewline_coordinator_operation_seconds"); err != nil || n != 1 {
		t.Fatalf("histogram series: %d %v", n, err)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Observe("decide", OutcomeOK, time.Now())
	if m.Operations() != nil {
		t.Fatal("expected nil counter")
	}
}
