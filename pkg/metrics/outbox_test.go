package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetricsCountsRelayOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncPublished("phase_transitioned")
	m.IncPublished("phase_transitioned")
	m.IncRetry("donation_settled")
	m.IncDeadLetter("", "max_attempts")
	m.ObserveBatch(40 * time.Millisecond)

	cases := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"published", m.published.WithLabelValues("phase_transitioned"), 2},
		{"retries", m.retries.WithLabelValues("donation_settled"), 1},
		{"dead letters", m.deadLetter.WithLabelValues("unknown", "max_attempts"), 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
	if got := testutil.CollectAndCount(reg, "outbox_batch_duration_seconds"); got != 1 {
		t.Fatalf("expected batch histogram to be exported, got %d series", got)
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.IncPublished("x")
	m.IncRetry("x")
	m.IncDeadLetter("x", "y")
	m.ObserveBatch(time.Second)

	NewOutboxMetrics(nil).IncPublished("x")
}
