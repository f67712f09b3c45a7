package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics counts campaign phase activity.
type WorkflowMetrics struct {
	transitions  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	dispositions *prometheus.CounterVec
	lockWait     prometheus.Histogram
}

// NewWorkflowMetrics registers the workflow metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phase_transitions_total",
		Help: "Applied campaign phase transitions.",
	}, []string{"event", "from", "to"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phase_event_rejections_total",
		Help: "Phase events rejected by the state machine, by error code.",
	}, []string{"event", "code"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "disbursement_decisions_total",
		Help: "Operation request decisions by expense type.",
	}, []string{"expense_type", "decision"})
	dispositions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_dispositions_total",
		Help: "Campaign fund dispositions by outcome.",
	}, []string{"outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "phase_lock_wait_seconds",
		Help:    "Time spent waiting for a phase lock.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5},
	})
	reg.MustRegister(transitions, rejections, decisions, dispositions, lockWait)
	return &WorkflowMetrics{
		transitions:  transitions,
		rejections:   rejections,
		decisions:    decisions,
		dispositions: dispositions,
		lockWait:     lockWait,
	}
}

// IncTransition records an applied transition.
func (w *WorkflowMetrics) IncTransition(event, from, to string) {
	if w == nil || w.transitions == nil {
		return
	}
	w.transitions.WithLabelValues(normalizeLabel(event), normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncRejection records an event the machine refused.
func (w *WorkflowMetrics) IncRejection(event, code string) {
	if w == nil || w.rejections == nil {
		return
	}
	w.rejections.WithLabelValues(normalizeLabel(event), normalizeLabel(code)).Inc()
}

// IncDecision records an approve/reject on an operation request.
func (w *WorkflowMetrics) IncDecision(expenseType, decision string) {
	if w == nil || w.decisions == nil {
		return
	}
	w.decisions.WithLabelValues(normalizeLabel(expenseType), normalizeLabel(decision)).Inc()
}

// IncDisposition records a resolved campaign.
func (w *WorkflowMetrics) IncDisposition(outcome string) {
	if w == nil || w.dispositions == nil {
		return
	}
	w.dispositions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveLockWait records how long a caller waited for a phase lock.
func (w *WorkflowMetrics) ObserveLockWait(d time.Duration) {
	if w == nil || w.lockWait == nil {
		return
	}
	w.lockWait.Observe(d.Seconds())
}
