// Package metrics exposes Prometheus collectors describing gate activity.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config holds configuration for metrics recording.
type Config struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
}

// Recorder records gate transitions, refusals, decisions and step
// durations.
type Recorder struct {
	transitions *prometheus.CounterVec
	refusals    *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	assessments *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	waiting     prometheus.Gauge
}

// New registers the collectors on config.Registry, falling back to the
// default registerer.
func New(config *Config) *Recorder {
	if config == nil {
		config = &Config{}
	}
	if config.Namespace == "" {
		config.Namespace = "fluxgate"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(config.Registry)
	return &Recorder{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "step_transitions_total",
			Help:      "Step status transitions applied by the approval gate",
		}, []string{"from", "to", "mode"}),
		refusals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "transition_refusals_total",
			Help:      "Transitions refused by the approval gate",
		}, []string{"event", "reason"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "decisions_total",
			Help:      "Decisions appended to the audit record",
		}, []string{"decision"}),
		assessments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "assessments_total",
			Help:      "Impact assessments attached to steps",
		}, []string{"impact", "approval_required"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "step_duration_seconds",
			Help:      "Time from step start to its terminal status",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
		}, []string{"status"}),
		waiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "steps_waiting_approval",
			Help:      "Steps currently blocked on a human decision",
		}),
	}
}

// Transition records a status change; entering or leaving
// waiting_approval adjusts the waiting gauge.
func (r *Recorder) Transition(from, to, mode string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to, mode).Inc()
	if to == "waiting_approval" {
		r.waiting.Inc()
	}
	if from == "waiting_approval" {
		r.waiting.Dec()
	}
}

// Refusal records a refused transition.
func (r *Recorder) Refusal(event, reason string) {
	if r == nil {
		return
	}
	r.refusals.WithLabelValues(event, reason).Inc()
}

// Decision records an appended decision.
func (r *Recorder) Decision(kind string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(kind).Inc()
}

// Assessment records an attached impact assessment.
func (r *Recorder) Assessment(impact string, approvalRequired bool) {
	if r == nil {
		return
	}
	required := "false"
	if approvalRequired {
		required = "true"
	}
	r.assessments.WithLabelValues(impact, required).Inc()
}

// Duration records the run time of a step that reached status.
func (r *Recorder) Duration(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.durations.WithLabelValues(status).Observe(elapsed.Seconds())
}
