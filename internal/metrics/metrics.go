// Package metrics exports workflow activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mrz1836/taskreview/internal/constants"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/task"
)

const namespace = "taskreview"

// Prometheus implements task.Metrics with Prometheus collectors.
type Prometheus struct {
	transitions    *prometheus.CounterVec
	failures       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	created        prometheus.Counter
	notifyFailures *prometheus.CounterVec
}

var _ task.Metrics = (*Prometheus)(nil)

// New registers the workflow collectors on reg.
func New(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed task transitions.",
		}, []string{"transition", "from", "to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_failures_total",
			Help:      "Refused or failed transition requests by error kind.",
		}, []string{"transition", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Time from load to commit of a transition.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"transition"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks created.",
		}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notification dispatches that returned an error.",
		}, []string{"transition"}),
	}
	reg.MustRegister(p.transitions, p.failures, p.duration, p.created, p.notifyFailures)
	return p
}

// TransitionApplied implements task.Metrics.
func (p *Prometheus) TransitionApplied(tr constants.Transition, from, to constants.TaskStatus, d time.Duration) {
	p.transitions.WithLabelValues(tr.String(), from.String(), to.String()).Inc()
	p.duration.WithLabelValues(tr.String()).Observe(d.Seconds())
}

// TransitionFailed implements task.Metrics.
func (p *Prometheus) TransitionFailed(tr constants.Transition, kind reviewerrors.Kind) {
	if kind == reviewerrors.KindNone {
		kind = reviewerrors.KindInternal
	}
	p.failures.WithLabelValues(tr.String(), string(kind)).Inc()
}

// TaskCreated implements task.Metrics.
func (p *Prometheus) TaskCreated() {
	p.created.Inc()
}

// NotificationFailed implements task.Metrics.
func (p *Prometheus) NotificationFailed(tr constants.Transition) {
	p.notifyFailures.WithLabelValues(tr.String()).Inc()
}
