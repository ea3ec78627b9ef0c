// Package metrics exports lifecycle measurements to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "engagement"

// Recorder implements lifecycle.Recorder and expiration.Observer.
type Recorder struct {
	transitions   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	sweeps        *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Transition attempts by transition and result.",
		}, []string{"transition", "result"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transition_seconds",
			Help:      "Time spent applying a transition, including the commit.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"transition"}),
		sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expiration",
			Name:      "sweep_outcomes_total",
			Help:      "Expired holds processed by the sweep, by outcome.",
		}, []string{"outcome"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by result.",
		}, []string{"result"}),
	}
}

func (r *Recorder) ObserveTransition(transition string, result string, elapsed time.Duration) {
	r.transitions.WithLabelValues(transition, result).Inc()
	r.latency.WithLabelValues(transition).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveSweep(outcome string) {
	r.sweeps.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveNotification(result string) {
	r.notifications.WithLabelValues(result).Inc()
}
