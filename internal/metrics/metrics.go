// Package metrics exposes Prometheus counters for movement outcomes and
// notification delivery.
//
//	movements_total{type,outcome}         accepted / rejected / conflict / error
//	movement_duration_seconds{type}       request latency including the transaction
//	notifications_total{sink,outcome}     delivered / failed / dropped
//	monitor_events_total{event}           quarantine_released / object_overdue
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"

	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Collector holds the tracker's Prometheus metrics.
type Collector struct {
	movements     *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	monitorEvents *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them on reg.
// A nil reg uses a fresh private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movements_total",
			Help: "Total number of movement requests by type and outcome",
		}, []string{"type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "movement_duration_seconds",
			Help:    "Movement request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notifications by sink and outcome",
		}, []string{"sink", "outcome"}),
		monitorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_events_total",
			Help: "Total number of timer events raised by the monitor",
		}, []string{"event"}),
		gatherer: reg,
	}
	reg.MustRegister(c.movements, c.duration, c.notifications, c.monitorEvents)
	return c
}

// ObserveMovement records one finished movement request.
func (c *Collector) ObserveMovement(movementType, outcome string, elapsed time.Duration) {
	c.movements.WithLabelValues(movementType, outcome).Inc()
	c.duration.WithLabelValues(movementType).Observe(elapsed.Seconds())
}

// ObserveNotification records one publish attempt on a sink.
func (c *Collector) ObserveNotification(sink, outcome string) {
	c.notifications.WithLabelValues(sink, outcome).Inc()
}

// ObserveMonitorEvent records one timer event.
func (c *Collector) ObserveMonitorEvent(event string) {
	c.monitorEvents.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
