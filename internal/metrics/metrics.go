// Package metrics exposes Prometheus collectors for check outcomes.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smash64-online/netcheck/internal/events"
)

// Namespace prefixes every netcheck metric.
const Namespace = "netcheck"

// Collector holds the check metrics.
type Collector struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	pingLatency   prometheus.Histogram
	pingDrops     prometheus.Counter
	inFlight      *prometheus.GaugeVec
}

// New registers the check metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checks_total",
			Help:      "Total number of completed checks by kind and outcome",
		}, []string{"kind", "outcome"}),

		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "check_duration_seconds",
			Help:      "Wall time spent per check",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),

		pingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ping_latency_milliseconds",
			Help:      "Average ping round-trip time reported by server checks",
			Buckets:   []float64{5, 10, 25, 50, 100, 150, 250, 500, 1000},
		}),

		pingDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ping_drops_total",
			Help:      "Total number of pings that went unanswered",
		}),

		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "checks_in_flight",
			Help:      "Number of checks currently running",
		}, []string{"kind"}),
	}
}

// Started marks a check of kind as running.
func (c *Collector) Started(kind events.CheckKind) {
	c.inFlight.WithLabelValues(kind.String()).Inc()
}

// Observe records a completed check.
func (c *Collector) Observe(p events.CheckCompletedPayload) {
	kind := p.Kind.String()
	outcome := "failure"
	if p.Success {
		outcome = "success"
	}

	c.inFlight.WithLabelValues(kind).Dec()
	c.checksTotal.WithLabelValues(kind, outcome).Inc()
	c.checkDuration.WithLabelValues(kind).Observe(p.Duration.Seconds())

	if latency, ok := numeric(p.Meta["latency_ms"]); ok {
		c.pingLatency.Observe(latency)
	}
	if drops, ok := numeric(p.Meta["drops"]); ok && drops > 0 {
		c.pingDrops.Add(drops)
	}
}

// Subscribe wires the collector to the check events on bus.
func (c *Collector) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventCheckStarted, "metrics", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.CheckStartedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		c.Started(p.Kind)
		return nil
	})
	bus.Subscribe(events.EventCheckCompleted, "metrics", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.CheckCompletedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		c.Observe(p)
		return nil
	})
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
