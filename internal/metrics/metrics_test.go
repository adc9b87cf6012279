package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smash64-online/netcheck/internal/events"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	require.True(t, ok)
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestObserve(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Started(events.CheckServer)
	assert.Equal(t, 1.0, gaugeValue(t, c.inFlight.WithLabelValues("server")))

	c.Observe(events.CheckCompletedPayload{
		Kind:     events.CheckServer,
		Success:  true,
		Duration: 30 * time.Millisecond,
		Meta:     map[string]interface{}{"latency_ms": 13, "drops": 1},
	})

	assert.Equal(t, 0.0, gaugeValue(t, c.inFlight.WithLabelValues("server")))
	assert.Equal(t, 1.0, counterValue(t, c.checksTotal.WithLabelValues("server", "success")))
	assert.Equal(t, 1.0, counterValue(t, c.pingDrops))
	assert.Equal(t, uint64(1), histogramCount(t, c.pingLatency))
	assert.Equal(t, uint64(1), histogramCount(t, c.checkDuration.WithLabelValues("server")))
}

func TestSubscribe(t *testing.T) {
	c := New(prometheus.NewRegistry())
	bus := events.NewEventBus()
	defer bus.Stop()
	c.Subscribe(bus)

	err := bus.EmitSync(context.Background(), events.NewEvent(events.EventCheckCompleted, "test",
		events.CheckCompletedPayload{Kind: events.CheckP2P}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, c.checksTotal.WithLabelValues("p2p", "failure")))

	err = bus.EmitSync(context.Background(), events.NewEvent(events.EventCheckCompleted, "test", "bogus"))
	assert.Error(t, err)
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
