package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smash64-online/netcheck/internal/config"
	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/util"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func TestPublishCheckCompleted(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	pub := &fakePublisher{connected: true}
	cfg := config.DefaultConfig().MQTT
	h := newHandler(cfg, bus, pub, util.SystemInfo{Hostname: "box"})
	h.Subscribe()

	err := bus.EmitSync(context.Background(), events.NewEvent(events.EventCheckCompleted, "checker",
		events.CheckCompletedPayload{Kind: events.CheckP2P, Host: "1.2.3.4", Port: 27886, Success: true, Message: "OK"}))
	require.NoError(t, err)

	msgs := pub.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "netcheck/results", msgs[0].topic)

	var body struct {
		Hostname string `json:"hostname"`
		Payload  struct {
			Result struct {
				Kind    string `json:"kind"`
				Success bool   `json:"success"`
			} `json:"result"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &body))
	assert.Equal(t, "box", body.Hostname)
	assert.Equal(t, "p2p", body.Payload.Result.Kind)
	assert.True(t, body.Payload.Result.Success)
}

func TestPublishSkippedWhenDisconnected(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	pub := &fakePublisher{}
	h := newHandler(config.DefaultConfig().MQTT, bus, pub, util.SystemInfo{})
	h.Subscribe()

	require.NoError(t, bus.EmitSync(context.Background(), events.NewEvent(events.EventMonitorTick, "monitor", events.MonitorTickPayload{Targets: 2})))
	assert.Empty(t, pub.sent())

	h.Unsubscribe()
	assert.Zero(t, bus.HandlerCount(events.EventCheckCompleted))
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.MQTTConfig{}, events.NewEventBus())
	assert.Error(t, err)
}
