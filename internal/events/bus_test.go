package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var got atomic.Int32
	bus.Subscribe(EventCheckCompleted, "counter", func(ctx context.Context, e Event) error {
		p, ok := e.Payload.(CheckCompletedPayload)
		if ok && p.Kind == CheckP2P {
			got.Add(1)
		}
		return nil
	})

	bus.Emit(context.Background(), NewEvent(EventCheckCompleted, "test", CheckCompletedPayload{Kind: CheckP2P}))
	bus.Emit(context.Background(), NewEvent(EventCheckStarted, "test", nil))

	require.Eventually(t, func() bool { return got.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	boom := errors.New("boom")
	bus.Subscribe(EventShutdown, "failing", func(ctx context.Context, e Event) error { return boom })
	bus.Subscribe(EventShutdown, "panicking", func(ctx context.Context, e Event) error { panic("bad handler") })

	err := bus.EmitSync(context.Background(), NewEvent(EventShutdown, "test", nil))
	assert.ErrorIs(t, err, boom)
}

func TestUnsubscribeAndStop(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe(EventMonitorTick, "a", func(ctx context.Context, e Event) error { return nil })
	bus.Subscribe(EventMonitorTick, "b", func(ctx context.Context, e Event) error { return nil })
	assert.Equal(t, 2, bus.HandlerCount(EventMonitorTick))

	bus.Unsubscribe(EventMonitorTick, "a")
	assert.Equal(t, 1, bus.HandlerCount(EventMonitorTick))

	bus.Stop()
	bus.Stop()
	select {
	case <-bus.StopCh():
	default:
		t.Fatal("stop channel not closed")
	}
	assert.NoError(t, bus.EmitSync(context.Background(), NewEvent(EventMonitorTick, "test", nil)))
}

func TestNewEventStampsIdentity(t *testing.T) {
	a := NewEvent(EventCheckCompleted, "api", nil)
	b := NewEvent(EventCheckCompleted, "api", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
	assert.False(t, a.Time.IsZero())
}

func TestCheckKindNames(t *testing.T) {
	k, ok := ParseCheckKind("join")
	require.True(t, ok)
	assert.Equal(t, CheckJoin, k)

	raw, err := CheckServer.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"server"`, string(raw))

	_, ok = ParseCheckKind("bogus")
	assert.False(t, ok)
}
