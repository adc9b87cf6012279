package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HandlerFunc handles a single event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus fans events out to named handlers. Check results flow through
// it to the metrics, telemetry and monitor handlers.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	stopCh   chan struct{}
	stopped  bool
	inFlight sync.WaitGroup
	logger   zerolog.Logger
}

type subscription struct {
	name string
	fn   HandlerFunc
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
		stopCh:   make(chan struct{}),
		logger:   log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers fn for eventType under name. Names identify the
// handler in logs and in Unsubscribe.
func (eb *EventBus) Subscribe(eventType EventType, name string, fn HandlerFunc) {
	eb.mu.Lock()
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{name: name, fn: fn})
	eb.mu.Unlock()

	eb.logger.Debug().Str("event", string(eventType)).Str("handler", name).Msg("subscribed")
}

// Unsubscribe removes every handler registered as name for eventType.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.handlers[eventType]
	kept := subs[:0:0]
	for _, s := range subs {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(eb.handlers, eventType)
	} else {
		eb.handlers[eventType] = kept
	}

	eb.logger.Debug().Str("event", string(eventType)).Str("handler", name).Msg("unsubscribed")
}

// snapshot returns the handlers for t, or nil once the bus is stopped.
// Each returned handler is already counted in inFlight.
func (eb *EventBus) snapshot(t EventType) []subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped || len(eb.handlers[t]) == 0 {
		return nil
	}
	subs := append([]subscription(nil), eb.handlers[t]...)
	eb.inFlight.Add(len(subs))
	return subs
}

// invoke runs one handler, turning a panic into an error.
func (eb *EventBus) invoke(ctx context.Context, s subscription, event Event) (err error) {
	defer eb.inFlight.Done()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", s.name, r)
		}
	}()
	return s.fn(ctx, event)
}

func (eb *EventBus) logFailure(s subscription, event Event, err error) {
	eb.logger.Error().
		Err(err).
		Str("event", string(event.Type)).
		Str("event_id", event.ID).
		Str("handler", s.name).
		Msg("event handler failed")
}

// Emit delivers event to every handler without waiting. Handler errors are
// logged.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	subs := eb.snapshot(event.Type)
	if subs == nil {
		return
	}

	eb.logger.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(subs)).
		Msg("emitting event")

	for _, s := range subs {
		s := s
		go func() {
			if err := eb.invoke(ctx, s, event); err != nil {
				eb.logFailure(s, event, err)
			}
		}()
	}
}

// EmitSync delivers event to every handler concurrently and waits for
// them. It returns the first handler error.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	subs := eb.snapshot(event.Type)
	if subs == nil {
		return nil
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, s := range subs {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := eb.invoke(ctx, s, event); err != nil {
				eb.logFailure(s, event, err)
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop rejects further events and waits for running handlers. Calling
// Stop twice is a no-op.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	close(eb.stopCh)
	eb.mu.Unlock()

	eb.inFlight.Wait()
	eb.logger.Info().Msg("event bus stopped")
}

// StopCh is closed when the bus stops.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for eventType.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
