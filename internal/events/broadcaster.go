package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/observability"
)

// Handler consumes a published event in-process.
type Handler func(context.Context, Event) error

// Sink receives events for delivery to connected subscribers (websocket
// rooms, a cross-instance bus). Delivery is best-effort and at-most-once;
// a sink must never block.
type Sink interface {
	Deliver(ctx context.Context, event Event)
}

// Publication groups one domain occurrence for fan-out: the canonical event
// in-process handlers observe exactly once, plus topic-scoped copies that go
// to the sinks only.
type Publication struct {
	Canonical Event
	Copies    []Event
}

// Broadcaster fans domain events out to in-process handlers and sinks. It is
// fire-and-forget: publication happens after the producing transaction has
// committed and no failure propagates back to the caller.
type Broadcaster struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	sinks    []Sink
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewBroadcaster creates a broadcaster. metrics may be nil.
func NewBroadcaster(logger *zap.Logger, metrics *observability.Metrics) *Broadcaster {
	return &Broadcaster{
		handlers: make(map[EventType][]Handler),
		logger:   logger,
		metrics:  metrics,
	}
}

// Subscribe registers an in-process handler for the given event type.
func (b *Broadcaster) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// AddSink attaches a delivery sink.
func (b *Broadcaster) AddSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Broadcast fans out one occurrence: the canonical event goes through
// Publish, the topic copies reach the sinks only.
func (b *Broadcaster) Broadcast(ctx context.Context, p Publication) {
	b.Publish(ctx, p.Canonical)
	for _, event := range p.Copies {
		b.Deliver(ctx, event)
	}
}

// Publish delivers the event to handlers and sinks. Handler errors are
// logged and swallowed; subscribers that miss an event re-fetch
// authoritative state on reconnect.
func (b *Broadcaster) Publish(ctx context.Context, event Event) {
	event = stamp(event)
	b.metrics.RecordEvent(string(event.Type))

	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
	b.Deliver(ctx, event)
}

// Deliver forwards a topic-scoped copy of an occurrence to the sinks,
// bypassing the in-process handlers.
func (b *Broadcaster) Deliver(ctx context.Context, event Event) {
	event = stamp(event)

	b.mu.RLock()
	sinks := append([]Sink{}, b.sinks...)
	b.mu.RUnlock()

	for _, sink := range sinks {
		sink.Deliver(ctx, event)
	}
}

func stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}
