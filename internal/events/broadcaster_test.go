package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	events []Event
}

func (s *captureSink) Deliver(_ context.Context, event Event) {
	s.events = append(s.events, event)
}

func TestPublishFillsIdentityAndTimestamp(t *testing.T) {
	b := NewBroadcaster(zap.NewNop(), nil)
	sink := &captureSink{}
	b.AddSink(sink)

	b.Publish(context.Background(), Event{Type: EventTicketCreated, Topic: TopicPublic})

	require.Len(t, sink.events, 1)
	assert.NotEmpty(t, sink.events[0].ID)
	assert.False(t, sink.events[0].Timestamp.IsZero())
}

func TestPublishRoutesByType(t *testing.T) {
	b := NewBroadcaster(zap.NewNop(), nil)

	var created, called int
	b.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		created++
		return nil
	})
	b.Subscribe(EventTicketCalled, func(context.Context, Event) error {
		called++
		return nil
	})

	b.Publish(context.Background(), Event{Type: EventTicketCreated, Topic: TopicPublic})
	b.Publish(context.Background(), Event{Type: EventTicketCreated, Topic: TopicPublic})
	b.Publish(context.Background(), Event{Type: EventTicketCalled, Topic: TopicPublic})

	assert.Equal(t, 2, created)
	assert.Equal(t, 1, called)
}

func TestDeliverBypassesHandlers(t *testing.T) {
	b := NewBroadcaster(zap.NewNop(), nil)

	var invoked int
	b.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		invoked++
		return nil
	})
	sink := &captureSink{}
	b.AddSink(sink)

	b.Deliver(context.Background(), Event{Type: EventTicketCreated, Topic: AgentTopic("agent-1")})

	assert.Zero(t, invoked)
	require.Len(t, sink.events, 1)
	assert.NotEmpty(t, sink.events[0].ID)
	assert.False(t, sink.events[0].Timestamp.IsZero())
}

func TestBroadcastInvokesHandlersOncePerOccurrence(t *testing.T) {
	b := NewBroadcaster(zap.NewNop(), nil)

	var invoked int
	b.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		invoked++
		return nil
	})
	sink := &captureSink{}
	b.AddSink(sink)

	b.Broadcast(context.Background(), Publication{
		Canonical: Event{Type: EventTicketCreated, Topic: CategoryTopic("c1")},
		Copies:    []Event{{Type: EventTicketCreated, Topic: AgentTopic("a1")}},
	})

	assert.Equal(t, 1, invoked)
	require.Len(t, sink.events, 2)
	assert.Equal(t, CategoryTopic("c1"), sink.events[0].Topic)
	assert.Equal(t, AgentTopic("a1"), sink.events[1].Topic)
}

func TestHandlerErrorDoesNotStopDelivery(t *testing.T) {
	b := NewBroadcaster(zap.NewNop(), nil)

	var second bool
	b.Subscribe(EventQueueUpdated, func(context.Context, Event) error {
		return errors.New("boom")
	})
	b.Subscribe(EventQueueUpdated, func(context.Context, Event) error {
		second = true
		return nil
	})
	sink := &captureSink{}
	b.AddSink(sink)

	b.Publish(context.Background(), Event{Type: EventQueueUpdated, Topic: AgentTopic("agent-1")})

	assert.True(t, second)
	assert.Len(t, sink.events, 1)
}

func TestTopicHelpers(t *testing.T) {
	assert.Equal(t, Topic("agent:a1"), AgentTopic("a1"))
	assert.Equal(t, Topic("category:c1"), CategoryTopic("c1"))
	assert.Equal(t, Topic("public"), TopicPublic)
}
