package events

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket:created"
	EventTicketCalled      EventType = "ticket:called"
	EventTicketServing     EventType = "ticket:serving"
	EventTicketCompleted   EventType = "ticket:completed"
	EventTicketNoShow      EventType = "ticket:no-show"
	EventTicketTransferred EventType = "ticket:transferred"
	EventQueueUpdated      EventType = "queue:updated"

	EventCategoryCreated       EventType = "category:created"
	EventCategoryUpdated       EventType = "category:updated"
	EventCategoryDeleted       EventType = "category:deleted"
	EventCategoryAgentAssigned EventType = "category:agent-assigned"

	EventStatusUpdated EventType = "status:updated"
)

// Topic scopes delivery to a subscriber room.
type Topic string

// TopicPublic is the aggregate feed every status display subscribes to.
const TopicPublic Topic = "public"

// AgentTopic addresses a single agent's room.
func AgentTopic(agentID string) Topic {
	return Topic("agent:" + agentID)
}

// CategoryTopic addresses a category's room.
func CategoryTopic(categoryID string) Topic {
	return Topic("category:" + categoryID)
}

// Event represents a domain event emitted after a committed operation.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Topic     Topic     `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketPayload carries the ticket snapshot most events fan out.
type TicketPayload struct {
	TicketID    string              `json:"ticket_id"`
	TokenNumber string              `json:"token_number"`
	CategoryID  string              `json:"category_id"`
	AgentID     *string             `json:"agent_id,omitempty"`
	Status      domain.TicketStatus `json:"status"`
	Position    int                 `json:"position"`
}

// QueuePayload describes an agent's queue after a mutation.
type QueuePayload struct {
	AgentID   string   `json:"agent_id"`
	TicketIDs []string `json:"ticket_ids"`
}

// CategoryPayload carries category change details.
type CategoryPayload struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	AgentID    string `json:"agent_id,omitempty"`
}

// NewTicketPayload snapshots a ticket for fan-out.
func NewTicketPayload(t *domain.Ticket) TicketPayload {
	return TicketPayload{
		TicketID:    t.ID,
		TokenNumber: t.TokenNumber,
		CategoryID:  t.CategoryID,
		AgentID:     t.AgentID,
		Status:      t.Status,
		Position:    t.PositionInQueue,
	}
}
