package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CheckInRequest is the public check-in payload.
type CheckInRequest struct {
	CategoryID    string         `json:"category_id"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	CustomerEmail string         `json:"customer_email"`
	Note          string         `json:"note"`
	FormPayload   map[string]any `json:"form_payload"`
}

// ReorderRequest replaces an agent's full pending order.
type ReorderRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

// TransferRequest moves a pending ticket to another agent.
type TransferRequest struct {
	TargetAgentID string `json:"target_agent_id"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID               string              `json:"id"`
	TokenNumber      string              `json:"token_number"`
	CategoryID       string              `json:"category_id"`
	AgentID          *string             `json:"agent_id,omitempty"`
	Status           domain.TicketStatus `json:"status"`
	PositionInQueue  int                 `json:"position_in_queue"`
	CustomerName     string              `json:"customer_name"`
	CustomerPhone    string              `json:"customer_phone,omitempty"`
	CustomerEmail    string              `json:"customer_email,omitempty"`
	Note             string              `json:"note,omitempty"`
	FormPayload      map[string]any      `json:"form_payload,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	CalledAt         *time.Time          `json:"called_at,omitempty"`
	ServingStartedAt *time.Time          `json:"serving_started_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	NoShowAt         *time.Time          `json:"no_show_at,omitempty"`
}

// AgentQueueResponse is the agent dashboard read.
type AgentQueueResponse struct {
	Pending []TicketResponse `json:"pending"`
	Others  []TicketResponse `json:"others"`
}

// FromTicket maps a domain ticket to its response form.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:               t.ID,
		TokenNumber:      t.TokenNumber,
		CategoryID:       t.CategoryID,
		AgentID:          t.AgentID,
		Status:           t.Status,
		PositionInQueue:  t.PositionInQueue,
		CustomerName:     t.CustomerName,
		CustomerPhone:    t.CustomerPhone,
		CustomerEmail:    t.CustomerEmail,
		Note:             t.Note,
		FormPayload:      t.FormPayload,
		CreatedAt:        t.CreatedAt,
		CalledAt:         t.CalledAt,
		ServingStartedAt: t.ServingStartedAt,
		CompletedAt:      t.CompletedAt,
		NoShowAt:         t.NoShowAt,
	}
}

// FromTickets maps a slice of tickets.
func FromTickets(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, FromTicket(&tickets[i]))
	}
	return out
}
