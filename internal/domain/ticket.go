package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for queue tickets.
type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusCalled    TicketStatus = "called"
	TicketStatusServing   TicketStatus = "serving"
	TicketStatusHold      TicketStatus = "hold"
	TicketStatusNoShow    TicketStatus = "no_show"
	TicketStatusCompleted TicketStatus = "completed"
)

// ParseTicketStatus validates a raw status value against the closed set.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	switch TicketStatus(raw) {
	case TicketStatusPending, TicketStatusCalled, TicketStatusServing,
		TicketStatusHold, TicketStatusNoShow, TicketStatusCompleted:
		return TicketStatus(raw), nil
	}
	return "", fmt.Errorf("unknown ticket status %q", raw)
}

// InQueue reports whether the status participates in an agent's pending queue.
func (s TicketStatus) InQueue() bool {
	return s == TicketStatusPending
}

// Terminal reports whether the status can only be left via reopen.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusHold || s == TicketStatusNoShow
}

// Ticket is the aggregate for a customer's place in a service queue.
//
// TokenNumber carries the human-facing token (for example "CS-014"); together
// with TokenDate it is the unique stored identity of the token. PositionInQueue
// is the 1-based rank within the owning agent's pending queue and is zero for
// every non-pending status.
type Ticket struct {
	ID               string
	TokenNumber      string
	TokenDate        time.Time
	CategoryID       string
	AgentID          *string
	Status           TicketStatus
	PositionInQueue  int
	CustomerName     string
	CustomerPhone    string
	CustomerEmail    string
	Note             string
	FormPayload      map[string]any
	CreatedAt        time.Time
	CalledAt         *time.Time
	ServingStartedAt *time.Time
	CompletedAt      *time.Time
	NoShowAt         *time.Time
	UpdatedAt        time.Time
}
