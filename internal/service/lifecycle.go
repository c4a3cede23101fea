package service

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// Action identifies a ticket lifecycle command.
type Action string

const (
	ActionCall     Action = "call_next"
	ActionServe    Action = "mark_serving"
	ActionComplete Action = "mark_completed"
	ActionNoShow   Action = "mark_no_show"
	ActionReopen   Action = "reopen"
)

// transitionTable maps each action to the statuses it may be applied from
// and the status it lands in. Anything outside the table is rejected.
var transitionTable = map[Action]struct {
	from []domain.TicketStatus
	to   domain.TicketStatus
}{
	ActionCall:     {from: []domain.TicketStatus{domain.TicketStatusPending}, to: domain.TicketStatusCalled},
	ActionServe:    {from: []domain.TicketStatus{domain.TicketStatusCalled}, to: domain.TicketStatusServing},
	ActionComplete: {from: []domain.TicketStatus{domain.TicketStatusCalled, domain.TicketStatusServing}, to: domain.TicketStatusCompleted},
	ActionNoShow:   {from: []domain.TicketStatus{domain.TicketStatusCalled}, to: domain.TicketStatusHold},
	ActionReopen:   {from: []domain.TicketStatus{domain.TicketStatusCompleted, domain.TicketStatusHold}, to: domain.TicketStatusPending},
}

// applyTransition validates the action against the current status, then
// mutates status and stamps the transition time. Reopen clears every
// status timestamp except creation; the caller re-queues the ticket.
func applyTransition(ticket *domain.Ticket, action Action, now time.Time) error {
	rule, ok := transitionTable[action]
	if !ok {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(action))
	}

	allowed := false
	for _, from := range rule.from {
		if ticket.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(rule.to))
	}

	ticket.Status = rule.to
	switch action {
	case ActionCall:
		ticket.CalledAt = &now
	case ActionServe:
		ticket.ServingStartedAt = &now
	case ActionComplete:
		ticket.CompletedAt = &now
		ticket.PositionInQueue = 0
	case ActionNoShow:
		ticket.NoShowAt = &now
		ticket.PositionInQueue = 0
	case ActionReopen:
		ticket.CalledAt = nil
		ticket.ServingStartedAt = nil
		ticket.CompletedAt = nil
		ticket.NoShowAt = nil
	}
	return nil
}
