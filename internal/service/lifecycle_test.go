package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

func TestApplyTransitionHappyPath(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	ticket := &domain.Ticket{Status: domain.TicketStatusPending, PositionInQueue: 1}

	require.NoError(t, applyTransition(ticket, ActionCall, now))
	assert.Equal(t, domain.TicketStatusCalled, ticket.Status)
	require.NotNil(t, ticket.CalledAt)
	assert.Equal(t, now, *ticket.CalledAt)

	require.NoError(t, applyTransition(ticket, ActionServe, now))
	assert.Equal(t, domain.TicketStatusServing, ticket.Status)
	require.NotNil(t, ticket.ServingStartedAt)

	require.NoError(t, applyTransition(ticket, ActionComplete, now))
	assert.Equal(t, domain.TicketStatusCompleted, ticket.Status)
	require.NotNil(t, ticket.CompletedAt)
}

func TestApplyTransitionCompleteFromCalled(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusCalled}
	require.NoError(t, applyTransition(ticket, ActionComplete, time.Now()))
	assert.Equal(t, domain.TicketStatusCompleted, ticket.Status)
}

func TestApplyTransitionNoShowParksInHold(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.TicketStatusCalled, PositionInQueue: 3}
	require.NoError(t, applyTransition(ticket, ActionNoShow, time.Now()))
	assert.Equal(t, domain.TicketStatusHold, ticket.Status)
	assert.Zero(t, ticket.PositionInQueue)
	assert.NotNil(t, ticket.NoShowAt)
}

func TestApplyTransitionReopenClearsTimestamps(t *testing.T) {
	now := time.Now()
	ticket := &domain.Ticket{
		Status:      domain.TicketStatusCompleted,
		CalledAt:    &now,
		CompletedAt: &now,
	}
	require.NoError(t, applyTransition(ticket, ActionReopen, now))
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Nil(t, ticket.CalledAt)
	assert.Nil(t, ticket.ServingStartedAt)
	assert.Nil(t, ticket.CompletedAt)
	assert.Nil(t, ticket.NoShowAt)
}

func TestApplyTransitionReopenFromHold(t *testing.T) {
	now := time.Now()
	ticket := &domain.Ticket{Status: domain.TicketStatusHold, NoShowAt: &now}
	require.NoError(t, applyTransition(ticket, ActionReopen, now))
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Nil(t, ticket.NoShowAt)
}

func TestApplyTransitionRejectsOffTableMoves(t *testing.T) {
	cases := []struct {
		name   string
		status domain.TicketStatus
		action Action
	}{
		{"serve pending", domain.TicketStatusPending, ActionServe},
		{"call called", domain.TicketStatusCalled, ActionCall},
		{"no-show serving", domain.TicketStatusServing, ActionNoShow},
		{"complete pending", domain.TicketStatusPending, ActionComplete},
		{"reopen serving", domain.TicketStatusServing, ActionReopen},
		{"call completed", domain.TicketStatusCompleted, ActionCall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := &domain.Ticket{Status: tc.status}
			err := applyTransition(ticket, tc.action, time.Now())
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.CodeOf(err))
			assert.Equal(t, tc.status, ticket.Status)
		})
	}
}
