package queue

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

type fakeTickets struct {
	repository.TicketRepository
	byID map[string]*domain.Ticket
}

func newFakeTickets(tickets ...*domain.Ticket) *fakeTickets {
	f := &fakeTickets{byID: make(map[string]*domain.Ticket)}
	for _, t := range tickets {
		f.byID[t.ID] = t
	}
	return f
}

func (f *fakeTickets) ListPending(_ context.Context, agentID string) ([]domain.Ticket, error) {
	var pending []domain.Ticket
	for _, t := range f.byID {
		if t.AgentID != nil && *t.AgentID == agentID && t.Status == domain.TicketStatusPending {
			pending = append(pending, *t)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].PositionInQueue < pending[j].PositionInQueue
	})
	return pending, nil
}

func (f *fakeTickets) MaxPendingPosition(ctx context.Context, agentID string) (int, error) {
	pending, _ := f.ListPending(ctx, agentID)
	max := 0
	for _, t := range pending {
		if t.PositionInQueue > max {
			max = t.PositionInQueue
		}
	}
	return max, nil
}

func (f *fakeTickets) SetPosition(_ context.Context, ticketID string, position int) error {
	f.byID[ticketID].PositionInQueue = position
	return nil
}

func pendingTicket(id, agentID string, position int) *domain.Ticket {
	return &domain.Ticket{
		ID:              id,
		AgentID:         &agentID,
		Status:          domain.TicketStatusPending,
		PositionInQueue: position,
	}
}

func (f *fakeTickets) order(t *testing.T, agentID string) []string {
	t.Helper()
	pending, err := f.ListPending(context.Background(), agentID)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, ticket := range pending {
		ids = append(ids, ticket.ID)
	}
	return ids
}

func TestAppendTakesTailPosition(t *testing.T) {
	repo := newFakeTickets(pendingTicket("a", "agent-1", 1), pendingTicket("b", "agent-1", 2))
	store := NewStore(repo)

	ticket := pendingTicket("c", "agent-1", 0)
	pos, err := store.Append(context.Background(), "agent-1", ticket)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, 3, ticket.PositionInQueue)
}

func TestAppendToEmptyQueueStartsAtOne(t *testing.T) {
	store := NewStore(newFakeTickets())
	ticket := pendingTicket("a", "agent-1", 0)
	pos, err := store.Append(context.Background(), "agent-1", ticket)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestHeadReturnsLowestPosition(t *testing.T) {
	repo := newFakeTickets(pendingTicket("a", "agent-1", 2), pendingTicket("b", "agent-1", 1))
	store := NewStore(repo)

	head, err := store.Head(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "b", head.ID)
}

func TestHeadEmptyQueueReturnsNil(t *testing.T) {
	store := NewStore(newFakeTickets())
	head, err := store.Head(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestRemoveCompactsRemainder(t *testing.T) {
	repo := newFakeTickets(
		pendingTicket("a", "agent-1", 1),
		pendingTicket("b", "agent-1", 2),
		pendingTicket("c", "agent-1", 3),
	)
	store := NewStore(repo)

	removed := repo.byID["b"]
	require.NoError(t, store.Remove(context.Background(), "agent-1", removed))

	assert.Zero(t, removed.PositionInQueue)
	assert.Equal(t, 1, repo.byID["a"].PositionInQueue)
	assert.Equal(t, 2, repo.byID["c"].PositionInQueue)
}

func TestRemoveHeadShiftsEveryoneUp(t *testing.T) {
	repo := newFakeTickets(
		pendingTicket("a", "agent-1", 1),
		pendingTicket("b", "agent-1", 2),
		pendingTicket("c", "agent-1", 3),
	)
	store := NewStore(repo)

	// Remove fires before the status flip at call-next, so the head is still
	// listed as pending and must be skipped by ID.
	require.NoError(t, store.Remove(context.Background(), "agent-1", repo.byID["a"]))
	assert.Equal(t, []string{"b", "c"}, repo.order(t, "agent-1"))
	assert.Equal(t, 1, repo.byID["b"].PositionInQueue)
	assert.Equal(t, 2, repo.byID["c"].PositionInQueue)
}

func TestReorderRewritesPositions(t *testing.T) {
	repo := newFakeTickets(
		pendingTicket("a", "agent-1", 1),
		pendingTicket("b", "agent-1", 2),
		pendingTicket("c", "agent-1", 3),
	)
	store := NewStore(repo)

	require.NoError(t, store.Reorder(context.Background(), "agent-1", []string{"c", "a", "b"}))
	assert.Equal(t, []string{"c", "a", "b"}, repo.order(t, "agent-1"))
}

func TestReorderSameOrderIsNoOp(t *testing.T) {
	repo := newFakeTickets(pendingTicket("a", "agent-1", 1), pendingTicket("b", "agent-1", 2))
	store := NewStore(repo)

	require.NoError(t, store.Reorder(context.Background(), "agent-1", []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, repo.order(t, "agent-1"))
}

func TestReorderRejectsWrongSet(t *testing.T) {
	repo := newFakeTickets(pendingTicket("a", "agent-1", 1), pendingTicket("b", "agent-1", 2))
	store := NewStore(repo)

	cases := []struct {
		name string
		ids  []string
	}{
		{"missing ticket", []string{"a"}},
		{"extra ticket", []string{"a", "b", "z"}},
		{"unknown id", []string{"a", "z"}},
		{"duplicate id", []string{"a", "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Reorder(context.Background(), "agent-1", tc.ids)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeSetMismatch, apperrors.CodeOf(err))
			assert.Equal(t, []string{"a", "b"}, repo.order(t, "agent-1"))
		})
	}
}
