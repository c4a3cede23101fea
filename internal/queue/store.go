// Package queue maintains the per-agent ordered pending queue. All methods
// expect to run inside the caller's agent-scoped transaction; atomicity and
// serialization come from that boundary, the store only enforces the
// ordering rules.
package queue

import (
	"context"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// Store exposes the ordered-queue operations over the ticket repository.
type Store struct {
	tickets repository.TicketRepository
}

// NewStore wraps a (transaction-scoped) ticket repository.
func NewStore(tickets repository.TicketRepository) *Store {
	return &Store{tickets: tickets}
}

// Append assigns the ticket the tail position of the agent's pending queue
// and returns it. The caller persists the ticket row itself (insert at
// check-in, update at reopen).
func (s *Store) Append(ctx context.Context, agentID string, ticket *domain.Ticket) (int, error) {
	max, err := s.tickets.MaxPendingPosition(ctx, agentID)
	if err != nil {
		return 0, err
	}
	ticket.PositionInQueue = max + 1
	return ticket.PositionInQueue, nil
}

// Head returns the pending ticket with the lowest position, or nil when the
// queue is empty.
func (s *Store) Head(ctx context.Context, agentID string) (*domain.Ticket, error) {
	pending, err := s.tickets.ListPending(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return &pending[0], nil
}

// Remove takes the ticket out of its agent's queue and compacts the
// remainder back to a contiguous 1..N, preserving relative order. The
// ticket's own position is zeroed on the struct; persisting its row is the
// caller's job since removal always accompanies a status change.
func (s *Store) Remove(ctx context.Context, agentID string, ticket *domain.Ticket) error {
	pending, err := s.tickets.ListPending(ctx, agentID)
	if err != nil {
		return err
	}
	ticket.PositionInQueue = 0

	next := 1
	for i := range pending {
		if pending[i].ID == ticket.ID {
			continue
		}
		if pending[i].PositionInQueue != next {
			if err := s.tickets.SetPosition(ctx, pending[i].ID, next); err != nil {
				return err
			}
		}
		next++
	}
	return nil
}

// Reorder atomically rewrites the agent's pending positions to match
// orderedIDs. The payload must be exactly the current pending set: any
// omission, addition, foreign ID, or duplicate rejects the whole operation
// with SetMismatch and leaves state untouched. Applying the same order twice
// is a no-op.
func (s *Store) Reorder(ctx context.Context, agentID string, orderedIDs []string) error {
	pending, err := s.tickets.ListPending(ctx, agentID)
	if err != nil {
		return err
	}

	if len(orderedIDs) != len(pending) {
		return apperrors.NewSetMismatch(agentID, map[string]any{
			"expected_count": len(pending),
			"received_count": len(orderedIDs),
		})
	}

	current := make(map[string]*domain.Ticket, len(pending))
	for i := range pending {
		current[pending[i].ID] = &pending[i]
	}

	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return apperrors.NewSetMismatch(agentID, map[string]any{"duplicate_id": id})
		}
		seen[id] = struct{}{}
		if _, ok := current[id]; !ok {
			return apperrors.NewSetMismatch(agentID, map[string]any{"unknown_id": id})
		}
	}

	for i, id := range orderedIDs {
		position := i + 1
		if current[id].PositionInQueue == position {
			continue
		}
		if err := s.tickets.SetPosition(ctx, id, position); err != nil {
			return err
		}
	}
	return nil
}
