package service

import (
	"context"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// AgentSelector picks the target agent for a check-in from the category's
// active assignments. The routing policy is deliberately explicit and
// swappable via configuration.
type AgentSelector interface {
	SelectAgent(ctx context.Context, ds repository.Datastore, assignments []domain.AgentCategory) (string, error)
}

// FirstAssignedSelector routes every check-in to the category's earliest
// active assignment, a deterministic single-agent policy.
type FirstAssignedSelector struct{}

// SelectAgent returns the first assignment's agent; the repository orders by
// assignment time.
func (FirstAssignedSelector) SelectAgent(_ context.Context, _ repository.Datastore, assignments []domain.AgentCategory) (string, error) {
	if len(assignments) == 0 {
		return "", apperrors.NewValidationError("category has no active agents", nil)
	}
	return assignments[0].AgentID, nil
}

// LeastLoadedSelector distributes check-ins to the assigned agent with the
// shortest pending queue, falling back to assignment order on ties.
type LeastLoadedSelector struct{}

// SelectAgent counts each candidate's pending queue and picks the smallest.
func (LeastLoadedSelector) SelectAgent(ctx context.Context, ds repository.Datastore, assignments []domain.AgentCategory) (string, error) {
	if len(assignments) == 0 {
		return "", apperrors.NewValidationError("category has no active agents", nil)
	}

	best := ""
	bestDepth := -1
	for _, link := range assignments {
		depth, err := ds.Tickets().MaxPendingPosition(ctx, link.AgentID)
		if err != nil {
			return "", err
		}
		if bestDepth == -1 || depth < bestDepth {
			best = link.AgentID
			bestDepth = depth
		}
	}
	return best, nil
}

// SelectorFromPolicy maps a configured policy name to its selector,
// defaulting to the deterministic policy.
func SelectorFromPolicy(policy string) AgentSelector {
	if policy == "least_loaded" {
		return LeastLoadedSelector{}
	}
	return FirstAssignedSelector{}
}
