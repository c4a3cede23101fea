package domain

import "time"

// Category is a walk-in service line customers check in to.
type Category struct {
	ID                   string
	Name                 string
	Description          string
	EstimatedWaitMinutes int
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AgentCategory links an agent to a category they serve. Unassignment is soft:
// the link stays with IsActive=false and is reactivated on re-assign, so at
// most one link exists per (agent, category) pair.
type AgentCategory struct {
	ID         string
	AgentID    string
	CategoryID string
	IsActive   bool
	AssignedAt time.Time
}
