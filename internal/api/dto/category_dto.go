package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CategoryRequest is the create/update payload.
type CategoryRequest struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	IsActive             *bool  `json:"is_active"`
}

// AssignAgentRequest links an agent to a category.
type AssignAgentRequest struct {
	AgentID string `json:"agent_id"`
}

// CategoryResponse is the wire form of a category.
type CategoryResponse struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// AssignmentResponse is the wire form of an agent-category link.
type AssignmentResponse struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	CategoryID string    `json:"category_id"`
	IsActive   bool      `json:"is_active"`
	AssignedAt time.Time `json:"assigned_at"`
}

// FromCategory maps a domain category.
func FromCategory(c *domain.Category) CategoryResponse {
	return CategoryResponse{
		ID:                   c.ID,
		Name:                 c.Name,
		Description:          c.Description,
		EstimatedWaitMinutes: c.EstimatedWaitMinutes,
		IsActive:             c.IsActive,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

// FromAssignment maps a domain link.
func FromAssignment(link *domain.AgentCategory) AssignmentResponse {
	return AssignmentResponse{
		ID:         link.ID,
		AgentID:    link.AgentID,
		CategoryID: link.CategoryID,
		IsActive:   link.IsActive,
		AssignedAt: link.AssignedAt,
	}
}
