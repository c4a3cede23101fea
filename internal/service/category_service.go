package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// CategoryService manages service categories and their agent assignments.
type CategoryService struct {
	ds          repository.Datastore
	broadcaster *events.Broadcaster
}

// NewCategoryService constructs the service.
func NewCategoryService(ds repository.Datastore, broadcaster *events.Broadcaster) *CategoryService {
	return &CategoryService{ds: ds, broadcaster: broadcaster}
}

// CategoryInput describes category create/update payloads.
type CategoryInput struct {
	Name                 string
	Description          string
	EstimatedWaitMinutes int
	IsActive             *bool
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateCategory creates a new active category.
func (s *CategoryService) CreateCategory(ctx context.Context, actor Actor, input CategoryInput) (*domain.Category, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name required", nil)
	}

	category := &domain.Category{
		Name:                 name,
		Description:          strings.TrimSpace(input.Description),
		EstimatedWaitMinutes: input.EstimatedWaitMinutes,
		IsActive:             true,
	}
	if err := s.ds.Categories().Create(ctx, category); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishCategory(ctx, events.EventCategoryCreated, category, "")
	return category, nil
}

// UpdateCategory updates name, description, wait estimate, and active flag.
func (s *CategoryService) UpdateCategory(ctx context.Context, actor Actor, categoryID string, input CategoryInput) (*domain.Category, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	category, err := s.getCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		category.Name = name
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		category.Description = desc
	}
	if input.EstimatedWaitMinutes > 0 {
		category.EstimatedWaitMinutes = input.EstimatedWaitMinutes
	}
	if input.IsActive != nil {
		category.IsActive = *input.IsActive
	}

	if err := s.ds.Categories().Update(ctx, category); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishCategory(ctx, events.EventCategoryUpdated, category, "")
	return category, nil
}

// DeleteCategory removes a category outright.
func (s *CategoryService) DeleteCategory(ctx context.Context, actor Actor, categoryID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	category, err := s.getCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if err := s.ds.Categories().Delete(ctx, categoryID); err != nil {
		return apperrors.MapError(err)
	}
	s.publishCategory(ctx, events.EventCategoryDeleted, category, "")
	return nil
}

// ListCategories returns categories; admins may include inactive ones.
func (s *CategoryService) ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error) {
	categories, err := s.ds.Categories().List(ctx, includeInactive)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return categories, nil
}

// AssignAgent links an active agent to a category. An existing inactive link
// is reactivated rather than duplicated.
func (s *CategoryService) AssignAgent(ctx context.Context, actor Actor, categoryID, agentID string) (*domain.AgentCategory, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	category, err := s.getCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	agent, err := s.ds.Users().GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if agent.Role != domain.RoleAgent || !agent.IsActive {
		return nil, apperrors.NewConflict("user is not an active agent", map[string]any{"agent_id": agentID})
	}

	link, err := s.ds.Assignments().Get(ctx, agentID, categoryID)
	switch {
	case err == nil:
		if !link.IsActive {
			if err := s.ds.Assignments().SetActive(ctx, link.ID, true); err != nil {
				return nil, apperrors.MapError(err)
			}
			link.IsActive = true
		}
	case errors.Is(err, pgx.ErrNoRows):
		link = &domain.AgentCategory{AgentID: agentID, CategoryID: categoryID, IsActive: true}
		if err := s.ds.Assignments().Create(ctx, link); err != nil {
			return nil, apperrors.MapError(err)
		}
	default:
		return nil, apperrors.MapError(err)
	}

	s.publishCategory(ctx, events.EventCategoryAgentAssigned, category, agentID)
	return link, nil
}

// UnassignAgent soft-deactivates the link; history and the (agent, category)
// pair uniqueness are preserved.
func (s *CategoryService) UnassignAgent(ctx context.Context, actor Actor, categoryID, agentID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	category, err := s.getCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	link, err := s.ds.Assignments().Get(ctx, agentID, categoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("assignment", map[string]any{"agent_id": agentID, "category_id": categoryID})
		}
		return apperrors.MapError(err)
	}
	if link.IsActive {
		if err := s.ds.Assignments().SetActive(ctx, link.ID, false); err != nil {
			return apperrors.MapError(err)
		}
	}
	s.publishCategory(ctx, events.EventCategoryAgentAssigned, category, agentID)
	return nil
}

// ListAgentAssignments returns the categories an agent serves, for the agent
// dashboard. Agents see only their own links.
func (s *CategoryService) ListAgentAssignments(ctx context.Context, actor Actor, agentID string) ([]domain.AgentCategory, error) {
	if !actor.IsAdmin() && actor.ID != agentID {
		return nil, apperrors.NewForbidden("access denied")
	}
	links, err := s.ds.Assignments().ListByAgent(ctx, agentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return links, nil
}

// ListAssignments returns all links for a category's roster view.
func (s *CategoryService) ListAssignments(ctx context.Context, actor Actor, categoryID string) ([]domain.AgentCategory, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	links, err := s.ds.Assignments().ListActiveByCategory(ctx, categoryID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return links, nil
}

func (s *CategoryService) getCategory(ctx context.Context, categoryID string) (*domain.Category, error) {
	category, err := s.ds.Categories().GetByID(ctx, categoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("category", map[string]any{"category_id": categoryID})
		}
		return nil, apperrors.MapError(err)
	}
	return category, nil
}

func (s *CategoryService) publishCategory(ctx context.Context, eventType events.EventType, category *domain.Category, agentID string) {
	if s.broadcaster == nil {
		return
	}
	payload := events.CategoryPayload{
		CategoryID: category.ID,
		Name:       category.Name,
		IsActive:   category.IsActive,
		AgentID:    agentID,
	}
	s.broadcaster.Publish(ctx, events.Event{
		Type:    eventType,
		Topic:   events.CategoryTopic(category.ID),
		Payload: payload,
	})
	s.broadcaster.Publish(ctx, events.Event{
		Type:    events.EventStatusUpdated,
		Topic:   events.TopicPublic,
		Payload: payload,
	})
}
