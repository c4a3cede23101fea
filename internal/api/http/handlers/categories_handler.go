package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// CategoriesHandler manages the admin category surface.
type CategoriesHandler struct {
	categories *service.CategoryService
}

// NewCategoriesHandler constructs handler.
func NewCategoriesHandler(categories *service.CategoryService) *CategoriesHandler {
	return &CategoriesHandler{categories: categories}
}

// Create POST /admin/categories.
func (h *CategoriesHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	category, err := h.categories.CreateCategory(c.Context(), actor, service.CategoryInput{
		Name:                 req.Name,
		Description:          req.Description,
		EstimatedWaitMinutes: req.EstimatedWaitMinutes,
		IsActive:             req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromCategory(category)})
}

// Update PUT /admin/categories/:id.
func (h *CategoriesHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	category, err := h.categories.UpdateCategory(c.Context(), actor, c.Params("id"), service.CategoryInput{
		Name:                 req.Name,
		Description:          req.Description,
		EstimatedWaitMinutes: req.EstimatedWaitMinutes,
		IsActive:             req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromCategory(category)})
}

// Delete DELETE /admin/categories/:id.
func (h *CategoriesHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.categories.DeleteCategory(c.Context(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// List GET /admin/categories. Includes inactive categories.
func (h *CategoriesHandler) List(c *fiber.Ctx) error {
	if _, err := actorFrom(c); err != nil {
		return err
	}
	categories, err := h.categories.ListCategories(c.Context(), true)
	if err != nil {
		return err
	}
	items := make([]dto.CategoryResponse, 0, len(categories))
	for i := range categories {
		items = append(items, dto.FromCategory(&categories[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AssignAgent POST /admin/categories/:id/agents.
func (h *CategoriesHandler) AssignAgent(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AgentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	link, err := h.categories.AssignAgent(c.Context(), actor, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromAssignment(link)})
}

// UnassignAgent DELETE /admin/categories/:id/agents/:agentID.
func (h *CategoriesHandler) UnassignAgent(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.categories.UnassignAgent(c.Context(), actor, c.Params("id"), c.Params("agentID")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListAssignments GET /admin/categories/:id/agents.
func (h *CategoriesHandler) ListAssignments(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	links, err := h.categories.ListAssignments(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AssignmentResponse, 0, len(links))
	for i := range links {
		items = append(items, dto.FromAssignment(&links[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
