package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// PublicHandler serves the unauthenticated kiosk surface.
type PublicHandler struct {
	dispatch   *service.DispatchService
	categories *service.CategoryService
}

// NewPublicHandler constructs handler.
func NewPublicHandler(dispatch *service.DispatchService, categories *service.CategoryService) *PublicHandler {
	return &PublicHandler{dispatch: dispatch, categories: categories}
}

// CheckIn POST /checkin.
func (h *PublicHandler) CheckIn(c *fiber.Ctx) error {
	var req dto.CheckInRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.CustomerName) == "" || req.CategoryID == "" {
		return apperrors.NewValidationError("category_id, customer_name required", nil)
	}

	ticket, err := h.dispatch.CheckIn(c.Context(), service.CheckInInput{
		CategoryID:    req.CategoryID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Note:          req.Note,
		FormPayload:   req.FormPayload,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Status GET /status.
func (h *PublicHandler) Status(c *fiber.Ctx) error {
	board, err := h.dispatch.PublicStatus(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": board})
}

// ListCategories GET /categories.
func (h *PublicHandler) ListCategories(c *fiber.Ctx) error {
	categories, err := h.categories.ListCategories(c.Context(), false)
	if err != nil {
		return err
	}
	items := make([]dto.CategoryResponse, 0, len(categories))
	for i := range categories {
		items = append(items, dto.FromCategory(&categories[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
