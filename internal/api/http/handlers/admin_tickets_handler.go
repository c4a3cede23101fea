package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// AdminTicketsHandler exposes the admin override surface for tickets.
type AdminTicketsHandler struct {
	dispatch *service.DispatchService
}

// NewAdminTicketsHandler constructs handler.
func NewAdminTicketsHandler(dispatch *service.DispatchService) *AdminTicketsHandler {
	return &AdminTicketsHandler{dispatch: dispatch}
}

// Transfer POST /admin/tickets/:id/transfer.
func (h *AdminTicketsHandler) Transfer(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TargetAgentID == "" {
		return apperrors.NewValidationError("target_agent_id required", nil)
	}
	ticket, err := h.dispatch.Transfer(c.Context(), actor, c.Params("id"), req.TargetAgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Delete DELETE /admin/tickets/:id.
func (h *AdminTicketsHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.dispatch.DeleteTicket(c.Context(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
