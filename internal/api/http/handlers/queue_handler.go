package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueueHandler serves the agent dashboard endpoints.
type QueueHandler struct {
	dispatch   *service.DispatchService
	categories *service.CategoryService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(dispatch *service.DispatchService, categories *service.CategoryService) *QueueHandler {
	return &QueueHandler{dispatch: dispatch, categories: categories}
}

// Assignments GET /agent/categories.
func (h *QueueHandler) Assignments(c *fiber.Ctx) error {
	actor, agentID, err := actorAndAgent(c)
	if err != nil {
		return err
	}
	links, err := h.categories.ListAgentAssignments(c.Context(), actor, agentID)
	if err != nil {
		return err
	}
	items := make([]dto.AssignmentResponse, 0, len(links))
	for i := range links {
		items = append(items, dto.FromAssignment(&links[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Queue GET /agent/queue. Admins may inspect another agent via ?agent_id.
func (h *QueueHandler) Queue(c *fiber.Ctx) error {
	actor, agentID, err := actorAndAgent(c)
	if err != nil {
		return err
	}
	view, err := h.dispatch.AgentQueue(c.Context(), actor, agentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AgentQueueResponse{
		Pending: dto.FromTickets(view.Pending),
		Others:  dto.FromTickets(view.Others),
	}})
}

// CallNext POST /agent/queue/call-next.
func (h *QueueHandler) CallNext(c *fiber.Ctx) error {
	actor, agentID, err := actorAndAgent(c)
	if err != nil {
		return err
	}
	ticket, err := h.dispatch.CallNext(c.Context(), actor, agentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Reorder PUT /agent/queue/order.
func (h *QueueHandler) Reorder(c *fiber.Ctx) error {
	actor, agentID, err := actorAndAgent(c)
	if err != nil {
		return err
	}
	var req dto.ReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	// The payload is the full replacement order; the queue's set validation
	// answers an empty list, which is legal against an empty queue.
	if err := h.dispatch.ReorderQueue(c.Context(), actor, agentID, req.TicketIDs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"agent_id": agentID, "ticket_ids": req.TicketIDs}})
}

// MarkServing POST /tickets/:id/serving.
func (h *QueueHandler) MarkServing(c *fiber.Ctx) error {
	return h.applyTicketAction(c, h.dispatch.MarkServing)
}

// MarkCompleted POST /tickets/:id/complete.
func (h *QueueHandler) MarkCompleted(c *fiber.Ctx) error {
	return h.applyTicketAction(c, h.dispatch.MarkCompleted)
}

// MarkNoShow POST /tickets/:id/no-show.
func (h *QueueHandler) MarkNoShow(c *fiber.Ctx) error {
	return h.applyTicketAction(c, h.dispatch.MarkNoShow)
}

// Reopen POST /tickets/:id/reopen.
func (h *QueueHandler) Reopen(c *fiber.Ctx) error {
	return h.applyTicketAction(c, h.dispatch.Reopen)
}

func (h *QueueHandler) applyTicketAction(c *fiber.Ctx, action func(context.Context, service.Actor, string) (*domain.Ticket, error)) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := action(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// actorFrom maps the authenticated principal to a service actor.
func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return service.Actor{}, apperrors.NewUnauthorized("user required")
	}
	return service.Actor{ID: principal.User.ID, Role: principal.Role}, nil
}

// actorAndAgent resolves the queue owner for the request: the caller itself,
// or for admins the agent named in ?agent_id.
func actorAndAgent(c *fiber.Ctx) (service.Actor, string, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return service.Actor{}, "", err
	}
	agentID := actor.ID
	if override := c.Query("agent_id"); override != "" && actor.IsAdmin() {
		agentID = override
	}
	return actor, agentID, nil
}
