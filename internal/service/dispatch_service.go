package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/queue"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/token"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// Actor is the authenticated caller of a dispatch operation. Admins may act
// on any agent's queue; agents only on their own.
type Actor struct {
	ID   string
	Role domain.Role
}

// IsAdmin reports administrative privilege.
func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// CheckInInput describes a customer check-in.
type CheckInInput struct {
	CategoryID    string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Note          string
	FormPayload   map[string]any
}

// AgentQueueView is an agent's dashboard read: the pending queue in call
// order plus the day's non-pending tickets.
type AgentQueueView struct {
	Pending []domain.Ticket
	Others  []domain.Ticket
}

// StatusBoard aggregates the public view: category id → agent id → tickets.
type StatusBoard map[string]map[string][]domain.Ticket

// DispatchService orchestrates check-in, queue calls, and admin overrides.
// Every mutation runs inside a transaction serialized on the touched agents;
// events are published only after the transaction commits.
type DispatchService struct {
	ds            repository.Datastore
	tokens        *token.Generator
	selector      AgentSelector
	broadcaster   *events.Broadcaster
	logger        *zap.Logger
	tokenAttempts int
	now           func() time.Time
}

// DispatchDependencies bundles collaborators for the dispatch service.
type DispatchDependencies struct {
	Datastore     repository.Datastore
	TokenGen      *token.Generator
	Selector      AgentSelector
	Broadcaster   *events.Broadcaster
	Logger        *zap.Logger
	TokenAttempts int
}

// NewDispatchService constructs the service.
func NewDispatchService(deps DispatchDependencies) *DispatchService {
	attempts := deps.TokenAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &DispatchService{
		ds:            deps.Datastore,
		tokens:        deps.TokenGen,
		selector:      deps.Selector,
		broadcaster:   deps.Broadcaster,
		logger:        deps.Logger,
		tokenAttempts: attempts,
		now:           time.Now,
	}
}

// CheckIn admits a customer into a category's queue: routes to an agent,
// allocates the day's next token, creates the ticket pending at the queue
// tail. The whole step is one transaction; a token claimed concurrently by
// another writer rolls it back and the allocation is retried from scratch.
func (s *DispatchService) CheckIn(ctx context.Context, input CheckInInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.CustomerName) == "" {
		return nil, apperrors.NewValidationError("customer_name required", nil)
	}
	if input.CategoryID == "" {
		return nil, apperrors.NewValidationError("category_id required", nil)
	}

	for attempt := 1; attempt <= s.tokenAttempts; attempt++ {
		ticket, pub, err := s.tryCheckIn(ctx, input)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				s.logger.Debug("token conflict, retrying",
					zap.String("category_id", input.CategoryID),
					zap.Int("attempt", attempt))
				continue
			}
			return nil, err
		}
		s.publish(ctx, pub...)
		return ticket, nil
	}
	return nil, apperrors.NewConflictRetry(input.CategoryID, s.tokenAttempts)
}

func (s *DispatchService) tryCheckIn(ctx context.Context, input CheckInInput) (*domain.Ticket, []events.Publication, error) {
	var ticket *domain.Ticket
	err := s.ds.WithinTx(ctx, func(ctx context.Context, ds repository.Datastore) error {
		category, err := ds.Categories().GetByID(ctx, input.CategoryID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("category", map[string]any{"category_id": input.CategoryID})
			}
			return err
		}
		if !category.IsActive {
			return apperrors.NewValidationError("category inactive", map[string]any{"category_id": category.ID})
		}

		assignments, err := ds.Assignments().ListActiveByCategory(ctx, category.ID)
		if err != nil {
			return err
		}
		agentID, err := s.selector.SelectAgent(ctx, ds, assignments)
		if err != nil {
			return err
		}
		if err := ds.Users().LockForUpdate(ctx, agentID); err != nil {
			return err
		}

		now := s.now()
		tokenNumber, err := s.tokens.Next(ctx, ds.Tickets(), category, now)
		if err != nil {
			return err
		}

		t := &domain.Ticket{
			TokenNumber:   tokenNumber,
			TokenDate:     token.DayOf(now),
			CategoryID:    category.ID,
			AgentID:       &agentID,
			Status:        domain.TicketStatusPending,
			CustomerName:  strings.TrimSpace(input.CustomerName),
			CustomerPhone: strings.TrimSpace(input.CustomerPhone),
			CustomerEmail: strings.TrimSpace(input.CustomerEmail),
			Note:          strings.TrimSpace(input.Note),
			FormPayload:   input.FormPayload,
		}
		if _, err := queue.NewStore(ds.Tickets()).Append(ctx, agentID, t); err != nil {
			return err
		}
		if err := ds.Tickets().Create(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	pub := s.ticketEvents(events.EventTicketCreated, ticket)
	return ticket, pub, nil
}

// AgentQueue returns the caller's (or, for admins, any agent's) queue view.
func (s *DispatchService) AgentQueue(ctx context.Context, actor Actor, agentID string) (*AgentQueueView, error) {
	if err := s.authorizeAgent(actor, agentID); err != nil {
		return nil, err
	}

	pending, err := s.ds.Tickets().ListPending(ctx, agentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	all, err := s.ds.Tickets().ListByAgentSince(ctx, agentID, token.DayOf(s.now()))
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	view := &AgentQueueView{Pending: pending}
	for _, t := range all {
		if t.Status != domain.TicketStatusPending {
			view.Others = append(view.Others, t)
		}
	}
	return view, nil
}

// CallNext promotes the head of the agent's queue to called and compacts the
// remainder. Empty queue is a normal negative result (QueueEmpty).
func (s *DispatchService) CallNext(ctx context.Context, actor Actor, agentID string) (*domain.Ticket, error) {
	if err := s.authorizeAgent(actor, agentID); err != nil {
		return nil, err
	}

	var called *domain.Ticket
	var pub []events.Publication
	err := s.ds.WithinAgentTx(ctx, []string{agentID}, func(ctx context.Context, ds repository.Datastore) error {
		store := queue.NewStore(ds.Tickets())
		head, err := store.Head(ctx, agentID)
		if err != nil {
			return err
		}
		if head == nil {
			return apperrors.NewQueueEmpty(agentID)
		}
		if err := applyTransition(head, ActionCall, s.now()); err != nil {
			return err
		}
		if err := store.Remove(ctx, agentID, head); err != nil {
			return err
		}
		if err := ds.Tickets().Update(ctx, head); err != nil {
			return err
		}
		called = head
		pub, err = s.queueEvents(ctx, ds, events.EventTicketCalled, head, agentID)
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, pub...)
	return called, nil
}

// MarkServing moves a called ticket to serving. At most one ticket per agent
// may be serving; a second one is rejected with AgentBusy.
func (s *DispatchService) MarkServing(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, ActionServe, events.EventTicketServing)
}

// MarkCompleted finishes a called or serving ticket.
func (s *DispatchService) MarkCompleted(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, ActionComplete, events.EventTicketCompleted)
}

// MarkNoShow parks a called ticket in hold until it is reopened.
func (s *DispatchService) MarkNoShow(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, ActionNoShow, events.EventTicketNoShow)
}

func (s *DispatchService) transition(ctx context.Context, actor Actor, ticketID string, action Action, eventType events.EventType) (*domain.Ticket, error) {
	agentID, err := s.agentOf(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAgent(actor, agentID); err != nil {
		return nil, err
	}

	var ticket *domain.Ticket
	var pub []events.Publication
	err = s.ds.WithinAgentTx(ctx, []string{agentID}, func(ctx context.Context, ds repository.Datastore) error {
		t, err := ds.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if action == ActionServe {
			busy, err := ds.Tickets().HasServing(ctx, agentID, t.ID)
			if err != nil {
				return err
			}
			if busy {
				return apperrors.NewAgentBusy(agentID)
			}
		}
		if err := applyTransition(t, action, s.now()); err != nil {
			return err
		}
		if err := ds.Tickets().Update(ctx, t); err != nil {
			return err
		}
		ticket = t
		pub = s.ticketEvents(eventType, t)
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, pub...)
	return ticket, nil
}

// Reopen re-admits a completed or held ticket as pending at the tail of its
// agent's queue. All transition timestamps except creation are cleared. A
// reopen announces itself as a queue change, not a fresh check-in, so the
// customer is not notified of a ticket they already hold.
func (s *DispatchService) Reopen(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	agentID, err := s.agentOf(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAgent(actor, agentID); err != nil {
		return nil, err
	}

	var ticket *domain.Ticket
	var pub []events.Publication
	err = s.ds.WithinAgentTx(ctx, []string{agentID}, func(ctx context.Context, ds repository.Datastore) error {
		t, err := ds.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := applyTransition(t, ActionReopen, s.now()); err != nil {
			return err
		}
		if _, err := queue.NewStore(ds.Tickets()).Append(ctx, agentID, t); err != nil {
			return err
		}
		if err := ds.Tickets().Update(ctx, t); err != nil {
			return err
		}
		ticket = t
		pub, err = s.queueOnlyEvents(ctx, ds, agentID)
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, pub...)
	return ticket, nil
}

// ReorderQueue atomically replaces the agent's pending order with the given
// full list of ticket ids.
func (s *DispatchService) ReorderQueue(ctx context.Context, actor Actor, agentID string, orderedIDs []string) error {
	if err := s.authorizeAgent(actor, agentID); err != nil {
		return err
	}

	var pub []events.Publication
	err := s.ds.WithinAgentTx(ctx, []string{agentID}, func(ctx context.Context, ds repository.Datastore) error {
		if err := queue.NewStore(ds.Tickets()).Reorder(ctx, agentID, orderedIDs); err != nil {
			return err
		}
		var err error
		pub, err = s.queueOnlyEvents(ctx, ds, agentID)
		return err
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	s.publish(ctx, pub...)
	return nil
}

// Transfer moves a pending ticket to another agent's tail. Admin only; the
// target must be an active assignee of the ticket's category.
func (s *DispatchService) Transfer(ctx context.Context, actor Actor, ticketID, targetAgentID string) (*domain.Ticket, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	sourceAgentID, err := s.agentOf(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if sourceAgentID == targetAgentID {
		return nil, apperrors.NewValidationError("ticket already belongs to target agent", nil)
	}

	var ticket *domain.Ticket
	var pub []events.Publication
	err = s.ds.WithinAgentTx(ctx, []string{sourceAgentID, targetAgentID}, func(ctx context.Context, ds repository.Datastore) error {
		t, err := ds.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.Status != domain.TicketStatusPending {
			return apperrors.NewConflict("only pending tickets can be transferred",
				map[string]any{"status": t.Status})
		}
		link, err := ds.Assignments().Get(ctx, targetAgentID, t.CategoryID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewValidationError("target agent not assigned to category", nil)
			}
			return err
		}
		if !link.IsActive {
			return apperrors.NewValidationError("target agent not assigned to category", nil)
		}

		store := queue.NewStore(ds.Tickets())
		if err := store.Remove(ctx, sourceAgentID, t); err != nil {
			return err
		}
		t.AgentID = &targetAgentID
		if _, err := store.Append(ctx, targetAgentID, t); err != nil {
			return err
		}
		if err := ds.Tickets().Update(ctx, t); err != nil {
			return err
		}
		ticket = t

		payload := events.NewTicketPayload(t)
		pub = []events.Publication{
			{
				Canonical: events.Event{Type: events.EventTicketTransferred, Topic: events.CategoryTopic(t.CategoryID), Payload: payload},
				Copies: []events.Event{
					{Type: events.EventTicketTransferred, Topic: events.AgentTopic(sourceAgentID), Payload: payload},
					{Type: events.EventTicketTransferred, Topic: events.AgentTopic(targetAgentID), Payload: payload},
				},
			},
			{Canonical: events.Event{Type: events.EventStatusUpdated, Topic: events.TopicPublic, Payload: payload}},
		}
		for _, agentID := range []string{sourceAgentID, targetAgentID} {
			queueEvt, err := s.queueUpdatedEvent(ctx, ds, agentID)
			if err != nil {
				return err
			}
			pub = append(pub, queueEvt)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, pub...)
	return ticket, nil
}

// DeleteTicket hard-removes a ticket regardless of state, bypassing the
// lifecycle. Admin only. A pending ticket's queue is compacted first.
func (s *DispatchService) DeleteTicket(ctx context.Context, actor Actor, ticketID string) error {
	if !actor.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}

	t, err := s.ds.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}

	if t.Status == domain.TicketStatusPending && t.AgentID != nil {
		agentID := *t.AgentID
		var pub []events.Publication
		err = s.ds.WithinAgentTx(ctx, []string{agentID}, func(ctx context.Context, ds repository.Datastore) error {
			current, err := ds.Tickets().GetByID(ctx, ticketID)
			if err != nil {
				return err
			}
			if err := queue.NewStore(ds.Tickets()).Remove(ctx, agentID, current); err != nil {
				return err
			}
			if err := ds.Tickets().Delete(ctx, ticketID); err != nil {
				return err
			}
			pub, err = s.queueOnlyEvents(ctx, ds, agentID)
			return err
		})
		if err != nil {
			return apperrors.MapError(err)
		}
		s.publish(ctx, pub...)
		return nil
	}

	if err := s.ds.Tickets().Delete(ctx, ticketID); err != nil {
		return apperrors.MapError(err)
	}
	s.publish(ctx, events.Publication{Canonical: events.Event{Type: events.EventStatusUpdated, Topic: events.TopicPublic}})
	return nil
}

// PublicStatus builds the aggregate category → agent → tickets snapshot for
// the current day.
func (s *DispatchService) PublicStatus(ctx context.Context) (StatusBoard, error) {
	categories, err := s.ds.Categories().List(ctx, false)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	tickets, err := s.ds.Tickets().ListSince(ctx, token.DayOf(s.now()))
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	board := make(StatusBoard, len(categories))
	for _, category := range categories {
		board[category.ID] = make(map[string][]domain.Ticket)
	}
	for _, t := range tickets {
		agents, ok := board[t.CategoryID]
		if !ok || t.AgentID == nil {
			continue
		}
		agents[*t.AgentID] = append(agents[*t.AgentID], t)
	}
	return board, nil
}

func (s *DispatchService) agentOf(ctx context.Context, ticketID string) (string, error) {
	t, err := s.ds.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return "", apperrors.MapError(err)
	}
	if t.AgentID == nil {
		return "", apperrors.NewConflict("ticket has no assigned agent", map[string]any{"ticket_id": ticketID})
	}
	return *t.AgentID, nil
}

func (s *DispatchService) authorizeAgent(actor Actor, agentID string) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == domain.RoleAgent && actor.ID == agentID {
		return nil
	}
	return apperrors.NewForbidden("not your queue")
}

// ticketEvents fans a ticket event to its agent and category rooms plus the
// public aggregate. The category-room event is the canonical one; the agent
// room receives a sink-only copy so in-process subscribers see the
// occurrence once.
func (s *DispatchService) ticketEvents(eventType events.EventType, t *domain.Ticket) []events.Publication {
	payload := events.NewTicketPayload(t)
	occurrence := events.Publication{
		Canonical: events.Event{Type: eventType, Topic: events.CategoryTopic(t.CategoryID), Payload: payload},
	}
	if t.AgentID != nil {
		occurrence.Copies = append(occurrence.Copies,
			events.Event{Type: eventType, Topic: events.AgentTopic(*t.AgentID), Payload: payload})
	}
	return []events.Publication{
		occurrence,
		{Canonical: events.Event{Type: events.EventStatusUpdated, Topic: events.TopicPublic, Payload: payload}},
	}
}

// queueEvents combines a ticket event with the agent's refreshed queue order.
func (s *DispatchService) queueEvents(ctx context.Context, ds repository.Datastore, eventType events.EventType, t *domain.Ticket, agentID string) ([]events.Publication, error) {
	pub := s.ticketEvents(eventType, t)
	queueEvt, err := s.queueUpdatedEvent(ctx, ds, agentID)
	if err != nil {
		return nil, err
	}
	return append(pub, queueEvt), nil
}

func (s *DispatchService) queueOnlyEvents(ctx context.Context, ds repository.Datastore, agentID string) ([]events.Publication, error) {
	queueEvt, err := s.queueUpdatedEvent(ctx, ds, agentID)
	if err != nil {
		return nil, err
	}
	return []events.Publication{
		queueEvt,
		{Canonical: events.Event{Type: events.EventStatusUpdated, Topic: events.TopicPublic}},
	}, nil
}

func (s *DispatchService) queueUpdatedEvent(ctx context.Context, ds repository.Datastore, agentID string) (events.Publication, error) {
	pending, err := ds.Tickets().ListPending(ctx, agentID)
	if err != nil {
		return events.Publication{}, err
	}
	ids := make([]string, 0, len(pending))
	for _, t := range pending {
		ids = append(ids, t.ID)
	}
	return events.Publication{Canonical: events.Event{
		Type:    events.EventQueueUpdated,
		Topic:   events.AgentTopic(agentID),
		Payload: events.QueuePayload{AgentID: agentID, TicketIDs: ids},
	}}, nil
}

func (s *DispatchService) publish(ctx context.Context, pub ...events.Publication) {
	if s.broadcaster == nil {
		return
	}
	for _, p := range pub {
		s.broadcaster.Broadcast(ctx, p)
	}
}
