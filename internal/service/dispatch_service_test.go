package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/token"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// memDatastore is an in-memory Datastore. Transactions degrade to plain
// function calls; the tests exercise ordering and lifecycle logic, not
// isolation.
type memDatastore struct {
	tickets     *memTickets
	categories  *memCategories
	assignments *memAssignments
	users       *memUsers
}

func newMemDatastore() *memDatastore {
	return &memDatastore{
		tickets:     &memTickets{byID: make(map[string]*domain.Ticket)},
		categories:  &memCategories{byID: make(map[string]*domain.Category)},
		assignments: &memAssignments{},
		users:       &memUsers{byID: make(map[string]*domain.User)},
	}
}

func (d *memDatastore) Tickets() repository.TicketRepository         { return d.tickets }
func (d *memDatastore) Categories() repository.CategoryRepository    { return d.categories }
func (d *memDatastore) Assignments() repository.AssignmentRepository { return d.assignments }
func (d *memDatastore) Users() repository.UserRepository             { return d.users }

func (d *memDatastore) WithinTx(ctx context.Context, fn func(context.Context, repository.Datastore) error) error {
	return fn(ctx, d)
}

func (d *memDatastore) WithinAgentTx(ctx context.Context, _ []string, fn func(context.Context, repository.Datastore) error) error {
	return fn(ctx, d)
}

type memTickets struct {
	byID        map[string]*domain.Ticket
	nextID      int
	failCreates int
}

func (m *memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	if m.failCreates > 0 {
		m.failCreates--
		return &pgconn.PgError{Code: "23505", ConstraintName: "tickets_token_number_token_date_key"}
	}
	m.nextID++
	ticket.ID = fmt.Sprintf("t%d", m.nextID)
	ticket.CreatedAt = time.Now()
	stored := *ticket
	m.byID[ticket.ID] = &stored
	return nil
}

func (m *memTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := m.byID[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *ticket
	m.byID[ticket.ID] = &stored
	return nil
}

func (m *memTickets) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.byID, id)
	return nil
}

func (m *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	stored, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *stored
	return &copy, nil
}

func (m *memTickets) ListPending(_ context.Context, agentID string) ([]domain.Ticket, error) {
	var pending []domain.Ticket
	for _, t := range m.byID {
		if t.AgentID != nil && *t.AgentID == agentID && t.Status == domain.TicketStatusPending {
			pending = append(pending, *t)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].PositionInQueue < pending[j].PositionInQueue
	})
	return pending, nil
}

func (m *memTickets) ListByAgentSince(_ context.Context, agentID string, since time.Time) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, t := range m.byID {
		if t.AgentID != nil && *t.AgentID == agentID && !t.CreatedAt.Before(since) {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *memTickets) ListSince(_ context.Context, since time.Time) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, t := range m.byID {
		if !t.CreatedAt.Before(since) {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *memTickets) SetPosition(_ context.Context, ticketID string, position int) error {
	stored, ok := m.byID[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.PositionInQueue = position
	return nil
}

func (m *memTickets) MaxPendingPosition(ctx context.Context, agentID string) (int, error) {
	pending, _ := m.ListPending(ctx, agentID)
	max := 0
	for _, t := range pending {
		if t.PositionInQueue > max {
			max = t.PositionInQueue
		}
	}
	return max, nil
}

func (m *memTickets) HasServing(_ context.Context, agentID string, exceptTicketID string) (bool, error) {
	for _, t := range m.byID {
		if t.AgentID != nil && *t.AgentID == agentID && t.Status == domain.TicketStatusServing && t.ID != exceptTicketID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTickets) MaxTokenSequence(_ context.Context, code string, day time.Time) (int, error) {
	max := 0
	for _, t := range m.byID {
		if !t.TokenDate.Equal(day) || !strings.HasPrefix(t.TokenNumber, code+"-") {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimPrefix(t.TokenNumber, code+"-"))
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

type memCategories struct {
	repository.CategoryRepository
	byID map[string]*domain.Category
}

func (m *memCategories) GetByID(_ context.Context, id string) (*domain.Category, error) {
	category, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *category
	return &copy, nil
}

func (m *memCategories) List(_ context.Context, includeInactive bool) ([]domain.Category, error) {
	var result []domain.Category
	for _, c := range m.byID {
		if c.IsActive || includeInactive {
			result = append(result, *c)
		}
	}
	return result, nil
}

type memAssignments struct {
	repository.AssignmentRepository
	links []domain.AgentCategory
}

func (m *memAssignments) Get(_ context.Context, agentID, categoryID string) (*domain.AgentCategory, error) {
	for i := range m.links {
		if m.links[i].AgentID == agentID && m.links[i].CategoryID == categoryID {
			copy := m.links[i]
			return &copy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAssignments) ListActiveByCategory(_ context.Context, categoryID string) ([]domain.AgentCategory, error) {
	var result []domain.AgentCategory
	for _, link := range m.links {
		if link.CategoryID == categoryID && link.IsActive {
			result = append(result, link)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AssignedAt.Equal(result[j].AssignedAt) {
			return result[i].AgentID < result[j].AgentID
		}
		return result[i].AssignedAt.Before(result[j].AssignedAt)
	})
	return result, nil
}

type memUsers struct {
	repository.UserRepository
	byID map[string]*domain.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *user
	return &copy, nil
}

func (m *memUsers) LockForUpdate(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return pgx.ErrNoRows
	}
	return nil
}

type recordingSink struct {
	events []events.Event
}

func (s *recordingSink) Deliver(_ context.Context, event events.Event) {
	s.events = append(s.events, event)
}

type fixture struct {
	ds          *memDatastore
	dispatch    *DispatchService
	broadcaster *events.Broadcaster
	sink        *recordingSink
	agent       Actor
	admin       Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds := newMemDatastore()

	ds.users.byID["agent-1"] = &domain.User{ID: "agent-1", Role: domain.RoleAgent, IsActive: true}
	ds.users.byID["agent-2"] = &domain.User{ID: "agent-2", Role: domain.RoleAgent, IsActive: true}
	ds.users.byID["admin-1"] = &domain.User{ID: "admin-1", Role: domain.RoleAdmin, IsActive: true}

	ds.categories.byID["cat-1"] = &domain.Category{ID: "cat-1", Name: "Customer Service", IsActive: true}
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	ds.assignments.links = []domain.AgentCategory{
		{ID: "l1", AgentID: "agent-1", CategoryID: "cat-1", IsActive: true, AssignedAt: base},
		{ID: "l2", AgentID: "agent-2", CategoryID: "cat-1", IsActive: true, AssignedAt: base.Add(time.Hour)},
	}

	sink := &recordingSink{}
	broadcaster := events.NewBroadcaster(zap.NewNop(), nil)
	broadcaster.AddSink(sink)

	dispatch := NewDispatchService(DispatchDependencies{
		Datastore:     ds,
		TokenGen:      token.NewGenerator(0),
		Selector:      FirstAssignedSelector{},
		Broadcaster:   broadcaster,
		Logger:        zap.NewNop(),
		TokenAttempts: 3,
	})

	return &fixture{
		ds:          ds,
		dispatch:    dispatch,
		broadcaster: broadcaster,
		sink:        sink,
		agent:       Actor{ID: "agent-1", Role: domain.RoleAgent},
		admin:       Actor{ID: "admin-1", Role: domain.RoleAdmin},
	}
}

func (f *fixture) checkIn(t *testing.T, name string) *domain.Ticket {
	t.Helper()
	ticket, err := f.dispatch.CheckIn(context.Background(), CheckInInput{
		CategoryID:   "cat-1",
		CustomerName: name,
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) pendingOrder(t *testing.T, agentID string) []string {
	t.Helper()
	pending, err := f.ds.tickets.ListPending(context.Background(), agentID)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, ticket := range pending {
		ids = append(ids, ticket.ID)
	}
	return ids
}

func TestCheckInIssuesSequentialTokens(t *testing.T) {
	f := newFixture(t)

	first := f.checkIn(t, "Alice")
	second := f.checkIn(t, "Bob")

	assert.Equal(t, "CS-001", first.TokenNumber)
	assert.Equal(t, "CS-002", second.TokenNumber)
	assert.Equal(t, domain.TicketStatusPending, first.Status)
	assert.Equal(t, 1, first.PositionInQueue)
	assert.Equal(t, 2, second.PositionInQueue)
	require.NotNil(t, first.AgentID)
	assert.Equal(t, "agent-1", *first.AgentID)
}

func TestCheckInRejectsUnknownOrInactiveCategory(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch.CheckIn(context.Background(), CheckInInput{CategoryID: "nope", CustomerName: "Alice"})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))

	f.ds.categories.byID["cat-1"].IsActive = false
	_, err = f.dispatch.CheckIn(context.Background(), CheckInInput{CategoryID: "cat-1", CustomerName: "Alice"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
}

func TestCheckInRetriesTokenConflict(t *testing.T) {
	f := newFixture(t)
	f.ds.tickets.failCreates = 2

	ticket := f.checkIn(t, "Alice")
	assert.Equal(t, "CS-001", ticket.TokenNumber)
}

func TestCheckInGivesUpAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	f.ds.tickets.failCreates = 3

	_, err := f.dispatch.CheckIn(context.Background(), CheckInInput{CategoryID: "cat-1", CustomerName: "Alice"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflictRetry, apperrors.CodeOf(err))
}

func TestCallNextPromotesHeadAndCompacts(t *testing.T) {
	f := newFixture(t)
	first := f.checkIn(t, "Alice")
	second := f.checkIn(t, "Bob")
	third := f.checkIn(t, "Carol")

	called, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, called.ID)
	assert.Equal(t, domain.TicketStatusCalled, called.Status)
	assert.Zero(t, called.PositionInQueue)
	assert.NotNil(t, called.CalledAt)

	assert.Equal(t, []string{second.ID, third.ID}, f.pendingOrder(t, "agent-1"))
	stored, err := f.ds.tickets.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PositionInQueue)
}

func TestCallNextEmptyQueue(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeQueueEmpty, apperrors.CodeOf(err))
}

func TestCallNextForbiddenForOtherAgent(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "Alice")

	_, err := f.dispatch.CallNext(context.Background(), Actor{ID: "agent-2", Role: domain.RoleAgent}, "agent-1")
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperrors.CodeOf(err))

	// Admins may drive any queue.
	_, err = f.dispatch.CallNext(context.Background(), f.admin, "agent-1")
	require.NoError(t, err)
}

func TestMarkServingEnforcesSingleSlot(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "Alice")
	f.checkIn(t, "Bob")

	first, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	serving, err := f.dispatch.MarkServing(context.Background(), f.agent, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusServing, serving.Status)
	assert.NotNil(t, serving.ServingStartedAt)

	second, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	_, err = f.dispatch.MarkServing(context.Background(), f.agent, second.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAgentBusy, apperrors.CodeOf(err))

	// Completing the first frees the slot.
	_, err = f.dispatch.MarkCompleted(context.Background(), f.agent, first.ID)
	require.NoError(t, err)
	_, err = f.dispatch.MarkServing(context.Background(), f.agent, second.ID)
	require.NoError(t, err)
}

func TestMarkNoShowParksTicket(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "Alice")

	called, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	held, err := f.dispatch.MarkNoShow(context.Background(), f.agent, called.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusHold, held.Status)
	assert.NotNil(t, held.NoShowAt)
	assert.Empty(t, f.pendingOrder(t, "agent-1"))
}

func TestReopenReentersAtTail(t *testing.T) {
	f := newFixture(t)
	first := f.checkIn(t, "Alice")

	called, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	_, err = f.dispatch.MarkCompleted(context.Background(), f.agent, called.ID)
	require.NoError(t, err)

	second := f.checkIn(t, "Bob")

	reopened, err := f.dispatch.Reopen(context.Background(), f.agent, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, reopened.Status)
	assert.Equal(t, 2, reopened.PositionInQueue)
	assert.Nil(t, reopened.CalledAt)
	assert.Nil(t, reopened.CompletedAt)
	assert.Equal(t, []string{second.ID, reopened.ID}, f.pendingOrder(t, "agent-1"))
}

func TestReopenRejectsActiveTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.checkIn(t, "Alice")

	_, err := f.dispatch.Reopen(context.Background(), f.agent, ticket.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.CodeOf(err))
}

func TestReorderQueue(t *testing.T) {
	f := newFixture(t)
	a := f.checkIn(t, "Alice")
	b := f.checkIn(t, "Bob")
	c := f.checkIn(t, "Carol")

	require.NoError(t, f.dispatch.ReorderQueue(context.Background(), f.agent, "agent-1", []string{c.ID, a.ID, b.ID}))
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, f.pendingOrder(t, "agent-1"))

	err := f.dispatch.ReorderQueue(context.Background(), f.agent, "agent-1", []string{c.ID, a.ID})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSetMismatch, apperrors.CodeOf(err))
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, f.pendingOrder(t, "agent-1"))
}

func TestTransferMovesPendingToTargetTail(t *testing.T) {
	f := newFixture(t)
	a := f.checkIn(t, "Alice")
	b := f.checkIn(t, "Bob")

	moved, err := f.dispatch.Transfer(context.Background(), f.admin, a.ID, "agent-2")
	require.NoError(t, err)
	require.NotNil(t, moved.AgentID)
	assert.Equal(t, "agent-2", *moved.AgentID)
	assert.Equal(t, 1, moved.PositionInQueue)

	assert.Equal(t, []string{b.ID}, f.pendingOrder(t, "agent-1"))
	assert.Equal(t, []string{a.ID}, f.pendingOrder(t, "agent-2"))
}

func TestTransferRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ticket := f.checkIn(t, "Alice")

	_, err := f.dispatch.Transfer(context.Background(), f.agent, ticket.ID, "agent-2")
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperrors.CodeOf(err))
}

func TestTransferRejectsUnassignedTarget(t *testing.T) {
	f := newFixture(t)
	f.ds.users.byID["agent-3"] = &domain.User{ID: "agent-3", Role: domain.RoleAgent, IsActive: true}
	ticket := f.checkIn(t, "Alice")

	_, err := f.dispatch.Transfer(context.Background(), f.admin, ticket.ID, "agent-3")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
}

func TestDeleteTicketCompactsQueue(t *testing.T) {
	f := newFixture(t)
	a := f.checkIn(t, "Alice")
	b := f.checkIn(t, "Bob")
	c := f.checkIn(t, "Carol")

	require.NoError(t, f.dispatch.DeleteTicket(context.Background(), f.admin, b.ID))
	assert.Equal(t, []string{a.ID, c.ID}, f.pendingOrder(t, "agent-1"))

	stored, err := f.ds.tickets.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.PositionInQueue)

	err = f.dispatch.DeleteTicket(context.Background(), f.agent, a.ID)
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperrors.CodeOf(err))
}

func TestAgentQueueSplitsPendingFromRest(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, "Alice")
	f.checkIn(t, "Bob")
	_, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)

	view, err := f.dispatch.AgentQueue(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	assert.Len(t, view.Pending, 1)
	assert.Len(t, view.Others, 1)
	assert.Equal(t, domain.TicketStatusCalled, view.Others[0].Status)
}

func TestReorderQueueEmptyList(t *testing.T) {
	f := newFixture(t)

	// Replacing an empty queue with an empty list is a no-op.
	require.NoError(t, f.dispatch.ReorderQueue(context.Background(), f.agent, "agent-1", nil))

	f.checkIn(t, "Alice")
	err := f.dispatch.ReorderQueue(context.Background(), f.agent, "agent-1", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSetMismatch, apperrors.CodeOf(err))
}

func TestCheckInNotifiesSubscribersOnce(t *testing.T) {
	f := newFixture(t)
	var created int
	f.broadcaster.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		created++
		return nil
	})

	f.checkIn(t, "Alice")

	assert.Equal(t, 1, created)
}

func TestCallNextNotifiesSubscribersOnce(t *testing.T) {
	f := newFixture(t)
	var called int
	f.broadcaster.Subscribe(events.EventTicketCalled, func(context.Context, events.Event) error {
		called++
		return nil
	})
	f.checkIn(t, "Alice")

	_, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestReopenAnnouncesQueueChangeNotCreation(t *testing.T) {
	f := newFixture(t)
	var created int
	f.broadcaster.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		created++
		return nil
	})
	ticket := f.checkIn(t, "Alice")
	_, err := f.dispatch.CallNext(context.Background(), f.agent, "agent-1")
	require.NoError(t, err)
	_, err = f.dispatch.MarkCompleted(context.Background(), f.agent, ticket.ID)
	require.NoError(t, err)

	f.sink.events = nil
	_, err = f.dispatch.Reopen(context.Background(), f.agent, ticket.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, created)
	var types []events.EventType
	for _, event := range f.sink.events {
		types = append(types, event.Type)
	}
	assert.NotContains(t, types, events.EventTicketCreated)
	assert.Contains(t, types, events.EventQueueUpdated)
	assert.Contains(t, types, events.EventStatusUpdated)
}

func TestCheckInPublishesEvents(t *testing.T) {
	f := newFixture(t)
	ticket := f.checkIn(t, "Alice")

	var topics []events.Topic
	for _, event := range f.sink.events {
		topics = append(topics, event.Topic)
	}
	assert.Contains(t, topics, events.TopicPublic)
	assert.Contains(t, topics, events.CategoryTopic("cat-1"))
	assert.Contains(t, topics, events.AgentTopic("agent-1"))
	require.NotEmpty(t, f.sink.events)
	assert.NotEmpty(t, ticket.ID)
}
