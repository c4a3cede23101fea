package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

const ticketColumns = `id, token_number, token_date, category_id, agent_id, status, position_in_queue,
               customer_name, customer_phone, customer_email, note, form_payload,
               created_at, called_at, serving_started_at, completed_at, no_show_at, updated_at`

// TicketRepository encapsulates ticket persistence, including the queue
// position bookkeeping the dispatch engine builds on.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)

	// ListPending returns the agent's pending tickets ordered by position.
	ListPending(ctx context.Context, agentID string) ([]domain.Ticket, error)
	// ListByAgentSince returns all of an agent's tickets created at or after since.
	ListByAgentSince(ctx context.Context, agentID string, since time.Time) ([]domain.Ticket, error)
	// ListSince returns every ticket created at or after since, for the status board.
	ListSince(ctx context.Context, since time.Time) ([]domain.Ticket, error)

	SetPosition(ctx context.Context, ticketID string, position int) error
	MaxPendingPosition(ctx context.Context, agentID string) (int, error)
	HasServing(ctx context.Context, agentID string, exceptTicketID string) (bool, error)

	// MaxTokenSequence returns the highest sequence number already issued for
	// the category code on the given day, zero when none.
	MaxTokenSequence(ctx context.Context, code string, day time.Time) (int, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates the repository over a pool or transaction.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (token_number, token_date, category_id, agent_id, status, position_in_queue,
                             customer_name, customer_phone, customer_email, note, form_payload,
                             called_at, serving_started_at, completed_at, no_show_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.TokenNumber,
		ticket.TokenDate,
		ticket.CategoryID,
		ticket.AgentID,
		ticket.Status,
		ticket.PositionInQueue,
		ticket.CustomerName,
		ticket.CustomerPhone,
		ticket.CustomerEmail,
		ticket.Note,
		ticket.FormPayload,
		ticket.CalledAt,
		ticket.ServingStartedAt,
		ticket.CompletedAt,
		ticket.NoShowAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET agent_id=$1, status=$2, position_in_queue=$3, note=$4,
            called_at=$5, serving_started_at=$6, completed_at=$7, no_show_at=$8, updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.db.Exec(ctx, query,
		ticket.AgentID,
		ticket.Status,
		ticket.PositionInQueue,
		ticket.Note,
		ticket.CalledAt,
		ticket.ServingStartedAt,
		ticket.CompletedAt,
		ticket.NoShowAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListPending(ctx context.Context, agentID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE agent_id=$1 AND status='pending'
        ORDER BY position_in_queue ASC`
	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByAgentSince(ctx context.Context, agentID string, since time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE agent_id=$1 AND created_at >= $2
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, agentID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListSince(ctx context.Context, since time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE created_at >= $1
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) SetPosition(ctx context.Context, ticketID string, position int) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE tickets SET position_in_queue=$1, updated_at=NOW() WHERE id=$2`,
		position, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) MaxPendingPosition(ctx context.Context, agentID string) (int, error) {
	var max int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(position_in_queue), 0) FROM tickets WHERE agent_id=$1 AND status='pending'`,
		agentID).Scan(&max)
	return max, err
}

func (r *ticketRepository) HasServing(ctx context.Context, agentID string, exceptTicketID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE agent_id=$1 AND status='serving' AND id <> $2)`,
		agentID, exceptTicketID).Scan(&exists)
	return exists, err
}

func (r *ticketRepository) MaxTokenSequence(ctx context.Context, code string, day time.Time) (int, error) {
	var max int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(split_part(token_number, '-', 2)::int), 0)
         FROM tickets WHERE token_date=$1 AND token_number LIKE $2 || '-%'`,
		day, code).Scan(&max)
	return max, err
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.TokenNumber,
		&ticket.TokenDate,
		&ticket.CategoryID,
		&ticket.AgentID,
		&ticket.Status,
		&ticket.PositionInQueue,
		&ticket.CustomerName,
		&ticket.CustomerPhone,
		&ticket.CustomerEmail,
		&ticket.Note,
		&ticket.FormPayload,
		&ticket.CreatedAt,
		&ticket.CalledAt,
		&ticket.ServingStartedAt,
		&ticket.CompletedAt,
		&ticket.NoShowAt,
		&ticket.UpdatedAt,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
