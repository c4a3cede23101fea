package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

// AssignmentRepository manages the agent-category join links.
type AssignmentRepository interface {
	Create(ctx context.Context, link *domain.AgentCategory) error
	SetActive(ctx context.Context, id string, active bool) error
	Get(ctx context.Context, agentID, categoryID string) (*domain.AgentCategory, error)
	// ListActiveByCategory returns active links ordered by assignment time then
	// agent id, the order the default routing policy relies on.
	ListActiveByCategory(ctx context.Context, categoryID string) ([]domain.AgentCategory, error)
	ListByAgent(ctx context.Context, agentID string) ([]domain.AgentCategory, error)
}

type assignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository builds the repository.
func NewAssignmentRepository(db DBTX) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) Create(ctx context.Context, link *domain.AgentCategory) error {
	const query = `
        INSERT INTO agent_categories (agent_id, category_id, is_active)
        VALUES ($1,$2,$3)
        RETURNING id, assigned_at`
	return r.db.QueryRow(ctx, query,
		link.AgentID,
		link.CategoryID,
		link.IsActive,
	).Scan(&link.ID, &link.AssignedAt)
}

func (r *assignmentRepository) SetActive(ctx context.Context, id string, active bool) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE agent_categories SET is_active=$1, assigned_at=CASE WHEN $1 THEN NOW() ELSE assigned_at END WHERE id=$2`,
		active, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *assignmentRepository) Get(ctx context.Context, agentID, categoryID string) (*domain.AgentCategory, error) {
	const query = `
        SELECT id, agent_id, category_id, is_active, assigned_at
        FROM agent_categories WHERE agent_id=$1 AND category_id=$2`
	var link domain.AgentCategory
	if err := r.db.QueryRow(ctx, query, agentID, categoryID).Scan(
		&link.ID,
		&link.AgentID,
		&link.CategoryID,
		&link.IsActive,
		&link.AssignedAt,
	); err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *assignmentRepository) ListActiveByCategory(ctx context.Context, categoryID string) ([]domain.AgentCategory, error) {
	const query = `
        SELECT id, agent_id, category_id, is_active, assigned_at
        FROM agent_categories WHERE category_id=$1 AND is_active = TRUE
        ORDER BY assigned_at ASC, agent_id ASC`
	rows, err := r.db.Query(ctx, query, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (r *assignmentRepository) ListByAgent(ctx context.Context, agentID string) ([]domain.AgentCategory, error) {
	const query = `
        SELECT id, agent_id, category_id, is_active, assigned_at
        FROM agent_categories WHERE agent_id=$1
        ORDER BY assigned_at ASC`
	rows, err := r.db.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func scanAssignments(rows pgx.Rows) ([]domain.AgentCategory, error) {
	var result []domain.AgentCategory
	for rows.Next() {
		var link domain.AgentCategory
		if err := rows.Scan(&link.ID, &link.AgentID, &link.CategoryID, &link.IsActive, &link.AssignedAt); err != nil {
			return nil, err
		}
		result = append(result, link)
	}
	return result, rows.Err()
}
