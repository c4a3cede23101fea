package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the querying surface shared by *pgxpool.Pool and pgx.Tx, so the
// same repository code runs inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Datastore bundles the repositories with the transaction boundary the
// dispatch engine needs. Everything touching one agent's queue must run
// inside WithinAgentTx so positions and the serving slot stay consistent.
type Datastore interface {
	Tickets() TicketRepository
	Categories() CategoryRepository
	Assignments() AssignmentRepository
	Users() UserRepository

	// WithinTx runs fn inside a single transaction. Nested calls reuse the
	// ambient transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, ds Datastore) error) error

	// WithinAgentTx additionally serializes on the agent rows (row locks,
	// taken in sorted order so concurrent transfers cannot deadlock).
	WithinAgentTx(ctx context.Context, agentIDs []string, fn func(ctx context.Context, ds Datastore) error) error
}

type pgDatastore struct {
	db   DBTX
	pool *pgxpool.Pool // nil once inside a transaction
}

// NewDatastore returns a Postgres-backed Datastore.
func NewDatastore(pool *pgxpool.Pool) Datastore {
	return &pgDatastore{db: pool, pool: pool}
}

func (d *pgDatastore) Tickets() TicketRepository         { return NewTicketRepository(d.db) }
func (d *pgDatastore) Categories() CategoryRepository    { return NewCategoryRepository(d.db) }
func (d *pgDatastore) Assignments() AssignmentRepository { return NewAssignmentRepository(d.db) }
func (d *pgDatastore) Users() UserRepository             { return NewUserRepository(d.db) }

func (d *pgDatastore) WithinTx(ctx context.Context, fn func(ctx context.Context, ds Datastore) error) error {
	if d.pool == nil {
		return fn(ctx, d)
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	scoped := &pgDatastore{db: tx}
	if err := fn(ctx, scoped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (d *pgDatastore) WithinAgentTx(ctx context.Context, agentIDs []string, fn func(ctx context.Context, ds Datastore) error) error {
	ids := append([]string(nil), agentIDs...)
	sort.Strings(ids)
	return d.WithinTx(ctx, func(ctx context.Context, ds Datastore) error {
		for _, id := range ids {
			if err := ds.Users().LockForUpdate(ctx, id); err != nil {
				return err
			}
		}
		return fn(ctx, ds)
	})
}

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
