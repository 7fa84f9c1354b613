package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	repo "github.com/lolmarket/topup-backend/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ pool *pgxpool.Pool }

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func NewRepositories(q querier) repo.Repositories {
	return repo.Repositories{
		Users:         &usersRepo{q},
		TopUps:        &topUpsRepo{q},
		Histories:     &historiesRepo{q},
		Notifications: &notificationsRepo{q},
		AuditLogs:     &auditLogsRepo{q},
	}
}

func (s *Store) Repos() repo.Repositories { return NewRepositories(s.pool) }

// WithTx runs fn inside one read-committed transaction. Money-moving
// statements must be conditional or relative UPDATEs.
func (s *Store) WithTx(ctx context.Context, fn func(repo.Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
