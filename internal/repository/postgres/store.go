package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/chatwire/internal/repository"
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx, so each store
// runs unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements repository.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Users() repository.UserRepository                 { return &UserStore{q: s.q} }
func (s *Store) Blocks() repository.BlockRepository               { return &BlockStore{q: s.q} }
func (s *Store) Devices() repository.DeviceRepository             { return &DeviceStore{q: s.q} }
func (s *Store) Chats() repository.ChatRepository                 { return &ChatStore{q: s.q} }
func (s *Store) Memberships() repository.MembershipRepository     { return &MembershipStore{q: s.q} }
func (s *Store) Messages() repository.MessageRepository           { return &MessageStore{q: s.q} }
func (s *Store) Statuses() repository.StatusRepository            { return &StatusStore{q: s.q} }
func (s *Store) Notifications() repository.NotificationRepository { return &NotificationStore{q: s.q} }
func (s *Store) Calls() repository.CallRepository                 { return &CallStore{q: s.q} }

// WithTx runs fn in a transaction. Nested calls reuse the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, inTx: true})
	})
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}

// uniqueViolation is the Postgres SQLSTATE for a unique key collision.
const uniqueViolation = "23505"

// wrapInsert maps unique violations to repository.ErrDuplicate.
func wrapInsert(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("insert %s: %w", what, repository.ErrDuplicate)
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

// nullUUID maps uuid.Nil to SQL NULL for optional references.
func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

var _ repository.Store = (*Store)(nil)
