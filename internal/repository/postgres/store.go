package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/plaze/internal/repository"
)

// Store implements repository.Store on PostgreSQL.
type Store struct {
	db *DB
	q  querier
}

var _ repository.Store = (*Store)(nil)

// NewStore returns a store bound to the pool.
func NewStore(db *DB) *Store { return &Store{db: db, q: db.Pool} }

// Users returns the user repository bound to this store's connection or transaction.
func (s *Store) Users() repository.UserRepository { return &UserRepo{q: s.q} }

// Links returns the link repository bound to this store's connection or transaction.
func (s *Store) Links() repository.LinkRepository { return &LinkRepo{q: s.q} }

// InTx runs fn against a store bound to one transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return inTx(ctx, s.q, func(tx pgx.Tx) error {
		return fn(&Store{db: s.db, q: tx})
	})
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error { return s.db.Pool.Ping(ctx) }
