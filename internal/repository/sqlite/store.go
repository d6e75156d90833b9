package sqlite

import (
	"context"
	"database/sql"

	"github.com/vinovest/sqlx"

	"github.com/and161185/plaze/internal/repository"
)

// execer is the subset shared by *sqlx.DB and *sqlx.Tx.
type execer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements repository.Store on SQLite.
type Store struct {
	db *sqlx.DB
	tx *sqlx.Tx // nil outside InTx
}

var _ repository.Store = (*Store)(nil)

// NewStore returns a store over db.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

func (s *Store) q() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Users returns the user repository bound to this store.
func (s *Store) Users() repository.UserRepository { return &UserRepo{s: s} }

// Links returns the link repository bound to this store.
func (s *Store) Links() repository.LinkRepository { return &LinkRepo{s: s} }

// InTx runs fn in one transaction. Nested calls reuse the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.withTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) withTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Store{db: s.db, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
