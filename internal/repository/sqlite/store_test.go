package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/lockout"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func newUser(t *testing.T, s *Store, email string) *model.User {
	t.Helper()
	u := &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         "Alice",
		Email:        email,
		PasswordHash: "$argon2id$stub",
		Role:         model.RoleUser,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func newLink(t *testing.T, s *Store, u *model.User, hash string, exp time.Time) *model.RecoveryLink {
	t.Helper()
	l := &model.RecoveryLink{
		ID:        uuid.Must(uuid.NewV4()),
		UserID:    u.ID,
		TokenHash: hash,
		Kind:      model.LinkPasswordRecovery,
		ExpiresAt: exp,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Links().Create(context.Background(), l))
	return l
}

func TestOpen_MemoryAndMigrations(t *testing.T) {
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int64
	require.NoError(t, db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name IN ('users','recovery_links')"))
	assert.Equal(t, int64(2), count)
}

func TestWithDefaults(t *testing.T) {
	dsn := withDefaults("./x.db", false)
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")

	dsn = withDefaults(":memory:?_txlock=deferred", true)
	assert.Contains(t, dsn, "_txlock=deferred")
	assert.NotContains(t, dsn, "_txlock=immediate")
	assert.NotContains(t, dsn, "journal_mode")
}

func TestUserRepo_CreateAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")

	got, err := s.Users().GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.RoleUser, got.Role)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)

	got, err = s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = s.Users().GetByEmail(ctx, "ALICE@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound, "emails match case-sensitively")

	dup := *u
	dup.ID = uuid.Must(uuid.NewV4())
	require.ErrorIs(t, s.Users().Create(ctx, &dup), errs.ErrAlreadyExists)
}

func TestUserRepo_GetRejectsUnknownRole(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "root@example.com")

	conn, err := s.db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `PRAGMA ignore_check_constraints = ON`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `UPDATE users SET role = 'root' WHERE id = ?`, u.ID)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `PRAGMA ignore_check_constraints = OFF`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = s.Users().GetByID(ctx, u.ID)
	require.ErrorContains(t, err, `unknown role "root"`)
	_, err = s.Users().GetByEmail(ctx, u.Email)
	require.ErrorContains(t, err, `unknown role "root"`)
}

func TestUserRepo_UpdateCredentials(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	fail := func(cur model.CredentialState) model.CredentialState {
		return lockout.NextOnFailure(cur.FailedAttempts, now)
	}
	for i := 1; i <= 3; i++ {
		_, after, err := s.Users().UpdateCredentials(ctx, u.ID, fail)
		require.NoError(t, err)
		require.Equal(t, i, after.FailedAttempts)
	}

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.FailedAttempts)
	require.NotNil(t, got.LockedUntil)
	require.True(t, now.Add(lockout.LockDuration).Equal(*got.LockedUntil))

	before, after, err := s.Users().UpdateCredentials(ctx, u.ID, func(model.CredentialState) model.CredentialState {
		return lockout.NextOnExpiredLock()
	})
	require.NoError(t, err)
	require.Equal(t, 3, before.FailedAttempts)
	require.Zero(t, after.FailedAttempts)

	got, err = s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedAttempts)
	require.Nil(t, got.LockedUntil)

	_, _, err = s.Users().UpdateCredentials(ctx, uuid.Must(uuid.NewV4()), fail)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_UpdateCredentials_ConcurrentNoLostIncrements(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Users().UpdateCredentials(ctx, u.ID, func(cur model.CredentialState) model.CredentialState {
				return model.CredentialState{FailedAttempts: cur.FailedAttempts + 1}
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, n, got.FailedAttempts)
}

func TestUserRepo_UpdatePasswordClearsLock(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")
	now := time.Now()

	_, _, err := s.Users().UpdateCredentials(ctx, u.ID, func(model.CredentialState) model.CredentialState {
		return lockout.NextOnFailure(2, now)
	})
	require.NoError(t, err)

	require.NoError(t, s.Users().UpdatePassword(ctx, u.ID, "new-hash"))
	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)

	require.ErrorIs(t, s.Users().UpdatePassword(ctx, uuid.Must(uuid.NewV4()), "x"), errs.ErrNotFound)
}

func TestUserRepo_MarkEmailVerified(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")
	first := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.Users().MarkEmailVerified(ctx, u.ID, first))
	require.NoError(t, s.Users().MarkEmailVerified(ctx, u.ID, first.Add(time.Hour)))

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EmailVerifiedAt)
	assert.True(t, first.Equal(*got.EmailVerifiedAt))
}

func TestLinkRepo_MarkUsed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	newLink(t, s, u, "live", now.Add(time.Hour))
	newLink(t, s, u, "stale", now.Add(-time.Second))

	l, err := s.Links().MarkUsed(ctx, "live", model.LinkPasswordRecovery, now)
	require.NoError(t, err)
	assert.True(t, l.Used)
	assert.Equal(t, u.ID, l.UserID)

	_, err = s.Links().MarkUsed(ctx, "live", model.LinkPasswordRecovery, now)
	require.ErrorIs(t, err, errs.ErrAlreadyUsed)

	_, err = s.Links().MarkUsed(ctx, "stale", model.LinkPasswordRecovery, now)
	require.ErrorIs(t, err, errs.ErrLinkExpired)

	_, err = s.Links().MarkUsed(ctx, "nope", model.LinkPasswordRecovery, now)
	require.ErrorIs(t, err, errs.ErrLinkNotFound)

	newLink(t, s, u, "other-kind", now.Add(time.Hour))
	_, err = s.Links().MarkUsed(ctx, "other-kind", model.LinkEmailVerification, now)
	require.ErrorIs(t, err, errs.ErrLinkNotFound)

	got, err := s.Links().GetByTokenHash(ctx, "live")
	require.NoError(t, err)
	assert.True(t, got.Used)
	require.NotNil(t, got.UsedAt)
}

func TestLinkRepo_MarkUsed_ConcurrentExactlyOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")
	newLink(t, s, u, "race", time.Now().Add(time.Hour))

	var ok, used atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Links().MarkUsed(ctx, "race", model.LinkPasswordRecovery, time.Now())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, errs.ErrAlreadyUsed):
				used.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), ok.Load())
	require.Equal(t, int32(9), used.Load())
}

func TestStore_InTxRollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := newUser(t, s, "alice@example.com")
	newLink(t, s, u, "tx", time.Now().Add(time.Hour))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Links().MarkUsed(ctx, "tx", model.LinkPasswordRecovery, time.Now()); err != nil {
			return err
		}
		if err := tx.Users().UpdatePassword(ctx, u.ID, "changed"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	l, err := s.Links().GetByTokenHash(ctx, "tx")
	require.NoError(t, err)
	assert.False(t, l.Used, "rolled back redemption leaves the link usable")
	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$argon2id$stub", got.PasswordHash)

	require.NoError(t, s.Ping(ctx))
}
