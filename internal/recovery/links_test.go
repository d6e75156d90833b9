package recovery

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/plaze/internal/crypto"
	"github.com/and161185/plaze/internal/errs"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/repository"
	"github.com/and161185/plaze/internal/repository/sqlite"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Manager, *sqlite.Store, *model.User, *clock) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := sqlite.NewStore(db)

	clk := &clock{t: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)}
	u := &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "old",
		Role:         model.RoleUser,
		CreatedAt:    clk.Now(),
	}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return NewManager(store, "https://plaze.example/", 0, clk.Now), store, u, clk
}

func TestCreateLink_URLAndStorage(t *testing.T) {
	m, store, u, clk := setup(t)
	ctx := context.Background()

	tok, link, err := m.CreateLink(ctx, u, model.LinkPasswordRecovery, 0)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "/reset-password", parsed.Path)
	require.Equal(t, tok, parsed.Query().Get("token"))

	stored, err := store.Links().GetByTokenHash(ctx, crypto.TokenDigest(tok))
	require.NoError(t, err)
	require.Equal(t, u.ID, stored.UserID)
	require.False(t, stored.Used)
	require.True(t, clk.Now().Add(time.Hour).Equal(stored.ExpiresAt))

	_, err = store.Links().GetByTokenHash(ctx, tok)
	require.ErrorIs(t, err, errs.ErrNotFound, "raw token is never stored")

	_, link, err = m.CreateLink(ctx, u, model.LinkEmailVerification, time.Minute)
	require.NoError(t, err)
	require.Contains(t, link, "https://plaze.example/verify-email?token=")
}

func TestRedeem_SingleUse(t *testing.T) {
	m, store, u, _ := setup(t)
	ctx := context.Background()

	tok, _, err := m.CreateLink(ctx, u, model.LinkPasswordRecovery, 0)
	require.NoError(t, err)

	owner, err := m.Redeem(ctx, tok, model.LinkPasswordRecovery, func(ctx context.Context, tx repository.Store, u *model.User) error {
		return tx.Users().UpdatePassword(ctx, u.ID, "new")
	})
	require.NoError(t, err)
	require.Equal(t, u.ID, owner.ID)

	got, err := store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new", got.PasswordHash)

	_, err = m.Redeem(ctx, tok, model.LinkPasswordRecovery, nil)
	require.ErrorIs(t, err, errs.ErrAlreadyUsed)
}

func TestRedeem_Expired(t *testing.T) {
	m, _, u, clk := setup(t)
	ctx := context.Background()

	tok, _, err := m.CreateLink(ctx, u, model.LinkPasswordRecovery, 0)
	require.NoError(t, err)

	clk.Advance(time.Hour + time.Second)
	_, err = m.Redeem(ctx, tok, model.LinkPasswordRecovery, nil)
	require.ErrorIs(t, err, errs.ErrLinkExpired)
}

func TestRedeem_UnknownAndWrongKind(t *testing.T) {
	m, _, u, _ := setup(t)
	ctx := context.Background()

	_, err := m.Redeem(ctx, "", model.LinkPasswordRecovery, nil)
	require.ErrorIs(t, err, errs.ErrLinkNotFound)
	_, err = m.Redeem(ctx, "nope", model.LinkPasswordRecovery, nil)
	require.ErrorIs(t, err, errs.ErrLinkNotFound)

	tok, _, err := m.CreateLink(ctx, u, model.LinkEmailVerification, 0)
	require.NoError(t, err)
	_, err = m.Redeem(ctx, tok, model.LinkPasswordRecovery, nil)
	require.ErrorIs(t, err, errs.ErrLinkNotFound)

	_, err = m.Redeem(ctx, tok, model.LinkEmailVerification, nil)
	require.NoError(t, err)
}

func TestRedeem_ApplyFailureKeepsLinkUsable(t *testing.T) {
	m, _, u, _ := setup(t)
	ctx := context.Background()

	tok, _, err := m.CreateLink(ctx, u, model.LinkPasswordRecovery, 0)
	require.NoError(t, err)

	_, err = m.Redeem(ctx, tok, model.LinkPasswordRecovery, func(context.Context, repository.Store, *model.User) error {
		return errors.New("disk full")
	})
	require.ErrorIs(t, err, errs.ErrStoreUnavailable)

	_, err = m.Redeem(ctx, tok, model.LinkPasswordRecovery, nil)
	require.NoError(t, err)
}

func TestRedeem_ConcurrentExactlyOnce(t *testing.T) {
	m, _, u, _ := setup(t)
	ctx := context.Background()

	tok, _, err := m.CreateLink(ctx, u, model.LinkPasswordRecovery, 0)
	require.NoError(t, err)

	results := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Redeem(ctx, tok, model.LinkPasswordRecovery, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, used int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrAlreadyUsed):
			used++
		default:
			t.Fatalf("unexpected: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 7, used)
}
