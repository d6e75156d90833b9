package service

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
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	pkgcrypto "github.com/and161185/plaze/internal/crypto"
	"github.com/and161185/plaze/internal/model"
	"github.com/and161185/plaze/internal/notify"
	"github.com/and161185/plaze/internal/recovery"
	"github.com/and161185/plaze/internal/repository"
	"github.com/and161185/plaze/internal/repository/sqlite"
	"github.com/and161185/plaze/internal/revocation"
	"github.com/and161185/plaze/internal/token"
)

const alicePassword = "Str0ng!Pass"

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

// syncJobs runs dispatched jobs inline so tests can observe their effects.
type syncJobs struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (j *syncJobs) Dispatch(name string, fn notify.Job) bool {
	err := fn(context.Background())
	j.mu.Lock()
	j.names = append(j.names, name)
	j.errs = append(j.errs, err)
	j.mu.Unlock()
	return true
}

type sentMail struct {
	kind, to, name, url string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

var _ notify.Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) record(kind, to, name, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, to: to, name: name, url: link})
	return n.err
}

func (n *fakeNotifier) SendLockNotice(_ context.Context, to, name, link string) error {
	return n.record("lock", to, name, link)
}

func (n *fakeNotifier) SendRecoveryEmail(_ context.Context, to, name, link string) error {
	return n.record("recovery", to, name, link)
}

func (n *fakeNotifier) SendVerificationEmail(_ context.Context, to, name, link string) error {
	return n.record("verify", to, name, link)
}

func (n *fakeNotifier) byKind(kind string) []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMail
	for _, m := range n.sent {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// failingStore breaks UpdateCredentials while delegating everything else.
type failingStore struct {
	repository.Store
	err error
}

func (f *failingStore) Users() repository.UserRepository {
	return &failingUsers{UserRepository: f.Store.Users(), err: f.err}
}

type failingUsers struct {
	repository.UserRepository
	err error
}

func (f *failingUsers) UpdateCredentials(context.Context, uuid.UUID, repository.CredentialsFunc) (model.CredentialState, model.CredentialState, error) {
	return model.CredentialState{}, model.CredentialState{}, f.err
}

type env struct {
	auth    *AuthServiceImpl
	account *AccountServiceImpl
	store   *sqlite.Store
	codec   *token.Codec
	hasher  *pkgcrypto.Hasher
	clk     *clock
	mail    *fakeNotifier
	jobs    *syncJobs
	logs    *observer.ObservedLogs
	revoked *revocation.Registry
}

var testParams = pkgcrypto.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func newEnv(t *testing.T, mutate ...func(*Deps)) *env {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := sqlite.NewStore(db)

	clk := &clock{t: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(token.Config{Secret: []byte("test-secret"), TTL: 30 * time.Minute, Now: clk.Now})
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	e := &env{
		store:   store,
		codec:   codec,
		hasher:  pkgcrypto.NewHasher(testParams),
		clk:     clk,
		mail:    &fakeNotifier{},
		jobs:    &syncJobs{},
		logs:    logs,
		revoked: revocation.NewWithClock(clk.Now),
	}
	d := Deps{
		Store:    store,
		Hasher:   e.hasher,
		Codec:    codec,
		Revoked:  e.revoked,
		Links:    recovery.NewManager(store, "https://plaze.example", time.Hour, clk.Now),
		Notifier: e.mail,
		Jobs:     e.jobs,
		Log:      zap.New(core),
		Now:      clk.Now,
	}
	for _, m := range mutate {
		m(&d)
	}
	e.auth = NewAuthService(d)
	e.account = NewAccountService(d)
	return e
}

func (e *env) seedUser(t *testing.T, email, password string) *model.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	u := &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         "Alice",
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    e.clk.Now(),
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *env) reload(t *testing.T, id uuid.UUID) *model.User {
	t.Helper()
	u, err := e.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func tokenFromURL(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

var errBoom = errors.New("boom")
