package identity_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"go.pilab.hu/recovery/cache"
	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/internal/audit"
	"go.pilab.hu/recovery/internal/auth"
	"go.pilab.hu/recovery/internal/federation"
	"go.pilab.hu/recovery/internal/identity"
	"go.pilab.hu/recovery/internal/memstore"
)

type stubExchanger struct {
	kind domain.ProviderKind
	info *federation.ExternalUserInfo
	err  error
}

func (s *stubExchanger) Kind() domain.ProviderKind { return s.kind }

func (s *stubExchanger) AuthCodeURL(state string, _ ...oauth2.AuthCodeOption) string {
	return "https://auth.example.com/" + string(s.kind) + "?state=" + state
}

func (s *stubExchanger) Exchange(_ context.Context, _ *domain.Credential) (*federation.ExternalUserInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.info
	return &out, nil
}

type recorder struct {
	mu   sync.Mutex
	seen []*domain.ProviderSession
}

func (r *recorder) listen(ps *domain.ProviderSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ps)
}

func (r *recorder) all() []*domain.ProviderSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ProviderSession(nil), r.seen...)
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	provider *identity.Provider
	google   *stubExchanger
	store    *cache.MemorySessionCache
	accounts *memstore.AccountRepository
}

func newFixture(t *testing.T, prompter identity.Prompter) *fixture {
	t.Helper()
	f := &fixture{
		google: &stubExchanger{kind: domain.ProviderGoogle, info: &federation.ExternalUserInfo{
			ProviderUserID: "g-123",
			Email:          "ada@example.com",
			FirstName:      "Ada",
			LastName:       "Lovelace",
			PictureURL:     "https://example.com/ada.png",
		}},
		store:    cache.NewMemorySessionCache(0),
		accounts: memstore.NewAccountRepository(),
	}
	t.Cleanup(func() { _ = f.store.Close() })
	f.provider = f.newProvider(prompter)
	return f
}

func (f *fixture) newProvider(prompter identity.Prompter) *identity.Provider {
	return identity.NewProvider(
		[]federation.Exchanger{f.google},
		prompter,
		f.accounts,
		auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		f.store,
		identity.Options{Now: func() time.Time { return fixedNow }},
	)
}

func TestRequestInteractiveCredential(t *testing.T) {
	var gotURL string
	f := newFixture(t, identity.PrompterFunc(func(_ context.Context, kind domain.ProviderKind, authURL string) (*domain.Credential, error) {
		gotURL = authURL
		return &domain.Credential{Code: "code-1"}, nil
	}))

	cred, err := f.provider.RequestInteractiveCredential(context.Background(), domain.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGoogle, cred.Kind)
	assert.Equal(t, "code-1", cred.Code)
	assert.Contains(t, gotURL, "https://auth.example.com/google?state=")
}

func TestRequestInteractiveCredential_Cancelled(t *testing.T) {
	f := newFixture(t, identity.PrompterFunc(func(context.Context, domain.ProviderKind, string) (*domain.Credential, error) {
		return nil, nil
	}))

	_, err := f.provider.RequestInteractiveCredential(context.Background(), domain.ProviderGoogle)
	assert.ErrorIs(t, err, domain.ErrCredentialCancelled)
}

func TestRequestInteractiveCredential_Unsupported(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.provider.RequestInteractiveCredential(context.Background(), domain.ProviderApple)
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}

func TestExchangeCredential_SignsInAndNotifies(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}
	unsubscribe := f.provider.Subscribe(rec.listen)
	defer unsubscribe()

	ps, err := f.provider.ExchangeCredential(context.Background(), &domain.Credential{Kind: domain.ProviderGoogle, Code: "c"})
	require.NoError(t, err)

	assert.NotEmpty(t, ps.UserID)
	assert.Equal(t, "ada@example.com", ps.Email)
	assert.Equal(t, "Ada Lovelace", ps.DisplayName)
	assert.Equal(t, "https://example.com/ada.png", ps.PhotoURL)
	assert.Equal(t, "google", ps.Provider)
	assert.Equal(t, fixedNow, ps.SignedInAt)

	seen := rec.all()
	require.Len(t, seen, 2)
	assert.Nil(t, seen[0], "initial delivery before sign-in")
	assert.Equal(t, ps.UserID, seen[1].UserID)

	_, err = f.store.Get(context.Background(), identity.DefaultSessionKey)
	assert.NoError(t, err)
}

func TestExchangeCredential_StableUserID(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.provider.ExchangeCredential(ctx, &domain.Credential{Kind: domain.ProviderGoogle, Code: "a"})
	require.NoError(t, err)
	second, err := f.provider.ExchangeCredential(ctx, &domain.Credential{Kind: domain.ProviderGoogle, Code: "b"})
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
}

func TestExchangeCredential_Failure(t *testing.T) {
	f := newFixture(t, nil)
	f.google.err = federation.ErrExchangeCodeFailed
	rec := &recorder{}
	f.provider.Subscribe(rec.listen)

	_, err := f.provider.ExchangeCredential(context.Background(), &domain.Credential{Kind: domain.ProviderGoogle, Code: "c"})
	assert.ErrorIs(t, err, federation.ErrExchangeCodeFailed)
	assert.Nil(t, f.provider.Current())
	assert.Len(t, rec.all(), 1)
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ps, err := f.provider.CreateAccount(ctx, "grace@example.com", "hunter22")
	require.NoError(t, err)
	assert.True(t, ps.Created)
	assert.Equal(t, string(domain.ProviderPassword), ps.Provider)
	assert.Equal(t, "grace@example.com", ps.Email)

	acc, err := f.accounts.GetAccountByID(ctx, ps.UserID)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", acc.PasswordHash)
	assert.Equal(t, ps.UserID, f.provider.Current().UserID)
}

func TestCreateAccount_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "Grace <grace@example.com>", "grace@"} {
		_, err := f.provider.CreateAccount(ctx, email, "hunter22")
		assert.ErrorIs(t, err, identity.ErrInvalidEmail, email)
	}
	assert.Nil(t, f.provider.Current())

	_, err := f.provider.CreateAccount(ctx, "grace@example.com", "123")
	assert.ErrorIs(t, err, domain.ErrWeakPassword)

	_, err = f.provider.CreateAccount(ctx, "grace@example.com", "hunter22")
	require.NoError(t, err)
	_, err = f.provider.CreateAccount(ctx, "Grace@Example.com", "hunter22")
	assert.ErrorIs(t, err, domain.ErrEmailAlreadyInUse)
}

func TestSignInWithPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.provider.CreateAccount(ctx, "grace@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, f.provider.RevokeSession(ctx))

	ps, err := f.provider.SignInWithPassword(ctx, "grace@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, ps.UserID)
	assert.False(t, ps.Created)

	_, err = f.provider.SignInWithPassword(ctx, "grace@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrPasswordMismatch)

	_, err = f.provider.SignInWithPassword(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRevokeSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.provider.ExchangeCredential(ctx, &domain.Credential{Kind: domain.ProviderGoogle, Code: "c"})
	require.NoError(t, err)

	rec := &recorder{}
	f.provider.Subscribe(rec.listen)
	require.NoError(t, f.provider.RevokeSession(ctx))

	assert.Nil(t, f.provider.Current())
	_, err = f.store.Get(ctx, identity.DefaultSessionKey)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	seen := rec.all()
	require.Len(t, seen, 2)
	assert.NotNil(t, seen[0])
	assert.Nil(t, seen[1])

	// Revoking again is a no-op without a notification.
	require.NoError(t, f.provider.RevokeSession(ctx))
	assert.Len(t, rec.all(), 2)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ps, err := f.provider.ExchangeCredential(ctx, &domain.Credential{Kind: domain.ProviderGoogle, Code: "c"})
	require.NoError(t, err)

	restarted := f.newProvider(nil)
	require.NoError(t, restarted.Restore(ctx))

	rec := &recorder{}
	restarted.Subscribe(rec.listen)
	seen := rec.all()
	require.Len(t, seen, 1)
	require.NotNil(t, seen[0])
	assert.Equal(t, ps.UserID, seen[0].UserID)
	assert.Equal(t, "Ada Lovelace", seen[0].DisplayName)
}

func TestRestore_EmptyAndCorrupt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.provider.Restore(ctx))
	assert.Nil(t, f.provider.Current())

	require.NoError(t, f.store.Set(ctx, identity.DefaultSessionKey, []byte("{broken")))
	require.NoError(t, f.provider.Restore(ctx))
	assert.Nil(t, f.provider.Current())
	_, err := f.store.Get(ctx, identity.DefaultSessionKey)
	assert.True(t, errors.Is(err, domain.ErrCacheMiss))
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t, nil)
	rec := &recorder{}
	unsubscribe := f.provider.Subscribe(rec.listen)
	unsubscribe()
	unsubscribe()

	_, err := f.provider.ExchangeCredential(context.Background(), &domain.Credential{Kind: domain.ProviderGoogle, Code: "c"})
	require.NoError(t, err)
	assert.Len(t, rec.all(), 1)
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t, nil)
	var buf bytes.Buffer
	p := identity.NewProvider(
		[]federation.Exchanger{f.google},
		nil,
		f.accounts,
		auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		f.store,
		identity.Options{Audit: audit.New(&buf)},
	)
	ctx := context.Background()

	_, err := p.CreateAccount(ctx, "grace@example.com", "hunter22")
	require.NoError(t, err)
	_, err = p.CreateAccount(ctx, "grace@example.com", "hunter22")
	require.Error(t, err)
	require.NoError(t, p.RevokeSession(ctx))

	var actions []string
	var failures int
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var ev audit.Event
		require.NoError(t, dec.Decode(&ev))
		actions = append(actions, ev.Action)
		if !ev.Success {
			failures++
		}
	}
	assert.Equal(t, []string{audit.ActionCreateAccount, audit.ActionCreateAccount, audit.ActionRevokeSession}, actions)
	assert.Equal(t, 1, failures)
}
