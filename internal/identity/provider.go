// Package identity implements domain.IdentityProvider on top of the social
// exchangers and the email account repository.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/internal/audit"
	"go.pilab.hu/recovery/internal/auth"
	"go.pilab.hu/recovery/internal/federation"
	"go.pilab.hu/recovery/log"
)

const (
	// DefaultSessionKey is the cache key of the persisted provider session.
	DefaultSessionKey = "provider_session"
	// DefaultMinPasswordLength is the shortest password CreateAccount accepts.
	DefaultMinPasswordLength = 6
)

// socialNamespace derives stable user ids from provider subjects.
var socialNamespace = uuid.MustParse("6f1c1a57-3c3e-4b8e-9a51-0e3f7f2d6c11")

// ErrInvalidEmail is returned by CreateAccount for addresses that fail the
// same "email" rule sign-up requests are validated with.
var ErrInvalidEmail = errors.New("invalid email address")

type Options struct {
	SessionKey        string
	MinPasswordLength int
	Logger            log.Logger
	Audit             *audit.Logger // Optional
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SessionKey == "" {
		o.SessionKey = DefaultSessionKey
	}
	if o.MinPasswordLength <= 0 {
		o.MinPasswordLength = DefaultMinPasswordLength
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Provider is the device-side identity provider. It keeps one signed-in
// provider session, persists it in a SessionCache and tells subscribers
// whenever it changes.
type Provider struct {
	exchangers map[domain.ProviderKind]federation.Exchanger
	prompter   Prompter
	accounts   domain.AccountRepository
	hasher     auth.PasswordHasher
	store      domain.SessionCache
	opts       Options
	validate   *validator.Validate

	mu      sync.RWMutex
	current *domain.ProviderSession

	// notifyMu keeps listener deliveries in order.
	notifyMu  sync.Mutex
	listeners map[int]domain.AuthStateListener
	nextID    int
}

func NewProvider(
	exchangers []federation.Exchanger,
	prompter Prompter,
	accounts domain.AccountRepository,
	hasher auth.PasswordHasher,
	store domain.SessionCache,
	opts Options,
) *Provider {
	byKind := make(map[domain.ProviderKind]federation.Exchanger, len(exchangers))
	for _, ex := range exchangers {
		byKind[ex.Kind()] = ex
	}
	return &Provider{
		exchangers: byKind,
		prompter:   prompter,
		accounts:   accounts,
		hasher:     hasher,
		store:      store,
		opts:       opts.withDefaults(),
		validate:   validator.New(),
		listeners:  make(map[int]domain.AuthStateListener),
	}
}

// Restore loads the persisted provider session. Call it before subscribers
// register so the first notification carries the restored state.
func (p *Provider) Restore(ctx context.Context) error {
	raw, err := p.store.Get(ctx, p.opts.SessionKey)
	if errors.Is(err, domain.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load provider session: %w", err)
	}

	var ps domain.ProviderSession
	if err := json.Unmarshal(raw, &ps); err != nil {
		p.opts.Logger.Warn(ctx, "Discarding unreadable provider session", log.Fields{"error": err.Error()})
		_ = p.store.Delete(ctx, p.opts.SessionKey)
		return nil
	}
	if ps.UserID == "" {
		return nil
	}

	p.mu.Lock()
	p.current = &ps
	p.mu.Unlock()
	return nil
}

// Current returns a copy of the signed-in provider session, or nil.
func (p *Provider) Current() *domain.ProviderSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	out := *p.current
	return &out
}

func (p *Provider) RequestInteractiveCredential(ctx context.Context, kind domain.ProviderKind) (*domain.Credential, error) {
	ex, ok := p.exchangers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, kind)
	}
	if p.prompter == nil {
		return nil, fmt.Errorf("no interactive prompter configured for %s", kind)
	}

	cred, err := p.prompter.Prompt(ctx, kind, ex.AuthCodeURL(uuid.NewString()))
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, domain.ErrCredentialCancelled
	}
	cred.Kind = kind
	return cred, nil
}

// ExchangeCredential verifies cred with its provider and makes the result the
// signed-in provider session.
func (p *Provider) ExchangeCredential(ctx context.Context, cred *domain.Credential) (*domain.ProviderSession, error) {
	if cred == nil {
		return nil, federation.ErrMissingCredential
	}
	ex, ok := p.exchangers[cred.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, cred.Kind)
	}

	info, err := ex.Exchange(ctx, cred)
	if err != nil {
		p.opts.Audit.Log(ctx, audit.ActionSignIn, "", string(cred.Kind), err)
		return nil, err
	}

	ps := &domain.ProviderSession{
		UserID:      socialUserID(cred.Kind, info.ProviderUserID),
		Email:       info.Email,
		DisplayName: info.DisplayName(),
		PhotoURL:    info.PictureURL,
		Provider:    string(cred.Kind),
		SignedInAt:  p.opts.Now(),
	}
	err = p.signIn(ctx, ps)
	p.opts.Audit.Log(ctx, audit.ActionSignIn, ps.UserID, ps.Provider, err)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// CreateAccount registers an email account and signs it in.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (*domain.ProviderSession, error) {
	email = strings.TrimSpace(email)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if len(password) < p.opts.MinPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	hash, err := p.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrWeakPassword, err)
	}

	now := p.opts.Now()
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		p.opts.Audit.Log(ctx, audit.ActionCreateAccount, email, string(domain.ProviderPassword), err)
		return nil, err
	}

	ps := &domain.ProviderSession{
		UserID:     account.ID,
		Email:      account.Email,
		Provider:   string(domain.ProviderPassword),
		SignedInAt: now,
		Created:    true,
	}
	err = p.signIn(ctx, ps)
	p.opts.Audit.Log(ctx, audit.ActionCreateAccount, ps.UserID, ps.Provider, err)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// SignInWithPassword signs in an existing email account.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domain.ProviderSession, error) {
	account, err := p.accounts.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if err := p.hasher.Verify(account.PasswordHash, password); err != nil {
		p.opts.Audit.Log(ctx, audit.ActionSignIn, account.ID, string(domain.ProviderPassword), err)
		return nil, err
	}

	ps := &domain.ProviderSession{
		UserID:     account.ID,
		Email:      account.Email,
		Provider:   string(domain.ProviderPassword),
		SignedInAt: p.opts.Now(),
	}
	err = p.signIn(ctx, ps)
	p.opts.Audit.Log(ctx, audit.ActionSignIn, ps.UserID, ps.Provider, err)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// RevokeSession signs the provider out. Revoking without an active session
// only clears the persisted copy.
func (p *Provider) RevokeSession(ctx context.Context) error {
	p.mu.Lock()
	active := p.current != nil
	if err := p.store.Delete(ctx, p.opts.SessionKey); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to clear provider session: %w", err)
	}
	var userID string
	if active {
		userID = p.current.UserID
	}
	p.current = nil
	p.mu.Unlock()

	if !active {
		return nil
	}
	p.opts.Audit.Log(ctx, audit.ActionRevokeSession, userID, "", nil)
	p.opts.Logger.Info(ctx, "Provider session revoked", log.Fields{"user_id": userID})
	p.notify(nil)
	return nil
}

// Subscribe registers listener and immediately delivers the current state to it.
func (p *Provider) Subscribe(listener domain.AuthStateListener) func() {
	p.notifyMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	listener(p.Current())
	p.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.notifyMu.Lock()
			delete(p.listeners, id)
			p.notifyMu.Unlock()
		})
	}
}

func (p *Provider) signIn(ctx context.Context, ps *domain.ProviderSession) error {
	raw, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("failed to encode provider session: %w", err)
	}

	p.mu.Lock()
	if err := p.store.Set(ctx, p.opts.SessionKey, raw); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to persist provider session: %w", err)
	}
	stored := *ps
	p.current = &stored
	p.mu.Unlock()

	p.opts.Logger.Info(ctx, "Provider session established", log.Fields{
		"user_id":  ps.UserID,
		"provider": ps.Provider,
	})
	p.notify(ps)
	return nil
}

func (p *Provider) notify(ps *domain.ProviderSession) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	for _, l := range p.listeners {
		if ps == nil {
			l(nil)
			continue
		}
		out := *ps
		l(&out)
	}
}

func socialUserID(kind domain.ProviderKind, subject string) string {
	return uuid.NewSHA1(socialNamespace, []byte(string(kind)+":"+subject)).String()
}

var _ domain.IdentityProvider = (*Provider)(nil)
