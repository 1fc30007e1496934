// Package session owns the signed-in state of the app: it drives the identity
// provider and the profile store, mirrors the result into the local cache and
// publishes it to observers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/internal/metrics"
	"go.pilab.hu/recovery/log"
)

const tracerName = "go.pilab.hu/recovery/session"

// State is what observers see: the current session (nil when signed out) and
// whether the initial restoration is still running.
type State struct {
	Session *domain.Session
	Loading bool
}

// SignUpRequest carries the fields of an email sign-up. The password policy is
// enforced by the identity provider.
type SignUpRequest struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"required"`
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Birthdate string `validate:"required,datetime=2006-01-02"`
}

// Manager is the single writer of the current session and its cache mirror.
//
// Every action and every ambient notification runs under actionMu, so
// overlapping calls are applied one after the other in arrival order.
type Manager struct {
	idp      domain.IdentityProvider
	profiles domain.ProfileStore
	cache    domain.SessionCache
	nav      domain.Navigator

	opts     Options
	logger   log.Logger
	metrics  *metrics.SessionMetrics
	validate *validator.Validate
	tracer   trace.Tracer

	actionMu sync.Mutex

	stateMu     sync.RWMutex
	current     *domain.Session
	loading     bool
	ready       chan struct{}
	watchers    map[int]chan State
	nextWatcher int

	// Only the newest provider notification matters; it is taken and applied
	// under actionMu.
	queueMu sync.Mutex
	pending bool
	latest  *domain.ProviderSession
	seq     uint64
	wake    chan struct{}

	lifeMu      sync.Mutex
	started     bool
	closed      bool
	unsubscribe func()
	baseCtx     context.Context
	cancel      context.CancelFunc
	loopDone    chan struct{}
}

// pendingNotification is the notification slot as seen at one point in time.
type pendingNotification struct {
	pending bool
	latest  *domain.ProviderSession
	seq     uint64
}

// NewManager creates a Manager. It does nothing until Start is called.
func NewManager(
	idp domain.IdentityProvider,
	profiles domain.ProfileStore,
	cache domain.SessionCache,
	nav domain.Navigator,
	opts Options,
) *Manager {
	opts = opts.withDefaults()
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		idp:      idp,
		profiles: profiles,
		cache:    cache,
		nav:      nav,
		opts:     opts,
		logger:   opts.Logger.With(log.Fields{"component": "session"}),
		metrics:  opts.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   otel.Tracer(tracerName),
		loading:  true,
		ready:    make(chan struct{}),
		watchers: make(map[int]chan State),
		wake:     make(chan struct{}, 1),
		baseCtx:  baseCtx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
}

// Start seeds the session from the cache mirror (when enabled) and subscribes
// to the identity provider. Calling it more than once has no further effect;
// calling it after Close returns ErrManagerClosed.
func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.started {
		return nil
	}
	if m.opts.SeedFromCache {
		m.seedFromCache(ctx)
	}
	m.started = true
	go m.run()
	m.unsubscribe = m.idp.Subscribe(m.enqueue)
	m.logger.Debug(ctx, "subscribed to identity provider")
	return nil
}

// Close unsubscribes from the provider, stops the notification loop and
// closes every Watch channel.
func (m *Manager) Close() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.cancel()
	if m.started {
		<-m.loopDone
	}

	m.stateMu.Lock()
	for id, ch := range m.watchers {
		close(ch)
		delete(m.watchers, id)
	}
	m.stateMu.Unlock()
	return nil
}

// Current returns a copy of the published session, or nil when signed out.
func (m *Manager) Current() *domain.Session {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.current.Clone()
}

// Loading reports whether the initial restoration check is still running.
func (m *Manager) Loading() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.loading
}

// State returns the current session and loading flag together.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return State{Session: m.current.Clone(), Loading: m.loading}
}

// WaitReady blocks until the first provider notification has been applied.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch returns a channel carrying the latest State. The current state is
// delivered immediately; a slow reader only ever sees the newest value.
// The channel is closed when ctx ends or the manager is closed.
func (m *Manager) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	m.stateMu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- State{Session: m.current.Clone(), Loading: m.loading}
	if m.baseCtx.Err() != nil {
		delete(m.watchers, id)
		close(ch)
		m.stateMu.Unlock()
		return ch
	}
	m.stateMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.baseCtx.Done():
			return
		}
		m.stateMu.Lock()
		if _, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(ch)
		}
		m.stateMu.Unlock()
	}()

	return ch
}

// SignInWithProvider runs the interactive social sign-in for kind. A prompt the
// user dismisses is not an error: nothing changes and nil is returned.
func (m *Manager) SignInWithProvider(ctx context.Context, kind domain.ProviderKind) (err error) {
	ctx, span := m.tracer.Start(ctx, "session.SignInWithProvider",
		trace.WithAttributes(attribute.String("provider", string(kind))))
	defer func() { endSpan(span, err) }()

	if !kind.Valid() {
		m.metrics.SignIn(string(kind), metrics.OutcomeFailure)
		return &SignInError{Provider: kind, Err: domain.ErrUnsupportedProvider}
	}

	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	fields := log.Fields{"provider": string(kind)}
	startedAt := m.opts.Now()
	before := m.snapshotPending()

	cred, err := m.idp.RequestInteractiveCredential(ctx, kind)
	if errors.Is(err, domain.ErrCredentialCancelled) {
		m.logger.Debug(ctx, "sign-in prompt cancelled by user", fields)
		m.metrics.SignIn(string(kind), metrics.OutcomeCancelled)
		return nil
	}
	if err != nil {
		return m.signInFailed(ctx, kind, err, "interactive credential request failed")
	}

	ps, err := m.idp.ExchangeCredential(ctx, cred)
	if err != nil {
		return m.signInFailed(ctx, kind, err, "credential exchange failed")
	}

	loginAt := m.opts.Now()
	if loginAt.Before(startedAt) {
		loginAt = startedAt
	}

	write := map[string]any{
		"provider":  string(kind),
		"lastLogin": loginAt,
	}
	// Empty provider attributes must not clobber what the profile already has.
	putIfSet(write, "email", ps.Email)
	putIfSet(write, "displayName", ps.DisplayName)
	putIfSet(write, "photoURL", ps.PhotoURL)

	if err := m.profiles.Upsert(ctx, m.opts.ProfileCollection, ps.UserID, write, true); err != nil {
		m.rollback(ctx, ps.UserID, before)
		return m.signInFailed(ctx, kind, &ProfileWriteError{UserID: ps.UserID, Merge: true, Err: err}, "profile upsert failed")
	}

	profile, err := m.profiles.Get(ctx, m.opts.ProfileCollection, ps.UserID)
	if err != nil {
		m.logger.Warn(ctx, "reading back merged profile failed, using written fields", log.Fields{"provider": string(kind), "user_id": ps.UserID, "error": err.Error()})
		profile = write
	}

	s := sessionFrom(ps, profile)
	s.LastLoginAt = &loginAt

	m.mirror(ctx, s)
	m.publish(s, false)
	m.metrics.SignIn(string(kind), metrics.OutcomeSuccess)
	m.logger.Info(ctx, "signed in", log.Fields{"provider": string(kind), "user_id": s.Identity})

	m.nav.RequestTransition(m.opts.PostAuthTarget, domain.NavigationReplace)
	return nil
}

func (m *Manager) signInFailed(ctx context.Context, kind domain.ProviderKind, cause error, msg string) error {
	m.logger.Error(ctx, msg, cause, log.Fields{"provider": string(kind)})
	m.metrics.SignIn(string(kind), metrics.OutcomeFailure)
	return &SignInError{Provider: kind, Err: cause}
}

// SignUpWithEmail creates an email/password account and writes its full profile
// document. The published session is updated through the provider's ambient
// notification, not here.
func (m *Manager) SignUpWithEmail(ctx context.Context, req SignUpRequest) (_ *domain.UserRecord, err error) {
	ctx, span := m.tracer.Start(ctx, "session.SignUpWithEmail")
	defer func() { endSpan(span, err) }()

	if err := m.validate.Struct(req); err != nil {
		m.metrics.SignUp(metrics.OutcomeFailure)
		return nil, &SignUpError{Email: req.Email, Err: err}
	}

	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	before := m.snapshotPending()
	ps, err := m.idp.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		m.logger.Error(ctx, "account creation failed", err, log.Fields{"email": req.Email})
		m.metrics.SignUp(metrics.OutcomeFailure)
		return nil, &SignUpError{Email: req.Email, Err: err}
	}

	now := m.opts.Now()
	doc := map[string]any{
		"email":     req.Email,
		"firstName": req.FirstName,
		"lastName":  req.LastName,
		"birthdate": req.Birthdate,
		"createdAt": now,
		"lastLogin": now,
	}
	if err := m.profiles.Upsert(ctx, m.opts.ProfileCollection, ps.UserID, doc, false); err != nil {
		werr := &ProfileWriteError{UserID: ps.UserID, Merge: false, Err: err}
		m.rollback(ctx, ps.UserID, before)
		m.logger.Error(ctx, "profile write after sign-up failed", werr, log.Fields{"email": req.Email})
		m.metrics.SignUp(metrics.OutcomeFailure)
		return nil, &SignUpError{Email: req.Email, Err: werr}
	}

	m.metrics.SignUp(metrics.OutcomeSuccess)
	m.logger.Info(ctx, "account created", log.Fields{"user_id": ps.UserID})
	return ps.Record(now), nil
}

// SignOut clears the local mirror, revokes the provider session and publishes
// the absent session. Signing out while already signed out does nothing. On
// failure the published session and its mirror are left as they were.
func (m *Manager) SignOut(ctx context.Context) (err error) {
	ctx, span := m.tracer.Start(ctx, "session.SignOut")
	defer func() { endSpan(span, err) }()

	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	prev := m.Current()
	if !prev.Present() {
		m.logger.Debug(ctx, "sign-out requested without a session")
		m.metrics.SignOut(metrics.OutcomeNoop)
		return nil
	}

	fields := log.Fields{"user_id": prev.Identity}
	if err := m.cache.Delete(ctx, m.opts.CacheKey); err != nil {
		m.logger.Error(ctx, "deleting session mirror failed", err, fields)
		m.metrics.SignOut(metrics.OutcomeFailure)
		return &SignOutError{Identity: prev.Identity, Err: err}
	}
	if err := m.idp.RevokeSession(ctx); err != nil {
		m.logger.Error(ctx, "revoking provider session failed", err, fields)
		m.mirror(ctx, prev)
		m.metrics.SignOut(metrics.OutcomeFailure)
		return &SignOutError{Identity: prev.Identity, Err: err}
	}

	m.publish(nil, false)
	m.metrics.SignOut(metrics.OutcomeSuccess)
	m.logger.Info(ctx, "signed out", fields)

	m.nav.RequestTransition(m.opts.SignedOutTarget, domain.NavigationReplace)
	return nil
}

// enqueue is the provider listener. It never blocks so a provider may call it
// from inside one of our own actions.
func (m *Manager) enqueue(ps *domain.ProviderSession) {
	m.queueMu.Lock()
	m.pending = true
	m.latest = ps
	m.seq++
	m.queueMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	defer close(m.loopDone)
	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-m.wake:
		}

		m.restore(m.baseCtx)
	}
}

// takePending empties the notification slot. Callers hold actionMu.
func (m *Manager) takePending() (*domain.ProviderSession, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	ps, ok := m.latest, m.pending
	m.latest, m.pending = nil, false
	return ps, ok
}

func (m *Manager) snapshotPending() pendingNotification {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return pendingNotification{pending: m.pending, latest: m.latest, seq: m.seq}
}

// rollback undoes the provider sign-in of a failed action: the provider session
// is revoked and the notifications the action caused are discarded, so the
// rejected identity is never published. Callers hold actionMu.
func (m *Manager) rollback(ctx context.Context, userID string, before pendingNotification) {
	if err := m.idp.RevokeSession(ctx); err != nil {
		m.logger.Error(ctx, "revoking rejected provider session failed", err, log.Fields{"user_id": userID})
	}

	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if m.seq != before.seq {
		m.pending = before.pending
		m.latest = before.latest
	}
}

// restore applies the newest ambient notification, if one is still pending
// once actionMu is held.
func (m *Manager) restore(ctx context.Context) {
	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	ps, ok := m.takePending()
	if !ok || ctx.Err() != nil {
		return
	}

	ctx, span := m.tracer.Start(ctx, "session.restore")
	defer span.End()

	if ps == nil || ps.UserID == "" {
		if err := m.cache.Delete(ctx, m.opts.CacheKey); err != nil {
			m.logger.Warn(ctx, "clearing session mirror failed", log.Fields{"error": err.Error()})
		}
		m.publish(nil, true)
		m.metrics.Restoration("none")
		m.logger.Debug(ctx, "provider reports no identity")
		return
	}

	result := "identity"
	profile, err := m.profiles.Get(ctx, m.opts.ProfileCollection, ps.UserID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrProfileNotFound):
		profile = nil
	default:
		result = "fetch_error"
		m.logger.Error(ctx, "restoration profile fetch failed, publishing without profile",
			&RestorationFetchError{UserID: ps.UserID, Err: err})
		profile = nil
	}

	s := sessionFrom(ps, profile)
	if prev := m.Current(); prev.Present() && prev.Identity == s.Identity && prev.LastLoginAt != nil {
		s.LastLoginAt = prev.LastLoginAt
	} else if t, ok := profile["lastLogin"].(time.Time); ok {
		s.LastLoginAt = &t
	}

	m.mirror(ctx, s)
	m.publish(s, true)
	m.metrics.Restoration(result)
	m.logger.Debug(ctx, "identity restored", log.Fields{"user_id": s.Identity})
}

func (m *Manager) seedFromCache(ctx context.Context) {
	raw, err := m.cache.Get(ctx, m.opts.CacheKey)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			m.logger.Warn(ctx, "reading session mirror failed", log.Fields{"error": err.Error()})
		}
		return
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		m.logger.Warn(ctx, "discarding unreadable session mirror", log.Fields{"error": err.Error()})
		return
	}
	if !s.Present() {
		return
	}
	m.actionMu.Lock()
	m.publish(&s, false)
	m.actionMu.Unlock()
	m.logger.Debug(ctx, "session seeded from cache", log.Fields{"user_id": s.Identity})
}

// mirror writes s to the local cache. The mirror is derived state, so a failed
// write is logged and does not fail the action.
func (m *Manager) mirror(ctx context.Context, s *domain.Session) {
	raw, err := json.Marshal(s)
	if err == nil {
		err = m.cache.Set(ctx, m.opts.CacheKey, raw)
	}
	if err != nil {
		m.logger.Warn(ctx, "writing session mirror failed", log.Fields{"user_id": s.Identity, "error": err.Error()})
	}
}

// publish replaces the current session and notifies watchers. endLoading marks
// the end of the initial restoration; loading only ever goes true to false once.
func (m *Manager) publish(s *domain.Session, endLoading bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.current = s.Clone()
	if endLoading && m.loading {
		m.loading = false
		close(m.ready)
	}
	m.metrics.SetSignedIn(m.current.Present())

	st := State{Session: m.current.Clone(), Loading: m.loading}
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func sessionFrom(ps *domain.ProviderSession, profile map[string]any) *domain.Session {
	s := &domain.Session{
		Identity:    ps.UserID,
		Email:       ps.Email,
		DisplayName: ps.DisplayName,
		PhotoURL:    ps.PhotoURL,
		Profile:     profile,
	}
	if s.Email == "" {
		s.Email, _ = profile["email"].(string)
	}
	if s.DisplayName == "" {
		s.DisplayName, _ = profile["displayName"].(string)
	}
	if s.PhotoURL == "" {
		s.PhotoURL, _ = profile["photoURL"].(string)
	}
	return s
}

func putIfSet(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
