package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pennywise.app/internal/audit"
	"pennywise.app/internal/auth"
	"pennywise.app/internal/obs"
)

const (
	defaultCheckInterval  = 30 * time.Second
	defaultMaxPasswordAge = 90 * 24 * time.Hour

	// activityFlushInterval throttles persistence of activity timestamps.
	// The in-memory timestamp always updates synchronously; only the
	// write-behind is rate limited, and the periodic check flushes whatever
	// the limiter deferred, so the latest value is never dropped.
	activityFlushInterval = 2 * time.Second
)

// Manager owns the session lifecycle: it tracks inactivity, raises the
// pre-expiry warning, forces termination past the timeout, and enforces the
// per-level concurrency policy at login. It is the only component that
// decides to end a session.
type Manager struct {
	store          Store
	authn          *auth.Authenticator
	events         *audit.Recorder
	policies       auth.PolicySet
	maxPasswordAge time.Duration
	checkInterval  time.Duration
	now            func() time.Time

	mu   sync.RWMutex
	live map[string]*managedSession

	loginMu    sync.Mutex
	loginLocks map[string]*sync.Mutex

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// managedSession is the authoritative in-process copy of a live session plus
// the cached owning principal. The cache is refreshed on request paths; the
// periodic check deliberately does time math only.
type managedSession struct {
	mu        sync.Mutex
	rec       Session
	principal *auth.Principal
	limiter   *rate.Limiter
	dirty     bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithCheckInterval overrides the periodic check interval. Any interval that
// samples more often than the warning window works.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

// WithMaxPasswordAge overrides the password rotation policy. Zero disables it.
func WithMaxPasswordAge(d time.Duration) Option {
	return func(m *Manager) { m.maxPasswordAge = d }
}

// WithPolicies overrides the per-level policy set.
func WithPolicies(ps auth.PolicySet) Option {
	return func(m *Manager) {
		if ps != nil {
			m.policies = ps
		}
	}
}

// WithClock overrides the time source (useful for tests). Every comparison in
// a single check uses one reading of this clock.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager.
func NewManager(store Store, authn *auth.Authenticator, events *audit.Recorder, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if authn == nil {
		return nil, errors.New("authenticator is required")
	}
	if events == nil {
		return nil, errors.New("event recorder is required")
	}
	m := &Manager{
		store:          store,
		authn:          authn,
		events:         events,
		policies:       authn.Policies(),
		maxPasswordAge: defaultMaxPasswordAge,
		checkInterval:  defaultCheckInterval,
		now:            time.Now,
		live:           make(map[string]*managedSession),
		loginLocks:     make(map[string]*sync.Mutex),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start adopts live sessions from the store and launches the periodic check
// loop. Adopted sessions whose principal cannot be resolved are terminated
// rather than trusted.
func (m *Manager) Start(ctx context.Context) error {
	sessions, err := m.store.ListLive(ctx)
	if err != nil {
		return err
	}
	for _, rec := range sessions {
		principal, err := m.authn.Store().Find(ctx, rec.PrincipalID)
		if err != nil || principal.Status != auth.StatusActive {
			_ = m.store.SetState(ctx, rec.ID, StateTerminated, ReasonAccountInactive)
			continue
		}
		m.adopt(*rec, principal)
	}
	m.started = true
	go m.loop()
	return nil
}

// Close stops the periodic check loop and waits for it to finish.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started {
		<-m.done
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.flushAll()
			return
		case <-ticker.C:
			m.checkSessions()
		}
	}
}

// Login verifies credentials and creates a session, enforcing the concurrency
// policy for the principal's prospective security level. Logins for one
// principal are serialized so two near-simultaneous attempts cannot both slip
// past the single-session check.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, *auth.Principal, error) {
	principal, err := m.authn.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	now := m.now().UTC()
	if principal.PasswordExpired(now, m.maxPasswordAge) {
		m.record(ctx, &audit.SecurityEvent{
			Type:        audit.EventLoginFailure,
			PrincipalID: principal.ID,
			Success:     false,
			RiskLevel:   audit.RiskHigh,
			Details:     map[string]string{"reason": "password expired"},
		})
		return nil, nil, ErrPasswordExpired
	}

	lock := m.principalLock(principal.ID)
	lock.Lock()
	defer lock.Unlock()

	// The concurrency policy is judged at the session's target level: an
	// MFA-enabled principal classifies as if already verified, otherwise a
	// Critical-tier admin could hold two sessions by simply not verifying.
	pol := m.policies.For(auth.ClassifyLevel(principal, principal.MFAEnabled))
	if !pol.AllowConcurrentSessions {
		if err := m.terminatePrior(ctx, principal.ID); err != nil {
			return nil, nil, err
		}
	}

	rec := Session{
		ID:               uuid.NewString(),
		PrincipalID:      principal.ID,
		LoginTime:        now,
		LastActivityTime: now,
		State:            StateActive,
	}
	if err := m.store.Create(ctx, &rec); err != nil {
		return nil, nil, err
	}
	m.adopt(rec, principal)
	m.record(ctx, &audit.SecurityEvent{
		Type:        audit.EventLoginSuccess,
		PrincipalID: principal.ID,
		SessionID:   rec.ID,
		Success:     true,
		RiskLevel:   audit.RiskLow,
	})
	return &rec, principal, nil
}

// terminatePrior ends every live session the principal already holds, both in
// memory and in the store, emitting a ConcurrentSession event per victim.
func (m *Manager) terminatePrior(ctx context.Context, principalID string) error {
	prior, err := m.store.LiveByPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	for _, victim := range prior {
		if ms := m.get(victim.ID); ms != nil {
			ms.mu.Lock()
			m.endLocked(ctx, ms, StateTerminated, ReasonConcurrentLogin)
			ms.mu.Unlock()
			continue
		}
		_ = m.store.SetState(ctx, victim.ID, StateTerminated, ReasonConcurrentLogin)
		m.record(ctx, &audit.SecurityEvent{
			Type:        audit.EventConcurrentSession,
			PrincipalID: principalID,
			SessionID:   victim.ID,
			Success:     true,
			RiskLevel:   audit.RiskMedium,
		})
	}
	return nil
}

// RecordActivity applies a user-activity signal. Updates are commutative
// under latest-timestamp-wins: a stale signal never regresses the clock. A
// session past its timeout cannot be revived by late activity.
func (m *Manager) RecordActivity(ctx context.Context, sessionID string, at time.Time) error {
	ms := m.get(sessionID)
	if ms == nil {
		return ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := m.now().UTC()
	if m.applyClockLocked(ctx, ms, now) {
		return ErrSessionEnded
	}
	if at.IsZero() {
		at = now
	}
	if at.After(ms.rec.LastActivityTime) {
		ms.rec.LastActivityTime = at
	}
	// Activity cancels a pending warning. The transition writes through so
	// the store never reports warning for a session that went active again.
	if ms.rec.State == StateWarning {
		ms.rec.State = StateActive
		if err := m.store.SetState(ctx, sessionID, StateActive, ""); err != nil {
			obs.LogEntry(map[string]any{"type": "session_state_write_failed", "session_id": sessionID, "error": err.Error()})
		}
	}

	if ms.limiter.Allow() {
		if err := m.store.UpdateActivity(ctx, sessionID, ms.rec.LastActivityTime); err == nil {
			ms.dirty = false
			return nil
		}
	}
	ms.dirty = true
	return nil
}

// Extend is the one explicit clock reset outside raw activity signals. It
// counts as activity, always writes through, and fails on an ended session.
func (m *Manager) Extend(ctx context.Context, sessionID string) error {
	ms := m.get(sessionID)
	if ms == nil {
		return ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := m.now().UTC()
	if m.applyClockLocked(ctx, ms, now) {
		return ErrSessionEnded
	}
	ms.rec.LastActivityTime = now
	if ms.rec.State == StateWarning {
		ms.rec.State = StateActive
		if err := m.store.SetState(ctx, sessionID, StateActive, ""); err != nil {
			obs.LogEntry(map[string]any{"type": "session_state_write_failed", "session_id": sessionID, "error": err.Error()})
		}
	}
	ms.dirty = false
	if err := m.store.UpdateActivity(ctx, sessionID, now); err != nil {
		return err
	}
	m.record(ctx, &audit.SecurityEvent{
		Type:        audit.EventSessionExtended,
		PrincipalID: ms.rec.PrincipalID,
		SessionID:   sessionID,
		Success:     true,
		RiskLevel:   audit.RiskLow,
	})
	return nil
}

// SignOut terminates the session regardless of its current state. If the
// timeout check already recorded Expired, that stands; both ends leave the
// session invalid.
func (m *Manager) SignOut(ctx context.Context, sessionID string) error {
	ms := m.get(sessionID)
	if ms == nil {
		return ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.rec.State.Live() {
		return ErrSessionEnded
	}
	m.endLocked(ctx, ms, StateTerminated, ReasonSignOut)
	return nil
}

// VerifyMFA validates a TOTP code for the session's principal and, on
// success, marks the session MFA-verified. The security level derived for the
// session rises immediately, which can shorten its timeout.
func (m *Manager) VerifyMFA(ctx context.Context, sessionID, code string) error {
	ms := m.get(sessionID)
	if ms == nil {
		return ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if m.applyClockLocked(ctx, ms, m.now().UTC()) {
		return ErrSessionEnded
	}
	if !m.authn.VerifyMFACode(ctx, ms.principal, sessionID, code) {
		return auth.ErrUnauthorized
	}
	ms.rec.MFAVerified = true
	return m.store.SetMFAVerified(ctx, sessionID)
}

// Snapshot is a read-only view of one session for display and API responses.
type Snapshot struct {
	SessionID        string
	PrincipalID      string
	State            State
	Reason           TerminateReason
	SecurityLevel    auth.SecurityLevel
	MFAVerified      bool
	MFARequired      bool
	LoginTime        time.Time
	LastActivityTime time.Time
	TimeUntilTimeout time.Duration
}

// Status re-reads the owning principal, applies any invalidating condition
// (account no longer active, password expired mid-session), advances the
// clock, and reports the result. Collaborators asking "is my session still
// good?" call this.
func (m *Manager) Status(ctx context.Context, sessionID string) (Snapshot, error) {
	ms := m.get(sessionID)
	if ms == nil {
		return Snapshot{}, ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := m.now().UTC()
	if ms.rec.State.Live() {
		principal, err := m.authn.Store().Find(ctx, ms.rec.PrincipalID)
		switch {
		case err != nil:
			// Fail closed: a principal we cannot read cannot hold a session.
			m.endLocked(ctx, ms, StateTerminated, ReasonAccountInactive)
		case principal.Status != auth.StatusActive:
			ms.principal = principal
			m.endLocked(ctx, ms, StateTerminated, ReasonAccountInactive)
		case principal.PasswordExpired(now, m.maxPasswordAge):
			ms.principal = principal
			m.endLocked(ctx, ms, StateTerminated, ReasonPasswordExpired)
		default:
			ms.principal = principal
			m.applyClockLocked(ctx, ms, now)
		}
	}
	return m.snapshotLocked(ms, now), nil
}

// TimeUntilTimeout is a pure read of the countdown; it never mutates state.
func (m *Manager) TimeUntilTimeout(sessionID string) (time.Duration, error) {
	ms := m.get(sessionID)
	if ms == nil {
		return 0, ErrNotFound
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.rec.State.Live() {
		return 0, nil
	}
	pol := m.policyLocked(ms)
	left := pol.SessionTimeout - ms.rec.Idle(m.now().UTC())
	if left < 0 {
		return 0, nil
	}
	return left, nil
}

// TerminatePrincipalSessions ends every live session for a principal. Called
// by account-mutating operations (suspension, deletion, role revocation).
func (m *Manager) TerminatePrincipalSessions(ctx context.Context, principalID string, reason TerminateReason) error {
	lock := m.principalLock(principalID)
	lock.Lock()
	defer lock.Unlock()

	live, err := m.store.LiveByPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	for _, rec := range live {
		if ms := m.get(rec.ID); ms != nil {
			ms.mu.Lock()
			m.endLocked(ctx, ms, StateTerminated, reason)
			ms.mu.Unlock()
			continue
		}
		_ = m.store.SetState(ctx, rec.ID, StateTerminated, reason)
	}
	return nil
}

// checkSessions is the periodic tick: flush deferred activity writes, then
// advance every live session's clock. No principal reads happen here; those
// belong to request paths.
func (m *Manager) checkSessions() {
	ctx := context.Background()
	now := m.now().UTC()
	for _, ms := range m.snapshotLive() {
		ms.mu.Lock()
		if ms.dirty && ms.rec.State.Live() {
			if err := m.store.UpdateActivity(ctx, ms.rec.ID, ms.rec.LastActivityTime); err == nil {
				ms.dirty = false
			}
		}
		m.applyClockLocked(ctx, ms, now)
		ms.mu.Unlock()
	}
}

// applyClockLocked advances time-driven transitions for one session and
// reports whether the session has ended. The timeout bound is closed: idle
// exactly equal to the timeout expires the session, with no grace period.
func (m *Manager) applyClockLocked(ctx context.Context, ms *managedSession, now time.Time) bool {
	if !ms.rec.State.Live() {
		return true
	}
	if err := ms.rec.Validate(); err != nil {
		// Corrupted record from a collaborator: deny rather than guess.
		m.record(ctx, &audit.SecurityEvent{
			Type:        audit.EventSuspiciousActivity,
			PrincipalID: ms.rec.PrincipalID,
			SessionID:   ms.rec.ID,
			Success:     false,
			RiskLevel:   audit.RiskCritical,
			Details:     map[string]string{"reason": err.Error()},
		})
		m.endLocked(ctx, ms, StateTerminated, ReasonInvariantViolation)
		return true
	}
	pol := m.policyLocked(ms)
	idle := ms.rec.Idle(now)
	if idle >= pol.SessionTimeout {
		m.endLocked(ctx, ms, StateExpired, "")
		return true
	}
	if ms.rec.State == StateActive && idle >= pol.SessionTimeout-pol.WarningWindow {
		ms.rec.State = StateWarning
		if err := m.store.SetState(ctx, ms.rec.ID, StateWarning, ""); err != nil {
			obs.LogEntry(map[string]any{"type": "session_state_write_failed", "session_id": ms.rec.ID, "error": err.Error()})
		}
	}
	return false
}

// endLocked commits a terminal transition and emits the matching event. The
// first terminal state wins; later calls are no-ops.
func (m *Manager) endLocked(ctx context.Context, ms *managedSession, state State, reason TerminateReason) {
	if !ms.rec.State.Live() {
		return
	}
	// Flush any deferred activity before the record goes terminal.
	if ms.dirty {
		if err := m.store.UpdateActivity(ctx, ms.rec.ID, ms.rec.LastActivityTime); err == nil {
			ms.dirty = false
		}
	}
	ms.rec.State = state
	ms.rec.Reason = reason
	if err := m.store.SetState(ctx, ms.rec.ID, state, reason); err != nil {
		obs.LogEntry(map[string]any{"type": "session_state_write_failed", "session_id": ms.rec.ID, "error": err.Error()})
	}
	obs.SessionClosed()

	event := &audit.SecurityEvent{
		PrincipalID: ms.rec.PrincipalID,
		SessionID:   ms.rec.ID,
		Success:     true,
	}
	switch {
	case state == StateExpired:
		event.Type = audit.EventSessionTimeout
		event.RiskLevel = audit.RiskMedium
		obs.CountSessionTimeout()
	case reason == ReasonConcurrentLogin:
		event.Type = audit.EventConcurrentSession
		event.RiskLevel = audit.RiskMedium
	default:
		event.Type = audit.EventLogout
		event.RiskLevel = audit.RiskLow
		event.Details = map[string]string{"reason": string(reason)}
	}
	m.record(ctx, event)
	m.remove(ms.rec.ID)
}

func (m *Manager) policyLocked(ms *managedSession) auth.LevelPolicy {
	return m.policies.For(auth.ClassifyLevel(ms.principal, ms.rec.MFAVerified))
}

func (m *Manager) snapshotLocked(ms *managedSession, now time.Time) Snapshot {
	snap := Snapshot{
		SessionID:        ms.rec.ID,
		PrincipalID:      ms.rec.PrincipalID,
		State:            ms.rec.State,
		Reason:           ms.rec.Reason,
		SecurityLevel:    auth.ClassifyLevel(ms.principal, ms.rec.MFAVerified),
		MFAVerified:      ms.rec.MFAVerified,
		LoginTime:        ms.rec.LoginTime,
		LastActivityTime: ms.rec.LastActivityTime,
	}
	if ms.rec.State.Live() {
		pol := m.policyLocked(ms)
		// Enrolled principals at a tier whose policy demands verification
		// stay MFA-pending until they prove the factor.
		snap.MFARequired = pol.RequiresMFA && ms.principal.MFAEnabled && !ms.rec.MFAVerified
		if left := pol.SessionTimeout - ms.rec.Idle(now); left > 0 {
			snap.TimeUntilTimeout = left
		}
	}
	return snap
}

func (m *Manager) adopt(rec Session, principal *auth.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[rec.ID] = &managedSession{
		rec:       rec,
		principal: principal,
		limiter:   rate.NewLimiter(rate.Every(activityFlushInterval), 1),
	}
	obs.SessionOpened()
}

func (m *Manager) get(id string) *managedSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live[id]
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, id)
}

func (m *Manager) snapshotLive() []*managedSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*managedSession, 0, len(m.live))
	for _, ms := range m.live {
		out = append(out, ms)
	}
	return out
}

func (m *Manager) principalLock(principalID string) *sync.Mutex {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()
	lock, ok := m.loginLocks[principalID]
	if !ok {
		lock = &sync.Mutex{}
		m.loginLocks[principalID] = lock
	}
	return lock
}

func (m *Manager) flushAll() {
	ctx := context.Background()
	for _, ms := range m.snapshotLive() {
		ms.mu.Lock()
		if ms.dirty {
			if err := m.store.UpdateActivity(ctx, ms.rec.ID, ms.rec.LastActivityTime); err == nil {
				ms.dirty = false
			}
		}
		ms.mu.Unlock()
	}
}

func (m *Manager) record(ctx context.Context, event *audit.SecurityEvent) {
	if err := m.events.Record(ctx, event); err != nil {
		obs.LogEntry(map[string]any{"type": "audit_record_failed", "error": err.Error()})
	}
}
