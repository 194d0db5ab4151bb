package auth

import (
	"context"
	"errors"
	"time"

	"pennywise.app/internal/audit"
	"pennywise.app/internal/obs"
)

// Authenticator resolves credentials to principals, tracking failed attempts
// and emitting the corresponding security events. Credential mismatch is a
// nil principal with ErrUnauthorized, never a distinct "no such user" error:
// responses must not let callers enumerate accounts.
type Authenticator struct {
	store    PrincipalStore
	events   *audit.Recorder
	lockout  *LockoutTracker
	policies PolicySet
	now      func() time.Time
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithPolicies overrides the per-level policy set.
func WithPolicies(ps PolicySet) AuthenticatorOption {
	return func(a *Authenticator) {
		if ps != nil {
			a.policies = ps
		}
	}
}

// WithAuthClock overrides the time source (useful for tests).
func WithAuthClock(fn func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(store PrincipalStore, events *audit.Recorder, opts ...AuthenticatorOption) (*Authenticator, error) {
	if store == nil {
		return nil, errors.New("principal store is required")
	}
	if events == nil {
		return nil, errors.New("event recorder is required")
	}
	a := &Authenticator{
		store:    store,
		events:   events,
		policies: DefaultPolicies(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lockout = NewLockoutTracker(a.now)
	return a, nil
}

// Policies returns the active per-level policy set.
func (a *Authenticator) Policies() PolicySet { return a.policies }

// Store exposes the principal store to collaborators that re-read principal
// state mid-session (the lifecycle monitor invalidation checks).
func (a *Authenticator) Store() PrincipalStore { return a.store }

// VerifyCredentials checks an email/password pair. On success it returns the
// principal; on any mismatch it returns ErrUnauthorized and appends exactly
// one LoginFailure event. A locked account short-circuits before the password
// is even checked.
func (a *Authenticator) VerifyCredentials(ctx context.Context, email, password string) (*Principal, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		obs.CountLogin("failure")
		a.recordFailure(ctx, "", email, "missing credentials")
		return nil, ErrUnauthorized
	}

	if a.lockout.Locked(email) {
		obs.CountLogin("locked")
		a.recordFailure(ctx, "", email, "account locked")
		return nil, ErrAccountLocked
	}

	principal, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.failAttempt(ctx, nil, email, "unknown account")
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if principal.Status == StatusLocked {
		obs.CountLogin("locked")
		a.recordFailure(ctx, principal.ID, email, "account locked")
		return nil, ErrAccountLocked
	}
	if principal.Status != StatusActive {
		a.failAttempt(ctx, principal, email, "account not active")
		return nil, ErrUnauthorized
	}

	if err := VerifyPassword(principal.PasswordHash, password); err != nil {
		a.failAttempt(ctx, principal, email, "credential mismatch")
		return nil, ErrUnauthorized
	}

	a.lockout.RecordSuccess(email)
	obs.CountLogin("success")
	return principal, nil
}

// VerifyMFACode validates a TOTP code for the principal. Events are appended
// for both outcomes; the caller flips the session's MFAVerified flag only on
// a true return.
func (a *Authenticator) VerifyMFACode(ctx context.Context, principal *Principal, sessionID, code string) bool {
	if principal == nil || !principal.MFAEnabled {
		return false
	}
	ok := VerifyTOTP(principal.MFASecret, code, a.now())
	event := &audit.SecurityEvent{
		Type:        audit.EventMFAVerified,
		PrincipalID: principal.ID,
		SessionID:   sessionID,
		Success:     true,
		RiskLevel:   audit.RiskLow,
	}
	if !ok {
		event.Type = audit.EventMFAFailed
		event.Success = false
		event.RiskLevel = audit.RiskHigh
	}
	if err := a.events.Record(ctx, event); err != nil {
		obs.LogEntry(map[string]any{"type": "audit_record_failed", "error": err.Error()})
	}
	return ok
}

// failAttempt records a failed login and advances the lockout counter under
// the account's policy. Crossing the threshold flips the stored status to
// locked and appends an AccountLocked event.
func (a *Authenticator) failAttempt(ctx context.Context, principal *Principal, email, reason string) {
	obs.CountLogin("failure")

	principalID := ""
	pol := a.policies.For(LevelLow)
	if principal != nil {
		principalID = principal.ID
		pol = a.policies.For(ClassifyLevel(principal, false))
	}
	a.recordFailure(ctx, principalID, email, reason)

	if a.lockout.RecordFailure(email, pol.MaxFailedAttempts, pol.LockoutDuration) {
		if principal != nil {
			if err := a.store.UpdateStatus(ctx, principal.ID, StatusLocked); err != nil {
				obs.LogEntry(map[string]any{"type": "lockout_update_failed", "error": err.Error()})
			}
		}
		lockEvent := &audit.SecurityEvent{
			Type:        audit.EventAccountLocked,
			PrincipalID: principalID,
			Success:     true,
			RiskLevel:   audit.RiskCritical,
			Details:     map[string]string{"lockout_minutes": pol.LockoutDuration.String()},
		}
		if err := a.events.Record(ctx, lockEvent); err != nil {
			obs.LogEntry(map[string]any{"type": "audit_record_failed", "error": err.Error()})
		}
	}
}

func (a *Authenticator) recordFailure(ctx context.Context, principalID, email, reason string) {
	event := &audit.SecurityEvent{
		Type:        audit.EventLoginFailure,
		PrincipalID: principalID,
		Success:     false,
		RiskLevel:   audit.RiskHigh,
		Details:     map[string]string{"reason": reason},
	}
	if email != "" {
		event.Details["email"] = email
	}
	if err := a.events.Record(ctx, event); err != nil {
		obs.LogEntry(map[string]any{"type": "audit_record_failed", "error": err.Error()})
	}
}
