package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("session: not found")
	ErrSessionEnded = errors.New("session: expired or terminated")
	ErrInvalidInput = errors.New("session: invalid input")
	// ErrPasswordExpired is returned at login when the account's password is
	// past the rotation policy; no session is created until it changes.
	ErrPasswordExpired = errors.New("session: password expired")
)

// State is the lifecycle state of one session.
type State string

const (
	StateActive     State = "active"
	StateWarning    State = "warning"
	StateExpired    State = "expired"
	StateTerminated State = "terminated"
)

func (s State) String() string { return string(s) }

// Live reports whether the session can still be used. Warning sessions are
// live: any activity returns them to Active.
func (s State) Live() bool {
	return s == StateActive || s == StateWarning
}

// TerminateReason is the reason code attached to Logout events.
type TerminateReason string

const (
	ReasonSignOut            TerminateReason = "sign_out"
	ReasonAccountInactive    TerminateReason = "account_inactive"
	ReasonRoleChange         TerminateReason = "role_changed"
	ReasonPasswordExpired    TerminateReason = "password_expired"
	ReasonConcurrentLogin    TerminateReason = "concurrent_login"
	ReasonInvariantViolation TerminateReason = "invariant_violation"
)

// Session is the live authenticated context for one login. The security
// level is never stored on it: collaborators recompute the level from the
// owning principal plus MFAVerified whenever they need it.
type Session struct {
	ID               string
	PrincipalID      string
	LoginTime        time.Time
	LastActivityTime time.Time
	MFAVerified      bool
	State            State
	Reason           TerminateReason
}

// Validate checks the record's internal invariants. A violation means a
// collaborator handed us corrupted state (storage or clock skew); callers
// fail closed on it.
func (s *Session) Validate() error {
	if s.ID == "" || s.PrincipalID == "" {
		return fmt.Errorf("%w: missing identifiers", ErrInvalidInput)
	}
	if s.LastActivityTime.Before(s.LoginTime) {
		return fmt.Errorf("%w: last activity precedes login", ErrInvalidInput)
	}
	return nil
}

// Idle returns how long the session has been without activity at the given
// instant. Negative deltas (clock skew) clamp to zero rather than extending
// the session.
func (s *Session) Idle(now time.Time) time.Duration {
	idle := now.Sub(s.LastActivityTime)
	if idle < 0 {
		return 0
	}
	return idle
}
