package auth

import "time"

// SecurityLevel is a coarse trust tier derived from MFA state and role. It is
// always recomputed, never stored: caching it would let a mid-session role or
// MFA change leave a stale tier behind.
type SecurityLevel string

const (
	LevelLow      SecurityLevel = "low"
	LevelMedium   SecurityLevel = "medium"
	LevelHigh     SecurityLevel = "high"
	LevelCritical SecurityLevel = "critical"
)

func (l SecurityLevel) String() string { return string(l) }

// Levels lists the tiers in ascending trust order.
var Levels = []SecurityLevel{LevelLow, LevelMedium, LevelHigh, LevelCritical}

// ClassifyLevel maps a (principal, session MFA verification) pair to exactly
// one trust tier. The classification is exhaustive: every reachable
// combination lands on one tier.
func ClassifyLevel(p *Principal, mfaVerified bool) SecurityLevel {
	switch {
	case !p.MFAEnabled:
		return LevelLow
	case !mfaVerified:
		return LevelMedium
	case p.Role == RoleAdministrator:
		return LevelCritical
	default:
		return LevelHigh
	}
}

// LevelPolicy holds the per-tier tuning values. These come from deployment
// configuration, not compiled constants; the defaults below are the reference
// policy only.
type LevelPolicy struct {
	SessionTimeout          time.Duration
	WarningWindow           time.Duration
	RequiresMFA             bool
	AllowConcurrentSessions bool
	MaxFailedAttempts       int
	LockoutDuration         time.Duration
}

// PolicySet maps every security level to its policy.
type PolicySet map[SecurityLevel]LevelPolicy

// DefaultPolicies returns the reference policy: lower trust tiers get longer
// timeouts and looser lockout, Critical gets the shortest timeout and no
// concurrent sessions.
func DefaultPolicies() PolicySet {
	return PolicySet{
		LevelLow: {
			SessionTimeout:          30 * time.Minute,
			WarningWindow:           5 * time.Minute,
			RequiresMFA:             false,
			AllowConcurrentSessions: true,
			MaxFailedAttempts:       5,
			LockoutDuration:         15 * time.Minute,
		},
		LevelMedium: {
			SessionTimeout:          25 * time.Minute,
			WarningWindow:           5 * time.Minute,
			RequiresMFA:             true,
			AllowConcurrentSessions: true,
			MaxFailedAttempts:       4,
			LockoutDuration:         30 * time.Minute,
		},
		LevelHigh: {
			SessionTimeout:          15 * time.Minute,
			WarningWindow:           5 * time.Minute,
			RequiresMFA:             true,
			AllowConcurrentSessions: true,
			MaxFailedAttempts:       3,
			LockoutDuration:         time.Hour,
		},
		LevelCritical: {
			SessionTimeout:          10 * time.Minute,
			WarningWindow:           5 * time.Minute,
			RequiresMFA:             true,
			AllowConcurrentSessions: false,
			MaxFailedAttempts:       3,
			LockoutDuration:         time.Hour,
		},
	}
}

// For returns the policy for a level, falling back to the reference policy
// when the set has no entry. Unknown levels fail closed onto Critical.
func (ps PolicySet) For(level SecurityLevel) LevelPolicy {
	if pol, ok := ps[level]; ok {
		return pol
	}
	defaults := DefaultPolicies()
	if pol, ok := defaults[level]; ok {
		return pol
	}
	return defaults[LevelCritical]
}
