package audit

import "time"

// EventType identifies an authentication-relevant occurrence. The set is
// closed; collaborators switch on these values.
type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailure       EventType = "login_failure"
	EventLogout             EventType = "logout"
	EventSessionTimeout     EventType = "session_timeout"
	EventSessionExtended    EventType = "session_extended"
	EventConcurrentSession  EventType = "concurrent_session"
	EventMFAVerified        EventType = "mfa_verified"
	EventMFAFailed          EventType = "mfa_failed"
	EventAccountLocked      EventType = "account_locked"
	EventPermissionGranted  EventType = "permission_granted"
	EventPermissionRevoked  EventType = "permission_revoked"
	EventSuspiciousActivity EventType = "suspicious_activity"
)

// RiskLevel grades an event for anomaly review. Critical events must reach
// the alert sink; the others are audit-only.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// SecurityEvent is an immutable audit record. PrincipalID and SessionID may
// be empty: a failed login often has no resolvable principal.
type SecurityEvent struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Success     bool              `json:"success"`
	RiskLevel   RiskLevel         `json:"risk_level"`
	Details     map[string]string `json:"details,omitempty"`
}
