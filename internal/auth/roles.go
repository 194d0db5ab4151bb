package auth

import (
	"fmt"
	"strings"
)

// Role is one of a closed set of mutually exclusive access tiers. Every
// principal holds exactly one role; roles are totally ordered by privilege.
type Role string

const (
	RoleReadOnly      Role = "read_only"
	RoleStandardUser  Role = "standard_user"
	RoleAnalyst       Role = "analyst"
	RoleManager       Role = "manager"
	RoleAdministrator Role = "administrator"
)

// roleRank fixes the privilege order used by HasMinimumRole.
var roleRank = map[Role]int{
	RoleReadOnly:      0,
	RoleStandardUser:  1,
	RoleAnalyst:       2,
	RoleManager:       3,
	RoleAdministrator: 4,
}

// Roles lists every valid role in ascending privilege order.
var Roles = []Role{RoleReadOnly, RoleStandardUser, RoleAnalyst, RoleManager, RoleAdministrator}

// Valid reports whether the role belongs to the closed enumeration.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the role's position in the privilege order. Unknown roles rank
// below every valid role so comparisons against them fail closed.
func (r Role) Rank() int {
	rank, ok := roleRank[r]
	if !ok {
		return -1
	}
	return rank
}

func (r Role) String() string { return string(r) }

// ParseRole normalizes and validates a role string coming from storage or
// transport. An unknown value is a defect in the collaborator, not user input.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return r, nil
}

// AccountStatus describes the lifecycle state of a principal's account.
// Only active accounts may hold a valid session.
type AccountStatus string

const (
	StatusActive              AccountStatus = "active"
	StatusInactive            AccountStatus = "inactive"
	StatusSuspended           AccountStatus = "suspended"
	StatusPendingVerification AccountStatus = "pending_verification"
	StatusLocked              AccountStatus = "locked"
	StatusExpired             AccountStatus = "expired"
)

var accountStatuses = map[AccountStatus]struct{}{
	StatusActive:              {},
	StatusInactive:            {},
	StatusSuspended:           {},
	StatusPendingVerification: {},
	StatusLocked:              {},
	StatusExpired:             {},
}

// Valid reports whether the status belongs to the closed enumeration.
func (s AccountStatus) Valid() bool {
	_, ok := accountStatuses[s]
	return ok
}

func (s AccountStatus) String() string { return string(s) }

// ParseAccountStatus normalizes and validates a stored account status.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	s := AccountStatus(strings.TrimSpace(strings.ToLower(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown account status %q", ErrInvalidInput, raw)
	}
	return s, nil
}
