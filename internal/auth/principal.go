package auth

import "time"

// Principal represents an authenticated user for authorization purposes.
// Authorization checks are pure reads over this value; nothing here mutates
// principal or session state, and nothing here logs.
type Principal struct {
	ID    string
	Email string
	Role  Role

	// StoredPermissions mirrors what persistence holds for the principal.
	// It is advisory only: effective permissions are derived from the role
	// registry, and Administrator always gets the full enumeration.
	StoredPermissions []Permission

	Status            AccountStatus
	MFAEnabled        bool
	MFASecret         string
	PasswordHash      string
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectivePermissions resolves the principal's permission set from the role
// registry. The stored set never widens or narrows the result.
func (p *Principal) EffectivePermissions() map[Permission]struct{} {
	return PermissionsFor(p.Role)
}

// HasPermission reports whether the principal may perform the operation.
func (p *Principal) HasPermission(perm Permission) bool {
	_, ok := p.EffectivePermissions()[perm]
	return ok
}

// HasAnyPermission reports whether at least one of the permissions is held.
func (p *Principal) HasAnyPermission(perms ...Permission) bool {
	set := p.EffectivePermissions()
	for _, perm := range perms {
		if _, ok := set[perm]; ok {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every one of the permissions is held.
func (p *Principal) HasAllPermissions(perms ...Permission) bool {
	set := p.EffectivePermissions()
	for _, perm := range perms {
		if _, ok := set[perm]; !ok {
			return false
		}
	}
	return true
}

// HasRole reports an exact role match. Administrator satisfies every role
// check; this is a deliberate super-role escape hatch, not a hierarchy.
func (p *Principal) HasRole(role Role) bool {
	if p.Role == RoleAdministrator {
		return true
	}
	return p.Role == role
}

// HasMinimumRole reports whether the principal's role ranks at or above the
// target in the fixed privilege order. Invalid roles rank below everything.
func (p *Principal) HasMinimumRole(role Role) bool {
	if !p.Role.Valid() || !role.Valid() {
		return false
	}
	return p.Role.Rank() >= role.Rank()
}

// CanAccessResource gates a resource behind required permissions and an
// optional minimum role. A non-active account fails immediately.
// requiredRole may be empty to skip the role check.
func (p *Principal) CanAccessResource(requiredRole Role, required ...Permission) bool {
	if p.Status != StatusActive {
		return false
	}
	if requiredRole != "" && !p.HasMinimumRole(requiredRole) {
		return false
	}
	return p.HasAllPermissions(required...)
}

// PasswordExpired reports whether the password is older than maxAge at the
// given instant. A zero maxAge disables rotation; a zero change timestamp is
// treated as expired so unset records fail closed.
func (p *Principal) PasswordExpired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	if p.PasswordChangedAt.IsZero() {
		return true
	}
	return now.Sub(p.PasswordChangedAt) >= maxAge
}
