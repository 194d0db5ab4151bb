package auth

// Permission is a fine-grained capability key, independent of role. Keys use
// the "area.action" convention so audit entries stay greppable.
type Permission string

const (
	// Budget accounts
	PermAccountsView   Permission = "accounts.view"
	PermAccountsCreate Permission = "accounts.create"
	PermAccountsEdit   Permission = "accounts.edit"
	PermAccountsDelete Permission = "accounts.delete"

	// Transactions
	PermTransactionsView   Permission = "transactions.view"
	PermTransactionsCreate Permission = "transactions.create"
	PermTransactionsEdit   Permission = "transactions.edit"
	PermTransactionsDelete Permission = "transactions.delete"

	// Reports
	PermReportsView   Permission = "reports.view"
	PermReportsCreate Permission = "reports.create"
	PermReportsExport Permission = "reports.export"

	// User management
	PermUsersView   Permission = "users.view"
	PermUsersCreate Permission = "users.create"
	PermUsersEdit   Permission = "users.edit"
	PermUsersDelete Permission = "users.delete"
	PermRolesManage Permission = "roles.manage"

	// System
	PermSystemSettings  Permission = "system.settings"
	PermSystemAuditView Permission = "system.audit.view"

	// Compliance
	PermComplianceView   Permission = "compliance.view"
	PermComplianceManage Permission = "compliance.manage"
)

// AllPermissions is the full enumeration. Administrator's effective set is
// always exactly this slice, regardless of anything stored.
var AllPermissions = []Permission{
	PermAccountsView, PermAccountsCreate, PermAccountsEdit, PermAccountsDelete,
	PermTransactionsView, PermTransactionsCreate, PermTransactionsEdit, PermTransactionsDelete,
	PermReportsView, PermReportsCreate, PermReportsExport,
	PermUsersView, PermUsersCreate, PermUsersEdit, PermUsersDelete, PermRolesManage,
	PermSystemSettings, PermSystemAuditView,
	PermComplianceView, PermComplianceManage,
}

// rolePermissions is the registry: one hand-curated literal set per role, no
// inheritance chain. Administrator is resolved in PermissionsFor so the full
// enumeration cannot drift from AllPermissions.
var rolePermissions = map[Role][]Permission{
	RoleReadOnly: {
		PermAccountsView,
		PermTransactionsView,
		PermReportsView,
	},
	RoleStandardUser: {
		PermAccountsView, PermAccountsCreate, PermAccountsEdit,
		PermTransactionsView, PermTransactionsCreate, PermTransactionsEdit,
		PermReportsView,
	},
	RoleAnalyst: {
		PermAccountsView,
		PermTransactionsView,
		PermReportsView, PermReportsCreate, PermReportsExport,
		PermComplianceView,
	},
	RoleManager: {
		PermAccountsView, PermAccountsCreate, PermAccountsEdit, PermAccountsDelete,
		PermTransactionsView, PermTransactionsCreate, PermTransactionsEdit, PermTransactionsDelete,
		PermReportsView, PermReportsCreate, PermReportsExport,
		PermUsersView,
		PermComplianceView,
	},
}

// PermissionsFor returns the registry's permission set for a role. The result
// is a fresh copy; callers may not mutate the registry through it. An invalid
// role yields the empty set (fail closed).
func PermissionsFor(role Role) map[Permission]struct{} {
	set := make(map[Permission]struct{})
	if role == RoleAdministrator {
		for _, p := range AllPermissions {
			set[p] = struct{}{}
		}
		return set
	}
	for _, p := range rolePermissions[role] {
		set[p] = struct{}{}
	}
	return set
}
