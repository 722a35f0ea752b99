package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleResident      = "resident"
	RoleEstateManager = "estate_manager"
	RoleFinance       = "finance"
	RoleSuperAdmin    = "super_admin"
	RoleOpsOperator   = "ops_operator" // hidden role for internal support tooling
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleOpsOperator }
