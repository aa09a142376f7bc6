package authz

// Role is one of the fixed application roles.
type Role string

const (
	RoleUser         Role = "user"
	RoleFamilyMember Role = "family_member"
	RoleSupport      Role = "support"
	RoleAdmin        Role = "admin"
	RoleSuperAdmin   Role = "super_admin"
)

// Roles lists every known role.
var Roles = []Role{RoleUser, RoleFamilyMember, RoleSupport, RoleAdmin, RoleSuperAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Action is an operation on a resource. ActionManage matches every action.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Kind is a resource type.
type Kind string

const (
	KindProfile       Kind = "Profile"
	KindFinancialData Kind = "FinancialData"
	KindSettings      Kind = "Settings"
	KindAuditLog      Kind = "AuditLog"
	KindNotification  Kind = "Notification"
	// KindAll is only valid inside rules and matches every kind.
	KindAll Kind = "all"
)

// Permission is the level granted by a share entry.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// Share grants another user access to a resource.
type Share struct {
	UserID     string     `json:"userId"`
	Permission Permission `json:"permission"`
}

// Resource describes the object being accessed. UserID is the owner; it is
// empty for kinds without an owner such as AuditLog.
type Resource struct {
	Kind       Kind
	ID         string
	UserID     string
	SharedWith []Share
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}
