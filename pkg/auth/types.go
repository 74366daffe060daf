package auth

import "time"

// RoleName identifies one of the fixed account roles
type RoleName string

const (
	RoleAdmin  RoleName = "admin"  // Full access to the account
	RoleMember RoleName = "member" // Manages own notes only
)

// Valid reports whether the role is one of the known roles
func (r RoleName) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Permission represents a single grantable action
type Permission string

const (
	PermissionNotesCreate   Permission = "notes:create"
	PermissionNotesRead     Permission = "notes:read"
	PermissionNotesUpdate   Permission = "notes:update"
	PermissionNotesDelete   Permission = "notes:delete"
	PermissionUsersInvite   Permission = "users:invite"
	PermissionUsersManage   Permission = "users:manage"
	PermissionBillingManage Permission = "billing:manage"
	PermissionAccountManage Permission = "account:manage"
)

// PermissionsFor resolves a role to its fixed permission set. Roles are a
// closed enumeration; unknown roles resolve to no permissions.
func PermissionsFor(role RoleName) []Permission {
	switch role {
	case RoleAdmin:
		return []Permission{
			PermissionNotesCreate, PermissionNotesRead,
			PermissionNotesUpdate, PermissionNotesDelete,
			PermissionUsersInvite, PermissionUsersManage,
			PermissionBillingManage, PermissionAccountManage,
		}
	case RoleMember:
		return []Permission{
			PermissionNotesCreate, PermissionNotesRead,
			PermissionNotesUpdate, PermissionNotesDelete,
		}
	default:
		return nil
	}
}

// HasPermission reports whether the role's permission set contains perm
func HasPermission(role RoleName, perm Permission) bool {
	for _, p := range PermissionsFor(role) {
		if p == perm {
			return true
		}
	}
	return false
}

// User represents a user within an account
type User struct {
	ID                  int64      `json:"id"`
	AccountID           int64      `json:"account_id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"` // Never expose
	Name                string     `json:"name"`
	Role                RoleName   `json:"role"`
	IsActive            bool       `json:"is_active"`
	IsDeleted           bool       `json:"is_deleted"`
	TokensInvalidBefore time.Time  `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP         string     `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Role represents a role document scoped to an account. One row exists per
// (account, role-name) pair, shared by all users carrying that role.
type Role struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Name      RoleName  `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Context holds the authenticated identity bound to a request
type Context struct {
	User   *User
	Claims *Claims
}

// HasRole checks the authenticated user's role
func (c *Context) HasRole(role RoleName) bool {
	return c.User != nil && c.User.Role == role
}

// HasPermission checks the authenticated user's permission set
func (c *Context) HasPermission(perm Permission) bool {
	if c.User == nil {
		return false
	}
	return HasPermission(c.User.Role, perm)
}

// IsAdmin reports whether the authenticated user holds the admin role
func (c *Context) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}
