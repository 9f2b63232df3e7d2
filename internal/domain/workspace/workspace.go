// Package workspace defines workspace membership, the isolation unit that owns
// custom domains.
package workspace

import "time"

// Role is a member's role within a workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManageDomains reports whether the role may change domain configuration.
func (r Role) CanManageDomains() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Membership links a user to a workspace.
type Membership struct {
	WorkspaceID string    `json:"workspace_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}
