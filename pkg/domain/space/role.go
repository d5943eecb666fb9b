package space

// Role represents a user's role within a space. Platform-level administration
// is an attribute of the user, not of the membership, and is checked separately.
type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
)

// IsValid checks if the role is valid.
func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleManager:
		return true
	}
	return false
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// CanAdjudicate checks if this role can approve or reject join requests.
func (r Role) CanAdjudicate() bool {
	return r == RoleManager
}

// CanInvite checks if this role can create and deactivate invites.
func (r Role) CanInvite() bool {
	return r == RoleManager
}

// CanModerate checks if this role can block, unblock, and remove members.
func (r Role) CanModerate() bool {
	return r == RoleManager
}

// ParseRole parses a string to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}
