package types

import "strings"

// Role is the lower-cased role claim of a connected user. The set of roles
// is open-ended: any non-empty claim value becomes a valid role (and a
// broadcast group of the same name), only RoleAdmin carries extra privileges.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleChef    Role = "chef"
	RoleMembre  Role = "membre"
	RoleUnknown Role = "unknown"
)

// ParseRole normalizes a raw role claim value. An empty or blank value maps
// to RoleUnknown, "member" is folded into RoleMembre (both spellings occur
// in tokens issued by the frontend).
func ParseRole(raw string) Role {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch r {
	case "":
		return RoleUnknown
	case "member":
		return RoleMembre
	}
	return Role(r)
}

// IsAdmin reports whether the role grants membership in the privileged
// admins group.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
