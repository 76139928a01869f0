package models

import "strings"

// Role is a global or project-scoped role
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleReviewer       Role = "reviewer"
	RoleAnnotator      Role = "annotator"
)

// Rank orders roles admin(4) > project_manager(3) > reviewer(2) > annotator(1).
// Unknown roles rank 0 and satisfy no requirement.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 4
	case RoleProjectManager:
		return 3
	case RoleReviewer:
		return 2
	case RoleAnnotator:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r ranks at or above required
func (r Role) AtLeast(required Role) bool {
	return r.Rank() > 0 && r.Rank() >= required.Rank()
}

// CanReview reports whether a project membership with this role grants review rights
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleProjectManager
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// ParseRole parses a role name case-insensitively
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}
