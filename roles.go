package accounts

import "strings"

// RoleName is the closed set of roles an account can hold
type RoleName string

const (
	RoleAdmin     RoleName = "ADMIN"
	RoleCandidate RoleName = "CANDIDATE"
)

// RoleSet is a bit set of role memberships
type RoleSet uint8

const (
	roleBitAdmin RoleSet = 1 << iota
	roleBitCandidate
)

// IsValid checks if the role is one of the predefined roles
func (r RoleName) IsValid() bool {
	return r.bit() != 0
}

func (r RoleName) bit() RoleSet {
	switch r {
	case RoleAdmin:
		return roleBitAdmin
	case RoleCandidate:
		return roleBitCandidate
	default:
		return 0
	}
}

// AllRoles returns every enumerated role
func AllRoles() []RoleName {
	return []RoleName{RoleAdmin, RoleCandidate}
}

// ParseRole parses a role name. Matching is exact; "admin" is not ADMIN.
func ParseRole(s string) (RoleName, bool) {
	role := RoleName(strings.TrimSpace(s))
	return role, role.IsValid()
}

// NewRoleSet builds a set from role names, unknown names are ignored
func NewRoleSet(roles ...RoleName) RoleSet {
	var set RoleSet
	for _, r := range roles {
		set = set.Add(r)
	}
	return set
}

// Add returns a copy of the set including role
func (s RoleSet) Add(role RoleName) RoleSet {
	return s | role.bit()
}

// Remove returns a copy of the set without role
func (s RoleSet) Remove(role RoleName) RoleSet {
	return s &^ role.bit()
}

// Has reports membership, unknown roles are never held
func (s RoleSet) Has(role RoleName) bool {
	bit := role.bit()
	return bit != 0 && s&bit == bit
}

// Names lists the roles in the set in enumeration order
func (s RoleSet) Names() []RoleName {
	names := make([]RoleName, 0, len(AllRoles()))
	for _, r := range AllRoles() {
		if s.Has(r) {
			names = append(names, r)
		}
	}
	return names
}
