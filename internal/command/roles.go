package command

import "sort"

// RoleSet is a set of role names. Role sets are computed once per dispatch
// from the caller's identity and never mutated by the engine. A nil RoleSet
// attached to a command node means the node is unrestricted.
type RoleSet map[string]struct{}

// NewRoleSet builds a RoleSet from role names.
func NewRoleSet(names ...string) RoleSet {
	s := make(RoleSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether the set contains the given role.
func (s RoleSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Intersects reports whether the two sets share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	if len(s) > len(other) {
		s, other = other, s
	}
	for name := range s {
		if _, ok := other[name]; ok {
			return true
		}
	}
	return false
}

// Names returns the roles in sorted order, for stable log output.
func (s RoleSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
