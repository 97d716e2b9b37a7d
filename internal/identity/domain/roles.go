package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Role is a capability tag carried on an authenticated user.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAssistant Role = "assistant"
	RoleEditor    Role = "editor"
	RoleClient    Role = "client"
)

// adminRoles may manage any appointment and the catalog.
var adminRoles = []Role{RoleOwner, RoleAssistant, RoleEditor}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleAssistant, RoleEditor, RoleClient:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Roles is a set of roles.
type Roles map[Role]struct{}

// NewRoles builds a role set.
func NewRoles(roles ...Role) Roles {
	set := make(Roles, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// ParseRoles builds a role set from names, ignoring unknown entries.
func ParseRoles(names []string) Roles {
	set := make(Roles, len(names))
	for _, name := range names {
		if r, err := ParseRole(name); err == nil {
			set[r] = struct{}{}
		}
	}
	return set
}

// Has reports whether r is in the set.
func (rs Roles) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

// HasAny reports whether any of roles is in the set.
func (rs Roles) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// Strings returns the role names in sorted order.
func (rs Roles) Strings() []string {
	out := make([]string, 0, len(rs))
	for r := range rs {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

// Actor is the caller of a use case. The zero value is an anonymous caller.
type Actor struct {
	UserID uuid.UUID
	Roles  Roles
}

// NewActor creates an authenticated actor.
func NewActor(userID uuid.UUID, roles ...Role) Actor {
	return Actor{UserID: userID, Roles: NewRoles(roles...)}
}

// SystemActor is used by background consumers acting on behalf of the practice.
func SystemActor() Actor {
	return Actor{Roles: NewRoles(RoleOwner)}
}

// IsAnonymous reports whether the caller presented no identity.
func (a Actor) IsAnonymous() bool {
	return a.UserID == uuid.Nil && len(a.Roles) == 0
}

// IsAdmin reports whether the caller holds any administrative role.
func (a Actor) IsAdmin() bool {
	return a.Roles.HasAny(adminRoles...)
}

// CanActFor reports whether the caller may act on a resource owned by clientID.
func (a Actor) CanActFor(clientID uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	return clientID != uuid.Nil && a.UserID == clientID
}
