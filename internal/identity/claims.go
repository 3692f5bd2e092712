package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/helpdesk/internal/permissions"
)

// ErrInvalidIdentity marks claims that are structurally malformed. Callers treat it as an
// authentication failure, never as an authorization denial.
var ErrInvalidIdentity = errors.New("identity: invalid identity")

// Role is the coarse privilege tier of an actor.
type Role string

// Roles ordered from most to least privileged.
const (
	RoleGlobalAdmin Role = "GLOBAL_ADMIN"
	RoleTenantAdmin Role = "TENANT_ADMIN"
	RoleAgent       Role = "AGENT"
	RoleUser        Role = "USER"
)

// Roles returns every role, most privileged first.
func Roles() []Role {
	return []Role{RoleGlobalAdmin, RoleTenantAdmin, RoleAgent, RoleUser}
}

// ParseRole normalises and validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidIdentity, raw)
	}
	return role, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Rank orders roles for coarse comparisons; zero means unknown.
func (r Role) Rank() int {
	switch r {
	case RoleGlobalAdmin:
		return 4
	case RoleTenantAdmin:
		return 3
	case RoleAgent:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// IsAdmin reports whether r is one of the administrative tiers.
func (r Role) IsAdmin() bool {
	return r == RoleGlobalAdmin || r == RoleTenantAdmin
}

// Claims is the verified actor descriptor for a single request.
type Claims struct {
	ActorID     string
	Role        Role
	TenantID    *string
	Permissions *permissions.Matrix
}

// Validate enforces the structural invariants of a claims object.
func (c Claims) Validate() error {
	if strings.TrimSpace(c.ActorID) == "" {
		return fmt.Errorf("%w: actor id required", ErrInvalidIdentity)
	}
	if !c.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidIdentity, c.Role)
	}
	if c.TenantID != nil && strings.TrimSpace(*c.TenantID) == "" {
		return fmt.Errorf("%w: blank tenant id", ErrInvalidIdentity)
	}
	if c.Role != RoleGlobalAdmin && c.TenantID == nil {
		return fmt.Errorf("%w: role %s requires a tenant", ErrInvalidIdentity, c.Role)
	}
	return nil
}

// Tenant returns the tenant id and whether one is present.
func (c Claims) Tenant() (string, bool) {
	if c.TenantID == nil {
		return "", false
	}
	return *c.TenantID, true
}

// Capabilities returns the effective override set. Only agents carry overrides.
func (c Claims) Capabilities() permissions.Matrix {
	if c.Role != RoleAgent || c.Permissions == nil {
		return permissions.Matrix{}
	}
	return *c.Permissions
}

// TenantRef is a small helper for building optional tenant ids.
func TenantRef(id string) *string {
	return &id
}
