package tenancy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/helpdesk/internal/identity"
)

// ErrMissingTenantContext is returned when a create cannot be attributed to a tenant.
var ErrMissingTenantContext = errors.New("tenancy: missing tenant context")

// DefaultColumn is the tenant column every tenant-owned table carries.
const DefaultColumn = "tenant_id"

// Predicate is the mandatory read filter derived from claims.
// The zero value is restricted to nothing and therefore matches no tenant.
type Predicate struct {
	tenantID     string
	unrestricted bool
}

// Unrestricted returns the global-admin predicate.
func Unrestricted() Predicate {
	return Predicate{unrestricted: true}
}

// ForTenant restricts reads to a single tenant.
func ForTenant(tenantID string) Predicate {
	return Predicate{tenantID: tenantID}
}

// Unrestricted reports whether the predicate places no tenant restriction.
func (p Predicate) Unrestricted() bool {
	return p.unrestricted
}

// TenantID returns the tenant the predicate is bound to; empty when unrestricted.
func (p Predicate) TenantID() string {
	return p.tenantID
}

// Matches reports whether a row owned by tenantID is visible under p.
func (p Predicate) Matches(tenantID *string) bool {
	if p.unrestricted {
		return true
	}
	return tenantID != nil && p.tenantID != "" && *tenantID == p.tenantID
}

func (p Predicate) String() string {
	if p.unrestricted {
		return "unrestricted"
	}
	return fmt.Sprintf("tenant=%s", p.tenantID)
}

// SQL renders the predicate as a condition on column using placeholder $argIndex.
// An unrestricted predicate renders as TRUE with no arguments.
func (p Predicate) SQL(column string, argIndex int) (string, []any) {
	if p.unrestricted {
		return "TRUE", nil
	}
	if p.tenantID == "" {
		return "FALSE", nil
	}
	return fmt.Sprintf("%s = $%d", column, argIndex), []any{p.tenantID}
}

// ScopeForRead derives the predicate every read or list must conjoin.
func ScopeForRead(claims identity.Claims) (Predicate, error) {
	if err := claims.Validate(); err != nil {
		return Predicate{}, err
	}
	if claims.Role == identity.RoleGlobalAdmin {
		return Unrestricted(), nil
	}
	tenantID, _ := claims.Tenant()
	return ForTenant(tenantID), nil
}

// TenantForCreate picks the tenant stamped onto a new resource. An explicit tenant id is only
// legitimate in the tenant provisioning flow and must already have passed authorization. It is
// used verbatim; an id with surrounding whitespace is rejected rather than rewritten.
// A global admin without an explicit id fails rather than landing in an ambiguous tenant.
func TenantForCreate(claims identity.Claims, explicitTenantID *string) (string, error) {
	if err := claims.Validate(); err != nil {
		return "", err
	}
	if explicitTenantID != nil {
		explicit := *explicitTenantID
		if strings.TrimSpace(explicit) == "" {
			return "", fmt.Errorf("%w: blank explicit tenant id", ErrMissingTenantContext)
		}
		if strings.TrimSpace(explicit) != explicit {
			return "", fmt.Errorf("%w: explicit tenant id %q has surrounding whitespace", ErrMissingTenantContext, explicit)
		}
		return explicit, nil
	}
	if tenantID, ok := claims.Tenant(); ok {
		return tenantID, nil
	}
	return "", ErrMissingTenantContext
}

// Conjoin appends the predicate to a caller-built WHERE clause. Caller filters are kept in
// parentheses so that an OR inside them can never widen the tenant restriction.
func Conjoin(where string, args []any, p Predicate, column string) (string, []any) {
	if column == "" {
		column = DefaultColumn
	}
	cond, extra := p.SQL(column, len(args)+1)
	out := append(append([]any{}, args...), extra...)
	where = strings.TrimSpace(where)
	if where == "" {
		return cond, out
	}
	return fmt.Sprintf("(%s) AND %s", where, cond), out
}
