package authz

import (
	"errors"
	"fmt"

	"github.com/noah-isme/helpdesk/internal/identity"
)

// Denial sentinels. InvalidIdentity is reported with identity.ErrInvalidIdentity.
var (
	ErrTenantMismatch    = errors.New("authz: tenant mismatch")
	ErrRoleInsufficient  = errors.New("authz: role insufficient")
	ErrCapabilityMissing = errors.New("authz: capability missing")
	ErrNotOwner          = errors.New("authz: not owner")
)

// Reason is the category attached to a decision.
type Reason string

// Decision reasons.
const (
	ReasonNone              Reason = ""
	ReasonInvalidIdentity   Reason = "InvalidIdentity"
	ReasonTenantMismatch    Reason = "TenantMismatch"
	ReasonRoleInsufficient  Reason = "RoleInsufficient"
	ReasonCapabilityMissing Reason = "CapabilityMissing"
	ReasonNotOwner          Reason = "NotOwner"
)

func (r Reason) sentinel() error {
	switch r {
	case ReasonInvalidIdentity:
		return identity.ErrInvalidIdentity
	case ReasonTenantMismatch:
		return ErrTenantMismatch
	case ReasonRoleInsufficient:
		return ErrRoleInsufficient
	case ReasonCapabilityMissing:
		return ErrCapabilityMissing
	case ReasonNotOwner:
		return ErrNotOwner
	default:
		return nil
	}
}

// Resource describes the target of a decision.
type Resource struct {
	// OwnerTenantID is nil only while a tenant is being provisioned.
	OwnerTenantID   *string
	OwnerActorID    string
	AssigneeActorID string
	// TargetRole is the role of the actor being managed, for user administration actions.
	TargetRole identity.Role
	// Internal marks staff-only content such as internal comments.
	Internal bool
	Kind     string
	ID       string
}

// Decision is the outcome of evaluating an action.
type Decision struct {
	Action  Action
	Allowed bool
	Reason  Reason
}

// Err converts a denial into an error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Action: d.Action, Reason: d.Reason}
}

// DeniedError carries the denial reason and matches the reason sentinel with errors.Is.
type DeniedError struct {
	Action Action
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authz: %s denied: %s", e.Action, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return e.Reason.sentinel()
}

func allow(action Action) Decision {
	return Decision{Action: action, Allowed: true}
}

func deny(action Action, reason Reason) Decision {
	return Decision{Action: action, Reason: reason}
}

// Decide evaluates action for claims against resource. The checks run in a fixed order and
// the first denial wins:
//
//  1. malformed claims
//  2. cross-tenant guard (only GLOBAL_ADMIN is exempt)
//  3. role floor
//  4. agent capability path and administrative target guard
//  5. internal content and user ownership
func Decide(claims identity.Claims, action Action, resource Resource) Decision {
	if err := claims.Validate(); err != nil {
		return deny(action, ReasonInvalidIdentity)
	}

	if claims.Role != identity.RoleGlobalAdmin && resource.OwnerTenantID != nil {
		if tenant, _ := claims.Tenant(); *resource.OwnerTenantID != tenant {
			return deny(action, ReasonTenantMismatch)
		}
	}

	rule, ok := rules[action]
	if !ok {
		return deny(action, ReasonRoleInsufficient)
	}
	qualifies := rule.allows(claims.Role)
	agentPath := claims.Role == identity.RoleAgent && rule.Capability != ""
	if !qualifies && !agentPath {
		return deny(action, ReasonRoleInsufficient)
	}

	if !qualifies {
		own := rule.OwnerBypass && ownsOrAssigned(claims.ActorID, resource)
		if !own && !claims.Capabilities().Has(rule.Capability) {
			return deny(action, ReasonCapabilityMissing)
		}
	}
	if rule.TargetGuard && (!resource.TargetRole.Valid() || !outranksTarget(claims.Role, resource.TargetRole)) {
		return deny(action, ReasonRoleInsufficient)
	}

	if claims.Role == identity.RoleUser {
		if resource.Internal {
			return deny(action, ReasonRoleInsufficient)
		}
		if rule.Ownership && (resource.OwnerActorID == "" || resource.OwnerActorID != claims.ActorID) {
			return deny(action, ReasonNotOwner)
		}
	}

	return allow(action)
}

func ownsOrAssigned(actorID string, resource Resource) bool {
	if resource.OwnerActorID != "" && resource.OwnerActorID == actorID {
		return true
	}
	return resource.AssigneeActorID != "" && resource.AssigneeActorID == actorID
}

// outranksTarget keeps agents away from admin accounts and tenant admins away from global admins.
func outranksTarget(actor, target identity.Role) bool {
	switch actor {
	case identity.RoleGlobalAdmin:
		return true
	case identity.RoleTenantAdmin:
		return target != identity.RoleGlobalAdmin
	case identity.RoleAgent:
		return !target.IsAdmin()
	default:
		return false
	}
}
