// Package actors owns the persisted actor record: its role, home tenant and agent
// permission overrides. It is the source every request's claims are rebuilt from.
package actors

import (
	"errors"
	"time"

	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/permissions"
)

var (
	// ErrNotFound is returned when no actor matches within the caller's scope.
	ErrNotFound = errors.New("actors: not found")
	// ErrNotAgent is returned when permission overrides target a non-agent account.
	ErrNotAgent = errors.New("actors: permission overrides only apply to agents")
)

// Actor represents a persisted account.
type Actor struct {
	ID          string             `json:"id"`
	TenantID    *string            `json:"tenantId,omitempty"`
	Email       string             `json:"email"`
	Role        identity.Role      `json:"role"`
	Permissions permissions.Matrix `json:"permissions"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Claims derives the identity claims for a request made by the actor.
func (a Actor) Claims() identity.Claims {
	claims := identity.Claims{ActorID: a.ID, Role: a.Role}
	if a.TenantID != nil {
		claims.TenantID = identity.TenantRef(*a.TenantID)
	}
	if a.Role == identity.RoleAgent {
		matrix := a.Permissions
		claims.Permissions = &matrix
	}
	return claims
}
