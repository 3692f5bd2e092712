package actors

import (
	"context"
	"errors"

	"github.com/noah-isme/helpdesk/internal/audit"
	"github.com/noah-isme/helpdesk/internal/authz"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/permissions"
	"github.com/noah-isme/helpdesk/internal/tenancy"
)

// RepositoryPort defines data access methods for actors.
type RepositoryPort interface {
	Finder
	UpdatePermissions(ctx context.Context, scope tenancy.Predicate, id string, matrix permissions.Matrix) error
}

// Authorizer decides whether claims may perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, claims identity.Claims, action authz.Action, resource authz.Resource) error
}

// AuditRecorder receives state changes.
type AuditRecorder interface {
	Record(ctx context.Context, record audit.Record)
}

// Service handles actor administration.
type Service struct {
	repo  RepositoryPort
	authz Authorizer
	audit AuditRecorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authorizer Authorizer, recorder AuditRecorder) *Service {
	return &Service{repo: repo, authz: authorizer, audit: recorder}
}

// UpdatePermissions replaces the override matrix of an agent.
func (s *Service) UpdatePermissions(ctx context.Context, claims identity.Claims, targetID string, matrix permissions.Matrix, meta audit.RequestMeta) (Actor, error) {
	if err := claims.Validate(); err != nil {
		return Actor{}, err
	}
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return Actor{}, err
	}
	// Tenantless accounts are global admins; to a tenant-bound caller they do not exist.
	if target.TenantID == nil && claims.Role != identity.RoleGlobalAdmin {
		return Actor{}, ErrNotFound
	}
	err = s.authz.Authorize(ctx, claims, authz.ActionUserManagePermissions, authz.Resource{
		OwnerTenantID: target.TenantID,
		TargetRole:    target.Role,
		Kind:          "actor",
		ID:            target.ID,
	})
	if err != nil {
		return Actor{}, err
	}
	if target.Role != identity.RoleAgent {
		return Actor{}, ErrNotAgent
	}

	scope, err := tenancy.ScopeForRead(claims)
	if err != nil {
		return Actor{}, err
	}
	if err := s.repo.UpdatePermissions(ctx, scope, target.ID, matrix); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, err
	}

	before := target.Permissions
	target.Permissions = matrix
	if s.audit != nil {
		s.audit.Record(ctx, audit.Record{
			TenantID:     target.TenantID,
			ActorID:      claims.ActorID,
			Action:       audit.ActionUpdate,
			ResourceKind: "actor",
			ResourceID:   target.ID,
			Metadata: map[string]any{
				"changed": capabilityNames(before.Diff(matrix)),
				"before":  before,
				"after":   matrix,
			},
			SourceIP:  meta.SourceIP,
			UserAgent: meta.UserAgent,
		})
	}
	return target, nil
}

func capabilityNames(caps []permissions.Capability) []string {
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	return names
}
