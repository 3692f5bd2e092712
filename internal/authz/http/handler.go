package authzhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/helpdesk/internal/authz"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/platform/httpx"
	"github.com/noah-isme/helpdesk/internal/tenancy"
)

// Decider evaluates actions for claims.
type Decider interface {
	Decide(ctx context.Context, claims identity.Claims, action authz.Action, resource authz.Resource) authz.Decision
	Authorize(ctx context.Context, claims identity.Claims, action authz.Action, resource authz.Resource) error
}

// Handler exposes the decision engine and tenant scoping to other services.
type Handler struct {
	logger  *slog.Logger
	decider Decider
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, decider Decider) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, decider: decider}
}

// MountRoutes registers the authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/decisions", h.decide)
	r.Get("/scope", h.scope)
	r.Post("/tenant-stamp", h.tenantStamp)
}

type resourceRequest struct {
	OwnerTenantID   *string `json:"ownerTenantId" validate:"omitnil,min=1"`
	OwnerActorID    string  `json:"ownerActorId"`
	AssigneeActorID string  `json:"assigneeActorId"`
	TargetRole      string  `json:"targetRole" validate:"omitempty,oneof=GLOBAL_ADMIN TENANT_ADMIN AGENT USER"`
	Internal        bool    `json:"internal"`
	Kind            string  `json:"kind" validate:"max=64"`
	ID              string  `json:"id" validate:"max=128"`
}

type decisionRequest struct {
	Action   string          `json:"action" validate:"required,max=64"`
	Resource resourceRequest `json:"resource"`
}

type decisionResponse struct {
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// decide reports the decision in the body. A denial is a successful answer, not an error.
func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	action := authz.Action(strings.TrimSpace(req.Action))
	decision := h.decider.Decide(r.Context(), claims, action, authz.Resource{
		OwnerTenantID:   req.Resource.OwnerTenantID,
		OwnerActorID:    req.Resource.OwnerActorID,
		AssigneeActorID: req.Resource.AssigneeActorID,
		TargetRole:      identity.Role(req.Resource.TargetRole),
		Internal:        req.Resource.Internal,
		Kind:            req.Resource.Kind,
		ID:              req.Resource.ID,
	})
	httpx.JSON(w, http.StatusOK, decisionResponse{
		Action:  string(decision.Action),
		Allowed: decision.Allowed,
		Reason:  string(decision.Reason),
	})
}

type scopeResponse struct {
	Unrestricted bool   `json:"unrestricted"`
	TenantID     string `json:"tenantId,omitempty"`
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	predicate, err := tenancy.ScopeForRead(claims)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, scopeResponse{
		Unrestricted: predicate.Unrestricted(),
		TenantID:     predicate.TenantID(),
	})
}

type tenantStampRequest struct {
	ExplicitTenantID *string `json:"explicitTenantId"`
}

type tenantStampResponse struct {
	TenantID string `json:"tenantId"`
}

// tenantStamp resolves the tenant a new resource belongs to. An explicit tenant other than the
// caller's own is only legitimate while provisioning, so it is decided as tenant.create first.
func (h *Handler) tenantStamp(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req tenantStampRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.ExplicitTenantID != nil {
		own, _ := claims.Tenant()
		if explicit := strings.TrimSpace(*req.ExplicitTenantID); explicit != "" && explicit != own {
			err := h.decider.Authorize(r.Context(), claims, authz.ActionTenantCreate, authz.Resource{
				OwnerTenantID: identity.TenantRef(explicit),
				Kind:          "tenant",
				ID:            explicit,
			})
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
		}
	}
	tenantID, err := tenancy.TenantForCreate(claims, req.ExplicitTenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenantStampResponse{TenantID: tenantID})
}
