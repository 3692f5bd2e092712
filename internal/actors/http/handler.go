package actorshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/helpdesk/internal/actors"
	"github.com/noah-isme/helpdesk/internal/audit"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/permissions"
	"github.com/noah-isme/helpdesk/internal/platform/httpx"
)

// PermissionService updates agent overrides.
type PermissionService interface {
	UpdatePermissions(ctx context.Context, claims identity.Claims, targetID string, matrix permissions.Matrix, meta audit.RequestMeta) (actors.Actor, error)
}

// Handler manages actor administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service PermissionService
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service PermissionService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers actor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/agents/{id}/permissions", h.updatePermissions)
}

type updatePermissionsRequest struct {
	Permissions *permissions.Matrix `json:"permissions" validate:"required"`
}

type actorResponse struct {
	ID          string             `json:"id"`
	TenantID    *string            `json:"tenantId,omitempty"`
	Role        identity.Role      `json:"role"`
	Permissions permissions.Matrix `json:"permissions"`
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	targetID := strings.TrimSpace(chi.URLParam(r, "id"))
	if targetID == "" {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req updatePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	actor, err := h.service.UpdatePermissions(r.Context(), claims, targetID, *req.Permissions, audit.MetaFromRequest(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, actorResponse{
		ID:          actor.ID,
		TenantID:    actor.TenantID,
		Role:        actor.Role,
		Permissions: actor.Permissions,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, actors.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, actors.ErrNotAgent):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "target is not an agent")
	default:
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("update permissions", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
