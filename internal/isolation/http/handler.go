package isolationhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/helpdesk/internal/authz"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/isolation"
	"github.com/noah-isme/helpdesk/internal/platform/httpx"
)

// Authorizer decides whether claims may perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, claims identity.Claims, action authz.Action, resource authz.Resource) error
}

// Handler serves the live isolation verification report.
type Handler struct {
	logger    *slog.Logger
	authz     Authorizer
	inspector isolation.Inspector
	tables    []string
}

// NewHandler constructs the handler. Empty tables means every tenant table.
func NewHandler(logger *slog.Logger, authorizer Authorizer, inspector isolation.Inspector, tables []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(tables) == 0 {
		tables = isolation.TenantTables
	}
	return &Handler{logger: logger, authz: authorizer, inspector: inspector, tables: tables}
}

// MountRoutes registers the isolation route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/isolation", h.report)
}

type reportResponse struct {
	Healthy bool `json:"healthy"`
	isolation.Report
}

// report answers 200 when every table fails closed and 503 otherwise, so external health
// checks can alert on it.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.ClaimsFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.authz.Authorize(r.Context(), claims, authz.ActionIsolationInspect, authz.Resource{Kind: "isolation"}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := isolation.Verify(r.Context(), h.inspector, h.tables)
	switch {
	case errors.Is(err, isolation.ErrPolicyDisabled):
		h.logger.Error("tenant isolation policy disabled", slog.Any("tables", report.Failing))
		httpx.JSON(w, http.StatusServiceUnavailable, reportResponse{Healthy: false, Report: report})
	case err != nil:
		h.logger.Error("verify isolation", slog.Any("error", err))
		httpx.RespondError(w, err)
	default:
		httpx.JSON(w, http.StatusOK, reportResponse{Healthy: true, Report: report})
	}
}
