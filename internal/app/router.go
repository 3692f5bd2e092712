package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	actorshttp "github.com/noah-isme/helpdesk/internal/actors/http"
	audithttp "github.com/noah-isme/helpdesk/internal/audit/http"
	authzhttp "github.com/noah-isme/helpdesk/internal/authz/http"
	isolationhttp "github.com/noah-isme/helpdesk/internal/isolation/http"
	"github.com/noah-isme/helpdesk/internal/observability"
	"github.com/noah-isme/helpdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions SessionResolver
	Claims   ClaimsResolver

	AuthzHandler     *authzhttp.Handler
	AuditHandler     *audithttp.Handler
	ActorsHandler    *actorshttp.Handler
	IsolationHandler *isolationhttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with helpdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	cookieName := ""
	if params.Config != nil {
		cookieName = params.Config.SessionCookie
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(params.Sessions, params.Claims, cookieName, params.Logger))
		if params.AuthzHandler != nil {
			params.AuthzHandler.MountRoutes(r)
		}
		if params.ActorsHandler != nil {
			params.ActorsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.IsolationHandler != nil {
			params.IsolationHandler.MountRoutes(r)
		}
	})

	return r
}
