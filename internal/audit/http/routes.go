package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/noah-isme/helpdesk/internal/identity"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the timeline and CSV export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Get("/audit", h.handleTimeline)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/audit/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if claims, ok := identity.ClaimsFromContext(r.Context()); ok && claims.ActorID != "" {
		return "actor:" + claims.ActorID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
