package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/observability"
	"github.com/noah-isme/helpdesk/internal/platform/httpx"
	"github.com/noah-isme/helpdesk/internal/session"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the helpdesk middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	perMinute := 600
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		perMinute = cfg.Config.RateLimitPerMinute
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// SessionResolver maps a session token to an actor id.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// ClaimsResolver rebuilds the claims of an actor.
type ClaimsResolver interface {
	Load(ctx context.Context, actorID string) (identity.Claims, error)
}

// Authenticate resolves the caller's claims from a bearer token or the session cookie and
// stores them on the request. Requests without valid claims never reach the handlers.
func Authenticate(sessions SessionResolver, claims ClaimsResolver, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, cookieName)
			if token == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			actorID, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					logger.Error("resolve session", slog.Any("error", err))
					httpx.RespondError(w, err)
					return
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			resolved, err := claims.Load(r.Context(), actorID)
			if err != nil {
				if !errors.Is(err, identity.ErrInvalidIdentity) {
					logger.Error("load claims", slog.Any("error", err))
				} else {
					logger.Warn("rejected identity", slog.String("actor", actorID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if err := resolved.Validate(); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.ContextWithClaims(r.Context(), resolved)))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
