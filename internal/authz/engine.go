package authz

import (
	"context"
	"log/slog"

	"github.com/noah-isme/helpdesk/internal/identity"
)

// Observer receives every decision outcome, typically a metrics collector.
type Observer interface {
	ObserveDecision(action string, allowed bool, reason string)
}

// Engine wraps Decide with logging and metrics. It keeps no per-actor state, so every call
// is recomputed from its inputs.
type Engine struct {
	logger   *slog.Logger
	observer Observer
}

// NewEngine constructs an Engine. Both collaborators are optional.
func NewEngine(logger *slog.Logger, observer Observer) *Engine {
	return &Engine{logger: logger, observer: observer}
}

// Decide evaluates the action and records the outcome.
func (e *Engine) Decide(ctx context.Context, claims identity.Claims, action Action, resource Resource) Decision {
	decision := Decide(claims, action, resource)
	if e == nil {
		return decision
	}
	if e.observer != nil {
		e.observer.ObserveDecision(string(action), decision.Allowed, string(decision.Reason))
	}
	if !decision.Allowed && e.logger != nil {
		e.logger.InfoContext(ctx, "authz denied",
			slog.String("action", string(action)),
			slog.String("reason", string(decision.Reason)),
			slog.String("actor", claims.ActorID),
			slog.String("kind", resource.Kind),
		)
	}
	return decision
}

// Authorize is Decide reduced to an error for handler code.
func (e *Engine) Authorize(ctx context.Context, claims identity.Claims, action Action, resource Resource) error {
	return e.Decide(ctx, claims, action, resource).Err()
}
