package isolation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/helpdesk/internal/platform/db"
	"github.com/noah-isme/helpdesk/internal/tenancy"
)

// ErrNoTenantContext is returned when a unit of work is opened without a usable scope.
var ErrNoTenantContext = errors.New("isolation: no tenant context")

// WithTenant runs fn inside a transaction whose row level security context matches scope.
// The settings are transaction-local, so the pooled connection carries nothing once the
// transaction ends and the next borrower starts from an unset (deny all) context.
func WithTenant(ctx context.Context, beginner db.Beginner, scope tenancy.Predicate, fn func(pgx.Tx) error) error {
	tenantID, bypass, err := settings(scope)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, beginner, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"SELECT set_config($1, $2, true), set_config($3, $4, true)",
			SettingTenant, tenantID, SettingBypass, bypass,
		); err != nil {
			return fmt.Errorf("isolation: set session context: %w", err)
		}
		return fn(tx)
	})
}

// WithSystem runs fn with the bypass context. It is reserved for identity lookups and
// operator tooling that run before any tenant is known.
func WithSystem(ctx context.Context, beginner db.Beginner, fn func(pgx.Tx) error) error {
	return WithTenant(ctx, beginner, tenancy.Unrestricted(), fn)
}

func settings(scope tenancy.Predicate) (tenantID, bypass string, err error) {
	if scope.Unrestricted() {
		return "", "on", nil
	}
	if scope.TenantID() == "" {
		return "", "", ErrNoTenantContext
	}
	return scope.TenantID(), "off", nil
}
