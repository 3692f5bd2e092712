package actors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/isolation"
	"github.com/noah-isme/helpdesk/internal/permissions"
	"github.com/noah-isme/helpdesk/internal/platform/db"
	"github.com/noah-isme/helpdesk/internal/tenancy"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.Beginner
}

// NewRepository constructs a repository.
func NewRepository(beginner db.Beginner) *Repository {
	return &Repository{db: beginner}
}

// FindByID loads an actor under the system context. It serves claim resolution, which runs
// before any tenant is known, and target lookups that are authorized afterwards.
func (r *Repository) FindByID(ctx context.Context, id string) (Actor, error) {
	var actor Actor
	err := isolation.WithSystem(ctx, r.db, func(tx pgx.Tx) error {
		var (
			tenantID pgtype.Text
			role     string
			raw      []byte
		)
		err := tx.QueryRow(ctx,
			`SELECT id, tenant_id, email, role, permissions, updated_at FROM actors WHERE id = $1`, id,
		).Scan(&actor.ID, &tenantID, &actor.Email, &role, &raw, &actor.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("actors: find: %w", err)
		}
		if tenantID.Valid {
			actor.TenantID = identity.TenantRef(tenantID.String)
		}
		if actor.Role, err = identity.ParseRole(role); err != nil {
			return err
		}
		if actor.Permissions, err = permissions.Decode(raw); err != nil {
			return fmt.Errorf("actors: stored permissions for %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return Actor{}, err
	}
	return actor, nil
}

// UpdatePermissions stores the matrix for an agent visible under scope.
func (r *Repository) UpdatePermissions(ctx context.Context, scope tenancy.Predicate, id string, matrix permissions.Matrix) error {
	encoded, err := matrix.Encode()
	if err != nil {
		return err
	}
	where, args := tenancy.Conjoin("id = $1 AND role = $2", []any{id, string(identity.RoleAgent)}, scope, tenancy.DefaultColumn)
	args = append(args, encoded)
	query := fmt.Sprintf(`UPDATE actors SET permissions = $%d, updated_at = NOW() WHERE %s`, len(args), where)
	return isolation.WithTenant(ctx, r.db, scope, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("actors: update permissions: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
