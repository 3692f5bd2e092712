package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/helpdesk/internal/isolation"
	"github.com/noah-isme/helpdesk/internal/platform/db"
	"github.com/noah-isme/helpdesk/internal/tenancy"
)

// PGSink appends records to audit_logs under the isolation context of the record tenant.
type PGSink struct {
	db db.Beginner
}

// NewPGSink constructs the postgres sink.
func NewPGSink(beginner db.Beginner) *PGSink {
	return &PGSink{db: beginner}
}

// Append inserts record. Tenantless records (tenant provisioning, global admin actions) are
// written under the system context; a blank tenant id counts as tenantless. Appending an id
// that already exists is a no-op.
func (s *PGSink) Append(ctx context.Context, record Record) error {
	meta := []byte("{}")
	if len(record.Metadata) > 0 {
		encoded, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("audit: encode metadata: %w", err)
		}
		meta = encoded
	}
	tenantID := record.TenantID
	if tenantID != nil && strings.TrimSpace(*tenantID) == "" {
		tenantID = nil
	}
	scope := tenancy.Unrestricted()
	if tenantID != nil {
		scope = tenancy.ForTenant(*tenantID)
	}
	return isolation.WithTenant(ctx, s.db, scope, func(tx pgx.Tx) error {
		// Redelivered jobs carry the same id; the first write wins.
		_, err := tx.Exec(ctx, `INSERT INTO audit_logs
	(id, tenant_id, actor_id, action, entity, entity_id, meta, source_ip, user_agent, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`,
			record.ID, tenantID, record.ActorID, string(record.Action),
			record.ResourceKind, record.ResourceID, meta,
			nullable(record.SourceIP), nullable(record.UserAgent), record.At,
		)
		if err != nil {
			return fmt.Errorf("audit: insert: %w", err)
		}
		return nil
	})
}

// PGRepository reads the audit timeline.
type PGRepository struct {
	db db.Beginner
}

// NewPGRepository constructs the timeline repository.
func NewPGRepository(beginner db.Beginner) *PGRepository {
	return &PGRepository{db: beginner}
}

// TimelineWindow returns rows matching q, newest first. The tenant predicate is conjoined to the
// SQL and mirrored by the row level security context of the transaction.
func (r *PGRepository) TimelineWindow(ctx context.Context, scope tenancy.Predicate, q WindowQuery) ([]TimelineRow, error) {
	query, args := timelineSQL(scope, q)
	var out []TimelineRow
	err := isolation.WithTenant(ctx, r.db, scope, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("audit: timeline query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				row      TimelineRow
				tenantID pgtype.Text
				sourceIP pgtype.Text
				meta     []byte
			)
			if err := rows.Scan(&row.At, &tenantID, &row.Actor, &row.Action, &row.Kind, &row.ResourceID, &sourceIP, &meta); err != nil {
				return fmt.Errorf("audit: timeline scan: %w", err)
			}
			row.TenantID = tenantID.String
			row.SourceIP = sourceIP.String
			if len(meta) > 0 {
				if err := json.Unmarshal(meta, &row.Metadata); err != nil {
					return fmt.Errorf("audit: timeline metadata: %w", err)
				}
				if len(row.Metadata) == 0 {
					row.Metadata = nil
				}
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func timelineSQL(scope tenancy.Predicate, q WindowQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(format string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at < $%d", q.To)
	}
	if q.Actor != "" {
		add("actor_id = $%d", q.Actor)
	}
	if q.Kind != "" {
		add("entity = $%d", q.Kind)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	where, args := tenancy.Conjoin(strings.Join(conds, " AND "), args, scope, tenancy.DefaultColumn)

	var b strings.Builder
	b.WriteString(`SELECT occurred_at, tenant_id, actor_id, action, entity, entity_id, source_ip, meta
FROM audit_logs
WHERE `)
	b.WriteString(where)
	b.WriteString("\nORDER BY occurred_at DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, "\nLIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
