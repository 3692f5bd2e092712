// Package isolation mirrors the tenant read predicate as PostgreSQL row level security, so a
// query that forgets its tenant filter still cannot see another tenant's rows.
package isolation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Session settings read by the row level security policy.
const (
	SettingTenant = "app.tenant_id"
	SettingBypass = "app.bypass_tenant"
	PolicyName    = "tenant_isolation"
)

// TenantTables lists every table holding tenant-owned rows.
var TenantTables = []string{
	"actors",
	"queues",
	"categories",
	"tickets",
	"ticket_comments",
	"assets",
	"webhooks",
	"automation_rules",
	"audit_logs",
}

// Execer runs statements; pgxpool.Pool, pgx.Conn and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// policyExpression admits a row only when the session is bypassed for a global admin or the
// row tenant equals the session tenant. An unset session compares against NULL and admits nothing.
func policyExpression() string {
	return fmt.Sprintf(
		"current_setting('%s', true) = 'on' OR tenant_id = NULLIF(current_setting('%s', true), '')",
		SettingBypass, SettingTenant,
	)
}

// PolicyStatements returns the idempotent DDL attaching the isolation policy to table.
// FORCE keeps the policy active for the table owner as well.
func PolicyStatements(table string) []string {
	ident := quoteIdent(table)
	expr := policyExpression()
	return []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", ident),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", ident),
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", PolicyName, ident),
		fmt.Sprintf("CREATE POLICY %s ON %s USING (%s) WITH CHECK (%s)", PolicyName, ident, expr, expr),
	}
}

// Provision attaches the isolation policy to every table.
func Provision(ctx context.Context, exec Execer, tables []string) error {
	for _, table := range tables {
		for _, stmt := range PolicyStatements(table) {
			if _, err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("isolation: provision %s: %w", table, err)
			}
		}
	}
	return nil
}

func quoteIdent(name string) string {
	out := make([]rune, 0, len(name)+2)
	out = append(out, '"')
	for _, r := range name {
		if r == '"' {
			out = append(out, '"')
		}
		out = append(out, r)
	}
	return string(append(out, '"'))
}
