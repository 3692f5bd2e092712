package isolation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// ErrPolicyDisabled reports tenant-owned tables whose isolation policy is missing or off.
var ErrPolicyDisabled = errors.New("isolation: policy not enabled")

// TablePolicy is the observed row level security state of one table.
type TablePolicy struct {
	Table      string `json:"table"`
	Exists     bool   `json:"exists"`
	RLSEnabled bool   `json:"rlsEnabled"`
	RLSForced  bool   `json:"rlsForced"`
	HasPolicy  bool   `json:"hasPolicy"`
}

// Enforced reports whether the table fails closed for unscoped sessions.
func (p TablePolicy) Enforced() bool {
	return p.Exists && p.RLSEnabled && p.RLSForced && p.HasPolicy
}

// SessionBypassEntry is the failing entry reported when the connected role ignores row level
// security, which no table flag can compensate for.
const SessionBypassEntry = "session role bypasses row level security"

// Report summarises a verification run.
type Report struct {
	Tables        []TablePolicy `json:"tables"`
	SessionBypass bool          `json:"sessionBypass"`
	Failing       []string      `json:"failing"`
}

// Healthy reports whether every table enforces isolation.
func (r Report) Healthy() bool {
	return len(r.Failing) == 0
}

// Inspector reads the isolation state of a table.
type Inspector interface {
	InspectTable(ctx context.Context, table string) (TablePolicy, error)
}

// SessionInspector reports whether the connected role is exempt from row level security.
// Superusers and BYPASSRLS roles are, even on tables with FORCE ROW LEVEL SECURITY.
type SessionInspector interface {
	SessionBypassesRLS(ctx context.Context) (bool, error)
}

// Querier runs single-row queries; pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGInspector reads pg_class and pg_policies for the current schema.
type PGInspector struct {
	db Querier
}

// NewPGInspector constructs a PGInspector.
func NewPGInspector(db Querier) *PGInspector {
	return &PGInspector{db: db}
}

const inspectQuery = `
SELECT c.relrowsecurity,
       c.relforcerowsecurity,
       EXISTS (
           SELECT 1 FROM pg_policies p
           WHERE p.schemaname = n.nspname AND p.tablename = c.relname AND p.policyname = $2
       )
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = current_schema() AND c.relname = $1 AND c.relkind = 'r'`

// InspectTable implements Inspector.
func (i *PGInspector) InspectTable(ctx context.Context, table string) (TablePolicy, error) {
	policy := TablePolicy{Table: table}
	err := i.db.QueryRow(ctx, inspectQuery, table, PolicyName).Scan(&policy.RLSEnabled, &policy.RLSForced, &policy.HasPolicy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policy, nil
		}
		return TablePolicy{}, fmt.Errorf("isolation: inspect %s: %w", table, err)
	}
	policy.Exists = true
	return policy, nil
}

const sessionQuery = `SELECT rolsuper OR rolbypassrls FROM pg_roles WHERE rolname = current_user`

// SessionBypassesRLS implements SessionInspector.
func (i *PGInspector) SessionBypassesRLS(ctx context.Context) (bool, error) {
	var bypass bool
	if err := i.db.QueryRow(ctx, sessionQuery).Scan(&bypass); err != nil {
		return false, fmt.Errorf("isolation: inspect session role: %w", err)
	}
	return bypass, nil
}

// Verify inspects every table concurrently. It returns ErrPolicyDisabled, naming the failing
// tables, when any table would not fail closed or when the inspector can tell that the session
// role bypasses row level security; the report is populated either way.
func Verify(ctx context.Context, inspector Inspector, tables []string) (Report, error) {
	results := make([]TablePolicy, len(tables))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for idx, table := range tables {
		group.Go(func() error {
			policy, err := inspector.InspectTable(groupCtx, table)
			if err != nil {
				return err
			}
			policy.Table = table
			results[idx] = policy
			return nil
		})
	}
	var sessionBypass bool
	if session, ok := inspector.(SessionInspector); ok {
		group.Go(func() error {
			bypass, err := session.SessionBypassesRLS(groupCtx)
			sessionBypass = bypass
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Tables: results, SessionBypass: sessionBypass}
	for _, policy := range results {
		if !policy.Enforced() {
			report.Failing = append(report.Failing, policy.Table)
		}
	}
	sort.Strings(report.Failing)
	if sessionBypass {
		report.Failing = append([]string{SessionBypassEntry}, report.Failing...)
	}
	if !report.Healthy() {
		return report, fmt.Errorf("%w: %s", ErrPolicyDisabled, strings.Join(report.Failing, ", "))
	}
	return report, nil
}
