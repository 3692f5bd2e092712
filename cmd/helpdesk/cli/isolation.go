package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/noah-isme/helpdesk/internal/isolation"
	"github.com/noah-isme/helpdesk/internal/platform/db"
)

// IsolationCLI exposes the operator commands for tenant row level security.
type IsolationCLI struct {
	exec      isolation.Execer
	inspector isolation.Inspector
	tables    []string
}

// NewIsolationCLI constructs the helper. Tables default to every tenant-owned table.
func NewIsolationCLI(exec isolation.Execer, inspector isolation.Inspector, tables []string) (*IsolationCLI, error) {
	if exec == nil || inspector == nil {
		return nil, errors.New("isolation cli: database not configured")
	}
	if len(tables) == 0 {
		tables = isolation.TenantTables
	}
	return &IsolationCLI{exec: exec, inspector: inspector, tables: tables}, nil
}

// IsolationOptions controls command output.
type IsolationOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *IsolationOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// IsolationSummary is the JSON body printed by verify --json.
type IsolationSummary struct {
	OK      bool                    `json:"ok"`
	Tables  []isolation.TablePolicy `json:"tables"`
	Failing []string                `json:"failing"`
}

// ProvisionCommand applies the schema and attaches the isolation policy to every table.
func (c *IsolationCLI) ProvisionCommand(ctx context.Context, opts IsolationOptions) int {
	opts.defaults()
	if _, err := c.exec.Exec(ctx, db.Schema()); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "isolation provision: apply schema: %v\n", err)
		return 1
	}
	if err := isolation.Provision(ctx, c.exec, c.tables); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "isolation provision: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "provisioned %d tables\n", len(c.tables))
	return 0
}

// VerifyCommand inspects every table and exits non-zero when any table would not fail closed.
func (c *IsolationCLI) VerifyCommand(ctx context.Context, opts IsolationOptions) int {
	opts.defaults()
	report, err := isolation.Verify(ctx, c.inspector, c.tables)
	if err != nil && !errors.Is(err, isolation.ErrPolicyDisabled) {
		_, _ = fmt.Fprintf(opts.Stderr, "isolation verify: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		summary := IsolationSummary{OK: report.Healthy(), Tables: report.Tables, Failing: report.Failing}
		if summary.Failing == nil {
			summary.Failing = []string{}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "isolation verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, report)
	}
	if !report.Healthy() {
		return 1
	}
	return 0
}

func renderVerifyHuman(w io.Writer, report isolation.Report) {
	for _, policy := range report.Tables {
		status := "ok"
		if !policy.Enforced() {
			status = "FAILING"
		}
		_, _ = fmt.Fprintf(w, "%-20s %s\n", policy.Table, status)
	}
	if report.Healthy() {
		_, _ = fmt.Fprintln(w, "tenant isolation enforced on every table")
		return
	}
	_, _ = fmt.Fprintf(w, "tenant isolation missing on: %s\n", strings.Join(report.Failing, ", "))
}
