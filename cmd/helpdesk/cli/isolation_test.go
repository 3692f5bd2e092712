package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/helpdesk/internal/isolation"
)

type recordingExec struct {
	statements []string
	failOn     string
}

func (r *recordingExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if r.failOn != "" && strings.Contains(sql, r.failOn) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	r.statements = append(r.statements, sql)
	return pgconn.NewCommandTag("ALTER TABLE"), nil
}

type stubInspector struct {
	policies map[string]isolation.TablePolicy
	err      error
}

func (s stubInspector) InspectTable(ctx context.Context, table string) (isolation.TablePolicy, error) {
	if s.err != nil {
		return isolation.TablePolicy{}, s.err
	}
	return s.policies[table], nil
}

func enforced(table string) isolation.TablePolicy {
	return isolation.TablePolicy{Table: table, Exists: true, RLSEnabled: true, RLSForced: true, HasPolicy: true}
}

func TestProvisionCommandAppliesSchemaThenPolicies(t *testing.T) {
	exec := &recordingExec{}
	c, err := NewIsolationCLI(exec, stubInspector{}, []string{"tickets"})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.ProvisionCommand(context.Background(), IsolationOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})

	require.Equal(t, 0, code)
	require.Len(t, exec.statements, 1+len(isolation.PolicyStatements("tickets")))
	assert.Contains(t, exec.statements[0], "CREATE TABLE IF NOT EXISTS")
	assert.Contains(t, exec.statements[len(exec.statements)-1], "CREATE POLICY tenant_isolation")
	assert.Contains(t, stdout.String(), "provisioned 1 tables")
}

func TestProvisionCommandReportsFailure(t *testing.T) {
	exec := &recordingExec{failOn: "FORCE ROW LEVEL SECURITY"}
	c, err := NewIsolationCLI(exec, stubInspector{}, []string{"tickets"})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := c.ProvisionCommand(context.Background(), IsolationOptions{Stdout: new(bytes.Buffer), Stderr: stderr})

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "permission denied")
}

func TestVerifyCommandJSONHealthy(t *testing.T) {
	inspector := stubInspector{policies: map[string]isolation.TablePolicy{
		"tickets": enforced("tickets"),
		"assets":  enforced("assets"),
	}}
	c, err := NewIsolationCLI(&recordingExec{}, inspector, []string{"tickets", "assets"})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.VerifyCommand(context.Background(), IsolationOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})

	require.Equal(t, 0, code)
	var summary IsolationSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.True(t, summary.OK)
	assert.Empty(t, summary.Failing)
	assert.Len(t, summary.Tables, 2)
}

func TestVerifyCommandFailingTable(t *testing.T) {
	inspector := stubInspector{policies: map[string]isolation.TablePolicy{
		"tickets": enforced("tickets"),
		"assets":  {Table: "assets", Exists: true, RLSEnabled: true},
	}}
	c, err := NewIsolationCLI(&recordingExec{}, inspector, []string{"tickets", "assets"})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.VerifyCommand(context.Background(), IsolationOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "tenant isolation missing on: assets")
}

func TestVerifyCommandInspectorError(t *testing.T) {
	c, err := NewIsolationCLI(&recordingExec{}, stubInspector{err: errors.New("connection refused")}, nil)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := c.VerifyCommand(context.Background(), IsolationOptions{Stdout: new(bytes.Buffer), Stderr: stderr})

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "connection refused")
}

func TestNewIsolationCLIRequiresDatabase(t *testing.T) {
	_, err := NewIsolationCLI(nil, nil, nil)
	assert.Error(t, err)
}

func TestIsolationCommandVerifyExitCode(t *testing.T) {
	inspector := stubInspector{policies: map[string]isolation.TablePolicy{}}
	released := false
	cmd := NewIsolationCommand(func(ctx context.Context) (*IsolationCLI, func(), error) {
		c, err := NewIsolationCLI(&recordingExec{}, inspector, []string{"tickets"})
		return c, func() { released = true }, err
	})
	stdout := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"verify", "--json"})

	err := cmd.Execute()

	var exit *ExitCodeError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	assert.True(t, released)
	assert.Contains(t, stdout.String(), `"ok":false`)
}
