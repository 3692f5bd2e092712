package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ExitCodeError carries a non-zero exit status out of a cobra command.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Opener connects to the database and returns the CLI plus a release func.
type Opener func(ctx context.Context) (*IsolationCLI, func(), error)

// NewIsolationCommand builds the `isolation` command tree.
func NewIsolationCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isolation",
		Short: "Tenant row level security tooling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	provision := &cobra.Command{
		Use:           "provision",
		Short:         "Create tenant tables and attach the isolation policy",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, open, func(ctx context.Context, c *IsolationCLI, opts IsolationOptions) int {
				return c.ProvisionCommand(ctx, opts)
			})
		},
	}

	verify := &cobra.Command{
		Use:           "verify",
		Short:         "Check that every tenant table fails closed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, open, func(ctx context.Context, c *IsolationCLI, opts IsolationOptions) int {
				return c.VerifyCommand(ctx, opts)
			})
		},
	}
	verify.Flags().Bool("json", false, "Print the report as JSON")

	cmd.AddCommand(provision, verify)
	return cmd
}

func run(cmd *cobra.Command, open Opener, fn func(context.Context, *IsolationCLI, IsolationOptions) int) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, release, err := open(ctx)
	if err != nil {
		return fmt.Errorf("isolation: %w", err)
	}
	defer release()

	opts := IsolationOptions{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	if flag := cmd.Flags().Lookup("json"); flag != nil {
		opts.JSONOutput, _ = cmd.Flags().GetBool("json")
	}
	if code := fn(ctx, c, opts); code != 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}
