// Package commander holds small Cobra helpers shared across the scheduler
// CLI's subcommands, grounded on the teacher's cli/internal/commander
// package but trimmed to the IOStreams/pre-run/error-mapping helpers that
// have no Kubernetes or SaaS-API coupling — this CLI has one experiment
// backend (internal/storage), not a cluster-side resource pipeline plus a
// remote API client.
package commander

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// IOStreams gives a command access to the standard process streams (or
// their test overrides).
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// SetStreams populates streams from cmd's own stream accessors.
func SetStreams(streams *IOStreams, cmd *cobra.Command) {
	streams.Out = cmd.OutOrStdout()
	streams.ErrOut = cmd.ErrOrStderr()
	streams.In = cmd.InOrStdin()
}

// StreamsPreRun returns a pre-run function that does nothing but capture
// streams, for commands with no other setup to do.
func StreamsPreRun(streams *IOStreams) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		SetStreams(streams, cmd)
	}
}

// WithContextE wraps a context-accepting function as a Cobra RunE.
func WithContextE(runE func(context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error { return runE(cmd.Context()) }
}

// WithoutArgsE wraps a no-argument function as a Cobra RunE.
func WithoutArgsE(runE func() error) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error { return runE() }
}

// AddPreRunE adds an error-returning pre-run function to cmd; any existing
// pre-run action runs after it, and only if it does not return an error.
func AddPreRunE(cmd *cobra.Command, preRunE func(*cobra.Command, []string) error) {
	if cmd.PreRunE == nil && cmd.PreRun == nil {
		cmd.PreRunE = preRunE
		return
	}

	oldPreRunE := cmd.PreRunE
	oldPreRun := cmd.PreRun

	cmd.PreRun = nil
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if err := preRunE(cmd, args); err != nil {
			return err
		}
		if oldPreRunE != nil {
			return oldPreRunE(cmd, args)
		}
		if oldPreRun != nil {
			oldPreRun(cmd, args)
		}
		return nil
	}
}

// MapErrors wraps every error-returning function on cmd (and its
// subcommands, recursively) so errors pass through f before Cobra sees them.
func MapErrors(cmd *cobra.Command, f func(error) error) {
	wrapE := func(runE func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
		if runE != nil {
			return func(cmd *cobra.Command, args []string) error {
				return f(runE(cmd, args))
			}
		}
		return nil
	}

	cmd.PersistentPreRunE = wrapE(cmd.PersistentPreRunE)
	cmd.PreRunE = wrapE(cmd.PreRunE)
	cmd.RunE = wrapE(cmd.RunE)
	cmd.PostRunE = wrapE(cmd.PostRunE)
	cmd.PersistentPostRunE = wrapE(cmd.PersistentPostRunE)

	for _, c := range cmd.Commands() {
		MapErrors(c, f)
	}
}
