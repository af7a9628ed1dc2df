// Package commands assembles the benchtune CLI's subcommands, grounded on
// the teacher's cli/internal/commands package's NewRootCommand/mapError
// shape, stripped to the two subcommands this system actually has — there
// is no cluster to authorize, no remote experiments API to log into, and
// no generator/export pipeline to drive.
package commands

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/benchtune/benchtune/cli/internal/commander"
	"github.com/benchtune/benchtune/cli/internal/commands/run"
	"github.com/benchtune/benchtune/cli/internal/commands/version"
)

// NewRootCommand creates the top-level "benchtune" command.
func NewRootCommand(log logr.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "benchtune",
		Short:             "Autonomous benchmark-driven configuration optimizer",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	rootCmd.AddCommand(run.NewCommand(&run.Options{Log: log}))
	rootCmd.AddCommand(version.NewCommand(&version.Options{}))

	commander.MapErrors(rootCmd, mapError)
	return rootCmd
}

// mapError intercepts errors returned by commands before they are reported.
func mapError(err error) error {
	var e *exec.ExitError
	if errors.As(err, &e) && !e.Success() && len(e.Stderr) > 0 {
		return fmt.Errorf("%w\n%s", err, string(e.Stderr))
	}
	return err
}
