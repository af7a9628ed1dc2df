// Package version implements `benchtune version`, grounded on the teacher's
// cli/internal/commands/version package.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchtune/benchtune/cli/internal/commander"
	"github.com/benchtune/benchtune/internal/version"
)

// Options holds the collaborators for `version`.
type Options struct {
	commander.IOStreams
}

// NewCommand creates the `version` command.
func NewCommand(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the benchtune version",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE: commander.WithoutArgsE(func() error {
			_, err := fmt.Fprintln(o.Out, version.GetInfo().String())
			return err
		}),
	}
}
