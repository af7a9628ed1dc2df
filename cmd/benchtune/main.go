// Command benchtune runs the autonomous benchmark-driven configuration
// optimizer, grounded on the teacher's cli/main.go entrypoint, stripped of
// its OAuth2 HTTP-client context and user-agent plumbing — this CLI talks
// to no remote API.
package main

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benchtune/benchtune/cli/internal/commands"
)

func init() {
	cobra.EnableCommandSorting = false
}

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = zl.Sync() }()
	log := zapr.NewLogger(zl)

	cmd := commands.NewRootCommand(log)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var e *exec.ExitError
		if errors.As(err, &e) && !e.Success() {
			os.Exit(e.ExitCode())
		}
		os.Exit(1)
	}
}
