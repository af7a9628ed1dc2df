// Package run implements `benchtune run`: load the root config plus any
// --globals/--tunable-values overlays, build storage, an optimizer, and a
// pool of trial runners, and drive internal/scheduler's loop to completion
// (spec.md §6 "CLI surface (minimal)"), grounded on the teacher's
// cli/internal/commands/run package's Options/NewCommand shape, stripped of
// its bubbletea TUI and Kubernetes-application generation (this system
// drives an existing tunable space against Environments, it does not derive
// one from a cluster's live workloads).
package run

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/benchtune/benchtune/cli/internal/commander"
	"github.com/benchtune/benchtune/internal/config"
	"github.com/benchtune/benchtune/internal/environment"
	"github.com/benchtune/benchtune/internal/obs"
	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/optimizer"
	"github.com/benchtune/benchtune/internal/optimizer/bayesian"
	"github.com/benchtune/benchtune/internal/optimizer/grid"
	"github.com/benchtune/benchtune/internal/optimizer/random"
	"github.com/benchtune/benchtune/internal/runner"
	"github.com/benchtune/benchtune/internal/scheduler"
	"github.com/benchtune/benchtune/internal/storage"
	"github.com/benchtune/benchtune/internal/storage/sql"
	"github.com/benchtune/benchtune/internal/tunable"
	"github.com/benchtune/benchtune/internal/validation"
)

// Options holds the flags and collaborators for `run`.
type Options struct {
	commander.IOStreams
	Log logr.Logger

	ConfigFile         string
	GlobalsFiles       []string
	TunableValuesFiles []string
	RepeatCount        int
	MaxTrials          int
}

// NewCommand creates the `run` command.
func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark-driven configuration optimizer",

		PreRun: commander.StreamsPreRun(&o.IOStreams),
		RunE:   commander.WithContextE(o.run),
	}

	cmd.Flags().StringVar(&o.ConfigFile, "config", "", "path to the root scheduler `config`")
	cmd.Flags().StringArrayVar(&o.GlobalsFiles, "globals", nil, "path to a globals overlay `file` (repeatable)")
	cmd.Flags().StringArrayVar(&o.TunableValuesFiles, "tunable-values", nil, "path to a complete tunable-values seed `file` (repeatable; every tunable must be assigned)")
	cmd.Flags().IntVar(&o.RepeatCount, "trial-config-repeat-count", 0, "repeat each suggestion this many times (overrides the config value)")
	cmd.Flags().IntVar(&o.MaxTrials, "max-trials", 0, "stop after this many trials (overrides the config value; 0 means unbounded)")
	_ = cmd.MarkFlagFilename("config")
	_ = cmd.MarkFlagFilename("globals")
	_ = cmd.MarkFlagFilename("tunable-values")

	return cmd
}

func (o *Options) run(ctx context.Context) error {
	cfg, err := config.Load(o.ConfigFile, o.GlobalsFiles...)
	if err != nil {
		return err
	}

	var root rootConfig
	if err := cfg.Decode(&root); err != nil {
		return fmt.Errorf("run: decoding config: %w", err)
	}

	tunables, err := root.TunableParams.Build()
	if err != nil {
		return fmt.Errorf("run: building tunable space: %w", err)
	}

	for _, f := range o.TunableValuesFiles {
		values, err := config.TunableValues(f, tunables)
		if err != nil {
			return err
		}
		if err := validation.CheckAssignments(assignmentsOf(values), tunables); err != nil {
			return fmt.Errorf("run: %s is not a complete seed: %w", f, err)
		}
		if err := tunables.Assign(values); err != nil {
			return fmt.Errorf("run: applying %s: %w", f, err)
		}
	}

	directions, err := root.objectiveMap()
	if err != nil {
		return err
	}

	store, err := buildStorage(ctx, root.Storage)
	if err != nil {
		return err
	}

	opt, err := buildOptimizer(root.Optimizer, tunables, directions)
	if err != nil {
		return err
	}

	log := o.Log
	metrics := obs.NewMetrics()
	runners := buildRunners(root.Runners, log)

	repeat := root.TrialConfigRepeatCount
	if o.RepeatCount > 0 {
		repeat = o.RepeatCount
	}
	maxTrials := root.MaxTrials
	if o.MaxTrials > 0 {
		maxTrials = o.MaxTrials
	}

	s := scheduler.New(scheduler.Config{
		Storage:   store,
		Optimizer: opt,
		Runners:   runners,
		Experiment: storage.ExperimentParams{
			ID:            root.ExpID,
			Description:   root.Description,
			GitRepo:       root.GitRepo,
			GitCommit:     root.GitCommit,
			RootEnvConfig: root.RootEnvConfig,
			StartTrialID:  root.StartTrialID,
			Tunables:      tunables,
			Objectives:    directions,
		},
		Tunables:       tunables,
		RepeatCount:    repeat,
		MaxTrials:      maxTrials,
		TrialTimeout:   root.trialTimeout(),
		TeardownOnExit: true,
		Log:            log,
		Metrics:        metrics,
	})

	return s.Run(ctx)
}

func assignmentsOf(values map[string]tunable.Value) []validation.Assignment {
	out := make([]validation.Assignment, 0, len(values))
	for name, v := range values {
		out = append(out, validation.Assignment{Name: name, Value: v})
	}
	return out
}

func buildRunners(n int, log logr.Logger) []*runner.Runner {
	if n <= 0 {
		n = 1
	}
	runners := make([]*runner.Runner, n)
	for i := range runners {
		runners[i] = runner.New(environment.NewMock(environment.MockConfig{Seed: -1}), log)
	}
	return runners
}

func buildStorage(ctx context.Context, cfg storageConfig) (storage.Storage, error) {
	if cfg.DSN == "" {
		return storage.NewMemory(), nil
	}
	return sql.Open(ctx, cfg.DSN)
}

func buildOptimizer(cfg optimizerConfig, tunables *tunable.Groups, directions objective.Map) (optimizer.Optimizer, error) {
	switch cfg.Type {
	case "", "random":
		return random.New(random.Config{
			Tunables: tunables, Objectives: directions,
			Seed: cfg.Seed, MaxIterations: cfg.MaxIterations, StartWithDefaults: cfg.StartWithDefaults,
		}), nil
	case "grid":
		return grid.New(grid.Config{
			Tunables: tunables, Objectives: directions,
			MaxIterations: cfg.MaxIterations, StartWithDefaults: cfg.StartWithDefaults,
		}), nil
	case "bayesian":
		return bayesian.New(bayesian.Config{
			Tunables: tunables, Objectives: directions,
			Seed: cfg.Seed, MaxIterations: cfg.MaxIterations,
			MinSamples: cfg.MinSamples, RefitEvery: cfg.RefitEvery, NumCandidates: cfg.NumCandidates,
			ForestConfig: bayesian.ForestConfig{
				NumTrees: cfg.NumTrees, MinSamplesPerLeaf: cfg.MinSamplesPerLeaf,
				MaxDepth: cfg.MaxDepth, FeatureSubsample: cfg.FeatureSubsample,
			},
		}), nil
	default:
		return nil, fmt.Errorf("run: unknown optimizer type %q", cfg.Type)
	}
}
