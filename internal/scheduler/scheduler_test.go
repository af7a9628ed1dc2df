package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtune/benchtune/internal/environment"
	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/optimizer/random"
	"github.com/benchtune/benchtune/internal/runner"
	"github.com/benchtune/benchtune/internal/storage"
	"github.com/benchtune/benchtune/internal/tunable"
)

func testTunables(t *testing.T) *tunable.Groups {
	t.Helper()
	tun, err := tunable.New(tunable.Tunable{
		Name: "replicas", Type: tunable.TypeInteger,
		Default: tunable.IntValue(3), Range: &tunable.Range{Lo: 1, Hi: 10},
	})
	require.NoError(t, err)
	g, err := tunable.NewGroups(tunable.NewCovariantGroup("resources", 1, tun))
	require.NoError(t, err)
	return g
}

func newScheduler(t *testing.T, store storage.Storage, numRunners, repeatCount, maxTrials int) *Scheduler {
	t.Helper()
	tunables := testTunables(t)
	opt := random.New(random.Config{
		Tunables: tunables, Objectives: objective.Map{"score": objective.Max},
		MaxIterations: 1000, StartWithDefaults: true,
	})
	runners := make([]*runner.Runner, numRunners)
	for i := range runners {
		runners[i] = runner.New(environment.NewMock(environment.MockConfig{Seed: -1}), logr.Discard())
	}
	return New(Config{
		Storage:      store,
		Optimizer:    opt,
		Runners:      runners,
		Experiment:   storage.ExperimentParams{ID: "exp-1", Tunables: tunables, Objectives: objective.Map{"score": objective.Max}},
		Tunables:     tunables,
		RepeatCount:  repeatCount,
		MaxTrials:    maxTrials,
		TrialTimeout: time.Minute,
		Log:          logr.Discard(),
	})
}

func TestRunSeedsDefaultsThenDrivesUntilMaxTrials(t *testing.T) {
	store := storage.NewMemory()
	s := newScheduler(t, store, 2, 2, 5)

	err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, s.trialCount)
}

func TestRunSchedulesRepeatTrialsSharingOneConfig(t *testing.T) {
	store := storage.NewMemory()
	s := newScheduler(t, store, 1, 3, 4) // 1 seed (repeat count does not apply to the seed) + 3 repeats of one suggestion

	err := s.Run(context.Background())
	require.NoError(t, err)

	exp, err := store.CreateOrResumeExperiment(context.Background(), s.expParams)
	require.NoError(t, err)
	res, err := store.Load(context.Background(), exp, 0)
	require.NoError(t, err)
	require.Len(t, res.IDs, 4)

	// The three repeat trials (after the seed) must share one config.
	repeatConfig := res.Configs[1].CanonicalString()
	for _, cfg := range res.Configs[2:] {
		assert.Equal(t, repeatConfig, cfg.CanonicalString())
	}
}

func TestRunLeavesNoPendingTrials(t *testing.T) {
	store := storage.NewMemory()
	s := newScheduler(t, store, 2, 1, 4)

	err := s.Run(context.Background())
	require.NoError(t, err)

	exp, err := store.CreateOrResumeExperiment(context.Background(), s.expParams)
	require.NoError(t, err)
	pending, err := store.PendingTrials(context.Background(), exp, time.Now().UTC(), true)
	require.NoError(t, err)
	assert.Empty(t, pending) // every trial ran to completion against the mock environment
}

func TestNotDoneHonorsMaxTrialsAndConvergence(t *testing.T) {
	store := storage.NewMemory()
	s := newScheduler(t, store, 1, 1, 2)
	s.exp = &storage.Experiment{ID: "exp-1"}

	assert.True(t, s.notDone())
	s.trialCount = 2
	assert.False(t, s.notDone())
}

func TestConfigTunablesReconstructsPendingTrialAssignment(t *testing.T) {
	store := storage.NewMemory()
	tunables := testTunables(t)
	exp, err := store.CreateOrResumeExperiment(context.Background(), storage.ExperimentParams{
		ID: "exp-1", Tunables: tunables, Objectives: objective.Map{"score": objective.Max},
	})
	require.NoError(t, err)

	changed := tunables.Clone()
	require.NoError(t, changed.Assign(map[string]tunable.Value{"replicas": tunable.IntValue(7)}))
	tr, err := store.NewTrial(context.Background(), exp, changed, nil, nil)
	require.NoError(t, err)

	got, err := store.ConfigTunables(context.Background(), exp, tr.ConfigID)
	require.NoError(t, err)
	assert.Equal(t, changed.CanonicalString(), got.CanonicalString())
}
