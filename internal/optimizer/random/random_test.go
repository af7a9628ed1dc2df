package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

func testTunables(t *testing.T) *tunable.Groups {
	t.Helper()
	replicas, err := tunable.New(tunable.Tunable{
		Name:    "replicas",
		Type:    tunable.TypeInteger,
		Default: tunable.IntValue(1),
		Range:   &tunable.Range{Lo: 1, Hi: 10},
	})
	require.NoError(t, err)
	g, err := tunable.NewGroups(tunable.NewCovariantGroup("sizing", 1, replicas))
	require.NoError(t, err)
	return g
}

func TestSuggestServesDefaultsFirstWhenConfigured(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:          base,
		Objectives:        objective.Map{"latency_ms": objective.Min},
		Seed:              1,
		MaxIterations:     5,
		StartWithDefaults: true,
	})

	first := o.Suggest()
	assert.True(t, first.IsDefaults())
}

func TestSuggestSamplesIndependentlyAfterDefaults(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:      base,
		Objectives:    objective.Map{"latency_ms": objective.Min},
		Seed:          42,
		MaxIterations: 100,
	})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[o.Suggest().CanonicalString()] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestNotConvergedStopsAtIterationCap(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:      base,
		Objectives:    objective.Map{"latency_ms": objective.Min},
		Seed:          1,
		MaxIterations: 2,
	})
	require.True(t, o.NotConverged())
	o.Suggest()
	require.True(t, o.NotConverged())
	o.Suggest()
	assert.False(t, o.NotConverged())
}

func TestRegisterTracksBestObservation(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:      base,
		Objectives:    objective.Map{"latency_ms": objective.Min},
		MaxIterations: 10,
	})

	worse := base.Clone()
	better := base.Clone()
	_, err := o.Register(worse, status.Succeeded, objective.ScoreMap{"latency_ms": 500})
	require.NoError(t, err)
	_, err = o.Register(better, status.Succeeded, objective.ScoreMap{"latency_ms": 10})
	require.NoError(t, err)

	score, tunables, ok := o.GetBestObservation()
	require.True(t, ok)
	assert.Equal(t, 10.0, score["latency_ms"])
	assert.Equal(t, better.CanonicalString(), tunables.CanonicalString())
}

func TestRegisterRejectsScoreWithoutSuccess(t *testing.T) {
	base := testTunables(t)
	o := New(Config{Tunables: base, Objectives: objective.Map{"latency_ms": objective.Min}})
	_, err := o.Register(base.Clone(), status.Failed, objective.ScoreMap{"latency_ms": 1})
	assert.Error(t, err)
}

func TestBulkRegisterDisablesStartWithDefaults(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:          base,
		Objectives:        objective.Map{"latency_ms": objective.Min},
		StartWithDefaults: true,
	})

	loaded := o.BulkRegister(
		[]*tunable.Groups{base.Clone()},
		[]objective.ScoreMap{{"latency_ms": 5}},
		[]status.Status{status.Succeeded},
	)
	require.True(t, loaded)
	assert.True(t, o.seenDefault)
}
