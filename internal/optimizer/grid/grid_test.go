package grid

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
		Range:   &tunable.Range{Lo: 1, Hi: 3},
	})
	require.NoError(t, err)
	mode, err := tunable.New(tunable.Tunable{
		Name:    "mode",
		Type:    tunable.TypeCategorical,
		Default: tunable.CatValue("a"),
		Values:  []string{"a", "b"},
	})
	require.NoError(t, err)
	g, err := tunable.NewGroups(tunable.NewCovariantGroup("sizing", 1, replicas, mode))
	require.NoError(t, err)
	return g
}

func TestSuggestServesDefaultsFirst(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:          base,
		Objectives:        objective.Map{"latency_ms": objective.Min},
		MaxIterations:     100,
		StartWithDefaults: true,
	})
	assert.True(t, o.Suggest().IsDefaults())
}

func TestSuggestEnumeratesFullProductWithoutRepeats(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:      base,
		Objectives:    objective.Map{"latency_ms": objective.Min},
		MaxIterations: 6,
	})

	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		seen[o.Suggest().CanonicalString()] = true
	}
	// 3 replica values * 2 modes = 6 distinct configurations.
	assert.Len(t, seen, 6)
}

func TestSuggestWrapsAfterExhaustingProduct(t *testing.T) {
	base := testTunables(t)
	o := New(Config{
		Tunables:      base,
		Objectives:    objective.Map{"latency_ms": objective.Min},
		MaxIterations: 20,
	})

	first := make([]string, 6)
	for i := range first {
		first[i] = o.Suggest().CanonicalString()
	}
	wrapped := o.Suggest().CanonicalString()
	assert.Equal(t, first[0], wrapped)
}

func TestNotConvergedStopsAtIterationCap(t *testing.T) {
	base := testTunables(t)
	o := New(Config{Tunables: base, Objectives: objective.Map{"latency_ms": objective.Min}, MaxIterations: 1})
	require.True(t, o.NotConverged())
	o.Suggest()
	assert.False(t, o.NotConverged())
}

func TestRegisterTracksBestObservation(t *testing.T) {
	base := testTunables(t)
	o := New(Config{Tunables: base, Objectives: objective.Map{"latency_ms": objective.Min}, MaxIterations: 10})

	worse := base.Clone()
	better := base.Clone()
	_, err := o.Register(worse, status.Succeeded, objective.ScoreMap{"latency_ms": 500})
	require.NoError(t, err)
	_, err = o.Register(better, status.Succeeded, objective.ScoreMap{"latency_ms": 10})
	require.NoError(t, err)

	score, _, ok := o.GetBestObservation()
	require.True(t, ok)
	assert.Equal(t, 10.0, score["latency_ms"])
}
