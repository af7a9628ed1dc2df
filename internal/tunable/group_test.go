package tunable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTunable(t *testing.T, name string, def int64, lo, hi float64) *Tunable {
	t.Helper()
	return mustNew(t, Tunable{Name: name, Type: TypeInteger, Default: IntValue(def), Range: &Range{Lo: lo, Hi: hi}})
}

func TestCovariantGroupStartsDirty(t *testing.T) {
	g := NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 1, 1, 10))
	assert.True(t, g.Dirty())
	assert.Equal(t, 5, g.EffectiveCost())
}

func TestCovariantGroupResetClearsCost(t *testing.T) {
	g := NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 1, 1, 10))
	g.Reset()
	assert.False(t, g.Dirty())
	assert.Equal(t, 0, g.EffectiveCost())
}

func TestCovariantGroupAssignMarksDirtyOnlyOnChange(t *testing.T) {
	g := NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 1, 1, 10))
	g.Reset()

	require.NoError(t, g.Assign("replicas", IntValue(1)))
	assert.False(t, g.Dirty(), "assigning the same value must not dirty the group")

	require.NoError(t, g.Assign("replicas", IntValue(4)))
	assert.True(t, g.Dirty())
}

func TestCovariantGroupAssignUnknownTunable(t *testing.T) {
	g := NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 1, 1, 10))
	err := g.Assign("nope", IntValue(1))
	assert.Error(t, err)
}

func TestCovariantGroupIsDefaults(t *testing.T) {
	g := NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 1, 1, 10))
	assert.True(t, g.IsDefaults())
	require.NoError(t, g.Assign("replicas", IntValue(2)))
	assert.False(t, g.IsDefaults())
}

func TestCovariantGroupRestoreDefaultsClearsDirty(t *testing.T) {
	g := NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 1, 1, 10))
	require.NoError(t, g.Assign("replicas", IntValue(2)))
	g.RestoreDefaults()
	assert.True(t, g.IsDefaults())
	assert.False(t, g.Dirty())
}

func TestCovariantGroupCloneIsIndependent(t *testing.T) {
	g := NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 1, 1, 10))
	g.Reset()
	clone := g.clone()
	require.NoError(t, clone.Assign("replicas", IntValue(9)))
	assert.True(t, g.IsDefaults())
	assert.False(t, clone.IsDefaults())
}
