package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtune/benchtune/internal/tunable"
)

func testGroups(t *testing.T) *tunable.Groups {
	t.Helper()
	replicas, err := tunable.New(tunable.Tunable{
		Name: "replicas", Type: tunable.TypeInteger,
		Default: tunable.IntValue(3), Range: &tunable.Range{Lo: 1, Hi: 10},
	})
	require.NoError(t, err)
	mode, err := tunable.New(tunable.Tunable{
		Name: "mode", Type: tunable.TypeCategorical,
		Default: tunable.CatValue("a"), Values: []string{"a", "b"},
	})
	require.NoError(t, err)
	g, err := tunable.NewGroups(tunable.NewCovariantGroup("resources", 1, replicas, mode))
	require.NoError(t, err)
	return g
}

func TestCheckAssignmentsAcceptsACompleteValidList(t *testing.T) {
	err := CheckAssignments([]Assignment{
		{Name: "replicas", Value: tunable.IntValue(5)},
		{Name: "mode", Value: tunable.CatValue("b")},
	}, testGroups(t))
	assert.NoError(t, err)
}

func TestCheckAssignmentsReportsUnassigned(t *testing.T) {
	err := CheckAssignments([]Assignment{
		{Name: "replicas", Value: tunable.IntValue(5)},
	}, testGroups(t))
	require.Error(t, err)
	var aerr *AssignmentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []string{"mode"}, aerr.Unassigned)
}

func TestCheckAssignmentsReportsUndefined(t *testing.T) {
	err := CheckAssignments([]Assignment{
		{Name: "replicas", Value: tunable.IntValue(5)},
		{Name: "mode", Value: tunable.CatValue("b")},
		{Name: "nonexistent", Value: tunable.IntValue(1)},
	}, testGroups(t))
	require.Error(t, err)
	var aerr *AssignmentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []string{"nonexistent"}, aerr.Undefined)
}

func TestCheckAssignmentsReportsOutOfBounds(t *testing.T) {
	err := CheckAssignments([]Assignment{
		{Name: "replicas", Value: tunable.IntValue(99)},
		{Name: "mode", Value: tunable.CatValue("b")},
	}, testGroups(t))
	require.Error(t, err)
	var aerr *AssignmentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []string{"replicas"}, aerr.OutOfBounds)
}

func TestCheckAssignmentsReportsDuplicates(t *testing.T) {
	err := CheckAssignments([]Assignment{
		{Name: "replicas", Value: tunable.IntValue(5)},
		{Name: "replicas", Value: tunable.IntValue(6)},
		{Name: "mode", Value: tunable.CatValue("b")},
	}, testGroups(t))
	require.Error(t, err)
	var aerr *AssignmentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []string{"replicas"}, aerr.Duplicated)
}
