package tunable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/benchtune/benchtune/internal/errkind"
)

func mustNew(t *testing.T, tun Tunable) *Tunable {
	t.Helper()
	out, err := New(tun)
	require.NoError(t, err)
	return out
}

func TestNewRejectsEmptyName(t *testing.T) {
	_, err := New(Tunable{Type: TypeInteger, Default: IntValue(1), Range: &Range{Lo: 0, Hi: 10}})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsBangInName(t *testing.T) {
	_, err := New(Tunable{Name: "bad!name", Type: TypeInteger, Default: IntValue(1), Range: &Range{Lo: 0, Hi: 10}})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewSetsCurrentToDefault(t *testing.T) {
	tun := mustNew(t, Tunable{
		Name: "replicas", Type: TypeInteger,
		Default: IntValue(3), Range: &Range{Lo: 1, Hi: 10},
	})
	assert.True(t, tun.Current.Equal(tun.Default))
}

func TestNewRejectsDefaultOutsideRange(t *testing.T) {
	_, err := New(Tunable{
		Name: "replicas", Type: TypeInteger,
		Default: IntValue(100), Range: &Range{Lo: 1, Hi: 10},
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsInvertedRange(t *testing.T) {
	_, err := New(Tunable{
		Name: "x", Type: TypeFloat,
		Default: FloatValue(1), Range: &Range{Lo: 10, Hi: 1},
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsLogWithNonPositiveLo(t *testing.T) {
	_, err := New(Tunable{
		Name: "x", Type: TypeFloat, Log: true,
		Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 10},
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsSpecialWithoutRangeWeight(t *testing.T) {
	_, err := New(Tunable{
		Name: "x", Type: TypeFloat,
		Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 10},
		Special: []SpecialValue{{Value: 0, Weight: 1}},
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsSpecialValueOutsideRange(t *testing.T) {
	rw := 1.0
	_, err := New(Tunable{
		Name: "x", Type: TypeFloat,
		Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 10},
		Special: []SpecialValue{{Value: 99, Weight: 1}}, RangeWeight: &rw,
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsCategoricalWithNumericFields(t *testing.T) {
	_, err := New(Tunable{
		Name: "x", Type: TypeCategorical,
		Default: CatValue("a"), Values: []string{"a", "b"},
		Range: &Range{Lo: 0, Hi: 1},
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsDuplicateCategories(t *testing.T) {
	_, err := New(Tunable{
		Name: "x", Type: TypeCategorical,
		Default: CatValue("a"), Values: []string{"a", "a"},
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestNewRejectsMismatchedCategoryWeights(t *testing.T) {
	_, err := New(Tunable{
		Name: "x", Type: TypeCategorical,
		Default: CatValue("a"), Values: []string{"a", "b"}, Weights: []float64{1},
	})
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestInDomain(t *testing.T) {
	tun := mustNew(t, Tunable{
		Name: "x", Type: TypeFloat,
		Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 10},
	})
	assert.True(t, tun.InDomain(FloatValue(5)))
	assert.False(t, tun.InDomain(FloatValue(11)))
	assert.False(t, tun.InDomain(CatValue("x")))
}

func TestCardinality(t *testing.T) {
	cat := mustNew(t, Tunable{Name: "c", Type: TypeCategorical, Default: CatValue("a"), Values: []string{"a", "b", "c"}})
	assert.Equal(t, 3.0, cat.Cardinality())

	integer := mustNew(t, Tunable{Name: "i", Type: TypeInteger, Default: IntValue(1), Range: &Range{Lo: 1, Hi: 10}})
	assert.Equal(t, 10.0, integer.Cardinality())

	unbounded := mustNew(t, Tunable{Name: "f", Type: TypeFloat, Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 10}})
	assert.True(t, unbounded.Cardinality() > 1e300)
}

func TestNormalize(t *testing.T) {
	tun := mustNew(t, Tunable{Name: "x", Type: TypeFloat, Default: FloatValue(0), Range: &Range{Lo: 0, Hi: 10}})
	assert.Equal(t, 0.5, tun.Normalize(FloatValue(5)))
	assert.Equal(t, 0.0, tun.Normalize(FloatValue(0)))
	assert.Equal(t, 1.0, tun.Normalize(FloatValue(10)))
}

func TestAssignCoercesIntegralFloat(t *testing.T) {
	tun := mustNew(t, Tunable{Name: "x", Type: TypeInteger, Default: IntValue(0), Range: &Range{Lo: 0, Hi: 10}})
	changed, err := tun.Assign(FloatValue(5))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(5), tun.Current.AsInt())
}

func TestAssignRejectsNonIntegralFloatForIntegerTunable(t *testing.T) {
	tun := mustNew(t, Tunable{Name: "x", Type: TypeInteger, Default: IntValue(0), Range: &Range{Lo: 0, Hi: 10}})
	_, err := tun.Assign(FloatValue(5.5))
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestAssignReportsNoChangeWhenValueIsIdentical(t *testing.T) {
	tun := mustNew(t, Tunable{Name: "x", Type: TypeInteger, Default: IntValue(3), Range: &Range{Lo: 0, Hi: 10}})
	changed, err := tun.Assign(IntValue(3))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAssignRejectsOutOfDomain(t *testing.T) {
	tun := mustNew(t, Tunable{Name: "x", Type: TypeInteger, Default: IntValue(0), Range: &Range{Lo: 0, Hi: 10}})
	_, err := tun.Assign(IntValue(99))
	assert.ErrorIs(t, err, errkind.Invalid)
}

func TestRestoreDefault(t *testing.T) {
	tun := mustNew(t, Tunable{Name: "x", Type: TypeInteger, Default: IntValue(3), Range: &Range{Lo: 0, Hi: 10}})
	_, err := tun.Assign(IntValue(7))
	require.NoError(t, err)
	tun.RestoreDefault()
	assert.True(t, tun.Current.Equal(IntValue(3)))
}

func TestCloneIsIndependent(t *testing.T) {
	tun := mustNew(t, Tunable{Name: "x", Type: TypeFloat, Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 10}})
	clone := tun.Clone()
	_, err := clone.Assign(FloatValue(9))
	require.NoError(t, err)
	assert.False(t, tun.Current.Equal(clone.Current))
}

func TestSampleStaysInDomain(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rw := 0.5
	tun := mustNew(t, Tunable{
		Name: "x", Type: TypeFloat, Log: true,
		Default: FloatValue(1), Range: &Range{Lo: 1, Hi: 1000},
		Quantization: &Quantization{Bins: 5},
		Special:      []SpecialValue{{Value: 1, Weight: 0.5}},
		RangeWeight:  &rw,
	})
	for i := 0; i < 200; i++ {
		v := tun.Sample(rng)
		assert.True(t, tun.InDomain(v))
	}
}

func TestSampleCategoricalRespectsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tun := mustNew(t, Tunable{
		Name: "c", Type: TypeCategorical,
		Default: CatValue("a"), Values: []string{"a", "b"}, Weights: []float64{0, 1},
	})
	for i := 0; i < 50; i++ {
		assert.Equal(t, "b", tun.Sample(rng).AsCategorical())
	}
}

func TestQuantizeSnapsToNearestBinCenter(t *testing.T) {
	tun := mustNew(t, Tunable{
		Name: "x", Type: TypeFloat,
		Default: FloatValue(0), Range: &Range{Lo: 0, Hi: 10},
		Quantization: &Quantization{Bins: 3}, // centers: 0, 5, 10
	})
	assert.Equal(t, 0.0, tun.quantize(1))
	assert.Equal(t, 5.0, tun.quantize(4))
	assert.Equal(t, 10.0, tun.quantize(9))
}

func TestEqualIgnoresDomainFields(t *testing.T) {
	a := mustNew(t, Tunable{Name: "x", Type: TypeFloat, Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 10}})
	b := mustNew(t, Tunable{Name: "x", Type: TypeFloat, Default: FloatValue(1), Range: &Range{Lo: 0, Hi: 999}})
	assert.True(t, a.Equal(b))
}
