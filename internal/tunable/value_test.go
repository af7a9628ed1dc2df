package tunable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueAccessors(t *testing.T) {
	assert.Equal(t, int64(7), IntValue(7).AsInt())
	assert.Equal(t, 3.5, FloatValue(3.5).AsFloat())
	assert.Equal(t, "gzip", CatValue("gzip").AsCategorical())
}

func TestValueAccessorsPanicOnKindMismatch(t *testing.T) {
	assert.Panics(t, func() { IntValue(1).AsFloat() })
	assert.Panics(t, func() { FloatValue(1).AsCategorical() })
	assert.Panics(t, func() { CatValue("x").AsInt() })
}

func TestValueNumeric(t *testing.T) {
	f, ok := IntValue(4).Numeric()
	assert.True(t, ok)
	assert.Equal(t, 4.0, f)

	f, ok = FloatValue(4.5).Numeric()
	assert.True(t, ok)
	assert.Equal(t, 4.5, f)

	_, ok = CatValue("x").Numeric()
	assert.False(t, ok)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, IntValue(1).Equal(IntValue(1)))
	assert.False(t, IntValue(1).Equal(IntValue(2)))
	assert.False(t, IntValue(1).Equal(FloatValue(1)))
	assert.True(t, CatValue("a").Equal(CatValue("a")))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "7", IntValue(7).String())
	assert.Equal(t, "gzip", CatValue("gzip").String())
}
