package tunable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupsDefBuildNumeric(t *testing.T) {
	def := 100.0
	defs := GroupsDef{
		"resources": GroupDef{
			Cost: 5,
			Params: map[string]TunableDef{
				"memory_mb": {
					Type:             TypeInteger,
					Default:          &def,
					Range:            []float64{64, 4096},
					QuantizationBins: 8,
					Log:              true,
				},
			},
		},
	}
	g, err := defs.Build()
	require.NoError(t, err)
	tun, ok := g.Lookup("memory_mb")
	require.True(t, ok)
	assert.Equal(t, int64(100), tun.Default.AsInt())
	assert.Equal(t, 8, tun.Quantization.Bins)
}

func TestGroupsDefBuildCategorical(t *testing.T) {
	defs := GroupsDef{
		"compression": GroupDef{
			Cost: 1,
			Params: map[string]TunableDef{
				"codec": {
					Type:       TypeCategorical,
					DefaultCat: "gzip",
					Values:     []string{"gzip", "zstd", "none"},
				},
			},
		},
	}
	g, err := defs.Build()
	require.NoError(t, err)
	tun, ok := g.Lookup("codec")
	require.True(t, ok)
	assert.Equal(t, "gzip", tun.Default.AsCategorical())
}

func TestGroupsDefBuildRejectsMissingNumericDefault(t *testing.T) {
	defs := GroupsDef{
		"g": GroupDef{Params: map[string]TunableDef{
			"x": {Type: TypeFloat, Range: []float64{0, 1}},
		}},
	}
	_, err := defs.Build()
	assert.Error(t, err)
}

func TestGroupsDefBuildRejectsBadRangeLength(t *testing.T) {
	def := 1.0
	defs := GroupsDef{
		"g": GroupDef{Params: map[string]TunableDef{
			"x": {Type: TypeFloat, Default: &def, Range: []float64{0}},
		}},
	}
	_, err := defs.Build()
	assert.Error(t, err)
}

func TestGroupsDefBuildWithSpecialValues(t *testing.T) {
	def := 0.0
	rw := 0.5
	defs := GroupsDef{
		"g": GroupDef{Params: map[string]TunableDef{
			"x": {
				Type: TypeFloat, Default: &def, Range: []float64{0, 100},
				Special: []float64{0}, SpecialWeights: []float64{0.5}, RangeWeight: &rw,
			},
		}},
	}
	g, err := defs.Build()
	require.NoError(t, err)
	tun, _ := g.Lookup("x")
	require.Len(t, tun.Special, 1)
	assert.Equal(t, 0.5, tun.Special[0].Weight)
}

func TestDefinitionsRoundTrips(t *testing.T) {
	original, err := NewGroups(NewCovariantGroup("resources", 5, mustTunable(t, "replicas", 3, 1, 10)))
	require.NoError(t, err)

	defs := Definitions(original)
	rebuilt, err := defs.Build()
	require.NoError(t, err)

	tun, ok := rebuilt.Lookup("replicas")
	require.True(t, ok)
	assert.Equal(t, int64(3), tun.Default.AsInt())
	assert.Equal(t, 1.0, tun.Range.Lo)
	assert.Equal(t, 10.0, tun.Range.Hi)
}
