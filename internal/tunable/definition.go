package tunable

import (
	"fmt"

	"github.com/benchtune/benchtune/internal/errkind"
)

// TunableDef is the external, deserialized form of a single tunable, as it
// appears nested under a GroupDef in a config file (spec.md §6 logical
// schema). Fields apply to the int/float domain or the categorical domain
// depending on Type; the irrelevant half is left zero.
type TunableDef struct {
	Type    Type                   `json:"type" yaml:"type"`
	Meta    map[string]string      `json:"meta,omitempty" yaml:"meta,omitempty"`

	// Numeric (Type == TypeInteger || TypeFloat).
	Default         *float64            `json:"default,omitempty" yaml:"default,omitempty"`
	Range           []float64           `json:"range,omitempty" yaml:"range,omitempty"` // [lo, hi]
	QuantizationBins int                `json:"quantization_bins,omitempty" yaml:"quantization_bins,omitempty"`
	Log             bool                `json:"log,omitempty" yaml:"log,omitempty"`
	Special         []float64           `json:"special,omitempty" yaml:"special,omitempty"`
	SpecialWeights  []float64           `json:"special_weights,omitempty" yaml:"special_weights,omitempty"`
	RangeWeight     *float64            `json:"range_weight,omitempty" yaml:"range_weight,omitempty"`
	Distribution    string              `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	DistributionParams map[string]float64 `json:"distribution_params,omitempty" yaml:"distribution_params,omitempty"`

	// Categorical (Type == TypeCategorical).
	DefaultCat     string    `json:"default_cat,omitempty" yaml:"default_cat,omitempty"`
	Values         []string  `json:"values,omitempty" yaml:"values,omitempty"`
	ValuesWeights  []float64 `json:"values_weights,omitempty" yaml:"values_weights,omitempty"`
}

// GroupDef is the external form of a covariant group: its cost and the named
// tunables it owns.
type GroupDef struct {
	Cost   int                   `json:"cost" yaml:"cost"`
	Params map[string]TunableDef `json:"params" yaml:"params"`
}

// GroupsDef is the top-level external form: group name to GroupDef, the
// shape found under a tunable_params config section (spec.md §6).
type GroupsDef map[string]GroupDef

// Build converts the deserialized definitions into a validated Groups.
func (defs GroupsDef) Build() (*Groups, error) {
	groups := make([]*CovariantGroup, 0, len(defs))
	for groupName, gd := range defs {
		tunables := make([]*Tunable, 0, len(gd.Params))
		for name, td := range gd.Params {
			t, err := td.build(name)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", groupName, err)
			}
			tunables = append(tunables, t)
		}
		groups = append(groups, NewCovariantGroup(groupName, gd.Cost, sortedTunables(tunables)...))
	}
	return NewGroups(groups...)
}

// sortedTunables orders tunables by name for deterministic group iteration
// independent of the source map's random iteration order.
func sortedTunables(ts []*Tunable) []*Tunable {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Name < ts[j-1].Name; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
	return ts
}

func (td TunableDef) build(name string) (*Tunable, error) {
	switch td.Type {
	case TypeInteger, TypeFloat:
		return td.buildNumeric(name)
	case TypeCategorical:
		return td.buildCategorical(name)
	default:
		return nil, fmt.Errorf("%w: tunable %q has unknown type %q", errkind.Invalid, name, td.Type)
	}
}

func (td TunableDef) buildNumeric(name string) (*Tunable, error) {
	if td.Default == nil {
		return nil, fmt.Errorf("%w: tunable %q missing default", errkind.Invalid, name)
	}
	if len(td.Range) != 2 {
		return nil, fmt.Errorf("%w: tunable %q range must have exactly 2 elements [lo, hi]", errkind.Invalid, name)
	}
	def := Value{Kind: KindFloat, Flt: *td.Default}
	if td.Type == TypeInteger {
		def = Value{Kind: KindInt, Int: int64(*td.Default)}
	}
	t := Tunable{
		Name:    name,
		Type:    td.Type,
		Default: def,
		Range:   &Range{Lo: td.Range[0], Hi: td.Range[1]},
		Log:     td.Log,
		Values:  nil,
		RangeWeight: td.RangeWeight,
		Distribution: Distribution{Name: td.Distribution, Params: td.DistributionParams},
	}
	if td.QuantizationBins > 0 {
		t.Quantization = &Quantization{Bins: td.QuantizationBins}
	}
	if len(td.Special) > 0 {
		if len(td.Special) != len(td.SpecialWeights) {
			return nil, fmt.Errorf("%w: tunable %q special and special_weights must have equal length", errkind.Invalid, name)
		}
		for i, v := range td.Special {
			t.Special = append(t.Special, SpecialValue{Value: v, Weight: td.SpecialWeights[i]})
		}
	}
	return New(t)
}

func (td TunableDef) buildCategorical(name string) (*Tunable, error) {
	if td.DefaultCat == "" {
		return nil, fmt.Errorf("%w: tunable %q missing default_cat", errkind.Invalid, name)
	}
	return New(Tunable{
		Name:    name,
		Type:    TypeCategorical,
		Default: CatValue(td.DefaultCat),
		Values:  td.Values,
		Weights: td.ValuesWeights,
	})
}

// Definitions renders a Groups back into its external deserialized form
// (defaults and domain, not current values — used when persisting an
// experiment's tunable-space definition alongside its trials).
func Definitions(g *Groups) GroupsDef {
	out := make(GroupsDef, len(g.byGroup))
	for _, groupName := range g.order {
		cg := g.byGroup[groupName]
		params := make(map[string]TunableDef, len(cg.Order))
		for _, name := range cg.Order {
			t, _ := cg.Get(name)
			params[name] = definitionOf(t)
		}
		out[groupName] = GroupDef{Cost: cg.Cost, Params: params}
	}
	return out
}

func definitionOf(t *Tunable) TunableDef {
	td := TunableDef{Type: t.Type, Meta: nil}
	switch t.Type {
	case TypeCategorical:
		td.DefaultCat = t.Default.Cat
		td.Values = t.Values
		td.ValuesWeights = t.Weights
	default:
		def, _ := t.Default.Numeric()
		td.Default = &def
		if t.Range != nil {
			td.Range = []float64{t.Range.Lo, t.Range.Hi}
		}
		if t.Quantization != nil {
			td.QuantizationBins = t.Quantization.Bins
		}
		td.Log = t.Log
		td.RangeWeight = t.RangeWeight
		td.Distribution = t.Distribution.Name
		td.DistributionParams = t.Distribution.Params
		for _, sv := range t.Special {
			td.Special = append(td.Special, sv.Value)
			td.SpecialWeights = append(td.SpecialWeights, sv.Weight)
		}
	}
	return td
}
