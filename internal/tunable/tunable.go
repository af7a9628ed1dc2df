package tunable

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/benchtune/benchtune/internal/errkind"
)

// Type identifies the domain kind of a Tunable.
type Type string

const (
	TypeInteger     Type = "int"
	TypeFloat       Type = "float"
	TypeCategorical Type = "categorical"
)

// Range is an inclusive numeric domain [Lo, Hi].
type Range struct {
	Lo, Hi float64
}

// Quantization buckets a numeric range into a fixed number of bins.
type Quantization struct {
	Bins int // n >= 2
}

// Distribution shapes how a continuous value is drawn from a numeric range
// before quantization. The zero value is uniform.
type Distribution struct {
	Name   string // "", "uniform", "normal", "beta"
	Params map[string]float64
}

func (d Distribution) param(name string, def float64) float64 {
	if d.Params == nil {
		return def
	}
	if v, ok := d.Params[name]; ok {
		return v
	}
	return def
}

// SpecialValue is a discrete value called out within a numeric range for
// biased sampling, together with its selection weight.
type SpecialValue struct {
	Value  float64
	Weight float64
}

// Tunable is a single typed parameter: its domain, default, and current
// value (spec.md C1).
type Tunable struct {
	Name    string
	Type    Type
	Default Value
	Current Value

	// Numeric domain (Type == TypeInteger || Type == TypeFloat).
	Range        *Range
	Quantization *Quantization
	Log          bool
	Special      []SpecialValue
	RangeWeight  *float64
	Distribution Distribution

	// Categorical domain (Type == TypeCategorical).
	Values  []string
	Weights []float64
}

// New validates and constructs a Tunable from its components. Validation
// enforces every invariant in spec.md §3 "Tunable". A freshly constructed
// Tunable's current value always starts equal to its default (spec.md §3
// "Tunable" lifecycle); callers that need to seed a different current value
// should call Assign afterward.
func New(t Tunable) (*Tunable, error) {
	out := t
	out.Current = out.Default
	if err := out.validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *Tunable) validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: tunable name must not be empty", errkind.Invalid)
	}
	if strings.Contains(t.Name, "!") {
		return fmt.Errorf("%w: tunable name %q must not contain '!'", errkind.Invalid, t.Name)
	}

	switch t.Type {
	case TypeInteger, TypeFloat:
		if err := t.validateNumeric(); err != nil {
			return err
		}
	case TypeCategorical:
		if err := t.validateCategorical(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: tunable %q has unknown type %q", errkind.Invalid, t.Name, t.Type)
	}

	if !t.InDomain(t.Default) {
		return fmt.Errorf("%w: tunable %q default %s is not in its domain", errkind.Invalid, t.Name, t.Default)
	}
	return nil
}

func (t *Tunable) validateNumeric() error {
	if t.Range == nil {
		return fmt.Errorf("%w: tunable %q requires a range", errkind.Invalid, t.Name)
	}
	if !(t.Range.Lo < t.Range.Hi) {
		return fmt.Errorf("%w: tunable %q range [%g,%g] must satisfy lo < hi", errkind.Invalid, t.Name, t.Range.Lo, t.Range.Hi)
	}
	if t.Quantization != nil && t.Quantization.Bins < 2 {
		return fmt.Errorf("%w: tunable %q quantization bins %d must be >= 2", errkind.Invalid, t.Name, t.Quantization.Bins)
	}
	if t.Log && t.Range.Lo <= 0 {
		return fmt.Errorf("%w: tunable %q logarithmic sampling requires lo > 0", errkind.Invalid, t.Name)
	}

	if len(t.Special) > 0 {
		if t.RangeWeight == nil {
			return fmt.Errorf("%w: tunable %q has special values but no range_weight", errkind.Invalid, t.Name)
		}
		for _, s := range t.Special {
			if s.Value < t.Range.Lo || s.Value > t.Range.Hi {
				return fmt.Errorf("%w: tunable %q special value %g is not within its range", errkind.Invalid, t.Name, s.Value)
			}
			if s.Weight < 0 {
				return fmt.Errorf("%w: tunable %q special value %g has a negative weight", errkind.Invalid, t.Name, s.Value)
			}
		}
		total := *t.RangeWeight
		for _, s := range t.Special {
			total += s.Weight
		}
		if total <= 0 {
			return fmt.Errorf("%w: tunable %q special-value weights and range_weight sum to zero", errkind.Invalid, t.Name)
		}
	}
	return nil
}

func (t *Tunable) validateCategorical() error {
	if len(t.Values) == 0 {
		return fmt.Errorf("%w: tunable %q requires a non-empty values list", errkind.Invalid, t.Name)
	}
	seen := make(map[string]bool, len(t.Values))
	for _, v := range t.Values {
		if seen[v] {
			return fmt.Errorf("%w: tunable %q has duplicate category %q", errkind.Invalid, t.Name, v)
		}
		seen[v] = true
	}
	if t.Weights != nil {
		if len(t.Weights) != len(t.Values) {
			return fmt.Errorf("%w: tunable %q has %d weights for %d values", errkind.Invalid, t.Name, len(t.Weights), len(t.Values))
		}
		var total float64
		for _, w := range t.Weights {
			if w < 0 {
				return fmt.Errorf("%w: tunable %q has a negative category weight", errkind.Invalid, t.Name)
			}
			total += w
		}
		if total <= 0 {
			return fmt.Errorf("%w: tunable %q category weights are all zero", errkind.Invalid, t.Name)
		}
	}
	if t.Range != nil || len(t.Special) > 0 || t.Quantization != nil || t.Log {
		return fmt.Errorf("%w: categorical tunable %q must not set range, special, quantization, or log", errkind.Invalid, t.Name)
	}
	return nil
}

// InDomain reports whether v is a legal value for t (ignoring quantization
// snapping, which only constrains Sample's output, not Assign's input).
func (t *Tunable) InDomain(v Value) bool {
	switch t.Type {
	case TypeCategorical:
		if v.Kind != KindCategorical {
			return false
		}
		for _, c := range t.Values {
			if c == v.Cat {
				return true
			}
		}
		return false
	default:
		f, ok := v.Numeric()
		if !ok || t.Range == nil {
			return false
		}
		return f >= t.Range.Lo && f <= t.Range.Hi
	}
}

// Categories returns the ordered category list for a categorical tunable,
// or nil for a numeric one.
func (t *Tunable) Categories() []string {
	if t.Type != TypeCategorical {
		return nil
	}
	return t.Values
}

// Cardinality returns the size of the tunable's domain: |values| for
// categoricals, hi-lo+1 for unquantized integers, n for quantized numerics,
// and +Inf for unquantized floats.
func (t *Tunable) Cardinality() float64 {
	switch t.Type {
	case TypeCategorical:
		return float64(len(t.Values))
	case TypeInteger:
		if t.Quantization != nil {
			return float64(t.Quantization.Bins)
		}
		return t.Range.Hi - t.Range.Lo + 1
	default: // TypeFloat
		if t.Quantization != nil {
			return float64(t.Quantization.Bins)
		}
		return math.Inf(1)
	}
}

// Normalize maps a value linearly into [0,1]: numeric tunables via their
// range, categoricals via category index / (|cats|-1).
func (t *Tunable) Normalize(v Value) float64 {
	switch t.Type {
	case TypeCategorical:
		if len(t.Values) <= 1 {
			return 0
		}
		for i, c := range t.Values {
			if c == v.Cat {
				return clip(float64(i)/float64(len(t.Values)-1), 0, 1)
			}
		}
		return 0
	default:
		f, ok := v.Numeric()
		if !ok || t.Range == nil || t.Range.Hi == t.Range.Lo {
			return 0
		}
		return clip((f-t.Range.Lo)/(t.Range.Hi-t.Range.Lo), 0, 1)
	}
}

// Assign validates value against the domain and sets Current, returning
// whether the value actually changed (for the owning group's dirty flag).
func (t *Tunable) Assign(v Value) (changed bool, err error) {
	cv, err := t.coerce(v)
	if err != nil {
		return false, err
	}
	if !t.InDomain(cv) {
		return false, fmt.Errorf("%w: value %s is outside the domain of tunable %q", errkind.Invalid, cv, t.Name)
	}
	changed = !t.Current.Equal(cv)
	t.Current = cv
	return changed, nil
}

// coerce adapts a value of compatible kind (e.g. an integral float read from
// JSON) to the tunable's own kind.
func (t *Tunable) coerce(v Value) (Value, error) {
	switch t.Type {
	case TypeCategorical:
		if v.Kind != KindCategorical {
			return Value{}, fmt.Errorf("%w: tunable %q expects a categorical value, got %s", errkind.Invalid, t.Name, v.Kind)
		}
		return v, nil
	case TypeInteger:
		switch v.Kind {
		case KindInt:
			return v, nil
		case KindFloat:
			if v.Flt != math.Trunc(v.Flt) {
				return Value{}, fmt.Errorf("%w: tunable %q is integer but was assigned non-integral %g", errkind.Invalid, t.Name, v.Flt)
			}
			return IntValue(int64(v.Flt)), nil
		default:
			return Value{}, fmt.Errorf("%w: tunable %q expects a numeric value, got %s", errkind.Invalid, t.Name, v.Kind)
		}
	default: // TypeFloat
		switch v.Kind {
		case KindFloat:
			return v, nil
		case KindInt:
			return FloatValue(float64(v.Int)), nil
		default:
			return Value{}, fmt.Errorf("%w: tunable %q expects a numeric value, got %s", errkind.Invalid, t.Name, v.Kind)
		}
	}
}

// RestoreDefault resets Current to Default.
func (t *Tunable) RestoreDefault() {
	t.Current = t.Default
}

// Equal compares two tunables by name, type, and current value only — the
// domain (range/specials/weights) describes how the value was reached, not
// what it currently is (spec.md §4.1 "Equality").
func (t *Tunable) Equal(o *Tunable) bool {
	if o == nil {
		return false
	}
	return t.Name == o.Name && t.Type == o.Type && t.Current.Equal(o.Current)
}

// Clone returns a deep-enough copy of t suitable for an independent
// assignment history (used by Optimizer.suggest, which returns a copy of its
// tunables per spec.md §4.4).
func (t *Tunable) Clone() *Tunable {
	c := *t
	if t.Range != nil {
		r := *t.Range
		c.Range = &r
	}
	if t.Quantization != nil {
		q := *t.Quantization
		c.Quantization = &q
	}
	if t.RangeWeight != nil {
		w := *t.RangeWeight
		c.RangeWeight = &w
	}
	if t.Special != nil {
		c.Special = append([]SpecialValue(nil), t.Special...)
	}
	if t.Values != nil {
		c.Values = append([]string(nil), t.Values...)
	}
	if t.Weights != nil {
		c.Weights = append([]float64(nil), t.Weights...)
	}
	if t.Distribution.Params != nil {
		p := make(map[string]float64, len(t.Distribution.Params))
		for k, v := range t.Distribution.Params {
			p[k] = v
		}
		c.Distribution.Params = p
	}
	return &c
}

// Sample draws a new value from t's domain, respecting distribution, log
// scale, quantization, and special-value weights (spec.md §4.1).
func (t *Tunable) Sample(rng *rand.Rand) Value {
	if t.Type == TypeCategorical {
		return t.sampleCategorical(rng)
	}
	f := t.sampleNumeric(rng)
	if t.Type == TypeInteger {
		return IntValue(int64(math.Round(f)))
	}
	return FloatValue(f)
}

func (t *Tunable) sampleCategorical(rng *rand.Rand) Value {
	if len(t.Weights) == 0 {
		return CatValue(t.Values[rng.Intn(len(t.Values))])
	}
	var total float64
	for _, w := range t.Weights {
		total += w
	}
	u := rng.Float64() * total
	var cum float64
	for i, w := range t.Weights {
		cum += w
		if u < cum {
			return CatValue(t.Values[i])
		}
	}
	return CatValue(t.Values[len(t.Values)-1])
}

func (t *Tunable) sampleNumeric(rng *rand.Rand) float64 {
	if len(t.Special) > 0 {
		total := *t.RangeWeight
		for _, s := range t.Special {
			total += s.Weight
		}
		u := rng.Float64() * total
		var cum float64
		for _, s := range t.Special {
			cum += s.Weight
			if u < cum {
				return s.Value
			}
		}
		// Falls through to the range distribution.
	}
	raw := t.sampleRange(rng)
	return t.quantize(raw)
}

func (t *Tunable) sampleRange(rng *rand.Rand) float64 {
	lo, hi := t.Range.Lo, t.Range.Hi
	if t.Log {
		lo, hi = math.Log(lo), math.Log(hi)
	}

	var raw float64
	switch t.Distribution.Name {
	case "normal":
		mu := t.Distribution.param("mu", (lo+hi)/2)
		sigma := t.Distribution.param("sigma", (hi-lo)/6)
		if sigma <= 0 {
			sigma = (hi - lo) / 6
		}
		raw = distuv.Normal{Mu: mu, Sigma: sigma, Src: rng}.Rand()
		raw = clip(raw, lo, hi)
	case "beta":
		alpha := t.Distribution.param("alpha", 2)
		beta := t.Distribution.param("beta", 2)
		u := distuv.Beta{Alpha: alpha, Beta: beta, Src: rng}.Rand()
		raw = lo + u*(hi-lo)
	default: // "", "uniform"
		raw = distuv.Uniform{Min: lo, Max: hi, Src: rng}.Rand()
	}

	if t.Log {
		raw = math.Exp(raw)
	}
	return raw
}

// quantize snaps a raw continuous sample to the nearest configured bin. If
// no quantization is configured, raw is only clipped to the range.
func (t *Tunable) quantize(raw float64) float64 {
	if t.Quantization == nil {
		return clip(raw, t.Range.Lo, t.Range.Hi)
	}
	best := t.binCenters()[0]
	bestDist := math.Abs(raw - best)
	for _, c := range t.binCenters()[1:] {
		if d := math.Abs(raw - c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// binCenters returns the n quantization bin centers for t, linear or
// logarithmic per t.Log (spec.md §4.1 "Quantization semantics").
func (t *Tunable) binCenters() []float64 {
	n := t.Quantization.Bins
	centers := make([]float64, n)
	if !t.Log {
		for i := 0; i < n; i++ {
			centers[i] = t.Range.Lo + (t.Range.Hi-t.Range.Lo)*float64(i)/float64(n-1)
		}
		return centers
	}
	logLo, logHi := math.Log(t.Range.Lo), math.Log(t.Range.Hi)
	for i := 0; i < n; i++ {
		centers[i] = math.Exp(logLo + (logHi-logLo)*float64(i)/float64(n-1))
	}
	return centers
}

// EnumerationValues returns every value in t's domain suitable for
// exhaustive enumeration (the grid optimizer's product space, spec.md §4.4
// "Grid optimizer"): category list for categoricals, quantization bin
// centers for quantized numerics, and the integer range expanded one-by-one
// for unquantized integers. Unquantized floats have no finite enumeration
// and return nil.
func (t *Tunable) EnumerationValues() []Value {
	switch t.Type {
	case TypeCategorical:
		out := make([]Value, len(t.Values))
		for i, c := range t.Values {
			out[i] = CatValue(c)
		}
		return out
	case TypeInteger:
		if t.Quantization != nil {
			centers := t.binCenters()
			out := make([]Value, len(centers))
			for i, c := range centers {
				out[i] = IntValue(int64(math.Round(c)))
			}
			return out
		}
		n := int64(t.Range.Hi) - int64(t.Range.Lo) + 1
		out := make([]Value, 0, n)
		for v := int64(t.Range.Lo); v <= int64(t.Range.Hi); v++ {
			out = append(out, IntValue(v))
		}
		return out
	default: // TypeFloat
		if t.Quantization == nil {
			return nil
		}
		centers := t.binCenters()
		out := make([]Value, len(centers))
		for i, c := range centers {
			out[i] = FloatValue(c)
		}
		return out
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
