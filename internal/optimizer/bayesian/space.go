// Package bayesian implements the Bayesian optimizer (spec.md §4.4 "Bayesian
// optimizer", C9): a homogeneous random forest surrogate over a numeric
// feature encoding of the tunable space, an upper-confidence-bound
// acquisition function, and an optional LlamaTune-style low-dimensional
// space adapter (spec.md §4.4.1), grounded on
// original_source/mlos_core/mlos_core/tests/spaces/adapters/llamatune_test.py
// (the adapter's contract, since no llamatune.py implementation ships in the
// reference pack — only its test suite).
package bayesian

import (
	"sort"

	"golang.org/x/exp/rand"

	"github.com/benchtune/benchtune/internal/tunable"
)

// encode flattens g's current assignment into a normalized feature vector,
// one entry per tunable in sorted-name order, for consumption by the forest
// surrogate.
func encode(g *tunable.Groups) []float64 {
	names := sortedNames(g)
	out := make([]float64, len(names))
	for i, n := range names {
		t, _ := g.Lookup(n)
		out[i] = t.Normalize(t.Current)
	}
	return out
}

func sortedNames(g *tunable.Groups) []string {
	names := append([]string(nil), g.TunableNames()...)
	sort.Strings(names)
	return names
}

// Adapter projects between the optimizer's search space and the space the
// surrogate actually samples/fits over (spec.md §4.4.1 "Space adapters").
// Identity is a no-op; LlamaTune implements the low-dimensional random
// linear embedding.
type Adapter interface {
	// Sample draws a random point directly in the adapter's (possibly
	// lower-dimensional) target space and projects it up to a full tunable
	// assignment.
	Sample(rng *rand.Rand, base *tunable.Groups) *tunable.Groups
}

// Identity is the no-op Adapter: sampling delegates straight to the
// tunable space's own Sample.
type Identity struct{}

// NewIdentity constructs the no-op adapter.
func NewIdentity() Identity { return Identity{} }

// Sample draws directly from base's own domain.
func (Identity) Sample(rng *rand.Rand, base *tunable.Groups) *tunable.Groups {
	next := base.Clone()
	next.Sample(rng)
	return next
}

// LlamaTune is the low-dimensional random-linear-embedding adapter (spec.md
// §4.4.1): the optimizer samples in a num_low_dims-dimensional unit cube,
// and each original tunable reads off one coordinate of a fixed random
// linear combination of those low dimensions, biased towards configured
// special values and optionally discretized to a bounded number of unique
// values per tunable.
type LlamaTune struct {
	numLowDims    int
	names         []string
	projection    [][]float64 // len(names) x numLowDims, each row sums to 1
	special       map[string][]specialValue
	bucketCounts  map[string]int // max_unique_values_per_param, 0 = unbounded
	cache         map[string]*tunable.Groups
	approxReverse bool
}

// specialValue is one (value, percentage) bias entry (spec.md §4.4.1
// "special_param_values": a tunable value paired with the probability mass
// it should receive regardless of its share of the underlying domain).
type specialValue struct {
	value      tunable.Value
	percentage float64
}

// LlamaTuneConfig configures a LlamaTune adapter.
type LlamaTuneConfig struct {
	NumLowDims               int
	SpecialParamValues       map[string][]specialValue
	MaxUniqueValuesPerParam  int
	UseApproximateReverseMap bool
}

// NewLlamaTune constructs a LlamaTune adapter over base's tunable names,
// fixing a random linear projection matrix for the lifetime of the adapter
// (spec.md §4.4.1: the embedding is fixed once at construction, not redrawn
// per sample).
func NewLlamaTune(rng *rand.Rand, base *tunable.Groups, cfg LlamaTuneConfig) *LlamaTune {
	names := sortedNames(base)
	numLow := cfg.NumLowDims
	if numLow <= 0 || numLow >= len(names) {
		numLow = max(1, len(names)/2)
	}

	projection := make([][]float64, len(names))
	for i := range projection {
		row := make([]float64, numLow)
		var total float64
		for j := range row {
			row[j] = rng.Float64()
			total += row[j]
		}
		if total == 0 {
			row[0] = 1
			total = 1
		}
		for j := range row {
			row[j] /= total
		}
		projection[i] = row
	}

	bucketCounts := map[string]int{}
	if cfg.MaxUniqueValuesPerParam > 0 {
		for _, n := range names {
			bucketCounts[n] = cfg.MaxUniqueValuesPerParam
		}
	}

	return &LlamaTune{
		numLowDims:    numLow,
		names:         names,
		projection:    projection,
		special:       cfg.SpecialParamValues,
		bucketCounts:  bucketCounts,
		cache:         map[string]*tunable.Groups{},
		approxReverse: cfg.UseApproximateReverseMap,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Sample draws a point uniformly in the low-dimensional unit cube and
// projects it to a full tunable assignment via the fixed random linear
// combination, applying special-value biasing and per-tunable bucketing
// before assignment (spec.md §4.4.1).
func (a *LlamaTune) Sample(rng *rand.Rand, base *tunable.Groups) *tunable.Groups {
	low := make([]float64, a.numLowDims)
	for i := range low {
		low[i] = rng.Float64()
	}

	next := base.Clone()
	for i, name := range a.names {
		t, ok := next.Lookup(name)
		if !ok {
			continue
		}
		coord := 0.0
		for j, w := range a.projection[i] {
			coord += w * low[j]
		}
		coord = clip01(coord)

		if biased, ok := a.applySpecial(name, coord, rng); ok {
			_, _ = t.Assign(biased)
			continue
		}

		v := denormalize(t, coord, a.bucketFor(name, t))
		_, _ = t.Assign(v)
	}

	a.cache[low32(low)] = next.Clone()
	return next
}

// applySpecial returns a special value for name if the (value, percentage)
// bias draws true for this sample. The draw's uniform input is a fresh
// rng.Float64(); coord does not affect it (spec.md §4.4.1
// "special_param_values" biasing).
func (a *LlamaTune) applySpecial(name string, coord float64, rng *rand.Rand) (tunable.Value, bool) {
	entries := a.special[name]
	if len(entries) == 0 {
		return tunable.Value{}, false
	}
	u := rng.Float64()
	var cum float64
	for _, e := range entries {
		cum += e.percentage
		if u < cum {
			return e.value, true
		}
	}
	return tunable.Value{}, false
}

func (a *LlamaTune) bucketFor(name string, t *tunable.Tunable) int {
	if n, ok := a.bucketCounts[name]; ok && n > 0 {
		return n
	}
	return 0
}

// denormalize maps a [0,1] coordinate back into t's domain, optionally
// snapping to one of buckets evenly spaced values first (spec.md §4.4.1
// "max_unique_values_per_param").
func denormalize(t *tunable.Tunable, coord float64, buckets int) tunable.Value {
	if buckets > 1 {
		step := 1.0 / float64(buckets-1)
		idx := int(coord/step + 0.5)
		if idx >= buckets {
			idx = buckets - 1
		}
		coord = float64(idx) * step
	}

	if t.Type == tunable.TypeCategorical {
		cats := t.Categories()
		idx := int(coord * float64(len(cats)))
		if idx >= len(cats) {
			idx = len(cats) - 1
		}
		return tunable.CatValue(cats[idx])
	}

	lo, hi := t.Range.Lo, t.Range.Hi
	raw := lo + coord*(hi-lo)
	if t.Type == tunable.TypeInteger {
		return tunable.IntValue(int64(raw + 0.5))
	}
	return tunable.FloatValue(raw)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// InverseTransform returns the cached full configuration that matches g
// (compared by CanonicalString), not the low-dimensional point behind it,
// found by exact cache lookup, falling back to
// nearest-cached-point matching when approxReverse is enabled (spec.md
// §4.4.1 "inverse_transform": exact for seen configs, approximate for
// unseen ones when enabled).
func (a *LlamaTune) InverseTransform(g *tunable.Groups) (*tunable.Groups, bool) {
	target := g.CanonicalString()
	for key, cached := range a.cache {
		if cached.CanonicalString() == target {
			_ = key
			return cached, true
		}
	}
	if !a.approxReverse {
		return nil, false
	}
	var best *tunable.Groups
	bestDist := -1.0
	for _, cached := range a.cache {
		d := distance(encode(cached), encode(g))
		if bestDist < 0 || d < bestDist {
			best, bestDist = cached, d
		}
	}
	return best, best != nil
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func low32(v []float64) string {
	b := make([]byte, 0, len(v)*8)
	for _, f := range v {
		bits := uint64(f * 1e9)
		b = append(b,
			byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24),
			byte(bits>>32), byte(bits>>40), byte(bits>>48), byte(bits>>56))
	}
	return string(b)
}
