// Package pareto implements the Pareto Frontier (spec.md §4.5, C8): the
// non-dominated set of observations under an objective map, kept as
// column-oriented struct-of-arrays rather than a dataframe (spec.md §9
// "Pandas-centric dataframes" redesign flag).
package pareto

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Frontier maintains the non-dominated set of (objectives, parameters) rows
// observed so far. Both columns share row order; Frontier.Current's two
// returned slices always have matching length and index correspondence
// (spec.md §4.5 "Contract").
type Frontier struct {
	directions objective.Map
	scores     []objective.ScoreMap
	params     []*tunable.Groups
}

// New constructs an empty Frontier over the given objective directions.
func New(directions objective.Map) *Frontier {
	return &Frontier{directions: directions}
}

// Update appends newScores/newParams (row-aligned, same length) and
// re-applies the dominance filter, discarding any retained row now
// dominated by a new one and any new row dominated by a retained one. The
// merged rows are sorted once by the first objective and then swept, each
// row compared against the rows kept so far, so a call costs on the order of
// (merged rows × frontier size) dominance checks rather than O(n log n).
func (f *Frontier) Update(newScores []objective.ScoreMap, newParams []*tunable.Groups) {
	if len(newScores) != len(newParams) {
		panic("pareto: newScores and newParams must have matching length")
	}
	if len(newScores) == 0 {
		return
	}

	mergedScores := append(append([]objective.ScoreMap{}, f.scores...), newScores...)
	mergedParams := append(append([]*tunable.Groups{}, f.params...), newParams...)

	order := make([]int, len(mergedScores))
	for i := range order {
		order[i] = i
	}
	// Sort by the first objective (direction-adjusted) to give the sweep a
	// sensible order; the dominance check below is direction-correct
	// regardless of sort key, so any deterministic ordering works here.
	first := firstObjective(f.directions)
	sort.Slice(order, func(a, b int) bool {
		return f.signed(mergedScores[order[a]], first) < f.signed(mergedScores[order[b]], first)
	})

	var keptScores []objective.ScoreMap
	var keptParams []*tunable.Groups
	for _, i := range order {
		cand := mergedScores[i]
		dominated := false
		for _, kept := range keptScores {
			if f.dominates(kept, cand) {
				dominated = true
				break
			}
		}
		if dominated {
			continue
		}
		// Remove any already-kept rows that cand now dominates.
		survivors := keptScores[:0]
		survivorParams := keptParams[:0]
		for j, kept := range keptScores {
			if !f.dominates(cand, kept) {
				survivors = append(survivors, kept)
				survivorParams = append(survivorParams, keptParams[j])
			}
		}
		keptScores = append(survivors, cand)
		keptParams = append(survivorParams, mergedParams[i])
	}

	f.scores = keptScores
	f.params = keptParams
}

func firstObjective(dirs objective.Map) string {
	names := make([]string, 0, len(dirs))
	for name := range dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// signed returns the objective value oriented so that smaller is always
// better, matching the optimizer's internal minimize-only convention
// (spec.md §4.4 "Scoring sign convention").
func (f *Frontier) signed(s objective.ScoreMap, metric string) float64 {
	return s[metric] * objective.Direction(f.directions[metric]).Sign()
}

// dominates reports whether a dominates b: no worse on every objective and
// strictly better on at least one, under per-objective direction (spec.md
// §4.5 "Dominance").
func (f *Frontier) dominates(a, b objective.ScoreMap) bool {
	strictlyBetter := false
	for metric := range f.directions {
		av, bv := f.signed(a, metric), f.signed(b, metric)
		if av > bv {
			return false
		}
		if av < bv {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// Current returns a snapshot of the non-dominated set: row-aligned score and
// parameter slices.
func (f *Frontier) Current() ([]objective.ScoreMap, []*tunable.Groups) {
	scores := append([]objective.ScoreMap{}, f.scores...)
	params := append([]*tunable.Groups{}, f.params...)
	return scores, params
}

// Len returns the number of rows currently retained.
func (f *Frontier) Len() int { return len(f.scores) }

// VolumeEstimator is a Monte Carlo hypervolume estimate with a two-sided
// confidence interval at the requested significance level (spec.md §4.5
// "approximate_volume").
type VolumeEstimator struct {
	Mean     float64
	Low      float64
	High     float64
	Alpha    float64
	Samples  int
}

// ApproximateVolume estimates the hypervolume dominated by the current
// frontier within the bounding box of its own retained rows, via Monte Carlo
// sampling: draw points uniformly in that box and count the dominated
// fraction. A normal-approximation confidence interval at significance alpha
// is computed via gonum/stat (spec.md §4.5: "used for over-time reporting
// only" — an exact hypervolume algorithm is not required).
func (f *Frontier) ApproximateVolume(alpha float64, samples int, rng *rand.Rand) VolumeEstimator {
	if samples <= 0 {
		samples = 10000
	}
	if len(f.scores) == 0 {
		return VolumeEstimator{Alpha: alpha, Samples: samples}
	}

	metrics := sortedMetrics(f.directions)
	lo, hi := bounds(f.scores, f.directions, metrics)

	hits := make([]float64, samples)
	for i := 0; i < samples; i++ {
		point := make(objective.ScoreMap, len(metrics))
		for _, m := range metrics {
			point[m] = lo[m] + rng.Float64()*(hi[m]-lo[m])
		}
		if f.dominatedByFrontier(point) {
			hits[i] = 1
		}
	}

	volumeOfBox := 1.0
	for _, m := range metrics {
		volumeOfBox *= hi[m] - lo[m]
	}

	mean, stddev := stat.MeanStdDev(hits, nil)
	se := stddev / math.Sqrt(float64(samples))
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - alpha/2)

	return VolumeEstimator{
		Mean:    mean * volumeOfBox,
		Low:     (mean - z*se) * volumeOfBox,
		High:    (mean + z*se) * volumeOfBox,
		Alpha:   alpha,
		Samples: samples,
	}
}

// Dominated reports whether point is already dominated by some row retained
// on the frontier: some retained row is no worse on every objective and
// strictly better on at least one (spec.md §4.5 "Dominance"). Used by the Bayesian
// optimizer's multi-objective acquisition to test whether a candidate would
// be a Pareto improvement.
func (f *Frontier) Dominated(point objective.ScoreMap) bool {
	for _, row := range f.scores {
		if f.dominates(row, point) {
			return true
		}
	}
	return false
}

func (f *Frontier) dominatedByFrontier(point objective.ScoreMap) bool {
	for _, row := range f.scores {
		if f.dominates(row, point) || equalScores(row, point, f.directions) {
			return true
		}
	}
	return false
}

func equalScores(a, b objective.ScoreMap, dirs objective.Map) bool {
	for m := range dirs {
		if a[m] != b[m] {
			return false
		}
	}
	return true
}

func sortedMetrics(dirs objective.Map) []string {
	names := make([]string, 0, len(dirs))
	for name := range dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bounds(scores []objective.ScoreMap, dirs objective.Map, metrics []string) (lo, hi objective.ScoreMap) {
	lo, hi = objective.ScoreMap{}, objective.ScoreMap{}
	for _, m := range metrics {
		lo[m], hi[m] = scores[0][m], scores[0][m]
	}
	for _, row := range scores {
		for _, m := range metrics {
			if row[m] < lo[m] {
				lo[m] = row[m]
			}
			if row[m] > hi[m] {
				hi[m] = row[m]
			}
		}
	}
	return lo, hi
}
