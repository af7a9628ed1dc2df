// Package objective defines optimization direction and score maps, shared
// between the Experiment data model (internal/storage) and the Optimizer
// family's internal-minimization sign convention (spec.md §4.4 "Scoring
// sign convention") without coupling either package to the other.
package objective

// Direction is the optimization direction for one target metric.
type Direction string

const (
	Min Direction = "min"
	Max Direction = "max"
)

// Sign returns the multiplier applied to a user-facing score to obtain the
// optimizer's internal (always-minimizing) score: +1 for Min, -1 for Max.
func (d Direction) Sign() float64 {
	if d == Max {
		return -1
	}
	return 1
}

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Min || d == Max
}

// Map is the objective map target_name -> direction (spec.md §3
// "Experiment").
type Map map[string]Direction

// Equal reports whether two objective maps have identical keys and
// directions, used to validate resume compatibility (spec.md §3
// "Experiment" invariant).
func (m Map) Equal(o Map) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// ScoreMap is a target_name -> score observation, always stored internally
// in minimizing orientation (spec.md §4.4).
type ScoreMap map[string]float64

// Flip returns a copy of s with every entry's sign flipped according to dir,
// used both at registration (user→internal) and at get_best_observation
// (internal→user).
func (s ScoreMap) Flip(dir Map) ScoreMap {
	out := make(ScoreMap, len(s))
	for k, v := range s {
		out[k] = v * dir[k].Sign()
	}
	return out
}
