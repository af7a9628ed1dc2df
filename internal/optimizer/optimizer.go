// Package optimizer holds the shared Optimizer contract (spec.md §4.4, C9)
// and the scoring-sign helpers every variant uses; concrete variants live in
// the random, grid, and bayesian subpackages.
package optimizer

import (
	"math"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Observation is one registered (tunables, internal score) pair, kept by
// every variant to answer GetBestObservation.
type Observation struct {
	Tunables *tunable.Groups
	Score    objective.ScoreMap // internal, sign-flipped to always-minimize
}

// Optimizer is the contract every variant (random, grid, bayesian)
// implements (spec.md §4.4 "Public contract").
type Optimizer interface {
	// Suggest returns a copy of the optimizer's tunables with values set to
	// the next candidate, incrementing the iteration counter.
	Suggest() *tunable.Groups
	// Register requires status.IsSucceeded() to imply score != nil (and vice
	// versa); returns the sign-flipped internal score.
	Register(tunables *tunable.Groups, s status.Status, score objective.ScoreMap) (objective.ScoreMap, error)
	// BulkRegister pre-loads historical data. If configs is non-empty and
	// the optimizer was configured to start with defaults, start-with-
	// defaults is disabled. Returns whether anything was loaded.
	BulkRegister(configs []*tunable.Groups, scores []objective.ScoreMap, statuses []status.Status) bool
	// NotConverged reports whether the optimizer should keep suggesting.
	NotConverged() bool
	// GetBestObservation returns the best (user-facing score, tunables)
	// pair observed so far, or ok=false if nothing has been registered.
	GetBestObservation() (score objective.ScoreMap, tunables *tunable.Groups, ok bool)
}

// SignFlip applies the always-minimize sign convention (spec.md §4.4
// "Scoring sign convention"): +1 for Min, -1 for Max.
func SignFlip(dirs objective.Map, score objective.ScoreMap) objective.ScoreMap {
	return score.Flip(dirs)
}

// FailureScore returns the sentinel internal score recorded for a failed
// trial: +infinity across every objective (spec.md §4.4 "register": "failures
// → +∞ across all objectives").
func FailureScore(dirs objective.Map) objective.ScoreMap {
	out := make(objective.ScoreMap, len(dirs))
	for name := range dirs {
		out[name] = math.Inf(1)
	}
	return out
}

// Less reports whether internal score a is strictly better (lower, since
// internal scores always minimize) than b across every objective present in
// dirs, using a simple total-order: sum of per-objective differences. Used
// by GetBestObservation in the random/grid variants and in the bayesian
// variant's single-objective path; the bayesian variant's multi-objective
// path instead maintains a Pareto frontier (internal/pareto) and uses Less
// only to pick one representative point off it to report.
func Less(dirs objective.Map, a, b objective.ScoreMap) bool {
	var sumA, sumB float64
	for name := range dirs {
		sumA += a[name]
		sumB += b[name]
	}
	return sumA < sumB
}

// ValidateRegistration enforces status.is_succeeded() <=> score != nil
// (spec.md §4.4 "register").
func ValidateRegistration(s status.Status, score objective.ScoreMap) error {
	if s.IsSucceeded() && score == nil {
		return errScoreRequired
	}
	if !s.IsSucceeded() && score != nil {
		return errScoreForbidden
	}
	return nil
}

var (
	errScoreRequired  = optimizerError("register: succeeded status requires a non-nil score")
	errScoreForbidden = optimizerError("register: non-succeeded status must not carry a score")
)

type optimizerError string

func (e optimizerError) Error() string { return string(e) }
