// Package random implements the Random optimizer (spec.md §4.4 "Random
// optimizer"): suggest draws each tunable independently from its sampling
// distribution, converging once the iteration cap is reached.
package random

import (
	"golang.org/x/exp/rand"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/optimizer"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Optimizer is the Random optimizer variant.
type Optimizer struct {
	base         *tunable.Groups
	directions   objective.Map
	rng          *rand.Rand
	maxIter      int
	iteration    int
	best         *optimizer.Observation
	startDefault bool
	seenDefault  bool
}

// Config configures a new Random Optimizer.
type Config struct {
	Tunables          *tunable.Groups
	Objectives        objective.Map
	Seed              uint64
	MaxIterations     int
	StartWithDefaults bool
}

// New constructs a Random optimizer.
func New(cfg Config) *Optimizer {
	return &Optimizer{
		base:         cfg.Tunables,
		directions:   cfg.Objectives,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		maxIter:      cfg.MaxIterations,
		startDefault: cfg.StartWithDefaults,
	}
}

// Suggest returns a copy of the tunables with every tunable independently
// sampled (spec.md §4.4 "Random optimizer"), serving the unmodified
// defaults first if configured to start with defaults.
func (o *Optimizer) Suggest() *tunable.Groups {
	o.iteration++
	if o.startDefault && !o.seenDefault {
		o.seenDefault = true
		return o.base.Clone()
	}
	next := o.base.Clone()
	next.Sample(o.rng)
	return next
}

// Register validates and records an observation (spec.md §4.4 "register").
func (o *Optimizer) Register(tunables *tunable.Groups, s status.Status, score objective.ScoreMap) (objective.ScoreMap, error) {
	if err := optimizer.ValidateRegistration(s, score); err != nil {
		return nil, err
	}
	internal := optimizer.FailureScore(o.directions)
	if s.IsSucceeded() {
		internal = optimizer.SignFlip(o.directions, score)
	}
	if o.best == nil || optimizer.Less(o.directions, internal, o.best.Score) {
		o.best = &optimizer.Observation{Tunables: tunables.Clone(), Score: internal}
	}
	return internal, nil
}

// BulkRegister pre-loads historical observations; a non-empty load disables
// start-with-defaults (spec.md §4.4 "bulk_register").
func (o *Optimizer) BulkRegister(configs []*tunable.Groups, scores []objective.ScoreMap, statuses []status.Status) bool {
	if len(configs) == 0 {
		return false
	}
	o.startDefault = false
	o.seenDefault = true
	for i, cfg := range configs {
		_, _ = o.Register(cfg, statuses[i], scores[i])
	}
	return true
}

// NotConverged reports whether the iteration cap has not yet been reached.
func (o *Optimizer) NotConverged() bool {
	return o.maxIter <= 0 || o.iteration < o.maxIter
}

// GetBestObservation returns the best observation seen so far, flipped back
// to user-facing direction.
func (o *Optimizer) GetBestObservation() (objective.ScoreMap, *tunable.Groups, bool) {
	if o.best == nil {
		return nil, nil, false
	}
	return o.best.Score.Flip(o.directions), o.best.Tunables, true
}
