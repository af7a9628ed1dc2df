// Package grid implements the Grid optimizer (spec.md §4.4 "Grid
// optimizer"): pre-enumerates the full cartesian product of every tunable's
// discrete value set and serves configurations from it, defaults first.
package grid

import (
	"sort"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/optimizer"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Optimizer is the Grid optimizer variant.
type Optimizer struct {
	base       *tunable.Groups
	directions objective.Map
	maxIter    int
	iteration  int

	names       []string
	product     [][]tunable.Value // full enumeration, regenerated when exhausted
	cursor      int
	suggested   map[string]*tunable.Groups // canonical string -> pending suggestion
	seenDefault bool

	best *optimizer.Observation
}

// Config configures a new Grid Optimizer.
type Config struct {
	Tunables          *tunable.Groups
	Objectives        objective.Map
	MaxIterations     int
	StartWithDefaults bool
}

// New constructs a Grid optimizer, pre-enumerating the full product space.
func New(cfg Config) *Optimizer {
	names := append([]string(nil), cfg.Tunables.TunableNames()...)
	sort.Strings(names)

	o := &Optimizer{
		base:        cfg.Tunables,
		directions:  cfg.Objectives,
		maxIter:     cfg.MaxIterations,
		names:       names,
		suggested:   make(map[string]*tunable.Groups),
		seenDefault: !cfg.StartWithDefaults,
	}
	o.product = enumerate(cfg.Tunables, names)
	return o
}

// enumerate builds the full cartesian product of every named tunable's
// EnumerationValues, row-major in tunable name order.
func enumerate(g *tunable.Groups, names []string) [][]tunable.Value {
	domains := make([][]tunable.Value, len(names))
	for i, n := range names {
		t, _ := g.Lookup(n)
		domains[i] = t.EnumerationValues()
	}

	rows := [][]tunable.Value{{}}
	for i, domain := range domains {
		if len(domain) == 0 {
			continue
		}
		next := make([][]tunable.Value, 0, len(rows)*len(domain))
		for _, row := range rows {
			for _, v := range domain {
				r := append(append([]tunable.Value(nil), row...), v)
				next = append(next, r)
			}
		}
		rows = next
		_ = i
	}
	return rows
}

// Suggest returns the defaults first (if configured), then walks the
// pre-enumerated product in order, refilling from the full product whenever
// it is exhausted before the iteration cap is reached (spec.md §4.4 "Grid
// optimizer": "never permanently exhausts — wraps and resamples").
func (o *Optimizer) Suggest() *tunable.Groups {
	o.iteration++
	if !o.seenDefault {
		o.seenDefault = true
		return o.base.Clone()
	}

	if o.cursor >= len(o.product) {
		o.cursor = 0
	}
	row := o.product[o.cursor]
	o.cursor++

	values := make(map[string]tunable.Value, len(o.names))
	for i, name := range o.names {
		values[name] = row[i]
	}
	next := o.base.Clone()
	_ = next.Assign(values)
	o.suggested[next.CanonicalString()] = next
	return next
}

// Register validates and records an observation (spec.md §4.4 "register").
func (o *Optimizer) Register(tunables *tunable.Groups, s status.Status, score objective.ScoreMap) (objective.ScoreMap, error) {
	if err := optimizer.ValidateRegistration(s, score); err != nil {
		return nil, err
	}
	delete(o.suggested, tunables.CanonicalString())

	internal := optimizer.FailureScore(o.directions)
	if s.IsSucceeded() {
		internal = optimizer.SignFlip(o.directions, score)
	}
	if o.best == nil || optimizer.Less(o.directions, internal, o.best.Score) {
		o.best = &optimizer.Observation{Tunables: tunables.Clone(), Score: internal}
	}
	return internal, nil
}

// BulkRegister pre-loads historical observations.
func (o *Optimizer) BulkRegister(configs []*tunable.Groups, scores []objective.ScoreMap, statuses []status.Status) bool {
	if len(configs) == 0 {
		return false
	}
	o.seenDefault = true
	for i, cfg := range configs {
		_, _ = o.Register(cfg, statuses[i], scores[i])
	}
	return true
}

// NotConverged reports whether the iteration cap has not yet been reached
// (spec.md §4.4 "Grid optimizer": the grid itself never exhausts — only the
// iteration cap ends the search).
func (o *Optimizer) NotConverged() bool {
	return o.maxIter <= 0 || o.iteration < o.maxIter
}

// GetBestObservation returns the best observation seen so far.
func (o *Optimizer) GetBestObservation() (objective.ScoreMap, *tunable.Groups, bool) {
	if o.best == nil {
		return nil, nil, false
	}
	return o.best.Score.Flip(o.directions), o.best.Tunables, true
}
