package bayesian

import (
	"golang.org/x/exp/rand"

	"github.com/benchtune/benchtune/internal/errkind"
	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/optimizer"
	"github.com/benchtune/benchtune/internal/pareto"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Config configures a Bayesian Optimizer.
type Config struct {
	Tunables       *tunable.Groups
	Objectives     objective.Map
	Seed           uint64
	MaxIterations  int
	Adapter        Adapter // nil defaults to Identity
	MinSamples     int     // minimum observations before the forest is trusted; below this, degrade to random (spec.md §4.4 "min_samples_required")
	RefitEvery     int     // n_new_samples_before_refit
	NumCandidates  int     // random-search width for acquisition optimization
	ForestConfig   ForestConfig
}

// Optimizer is the Bayesian optimizer variant: a homogeneous random forest
// surrogate fit over registered observations, with UCB acquisition for a
// single objective and probability-of-Pareto-improvement acquisition over a
// maintained Pareto frontier for multiple objectives, with graceful
// degradation to random search while data is scarce (spec.md §4.4 "Bayesian
// optimizer").
type Optimizer struct {
	base       *tunable.Groups
	directions objective.Map
	rng        *rand.Rand
	adapter    Adapter

	maxIter   int
	iteration int

	minSamples    int
	refitEvery    int
	numCandidates int
	forestCfg     ForestConfig

	samples      []sample
	multiSamples []multiSample
	sinceRefit   int
	forest       *Forest
	forests      map[string]*Forest // per-objective surrogates, fit only when len(directions) > 1
	frontier     *pareto.Frontier

	lastErr       error
	best          *optimizer.Observation
	pendingLookup map[string]*tunable.Groups
}

// multiSample is one (features, per-objective internal score) training row,
// used to fit one surrogate forest per objective for the Pareto-improvement
// acquisition path.
type multiSample struct {
	x []float64
	y objective.ScoreMap
}

// New constructs a Bayesian optimizer.
func New(cfg Config) *Optimizer {
	adapter := cfg.Adapter
	if adapter == nil {
		adapter = NewIdentity()
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 10
	}
	refitEvery := cfg.RefitEvery
	if refitEvery <= 0 {
		refitEvery = 1
	}
	// The frontier is fed internal scores, already oriented so that smaller
	// is better, so it treats every objective as Min.
	frontierDirs := make(objective.Map, len(cfg.Objectives))
	for name := range cfg.Objectives {
		frontierDirs[name] = objective.Min
	}

	return &Optimizer{
		base:          cfg.Tunables,
		directions:    cfg.Objectives,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		adapter:       adapter,
		maxIter:       cfg.MaxIterations,
		minSamples:    minSamples,
		refitEvery:    refitEvery,
		numCandidates: cfg.NumCandidates,
		forestCfg:     cfg.ForestConfig,
		frontier:      pareto.New(frontierDirs),
		pendingLookup: map[string]*tunable.Groups{},
	}
}

// multiObjective reports whether more than one objective is configured,
// switching Suggest/GetBestObservation onto the Pareto-frontier path.
func (o *Optimizer) multiObjective() bool {
	return len(o.directions) > 1
}

// Suggest returns a forest-guided candidate once enough data has been
// registered to trust the surrogate, else falls back to the adapter's raw
// random sampling (spec.md §4.4 "Bayesian optimizer": "below
// min_samples_required, suggestions degrade to random search").
func (o *Optimizer) Suggest() *tunable.Groups {
	o.iteration++

	if len(o.samples) < o.minSamples || o.forest == nil {
		g := o.adapter.Sample(o.rng, o.base)
		o.pendingLookup[g.CanonicalString()] = g
		return g
	}

	var g *tunable.Groups
	if o.multiObjective() {
		g = proposeNextParetoImprovement(o.forests, o.adapter, o.base, o.numCandidates, o.rng, o.frontier)
	} else {
		g = proposeNext(o.forest, o.adapter, o.base, o.numCandidates, o.rng)
	}
	o.pendingLookup[g.CanonicalString()] = g
	return g
}

// Register validates and records an observation, refitting the forest every
// refitEvery new samples once minSamples is reached (spec.md §4.4
// "n_new_samples_before_refit").
func (o *Optimizer) Register(tunables *tunable.Groups, s status.Status, score objective.ScoreMap) (objective.ScoreMap, error) {
	if err := optimizer.ValidateRegistration(s, score); err != nil {
		return nil, err
	}
	delete(o.pendingLookup, tunables.CanonicalString())

	internal := optimizer.FailureScore(o.directions)
	if s.IsSucceeded() {
		internal = optimizer.SignFlip(o.directions, score)
	}
	x := encode(tunables)
	o.samples = append(o.samples, sample{x: x, y: sumScore(internal)})
	o.multiSamples = append(o.multiSamples, multiSample{x: x, y: internal})
	o.sinceRefit++

	if o.multiObjective() {
		if s.IsSucceeded() {
			o.frontier.Update([]objective.ScoreMap{internal}, []*tunable.Groups{tunables.Clone()})
		}
	} else if o.best == nil || optimizer.Less(o.directions, internal, o.best.Score) {
		o.best = &optimizer.Observation{Tunables: tunables.Clone(), Score: internal}
	}

	if len(o.samples) >= o.minSamples && o.sinceRefit >= o.refitEvery {
		o.refit()
	}

	return internal, nil
}

func sumScore(s objective.ScoreMap) float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

func (o *Optimizer) refit() {
	defer func() {
		if r := recover(); r != nil {
			o.lastErr = errkind.UnableToProduceGuidedSuggestion
			o.forest = nil
			o.forests = nil
		}
	}()
	o.forest = Fit(o.samples, o.forestCfg, o.rng)
	if o.multiObjective() {
		forests := make(map[string]*Forest, len(o.directions))
		for name := range o.directions {
			perObjective := make([]sample, len(o.multiSamples))
			for i, ms := range o.multiSamples {
				perObjective[i] = sample{x: ms.x, y: ms.y[name]}
			}
			forests[name] = Fit(perObjective, o.forestCfg, o.rng)
		}
		o.forests = forests
	}
	o.sinceRefit = 0
	o.lastErr = nil
}

// BulkRegister pre-loads historical observations and immediately attempts a
// fit if enough data was loaded.
func (o *Optimizer) BulkRegister(configs []*tunable.Groups, scores []objective.ScoreMap, statuses []status.Status) bool {
	if len(configs) == 0 {
		return false
	}
	for i, cfg := range configs {
		_, _ = o.Register(cfg, statuses[i], scores[i])
	}
	return true
}

// NotConverged reports whether the iteration cap has not yet been reached.
func (o *Optimizer) NotConverged() bool {
	return o.maxIter <= 0 || o.iteration < o.maxIter
}

// GetBestObservation returns the best observation seen so far. For a
// multi-objective run it reports one representative point off the
// maintained Pareto frontier (the frontier row with the lowest summed
// internal score) rather than a single running-best, since no total order
// over the frontier's non-dominated rows exists.
func (o *Optimizer) GetBestObservation() (objective.ScoreMap, *tunable.Groups, bool) {
	if o.multiObjective() {
		scores, params := o.frontier.Current()
		if len(scores) == 0 {
			return nil, nil, false
		}
		best := 0
		for i := 1; i < len(scores); i++ {
			if optimizer.Less(o.directions, scores[i], scores[best]) {
				best = i
			}
		}
		return scores[best].Flip(o.directions), params[best], true
	}
	if o.best == nil {
		return nil, nil, false
	}
	return o.best.Score.Flip(o.directions), o.best.Tunables, true
}

// LastFitError returns the error from the most recent failed refit, if any
// (spec.md §4.4: "a surrogate fit failure must not crash the run; it
// degrades gracefully to random search and is reported to the caller").
func (o *Optimizer) LastFitError() error { return o.lastErr }
