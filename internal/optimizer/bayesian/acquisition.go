package bayesian

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/pareto"
	"github.com/benchtune/benchtune/internal/tunable"
)

// ucbKappa weights the exploration term of the acquisition function: score =
// mean - kappa*stddev (internal scores always minimize, so exploration
// favors the lower tail).
const ucbKappa = 1.96

// candidate is one acquisition-scored random-search proposal.
type candidate struct {
	groups *tunable.Groups
	x      []float64
	score  float64
}

// proposeNext runs a random-search sub-optimizer over numCandidates draws
// from adapter, scoring each by the forest's upper-confidence-bound value,
// and returns the best (spec.md §4.4 "Bayesian optimizer": acquisition
// optimization is itself random search over the surrogate, not a gradient
// method — consistent with the teacher's dependency-free numeric stack).
func proposeNext(forest *Forest, adapter Adapter, base *tunable.Groups, numCandidates int, rng *rand.Rand) *tunable.Groups {
	if numCandidates <= 0 {
		numCandidates = 64
	}

	var best *candidate
	for i := 0; i < numCandidates; i++ {
		g := adapter.Sample(rng, base)
		x := encode(g)
		pred := forest.Predict(x)
		s := ucb(pred)
		if best == nil || s < best.score {
			best = &candidate{groups: g, x: x, score: s}
		}
	}
	if best == nil {
		return adapter.Sample(rng, base)
	}
	return best.groups
}

// ucb scores a forest prediction for a minimizing acquisition: lower is
// better, preferring low mean and high uncertainty (exploration).
func ucb(p Prediction) float64 {
	if p.SampleSize == 0 {
		return math.Inf(-1) // unvisited region: always worth exploring
	}
	return p.Mean - ucbKappa*math.Sqrt(math.Max(p.Variance, 0))
}

// paretoCandidate is one acquisition-scored random-search proposal for the
// multi-objective path; score is a probability, higher is better.
type paretoCandidate struct {
	groups *tunable.Groups
	score  float64
}

// ppiMCDraws is the number of Monte Carlo draws used to estimate each
// candidate's probability of Pareto-improvement.
const ppiMCDraws = 64

// proposeNextParetoImprovement runs a random-search sub-optimizer over
// numCandidates draws from adapter, scoring each candidate by its estimated
// probability of Pareto-improvement over frontier, and returns the best
// (spec.md §4.4 "Acquisition": "for multi-objective: probability of
// Pareto-improvement over the current frontier").
func proposeNextParetoImprovement(forests map[string]*Forest, adapter Adapter, base *tunable.Groups, numCandidates int, rng *rand.Rand, frontier *pareto.Frontier) *tunable.Groups {
	if numCandidates <= 0 {
		numCandidates = 64
	}

	var best *paretoCandidate
	for i := 0; i < numCandidates; i++ {
		g := adapter.Sample(rng, base)
		x := encode(g)
		p := probabilityOfParetoImprovement(forests, x, frontier, rng)
		if best == nil || p > best.score {
			best = &paretoCandidate{groups: g, score: p}
		}
	}
	if best == nil {
		return adapter.Sample(rng, base)
	}
	return best.groups
}

// probabilityOfParetoImprovement estimates, via Monte Carlo, the fraction of
// draws from each objective's independent predicted Gaussian (forest mean
// and variance at x) that are not dominated by any row currently retained on
// frontier — i.e. would expand it.
func probabilityOfParetoImprovement(forests map[string]*Forest, x []float64, frontier *pareto.Frontier, rng *rand.Rand) float64 {
	if frontier.Len() == 0 {
		return 1 // an empty frontier is improved by anything
	}

	preds := make(map[string]Prediction, len(forests))
	for name, f := range forests {
		preds[name] = f.Predict(x)
	}

	var improvements int
	for i := 0; i < ppiMCDraws; i++ {
		draw := make(objective.ScoreMap, len(preds))
		for name, p := range preds {
			std := math.Sqrt(math.Max(p.Variance, 0))
			draw[name] = p.Mean + std*rng.NormFloat64()
		}
		if !frontier.Dominated(draw) {
			improvements++
		}
	}
	return float64(improvements) / float64(ppiMCDraws)
}
