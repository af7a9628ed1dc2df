package bayesian

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// sample is one (features, observed internal score) training row.
type sample struct {
	x []float64
	y float64
}

// leaf holds the training targets that landed in it, kept (rather than just
// their mean) so prediction can report sample variance alongside the mean.
type leaf struct {
	targets []float64
}

// node is one CART-style regression tree node: either an internal split or
// a leaf.
type node struct {
	feature int
	thresh  float64
	left    *node
	right   *node
	leaf    *leaf
}

// tree is a single regression tree within the forest.
type tree struct {
	root *node
}

func (t *tree) predict(x []float64) *leaf {
	n := t.root
	for n.leaf == nil {
		if x[n.feature] <= n.thresh {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.leaf
}

// Forest is a homogeneous random forest regression surrogate (spec.md
// §4.4 "Bayesian optimizer": mean, variance, and sample count per
// prediction, derived via bootstrap aggregation and per-split feature
// subsampling rather than a single deterministic tree).
type Forest struct {
	trees       []*tree
	minLeafSize int
	maxDepth    int
}

// ForestConfig configures forest construction.
type ForestConfig struct {
	NumTrees          int
	MinSamplesPerLeaf int
	MaxDepth          int
	FeatureSubsample  float64 // fraction of features considered per split, (0,1]
}

// Fit grows a fresh forest over the training samples, bootstrap-resampling
// rows for each tree. Every tree shares the same hyperparameters. Features
// are subsampled at every split (see bestSplit), not once per tree: no tree
// is restricted to a fixed subset of dimensions, and trees differ both by
// their bootstrap sample and by the features drawn at each split.
func Fit(samples []sample, cfg ForestConfig, rng *rand.Rand) *Forest {
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = 10
	}
	if cfg.MinSamplesPerLeaf <= 0 {
		cfg.MinSamplesPerLeaf = 3
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 8
	}
	if cfg.FeatureSubsample <= 0 || cfg.FeatureSubsample > 1 {
		cfg.FeatureSubsample = 1
	}

	f := &Forest{minLeafSize: cfg.MinSamplesPerLeaf, maxDepth: cfg.MaxDepth}
	if len(samples) == 0 {
		return f
	}
	numFeatures := len(samples[0].x)
	subFeatures := int(math.Max(1, math.Round(float64(numFeatures)*cfg.FeatureSubsample)))

	for i := 0; i < cfg.NumTrees; i++ {
		boot := bootstrap(samples, rng)
		root := buildNode(boot, subFeatures, 0, cfg.MaxDepth, cfg.MinSamplesPerLeaf, rng)
		f.trees = append(f.trees, &tree{root: root})
	}
	return f
}

func bootstrap(samples []sample, rng *rand.Rand) []sample {
	out := make([]sample, len(samples))
	for i := range out {
		out[i] = samples[rng.Intn(len(samples))]
	}
	return out
}

func buildNode(samples []sample, subFeatures, depth, maxDepth, minLeaf int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(samples) <= minLeaf*2 {
		return &node{leaf: newLeaf(samples)}
	}

	feature, thresh, gain := bestSplit(samples, subFeatures, rng)
	if gain <= 0 {
		return &node{leaf: newLeaf(samples)}
	}

	var leftSet, rightSet []sample
	for _, s := range samples {
		if s.x[feature] <= thresh {
			leftSet = append(leftSet, s)
		} else {
			rightSet = append(rightSet, s)
		}
	}
	if len(leftSet) < minLeaf || len(rightSet) < minLeaf {
		return &node{leaf: newLeaf(samples)}
	}

	return &node{
		feature: feature,
		thresh:  thresh,
		left:    buildNode(leftSet, subFeatures, depth+1, maxDepth, minLeaf, rng),
		right:   buildNode(rightSet, subFeatures, depth+1, maxDepth, minLeaf, rng),
	}
}

func newLeaf(samples []sample) *leaf {
	targets := make([]float64, len(samples))
	for i, s := range samples {
		targets[i] = s.y
	}
	return &leaf{targets: targets}
}

// bestSplit scans a random subset of features and, for each, every observed
// value as a candidate threshold, choosing the split minimizing the
// variance-weighted sum of the two resulting children (CART regression
// criterion).
func bestSplit(samples []sample, subFeatures int, rng *rand.Rand) (feature int, thresh, gain float64) {
	numFeatures := len(samples[0].x)
	candidates := rng.Perm(numFeatures)
	if subFeatures < numFeatures {
		candidates = candidates[:subFeatures]
	}

	_, parentVar := meanVar(samples)
	bestGain := 0.0
	bestFeature := -1
	bestThresh := 0.0

	for _, f := range candidates {
		thresholds := uniqueValues(samples, f)
		for _, th := range thresholds {
			var left, right []float64
			for _, s := range samples {
				if s.x[f] <= th {
					left = append(left, s.y)
				} else {
					right = append(right, s.y)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			_, lv := meanVarOf(left)
			_, rv := meanVarOf(right)
			weighted := (float64(len(left))*lv + float64(len(right))*rv) / float64(len(samples))
			g := parentVar - weighted
			if g > bestGain {
				bestGain, bestFeature, bestThresh = g, f, th
			}
		}
	}
	return bestFeature, bestThresh, bestGain
}

func uniqueValues(samples []sample, feature int) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, s := range samples {
		v := s.x[feature]
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func meanVar(samples []sample) (mean, variance float64) {
	y := make([]float64, len(samples))
	for i, s := range samples {
		y[i] = s.y
	}
	return meanVarOf(y)
}

func meanVarOf(y []float64) (mean, variance float64) {
	if len(y) == 0 {
		return 0, 0
	}
	if len(y) == 1 {
		return y[0], 0
	}
	mean, std := stat.MeanStdDev(y, nil)
	return mean, std * std
}

// Prediction summarizes the forest's belief at one point, enough to drive a
// UCB acquisition function.
type Prediction struct {
	Mean           float64
	Variance       float64 // law-of-total-variance pooling across trees
	SampleVariance float64 // mean within-leaf sample variance
	SampleSize     int
}

// Predict pools every tree's leaf prediction at x via the law of total
// variance: Var[Y] = E[Var[Y|tree]] + Var[E[Y|tree]] (spec.md §4.4
// "Bayesian optimizer": forest uncertainty combines within-leaf and
// across-tree variance, not within-leaf variance alone).
func (f *Forest) Predict(x []float64) Prediction {
	if len(f.trees) == 0 {
		return Prediction{}
	}

	leafMeans := make([]float64, len(f.trees))
	leafVars := make([]float64, len(f.trees))
	totalSamples := 0
	for i, t := range f.trees {
		l := t.predict(x)
		m, v := meanVarOf(l.targets)
		leafMeans[i] = m
		leafVars[i] = v
		totalSamples += len(l.targets)
	}

	grandMean, acrossTreeVar := meanVarOf(leafMeans)
	withinMean, _ := meanVarOf(leafVars)

	return Prediction{
		Mean:           grandMean,
		Variance:       withinMean + acrossTreeVar,
		SampleVariance: withinMean,
		SampleSize:     totalSamples,
	}
}
