package environment

import (
	"context"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

// MockConfig configures Mock's synthetic benchmark.
type MockConfig struct {
	// Metrics names the output metrics produced by Run/Status; all share the
	// same computed score. Defaults to {"score"}.
	Metrics []string
	// Seed seeds the Gaussian noise added to the score. Seed < 0 disables
	// noise (deterministic output), matching mlos_bench's mock_env_seed=-1
	// convention.
	Seed int64
	// Range rescales the [0,1] score to [Lo, Hi] when non-nil.
	Range *tunable.Range
	// SetupFails, when true, makes Setup report false (simulating an
	// environment that cannot reach Ready).
	SetupFails bool
}

const mockNoiseStdDev = 0.2

// Mock is a deterministic in-process Environment producing a synthetic
// score as a function of the tunable assignment, grounded on MLOS's
// mock_env.py MockEnv: score is the mean of squared normalized tunable
// values, perturbed by Gaussian noise and optionally rescaled.
type Mock struct {
	cfg     MockConfig
	rng     *rand.Rand
	state   state
	current *tunable.Groups
}

// NewMock constructs a Mock environment per cfg.
func NewMock(cfg MockConfig) *Mock {
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = []string{"score"}
	}
	m := &Mock{cfg: cfg}
	if cfg.Seed >= 0 {
		m.rng = rand.New(rand.NewSource(uint64(cfg.Seed)))
	}
	return m
}

func (m *Mock) EnterContext(ctx context.Context) error { return nil }
func (m *Mock) ExitContext(ctx context.Context) error   { return nil }

// Setup is idempotent: a second call with tunables equal (by CanonicalString)
// to the current assignment is a no-op, matching spec.md §4.3's idempotence
// requirement.
func (m *Mock) Setup(ctx context.Context, tunables *tunable.Groups, globalConfig map[string]string) (bool, error) {
	if m.cfg.SetupFails {
		return false, nil
	}
	if m.current != nil && m.current.CanonicalString() == tunables.CanonicalString() {
		m.state = stateReady
		return true, nil
	}
	m.current = tunables.Clone()
	m.state = stateReady
	return true, nil
}

func (m *Mock) Run(ctx context.Context) (status.Status, time.Time, Metrics, error) {
	now := time.Now().UTC()
	if m.state != stateReady {
		return status.Failed, now, nil, nil
	}
	m.state = stateRunning
	return status.Succeeded, now, m.produceMetrics(), nil
}

func (m *Mock) Status(ctx context.Context) (status.Status, time.Time, []Telemetry, error) {
	now := time.Now().UTC()
	if m.state == stateUninit {
		return status.Unknown, now, nil, nil
	}
	metrics := m.produceMetrics()
	out := make([]Telemetry, 0, len(metrics))
	for metric, v := range metrics {
		out = append(out, Telemetry{Timestamp: now, Metric: metric, Value: v})
	}
	return status.Ready, now, out, nil
}

func (m *Mock) Teardown(ctx context.Context) error {
	m.state = stateUninit
	return nil
}

func (m *Mock) produceMetrics() Metrics {
	score := m.score()
	out := make(Metrics, len(m.cfg.Metrics))
	for _, name := range m.cfg.Metrics {
		out[name] = score
	}
	return out
}

func (m *Mock) score() float64 {
	if m.current == nil {
		return 0
	}
	var sumSquares float64
	var n int
	for _, name := range m.current.TunableNames() {
		tun, _ := m.current.Lookup(name)
		norm := tun.Normalize(tun.Current)
		sumSquares += norm * norm
		n++
	}
	score := 0.0
	if n > 0 {
		score = sumSquares / float64(n)
	}
	if m.rng != nil {
		score += distuv.Normal{Mu: 0, Sigma: mockNoiseStdDev, Src: m.rng}.Rand()
	}
	score = clip(score, 0, 1)
	if m.cfg.Range != nil {
		score = m.cfg.Range.Lo + score*(m.cfg.Range.Hi-m.cfg.Range.Lo)
	}
	return score
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
