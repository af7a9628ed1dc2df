package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benchtune/benchtune/internal/errkind"
	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/trial"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Memory is an in-process Storage implementation: the reference semantics
// against which internal/storage/sql is tested, and the backend used by the
// scheduler's own unit tests and Environment-less dry runs.
type Memory struct {
	mu sync.Mutex

	experiments map[string]*Experiment
	configs     map[string]trial.ConfigID // content hash -> config id
	configDefs  map[trial.ConfigID]*tunable.Groups
	nextConfig  trial.ConfigID

	trials map[string]map[trial.ID]*trial.Trial // exp id -> trial id -> trial
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		experiments: make(map[string]*Experiment),
		configs:     make(map[string]trial.ConfigID),
		configDefs:  make(map[trial.ConfigID]*tunable.Groups),
		trials:      make(map[string]map[trial.ID]*trial.Trial),
	}
}

func (m *Memory) CreateOrResumeExperiment(ctx context.Context, p ExperimentParams) (*Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, err := SignatureOf(p.Tunables)
	if err != nil {
		return nil, fmt.Errorf("%w: computing tunable signature: %v", errkind.Invalid, err)
	}

	if existing, ok := m.experiments[p.ID]; ok {
		if !existing.Objectives.Equal(p.Objectives) {
			return nil, fmt.Errorf("%w: experiment %q objectives differ from stored state", errkind.IncompatibleResume, p.ID)
		}
		if existing.signature != sig {
			return nil, fmt.Errorf("%w: experiment %q tunable signature differs from stored state", errkind.IncompatibleResume, p.ID)
		}
		return existing, nil
	}

	exp := &Experiment{
		ID:            p.ID,
		Description:   p.Description,
		GitRepo:       p.GitRepo,
		GitCommit:     p.GitCommit,
		RootEnvConfig: p.RootEnvConfig,
		Objectives:    p.Objectives,
		StartTrialID:  p.StartTrialID,
		Tunables:      p.Tunables,
		signature:     sig,
		nextID:        p.StartTrialID,
	}
	m.experiments[p.ID] = exp
	m.trials[p.ID] = make(map[trial.ID]*trial.Trial)
	return exp, nil
}

func (m *Memory) GetOrInsertConfig(ctx context.Context, exp *Experiment, tunables *tunable.Groups) (trial.ConfigID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrInsertConfigLocked(tunables)
}

func (m *Memory) getOrInsertConfigLocked(tunables *tunable.Groups) (trial.ConfigID, error) {
	sum := sha256.Sum256([]byte(tunables.CanonicalString()))
	hash := hex.EncodeToString(sum[:])
	if id, ok := m.configs[hash]; ok {
		return id, nil
	}
	m.nextConfig++
	id := m.nextConfig
	m.configs[hash] = id
	m.configDefs[id] = tunables.Clone()
	return id, nil
}

func (m *Memory) ConfigTunables(ctx context.Context, exp *Experiment, id trial.ConfigID) (*tunable.Groups, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.configDefs[id]
	if !ok {
		return nil, fmt.Errorf("%w: config %d not found", errkind.Invalid, id)
	}
	return g.Clone(), nil
}

func (m *Memory) NewTrial(ctx context.Context, exp *Experiment, tunables *tunable.Groups, tsStart *time.Time, meta trial.Metadata) (*trial.Trial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	configID, err := m.getOrInsertConfigLocked(tunables)
	if err != nil {
		return nil, err
	}

	start := time.Now().UTC()
	if tsStart != nil {
		start = *tsStart
	}

	id := exp.nextID
	exp.nextID++

	tr := trial.New(exp.ID, id, configID, start, meta)
	m.trials[exp.ID][id] = tr
	return tr, nil
}

func (m *Memory) PendingTrials(ctx context.Context, exp *Experiment, nowUTC time.Time, includeRunning bool) ([]*trial.Trial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	eligible := map[status.Status]bool{status.Pending: true}
	if includeRunning {
		eligible[status.Ready] = true
		eligible[status.Running] = true
	}

	var out []*trial.Trial
	for _, tr := range m.trials[exp.ID] {
		if tr.TSEnd != nil {
			continue
		}
		if !tr.TSStart.IsZero() && tr.TSStart.After(nowUTC) {
			continue
		}
		if !eligible[tr.Status] {
			continue
		}
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialID < out[j].TrialID })
	return out, nil
}

func (m *Memory) Load(ctx context.Context, exp *Experiment, afterTrialID trial.ID) (LoadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []trial.ID
	for id, tr := range m.trials[exp.ID] {
		if id <= afterTrialID || !tr.Status.IsCompleted() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	res := LoadResult{}
	for _, id := range ids {
		tr := m.trials[exp.ID][id]
		res.IDs = append(res.IDs, id)
		res.Configs = append(res.Configs, m.configDefs[tr.ConfigID])
		res.Statuses = append(res.Statuses, tr.Status)
		if tr.Status.IsSucceeded() {
			sm := make(objective.ScoreMap, len(tr.Result))
			for k, v := range tr.Result {
				sm[k] = v
			}
			res.Scores = append(res.Scores, sm)
		} else {
			res.Scores = append(res.Scores, nil)
		}
	}
	return res, nil
}

func (m *Memory) UpdateTrial(ctx context.Context, tr *trial.Trial, s status.Status, ts time.Time, metrics map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tr.Status.IsCompleted() {
		return nil // T-Terminal-Immutable
	}
	if metrics != nil && s != status.Succeeded {
		return fmt.Errorf("%w: metrics may only be set on a Succeeded trial, got %s", errkind.Invalid, s)
	}

	if s.IsCompleted() {
		tr.MarkTerminal(s, ts)
	} else {
		tr.Status = s
	}
	if metrics != nil {
		tr.SetResult(metrics)
	}
	return nil
}

func (m *Memory) AppendTelemetry(ctx context.Context, tr *trial.Trial, points []trial.Telemetry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr.AppendTelemetry(points...)
	return nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }
