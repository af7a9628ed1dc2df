// Package storage defines the durable, append-only experiment/trial/config/
// telemetry store (spec.md C5, §4.2, §6 logical schema) as a Go interface,
// plus an in-memory reference implementation for tests and dry runs. The
// PostgreSQL-backed implementation lives in internal/storage/sql, grounded
// on longregen-alicia's Store/WithTx/conn(ctx) transaction pattern.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/trial"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Experiment is the persisted identity and configuration of one optimization
// run (spec.md §3 "Experiment").
type Experiment struct {
	ID            string
	Description   string
	GitRepo       string
	GitCommit     string
	RootEnvConfig string
	Objectives    objective.Map
	StartTrialID  trial.ID
	MergedIDs     []string
	Tunables      *tunable.Groups // the experiment's tunable-space structure, for reconstructing stored configs

	signature string // canonical JSON of the tunable definition, for resume compatibility
	nextID    trial.ID
}

// ExperimentParams are the arguments to CreateOrResumeExperiment.
type ExperimentParams struct {
	ID            string
	StartTrialID  trial.ID
	RootEnvConfig string
	Description   string
	GitRepo       string
	GitCommit     string
	Tunables      *tunable.Groups
	Objectives    objective.Map
}

// SignatureOf renders a tunable space's definition (type/default/range, not
// current value) as a deterministic JSON string; encoding/json sorts map
// keys alphabetically, which is what makes this deterministic across runs.
// Used both here and by internal/storage/sql to detect an incompatible
// resume (spec.md §3 "Experiment" invariant).
func SignatureOf(g *tunable.Groups) (string, error) {
	b, err := json.Marshal(tunable.Definitions(g))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadResult is the return value of Storage.Load: parallel slices describing
// every terminal trial with trial_id > after_trial_id, in ascending order.
type LoadResult struct {
	IDs      []trial.ID
	Configs  []*tunable.Groups
	Scores   []objective.ScoreMap // populated only for succeeded trials; nil entries otherwise
	Statuses []status.Status
}

// Storage is the durable append-only store contract (spec.md §4.2).
type Storage interface {
	// CreateOrResumeExperiment creates a new experiment or validates and
	// resumes an existing one. Resuming with an incompatible objective map
	// or tunable signature returns an error wrapping errkind.IncompatibleResume.
	CreateOrResumeExperiment(ctx context.Context, p ExperimentParams) (*Experiment, error)

	// GetOrInsertConfig deduplicates a tunable assignment by the SHA-256 of
	// its canonical string form, returning the same config_id for
	// semantically identical assignments (spec.md T-Config-Dedup).
	GetOrInsertConfig(ctx context.Context, exp *Experiment, tunables *tunable.Groups) (trial.ConfigID, error)

	// ConfigTunables reconstructs the tunable assignment a config_id refers
	// to, against exp's tunable-space structure, used by the scheduler to
	// recover a pending trial's configuration for dispatch.
	ConfigTunables(ctx context.Context, exp *Experiment, id trial.ConfigID) (*tunable.Groups, error)

	// NewTrial allocates the next trial_id for exp, links it to a
	// deduplicated config_id, and persists it with status Pending.
	NewTrial(ctx context.Context, exp *Experiment, tunables *tunable.Groups, tsStart *time.Time, meta trial.Metadata) (*trial.Trial, error)

	// PendingTrials returns trials with ts_end IS NULL, ts_start <= nowUTC
	// OR NULL, and status in {Pending} (or {Pending, Ready, Running} when
	// includeRunning), ordered by trial_id.
	PendingTrials(ctx context.Context, exp *Experiment, nowUTC time.Time, includeRunning bool) ([]*trial.Trial, error)

	// Load returns every terminal trial with trial_id > afterTrialID in
	// ascending order; Scores is populated only for succeeded trials.
	Load(ctx context.Context, exp *Experiment, afterTrialID trial.ID) (LoadResult, error)

	// UpdateTrial is idempotent; on a terminal status it sets ts_end and
	// records metrics. Calls against an already-terminal trial are no-ops
	// (spec.md T-Terminal-Immutable). Updating with non-nil metrics while s
	// is not Succeeded is rejected.
	UpdateTrial(ctx context.Context, tr *trial.Trial, s status.Status, ts time.Time, metrics map[string]float64) error

	// AppendTelemetry is a pure append to the trial's telemetry stream.
	AppendTelemetry(ctx context.Context, tr *trial.Trial, points []trial.Telemetry) error

	// Close releases any held resources (connection pools, file handles).
	Close(ctx context.Context) error
}
