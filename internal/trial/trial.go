// Package trial implements the Trial data model (spec.md §3 "Trial"): the
// unit of work a Trial Runner executes and Storage persists, identified by
// (experiment_id, trial_id), grounded on the teacher's TrialItem/TrialStatus
// shape in redskyapi/experiments/v1alpha1/trial.go but reworked around
// status.Status and a free-form metadata map instead of a Kubernetes CRD.
package trial

import (
	"time"

	"github.com/benchtune/benchtune/internal/status"
)

// ID is a trial's ordinal within its experiment, strictly ascending starting
// at the experiment's configured start_trial_id (spec.md T-Trial-Monotone).
type ID int64

// ConfigID identifies a deduplicated tunable configuration in storage.
type ConfigID int64

// Metadata is the free-form config-metadata map carried on a Trial:
// optimizer name, repeat index, is_defaults flag, objective-direction
// snapshot (spec.md §3 "Trial", supplemented per SPEC_FULL.md from MLOS's
// trial metadata handling).
type Metadata map[string]string

const (
	MetaOptimizer   = "optimizer"
	MetaRepeatIndex = "repeat_i"
	MetaIsDefaults  = "is_defaults"
	MetaDirections  = "directions"
)

// Telemetry is a single (timestamp, metric, value) observation, part of a
// trial's ordered telemetry stream (spec.md §3, §5 ordering: "(ts,
// metric_name)").
type Telemetry struct {
	Timestamp time.Time
	Metric    string
	Value     float64
}

// Trial is one execution of a tunable configuration against an Environment.
type Trial struct {
	ExperimentID string
	TrialID      ID
	ConfigID     ConfigID
	RunnerID     string // empty until a Trial Runner is assigned
	Status       status.Status
	TSStart      time.Time
	TSEnd        *time.Time // nil until the trial reaches a terminal status
	Metadata     Metadata
	Result       map[string]float64 // trial_result: set only when Status.IsSucceeded()
	Telemetry    []Telemetry
}

// New constructs a Pending trial for the given experiment/config, truncating
// ts_start to microsecond precision per spec.md §4.2 "Timestamps".
func New(experimentID string, id ID, configID ConfigID, tsStart time.Time, meta Metadata) *Trial {
	if meta == nil {
		meta = Metadata{}
	}
	return &Trial{
		ExperimentID: experimentID,
		TrialID:      id,
		ConfigID:     configID,
		Status:       status.Pending,
		TSStart:      TruncateMicro(tsStart),
		Metadata:     meta,
	}
}

// TruncateMicro truncates t to microsecond precision in UTC, the storage
// layer's persisted timestamp granularity (spec.md §4.2 "Timestamps": avoids
// future-rounding by backends that truncate more coarsely than they were
// asked to, which could otherwise skip a pending_trials window boundary).
func TruncateMicro(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// HasRunner reports whether a Trial Runner has already been assigned.
func (t *Trial) HasRunner() bool { return t.RunnerID != "" }

// MarkTerminal idempotently transitions the trial to a terminal status,
// setting ts_end. Calls on an already-terminal trial have no effect
// (spec.md T-Terminal-Immutable).
func (t *Trial) MarkTerminal(s status.Status, ts time.Time) {
	if t.Status.IsCompleted() {
		return
	}
	if !s.IsCompleted() {
		return
	}
	t.Status = s
	end := TruncateMicro(ts)
	t.TSEnd = &end
}

// AppendTelemetry appends observations to the trial's telemetry stream.
// Pure append, regardless of status (spec.md §4.2 append_telemetry).
func (t *Trial) AppendTelemetry(points ...Telemetry) {
	t.Telemetry = append(t.Telemetry, points...)
}

// SetResult records succeeded-trial metrics. Only meaningful when Status is
// Succeeded; callers (Storage.update_trial) are responsible for enforcing
// that invariant before calling this.
func (t *Trial) SetResult(metrics map[string]float64) {
	t.Result = metrics
}
