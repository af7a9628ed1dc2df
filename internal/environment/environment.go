// Package environment implements the polymorphic target-system abstraction
// (spec.md §4.3 "Environment", C6): a context-scoped setup/run/status/teardown
// state machine that a Trial Runner drives through one trial's execution.
package environment

import (
	"context"
	"time"

	"github.com/benchtune/benchtune/internal/errkind"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Telemetry is a single (timestamp, metric, value) observation returned by
// Status, mirroring internal/trial.Telemetry without importing it (this
// package sits below internal/trial in the dependency graph).
type Telemetry struct {
	Timestamp time.Time
	Metric    string
	Value     float64
}

// Metrics is the free-form key/value result an Environment's Run reports.
type Metrics map[string]float64

// Environment is the state machine spec.md §4.3 describes:
//
//	        ┌──────────── Uninit ────────────┐
//	        │ EnterContext                   │
//	        ▼                                │
//	     Ready ◀──── Teardown ──── Running   │
//	        │                         ▲      │
//	        └── Setup(tunables) ──────┘      │
//	              (idempotent)               │
//	        ▲                                │
//	        │ ExitContext (any path)         │
//	        └────────────────────────────────┘
//
// Implementations must make EnterContext/ExitContext safe to call exactly
// once per trial and Setup/Teardown idempotent.
type Environment interface {
	// EnterContext acquires any service collaborators the environment needs
	// for the duration of one trial.
	EnterContext(ctx context.Context) error
	// ExitContext releases whatever EnterContext acquired, on every exit
	// path including a panic recovered by the caller.
	ExitContext(ctx context.Context) error
	// Setup brings the environment to Ready for the given tunable
	// assignment. Idempotent: a second call with the same tunables is a
	// no-op. A false return (not an error) means the trial is Failed.
	Setup(ctx context.Context, tunables *tunable.Groups, globalConfig map[string]string) (bool, error)
	// Run executes the benchmark. Must only be called while Ready. Metrics
	// is non-nil only when the returned status is succeeded.
	Run(ctx context.Context) (status.Status, time.Time, Metrics, error)
	// Status polls for telemetry observed since the previous call. May be
	// called at any point after EnterContext.
	Status(ctx context.Context) (status.Status, time.Time, []Telemetry, error)
	// Teardown idempotently returns the environment to Uninit-in-context.
	Teardown(ctx context.Context) error
}

// state is the lifecycle position tracked by the concrete implementations in
// this package (Composite, Mock); it is not part of the exported interface
// since alternate Environment implementations may track it differently.
type state int

const (
	stateUninit state = iota
	stateReady
	stateRunning
)

// errSetupFailed reports an environment that could not reach Ready.
var errSetupFailed = errkind.EnvironmentSetupFailed
