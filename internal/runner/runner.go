// Package runner implements the Trial Runner (spec.md §4.3 "Trial Runner",
// C7): the executor of a single trial, owning one Environment.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/benchtune/benchtune/internal/environment"
	"github.com/benchtune/benchtune/internal/retry"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/storage"
	"github.com/benchtune/benchtune/internal/trial"
	"github.com/benchtune/benchtune/internal/tunable"
)

// Runner owns one Environment and a stable id assigned at construction
// (spec.md §4.3 "Trial Runner"). Not safe for concurrent Execute calls: the
// scheduler guarantees one trial per runner at a time.
type Runner struct {
	id          string
	env         environment.Environment
	log         logr.Logger
	pollEvery   time.Duration
	retryPolicy retry.Policy
}

// Option configures a Runner.
type Option func(*Runner)

// WithPollInterval overrides the default status-poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.pollEvery = d }
}

// WithRetryPolicy overrides the bounded-retry policy wrapping Environment
// I/O (spec.md §5 "Retry discipline").
func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Runner) { r.retryPolicy = p }
}

const defaultPollInterval = time.Second

// New constructs a Runner with a freshly generated trial_runner_id.
func New(env environment.Environment, log logr.Logger, opts ...Option) *Runner {
	r := &Runner{
		id:          uuid.NewString(),
		env:         env,
		log:         log,
		pollEvery:   defaultPollInterval,
		retryPolicy: retry.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the runner's stable trial_runner_id.
func (r *Runner) ID() string { return r.id }

// Execute runs trial tr against its tunable assignment per spec.md §4.3's
// step list, persisting status/metrics/telemetry to store as it goes.
// Any panic during setup/run/poll marks the trial Failed with the captured
// error; teardown and context-exit always run.
func (r *Runner) Execute(ctx context.Context, store storage.Storage, exp *storage.Experiment, tr *trial.Trial, tunables *tunable.Groups, deadline time.Time) (err error) {
	log := r.log.WithValues("trial", tr.TrialID, "runner", r.id)

	if enterErr := r.env.EnterContext(ctx); enterErr != nil {
		return fmt.Errorf("runner %s: enter_context: %w", r.id, enterErr)
	}
	defer func() {
		if exitErr := r.env.ExitContext(ctx); exitErr != nil && err == nil {
			err = fmt.Errorf("runner %s: exit_context: %w", r.id, exitErr)
		}
	}()

	defer func() {
		if rec := recover(); rec != nil {
			log.Info("trial panicked, marking failed", "panic", rec)
			r.failTrial(ctx, store, tr, fmt.Errorf("panic: %v", rec))
		}
		// teardown always runs, inside this guaranteed-release scope
		// (spec.md §4.3 step 5), regardless of how steps 2-4 exited.
		if tdErr := r.env.Teardown(ctx); tdErr != nil {
			log.Info("teardown error", "err", tdErr)
		}
	}()

	ok, setupErr := r.retrySetup(ctx, tunables)
	if setupErr != nil {
		r.failTrial(ctx, store, tr, setupErr)
		return nil
	}
	if !ok {
		log.Info("environment setup failed")
		r.failTrial(ctx, store, tr, nil)
		return nil
	}

	runStatus, runTS, metrics, runErr := r.env.Run(ctx)
	if runErr != nil {
		r.failTrial(ctx, store, tr, runErr)
		return nil
	}
	if runStatus.IsCompleted() {
		r.persistTerminal(ctx, store, tr, runStatus, runTS, metrics, log)
		return nil
	}

	return r.pollUntilTerminal(ctx, store, tr, deadline, log)
}

func (r *Runner) retrySetup(ctx context.Context, tunables *tunable.Groups) (bool, error) {
	var ok bool
	err := retry.Do(ctx, r.retryPolicy, func() error {
		var setupErr error
		ok, setupErr = r.env.Setup(ctx, tunables, nil)
		return setupErr
	})
	return ok, err
}

func (r *Runner) pollUntilTerminal(ctx context.Context, store storage.Storage, tr *trial.Trial, deadline time.Time, log logr.Logger) error {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		if !deadline.IsZero() && !time.Now().UTC().Before(deadline) {
			r.timeoutTrial(ctx, store, tr)
			return nil
		}
		select {
		case <-ctx.Done():
			r.timeoutTrial(ctx, store, tr)
			return nil
		case <-ticker.C:
			st, ts, telemetry, statusErr := r.env.Status(ctx)
			if statusErr != nil {
				r.failTrial(ctx, store, tr, statusErr)
				return nil
			}
			if len(telemetry) > 0 {
				if err := store.AppendTelemetry(ctx, tr, toTrialTelemetry(telemetry)); err != nil {
					log.Info("append_telemetry failed", "err", err)
				}
			}
			if st.IsCompleted() {
				r.persistTerminal(ctx, store, tr, st, ts, nil, log)
				return nil
			}
		}
	}
}

func toTrialTelemetry(points []environment.Telemetry) []trial.Telemetry {
	out := make([]trial.Telemetry, len(points))
	for i, p := range points {
		out[i] = trial.Telemetry{Timestamp: p.Timestamp, Metric: p.Metric, Value: p.Value}
	}
	return out
}

func (r *Runner) persistTerminal(ctx context.Context, store storage.Storage, tr *trial.Trial, st status.Status, ts time.Time, metrics environment.Metrics, log logr.Logger) {
	var result map[string]float64
	if st.IsSucceeded() && metrics != nil {
		result = map[string]float64(metrics)
	}
	if err := store.UpdateTrial(ctx, tr, st, ts, result); err != nil {
		log.Info("update_trial failed", "err", err)
	}
}

func (r *Runner) failTrial(ctx context.Context, store storage.Storage, tr *trial.Trial, cause error) {
	logger := r.log.WithValues("trial", tr.TrialID)
	if cause != nil {
		logger.Info("trial failed", "err", cause)
	}
	if err := store.UpdateTrial(ctx, tr, status.Failed, time.Now().UTC(), nil); err != nil {
		logger.Info("update_trial failed while failing trial", "err", err)
	}
}

func (r *Runner) timeoutTrial(ctx context.Context, store storage.Storage, tr *trial.Trial) {
	logger := r.log.WithValues("trial", tr.TrialID)
	if err := store.UpdateTrial(ctx, tr, status.TimedOut, time.Now().UTC(), nil); err != nil {
		logger.Info("update_trial failed while timing out trial", "err", err)
	}
}
