// Package scheduler implements the Scheduler (spec.md §4.6, C10): the
// closed loop that asks the Optimizer for a suggestion, schedules repeats as
// pending Trials, dispatches them to Trial Runners round-robin, collects and
// registers results, and persists everything to Storage, grounded on the
// teacher's reconcile-loop shape in controllers/experiment_controller.go
// (load → act → requeue, instead of load → act → return).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/benchtune/benchtune/internal/obs"
	"github.com/benchtune/benchtune/internal/optimizer"
	"github.com/benchtune/benchtune/internal/runner"
	"github.com/benchtune/benchtune/internal/status"
	"github.com/benchtune/benchtune/internal/storage"
	"github.com/benchtune/benchtune/internal/trial"
	"github.com/benchtune/benchtune/internal/tunable"
)

// fitErrorer is implemented by optimizer variants (the bayesian package)
// that can fail to produce a surrogate-driven suggestion and degrade to
// random search internally (spec.md §7 "UnableToProduceGuidedSuggestion").
// The scheduler only logs the degradation; Suggest itself never errors.
type fitErrorer interface {
	LastFitError() error
}

// Config configures a Scheduler.
type Config struct {
	Storage        storage.Storage
	Optimizer      optimizer.Optimizer
	Runners        []*runner.Runner
	Experiment     storage.ExperimentParams
	Tunables       *tunable.Groups
	RepeatCount    int // trial_config_repeat_count; defaults to 1
	MaxTrials      int // <= 0 means unbounded
	TrialTimeout   time.Duration
	TeardownOnExit bool
	Log            logr.Logger
	Metrics        *obs.Metrics
}

// Scheduler owns its optimizer, storage handle, and trial runners for its
// lifetime (spec.md §4.6 "Ownership").
type Scheduler struct {
	store       storage.Storage
	opt         optimizer.Optimizer
	runners     []*runner.Runner
	exp         *storage.Experiment
	base        *tunable.Groups
	repeatCount int
	maxTrials   int
	timeout     time.Duration
	teardown    bool
	log         logr.Logger
	metrics     *obs.Metrics

	expParams storage.ExperimentParams

	lastSeen   trial.ID
	trialCount int
	nextRunner int
}

// New constructs a Scheduler. It does not itself create or resume the
// experiment; call Run, which does so as the first step of its scoped
// context (spec.md §4.6 "Contract": "enters a scoped experiment context
// around the entire loop").
func New(cfg Config) *Scheduler {
	repeat := cfg.RepeatCount
	if repeat <= 0 {
		repeat = 1
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	return &Scheduler{
		store:       cfg.Storage,
		opt:         cfg.Optimizer,
		runners:     cfg.Runners,
		base:        cfg.Tunables,
		expParams:   cfg.Experiment,
		repeatCount: repeat,
		maxTrials:   cfg.MaxTrials,
		timeout:     cfg.TrialTimeout,
		teardown:    cfg.TeardownOnExit,
		log:         cfg.Log,
		metrics:     metrics,
	}
}

// Run enters the scoped experiment context, drives the loop until
// not_done() is false, and tears down on exit (spec.md §4.6 "Contract").
func (s *Scheduler) Run(ctx context.Context) error {
	exp, err := s.store.CreateOrResumeExperiment(ctx, s.expParams)
	if err != nil {
		return fmt.Errorf("scheduler: open experiment: %w", err)
	}
	s.exp = exp

	// Every Runner.Execute already tears down its Environment before
	// returning, so no Environment is ever left Running between
	// iterations; teardown-on-exit has nothing further to release beyond
	// storage itself (spec.md §4.6 "On exit").
	defer func() {
		if s.teardown {
			_ = s.store.Close(ctx)
		}
	}()

	if s.lastSeen == 0 && s.trialCount == 0 {
		if err := s.seed(ctx); err != nil {
			return fmt.Errorf("scheduler: seed: %w", err)
		}
	}

	for s.notDone() {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler loop canceled")
			return ctx.Err()
		default:
		}

		s.metrics.LoopIterations.Inc()
		if err := s.scheduleNewSuggestions(ctx); err != nil {
			return fmt.Errorf("scheduler: schedule_new_suggestions: %w", err)
		}
		if err := s.runSchedule(ctx); err != nil {
			return fmt.Errorf("scheduler: run_schedule: %w", err)
		}
	}
	return nil
}

// seed creates the initial trial from the caller-supplied tunable
// assignment (defaults, unless the caller pre-assigned non-default values
// onto s.base before construction) ahead of the optimizer-driven loop
// (spec.md §4.6 "start()": "seed with either a caller-supplied config_id
// tunable assignment or the defaults").
func (s *Scheduler) seed(ctx context.Context) error {
	if s.base == nil {
		return nil
	}
	meta := trial.Metadata{trial.MetaIsDefaults: fmt.Sprintf("%v", s.base.IsDefaults())}
	tsStart := time.Now().UTC()
	if _, err := s.store.NewTrial(ctx, s.exp, s.base, &tsStart, meta); err != nil {
		return err
	}
	s.trialCount++
	s.metrics.TrialsCreated.Inc()
	return nil
}

// notDone reports spec.md §4.6 "not_done()": optimizer.not_converged() AND
// (max_trials <= 0 OR trial_count < max_trials).
func (s *Scheduler) notDone() bool {
	if !s.opt.NotConverged() {
		return false
	}
	return s.maxTrials <= 0 || s.trialCount < s.maxTrials
}

// scheduleNewSuggestions loads completed trials not yet seen by the
// optimizer, bulk-registers them, advances last_seen, and — if the loop is
// not yet done — asks the optimizer for a suggestion and schedules
// RepeatCount repeat trials sharing one config_id (spec.md §4.6 step 1).
func (s *Scheduler) scheduleNewSuggestions(ctx context.Context) error {
	result, err := s.store.Load(ctx, s.exp, s.lastSeen)
	if err != nil {
		return err
	}
	if len(result.IDs) > 0 {
		s.opt.BulkRegister(result.Configs, result.Scores, result.Statuses)
		for _, id := range result.IDs {
			if id > s.lastSeen {
				s.lastSeen = id
			}
		}
		for _, st := range result.Statuses {
			s.metrics.ObserveTerminal(st)
		}
	}

	if fe, ok := s.opt.(fitErrorer); ok {
		if err := fe.LastFitError(); err != nil {
			s.log.Info("optimizer degraded to random suggestion", "reason", err)
		}
	}

	if !s.notDone() {
		return nil
	}

	suggestion := s.opt.Suggest()
	directions := directionsMetadata(s.exp)
	for i := 0; i < s.repeatCount; i++ {
		if s.maxTrials > 0 && s.trialCount >= s.maxTrials {
			break
		}
		meta := trial.Metadata{
			trial.MetaRepeatIndex: fmt.Sprintf("%d", i),
			trial.MetaDirections:  directions,
		}
		if suggestion.IsDefaults() {
			meta[trial.MetaIsDefaults] = "true"
		}
		tsStart := time.Now().UTC()
		if _, err := s.store.NewTrial(ctx, s.exp, suggestion, &tsStart, meta); err != nil {
			return err
		}
		s.trialCount++
		s.metrics.TrialsCreated.Inc()
	}
	return nil
}

func directionsMetadata(exp *storage.Experiment) string {
	names := make([]string, 0, len(exp.Objectives))
	for name, dir := range exp.Objectives {
		names = append(names, fmt.Sprintf("%s:%s", name, dir))
	}
	return fmt.Sprintf("%v", names)
}

// runSchedule assigns a runner round-robin to every trial eligible to run and
// dispatches it, waiting for this iteration's dispatches to complete before
// returning. Different runners execute in parallel; trials assigned to the
// same runner execute one after another (spec.md §4.6 step 2; spec.md §5
// "Trial Runners may execute in parallel threads").
func (s *Scheduler) runSchedule(ctx context.Context) error {
	pending, err := s.store.PendingTrials(ctx, s.exp, time.Now().UTC(), false)
	if err != nil {
		return err
	}
	s.metrics.PendingTrials.Set(float64(len(pending)))
	if len(pending) == 0 {
		return nil
	}

	// One lock per runner keeps each runner to one trial at a time.
	busy := make(map[*runner.Runner]*sync.Mutex, len(s.runners))
	for _, r := range s.runners {
		busy[r] = &sync.Mutex{}
	}
	var wg sync.WaitGroup
	for _, tr := range pending {
		if len(s.runners) == 0 {
			break
		}
		r := s.assignRunner(tr)

		tunables, err := s.store.ConfigTunables(ctx, s.exp, tr.ConfigID)
		if err != nil {
			s.log.Info("could not reconstruct trial config, failing trial", "trial", tr.TrialID, "err", err)
			_ = s.store.UpdateTrial(ctx, tr, status.Failed, time.Now().UTC(), nil)
			continue
		}

		wg.Add(1)
		go func(r *runner.Runner, tr *trial.Trial, tunables *tunable.Groups) {
			defer wg.Done()
			busy[r].Lock()
			defer busy[r].Unlock()
			deadline := time.Now().Add(s.timeout)
			if s.timeout <= 0 {
				deadline = time.Now().Add(24 * time.Hour)
			}
			// Terminal-status counters are driven once, from Load in
			// scheduleNewSuggestions, to avoid double-counting a trial
			// both here and when it's next loaded.
			if execErr := r.Execute(ctx, s.store, s.exp, tr, tunables, deadline); execErr != nil {
				s.log.Info("trial execution error", "trial", tr.TrialID, "runner", r.ID(), "err", execErr)
			}
		}(r, tr, tunables)
	}
	wg.Wait()
	return nil
}

// assignRunner implements the default round-robin assign_trial_runner
// policy (spec.md §4.6 "Trial repeat policy"): a trial must not already
// carry a trial_runner_id.
func (s *Scheduler) assignRunner(tr *trial.Trial) *runner.Runner {
	r := s.runners[s.nextRunner%len(s.runners)]
	s.nextRunner++
	tr.RunnerID = r.ID()
	return r
}
