package run

import (
	"fmt"
	"time"

	"github.com/benchtune/benchtune/internal/objective"
	"github.com/benchtune/benchtune/internal/tunable"
)

// rootConfig is the decoded shape of the root scheduler config file plus
// any --globals overlays (spec.md §6 "Storage schema (logical)" and
// "Tunable Groups definition" field names).
type rootConfig struct {
	ExpID         string `json:"exp_id"`
	Description   string `json:"description"`
	GitRepo       string `json:"git_repo"`
	GitCommit     string `json:"git_commit"`
	RootEnvConfig string `json:"root_env_config"`
	StartTrialID  int64  `json:"start_trial_id"`

	Objectives    map[string]string `json:"objectives"` // target name -> "min"|"max"
	TunableParams tunable.GroupsDef `json:"tunable_params"`

	Optimizer optimizerConfig `json:"optimizer"`
	Storage   storageConfig   `json:"storage"`

	Runners                int `json:"runners"`
	TrialConfigRepeatCount int `json:"trial_config_repeat_count"`
	MaxTrials              int `json:"max_trials"`
	// TrialTimeoutSeconds is the per-trial deadline; 0 means no deadline.
	TrialTimeoutSeconds int `json:"trial_timeout_seconds"`
}

func (r *rootConfig) trialTimeout() time.Duration {
	return time.Duration(r.TrialTimeoutSeconds) * time.Second
}

func (r *rootConfig) objectiveMap() (objective.Map, error) {
	out := make(objective.Map, len(r.Objectives))
	for name, dir := range r.Objectives {
		d := objective.Direction(dir)
		if !d.Valid() {
			return nil, fmt.Errorf("run: objective %q: invalid direction %q", name, dir)
		}
		out[name] = d
	}
	return out, nil
}

type optimizerConfig struct {
	Type              string  `json:"type"` // "random" (default), "grid", "bayesian"
	Seed              uint64  `json:"seed"`
	MaxIterations     int     `json:"max_iterations"`
	StartWithDefaults bool    `json:"start_with_defaults"`
	MinSamples        int     `json:"min_samples"`
	RefitEvery        int     `json:"refit_every"`
	NumCandidates     int     `json:"num_candidates"`
	NumTrees          int     `json:"num_trees"`
	MinSamplesPerLeaf int     `json:"min_samples_per_leaf"`
	MaxDepth          int     `json:"max_depth"`
	FeatureSubsample  float64 `json:"feature_subsample"`
}

type storageConfig struct {
	DSN string `json:"dsn"` // empty selects the in-memory store
}
