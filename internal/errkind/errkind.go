// Package errkind defines the typed error kinds from spec.md §7 as sentinel
// errors, so callers can branch on the kind of failure with errors.Is
// instead of matching message strings, grounded on the teacher's
// internal/validation multi-field error shapes (e.g. AssignmentError in
// internal/validation/assignments.go) but generalized into a single set of
// sentinels shared across packages.
package errkind

import "errors"

var (
	// Invalid marks a tunable definition or assignment that violates a
	// type/range/weight constraint. Fatal to the enclosing experiment.
	Invalid = errors.New("invalid tunable")

	// IncompatibleResume marks a resumed experiment whose objectives or
	// tunable signature differ from stored state. Fatal.
	IncompatibleResume = errors.New("incompatible resume")

	// MissingRequiredParam marks an environment argument that is neither in
	// const args nor supplied by globals or tunables. Fatal to that
	// environment.
	MissingRequiredParam = errors.New("missing required parameter")

	// EnvironmentSetupFailed marks a trial whose environment could not be
	// brought to Ready. The trial moves to Failed; the loop continues.
	EnvironmentSetupFailed = errors.New("environment setup failed")

	// TrialTimedOut marks a trial whose status poll exceeded its configured
	// deadline. The trial moves to TimedOut; the loop continues.
	TrialTimedOut = errors.New("trial timed out")

	// UnableToProduceGuidedSuggestion marks an optimizer that could not
	// produce a surrogate-driven suggestion (untrained model, pathological
	// input). The scheduler falls back to a random suggestion.
	UnableToProduceGuidedSuggestion = errors.New("unable to produce guided suggestion")

	// StorageUnavailable marks a transient I/O failure talking to storage.
	// Retried with backoff; if retries are exhausted the scheduler halts.
	StorageUnavailable = errors.New("storage unavailable")
)
