// Package retry implements the bounded exponential backoff discipline
// spec.md §5 "Retry discipline" and §7 `StorageUnavailable` require: transient
// failures are retried at a configurable total_retries/backoff_factor;
// permanent failures surface immediately. Shared by internal/storage/sql and
// internal/runner (around Environment setup) instead of being duplicated per
// call site
// (SPEC_FULL.md "Supplemented features").
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/benchtune/benchtune/internal/errkind"
)

// Policy configures the backoff schedule.
type Policy struct {
	TotalRetries    int
	BackoffFactor   float64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Default returns the policy used when no explicit configuration is given.
func Default() Policy {
	return Policy{
		TotalRetries:    5,
		BackoffFactor:   2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op, retrying on errors that wrap errkind.StorageUnavailable per p's
// schedule. Any other error is treated as permanent and returned immediately
// without retry.
func Do(ctx context.Context, p Policy, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.Multiplier = p.BackoffFactor
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0 // bounded by TotalRetries, not wall-clock

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.TotalRetries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, errkind.StorageUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
