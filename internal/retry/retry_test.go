package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/benchtune/benchtune/internal/errkind"
)

func fastPolicy() Policy {
	return Policy{TotalRetries: 3, BackoffFactor: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestDoRetriesStorageUnavailable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("%w: transient", errkind.StorageUnavailable)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return errkind.Invalid
	})
	assert.ErrorIs(t, err, errkind.Invalid)
	assert.Equal(t, 1, attempts)
}

func TestDoGivesUpAfterTotalRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return fmt.Errorf("%w: still down", errkind.StorageUnavailable)
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, errkind.StorageUnavailable) || attempts > 1)
}
