package sqlutil

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how often a unit of work is re-run after a transient failure.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy retries three times with a linear back-off starting at 20ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 20 * time.Millisecond}
}

// WithRetry runs fn, re-running it while isTransient reports the failure as retryable.
// Each attempt must be a complete unit of work so a failed attempt leaves nothing behind.
func WithRetry(ctx context.Context, policy RetryPolicy, isTransient func(error) bool, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Delay * time.Duration(attempt)):
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				log.Debug().Int("attempt", attempt+1).Msg("transaction succeeded after retry")
			}
			return nil
		}
		if !isTransient(err) {
			return err
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("transient transaction failure, retrying")
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", policy.MaxRetries+1, lastErr)
}
