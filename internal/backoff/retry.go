package backoff

import (
	"context"
	"errors"
)

// ErrMaxAttemptsExhausted is returned when every attempt has failed and no
// attempts remain.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// RetryResult carries the outcome of RetryWithBackoff, including how many
// attempts it took -- the broadcast engine logs this when retries are
// exhausted.
type RetryResult[T any] struct {
	Value     T
	Attempts  int // 1-indexed
	LastError error
}

// RetryWithBackoff calls fn up to maxAttempts times, sleeping between
// attempts per policy. fn receives the 1-indexed attempt number and
// should return (value, nil) on success or (zero, err) to trigger a
// retry. Context cancellation is checked before each attempt and during
// the inter-attempt sleep.
func RetryWithBackoff[T any](
	ctx context.Context,
	policy BackoffPolicy,
	maxAttempts int,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	var result RetryResult[T]

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			return result, err
		}

		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			result.LastError = nil
			return result, nil
		}
		result.LastError = err

		if attempt < maxAttempts {
			if sleepErr := SleepWithBackoff(ctx, policy, attempt); sleepErr != nil {
				return result, sleepErr
			}
		}
	}

	return result, ErrMaxAttemptsExhausted
}
