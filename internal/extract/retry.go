package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Guillaume-Lombardo/extractforms/internal/llm"
)

// retryable reports whether a backend error is worth another attempt.
// Transport failures and timeouts are; structural errors (schema violations,
// bad input) are not.
func retryable(err error) bool {
	return errors.Is(err, llm.ErrBackendUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs fn with bounded attempts and exponential backoff. The
// context cancels waits between attempts.
func withRetry[T any](
	ctx context.Context,
	attempts int,
	backoffBase time.Duration,
	logger *slog.Logger,
	op string,
	fn func() (T, error),
) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	backoff := backoffBase
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			break
		}
		logger.Warn("extract.retry",
			"op", op, "attempt", attempt, "max_attempts", attempts,
			"backoff_ms", backoff.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return zero, lastErr
}
