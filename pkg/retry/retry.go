package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaultline/vault-service/pkg/logger"
)

// ErrMaxRetriesExceeded wraps the last error once the attempt budget runs out
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls how an operation is retried
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries everything.
	Retryable func(error) bool
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if p.InitialBackoff <= 0 {
		return errors.New("initial backoff must be positive")
	}
	if p.Multiplier < 1 {
		return errors.New("multiplier must be at least 1")
	}
	return nil
}

func (p Policy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// Do runs operation until it succeeds, exhausts the attempt budget, hits a
// non-retryable error, or the context is cancelled.
func Do(ctx context.Context, policy Policy, log *logger.Logger, operation func() error) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				log.Info("operation succeeded after retries", "attempt", attempt)
			}
			return nil
		}

		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= policy.MaxRetries {
			break
		}

		backoff := policy.backoff(attempt + 1)
		log.Warn("operation failed, retrying",
			"attempt", attempt+1, "max_retries", policy.MaxRetries,
			"backoff", backoff, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}
