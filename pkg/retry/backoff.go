package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config defines retry behavior
type Config struct {
	MaxAttempts   int
	MinDelay      time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterEnabled bool
}

// DefaultConfig returns the settings used for RPC calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		MinDelay:      1 * time.Second,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

// HTTPConfig returns the settings used for off-chain document fetches.
func HTTPConfig() Config {
	return Config{
		MaxAttempts:   10,
		MinDelay:      4 * time.Second,
		MaxDelay:      32 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ExhaustedError is returned once every attempt failed with a transient error.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// WithBackoff executes fn with exponential backoff and optional jitter.
// A permanent error is returned immediately without further attempts.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("Operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}

		if IsPermanent(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			return &ExhaustedError{Operation: operation, Attempts: cfg.MaxAttempts, Err: lastErr}
		}

		delay := calculateBackoff(cfg, attempt)

		logger.Debug("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("retry_in", delay),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

// calculateBackoff returns a delay within [MinDelay, min(MaxDelay, MinDelay*Multiplier^(attempt-1))].
// With jitter the delay is drawn uniformly from that range, otherwise the upper bound is used.
func calculateBackoff(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	upper := float64(cfg.MinDelay) * math.Pow(mult, float64(attempt-1))

	if cfg.MaxDelay > 0 && upper > float64(cfg.MaxDelay) {
		upper = float64(cfg.MaxDelay)
	}
	lower := float64(cfg.MinDelay)
	if upper < lower {
		upper = lower
	}

	if cfg.JitterEnabled && upper > lower {
		return time.Duration(lower + rand.Float64()*(upper-lower))
	}

	return time.Duration(upper)
}
