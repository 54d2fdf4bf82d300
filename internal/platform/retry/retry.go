package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// Func is one attempt of a retryable operation.
type Func func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	onRetry      func(attempt int, err error)
}

// Option configures Do.
type Option func(*config) error

func WithMaxAttempts(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = n
		return nil
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = d
		return nil
	}
}

func WithJitterFactor(f float64) Option {
	return func(c *config) error {
		if f < 0 || f > 1 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = f
		return nil
	}
}

// OnRetry registers a hook called before each re-attempt with the error that caused it.
func OnRetry(fn func(attempt int, err error)) Option {
	return func(c *config) error {
		c.onRetry = fn
		return nil
	}
}

// Do runs fn until it succeeds, returns an error for which retryable is false,
// or maxAttempts is reached. Delays grow as baseDelay * 2^(attempt-1) plus jitter.
// The last error is returned when attempts are exhausted.
func Do(ctx context.Context, retryable func(error) bool, fn Func, opts ...Option) error {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			if cfg.onRetry != nil {
				cfg.onRetry(attempt, lastErr)
			}

			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
