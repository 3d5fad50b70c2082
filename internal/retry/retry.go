// Package retry runs assistant operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lintmend/lintmend/internal/fault"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultConfig returns the retry parameters used for assistant sessions.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Controller retries operations that fail with transient errors. Timeouts and
// process failures are retried; validation errors and missing executables
// surface immediately.
type Controller struct {
	cfg Config
	log *slog.Logger

	// newBackoffFn allows tests to substitute a non-sleeping backoff.
	newBackoffFn func() backoff.BackOff
}

// New creates a Controller with the given config.
func New(cfg Config, log *slog.Logger) *Controller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	c := &Controller{cfg: cfg, log: log}
	c.newBackoffFn = c.newExponentialBackoff
	return c
}

// newExponentialBackoff builds the interval sequence for one Run call.
// BackOff implementations are stateful; always return a fresh instance.
func (c *Controller) newExponentialBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.Multiplier = c.cfg.Multiplier
	bo.MaxElapsedTime = 0
	return bo
}

// Run invokes fn until it succeeds, fails permanently, or exhausts the
// attempt budget. On exhaustion the last transient error is wrapped in a
// MaxRetriesError so callers can still reach the cause with errors.As.
func (c *Controller) Run(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !fault.Retryable(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("transient failure",
			"op", op,
			"attempt", attempts,
			"max_attempts", c.cfg.MaxAttempts,
			"error", err)
		return err
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackoffFn(), uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, bo)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if fault.Retryable(err) && attempts >= c.cfg.MaxAttempts {
		c.log.Error("retries exhausted", "op", op, "attempts", attempts, "error", err)
		return &fault.MaxRetriesError{Attempts: attempts, Cause: err}
	}
	return err
}
