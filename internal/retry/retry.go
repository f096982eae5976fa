// Package retry provides bounded retry with a fixed backoff and a
// per-attempt deadline, used by write paths that talk to flaky transports.
package retry

import (
	"context"
	"errors"
	"time"
)

// WritePolicy is the storage write policy: three attempts total, a fixed
// one-second backoff, and a sixty-second deadline per attempt.
func WritePolicy() Config {
	return Config{
		Attempts:       3,
		Backoff:        time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

// Config holds retry parameters.
type Config struct {
	Attempts       int           // total attempts, including the first
	Backoff        time.Duration // fixed wait between attempts
	AttemptTimeout time.Duration // deadline per attempt (0 = none)
}

// Do runs fn up to cfg.Attempts times, waiting cfg.Backoff between
// attempts. Each attempt gets its own deadline-bounded context, so a
// hanging transport call loses the race against the timeout. The last
// error is returned once the budget is exhausted.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == cfg.Attempts {
			break
		}
		// Cancellation during backoff still reports the last transport
		// error alongside the cancellation.
		if ctx.Err() != nil {
			return errors.Join(ctx.Err(), lastErr)
		}
		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		case <-time.After(cfg.Backoff):
		}
	}
	return lastErr
}
