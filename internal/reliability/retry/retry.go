// Package retry repeats startup connectivity checks with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Policy controls how often and how fast an operation is retried
type Policy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultPolicy suits waiting for a database or Redis container to come up
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   5,
		Initial:    200 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2.0,
	}
}

// Do runs fn until it succeeds, attempts run out or ctx is done
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.Attempts {
			break
		}

		wait := p.backoff(attempt - 1)
		logger.Warn("connect failed, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, p.Attempts, lastErr)
}

func (p Policy) backoff(n int) time.Duration {
	d := time.Duration(float64(p.Initial) * math.Pow(p.Multiplier, float64(n)))
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}
