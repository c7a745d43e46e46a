// Package retry implements the exponential-backoff-with-jitter policy shared
// by the PubMed, web-search, and LLM clients (spec.md §4.3/§5), adapted from
// internal/tools/web/search.go's searchWithRetry.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy configures retry attempts and backoff shape.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of delay added as random jitter, 0..1
}

// DefaultPolicy matches spec.md §4.3: retry up to 3 times with exponential
// backoff on transient failures.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.3,
	}
}

// ErrAbort, when returned by a Do callback (wrapped or bare), stops retries
// immediately — the AbortError-equivalent named in spec.md §4.3.
var ErrAbort = errors.New("retry: aborted")

// Do invokes fn up to p.MaxAttempts times, sleeping with exponential backoff
// and jitter between attempts. It stops early if ctx is cancelled or fn's
// error wraps ErrAbort.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrAbort) || errors.Is(err, context.Canceled) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.BaseDelay * (1 << uint(attempt-1))
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		if p.Jitter > 0 {
			delay += time.Duration(float64(delay) * p.Jitter * rand.Float64())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
