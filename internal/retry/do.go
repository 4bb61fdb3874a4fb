package retry

import (
	"context"
	"errors"
)

// Options tune a single Do invocation.
type Options struct {
	// OnRetry runs after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
	// Permanent reports errors that must not be retried.
	Permanent func(err error) bool
}

// Do runs fn up to p.MaxAttempts times, sleeping p.Backoff between attempts.
// It returns nil on the first success, otherwise the last error. Attempts are
// 1-based. Context cancellation stops the loop and is returned joined with the
// last attempt error.
func Do(ctx context.Context, p Policy, opts Options, fn func(ctx context.Context, attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, last)
		}
		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		if opts.Permanent != nil && opts.Permanent(last) {
			return last
		}
		if attempt == attempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, last)
		}
		if err := Sleep(ctx, p.Backoff(attempt)); err != nil {
			return errors.Join(err, last)
		}
	}
	return last
}
