package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/config"
)

// Policy encapsulates retry/backoff settings for one kind of network operation.
// It is immutable after construction.
type Policy struct {
	Mode        config.RetryBackoffMode // fixed|linear|exponential
	Delay       time.Duration           // base delay between attempts
	MaxDelay    time.Duration           // cap for growth
	MaxAttempts int                     // total attempts, including the first
}

// DefaultPolicy returns the mirror default: 3 attempts, fixed 5s delay.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffFixed, Delay: 5 * time.Second, MaxDelay: time.Minute, MaxAttempts: 3}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, delay, maxDelay time.Duration, maxAttempts int) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if delay >= 0 {
		p.Delay = delay
	}
	if maxDelay > 0 {
		p.MaxDelay = maxDelay
	}
	if m := config.NormalizeRetryBackoff(string(mode)); m != "" {
		p.Mode = m
	}
	if p.Delay > p.MaxDelay {
		p.Delay = p.MaxDelay
	}
	return p
}

// FromSyncConfig derives the clone/pull policy from the sync section.
func FromSyncConfig(s config.SyncConfig) Policy {
	return NewPolicy(s.RetryBackoff, s.RetryDelayDuration(), s.RetryMaxDelayDuration(), s.MaxRetries)
}

// Backoff returns the delay before the given retry (1-based: first retry => 1).
func (p Policy) Backoff(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffLinear:
		return min(time.Duration(retry)*p.Delay, p.MaxDelay)
	case config.RetryBackoffExponential:
		if retry > 30 {
			return p.MaxDelay
		}
		return min(p.Delay*(1<<(retry-1)), p.MaxDelay)
	default:
		return p.Delay
	}
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >=1")
	}
	if p.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if p.MaxDelay < p.Delay {
		return fmt.Errorf("max delay must be >= delay")
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
