package mirror

import "errors"

var (
	// ErrSourcesExhausted is returned when every source failed to clone.
	ErrSourcesExhausted = errors.New("all sources exhausted")
	// ErrPullFailed wraps the last error of a pull retry loop.
	ErrPullFailed = errors.New("pull failed")
)
