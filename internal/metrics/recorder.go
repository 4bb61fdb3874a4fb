package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailure ResultLabel = "failure"
	ResultTimeout ResultLabel = "timeout"
)

// Recorder defines observability hooks for cycles, mirror operations and builds.
type Recorder interface {
	ObserveCycle(outcome string, d time.Duration)
	IncOverlapSkip()
	SetLastSuccess(t time.Time)
	IncSyncAttempt(op string, result ResultLabel)
	IncSourceFallback(source string)
	ObserveBuild(kind string, d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCycle(string, time.Duration)         {}
func (NoopRecorder) IncOverlapSkip()                            {}
func (NoopRecorder) SetLastSuccess(time.Time)                   {}
func (NoopRecorder) IncSyncAttempt(string, ResultLabel)         {}
func (NoopRecorder) IncSourceFallback(string)                   {}
func (NoopRecorder) ObserveBuild(string, time.Duration)         {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
