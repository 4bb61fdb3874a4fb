package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCycleID     = "cycle_id"
	KeyTrigger     = "trigger"
	KeySource      = "source"
	KeyURL         = "url"
	KeyPath        = "path"
	KeyAttempt     = "attempt"
	KeyMaxAttempts = "max_attempts"
	KeyOperation   = "operation"
	KeyStage       = "stage"
	KeyBuildKind   = "build_kind"
	KeyOutcome     = "outcome"
	KeyDurationMS  = "duration_ms"
	KeyCommand     = "command"
	KeyComponent   = "component"
	KeyCommit      = "commit"
	KeySchedule    = "schedule"
	KeyJobID       = "job_id"
	KeyMethod      = "method"
	KeyStatus      = "status"
	KeyRemoteAddr  = "remote_addr"
	KeyFile        = "file"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func CycleID(id string) slog.Attr       { return slog.String(KeyCycleID, id) }
func Trigger(t string) slog.Attr        { return slog.String(KeyTrigger, t) }
func Source(name string) slog.Attr      { return slog.String(KeySource, name) }
func URL(u string) slog.Attr            { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Attempt(n int) slog.Attr           { return slog.Int(KeyAttempt, n) }
func MaxAttempts(n int) slog.Attr       { return slog.Int(KeyMaxAttempts, n) }
func Operation(op string) slog.Attr     { return slog.String(KeyOperation, op) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func BuildKind(k string) slog.Attr      { return slog.String(KeyBuildKind, k) }
func Outcome(o string) slog.Attr        { return slog.String(KeyOutcome, o) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Command(c string) slog.Attr        { return slog.String(KeyCommand, c) }
func Component(c string) slog.Attr      { return slog.String(KeyComponent, c) }
func Commit(c string) slog.Attr         { return slog.String(KeyCommit, c) }
func Schedule(s string) slog.Attr       { return slog.String(KeySchedule, s) }
func JobID(id string) slog.Attr         { return slog.String(KeyJobID, id) }
func Method(m string) slog.Attr         { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr         { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr     { return slog.String(KeyRemoteAddr, a) }
func File(f string) slog.Attr           { return slog.String(KeyFile, f) }
func Duration(d time.Duration) slog.Attr { return DurationMS(float64(d) / float64(time.Millisecond)) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
