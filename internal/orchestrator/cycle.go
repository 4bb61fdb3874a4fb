package orchestrator

import (
	"time"

	"github.com/kang-git/threejs-sync-server/internal/mirror"
	"github.com/kang-git/threejs-sync-server/internal/pipeline"
)

// Outcome is the result of one cycle.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeDegradedSuccess Outcome = "degraded_success"
	OutcomeFailure         Outcome = "failure"
	// OutcomeSkipped marks a trigger rejected because a cycle was running.
	OutcomeSkipped Outcome = "skipped"
)

// Succeeded reports whether a servable artifact tree was produced.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeDegradedSuccess
}

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Cycle is one sync-then-build execution.
type Cycle struct {
	ID      string                `json:"id"`
	Trigger Trigger               `json:"trigger"`
	Start   time.Time             `json:"start"`
	End     time.Time             `json:"end,omitzero"`
	Outcome Outcome               `json:"outcome"`
	Mirror  mirror.State          `json:"mirror"`
	Build   *pipeline.BuildResult `json:"build,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Duration is End minus Start, or zero for an unfinished cycle.
func (c Cycle) Duration() time.Duration {
	if c.End.IsZero() {
		return 0
	}
	return c.End.Sub(c.Start)
}
