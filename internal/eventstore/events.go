package eventstore

import (
	"encoding/json"
	"time"

	"github.com/kang-git/threejs-sync-server/internal/foundation/errors"
)

// Event type names, in the order a cycle emits them.
const (
	TypeCycleStarted  = "cycle.started"
	TypeSyncFinished  = "sync.finished"
	TypeBuildFinished = "build.finished"
	TypeCycleFinished = "cycle.finished"
)

// CycleStarted is emitted when a cycle acquires the single-flight guard.
type CycleStarted struct {
	Record
	Trigger string `json:"trigger"`
}

// NewCycleStarted creates a CycleStarted event.
func NewCycleStarted(cycleID, trigger string) (*CycleStarted, error) {
	payload, err := json.Marshal(map[string]any{"trigger": trigger})
	if err != nil {
		return nil, marshalError(err, TypeCycleStarted, cycleID)
	}
	return &CycleStarted{
		Record:  newRecord(cycleID, TypeCycleStarted, payload),
		Trigger: trigger,
	}, nil
}

// SyncResult is the payload of sync.finished.
type SyncResult struct {
	Status       string `json:"status"`
	Action       string `json:"action,omitempty"`
	ActiveSource string `json:"active_source,omitempty"`
	ActiveURL    string `json:"active_url,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// SyncFinished is emitted when the mirror step ends, successfully or not.
type SyncFinished struct {
	Record
	Result SyncResult
}

// NewSyncFinished creates a SyncFinished event.
func NewSyncFinished(cycleID string, result SyncResult) (*SyncFinished, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, marshalError(err, TypeSyncFinished, cycleID)
	}
	return &SyncFinished{Record: newRecord(cycleID, TypeSyncFinished, payload), Result: result}, nil
}

// BuildReport is the payload of build.finished.
type BuildReport struct {
	Kind           string           `json:"kind"`
	FailedStage    string           `json:"failed_stage,omitempty"`
	DurationMS     int64            `json:"duration_ms"`
	StageDurations map[string]int64 `json:"stage_durations_ms,omitempty"`
	Copied         []string         `json:"copied,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// BuildFinished is emitted once per build attempt; a degraded cycle emits two.
type BuildFinished struct {
	Record
	Report BuildReport
}

// NewBuildFinished creates a BuildFinished event.
func NewBuildFinished(cycleID string, report BuildReport) (*BuildFinished, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, marshalError(err, TypeBuildFinished, cycleID)
	}
	return &BuildFinished{Record: newRecord(cycleID, TypeBuildFinished, payload), Report: report}, nil
}

// CycleReport is the payload of cycle.finished.
type CycleReport struct {
	Trigger    string    `json:"trigger"`
	Outcome    string    `json:"outcome"`
	Succeeded  bool      `json:"succeeded"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	BuildKind  string    `json:"build_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// CycleFinished is emitted when a cycle ends. Skipped cycles are not recorded.
type CycleFinished struct {
	Record
	Report CycleReport
}

// NewCycleFinished creates a CycleFinished event.
func NewCycleFinished(cycleID string, report CycleReport) (*CycleFinished, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, marshalError(err, TypeCycleFinished, cycleID)
	}
	return &CycleFinished{Record: newRecord(cycleID, TypeCycleFinished, payload), Report: report}, nil
}

func newRecord(cycleID, kind string, payload []byte) Record {
	return Record{cycleID: cycleID, kind: kind, at: time.Now(), payload: payload}
}

func marshalError(err error, eventType, cycleID string) error {
	return errors.WrapError(err, errors.CategoryInternal, "failed to marshal event payload").
		WithContext("event_type", eventType).
		WithContext("cycle_id", cycleID).
		Build()
}
