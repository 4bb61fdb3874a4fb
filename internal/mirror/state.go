package mirror

import "time"

// Status is the mirror's position in the sync state machine.
type Status string

const (
	StatusAbsent  Status = "absent"  // no local path
	StatusCorrupt Status = "corrupt" // path exists without repository metadata
	StatusStale   Status = "stale"   // valid checkout awaiting pull
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Action records how the last sync reached its result.
type Action string

const (
	ActionClone       Action = "clone"
	ActionPull        Action = "pull"
	ActionRemoteReset Action = "remote_reset"
	ActionReclone     Action = "reclone"
)

// State is a snapshot of the local checkout.
type State struct {
	Path         string    `json:"path"`
	Exists       bool      `json:"exists"`
	Valid        bool      `json:"valid"`
	Status       Status    `json:"status"`
	ActiveSource string    `json:"active_source,omitempty"`
	ActiveURL    string    `json:"active_url,omitempty"`
	Action       Action    `json:"action,omitempty"`
	LastSync     time.Time `json:"last_sync,omitzero"`
	LastAttempt  time.Time `json:"last_attempt,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
}

// Synced reports whether the build may run against this checkout.
func (s State) Synced() bool { return s.Status == StatusSynced }
