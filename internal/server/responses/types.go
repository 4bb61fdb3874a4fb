// Package responses defines the JSON bodies returned by the sync server API.
package responses

import (
	"time"

	"github.com/kang-git/threejs-sync-server/internal/eventstore"
	"github.com/kang-git/threejs-sync-server/internal/orchestrator"
)

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	Status    string                       `json:"status"`
	Version   string                       `json:"version"`
	LastSync  *time.Time                   `json:"last_sync"`
	LastCycle *orchestrator.Cycle          `json:"last_cycle,omitempty"`
	Running   bool                         `json:"running"`
	Counts    map[orchestrator.Outcome]int `json:"counts"`
	Uptime    float64                      `json:"uptime"`
	Timestamp time.Time                    `json:"timestamp"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	Servable  bool      `json:"servable"`
}

// CyclesResponse lists recent cycles, newest first.
type CyclesResponse struct {
	Cycles []eventstore.CycleSummary `json:"cycles"`
}
