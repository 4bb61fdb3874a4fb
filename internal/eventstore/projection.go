// Package eventstore persists the events of sync cycles in SQLite and folds
// them into a bounded cycle history.
package eventstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const statusRunning = "running"

// CycleSummary is the read model of one cycle.
type CycleSummary struct {
	CycleID     string        `json:"cycle_id"`
	Trigger     string        `json:"trigger,omitempty"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    int64         `json:"duration_ms,omitempty"`
	Sync        *SyncResult   `json:"sync,omitempty"`
	Builds      []BuildReport `json:"builds,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	Error       string        `json:"error,omitempty"`
}

// CycleHistoryProjection keeps an in-memory, newest-first view of recent
// cycles and the last successful one, rebuilt from the store at startup.
type CycleHistoryProjection struct {
	mu          sync.RWMutex
	store       Store
	cycles      map[string]*CycleSummary
	history     []*CycleSummary
	maxSize     int
	lastSuccess time.Time
}

// NewCycleHistoryProjection creates a projection backed by store.
func NewCycleHistoryProjection(store Store, maxHistorySize int) *CycleHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 50
	}
	return &CycleHistoryProjection{
		store:   store,
		cycles:  make(map[string]*CycleSummary),
		history: make([]*CycleSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild replays every stored event. Cycles that never finished (the process
// died mid-cycle) are dropped.
func (p *CycleHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cycles = make(map[string]*CycleSummary)
	p.history = p.history[:0]
	p.lastSuccess = time.Time{}
	for _, e := range events {
		p.applyLocked(e)
	}
	for id, c := range p.cycles {
		if c.Status == statusRunning {
			delete(p.cycles, id)
		}
	}
	return nil
}

// Apply folds a single event into the projection.
func (p *CycleHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func (p *CycleHistoryProjection) applyLocked(e Event) {
	id := e.CycleID()
	if id == "" {
		return
	}
	c, ok := p.cycles[id]
	if !ok {
		c = &CycleSummary{CycleID: id, Status: statusRunning, StartedAt: e.Timestamp()}
		p.cycles[id] = c
	}

	switch e.Type() {
	case TypeCycleStarted:
		var payload struct {
			Trigger string `json:"trigger"`
		}
		if json.Unmarshal(e.Payload(), &payload) == nil {
			c.Trigger = payload.Trigger
		}
		c.StartedAt = e.Timestamp()

	case TypeSyncFinished:
		var res SyncResult
		if json.Unmarshal(e.Payload(), &res) == nil {
			c.Sync = &res
		}

	case TypeBuildFinished:
		var rep BuildReport
		if json.Unmarshal(e.Payload(), &rep) == nil {
			c.Builds = append(c.Builds, rep)
		}

	case TypeCycleFinished:
		var rep CycleReport
		if json.Unmarshal(e.Payload(), &rep) != nil {
			return
		}
		done := e.Timestamp()
		c.CompletedAt = &done
		c.Status = rep.Outcome
		c.Succeeded = rep.Succeeded
		c.Duration = rep.DurationMS
		c.Error = rep.Error
		if c.Trigger == "" {
			c.Trigger = rep.Trigger
		}
		if rep.Succeeded && done.After(p.lastSuccess) {
			p.lastSuccess = done
		}
		p.addToHistoryLocked(c)
	}
}

func (p *CycleHistoryProjection) addToHistoryLocked(c *CycleSummary) {
	for _, h := range p.history {
		if h.CycleID == c.CycleID {
			return
		}
	}
	p.history = append([]*CycleSummary{c}, p.history...)
	if len(p.history) > p.maxSize {
		for _, dropped := range p.history[p.maxSize:] {
			delete(p.cycles, dropped.CycleID)
		}
		p.history = p.history[:p.maxSize]
	}
}

// History returns finished cycles, newest first.
func (p *CycleHistoryProjection) History() []CycleSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]CycleSummary, 0, len(p.history))
	for _, c := range p.history {
		out = append(out, *c)
	}
	return out
}

// Cycle returns the summary for a cycle, finished or not.
func (p *CycleHistoryProjection) Cycle(id string) (CycleSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cycles[id]
	if !ok {
		return CycleSummary{}, false
	}
	return *c, true
}

// LastSuccess returns when the most recent successful cycle finished.
func (p *CycleHistoryProjection) LastSuccess() (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSuccess, !p.lastSuccess.IsZero()
}
