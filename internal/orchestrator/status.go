package orchestrator

import "time"

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Running     bool            `json:"running"`
	LastCycle   *Cycle          `json:"last_cycle,omitempty"`
	LastSuccess time.Time       `json:"last_success,omitzero"`
	Counts      map[Outcome]int `json:"counts"`
}

// Status returns the current snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := Status{
		Running:     o.running.Load(),
		LastSuccess: o.lastSuccess,
		Counts:      make(map[Outcome]int, len(o.counts)),
	}
	for k, v := range o.counts {
		s.Counts[k] = v
	}
	if o.last != nil {
		last := *o.last
		s.LastCycle = &last
	}
	return s
}

// LastSuccess returns when the last cycle that produced a servable tree
// finished, or the zero time.
func (o *Orchestrator) LastSuccess() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastSuccess
}
