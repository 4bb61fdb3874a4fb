package eventstore

import "time"

// Event is one persisted step of a sync cycle.
type Event interface {
	ID() int64
	CycleID() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
	Metadata() map[string]string
}

// Record is a stored event row. Typed events embed it; events read back from
// the store are bare Records.
type Record struct {
	id       int64
	cycleID  string
	kind     string
	at       time.Time
	payload  []byte
	metadata map[string]string
}

func (r *Record) ID() int64                   { return r.id }
func (r *Record) CycleID() string             { return r.cycleID }
func (r *Record) Type() string                { return r.kind }
func (r *Record) Timestamp() time.Time        { return r.at }
func (r *Record) Payload() []byte             { return r.payload }
func (r *Record) Metadata() map[string]string { return r.metadata }
