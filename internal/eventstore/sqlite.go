package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const cycleEventsSchema = `
CREATE TABLE IF NOT EXISTS cycle_events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT    NOT NULL,
	kind     TEXT    NOT NULL,
	at_ms    INTEGER NOT NULL,
	payload  BLOB    NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS cycle_events_cycle ON cycle_events(cycle_id);
CREATE INDEX IF NOT EXISTS cycle_events_at ON cycle_events(at_ms);
`

const selectCycleEvents = `SELECT id, cycle_id, kind, at_ms, payload, metadata FROM cycle_events`

// SQLiteStore keeps cycle events in a single SQLite file under the data dir.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens dbPath, creating the file and schema if needed.
// ":memory:" gives a throwaway store for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open event database %s: %w", dbPath, err)
	}
	// ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cycleEventsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cycle_events schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Append stores a raw event stamped with the store clock.
func (s *SQLiteStore) Append(ctx context.Context, cycleID, eventType string, payload []byte, metadata map[string]string) error {
	return s.insert(ctx, cycleID, eventType, s.now(), payload, metadata)
}

// AppendEvent stores e under its own timestamp so a replayed history matches
// what was applied live.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e Event) error {
	at := e.Timestamp()
	if at.IsZero() {
		at = s.now()
	}
	return s.insert(ctx, e.CycleID(), e.Type(), at, e.Payload(), e.Metadata())
}

func (s *SQLiteStore) insert(ctx context.Context, cycleID, kind string, at time.Time, payload []byte, metadata map[string]string) error {
	var meta []byte
	if len(metadata) > 0 {
		var err error
		if meta, err = json.Marshal(metadata); err != nil {
			return fmt.Errorf("encode %s metadata: %w", kind, err)
		}
	}
	if payload == nil {
		payload = []byte("{}")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO cycle_events (cycle_id, kind, at_ms, payload, metadata) VALUES (?, ?, ?, ?, ?)`,
		cycleID, kind, at.UnixMilli(), payload, meta,
	); err != nil {
		return fmt.Errorf("store %s for cycle %s: %w", kind, cycleID, err)
	}
	return nil
}

// GetByCycleID returns the events of one cycle in emission order.
func (s *SQLiteStore) GetByCycleID(ctx context.Context, cycleID string) ([]Event, error) {
	return s.query(ctx, selectCycleEvents+` WHERE cycle_id = ? ORDER BY id`, cycleID)
}

// GetRange returns events stamped within [start, end] in emission order.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.query(ctx, selectCycleEvents+` WHERE at_ms BETWEEN ? AND ? ORDER BY id`, start.UnixMilli(), end.UnixMilli())
}

// Prune drops events stamped before cutoff and returns how many went.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cycle_events WHERE at_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune cycle events: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cycle events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		r := &Record{}
		var atMS int64
		var meta []byte
		if err := rows.Scan(&r.id, &r.cycleID, &r.kind, &atMS, &r.payload, &meta); err != nil {
			return nil, fmt.Errorf("read cycle event: %w", err)
		}
		r.at = time.UnixMilli(atMS)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", r.id, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
