package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Event types written by the audit core.
const (
	TypeItemTransitioned = "ItemTransitioned"
	TypeItemSaved        = "ItemSaved"
	TypeAuditCreated     = "AuditCreated"
	TypeAuditDeleted     = "AuditDeleted"
	TypeItemsReassigned  = "ItemsReassigned"
	TypeTeacherScored    = "TeacherScored"
	TypeExamDistributed  = "ExamDistributed"
	TypeExamStarted      = "ExamStarted"
	TypeExamLockChanged  = "ExamLockChanged"
	TypeExamExtended     = "ExamExtended"
	TypeScoresReleased   = "ScoresReleased"
)

type Event struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	Actor     string `json:"actor,omitempty"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// NewEvent encodes data as the event payload.
func NewEvent(typ, key, actor string, data any) (Event, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", typ, err)
	}
	return Event{SiteID: "local", Type: typ, Key: key, Actor: actor, DataJSON: string(b)}, nil
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	site := e.SiteID
	if site == "" || site == "local" {
		site = r.siteID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, actor, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		site, e.Type, e.Key, e.Actor, e.DataJSON, time.Now().Unix())
	return err
}

// Since returns up to limit events with seq greater than after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, actor, data, created_at
		   FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.Actor, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryLog is an in-process event log for tests and offline runs.
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (m *MemoryLog) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Seq = int64(len(m.events) + 1)
	e.CreatedAt = time.Now().Unix()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of everything appended so far.
func (m *MemoryLog) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType filters Events by type.
func (m *MemoryLog) OfType(typ string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Since mirrors EventRepo.Since.
func (m *MemoryLog) Since(_ context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Event
	for _, e := range m.Events() {
		if e.Seq > after && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}
