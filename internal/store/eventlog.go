package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/sequencer/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-session sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction; a write forces
	// the lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (session_id, activity_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, nullStr(event.ActivityID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a session with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, sessionID, since)
}

// GetEventsByType returns events of a specific type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// Trail is the navigation history of a session reconstructed from its events.
type Trail struct {
	SessionID string               `json:"session_id"`
	Status    schema.SessionStatus `json:"status"`
	Current   int                  `json:"current"`
	Moves     int                  `json:"moves"`
	Rollbacks int                  `json:"rollbacks"`
	Failures  int                  `json:"validation_failures"`
	Events    int                  `json:"events"`
	LastEvent *time.Time           `json:"last_event,omitempty"`
}

// TransitionPayload is the payload of status transition events.
type TransitionPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MovePayload is the payload of session_moved events.
type MovePayload struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// RollbackPayload is the payload of sequence_rollback events.
type RollbackPayload struct {
	Index int `json:"index"`
}

// ReplayEvents replays all events for a session and returns its trail.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayEvents(ctx context.Context, sessionID string) (*Trail, error) {
	events, err := el.store.GetEvents(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	trail := &Trail{SessionID: sessionID, Status: schema.SessionStatusPending, Current: -1}
	if len(events) == 0 {
		return trail, nil
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in session %s: expected %d, got %d", sessionID, expected, e.Sequence)
		}
	}

	for _, e := range events {
		switch e.Type {
		case schema.EventSessionOpened, schema.EventSessionCompleted, schema.EventSessionReset:
			var p TransitionPayload
			if err := json.Unmarshal(e.Payload, &p); err == nil && p.To != "" {
				trail.Status = schema.SessionStatus(p.To)
			}

		case schema.EventSessionMoved:
			var p MovePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStore,
					"event %d of session %s has a malformed move payload", e.Sequence, sessionID).WithCause(err)
			}
			trail.Current = p.To
			trail.Moves++

		case schema.EventSequenceRollback:
			trail.Rollbacks++

		case schema.EventValidationFailed:
			trail.Failures++
		}
	}

	ts := events[len(events)-1].Timestamp
	trail.LastEvent = &ts
	trail.Events = len(events)
	return trail, nil
}
