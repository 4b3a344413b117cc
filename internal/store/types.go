package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/sequencer/pkg/schema"
)

// Session is the persisted representation of a sequencing session: the
// ordered activity ids, the navigation cursor, the id generation and the
// activities built so far.
type Session struct {
	ID          string               `json:"id"`
	ActivityIDs []string             `json:"activity_ids"`
	Status      schema.SessionStatus `json:"status"`
	Current     int                  `json:"current"`
	Counter     uint64               `json:"counter"`

	// Objects are stored once and referenced by Ref from activities and
	// bindings, so one object shared by several activities is restored as
	// one object.
	Objects    []*ObjectRecord   `json:"objects,omitempty"`
	Activities []*ActivityRecord `json:"activities,omitempty"`

	// Bindings maps requirement names to object refs.
	Bindings map[string]string `json:"bindings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ObjectRecord is one encoded data object.
type ObjectRecord struct {
	Ref     string          `json:"ref"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ActivityRecord is one built activity at Position in the session.
type ActivityRecord struct {
	Position    int           `json:"position"`
	ID          string        `json:"id"`
	ConfigID    string        `json:"config_id"`
	Description string        `json:"description,omitempty"`
	Data        []DataBinding `json:"data,omitempty"`
}

// DataBinding links a requirement name inside an activity to an object ref.
type DataBinding struct {
	Name string `json:"name"`
	Ref  string `json:"ref"`
}

// Event is an immutable entry in a session's event log.
type Event struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	ActivityID string          `json:"activity_id,omitempty"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// --- Filter types ---

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status *schema.SessionStatus `json:"status,omitempty"`
	Since  *time.Time            `json:"since,omitempty"`
	Limit  int                   `json:"limit,omitempty"`
	Offset int                   `json:"offset,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	SessionID  string     `json:"session_id,omitempty"`
	ActivityID string     `json:"activity_id,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}
