package session

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/pkg/schema"
)

// TransitionHook is called before or after a status transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store and EventLog; used to emit events
// on transitions and navigation.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// ValidTransitions lists the allowed session status transitions.
var ValidTransitions = map[schema.SessionStatus][]schema.SessionStatus{
	schema.SessionStatusPending:   {schema.SessionStatusActive},
	schema.SessionStatusActive:    {schema.SessionStatusCompleted, schema.SessionStatusPending},
	schema.SessionStatusCompleted: {schema.SessionStatusActive, schema.SessionStatusPending},
}

type hookKey struct {
	from, to schema.SessionStatus
}

// FSM manages session lifecycle state transitions.
type FSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewFSM creates an FSM that emits events via the given appender. A nil
// appender disables emission.
func NewFSM(appender EventAppender) *FSM {
	return &FSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A failing hook
// aborts the transition.
func (f *FSM) OnBefore(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FSM) OnAfter(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a status transition and emits the
// corresponding event. The caller owns the status field itself.
func (f *FSM) Transition(ctx context.Context, sessionID string, from, to schema.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !slices.Contains(ValidTransitions[from], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid session transition: %s -> %s", from, to).
			WithDetails(map[string]any{"session_id": sessionID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := transitionEventType(to); eventType != "" && f.appender != nil {
		payload, _ := json.Marshal(store.TransitionPayload{From: string(from), To: string(to)})
		event := &store.Event{
			SessionID: sessionID,
			Type:      eventType,
			Payload:   payload,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit session event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func transitionEventType(to schema.SessionStatus) string {
	switch to {
	case schema.SessionStatusActive:
		return schema.EventSessionOpened
	case schema.SessionStatusCompleted:
		return schema.EventSessionCompleted
	case schema.SessionStatusPending:
		return schema.EventSessionReset
	default:
		return ""
	}
}
