package streaming

import (
	"context"
	"log/slog"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/pkg/schema"
)

// SetPayload is the payload of forwarded activity set notifications.
type SetPayload struct {
	ActivityIDs []string `json:"activity_ids"`
	ConfigIDs   []string `json:"config_ids"`
}

// Forwarder publishes the notifications of one activity set to a hub.
type Forwarder struct {
	added   *activity.Connection
	removed *activity.Connection
}

// Forward connects to set's added and removed signals and republishes every
// notification for sessionID. Publish errors are logged and dropped.
func Forward(hub EventHub, sessionID string, set *activity.Set, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default().With("component", "streaming")
	}
	publish := func(eventType string) activity.Slot {
		return func(c activity.Change) {
			ev := StreamEvent{SessionID: sessionID, EventType: eventType, Payload: payloadOf(c)}
			if err := hub.Publish(context.Background(), ev); err != nil {
				logger.Warn("publish set notification", "session_id", sessionID, "error", err)
			}
		}
	}
	return &Forwarder{
		added:   set.ObjectsAdded().Connect(publish(schema.EventActivitiesAdded)),
		removed: set.ObjectsRemoved().Connect(publish(schema.EventActivitiesRemoved)),
	}
}

// Connections returns the added and removed connections, e.g. to block them.
func (f *Forwarder) Connections() (added, removed *activity.Connection) {
	return f.added, f.removed
}

// Stop disconnects from the set.
func (f *Forwarder) Stop() {
	f.added.Disconnect()
	f.removed.Disconnect()
}

func payloadOf(c activity.Change) SetPayload {
	p := SetPayload{
		ActivityIDs: make([]string, 0, len(c.Activities)),
		ConfigIDs:   make([]string, 0, len(c.Activities)),
	}
	for _, a := range c.Activities {
		p.ActivityIDs = append(p.ActivityIDs, a.ID())
		p.ConfigIDs = append(p.ConfigIDs, a.ConfigID())
	}
	return p
}
