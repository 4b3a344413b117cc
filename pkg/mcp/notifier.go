package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/sequencer/internal/streaming"
)

// ClientNotifier pushes session events to connected MCP clients.
type ClientNotifier interface {
	Notify(ctx context.Context, event streaming.StreamEvent) error
}

// MCPNotifier implements ClientNotifier with MCP log notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes to the client mapped to each
// session.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends event to the client following its session.
// Best-effort: returns nil if no client is following.
func (n *MCPNotifier) Notify(_ context.Context, event streaming.StreamEvent) error {
	clientID, ok := n.sessions.ClientFor(event.SessionID)
	if !ok {
		return nil
	}
	payload := map[string]any{
		"level":  "info",
		"logger": "sequencer",
		"data":   event,
	}
	err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Client went away between lookup and send.
		n.sessions.Remove(clientID)
		return nil
	}
	return err
}

// Relay forwards events until the channel closes or ctx is done.
func (n *MCPNotifier) Relay(ctx context.Context, events <-chan streaming.StreamEvent, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := n.Notify(ctx, ev); err != nil {
				logger.Warn("notify client failed",
					slog.String("session_id", ev.SessionID),
					slog.String("event_type", ev.EventType),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
