package mcp

import "sync"

// SessionRegistry maps sequencing session IDs to MCP client session IDs.
// Populated whenever a client calls a tool on a session.
type SessionRegistry struct {
	mu      sync.RWMutex
	clients map[string]string // sequencing session ID → MCP client session ID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{clients: make(map[string]string)}
}

// Register associates a sequencing session with an MCP client.
// The latest client to touch a session wins.
func (r *SessionRegistry) Register(sessionID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[sessionID] = clientID
}

// ClientFor returns the MCP client following the given session, if any.
func (r *SessionRegistry) ClientFor(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.clients[sessionID]
	return cid, ok
}

// Remove deletes every mapping to the given MCP client.
// Called when a client disconnects.
func (r *SessionRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, cid := range r.clients {
		if cid == clientID {
			delete(r.clients, sid)
		}
	}
}

// Len returns the number of mapped sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
