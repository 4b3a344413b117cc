package activity

import "sync"

// Change describes the activities affected by one structural edit of a Set.
type Change struct {
	Activities []*Activity
}

// Slot receives notifications from a Signal.
type Slot func(Change)

// Signal fans a Change out to every connected, unblocked slot.
type Signal struct {
	mu    sync.Mutex
	conns []*Connection
}

// Connection ties a Slot to a Signal. A blocked connection drops emissions.
type Connection struct {
	signal  *Signal
	slot    Slot
	mu      sync.Mutex
	blocked int
}

// Connect registers slot and returns its connection.
func (s *Signal) Connect(slot Slot) *Connection {
	c := &Connection{signal: s, slot: slot}
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()
	return c
}

// Emit delivers ch to every unblocked slot, in connection order.
func (s *Signal) Emit(ch Change) {
	s.mu.Lock()
	conns := make([]*Connection, len(s.conns))
	copy(conns, s.conns)
	s.mu.Unlock()

	for _, c := range conns {
		if c.Blocked() {
			continue
		}
		c.slot(ch)
	}
}

// Connections returns the number of live connections.
func (s *Signal) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Block suppresses delivery until a matching Unblock. Calls nest.
func (c *Connection) Block() {
	c.mu.Lock()
	c.blocked++
	c.mu.Unlock()
}

// Unblock undoes one Block.
func (c *Connection) Unblock() {
	c.mu.Lock()
	if c.blocked > 0 {
		c.blocked--
	}
	c.mu.Unlock()
}

func (c *Connection) Blocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked > 0
}

// Disconnect removes the connection from its signal. It is idempotent.
func (c *Connection) Disconnect() {
	s := c.signal
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.conns {
		if other == c {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	c.signal = nil
}
