package sequencer

import (
	"strconv"
	"sync"
)

const idSeparator = "_"

// IDCounter mints object identifiers of the form activity_<counter>_<name>.
// The counter is a generation: it stays fixed while objects are minted and
// advances whenever an activity set is truncated, so objects recreated after
// a rollback never reuse the identifiers of the objects they replace.
//
// A counter may be shared by several sequencers.
type IDCounter struct {
	mu    sync.Mutex
	value uint64
}

// NewIDCounter starts a counter at start, typically a value restored from
// persistence.
func NewIDCounter(start uint64) *IDCounter {
	return &IDCounter{value: start}
}

// Mint returns the identifier for an object created for requirement name.
func (c *IDCounter) Mint(name string) string {
	c.mu.Lock()
	v := c.value
	c.mu.Unlock()
	return "activity" + idSeparator + strconv.FormatUint(v, 10) + idSeparator + name
}

// Advance moves to the next generation and returns it.
func (c *IDCounter) Advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

func (c *IDCounter) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
