package data

import "sync"

// Object is a shared, identity-bearing piece of workflow data.
type Object interface {
	ID() string
	SetID(id string)
	Type() string

	Lock()
	Unlock()
	RLock()
	RUnlock()

	// ShallowCopy replaces the receiver's contents with src's, keeping the
	// receiver's identity. Children of containers are shared, not cloned.
	// The caller holds the receiver's exclusive lock.
	ShallowCopy(src Object) error

	// Properties returns a read-only view used by expression validators.
	Properties() map[string]any
}

// Configurable is implemented by objects that accept an object_config map at creation.
type Configurable interface {
	Configure(cfg map[string]any) error
}

// Base carries the identifier and lock shared by every concrete object.
type Base struct {
	mu sync.RWMutex
	id string
}

func (b *Base) ID() string      { return b.id }
func (b *Base) SetID(id string) { b.id = id }
func (b *Base) Lock()           { b.mu.Lock() }
func (b *Base) Unlock()         { b.mu.Unlock() }
func (b *Base) RLock()          { b.mu.RLock() }
func (b *Base) RUnlock()        { b.mu.RUnlock() }

// Guard runs fn while holding obj's exclusive lock. The lock is released on
// every exit path, including panics.
func Guard(obj Object, fn func() error) error {
	obj.Lock()
	defer obj.Unlock()
	return fn()
}

// ReadGuard runs fn while holding obj's shared lock.
func ReadGuard(obj Object, fn func() error) error {
	obj.RLock()
	defer obj.RUnlock()
	return fn()
}

// ReplaceContents swaps dst's contents for src's under dst's exclusive lock.
// dst keeps its identity so every holder of the reference observes the change.
func ReplaceContents(dst, src Object) error {
	return Guard(dst, func() error {
		return dst.ShallowCopy(src)
	})
}

func baseProperties(o Object) map[string]any {
	return map[string]any{
		"id":   o.ID(),
		"type": o.Type(),
	}
}
