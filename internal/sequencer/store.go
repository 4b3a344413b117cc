package sequencer

import (
	"maps"
	"slices"

	"github.com/rendis/sequencer/internal/data"
)

// RequirementStore maps requirement names to the objects currently bound to
// them across the whole sequence. It is owned by one Sequencer and is not
// safe for concurrent use.
type RequirementStore struct {
	objects map[string]data.Object
}

func NewRequirementStore() *RequirementStore {
	return &RequirementStore{objects: make(map[string]data.Object)}
}

// Bind inserts or overwrites the binding for name.
func (s *RequirementStore) Bind(name string, obj data.Object) {
	s.objects[name] = obj
}

// Lookup returns the object bound to name.
func (s *RequirementStore) Lookup(name string) (data.Object, bool) {
	obj, ok := s.objects[name]
	return obj, ok
}

// Clear drops every binding.
func (s *RequirementStore) Clear() {
	clear(s.objects)
}

func (s *RequirementStore) Len() int { return len(s.objects) }

// Names returns the bound names, sorted.
func (s *RequirementStore) Names() []string {
	return slices.Sorted(maps.Keys(s.objects))
}

// Snapshot returns a copy of the bindings.
func (s *RequirementStore) Snapshot() map[string]data.Object {
	return maps.Clone(s.objects)
}
