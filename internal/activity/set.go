package activity

import "slices"

// Set is the ordered sequence of activities representing workflow progress.
//
// Structural edits notify ObjectsAdded / ObjectsRemoved. Edits made while a
// Batch is open are coalesced and flushed as a single notification per signal
// when the outermost Batch closes. Entries may be nil, standing for records
// that could not be resolved when the set was restored.
type Set struct {
	items []*Activity

	added   Signal
	removed Signal

	depth          int
	pendingAdded   []*Activity
	pendingRemoved []*Activity
}

// NewSet creates a Set holding the given activities.
func NewSet(items ...*Activity) *Set {
	return &Set{items: slices.Clone(items)}
}

// ObjectsAdded is emitted after activities are appended.
func (s *Set) ObjectsAdded() *Signal { return &s.added }

// ObjectsRemoved is emitted after activities are erased.
func (s *Set) ObjectsRemoved() *Signal { return &s.removed }

func (s *Set) Len() int { return len(s.items) }

// At returns the activity at index i, which may be nil.
func (s *Set) At(i int) *Activity { return s.items[i] }

// Items returns a copy of the entries.
func (s *Set) Items() []*Activity { return slices.Clone(s.items) }

// Append adds activities at the end of the set.
func (s *Set) Append(acts ...*Activity) {
	if len(acts) == 0 {
		return
	}
	s.items = append(s.items, acts...)
	s.pendingAdded = append(s.pendingAdded, acts...)
	s.flushIfIdle()
}

// Erase removes the entry at index i.
func (s *Set) Erase(i int) {
	removed := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	if removed != nil {
		s.pendingRemoved = append(s.pendingRemoved, removed)
	}
	s.flushIfIdle()
}

// Truncate erases every entry from index from to the end.
func (s *Set) Truncate(from int) {
	if from >= len(s.items) {
		return
	}
	for _, a := range s.items[from:] {
		if a != nil {
			s.pendingRemoved = append(s.pendingRemoved, a)
		}
	}
	clear(s.items[from:])
	s.items = s.items[:from]
	s.flushIfIdle()
}

// Batch opens a coalescing scope. Scopes nest; only the outermost Close
// flushes notifications.
func (s *Set) Batch() *Batch {
	s.depth++
	return &Batch{set: s}
}

func (s *Set) flushIfIdle() {
	if s.depth > 0 {
		return
	}
	removed, added := s.pendingRemoved, s.pendingAdded
	s.pendingRemoved, s.pendingAdded = nil, nil
	if len(removed) > 0 {
		s.removed.Emit(Change{Activities: removed})
	}
	if len(added) > 0 {
		s.added.Emit(Change{Activities: added})
	}
}

// Batch is a reference-counted scoped emit token.
type Batch struct {
	set    *Set
	closed bool
}

// Close ends the scope. It is safe to call more than once.
func (b *Batch) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.set.depth--
	b.set.flushIfIdle()
}
