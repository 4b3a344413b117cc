package session

import (
	"fmt"
	"maps"
	"slices"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/sequencer"
	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/schema"
)

// Record renders the session in its persisted form. Every distinct object is
// encoded once; activities and bindings refer to it by ref, so objects
// shared between activities stay shared after Restore.
func (s *Session) Record() (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		objects []*store.ObjectRecord
		refs    = make(map[data.Object]string)
	)
	refOf := func(obj data.Object) (string, error) {
		if ref, ok := refs[obj]; ok {
			return ref, nil
		}
		raw, err := data.Encode(obj)
		if err != nil {
			return "", fmt.Errorf("encode object %q: %w", obj.ID(), err)
		}
		ref := fmt.Sprintf("o%d", len(refs)+1)
		refs[obj] = ref
		objects = append(objects, &store.ObjectRecord{Ref: ref, Type: obj.Type(), Payload: raw})
		return ref, nil
	}

	rec := &store.Session{
		ID:          s.id,
		ActivityIDs: slices.Clone(s.ids),
		Status:      s.status,
		Current:     s.current,
		Counter:     s.counter.Current(),
		Bindings:    make(map[string]string),
		CreatedAt:   s.createdAt,
	}

	for i, act := range s.set.Items() {
		if act == nil {
			continue
		}
		ar := &store.ActivityRecord{
			Position:    i,
			ID:          act.ID(),
			ConfigID:    act.ConfigID(),
			Description: act.Description(),
		}
		for _, name := range act.Keys() {
			obj, _ := act.Get(name)
			if obj == nil {
				continue
			}
			ref, err := refOf(obj)
			if err != nil {
				return nil, err
			}
			ar.Data = append(ar.Data, store.DataBinding{Name: name, Ref: ref})
		}
		rec.Activities = append(rec.Activities, ar)
	}

	bound := s.seq.Store().Snapshot()
	for _, name := range s.seq.Store().Names() {
		obj := bound[name]
		if obj == nil {
			continue
		}
		ref, err := refOf(obj)
		if err != nil {
			return nil, err
		}
		rec.Bindings[name] = ref
	}

	rec.Objects = objects
	return rec, nil
}

// Restore rebuilds a session from its persisted form.
func Restore(rec *store.Session, infos sequencer.InfoSource, factory *data.Factory, pipeline *validation.Pipeline, opts ...Option) (*Session, error) {
	opts = append(opts, WithID(rec.ID), withCounter(sequencer.NewIDCounter(rec.Counter)))
	s, err := New(rec.ActivityIDs, infos, factory, pipeline, opts...)
	if err != nil {
		return nil, err
	}

	objects := make(map[string]data.Object, len(rec.Objects))
	for _, o := range rec.Objects {
		obj, err := factory.Decode(o.Payload)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "decode object %s", o.Ref).WithCause(err)
		}
		objects[o.Ref] = obj
	}
	lookup := func(ref string) (data.Object, error) {
		obj, ok := objects[ref]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeContract, "session %s references unknown object %s", rec.ID, ref)
		}
		return obj, nil
	}

	acts := make([]*activity.Activity, 0, len(rec.Activities))
	inActivities := make(map[string]bool)
	for _, ar := range rec.Activities {
		act := activity.New(ar.ConfigID, ar.Description)
		act.SetID(ar.ID)
		for _, d := range ar.Data {
			obj, err := lookup(d.Ref)
			if err != nil {
				return nil, err
			}
			act.Set(d.Name, obj)
			inActivities[d.Name] = true
		}
		acts = append(acts, act)
	}

	// Bindings no activity carries (the seed selection) go in directly; the
	// rest is rebuilt from the activities that survive parsing.
	for _, name := range slices.Sorted(maps.Keys(rec.Bindings)) {
		obj, err := lookup(rec.Bindings[name])
		if err != nil {
			return nil, err
		}
		if !inActivities[name] {
			s.seq.Store().Bind(name, obj)
		}
	}

	s.watch.Block()
	s.set.Append(acts...)
	last, err := s.seq.ParseActivities(s.set)
	s.watch.Unblock()
	if err != nil {
		return nil, err
	}
	if s.set.Len() != len(acts) {
		s.logger.Warn("restored session dropped stale activities",
			"stored", len(acts), "kept", s.set.Len())
		s.dirty.Store(true)
	}

	if rec.Current < -1 {
		return nil, schema.NewErrorf(schema.ErrCodeContract,
			"session %s has invalid cursor %d", rec.ID, rec.Current)
	}
	// The cursor may rest on the first activity that is not valid yet (it is
	// being filled in) but never beyond it.
	current := min(rec.Current, last+1, s.set.Len()-1)
	if current != rec.Current {
		s.dirty.Store(true)
	}
	if rec.Status != "" {
		s.status = rec.Status
	}
	switch {
	case s.set.Len() == 0 && s.status != schema.SessionStatusPending:
		s.status = schema.SessionStatusPending
		s.dirty.Store(true)
	case s.status == schema.SessionStatusCompleted && s.set.Len() < len(s.ids):
		s.status = schema.SessionStatusActive
		s.dirty.Store(true)
	}
	s.current = current
	if !rec.CreatedAt.IsZero() {
		s.createdAt = rec.CreatedAt
	}
	return s, nil
}
