// Package sequencer resolves which requirements of each workflow activity
// are created fresh and which are carried over from earlier activities, and
// keeps that bookkeeping consistent while the activity set is navigated,
// truncated and reset.
package sequencer

import (
	"log/slog"
	"slices"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/metrics"
	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/schema"
)

// InfoSource resolves activity configurations.
type InfoSource interface {
	GetInfo(id string) (schema.ActivityInfo, error)
}

// ObjectFactory creates default data objects by type name.
type ObjectFactory interface {
	Create(typeName string, cfg map[string]any) (data.Object, error)
}

// ActivityValidator decides whether a stored activity is usable.
type ActivityValidator interface {
	ValidateActivity(info schema.ActivityInfo, act *activity.Activity) schema.Verdict
}

// Sequencer drives one ordered list of activity configurations. It owns the
// requirement store and mutates an externally owned activity.Set. All calls
// for a given Sequencer must come from one goroutine at a time.
type Sequencer struct {
	ids       []string
	infos     InfoSource
	factory   ObjectFactory
	validator ActivityValidator
	store     *RequirementStore
	counter   *IDCounter
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithCounter injects the identifier counter, e.g. one restored from a
// saved session or shared between sequencers.
func WithCounter(c *IDCounter) Option {
	return func(s *Sequencer) { s.counter = c }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// WithValidator replaces the activity validator used by ParseActivities.
// The default checks completeness only.
func WithValidator(v ActivityValidator) Option {
	return func(s *Sequencer) { s.validator = v }
}

// New creates a Sequencer for the given ordered activity configuration ids.
func New(ids []string, infos InfoSource, factory ObjectFactory, opts ...Option) *Sequencer {
	s := &Sequencer{
		ids:     slices.Clone(ids),
		infos:   infos,
		factory: factory,
		store:   NewRequirementStore(),
		logger:  slog.Default().With("component", "sequencer"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.counter == nil {
		s.counter = NewIDCounter(0)
	}
	if s.validator == nil {
		s.validator = validation.NewCompleteness(nil)
	}
	return s
}

// IDs returns the configured activity ids.
func (s *Sequencer) IDs() []string { return slices.Clone(s.ids) }

// Store exposes the requirement store for inspection.
func (s *Sequencer) Store() *RequirementStore { return s.store }

func (s *Sequencer) Counter() *IDCounter { return s.counter }

// ParseActivities reconciles set with the configured ids. Entries that are
// nil or whose config id does not match the id at their position are erased.
// Walking stops at the first activity the validator rejects, which is kept.
// The data of every accepted activity is bound into the store.
//
// It returns the index of the last valid activity, or -1. Calling it again
// on an unchanged set changes nothing and returns the same index.
func (s *Sequencer) ParseActivities(set *activity.Set) (int, error) {
	batch := set.Batch()
	defer batch.Close()

	index := 0
	for index < set.Len() {
		act := set.At(index)
		if act == nil {
			s.logger.Debug("erasing unresolved activity", "index", index)
			set.Erase(index)
			continue
		}
		if index >= len(s.ids) || act.ConfigID() != s.ids[index] {
			s.logger.Debug("erasing mismatched activity", "index", index, "config_id", act.ConfigID())
			set.Erase(index)
			continue
		}

		info, err := s.infos.GetInfo(s.ids[index])
		if err != nil {
			return index - 1, err
		}
		if verdict := s.validator.ValidateActivity(info, act); !verdict.Valid {
			s.logger.Debug("activity not valid, stopping parse",
				"index", index, "config_id", act.ConfigID(), "reason", verdict.Reason)
			return index - 1, nil
		}

		if err := s.StoreActivityData(set, index); err != nil {
			return index - 1, err
		}
		index++
	}
	return index - 1, nil
}

// StoreActivityData binds every object of the activity at index into the
// requirement store, except for names listed in overrides.
func (s *Sequencer) StoreActivityData(set *activity.Set, index int, overrides ...string) error {
	act, err := s.existing(set, index)
	if err != nil {
		return err
	}
	for _, name := range act.Keys() {
		if slices.Contains(overrides, name) {
			continue
		}
		obj, _ := act.Get(name)
		s.store.Bind(name, obj)
	}
	return nil
}

// GetActivity returns the activity at index, creating it (and any missing
// predecessor) when the set is shorter.
//
// An existing activity is refreshed: every requirement bound in the store
// is reassigned into it, so objects changed by later activities show up.
//
// Creation appends inside one batch, so observers of set.ObjectsAdded get a
// single notification for all appended activities. slot, when not nil, is
// blocked for the duration and does not receive it.
func (s *Sequencer) GetActivity(set *activity.Set, index int, slot *activity.Connection) (*activity.Activity, error) {
	if index < 0 || index >= len(s.ids) {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidIndex,
			"activity index %d out of range [0, %d)", index, len(s.ids))
	}

	if index < set.Len() {
		return s.refresh(set, index)
	}

	if slot != nil {
		slot.Block()
		defer slot.Unblock()
	}
	batch := set.Batch()
	defer batch.Close()

	return s.create(set, index)
}

func (s *Sequencer) refresh(set *activity.Set, index int) (*activity.Activity, error) {
	act, err := s.existing(set, index)
	if err != nil {
		return nil, err
	}
	info, err := s.infos.GetInfo(act.ConfigID())
	if err != nil {
		return nil, err
	}
	for _, req := range info.Requirements {
		if obj, ok := s.store.Lookup(req.Name); ok {
			act.Set(req.Name, obj)
		}
	}
	return act, nil
}

type binding struct {
	name string
	obj  data.Object
}

func (s *Sequencer) create(set *activity.Set, index int) (*activity.Activity, error) {
	if index < set.Len() {
		return s.refresh(set, index)
	}
	if index > set.Len() {
		if _, err := s.create(set, index-1); err != nil {
			return nil, err
		}
	}

	info, err := s.infos.GetInfo(s.ids[index])
	if err != nil {
		return nil, err
	}

	act := activity.New(info.ID, info.Description)
	var minted []binding

	for _, req := range info.Requirements {
		if obj, ok := s.store.Lookup(req.Name); ok {
			act.Set(req.Name, obj)
			continue
		}

		var obj data.Object
		switch {
		case req.Creatable():
			obj, err = s.factory.Create(req.Type, req.ObjectConfig)
			if err != nil {
				return nil, err
			}
		case req.Optional():
			obj = data.NewComposite()
		default:
			s.logger.Warn("mandatory requirement not available, activity is incomplete",
				"config_id", info.ID, "requirement", req.Name)
			continue
		}

		obj.SetID(s.counter.Mint(req.Name))
		act.Set(req.Name, obj)
		minted = append(minted, binding{name: req.Name, obj: obj})
	}

	for _, b := range minted {
		s.store.Bind(b.name, b.obj)
		s.metrics.ObjectMinted()
	}
	set.Append(act)
	s.metrics.ActivityCreated()
	s.logger.Debug("activity created", "index", index, "config_id", info.ID, "minted", len(minted))
	return act, nil
}

// RemoveLastActivities truncates set to index entries. The store is rebuilt
// from the surviving activities and the identifier counter advances, so
// objects created afterwards get fresh identifiers. Nothing happens when the
// set is not longer than index.
func (s *Sequencer) RemoveLastActivities(set *activity.Set, index int) error {
	if index < 0 {
		return schema.NewErrorf(schema.ErrCodeInvalidIndex, "activity index %d is negative", index)
	}
	if set.Len() <= index {
		return nil
	}

	removed := set.Len() - index
	batch := set.Batch()
	set.Truncate(index)
	batch.Close()

	s.store.Clear()
	s.counter.Advance()
	s.metrics.Rollback()
	s.logger.Info("activities removed", "from", index, "count", removed)

	_, err := s.ParseActivities(set)
	return err
}

// ResetRequirements restores, in place, every stored object the sequencer
// created or holds for an optional requirement. Force-created objects and
// "0,0" containers get the contents of a fresh default object of their type;
// other optional requirements get an empty Composite. Object identity is kept,
// so every activity that references the object sees the reset.
func (s *Sequencer) ResetRequirements() error {
	for _, id := range s.ids {
		info, err := s.infos.GetInfo(id)
		if err != nil {
			return err
		}
		for _, req := range info.Requirements {
			if !req.Create && !req.Optional() {
				continue
			}
			obj, ok := s.store.Lookup(req.Name)
			if !ok || obj == nil {
				continue
			}
			if err := s.reset(req, obj); err != nil {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"reset requirement %q", req.Name).WithActivity(id).WithCause(err)
			}
		}
	}
	return nil
}

// reset gives obj default contents in place. Contents can only be replaced
// by an object of the same type, so the declared type is used when obj still
// has it and obj's own type otherwise. For the same reason a placeholder the
// caller replaced with a concrete object is cleared to that type's default
// rather than to an empty Composite.
func (s *Sequencer) reset(req schema.RequirementDescriptor, obj data.Object) error {
	typ := req.Type
	if held := obj.Type(); held != typ {
		s.logger.Debug("requirement holds a different type, resetting by held type",
			"requirement", req.Name, "declared", typ, "held", held)
		typ = held
	}

	var (
		fresh data.Object
		err   error
	)
	if typ == data.TypeComposite && !req.Create && req.MaxOccurs != 0 {
		fresh = data.NewComposite()
	} else {
		fresh, err = s.factory.Create(typ, nil)
	}
	if err != nil {
		return err
	}
	return data.ReplaceContents(obj, fresh)
}

func (s *Sequencer) existing(set *activity.Set, index int) (*activity.Activity, error) {
	if index < 0 || index >= set.Len() {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidIndex,
			"activity index %d out of range [0, %d)", index, set.Len())
	}
	act := set.At(index)
	if act == nil {
		return nil, schema.NewErrorf(schema.ErrCodeContract, "activity at index %d is unresolved", index)
	}
	return act, nil
}
