// Package session drives a Sequencer the way an interactive workflow does:
// one cursor over the ordered activities, validator gating on forward moves,
// a status lifecycle and an event trail.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/metrics"
	"github.com/rendis/sequencer/internal/sequencer"
	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/internal/streaming"
	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/schema"
)

// Session owns one activity set and the Sequencer that fills it. All
// methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	ids       []string
	infos     sequencer.InfoSource
	factory   *data.Factory
	pipeline  *validation.Pipeline
	seq       *sequencer.Sequencer
	set       *activity.Set
	fsm       *FSM
	events    EventAppender
	hub       streaming.EventHub
	forwarder *streaming.Forwarder
	watch     *activity.Connection
	counter   *sequencer.IDCounter
	metrics   *metrics.Recorder
	logger    *slog.Logger

	status    schema.SessionStatus
	current   int
	createdAt time.Time
	dirty     atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithEvents sets where transition and navigation events are appended.
func WithEvents(a EventAppender) Option {
	return func(s *Session) { s.events = a }
}

// WithHub republishes events and activity set notifications to hub.
func WithHub(hub streaming.EventHub) Option {
	return func(s *Session) { s.hub = hub }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Session) { s.metrics = m }
}

func withCounter(c *sequencer.IDCounter) Option {
	return func(s *Session) { s.counter = c }
}

// New creates a pending session over the ordered activity ids. Every id must
// resolve through infos.
func New(ids []string, infos sequencer.InfoSource, factory *data.Factory, pipeline *validation.Pipeline, opts ...Option) (*Session, error) {
	if len(ids) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "a session needs at least one activity")
	}
	for _, id := range ids {
		if _, err := infos.GetInfo(id); err != nil {
			return nil, err
		}
	}

	s := &Session{
		id:        uuid.New().String(),
		ids:       slices.Clone(ids),
		infos:     infos,
		factory:   factory,
		pipeline:  pipeline,
		set:       activity.NewSet(),
		status:    schema.SessionStatusPending,
		current:   -1,
		createdAt: time.Now().UTC(),
		logger:    slog.Default().With("component", "session"),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("session_id", s.id)
	if s.counter == nil {
		s.counter = sequencer.NewIDCounter(0)
	}

	s.seq = sequencer.New(s.ids, infos, factory,
		sequencer.WithLogger(s.logger),
		sequencer.WithCounter(s.counter),
		sequencer.WithMetrics(s.metrics),
		sequencer.WithValidator(pipeline),
	)
	s.fsm = NewFSM(s.events)
	s.watch = s.set.ObjectsAdded().Connect(s.onExternalAppend)
	if s.hub != nil {
		s.forwarder = streaming.Forward(s.hub, s.id, s.set, s.logger)
		s.publishTransitions()
	}
	return s, nil
}

// publishTransitions mirrors every status transition to the hub.
func (s *Session) publishTransitions() {
	for from, targets := range ValidTransitions {
		for _, to := range targets {
			s.fsm.OnAfter(from, to, func(f, t string) error {
				s.publish(context.Background(), transitionEventType(schema.SessionStatus(t)), "",
					store.TransitionPayload{From: f, To: t})
				return nil
			})
		}
	}
}

// onExternalAppend sees appends made by anyone but the session itself; the
// session blocks this slot around its own edits.
func (s *Session) onExternalAppend(c activity.Change) {
	s.dirty.Store(true)
	s.logger.Debug("activity set changed outside navigation", "added", len(c.Activities))
}

func (s *Session) ID() string { return s.id }

// Set exposes the activity set so observers can connect to its signals.
func (s *Session) Set() *activity.Set { return s.set }

// FSM exposes the status machine for hook registration.
func (s *Session) FSM() *FSM { return s.fsm }

// Dirty reports whether the session changed since it was last persisted.
func (s *Session) Dirty() bool { return s.dirty.Load() }

// Close disconnects the session from its activity set.
func (s *Session) Close() {
	s.watch.Disconnect()
	if s.forwarder != nil {
		s.forwarder.Stop()
	}
}

// Open binds the seed objects the user selected, builds the first activity
// and activates the session.
func (s *Session) Open(ctx context.Context, seed validation.Selection) (*activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != schema.SessionStatusPending {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "session %s is already %s", s.id, s.status)
	}

	for _, name := range slices.Sorted(maps.Keys(seed)) {
		if obj := seed[name]; obj != nil {
			s.seq.Store().Bind(name, obj)
		}
	}

	act, err := s.enter(ctx, 0)
	if err != nil {
		return nil, err
	}
	if err := s.fsm.Transition(ctx, s.id, s.status, schema.SessionStatusActive); err != nil {
		return nil, err
	}
	s.status = schema.SessionStatusActive
	s.moveTo(ctx, 0)
	s.logger.Info("session opened", "activities", len(s.ids))
	return act, nil
}

// Next validates the current activity and moves to the following one,
// building it if needed. On the last activity it completes the session.
func (s *Session) Next(ctx context.Context) (*activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return nil, err
	}
	return s.advance(ctx)
}

// Previous moves back one activity. Nothing is rolled back; the activity is
// refreshed with the current requirement bindings.
func (s *Session) Previous(ctx context.Context) (*activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == schema.SessionStatusPending {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "session %s is not open", s.id)
	}
	if s.current == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidIndex, "already at the first activity")
	}
	return s.back(ctx, s.current-1)
}

// GoTo moves to index. Moving forward validates every intermediate step and
// stops at the first one that fails.
func (s *Session) GoTo(ctx context.Context, index int) (*activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == schema.SessionStatusPending {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "session %s is not open", s.id)
	}
	if index < 0 || index >= len(s.ids) {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidIndex,
			"activity index %d out of range [0, %d)", index, len(s.ids))
	}
	if index <= s.current {
		return s.back(ctx, index)
	}

	var (
		act *activity.Activity
		err error
	)
	for s.current < index {
		if act, err = s.advance(ctx); err != nil {
			return nil, err
		}
	}
	return act, nil
}

// CheckNext reports whether Next would succeed, without changing anything.
func (s *Session) CheckNext() schema.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != schema.SessionStatusActive {
		return schema.Fail("session is %s", s.status)
	}
	info, err := s.infos.GetInfo(s.ids[s.current])
	if err != nil {
		return schema.Fail("%s", err.Error())
	}
	if v := s.pipeline.ValidateActivity(info, s.set.At(s.current)); !v.Valid {
		return v
	}
	if s.current == len(s.ids)-1 {
		return schema.PassWith("last activity, next completes the session")
	}
	next, err := s.infos.GetInfo(s.ids[s.current+1])
	if err != nil {
		return schema.Fail("%s", err.Error())
	}
	return s.pipeline.ValidatePreBuild(next, s.selection())
}

// Current returns the cursor and the activity under it; -1 and nil while
// the session is pending.
func (s *Session) Current() (int, *activity.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= s.set.Len() {
		return s.current, nil
	}
	return s.current, s.set.At(s.current)
}

// Bind sets the object of requirement name on the current activity and
// stores it for the activities that follow. An object already bound with
// the same type keeps its identity and receives obj's contents.
func (s *Session) Bind(ctx context.Context, name string, obj data.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return err
	}
	if obj == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "no object given for requirement %q", name)
	}
	info, err := s.infos.GetInfo(s.ids[s.current])
	if err != nil {
		return err
	}
	req, ok := info.Requirement(name)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "activity has no requirement %q", name).WithActivity(info.ID)
	}
	if obj.Type() != req.Type {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"requirement %q expects %s, got %s", name, req.Type, obj.Type()).WithActivity(info.ID)
	}

	act := s.set.At(s.current)
	if existing, ok := act.Get(name); ok && existing != nil && existing.Type() == obj.Type() {
		if err := data.ReplaceContents(existing, obj); err != nil {
			return err
		}
	} else {
		if obj.ID() == "" {
			obj.SetID(s.counter.Mint(name))
		}
		act.Set(name, obj)
	}
	if err := s.seq.StoreActivityData(s.set, s.current); err != nil {
		return err
	}

	s.emit(ctx, schema.EventActivityUpdated, info.ID, map[string]any{"requirement": name, "type": obj.Type()})
	s.dirty.Store(true)
	return nil
}

// Reset restarts the workflow in place: every object the sequencer created
// or holds for an optional requirement gets default contents, the built
// activities and bindings are kept, and the session returns to pending on
// the first activity. Open resumes it.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fsm.Transition(ctx, s.id, s.status, schema.SessionStatusPending); err != nil {
		return err
	}
	s.status = schema.SessionStatusPending

	if err := s.seq.ResetRequirements(); err != nil {
		return err
	}
	s.emit(ctx, schema.EventRequirementsReset, "", nil)

	if s.set.Len() > 0 {
		s.moveTo(ctx, 0)
	}
	s.dirty.Store(true)
	s.logger.Info("session reset", "built", s.set.Len())
	return nil
}

// Rollback discards the activities from index on. index must keep at least
// the first activity.
func (s *Session) Rollback(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == schema.SessionStatusPending {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "session %s is not open", s.id)
	}
	if index < 1 {
		return schema.NewErrorf(schema.ErrCodeInvalidIndex, "rollback index %d must be at least 1", index)
	}
	if index >= s.set.Len() {
		return nil
	}

	s.watch.Block()
	err := s.seq.RemoveLastActivities(s.set, index)
	s.watch.Unblock()
	if err != nil {
		return err
	}
	s.emit(ctx, schema.EventSequenceRollback, "", store.RollbackPayload{Index: index})

	if s.status == schema.SessionStatusCompleted {
		if err := s.fsm.Transition(ctx, s.id, s.status, schema.SessionStatusActive); err != nil {
			return err
		}
		s.status = schema.SessionStatusActive
	}
	if s.current >= s.set.Len() {
		s.moveTo(ctx, s.set.Len()-1)
	}
	s.dirty.Store(true)
	return nil
}

// Report runs every validator of the current activity and returns all
// verdicts.
func (s *Session) Report() ([]validation.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "session %s is not open", s.id)
	}
	info, err := s.infos.GetInfo(s.ids[s.current])
	if err != nil {
		return nil, err
	}
	return s.pipeline.Report(info, s.selection(), s.set.At(s.current)), nil
}

// ActivityView is a read-only rendering of one built activity.
type ActivityView struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	ConfigID    string `json:"config_id"`
	Description string `json:"description,omitempty"`
	Current     bool   `json:"current"`
	Data        any    `json:"data,omitempty"`
}

// Activities renders the built activities in order.
func (s *Session) Activities() []ActivityView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]ActivityView, 0, s.set.Len())
	for i, act := range s.set.Items() {
		if act == nil {
			continue
		}
		views = append(views, ActivityView{
			Index:       i,
			ID:          act.ID(),
			ConfigID:    act.ConfigID(),
			Description: act.Description(),
			Current:     i == s.current,
			Data:        act.Properties()["data"],
		})
	}
	return views
}

// Status is a snapshot of a session's position.
type Status struct {
	ID          string               `json:"id"`
	Status      schema.SessionStatus `json:"status"`
	Current     int                  `json:"current"`
	ConfigID    string               `json:"config_id,omitempty"`
	Total       int                  `json:"total"`
	Built       int                  `json:"built"`
	ActivityIDs []string             `json:"activity_ids"`
	Bindings    []string             `json:"bindings"`
	Generation  uint64               `json:"generation"`
	Dirty       bool                 `json:"dirty"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:          s.id,
		Status:      s.status,
		Current:     s.current,
		Total:       len(s.ids),
		Built:       s.set.Len(),
		ActivityIDs: slices.Clone(s.ids),
		Bindings:    s.seq.Store().Names(),
		Generation:  s.counter.Current(),
		Dirty:       s.dirty.Load(),
	}
	if s.current >= 0 {
		st.ConfigID = s.ids[s.current]
	}
	return st
}

// --- internals; callers hold s.mu ---

func (s *Session) requireActive() error {
	if s.status != schema.SessionStatusActive {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "session %s is %s", s.id, s.status)
	}
	return nil
}

// advance is one gated forward step from the current activity.
func (s *Session) advance(ctx context.Context) (*activity.Activity, error) {
	act, err := s.seq.GetActivity(s.set, s.current, s.watch)
	if err != nil {
		return nil, err
	}
	info, err := s.infos.GetInfo(s.ids[s.current])
	if err != nil {
		return nil, err
	}
	if v := s.pipeline.ValidateActivity(info, act); !v.Valid {
		return nil, s.rejected(ctx, info.ID, validation.RoleActivity, v)
	}
	if err := s.seq.StoreActivityData(s.set, s.current); err != nil {
		return nil, err
	}

	if s.current == len(s.ids)-1 {
		if err := s.fsm.Transition(ctx, s.id, s.status, schema.SessionStatusCompleted); err != nil {
			return nil, err
		}
		s.status = schema.SessionStatusCompleted
		s.dirty.Store(true)
		s.logger.Info("session completed")
		return act, nil
	}

	next, err := s.enter(ctx, s.current+1)
	if err != nil {
		return nil, err
	}
	s.moveTo(ctx, s.current+1)
	return next, nil
}

// enter runs the pre-build validators for index against the current
// bindings, gets the activity and runs its object validators.
func (s *Session) enter(ctx context.Context, index int) (*activity.Activity, error) {
	info, err := s.infos.GetInfo(s.ids[index])
	if err != nil {
		return nil, err
	}
	if v := s.pipeline.ValidatePreBuild(info, s.selection()); !v.Valid {
		return nil, s.rejected(ctx, info.ID, validation.RolePreBuild, v)
	}
	act, err := s.seq.GetActivity(s.set, index, s.watch)
	if err != nil {
		return nil, err
	}
	if v := s.pipeline.ValidateObjects(info, act); !v.Valid {
		return nil, s.rejected(ctx, info.ID, validation.RoleObject, v)
	}
	return act, nil
}

func (s *Session) back(ctx context.Context, index int) (*activity.Activity, error) {
	act, err := s.seq.GetActivity(s.set, index, s.watch)
	if err != nil {
		return nil, err
	}
	if s.status == schema.SessionStatusCompleted && index < len(s.ids)-1 {
		if err := s.fsm.Transition(ctx, s.id, s.status, schema.SessionStatusActive); err != nil {
			return nil, err
		}
		s.status = schema.SessionStatusActive
	}
	s.moveTo(ctx, index)
	return act, nil
}

func (s *Session) selection() validation.Selection {
	return validation.Selection(s.seq.Store().Snapshot())
}

func (s *Session) moveTo(ctx context.Context, index int) {
	from := s.current
	s.current = index
	s.dirty.Store(true)
	if from != index {
		s.emit(ctx, schema.EventSessionMoved, s.configAt(index), store.MovePayload{From: from, To: index})
	}
}

func (s *Session) configAt(index int) string {
	if index < 0 || index >= len(s.ids) {
		return ""
	}
	return s.ids[index]
}

func (s *Session) rejected(ctx context.Context, configID string, role validation.Role, v schema.Verdict) error {
	s.logger.Info("move rejected", "config_id", configID, "role", role, "reason", v.Reason)
	s.emit(ctx, schema.EventValidationFailed, configID, map[string]any{"role": role, "reason": v.Reason})
	return schema.NewError(schema.ErrCodeValidation, v.Reason).
		WithActivity(configID).
		WithDetails(map[string]any{"role": string(role)})
}

// emit appends to the event log and publishes to the hub. Failures are
// logged; navigation has already happened.
func (s *Session) emit(ctx context.Context, eventType, configID string, payload any) {
	if s.events != nil {
		var raw json.RawMessage
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				s.logger.Warn("marshal event payload", "event_type", eventType, "error", err)
			}
			raw = b
		}
		err := s.events.AppendEvent(ctx, &store.Event{
			SessionID:  s.id,
			ActivityID: configID,
			Type:       eventType,
			Payload:    raw,
		})
		if err != nil {
			s.logger.Warn("append event", "event_type", eventType, "error", err)
		}
	}
	s.publish(ctx, eventType, configID, payload)
}

func (s *Session) publish(ctx context.Context, eventType, configID string, payload any) {
	if s.hub == nil {
		return
	}
	ev := streaming.StreamEvent{SessionID: s.id, ActivityID: configID, EventType: eventType, Payload: payload}
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event", "event_type", eventType, "error", err)
	}
}
