package session

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/logging"
	"github.com/rendis/sequencer/internal/metrics"
	"github.com/rendis/sequencer/internal/sequencer"
	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/internal/streaming"
	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/schema"
)

// EventLog appends session events and replays them into a trail.
// Satisfied by *store.EventLog.
type EventLog interface {
	EventAppender
	ReplayEvents(ctx context.Context, sessionID string) (*store.Trail, error)
}

// Deps are the collaborators shared by every session of a Manager.
type Deps struct {
	Infos    sequencer.InfoSource
	Factory  *data.Factory
	Pipeline *validation.Pipeline

	Store   store.Store        // nil keeps sessions in memory only
	Events  EventLog           // nil disables the event log
	Hub     streaming.EventHub // nil disables streaming
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Manager holds open sessions by id and persists them through the store.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     Deps
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		deps:     deps,
		logger:   logger.With("component", "session_manager"),
	}
}

func (m *Manager) options() []Option {
	opts := []Option{
		WithLogger(m.logger.With("component", "session")),
		WithMetrics(m.deps.Metrics),
	}
	if m.deps.Events != nil {
		opts = append(opts, WithEvents(m.deps.Events))
	}
	if m.deps.Hub != nil {
		opts = append(opts, WithHub(m.deps.Hub))
	}
	return opts
}

// Open creates a session over ids, seeds it with the user's selection and
// builds its first activity. The session is persisted right away.
func (m *Manager) Open(ctx context.Context, ids []string, seed validation.Selection) (*Session, error) {
	sess, err := New(ids, m.deps.Infos, m.deps.Factory, m.deps.Pipeline, m.options()...)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithSessionID(ctx, sess.ID())

	if _, err := sess.Open(ctx, seed); err != nil {
		sess.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()

	if err := m.save(ctx, sess); err != nil {
		return nil, err
	}
	logging.LogWith(ctx, m.logger).Info("session created", "activities", len(ids))
	return sess, nil
}

// Get returns a loaded session, restoring it from the store when needed.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}
	if m.deps.Store == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id)
	}

	rec, err := m.deps.Store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have restored it meanwhile.
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	sess, err = Restore(rec, m.deps.Infos, m.deps.Factory, m.deps.Pipeline, m.options()...)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = sess
	m.logger.Debug("session restored", "session_id", id)
	return sess, nil
}

// Save persists one loaded session.
func (m *Manager) Save(ctx context.Context, id string) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "session %q is not loaded", id)
	}
	return m.save(ctx, sess)
}

// SaveDirty persists every loaded session changed since its last save and
// returns how many were written.
func (m *Manager) SaveDirty(ctx context.Context) (int, error) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess.Dirty() {
			sessions = append(sessions, sess)
		}
	}
	m.mu.RUnlock()

	var (
		saved int
		errs  []error
	)
	for _, sess := range sessions {
		if err := m.save(ctx, sess); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	if m.deps.Store == nil {
		return nil
	}
	// Cleared before encoding so edits made during the save stay pending.
	sess.dirty.Store(false)
	rec, err := sess.Record()
	if err == nil {
		err = m.deps.Store.SaveSession(ctx, rec)
	}
	if err != nil {
		sess.dirty.Store(true)
		return schema.NewErrorf(schema.ErrCodeStore, "save session %s", sess.ID()).WithCause(err)
	}
	return nil
}

// Close persists a session and unloads it.
func (m *Manager) Close(ctx context.Context, id string) error {
	if err := m.Save(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
	return nil
}

// Delete unloads a session and removes it from the store. Its events are
// kept.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, loaded := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if loaded {
		sess.Close()
	}

	if m.deps.Store == nil {
		if !loaded {
			return schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id)
		}
		return nil
	}
	err := m.deps.Store.DeleteSession(ctx, id)
	if loaded && schema.HasCode(err, schema.ErrCodeNotFound) {
		return nil
	}
	return err
}

// Summary describes one known session.
type Summary struct {
	ID        string               `json:"id"`
	Status    schema.SessionStatus `json:"status"`
	Current   int                  `json:"current"`
	Total     int                  `json:"total"`
	Loaded    bool                 `json:"loaded"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
}

// List returns loaded sessions followed by stored ones that are not loaded.
func (m *Manager) List(ctx context.Context, filter store.SessionFilter) ([]Summary, error) {
	m.mu.RLock()
	loaded := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		loaded = append(loaded, sess)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(loaded))
	seen := make(map[string]bool, len(loaded))
	for _, sess := range loaded {
		st := sess.Status()
		seen[st.ID] = true
		if filter.Status != nil && st.Status != *filter.Status {
			continue
		}
		out = append(out, Summary{ID: st.ID, Status: st.Status, Current: st.Current, Total: st.Total, Loaded: true})
	}
	slices.SortFunc(out, func(a, b Summary) int { return cmp.Compare(a.ID, b.ID) })

	if m.deps.Store == nil {
		return out, nil
	}
	stored, err := m.deps.Store.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, rec := range stored {
		if seen[rec.ID] {
			continue
		}
		updated := rec.UpdatedAt
		out = append(out, Summary{
			ID:        rec.ID,
			Status:    rec.Status,
			Current:   rec.Current,
			Total:     len(rec.ActivityIDs),
			UpdatedAt: &updated,
		})
	}
	return out, nil
}

// History replays the event log of a session.
func (m *Manager) History(ctx context.Context, id string) (*store.Trail, error) {
	if m.deps.Events == nil {
		return nil, schema.NewError(schema.ErrCodeNotFound, "no event log configured")
	}
	return m.deps.Events.ReplayEvents(ctx, id)
}

// Loaded returns the number of sessions held in memory.
func (m *Manager) Loaded() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Infos exposes the activity configuration source.
func (m *Manager) Infos() sequencer.InfoSource { return m.deps.Infos }

// Factory exposes the data object factory.
func (m *Manager) Factory() *data.Factory { return m.deps.Factory }
