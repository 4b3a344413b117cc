package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/sequencer/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	_, err := runMigrations(ctx, s.db, migrationFiles)
	return err
}

// SchemaVersion reports the highest applied migration.
func (s *LibSQLStore) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Sessions ---

func (s *LibSQLStore) SaveSession(ctx context.Context, sess *Session) error {
	ids, err := json.Marshal(sess.ActivityIDs)
	if err != nil {
		return fmt.Errorf("marshal activity ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, activity_ids, status, current_index, counter, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET activity_ids=excluded.activity_ids, status=excluded.status,
		   current_index=excluded.current_index, counter=excluded.counter, updated_at=excluded.updated_at`,
		sess.ID, string(ids), string(sess.Status), sess.Current, int64(sess.Counter),
		timeOrNow(sess.CreatedAt), now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if err := deleteSessionState(ctx, tx, sess.ID); err != nil {
		return err
	}

	for _, o := range sess.Objects {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO objects (session_id, ref, type, payload) VALUES (?, ?, ?, ?)`,
			sess.ID, o.Ref, o.Type, string(o.Payload),
		); err != nil {
			return fmt.Errorf("insert object %s: %w", o.Ref, err)
		}
	}
	for _, a := range sess.Activities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activities (session_id, position, id, config_id, description) VALUES (?, ?, ?, ?, ?)`,
			sess.ID, a.Position, a.ID, a.ConfigID, nullStr(a.Description),
		); err != nil {
			return fmt.Errorf("insert activity %d: %w", a.Position, err)
		}
		for i, d := range a.Data {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO activity_data (session_id, position, ordinal, name, object_ref) VALUES (?, ?, ?, ?, ?)`,
				sess.ID, a.Position, i, d.Name, d.Ref,
			); err != nil {
				return fmt.Errorf("insert activity %d data %s: %w", a.Position, d.Name, err)
			}
		}
	}
	for name, ref := range sess.Bindings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bindings (session_id, name, object_ref) VALUES (?, ?, ?)`,
			sess.ID, name, ref,
		); err != nil {
			return fmt.Errorf("insert binding %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	sess.CreatedAt = timeOrNow(sess.CreatedAt)
	sess.UpdatedAt = now
	return nil
}

func (s *LibSQLStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, activity_ids, status, current_index, counter, created_at, updated_at FROM sessions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}

	if sess.Objects, err = s.loadObjects(ctx, id); err != nil {
		return nil, err
	}
	if sess.Activities, err = s.loadActivities(ctx, id); err != nil {
		return nil, err
	}
	if sess.Bindings, err = s.loadBindings(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *LibSQLStore) loadObjects(ctx context.Context, id string) ([]*ObjectRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ref, type, payload FROM objects WHERE session_id = ? ORDER BY rowid ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []*ObjectRecord
	for rows.Next() {
		o := &ObjectRecord{}
		var payload string
		if err := rows.Scan(&o.Ref, &o.Type, &payload); err != nil {
			return nil, err
		}
		o.Payload = json.RawMessage(payload)
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func (s *LibSQLStore) loadActivities(ctx context.Context, id string) ([]*ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, config_id, description FROM activities WHERE session_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	var (
		activities []*ActivityRecord
		byPosition = make(map[int]*ActivityRecord)
	)
	for rows.Next() {
		a := &ActivityRecord{}
		var desc sql.NullString
		if err := rows.Scan(&a.Position, &a.ID, &a.ConfigID, &desc); err != nil {
			rows.Close()
			return nil, err
		}
		a.Description = desc.String
		activities = append(activities, a)
		byPosition[a.Position] = a
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	data, err := s.db.QueryContext(ctx,
		`SELECT position, name, object_ref FROM activity_data WHERE session_id = ? ORDER BY position ASC, ordinal ASC`, id)
	if err != nil {
		return nil, err
	}
	defer data.Close()
	for data.Next() {
		var (
			pos int
			d   DataBinding
		)
		if err := data.Scan(&pos, &d.Name, &d.Ref); err != nil {
			return nil, err
		}
		if a, ok := byPosition[pos]; ok {
			a.Data = append(a.Data, d)
		}
	}
	return activities, data.Err()
}

func (s *LibSQLStore) loadBindings(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, object_ref FROM bindings WHERE session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bindings := make(map[string]string)
	for rows.Next() {
		var name, ref string
		if err := rows.Scan(&name, &ref); err != nil {
			return nil, err
		}
		bindings[name] = ref
	}
	return bindings, rows.Err()
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, activity_ids, status, current_index, counter, created_at, updated_at FROM sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *LibSQLStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSessionState(ctx, tx, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "session", id); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteSessionState removes everything a session owns except its row and
// its events, children first.
func deleteSessionState(ctx context.Context, tx *sql.Tx, id string) error {
	for _, table := range []string{"activity_data", "bindings", "activities", "objects"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var (
		ids     string
		status  string
		counter int64
	)
	if err := row.Scan(&sess.ID, &ids, &status, &sess.Current, &counter, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &sess.ActivityIDs); err != nil {
		return nil, fmt.Errorf("unmarshal activity ids: %w", err)
	}
	sess.Status = schema.SessionStatus(status)
	sess.Counter = uint64(counter)
	return sess, nil
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Next sequence number for this session.
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (session_id, activity_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, nullStr(event.ActivityID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, activity_id, event_type, payload, timestamp, sequence
		 FROM events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.ActivityID != "" {
		where = append(where, "activity_id = ?")
		args = append(args, filter.ActivityID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, session_id, activity_id, event_type, payload, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var activityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &activityID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.ActivityID = activityID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.SequencerError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
