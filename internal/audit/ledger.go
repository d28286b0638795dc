package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evcraddock/proptech-copilot/internal/db"
)

// Publisher receives committed changes. Delivery is best effort: the ledger
// row is the record of truth.
type Publisher interface {
	Publish(ctx context.Context, changes []Change) error
}

// DefaultTimeout bounds every storage call.
const DefaultTimeout = 5 * time.Second

// DefaultPublishTimeout bounds handing committed changes to the publisher.
const DefaultPublishTimeout = 2 * time.Second

// Ledger is the append-only change log backed by SQLite.
type Ledger struct {
	db             *sql.DB
	now            func() time.Time
	publisher      Publisher
	timeout        time.Duration
	publishTimeout time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher forwards committed changes to p.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithTimeout sets the per-call storage timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithPublishTimeout sets how long Publish waits on the publisher.
func WithPublishTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.publishTimeout = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger over an opened database.
func NewLedger(d *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{db: d, now: time.Now, timeout: DefaultTimeout, publishTimeout: DefaultPublishTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogChange records a single field change and returns its change id.
func (l *Ledger) LogChange(ctx context.Context, userID string, e Entry) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var changes []Change
	err := db.InTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		changes, err = l.RecordTx(ctx, tx, userID, "", []Entry{e})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("logging change: %w", err)
	}
	l.Publish(ctx, changes)
	return changes[0].ChangeID, nil
}

// LogBatch records several field changes of one entity made by a single
// action. Every entry shares the returned batch id.
func (l *Ledger) LogBatch(ctx context.Context, userID, entityType, entityID string, fields map[string]FieldChange, sessionID string, metadata map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("batch for %s/%s has no changes", entityType, entityID)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	batchID := uuid.NewString()
	entries := BatchEntries(entityType, entityID, fields, sessionID, metadata)

	var changes []Change
	err := db.InTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		changes, err = l.RecordTx(ctx, tx, userID, batchID, entries)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("logging batch: %w", err)
	}
	l.Publish(ctx, changes)
	return batchID, nil
}

// BatchEntries turns a field map into entries ordered by field name.
func BatchEntries(entityType, entityID string, fields map[string]FieldChange, sessionID string, metadata map[string]string) []Entry {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		fc := fields[name]
		entries = append(entries, Entry{
			EntityType: entityType,
			EntityID:   entityID,
			Field:      name,
			Old:        fc.Old,
			New:        fc.New,
			SessionID:  sessionID,
			Metadata:   metadata,
		})
	}
	return entries
}

// RecordTx writes entries inside the caller's transaction so that they
// commit or roll back together with the mutation they describe. A non-empty
// batchID is stamped on every entry. Sessions referenced by the entries have
// their activity counters bumped in the same transaction. Call Publish with
// the returned changes once the transaction has committed.
func (l *Ledger) RecordTx(ctx context.Context, tx *sql.Tx, userID, batchID string, entries []Entry) ([]Change, error) {
	now, err := l.stamp(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(entries))
	perSession := map[string]int{}

	for _, e := range entries {
		oldJSON, err := json.Marshal(e.Old)
		if err != nil {
			return nil, fmt.Errorf("encoding old %s: %w", e.Field, err)
		}
		newJSON, err := json.Marshal(e.New)
		if err != nil {
			return nil, fmt.Errorf("encoding new %s: %w", e.Field, err)
		}
		metadata := e.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}

		c := Change{
			ChangeID:   uuid.NewString(),
			BatchID:    batchID,
			UserID:     userID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Field:      e.Field,
			OldValue:   oldJSON,
			NewValue:   newJSON,
			Timestamp:  now,
			SessionID:  e.SessionID,
			Metadata:   e.Metadata,
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO change_log (change_id, batch_id, user_id, entity_type, entity_id, field,
				old_value, new_value, timestamp, session_id, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ChangeID, nullString(batchID), userID, c.EntityType, c.EntityID, c.Field,
			string(oldJSON), string(newJSON), db.FormatTime(now), nullString(c.SessionID), string(metaJSON),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting change: %w", err)
		}
		if c.Seq, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("getting change seq: %w", err)
		}

		if c.SessionID != "" {
			perSession[c.SessionID]++
		}
		changes = append(changes, c)
	}

	for sessionID, n := range perSession {
		if err := touchTx(ctx, tx, userID, sessionID, n, now); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

// stamp returns the time for new entries of userID. It never falls behind
// the user's latest entry, so log order matches insertion order even when
// the wall clock steps back.
func (l *Ledger) stamp(ctx context.Context, tx *sql.Tx, userID string) (time.Time, error) {
	now := l.now().UTC()

	var last sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM change_log WHERE user_id = ?`, userID).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading latest change time: %w", err)
	}
	if !last.Valid {
		return now, nil
	}
	prev, err := db.ParseTime(last.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing latest change time: %w", err)
	}
	if prev.After(now) {
		return prev, nil
	}
	return now, nil
}

// Publish hands committed changes to the configured publisher. Failures are
// logged and otherwise ignored. The changes are already durable, so the
// caller's cancellation does not stop delivery.
func (l *Ledger) Publish(ctx context.Context, changes []Change) {
	if l.publisher == nil || len(changes) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publishTimeout)
	defer cancel()

	if err := l.publisher.Publish(ctx, changes); err != nil {
		slog.Warn("publishing changes", "count", len(changes), "error", err)
	}
}

// Query returns a user's changes, newest first. Entries written in the same
// instant are ordered by insertion, latest first.
func (l *Ledger) Query(ctx context.Context, userID string, f Filter) ([]Change, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	where := []string{"user_id = ?"}
	args := []any{userID}
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	args = append(args, f.limit(), max(f.Offset, 0))

	query := `SELECT seq, change_id, batch_id, user_id, entity_type, entity_id, field,
			old_value, new_value, timestamp, session_id, metadata
		FROM change_log WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp DESC, seq DESC LIMIT ? OFFSET ?`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying changes: %w", db.Classify(ctx, err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("closing rows", "error", closeErr)
		}
	}()

	changes := []Change{}
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating changes: %w", err)
	}
	return changes, nil
}

// EntityHistory returns the changes to one entity, newest first.
func (l *Ledger) EntityHistory(ctx context.Context, userID, entityType, entityID string, limit int) ([]Change, error) {
	return l.Query(ctx, userID, Filter{EntityType: entityType, EntityID: entityID, Limit: limit})
}

// SessionChanges returns every change made in a session, newest first.
func (l *Ledger) SessionChanges(ctx context.Context, userID, sessionID string) ([]Change, error) {
	return l.Query(ctx, userID, Filter{SessionID: sessionID, Limit: MaxLimit})
}

// Stats counts a user's changes per entity type.
func (l *Ledger) Stats(ctx context.Context, userID string) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx,
		`SELECT entity_type, COUNT(*), MAX(timestamp) FROM change_log WHERE user_id = ? GROUP BY entity_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying change stats: %w", db.Classify(ctx, err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("closing rows", "error", closeErr)
		}
	}()

	s := &Stats{UserID: userID, ByEntityType: map[string]int{}}
	var last string
	for rows.Next() {
		var entityType, ts string
		var count int
		if err := rows.Scan(&entityType, &count, &ts); err != nil {
			return nil, fmt.Errorf("scanning change stats: %w", err)
		}
		s.ByEntityType[entityType] = count
		s.TotalChanges += count
		last = max(last, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating change stats: %w", err)
	}

	if last != "" {
		t, err := db.ParseTime(last)
		if err != nil {
			return nil, fmt.Errorf("parsing last activity: %w", err)
		}
		s.LastActivity = &t
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChange(s scanner) (Change, error) {
	var c Change
	var batchID, oldValue, newValue, sessionID sql.NullString
	var ts, metadata string
	if err := s.Scan(&c.Seq, &c.ChangeID, &batchID, &c.UserID, &c.EntityType, &c.EntityID, &c.Field,
		&oldValue, &newValue, &ts, &sessionID, &metadata); err != nil {
		return Change{}, fmt.Errorf("scanning change: %w", err)
	}

	c.BatchID = batchID.String
	c.SessionID = sessionID.String
	c.OldValue = rawJSON(oldValue)
	c.NewValue = rawJSON(newValue)

	t, err := db.ParseTime(ts)
	if err != nil {
		return Change{}, fmt.Errorf("parsing change timestamp: %w", err)
	}
	c.Timestamp = t

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return Change{}, fmt.Errorf("decoding change metadata: %w", err)
		}
	}
	return c, nil
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s.String)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
