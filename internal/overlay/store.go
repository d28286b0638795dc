package overlay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/db"
)

// DefaultTimeout bounds every storage call.
const DefaultTimeout = 5 * time.Second

// Store persists overlay records. Every mutation runs in one immediate
// transaction together with the audit entries it produces, and floor sets are
// changed with per-row inserts and deletes rather than by rewriting the set.
type Store struct {
	db      *sql.DB
	ledger  *audit.Ledger
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout sets the per-call storage timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an overlay store writing its audit trail to ledger.
func NewStore(d *sql.DB, ledger *audit.Ledger, opts ...Option) *Store {
	s := &Store{db: d, ledger: ledger, timeout: DefaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the user's record for a property, or ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, propertyID string) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	st, err := getState(ctx, s.db, userID, propertyID)
	if err != nil {
		return nil, db.Classify(ctx, err)
	}
	return st, nil
}

// List returns all of the user's records ordered by property id.
func (s *Store) List(ctx context.Context, userID string) ([]*State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	states, err := listStates(ctx, s.db, userID)
	if err != nil {
		return nil, db.Classify(ctx, err)
	}
	return states, nil
}

// CloseFloors adds floors to the user's closed set and returns the new set.
// Closing an already closed floor is a no-op.
func (s *Store) CloseFloors(ctx context.Context, userID, propertyID string, floors []int, sessionID string) (*Result, error) {
	if err := checkFloors(floors); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res *Result
	var changes []audit.Change
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, changes = nil, nil
		before, err := closedFloors(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		if len(floors) == 0 {
			res = &Result{ClosedFloors: before}
			return nil
		}

		now := db.FormatTime(s.now())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_property_states (user_id, property_id, created_at, updated_at)
			VALUES (?, ?, ?, ?) ON CONFLICT (user_id, property_id) DO NOTHING`,
			userID, propertyID, now, now,
		); err != nil {
			return fmt.Errorf("creating overlay: %w", err)
		}

		added := 0
		for _, f := range floors {
			r, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_closed_floors (user_id, property_id, floor) VALUES (?, ?, ?)`,
				userID, propertyID, f,
			)
			if err != nil {
				return fmt.Errorf("closing floor %d: %w", f, err)
			}
			n, err := r.RowsAffected()
			if err != nil {
				return fmt.Errorf("checking rows affected: %w", err)
			}
			added += int(n)
		}
		if added == 0 {
			res = &Result{ClosedFloors: before}
			return nil
		}

		if err := bumpVersion(ctx, tx, userID, propertyID, now); err != nil {
			return err
		}
		after, err := closedFloors(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}

		changes, err = s.ledger.RecordTx(ctx, tx, userID, "", []audit.Entry{
			floorsEntry(propertyID, before, after, sessionID, "close_floors", floors),
		})
		if err != nil {
			return err
		}
		res = &Result{ClosedFloors: after, Changed: true, ChangeID: changes[0].ChangeID}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("closing floors: %w", err)
	}

	s.ledger.Publish(ctx, changes)
	if res.Changed {
		slog.Info("floors closed", "user_id", userID, "property_id", propertyID, "closed_floors", res.ClosedFloors)
	}
	return res, nil
}

// OpenFloors removes floors from the user's closed set and returns the new
// set. Opening a floor that is not closed is a no-op. A record left with no
// closed floors and default parameters is deleted.
func (s *Store) OpenFloors(ctx context.Context, userID, propertyID string, floors []int, sessionID string) (*Result, error) {
	if err := checkFloors(floors); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res *Result
	var changes []audit.Change
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, changes = nil, nil
		before, err := closedFloors(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		if len(floors) == 0 {
			res = &Result{ClosedFloors: before}
			return nil
		}

		r, err := tx.ExecContext(ctx,
			`DELETE FROM user_closed_floors WHERE user_id = ? AND property_id = ? AND floor IN (`+placeholders(len(floors))+`)`,
			append([]any{userID, propertyID}, intArgs(floors)...)...,
		)
		if err != nil {
			return fmt.Errorf("opening floors: %w", err)
		}
		removed, err := r.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if removed == 0 {
			res = &Result{ClosedFloors: before}
			return nil
		}

		after, err := closedFloors(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, tx, userID, propertyID, len(after)); err != nil {
			return err
		}

		changes, err = s.ledger.RecordTx(ctx, tx, userID, "", []audit.Entry{
			floorsEntry(propertyID, before, after, sessionID, "open_floors", floors),
		})
		if err != nil {
			return err
		}
		res = &Result{ClosedFloors: after, Changed: true, ChangeID: changes[0].ChangeID}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening floors: %w", err)
	}

	s.ledger.Publish(ctx, changes)
	if res.Changed {
		slog.Info("floors opened", "user_id", userID, "property_id", propertyID, "closed_floors", res.ClosedFloors)
	}
	return res, nil
}

// Reset deletes the user's record for a property. It reports whether a record
// existed; resetting an absent record is a no-op.
func (s *Store) Reset(ctx context.Context, userID, propertyID, sessionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var deleted bool
	var changes []audit.Change
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		deleted, changes = false, nil
		st, err := getState(ctx, tx, userID, propertyID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_property_states WHERE user_id = ? AND property_id = ?`,
			userID, propertyID,
		); err != nil {
			return fmt.Errorf("deleting overlay: %w", err)
		}

		changes, err = s.ledger.RecordTx(ctx, tx, userID, "", []audit.Entry{
			resetEntry(st, sessionID, "reset"),
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("resetting overlay: %w", err)
	}

	s.ledger.Publish(ctx, changes)
	if deleted {
		slog.Info("overlay reset", "user_id", userID, "property_id", propertyID)
	}
	return deleted, nil
}

// ResetAll deletes every record the user has and returns how many there were.
func (s *Store) ResetAll(ctx context.Context, userID, sessionID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int
	var changes []audit.Change
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		count, changes = 0, nil
		states, err := listStates(ctx, tx, userID)
		if err != nil {
			return err
		}
		if len(states) == 0 {
			return nil
		}

		r, err := tx.ExecContext(ctx, `DELETE FROM user_property_states WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("deleting overlays: %w", err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}

		entries := make([]audit.Entry, 0, len(states))
		for _, st := range states {
			entries = append(entries, resetEntry(st, sessionID, "reset_all"))
		}
		batchID := newBatchID()
		changes, err = s.ledger.RecordTx(ctx, tx, userID, batchID, entries)
		if err != nil {
			return err
		}
		count = int(n)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("resetting all overlays: %w", err)
	}

	s.ledger.Publish(ctx, changes)
	if count > 0 {
		slog.Info("all overlays reset", "user_id", userID, "count", count)
	}
	return count, nil
}

// UpdateParams changes simulation parameters with a single multi-field
// update. Each changed field gets an audit entry sharing one batch id. A
// record left with no closed floors and default parameters is deleted, in
// which case the returned state is nil.
func (s *Store) UpdateParams(ctx context.Context, userID, propertyID string, u ParamsUpdate, sessionID string) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var changes []audit.Change
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		changes = nil
		current := Params{HybridIntensity: DefaultHybridIntensity}
		st, err := getState(ctx, tx, userID, propertyID)
		switch {
		case err == nil:
			current = st.Params()
		case !errors.Is(err, ErrNotFound):
			return err
		}

		next := current
		if u.HybridIntensity != nil {
			next.HybridIntensity = *u.HybridIntensity
		}
		if u.ClearTarget {
			next.TargetOccupancy = nil
		} else if u.TargetOccupancy != nil {
			next.TargetOccupancy = u.TargetOccupancy
		}

		fields := map[string]audit.FieldChange{}
		if next.HybridIntensity != current.HybridIntensity {
			fields[audit.FieldHybridIntensity] = audit.FieldChange{Old: current.HybridIntensity, New: next.HybridIntensity}
		}
		if !equalTarget(next.TargetOccupancy, current.TargetOccupancy) {
			fields[audit.FieldTargetOccupancy] = audit.FieldChange{Old: current.TargetOccupancy, New: next.TargetOccupancy}
		}
		if len(fields) == 0 {
			return nil
		}

		now := db.FormatTime(s.now())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_property_states (user_id, property_id, hybrid_intensity, target_occupancy, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, property_id) DO UPDATE SET
				hybrid_intensity = excluded.hybrid_intensity,
				target_occupancy = excluded.target_occupancy,
				version = version + 1,
				updated_at = excluded.updated_at`,
			userID, propertyID, next.HybridIntensity, nullFloat(next.TargetOccupancy), now, now,
		); err != nil {
			return fmt.Errorf("updating params: %w", err)
		}

		floors, err := closedFloors(ctx, tx, userID, propertyID)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, tx, userID, propertyID, len(floors)); err != nil {
			return err
		}

		entries := audit.BatchEntries(audit.EntityPropertyState, propertyID, fields, sessionID,
			map[string]string{"action": "update_params"})
		changes, err = s.ledger.RecordTx(ctx, tx, userID, newBatchID(), entries)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("updating params: %w", err)
	}
	s.ledger.Publish(ctx, changes)

	st, err := s.Get(ctx, userID, propertyID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return st, err
}

// SaveSimulation caches the latest scenario report on an existing record. A
// nil report clears the cache. It is derived data, so it is not audited and
// does not create records.
func (s *Store) SaveSimulation(ctx context.Context, userID, propertyID string, report []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE user_property_states SET last_simulation = ? WHERE user_id = ? AND property_id = ?`,
			nullBytes(report), userID, propertyID,
		)
		if err != nil {
			return fmt.Errorf("saving simulation: %w", err)
		}
		return nil
	})
}

// settle deletes the record when it no longer overrides anything, and bumps
// its version otherwise.
func (s *Store) settle(ctx context.Context, tx *sql.Tx, userID, propertyID string, closed int) error {
	if closed == 0 {
		r, err := tx.ExecContext(ctx,
			`DELETE FROM user_property_states WHERE user_id = ? AND property_id = ?
			AND hybrid_intensity = ? AND target_occupancy IS NULL`,
			userID, propertyID, DefaultHybridIntensity,
		)
		if err != nil {
			return fmt.Errorf("deleting empty overlay: %w", err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
	return bumpVersion(ctx, tx, userID, propertyID, db.FormatTime(s.now()))
}

func bumpVersion(ctx context.Context, tx *sql.Tx, userID, propertyID, now string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE user_property_states SET version = version + 1, updated_at = ?
		WHERE user_id = ? AND property_id = ?`,
		now, userID, propertyID,
	)
	if err != nil {
		return fmt.Errorf("updating overlay version: %w", err)
	}
	return nil
}

func floorsEntry(propertyID string, before, after []int, sessionID, action string, requested []int) audit.Entry {
	return audit.Entry{
		EntityType: audit.EntityPropertyState,
		EntityID:   propertyID,
		Field:      audit.FieldClosedFloors,
		Old:        before,
		New:        after,
		SessionID:  sessionID,
		Metadata:   map[string]string{"action": action, "requested": joinInts(requested)},
	}
}

func resetEntry(st *State, sessionID, action string) audit.Entry {
	return audit.Entry{
		EntityType: audit.EntityPropertyState,
		EntityID:   st.PropertyID,
		Field:      audit.FieldState,
		Old:        st.snapshot(),
		New:        nil,
		SessionID:  sessionID,
		Metadata:   map[string]string{"action": action},
	}
}

func checkFloors(floors []int) error {
	for _, f := range floors {
		if f < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidFloor, f)
		}
	}
	return nil
}

func equalTarget(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func joinInts(xs []int) string {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	parts := make([]string, len(sorted))
	for i, x := range sorted {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func intArgs(xs []int) []any {
	args := make([]any, len(xs))
	for i, x := range xs {
		args[i] = x
	}
	return args
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullBytes(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}
