package overlay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evcraddock/proptech-copilot/internal/db"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const stateColumns = `user_id, property_id, hybrid_intensity, target_occupancy,
	last_simulation, version, created_at, updated_at`

func getState(ctx context.Context, q queryer, userID, propertyID string) (*State, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM user_property_states WHERE user_id = ? AND property_id = ?`,
		userID, propertyID,
	)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, userID, propertyID)
	}
	if err != nil {
		return nil, err
	}

	if st.ClosedFloors, err = closedFloors(ctx, q, userID, propertyID); err != nil {
		return nil, err
	}
	return st, nil
}

func listStates(ctx context.Context, q queryer, userID string) ([]*State, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM user_property_states WHERE user_id = ? ORDER BY property_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing overlays: %w", err)
	}
	defer closeRows(rows)

	states := []*State{}
	byProperty := map[string]*State{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		st.ClosedFloors = []int{}
		states = append(states, st)
		byProperty[st.PropertyID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overlays: %w", err)
	}
	if len(states) == 0 {
		return states, nil
	}

	floorRows, err := q.QueryContext(ctx,
		`SELECT property_id, floor FROM user_closed_floors WHERE user_id = ? ORDER BY property_id, floor`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing closed floors: %w", err)
	}
	defer closeRows(floorRows)

	for floorRows.Next() {
		var propertyID string
		var floor int
		if err := floorRows.Scan(&propertyID, &floor); err != nil {
			return nil, fmt.Errorf("scanning closed floor: %w", err)
		}
		if st, ok := byProperty[propertyID]; ok {
			st.ClosedFloors = append(st.ClosedFloors, floor)
		}
	}
	if err := floorRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating closed floors: %w", err)
	}
	return states, nil
}

// closedFloors returns the sorted closed floors of a record, empty if none.
func closedFloors(ctx context.Context, q queryer, userID, propertyID string) ([]int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT floor FROM user_closed_floors WHERE user_id = ? AND property_id = ? ORDER BY floor`,
		userID, propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading closed floors: %w", err)
	}
	defer closeRows(rows)

	floors := []int{}
	for rows.Next() {
		var f int
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scanning closed floor: %w", err)
		}
		floors = append(floors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating closed floors: %w", err)
	}
	return floors, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(s scanner) (*State, error) {
	var st State
	var target sql.NullFloat64
	var sim sql.NullString
	var created, updated string
	if err := s.Scan(&st.UserID, &st.PropertyID, &st.HybridIntensity, &target,
		&sim, &st.Version, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning overlay: %w", err)
	}

	if target.Valid {
		v := target.Float64
		st.TargetOccupancy = &v
	}
	if sim.Valid && sim.String != "" {
		st.LastSimulation = []byte(sim.String)
	}

	var err error
	if st.CreatedAt, err = db.ParseTime(created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if st.UpdatedAt, err = db.ParseTime(updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &st, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Warn("closing rows", "error", err)
	}
}

func newBatchID() string {
	return uuid.NewString()
}
