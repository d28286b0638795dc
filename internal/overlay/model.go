// Package overlay stores each user's what-if state per property: the floors
// they have closed and their simulation parameters. Baseline data is never
// touched; an absent record means "no override".
package overlay

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/evcraddock/proptech-copilot/internal/db"
)

// DefaultHybridIntensity leaves recent occupancy unscaled.
const DefaultHybridIntensity = 1.0

var (
	// ErrNotFound is returned by operations that need an existing record.
	ErrNotFound = errors.New("overlay not found")
	// ErrInvalidFloor is returned for floor numbers below 1.
	ErrInvalidFloor = errors.New("invalid floor")

	ErrStorageTimeout  = db.ErrStorageTimeout
	ErrStorageConflict = db.ErrStorageConflict
)

// State is one user's override of one property.
type State struct {
	UserID          string          `json:"user_id"`
	PropertyID      string          `json:"property_id"`
	ClosedFloors    []int           `json:"closed_floors"`
	HybridIntensity float64         `json:"hybrid_intensity"`
	TargetOccupancy *float64        `json:"target_occupancy,omitempty"`
	LastSimulation  json.RawMessage `json:"last_simulation_result,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Params are the tunable simulation parameters of a record.
type Params struct {
	HybridIntensity float64  `json:"hybrid_intensity"`
	TargetOccupancy *float64 `json:"target_occupancy"`
}

// IsDefault reports whether p leaves the baseline scenario untouched.
func (p Params) IsDefault() bool {
	return p.HybridIntensity == DefaultHybridIntensity && p.TargetOccupancy == nil
}

// Params returns the record's simulation parameters.
func (s *State) Params() Params {
	return Params{HybridIntensity: s.HybridIntensity, TargetOccupancy: s.TargetOccupancy}
}

// ParamsUpdate changes some parameters. Nil fields are left alone.
type ParamsUpdate struct {
	HybridIntensity *float64
	TargetOccupancy *float64
	// ClearTarget removes the target occupancy.
	ClearTarget bool
}

// Result is the outcome of a floor mutation.
type Result struct {
	ClosedFloors []int `json:"closed_floors"`
	// Changed is false when the call was a no-op, such as re-closing a
	// closed floor. No-ops write no audit entry.
	Changed  bool   `json:"changed"`
	ChangeID string `json:"change_id,omitempty"`
}

// snapshot is how a deleted record is written to the audit ledger.
type snapshot struct {
	ClosedFloors    []int    `json:"closed_floors"`
	HybridIntensity float64  `json:"hybrid_intensity"`
	TargetOccupancy *float64 `json:"target_occupancy"`
}

func (s *State) snapshot() snapshot {
	return snapshot{
		ClosedFloors:    s.ClosedFloors,
		HybridIntensity: s.HybridIntensity,
		TargetOccupancy: s.TargetOccupancy,
	}
}
