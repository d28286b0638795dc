// Package audit provides the append-only change ledger and the sessions that
// group its entries.
package audit

import (
	"encoding/json"
	"errors"
	"time"
)

// Entity types written by the core.
const (
	EntityPropertyState = "property_state"
	EntityUserState     = "user_state"
)

// Fields written for property state changes.
const (
	FieldClosedFloors    = "closed_floors"
	FieldHybridIntensity = "hybrid_intensity"
	FieldTargetOccupancy = "target_occupancy"
	FieldState           = "state"
)

// ErrSessionNotFound is returned when a session does not exist for the user.
var ErrSessionNotFound = errors.New("session not found")

// Change is one recorded field-level diff. Old and new values are JSON.
type Change struct {
	ChangeID   string            `json:"change_id"`
	BatchID    string            `json:"batch_id,omitempty"`
	Seq        int64             `json:"seq"`
	UserID     string            `json:"user_id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Field      string            `json:"field"`
	OldValue   json.RawMessage   `json:"old_value"`
	NewValue   json.RawMessage   `json:"new_value"`
	Timestamp  time.Time         `json:"timestamp"`
	SessionID  string            `json:"session_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Entry is a change to record.
type Entry struct {
	EntityType string
	EntityID   string
	Field      string
	Old        any
	New        any
	SessionID  string
	Metadata   map[string]string
}

// FieldChange is the old and new value of one field in a batch.
type FieldChange struct {
	Old any
	New any
}

// Filter narrows a change query. Empty fields match everything.
type Filter struct {
	EntityType string
	EntityID   string
	SessionID  string
	Limit      int
	Offset     int
}

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

// Stats summarizes a user's changes.
type Stats struct {
	UserID       string         `json:"user_id"`
	TotalChanges int            `json:"total_changes"`
	ByEntityType map[string]int `json:"by_entity_type"`
	LastActivity *time.Time     `json:"last_activity,omitempty"`
}

// Session groups changes made during one sitting. It carries no
// authentication meaning.
type Session struct {
	SessionID    string     `json:"session_id"`
	UserID       string     `json:"user_id"`
	StartedAt    time.Time  `json:"started_at"`
	LastActivity time.Time  `json:"last_activity"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ChangesCount int        `json:"changes_count"`
	Active       bool       `json:"active"`
	DeviceInfo   string     `json:"device_info,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
}

// SessionSummary is a session with every change made in it.
type SessionSummary struct {
	Session
	Changes          []Change            `json:"changes"`
	EntitiesModified map[string][]string `json:"entities_modified"`
	TotalChanges     int                 `json:"total_changes"`
}
