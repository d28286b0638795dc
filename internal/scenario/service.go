// Package scenario is the single read and write path over the baseline, the
// per-user overlays and the audit ledger. Every adapter (HTTP, MCP, CLI)
// goes through a Service so the same state always yields the same analytics.
package scenario

import (
	"errors"
	"fmt"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/baseline"
	"github.com/evcraddock/proptech-copilot/internal/engine"
	"github.com/evcraddock/proptech-copilot/internal/metrics"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
)

var (
	// ErrValidation is returned for malformed input, such as a floor
	// outside the property or a parameter out of range.
	ErrValidation = errors.New("validation error")
	// ErrPropertyNotFound is returned for an unknown property id.
	ErrPropertyNotFound = errors.New("property not found")
)

// Parameter bounds accepted from callers.
const (
	MinHybridIntensity = 0.1
	MaxHybridIntensity = 1.5
	MinTargetOccupancy = 0.1
	MaxTargetOccupancy = 1.0
)

// Baseline is the read-only property source.
type Baseline interface {
	Get(id string) (baseline.Property, error)
	List() []baseline.Property
}

// Service composes baseline data with a user's overlay through the engine.
type Service struct {
	baseline   Baseline
	overlays   *overlay.Store
	ledger     *audit.Ledger
	metrics    *metrics.Metrics
	gridFactor float64
	jitter     engine.Jitter
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records mutations and storage errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithGridFactor sets the emission factor for locations without one.
func WithGridFactor(f float64) Option {
	return func(s *Service) {
		if f > 0 {
			s.gridFactor = f
		}
	}
}

// WithJitter sets the forecast noise source.
func WithJitter(j engine.Jitter) Option {
	return func(s *Service) {
		if j != nil {
			s.jitter = j
		}
	}
}

// NewService creates a Service.
func NewService(b Baseline, overlays *overlay.Store, ledger *audit.Ledger, opts ...Option) *Service {
	s := &Service{
		baseline:   b,
		overlays:   overlays,
		ledger:     ledger,
		gridFactor: engine.DefaultGridFactor,
		jitter:     engine.DefaultJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) property(id string) (baseline.Property, error) {
	p, err := s.baseline.Get(id)
	if errors.Is(err, baseline.ErrNotFound) {
		return baseline.Property{}, fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
	}
	return p, err
}

func (s *Service) engineParams(p overlay.Params) engine.Params {
	return engine.Params{
		HybridIntensity: p.HybridIntensity,
		TargetOccupancy: p.TargetOccupancy,
		GridFactor:      s.gridFactor,
	}
}

func validateFloors(p baseline.Property, floors []int) error {
	if len(floors) == 0 {
		return fmt.Errorf("%w: at least one floor is required", ErrValidation)
	}
	for _, f := range floors {
		if !p.HasFloor(f) {
			return fmt.Errorf("%w: floor %d is outside 1..%d for %s", ErrValidation, f, p.Floors, p.ID)
		}
	}
	return nil
}

func validateParams(hybrid, target *float64) error {
	if hybrid != nil && (*hybrid < MinHybridIntensity || *hybrid > MaxHybridIntensity) {
		return fmt.Errorf("%w: hybrid_intensity must be between %.1f and %.1f", ErrValidation, MinHybridIntensity, MaxHybridIntensity)
	}
	if target != nil && (*target < MinTargetOccupancy || *target > MaxTargetOccupancy) {
		return fmt.Errorf("%w: target_occupancy must be between %.1f and %.1f", ErrValidation, MinTargetOccupancy, MaxTargetOccupancy)
	}
	return nil
}

// observe records a mutation outcome.
func (s *Service) observe(op string, changed bool, err error) {
	switch {
	case err == nil:
		s.metrics.Mutation(op, changed)
	case errors.Is(err, overlay.ErrStorageTimeout):
		s.metrics.StorageError("timeout")
	case errors.Is(err, overlay.ErrStorageConflict):
		s.metrics.StorageError("conflict")
	}
}
