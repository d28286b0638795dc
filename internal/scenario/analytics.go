package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
	"github.com/evcraddock/proptech-copilot/internal/engine"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
)

// SimulateRequest is an ad-hoc what-if. Nil parameters fall back to the
// user's stored parameters.
type SimulateRequest struct {
	Floors          []int    `json:"floors_to_close"`
	HybridIntensity *float64 `json:"hybrid_intensity"`
	TargetOccupancy *float64 `json:"target_occupancy"`
}

// userParams returns the user's stored parameters for a property, or the
// defaults when there is no override.
func (s *Service) userParams(ctx context.Context, userID, propertyID string) (overlay.Params, error) {
	st, err := s.overlays.Get(ctx, userID, propertyID)
	if errors.Is(err, overlay.ErrNotFound) {
		return overlay.Params{HybridIntensity: overlay.DefaultHybridIntensity}, nil
	}
	if err != nil {
		return overlay.Params{}, err
	}
	return st.Params(), nil
}

// Simulate runs a what-if without storing anything.
func (s *Service) Simulate(ctx context.Context, userID, propertyID string, req SimulateRequest) (engine.Report, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return engine.Report{}, err
	}
	if err := validateFloors(p, req.Floors); err != nil {
		return engine.Report{}, err
	}
	if err := validateParams(req.HybridIntensity, req.TargetOccupancy); err != nil {
		return engine.Report{}, err
	}

	params, err := s.userParams(ctx, userID, propertyID)
	if err != nil {
		return engine.Report{}, err
	}
	if req.HybridIntensity != nil {
		params.HybridIntensity = *req.HybridIntensity
	}
	if req.TargetOccupancy != nil {
		params.TargetOccupancy = req.TargetOccupancy
	}
	return engine.SimulateFloorClosure(p, req.Floors, s.engineParams(params)).Rounded(), nil
}

// Recommendations returns the rule-based recommendations for a property.
func (s *Service) Recommendations(ctx context.Context, userID, propertyID string) ([]engine.Recommendation, error) {
	p, params, err := s.propertyWithParams(ctx, userID, propertyID)
	if err != nil {
		return nil, err
	}
	recs := engine.GenerateRecommendations(p, params)
	if recs == nil {
		recs = []engine.Recommendation{}
	}
	return recs, nil
}

// Insight returns the copilot insight for a property.
func (s *Service) Insight(ctx context.Context, userID, propertyID string) (engine.Insight, error) {
	p, params, err := s.propertyWithParams(ctx, userID, propertyID)
	if err != nil {
		return engine.Insight{}, err
	}
	return engine.GenerateCopilotInsight(p, params), nil
}

// Forecast returns the seven-day occupancy forecast. It is empty when the
// property has less than two weeks of history.
func (s *Service) Forecast(propertyID string) ([]engine.ForecastPoint, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return nil, err
	}
	points := engine.Forecast7Day(p.DigitalTwin.DailyHistory, s.jitter)
	if points == nil {
		points = []engine.ForecastPoint{}
	}
	return points, nil
}

// EnergyScenarios returns the closure ladder for a property.
func (s *Service) EnergyScenarios(propertyID string) ([]engine.EnergyScenario, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return nil, err
	}
	return engine.EnergyScenarios(p), nil
}

// RiskReport pairs the location risk assessment of a property with its
// emissions under the user's closures.
type RiskReport struct {
	Analysis engine.RiskAnalysis    `json:"risk_analysis"`
	Carbon   engine.CarbonFootprint `json:"carbon_footprint"`
}

// Risk assesses the location risk and carbon footprint of a property. The
// footprint only counts floors the user has left open.
func (s *Service) Risk(ctx context.Context, userID, propertyID string) (*RiskReport, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return nil, err
	}

	var closed []int
	st, err := s.overlays.Get(ctx, userID, propertyID)
	switch {
	case errors.Is(err, overlay.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("reading overlay for %s: %w", propertyID, err)
	default:
		closed = st.ClosedFloors
	}

	daily := p.BaselineEnergyIntensity * engine.RecentOccupancy(p.DigitalTwin.DailyHistory) * float64(p.Floors)
	return &RiskReport{
		Analysis: engine.AnalyzeRisk(p),
		Carbon:   engine.AdjustedCarbon(p, daily, closed, s.gridFactor),
	}, nil
}

// Dashboard summarizes the baseline portfolio.
func (s *Service) Dashboard() engine.Dashboard {
	return engine.BuildDashboard(s.baseline.List(), engine.Params{GridFactor: s.gridFactor})
}

// Benchmark ranks the baseline properties against each other.
func (s *Service) Benchmark() []engine.BenchmarkEntry {
	return engine.Benchmark(s.baseline.List(), engine.Params{GridFactor: s.gridFactor})
}

// ExecutiveSummary rolls insights up across the baseline portfolio.
func (s *Service) ExecutiveSummary() engine.ExecutiveSummary {
	return engine.BuildExecutiveSummary(s.baseline.List(), engine.Params{GridFactor: s.gridFactor})
}

func (s *Service) propertyWithParams(ctx context.Context, userID, propertyID string) (baseline.Property, engine.Params, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return baseline.Property{}, engine.Params{}, err
	}
	params, err := s.userParams(ctx, userID, propertyID)
	if err != nil {
		return baseline.Property{}, engine.Params{}, fmt.Errorf("reading params for %s: %w", propertyID, err)
	}
	return p, s.engineParams(params), nil
}
