package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
	"github.com/evcraddock/proptech-copilot/internal/engine"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
)

// portfolioWorkers bounds concurrent view computations.
const portfolioWorkers = 8

// EffectiveView is a property as one user sees it: baseline metrics plus,
// when the user has closed floors, the full scenario report.
type EffectiveView struct {
	PropertyID      string             `json:"property_id"`
	Name            string             `json:"name"`
	Type            string             `json:"type"`
	Location        string             `json:"location"`
	Floors          int                `json:"floors"`
	ActiveFloors    int                `json:"active_floors"`
	ClosedFloors    []int              `json:"closed_floors"`
	HybridIntensity float64            `json:"hybrid_intensity"`
	TargetOccupancy *float64           `json:"target_occupancy,omitempty"`
	OccupancyRate   float64            `json:"occupancy_rate"`
	Utilization     engine.Utilization `json:"utilization_status"`
	EfficiencyScore float64            `json:"efficiency_score"`
	Financials      engine.Financials  `json:"financials"`
	Scenario        *engine.Report     `json:"scenario,omitempty"`
	HasOverride     bool               `json:"has_override"`
	Version         int64              `json:"version,omitempty"`
}

// MutationResult is returned by floor mutations.
type MutationResult struct {
	overlay.Result
	View *EffectiveView `json:"view"`
}

// EffectiveView merges the baseline property with the user's overlay.
func (s *Service) EffectiveView(ctx context.Context, userID, propertyID string) (*EffectiveView, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return nil, err
	}
	st, err := s.overlays.Get(ctx, userID, propertyID)
	if err != nil && !errors.Is(err, overlay.ErrNotFound) {
		return nil, err
	}
	return s.view(p, st), nil
}

// Portfolio returns the user's effective view of every baseline property,
// ordered by property id.
func (s *Service) Portfolio(ctx context.Context, userID string) ([]*EffectiveView, error) {
	props := s.baseline.List()
	views := make([]*EffectiveView, len(props))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(portfolioWorkers)
	for i, p := range props {
		g.Go(func() error {
			v, err := s.EffectiveView(ctx, userID, p.ID)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// view computes the effective view. A nil state means no override.
func (s *Service) view(p baseline.Property, st *overlay.State) *EffectiveView {
	params := overlay.Params{HybridIntensity: overlay.DefaultHybridIntensity}
	closed := []int{}
	if st != nil {
		params = st.Params()
		closed = st.ClosedFloors
	}

	occ := engine.RecentOccupancy(p.DigitalTwin.DailyHistory)
	v := &EffectiveView{
		PropertyID:      p.ID,
		Name:            p.Name,
		Type:            p.Type,
		Location:        p.Location,
		Floors:          p.Floors,
		ActiveFloors:    p.Floors - len(closed),
		ClosedFloors:    closed,
		HybridIntensity: params.HybridIntensity,
		TargetOccupancy: params.TargetOccupancy,
		OccupancyRate:   engine.Round(occ, 3),
		Utilization:     engine.ClassifyUtilization(occ),
		EfficiencyScore: engine.Round(engine.EfficiencyScore(p), 1),
		Financials:      engine.CalculateFinancials(p, occ).Rounded(),
		HasOverride:     st != nil,
	}
	if st != nil {
		v.Version = st.Version
	}
	if len(closed) > 0 {
		start := time.Now()
		report := engine.SimulateFloorClosure(p, closed, s.engineParams(params)).Rounded()
		s.metrics.ObserveSimulation(time.Since(start))
		v.Scenario = &report
	}
	return v
}

// CloseFloors closes floors for the user and returns the new effective view.
func (s *Service) CloseFloors(ctx context.Context, userID, propertyID string, floors []int, sessionID string) (*MutationResult, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return nil, err
	}
	if err := validateFloors(p, floors); err != nil {
		return nil, err
	}

	res, err := s.overlays.CloseFloors(ctx, userID, propertyID, floors, sessionID)
	s.observe("close_floors", res != nil && res.Changed, err)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, userID, p, res)
}

// OpenFloors reopens floors for the user and returns the new effective view.
func (s *Service) OpenFloors(ctx context.Context, userID, propertyID string, floors []int, sessionID string) (*MutationResult, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return nil, err
	}
	if err := validateFloors(p, floors); err != nil {
		return nil, err
	}

	res, err := s.overlays.OpenFloors(ctx, userID, propertyID, floors, sessionID)
	s.observe("open_floors", res != nil && res.Changed, err)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, userID, p, res)
}

// Overlays returns the user's stored overrides, each with the scenario report
// cached by its last mutation.
func (s *Service) Overlays(ctx context.Context, userID string) ([]*overlay.State, error) {
	return s.overlays.List(ctx, userID)
}

// Reset drops the user's override of one property.
func (s *Service) Reset(ctx context.Context, userID, propertyID, sessionID string) (bool, error) {
	if _, err := s.property(propertyID); err != nil {
		return false, err
	}
	deleted, err := s.overlays.Reset(ctx, userID, propertyID, sessionID)
	s.observe("reset", deleted, err)
	return deleted, err
}

// ResetAll drops every override the user has and returns how many there were.
func (s *Service) ResetAll(ctx context.Context, userID, sessionID string) (int, error) {
	n, err := s.overlays.ResetAll(ctx, userID, sessionID)
	s.observe("reset_all", n > 0, err)
	return n, err
}

// ParamsRequest changes simulation parameters. Nil fields are left alone.
type ParamsRequest struct {
	HybridIntensity *float64 `json:"hybrid_intensity"`
	TargetOccupancy *float64 `json:"target_occupancy"`
	ClearTarget     bool     `json:"clear_target"`
}

// UpdateParams stores the user's simulation parameters for a property.
func (s *Service) UpdateParams(ctx context.Context, userID, propertyID string, req ParamsRequest, sessionID string) (*EffectiveView, error) {
	p, err := s.property(propertyID)
	if err != nil {
		return nil, err
	}
	if err := validateParams(req.HybridIntensity, req.TargetOccupancy); err != nil {
		return nil, err
	}

	st, err := s.overlays.UpdateParams(ctx, userID, propertyID, overlay.ParamsUpdate{
		HybridIntensity: req.HybridIntensity,
		TargetOccupancy: req.TargetOccupancy,
		ClearTarget:     req.ClearTarget,
	}, sessionID)
	s.observe("update_params", true, err)
	if err != nil {
		return nil, err
	}

	v := s.view(p, st)
	s.cache(ctx, userID, v)
	return v, nil
}

func (s *Service) afterMutation(ctx context.Context, userID string, p baseline.Property, res *overlay.Result) (*MutationResult, error) {
	st, err := s.overlays.Get(ctx, userID, p.ID)
	if err != nil && !errors.Is(err, overlay.ErrNotFound) {
		return nil, err
	}
	v := s.view(p, st)
	if res.Changed {
		s.cache(ctx, userID, v)
	}
	return &MutationResult{Result: *res, View: v}, nil
}

// cache stores the view's scenario report on the overlay record, or clears
// it when no floors are closed. Failures are logged, not returned.
func (s *Service) cache(ctx context.Context, userID string, v *EffectiveView) {
	if v == nil || !v.HasOverride {
		return
	}
	var data []byte
	if v.Scenario != nil {
		var err error
		data, err = json.Marshal(v.Scenario)
		if err != nil {
			slog.Warn("encoding scenario report", "property_id", v.PropertyID, "error", err)
			return
		}
	}
	if err := s.overlays.SaveSimulation(ctx, userID, v.PropertyID, data); err != nil {
		slog.Warn("caching scenario report", "user_id", userID, "property_id", v.PropertyID, "error", err)
	}
}
