package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/engine"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

// PropertyInput names one property.
type PropertyInput struct {
	PropertyID string `json:"property_id" jsonschema:"baseline property id, e.g. prop_001"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"optional editing session to attribute changes to"`
}

// FloorsInput names floors of one property.
type FloorsInput struct {
	PropertyID string `json:"property_id" jsonschema:"baseline property id"`
	Floors     []int  `json:"floors" jsonschema:"1-based floor numbers"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"optional editing session to attribute changes to"`
}

// SessionInput optionally attributes a bulk change to a session.
type SessionInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"optional editing session to attribute changes to"`
}

// ChangeLogInput filters the change log.
type ChangeLogInput struct {
	EntityType string `json:"entity_type,omitempty" jsonschema:"only changes to this entity type"`
	EntityID   string `json:"entity_id,omitempty" jsonschema:"only changes to this entity id"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"only changes made in this session"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum entries, default 50"`
}

// ScenarioResult is the part of a scenario report an assistant needs.
type ScenarioResult struct {
	ActiveFloors              int     `json:"active_floors"`
	RedistributedOccupancy    float64 `json:"redistributed_occupancy"`
	OverloadRisk              string  `json:"overload_risk"`
	MonthlySavings            float64 `json:"monthly_savings"`
	EnergyReductionPercent    float64 `json:"energy_reduction_percent"`
	AnnualCarbonReductionTons float64 `json:"annual_carbon_reduction_tons"`
	EfficiencyImprovement     float64 `json:"efficiency_improvement"`
	Infeasible                bool    `json:"infeasible,omitempty"`
	Reason                    string  `json:"reason,omitempty"`
}

// ViewResult is a flattened effective view.
type ViewResult struct {
	PropertyID        string          `json:"property_id"`
	Name              string          `json:"name"`
	Location          string          `json:"location"`
	Floors            int             `json:"floors"`
	ActiveFloors      int             `json:"active_floors"`
	ClosedFloors      []int           `json:"closed_floors"`
	HybridIntensity   float64         `json:"hybrid_intensity"`
	OccupancyRate     float64         `json:"occupancy_rate"`
	UtilizationStatus string          `json:"utilization_status"`
	EfficiencyScore   float64         `json:"efficiency_score"`
	DailyProfit       float64         `json:"daily_profit"`
	HasOverride       bool            `json:"has_override"`
	Scenario          *ScenarioResult `json:"scenario,omitempty"`
}

// MutationResult reports a floor mutation and the view after it.
type MutationResult struct {
	Changed  bool       `json:"changed"`
	ChangeID string     `json:"change_id,omitempty"`
	View     ViewResult `json:"view"`
}

// ResetResult reports a reset.
type ResetResult struct {
	PropertyID string `json:"property_id,omitempty"`
	Reset      bool   `json:"reset"`
	ResetCount int    `json:"reset_count"`
}

// ChangeEntry is one audit entry with values as JSON text.
type ChangeEntry struct {
	ChangeID   string `json:"change_id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Field      string `json:"field"`
	OldValue   string `json:"old_value"`
	NewValue   string `json:"new_value"`
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"session_id,omitempty"`
}

// ChangeLogResult lists changes newest first.
type ChangeLogResult struct {
	Changes []ChangeEntry `json:"changes"`
}

// RecommendationsResult lists recommendations for one property.
type RecommendationsResult struct {
	PropertyID      string                  `json:"property_id"`
	Recommendations []engine.Recommendation `json:"recommendations"`
}

func EffectiveViewTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "effective_view",
		Description: "Shows a property as the current user sees it, including any closed floors and the resulting scenario",
	}
}

func CloseFloorsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "close_floors",
		Description: "Closes floors of a property in the user's scenario. Closing a closed floor is a no-op",
	}
}

func OpenFloorsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "open_floors",
		Description: "Reopens floors of a property in the user's scenario",
	}
}

func ResetPropertyTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "reset_property",
		Description: "Discards the user's overrides for one property",
	}
}

func ResetAllTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "reset_all",
		Description: "Discards all of the user's overrides",
	}
}

func ChangeLogTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "change_log",
		Description: "Lists the user's recorded changes, newest first",
	}
}

func RecommendationsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "recommendations",
		Description: "Suggests consolidation, capacity, energy and hybrid actions for a property",
	}
}

// EffectiveViewHandler returns the user's view of a property.
func EffectiveViewHandler(svc *scenario.Service, userID string) mcp.ToolHandlerFor[PropertyInput, ViewResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PropertyInput) (*mcp.CallToolResult, ViewResult, error) {
		v, err := svc.EffectiveView(ctx, userID, in.PropertyID)
		if err != nil {
			return nil, ViewResult{}, fmt.Errorf("effective view: %w", err)
		}
		return nil, viewResult(v), nil
	}
}

// CloseFloorsHandler closes floors.
func CloseFloorsHandler(svc *scenario.Service, userID string) mcp.ToolHandlerFor[FloorsInput, MutationResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in FloorsInput) (*mcp.CallToolResult, MutationResult, error) {
		res, err := svc.CloseFloors(ctx, userID, in.PropertyID, in.Floors, in.SessionID)
		if err != nil {
			return nil, MutationResult{}, fmt.Errorf("close floors: %w", err)
		}
		return nil, mutationResult(res), nil
	}
}

// OpenFloorsHandler reopens floors.
func OpenFloorsHandler(svc *scenario.Service, userID string) mcp.ToolHandlerFor[FloorsInput, MutationResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in FloorsInput) (*mcp.CallToolResult, MutationResult, error) {
		res, err := svc.OpenFloors(ctx, userID, in.PropertyID, in.Floors, in.SessionID)
		if err != nil {
			return nil, MutationResult{}, fmt.Errorf("open floors: %w", err)
		}
		return nil, mutationResult(res), nil
	}
}

func ResetPropertyHandler(svc *scenario.Service, userID string) mcp.ToolHandlerFor[PropertyInput, ResetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PropertyInput) (*mcp.CallToolResult, ResetResult, error) {
		deleted, err := svc.Reset(ctx, userID, in.PropertyID, in.SessionID)
		if err != nil {
			return nil, ResetResult{}, fmt.Errorf("reset property: %w", err)
		}
		out := ResetResult{PropertyID: in.PropertyID, Reset: deleted}
		if deleted {
			out.ResetCount = 1
		}
		return nil, out, nil
	}
}

func ResetAllHandler(svc *scenario.Service, userID string) mcp.ToolHandlerFor[SessionInput, ResetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, ResetResult, error) {
		n, err := svc.ResetAll(ctx, userID, in.SessionID)
		if err != nil {
			return nil, ResetResult{}, fmt.Errorf("reset all: %w", err)
		}
		return nil, ResetResult{Reset: n > 0, ResetCount: n}, nil
	}
}

func ChangeLogHandler(svc *scenario.Service, userID string) mcp.ToolHandlerFor[ChangeLogInput, ChangeLogResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ChangeLogInput) (*mcp.CallToolResult, ChangeLogResult, error) {
		changes, err := svc.ChangeLog(ctx, userID, audit.Filter{
			EntityType: in.EntityType,
			EntityID:   in.EntityID,
			SessionID:  in.SessionID,
			Limit:      in.Limit,
		})
		if err != nil {
			return nil, ChangeLogResult{}, fmt.Errorf("change log: %w", err)
		}
		out := ChangeLogResult{Changes: make([]ChangeEntry, len(changes))}
		for i, c := range changes {
			out.Changes[i] = ChangeEntry{
				ChangeID:   c.ChangeID,
				EntityType: c.EntityType,
				EntityID:   c.EntityID,
				Field:      c.Field,
				OldValue:   string(c.OldValue),
				NewValue:   string(c.NewValue),
				Timestamp:  c.Timestamp.Format(time.RFC3339),
				SessionID:  c.SessionID,
			}
		}
		return nil, out, nil
	}
}

func RecommendationsHandler(svc *scenario.Service, userID string) mcp.ToolHandlerFor[PropertyInput, RecommendationsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PropertyInput) (*mcp.CallToolResult, RecommendationsResult, error) {
		recs, err := svc.Recommendations(ctx, userID, in.PropertyID)
		if err != nil {
			return nil, RecommendationsResult{}, fmt.Errorf("recommendations: %w", err)
		}
		return nil, RecommendationsResult{PropertyID: in.PropertyID, Recommendations: recs}, nil
	}
}

func viewResult(v *scenario.EffectiveView) ViewResult {
	out := ViewResult{
		PropertyID:        v.PropertyID,
		Name:              v.Name,
		Location:          v.Location,
		Floors:            v.Floors,
		ActiveFloors:      v.ActiveFloors,
		ClosedFloors:      v.ClosedFloors,
		HybridIntensity:   v.HybridIntensity,
		OccupancyRate:     v.OccupancyRate,
		UtilizationStatus: string(v.Utilization),
		EfficiencyScore:   v.EfficiencyScore,
		DailyProfit:       v.Financials.Profit,
		HasOverride:       v.HasOverride,
	}
	if out.ClosedFloors == nil {
		out.ClosedFloors = []int{}
	}
	if r := v.Scenario; r != nil {
		out.Scenario = &ScenarioResult{
			ActiveFloors:              r.ScenarioSummary.ActiveFloors,
			RedistributedOccupancy:    r.EnergyImpact.RedistributedOccupancy,
			OverloadRisk:              string(r.RiskAssessment.OverloadRisk),
			MonthlySavings:            r.Savings.TotalMonthlySavings,
			EnergyReductionPercent:    r.EnergyImpact.EnergyReductionPercent,
			AnnualCarbonReductionTons: r.CarbonImpact.AnnualCarbonReductionTons,
			EfficiencyImprovement:     r.EfficiencyChange.Improvement,
			Infeasible:                r.Infeasible,
			Reason:                    r.Reason,
		}
	}
	return out
}

func mutationResult(res *scenario.MutationResult) MutationResult {
	return MutationResult{
		Changed:  res.Changed,
		ChangeID: res.ChangeID,
		View:     viewResult(res.View),
	}
}
