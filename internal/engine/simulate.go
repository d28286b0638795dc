package engine

import (
	"fmt"
	"slices"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// DefaultGridFactor is the grid emission factor in kg CO2 per kWh used when
// neither the property nor its location says otherwise.
const DefaultGridFactor = 0.82

// GridFactor returns the emission factor for p. A per-property override wins,
// then the location table, then fallback (or DefaultGridFactor when fallback
// is not positive).
func GridFactor(p baseline.Property, fallback float64) float64 {
	if p.GridFactor != nil && *p.GridFactor > 0 {
		return *p.GridFactor
	}
	if loc, ok := matchLocation(p.Location); ok {
		return loc.GridFactor
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultGridFactor
}

// Params are the user-tunable simulation inputs.
type Params struct {
	// HybridIntensity scales recent occupancy. Zero means 1.0.
	HybridIntensity float64
	// TargetOccupancy replaces the scaled occupancy when set.
	TargetOccupancy *float64
	// GridFactor is the fallback emission factor for unknown locations.
	GridFactor float64
}

func (p Params) hybrid() float64 {
	if p.HybridIntensity <= 0 {
		return 1.0
	}
	return p.HybridIntensity
}

// ScenarioSummary echoes the scenario inputs.
type ScenarioSummary struct {
	FloorsClosed    []int   `json:"floors_closed"`
	ActiveFloors    int     `json:"active_floors"`
	HybridIntensity float64 `json:"hybrid_intensity"`
	TargetOccupancy float64 `json:"target_occupancy"`
}

// State is a property's occupancy, efficiency score and financials at one
// point of a scenario.
type State struct {
	OccupancyRate   float64 `json:"occupancy_rate"`
	EfficiencyScore float64 `json:"efficiency_score"`
	Financials
}

// Savings combines energy and maintenance savings.
type Savings struct {
	WeeklyEnergySavings       float64 `json:"weekly_energy_savings"`
	MonthlyEnergySavings      float64 `json:"monthly_energy_savings"`
	WeeklyMaintenanceSavings  float64 `json:"weekly_maintenance_savings"`
	MonthlyMaintenanceSavings float64 `json:"monthly_maintenance_savings"`
	TotalWeeklySavings        float64 `json:"total_weekly_savings"`
	TotalMonthlySavings       float64 `json:"total_monthly_savings"`
}

// CarbonImpact is the carbon reduction implied by an energy delta.
type CarbonImpact struct {
	GridFactor                float64 `json:"grid_factor"`
	MonthlyCarbonReductionKg  float64 `json:"monthly_carbon_reduction_kg"`
	AnnualCarbonReductionTons float64 `json:"annual_carbon_reduction_tons"`
}

// RiskAssessment reports overload risk on the remaining floors.
type RiskAssessment struct {
	OverloadRisk             Risk    `json:"overload_risk"`
	NewAvgOccupancy          float64 `json:"new_avg_occupancy"`
	RedistributionEfficiency float64 `json:"redistribution_efficiency"`
}

// EfficiencyChange is the efficiency score delta of a scenario.
type EfficiencyChange struct {
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
	Improvement float64 `json:"improvement"`
}

// Report is the full floor-closure scenario.
type Report struct {
	ScenarioSummary  ScenarioSummary  `json:"scenario_summary"`
	CurrentState     State            `json:"current_state"`
	ProjectedState   State            `json:"projected_state"`
	Savings          Savings          `json:"savings"`
	EnergyImpact     EnergySavings    `json:"energy_impact"`
	CarbonImpact     CarbonImpact     `json:"carbon_impact"`
	RiskAssessment   RiskAssessment   `json:"risk_assessment"`
	EfficiencyChange EfficiencyChange `json:"efficiency_score_change"`
	Infeasible       bool             `json:"infeasible,omitempty"`
	Reason           string           `json:"reason,omitempty"`
}

// Rounded returns a copy of the report rounded for presentation.
func (r Report) Rounded() Report {
	r.ScenarioSummary.TargetOccupancy = round(r.ScenarioSummary.TargetOccupancy, 3)
	r.CurrentState = r.CurrentState.rounded()
	r.ProjectedState = r.ProjectedState.rounded()

	s := &r.Savings
	s.WeeklyEnergySavings = round(s.WeeklyEnergySavings, 2)
	s.MonthlyEnergySavings = round(s.MonthlyEnergySavings, 2)
	s.WeeklyMaintenanceSavings = round(s.WeeklyMaintenanceSavings, 2)
	s.MonthlyMaintenanceSavings = round(s.MonthlyMaintenanceSavings, 2)
	s.TotalWeeklySavings = round(s.TotalWeeklySavings, 2)
	s.TotalMonthlySavings = round(s.TotalMonthlySavings, 2)

	r.EnergyImpact = r.EnergyImpact.Rounded()
	r.CarbonImpact.MonthlyCarbonReductionKg = round(r.CarbonImpact.MonthlyCarbonReductionKg, 2)
	r.CarbonImpact.AnnualCarbonReductionTons = round(r.CarbonImpact.AnnualCarbonReductionTons, 2)
	r.RiskAssessment.NewAvgOccupancy = round(r.RiskAssessment.NewAvgOccupancy, 3)
	r.EfficiencyChange.Before = round(r.EfficiencyChange.Before, 1)
	r.EfficiencyChange.After = round(r.EfficiencyChange.After, 1)
	r.EfficiencyChange.Improvement = round(r.EfficiencyChange.Improvement, 1)
	return r
}

func (s State) rounded() State {
	s.OccupancyRate = round(s.OccupancyRate, 3)
	s.EfficiencyScore = round(s.EfficiencyScore, 1)
	s.Financials = s.Financials.Rounded()
	return s
}

// SimulateFloorClosure projects the effect of closing floorsToClose on p.
// Occupancy comes from the last week of history, scaled by the hybrid
// intensity unless a target occupancy is given. Closing every floor yields a
// report flagged Infeasible.
func SimulateFloorClosure(p baseline.Property, floorsToClose []int, params Params) Report {
	closed := sortedDistinct(floorsToClose)
	recent := RecentOccupancy(p.DigitalTwin.DailyHistory)

	effective := recent * params.hybrid()
	if params.TargetOccupancy != nil {
		effective = *params.TargetOccupancy
	}

	before := EfficiencyScore(p)
	report := Report{
		ScenarioSummary: ScenarioSummary{
			FloorsClosed:    closed,
			ActiveFloors:    p.Floors - len(closed),
			HybridIntensity: params.hybrid(),
			TargetOccupancy: effective,
		},
		CurrentState: State{
			OccupancyRate:   recent,
			EfficiencyScore: before,
			Financials:      CalculateFinancials(p, recent),
		},
	}

	energy := CalculateEnergySavings(p, recent, closed, &effective)
	if energy.Infeasible {
		report.Infeasible = true
		report.Reason = fmt.Sprintf("closing %d of %d floors leaves no active floor", len(closed), p.Floors)
		report.EnergyImpact = energy
		report.RiskAssessment = RiskAssessment{OverloadRisk: RiskHigh}
		report.EfficiencyChange = EfficiencyChange{Before: before, Improvement: -before}
		return report
	}

	active := energy.ActiveFloors
	capacity := p.TotalCapacity() * active / p.Floors
	after := float64(int(float64(active)*0.8)) / float64(active) * 100

	report.ProjectedState = State{
		OccupancyRate:   energy.RedistributedOccupancy,
		EfficiencyScore: after,
		Financials:      financialsFor(p, active, capacity, energy.RedistributedOccupancy),
	}

	maintenance := float64(len(closed)) * p.MaintenancePerFloor
	weeklyMaintenance := maintenance * 7 / 30
	report.Savings = Savings{
		WeeklyEnergySavings:       energy.WeeklySavings,
		MonthlyEnergySavings:      energy.MonthlySavings,
		WeeklyMaintenanceSavings:  weeklyMaintenance,
		MonthlyMaintenanceSavings: maintenance,
		TotalWeeklySavings:        energy.WeeklySavings + weeklyMaintenance,
		TotalMonthlySavings:       energy.MonthlySavings + maintenance,
	}
	report.EnergyImpact = energy
	report.CarbonImpact = carbonImpact(energy.BeforeEnergyUsage-energy.AfterEnergyUsage, GridFactor(p, params.GridFactor))

	eff := redistributionEfficiency(p, effective, closed)
	report.RiskAssessment = RiskAssessment{
		OverloadRisk:             eff.RiskLevel,
		NewAvgOccupancy:          eff.NewAvgOccupancy,
		RedistributionEfficiency: eff.Efficiency,
	}
	report.EfficiencyChange = EfficiencyChange{
		Before:      before,
		After:       after,
		Improvement: round(after, 1) - round(before, 1),
	}
	return report
}

// carbonImpact converts a daily energy delta into monthly and annual carbon.
func carbonImpact(dailyEnergyDelta, gridFactor float64) CarbonImpact {
	monthly := dailyEnergyDelta * gridFactor * 30
	return CarbonImpact{
		GridFactor:                gridFactor,
		MonthlyCarbonReductionKg:  monthly,
		AnnualCarbonReductionTons: monthly * 12 / 1000,
	}
}

// sortedDistinct returns a sorted copy of floors without duplicates.
func sortedDistinct(floors []int) []int {
	out := slices.Clone(floors)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []int{}
	}
	return out
}
