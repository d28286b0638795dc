package engine

import (
	"fmt"
	"strings"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// Recommendation is a rule-based suggestion with its computed impact.
type Recommendation struct {
	ID                     string  `json:"id"`
	Type                   string  `json:"type"`
	Priority               string  `json:"priority"`
	Title                  string  `json:"title"`
	Description            string  `json:"description"`
	FloorsToClose          []int   `json:"floors_to_close,omitempty"`
	FinancialImpact        float64 `json:"financial_impact"`
	WeeklyEnergySavings    float64 `json:"weekly_energy_savings"`
	MonthlyEnergySavings   float64 `json:"monthly_energy_savings"`
	EnergyReductionPercent float64 `json:"energy_reduction_percent"`
	CarbonReductionKg      float64 `json:"carbon_reduction_kg"`
	EfficiencyImprovement  float64 `json:"efficiency_improvement"`
	ConfidenceScore        float64 `json:"confidence_score"`
}

func (r Recommendation) rounded() Recommendation {
	r.FinancialImpact = round(r.FinancialImpact, 2)
	r.WeeklyEnergySavings = round(r.WeeklyEnergySavings, 2)
	r.MonthlyEnergySavings = round(r.MonthlyEnergySavings, 2)
	r.EnergyReductionPercent = round(r.EnergyReductionPercent, 1)
	r.CarbonReductionKg = round(r.CarbonReductionKg, 2)
	r.EfficiencyImprovement = round(r.EfficiencyImprovement, 1)
	return r
}

// analysis is the shared input every recommendation builder sees.
type analysis struct {
	p          baseline.Property
	params     Params
	occupancy  float64
	class      Utilization
	gridFactor float64
}

func analyze(p baseline.Property, params Params) analysis {
	occ := RecentOccupancy(p.DigitalTwin.DailyHistory)
	return analysis{
		p:          p,
		params:     params,
		occupancy:  occ,
		class:      ClassifyUtilization(occ),
		gridFactor: GridFactor(p, params.GridFactor),
	}
}

func (a analysis) recID(kind string) string {
	return fmt.Sprintf("rec_%s_%s", a.p.ID, kind)
}

// recommendationBuilder produces the recommendations specific to one
// utilization class.
type recommendationBuilder func(a analysis) []Recommendation

var classRecommendations = map[Utilization]recommendationBuilder{
	Underutilized: consolidationRecommendation,
	Optimal:       func(analysis) []Recommendation { return nil },
	Overloaded:    capacityRecommendation,
}

// commonRecommendations apply regardless of utilization.
var commonRecommendations = []recommendationBuilder{
	energyRecommendation,
	hybridRecommendation,
}

// GenerateRecommendations returns the rule-based recommendations for p. The
// result is deterministic for a given property and params.
func GenerateRecommendations(p baseline.Property, params Params) []Recommendation {
	a := analyze(p, params)

	var recs []Recommendation
	recs = append(recs, classRecommendations[a.class](a)...)
	for _, build := range commonRecommendations {
		recs = append(recs, build(a)...)
	}
	for i := range recs {
		recs[i] = recs[i].rounded()
	}
	return recs
}

// topFloors returns up to n of the highest floors of p, never all of them.
func topFloors(p baseline.Property, n int) []int {
	n = min(n, p.Floors-1)
	floors := make([]int, 0, max(n, 0))
	for i := range max(n, 0) {
		floors = append(floors, p.Floors-i)
	}
	return floors
}

func joinFloors(floors []int) string {
	parts := make([]string, len(floors))
	for i, f := range floors {
		parts[i] = fmt.Sprint(f)
	}
	return strings.Join(parts, " and ")
}

func consolidationRecommendation(a analysis) []Recommendation {
	floors := topFloors(a.p, 2)
	if len(floors) == 0 {
		return nil
	}
	sim := SimulateFloorClosure(a.p, floors, Params{GridFactor: a.params.GridFactor})

	noun := "floor"
	if len(floors) > 1 {
		noun = "floors"
	}
	return []Recommendation{{
		ID:                     a.recID("consolidation"),
		Type:                   "Floor Consolidation",
		Priority:               "High",
		Title:                  fmt.Sprintf("Consolidate operations by closing %s %s", noun, joinFloors(floors)),
		Description:            "Low utilization detected. Consolidating to fewer floors will reduce energy and maintenance costs significantly.",
		FloorsToClose:          floors,
		FinancialImpact:        sim.Savings.TotalMonthlySavings,
		WeeklyEnergySavings:    sim.Savings.WeeklyEnergySavings,
		MonthlyEnergySavings:   sim.Savings.MonthlyEnergySavings,
		EnergyReductionPercent: sim.EnergyImpact.EnergyReductionPercent,
		CarbonReductionKg:      sim.CarbonImpact.MonthlyCarbonReductionKg,
		EfficiencyImprovement:  sim.EfficiencyChange.Improvement,
		ConfidenceScore:        0.87,
	}}
}

func capacityRecommendation(a analysis) []Recommendation {
	return []Recommendation{{
		ID:                    a.recID("capacity"),
		Type:                  "Capacity Expansion",
		Priority:              "High",
		Title:                 "Consider expanding capacity or redistributing load",
		Description:           "High utilization may impact employee comfort and productivity. Consider flexible scheduling or space expansion.",
		FinancialImpact:       a.p.RevenuePerSeat * 50,
		EfficiencyImprovement: 8.5,
		ConfidenceScore:       0.82,
	}}
}

// smartHVACShare is the fraction of a 10% occupancy-driven energy cut that
// scheduling is expected to capture.
const smartHVACShare = 0.3

func energyRecommendation(a analysis) []Recommendation {
	target := a.occupancy * 0.9
	s := CalculateEnergySavings(a.p, a.occupancy, nil, &target)
	delta := (s.BeforeEnergyUsage - s.AfterEnergyUsage) * smartHVACShare

	return []Recommendation{{
		ID:                     a.recID("energy"),
		Type:                   "Energy Optimization",
		Priority:               "Medium",
		Title:                  "Implement smart HVAC scheduling",
		Description:            "Optimize HVAC systems based on occupancy patterns to reduce energy consumption during low-traffic periods.",
		FinancialImpact:        s.MonthlySavings * smartHVACShare,
		WeeklyEnergySavings:    s.WeeklySavings * smartHVACShare,
		MonthlyEnergySavings:   s.MonthlySavings * smartHVACShare,
		EnergyReductionPercent: s.EnergyReductionPercent * smartHVACShare,
		CarbonReductionKg:      carbonImpact(delta, a.gridFactor).MonthlyCarbonReductionKg,
		EfficiencyImprovement:  3.2,
		ConfidenceScore:        0.91,
	}}
}

func hybridRecommendation(a analysis) []Recommendation {
	dailyEnergy := a.p.BaselineEnergyIntensity * 0.1
	dailyCost := dailyEnergy * a.p.EnergyCostPerUnit

	return []Recommendation{{
		ID:                     a.recID("hybrid"),
		Type:                   "Hybrid Optimization",
		Priority:               "Medium",
		Title:                  "Implement desk hoteling for hybrid workers",
		Description:            "Reduce fixed desk assignments and implement booking system to improve space utilization efficiency.",
		FinancialImpact:        a.p.MaintenancePerFloor * 0.15 * float64(a.p.Floors),
		WeeklyEnergySavings:    dailyCost * 7,
		MonthlyEnergySavings:   dailyCost * 30,
		EnergyReductionPercent: 10,
		CarbonReductionKg:      carbonImpact(dailyEnergy, a.gridFactor).MonthlyCarbonReductionKg,
		EfficiencyImprovement:  5.5,
		ConfidenceScore:        0.78,
	}}
}

// CurrentMetrics describe a property as it operates today.
type CurrentMetrics struct {
	OccupancyRate     float64     `json:"occupancy_rate"`
	UtilizationStatus Utilization `json:"utilization_status"`
	Financials
}

// Insight is a copilot-style structured summary of one property.
type Insight struct {
	PropertyID             string           `json:"property_id"`
	PropertyName           string           `json:"property_name"`
	InsightSummary         string           `json:"insight_summary"`
	RootCause              string           `json:"root_cause"`
	RecommendedAction      string           `json:"recommended_action"`
	FloorsToClose          []int            `json:"floors_to_close"`
	FinancialImpact        float64          `json:"financial_impact"`
	WeeklySavings          float64          `json:"weekly_savings"`
	MonthlySavings         float64          `json:"monthly_savings"`
	EnergyReductionPercent float64          `json:"energy_reduction_percent"`
	EfficiencyScoreChange  EfficiencyChange `json:"efficiency_score_change"`
	CarbonImpactKg         float64          `json:"carbon_impact_kg"`
	ConfidenceScore        float64          `json:"confidence_score"`
	CurrentMetrics         CurrentMetrics   `json:"current_metrics"`
}

// insightRule is the per-classification variant of an insight.
type insightRule struct {
	rootCause string
	action    func(p baseline.Property) string
	closure   func(p baseline.Property) []int
}

var insightRules = map[Utilization]insightRule{
	Underutilized: {
		rootCause: "Hybrid work patterns and seasonal variations have reduced daily occupancy below optimal levels.",
		action: func(p baseline.Property) string {
			return fmt.Sprintf("Consolidate operations to %d floors during off-peak periods.", max(1, p.Floors-2))
		},
		closure: func(p baseline.Property) []int { return topFloors(p, 2) },
	},
	Optimal: {
		rootCause: "Current utilization is within optimal range with minor optimization opportunities.",
		action: func(baseline.Property) string {
			return "Maintain current operations while monitoring for seasonal variations."
		},
		closure: func(p baseline.Property) []int { return topFloors(p, 1) },
	},
	Overloaded: {
		rootCause: "High demand and limited space are causing capacity constraints during peak hours.",
		action: func(baseline.Property) string {
			return "Implement staggered schedules and expand to adjacent spaces if available."
		},
		closure: func(baseline.Property) []int { return []int{} },
	},
}

// GenerateCopilotInsight explains p's current utilization and the scenario
// that addresses it.
func GenerateCopilotInsight(p baseline.Property, params Params) Insight {
	a := analyze(p, params)
	rule := insightRules[a.class]
	floors := rule.closure(p)
	sim := SimulateFloorClosure(p, floors, Params{GridFactor: params.GridFactor}).Rounded()

	return Insight{
		PropertyID:   p.ID,
		PropertyName: p.Name,
		InsightSummary: fmt.Sprintf("%s is currently %s with %.1f%% average occupancy over the past week.",
			p.Name, strings.ToLower(string(a.class)), round(a.occupancy*100, 1)),
		RootCause:              rule.rootCause,
		RecommendedAction:      rule.action(p),
		FloorsToClose:          floors,
		FinancialImpact:        sim.Savings.TotalMonthlySavings,
		WeeklySavings:          sim.Savings.TotalWeeklySavings,
		MonthlySavings:         sim.Savings.TotalMonthlySavings,
		EnergyReductionPercent: sim.EnergyImpact.EnergyReductionPercent,
		EfficiencyScoreChange:  sim.EfficiencyChange,
		CarbonImpactKg:         sim.CarbonImpact.MonthlyCarbonReductionKg,
		ConfidenceScore:        0.85,
		CurrentMetrics: CurrentMetrics{
			OccupancyRate:     round(a.occupancy, 3),
			UtilizationStatus: a.class,
			Financials:        CalculateFinancials(p, a.occupancy).Rounded(),
		},
	}
}
