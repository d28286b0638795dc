package engine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// optimizationShare is the portion of energy cost and carbon the dashboard
// assumes is recoverable.
const optimizationShare = 0.15

// PropertyMetrics is one row of the portfolio dashboard.
type PropertyMetrics struct {
	PropertyID  string      `json:"property_id"`
	Name        string      `json:"name"`
	Occupancy   float64     `json:"occupancy"`
	Profit      float64     `json:"profit"`
	EnergyCost  float64     `json:"energy_cost"`
	Utilization Utilization `json:"utilization"`
}

// KPIs are portfolio totals.
type KPIs struct {
	TotalRevenue         float64 `json:"total_revenue"`
	TotalEnergyCost      float64 `json:"total_energy_cost"`
	TotalMaintenanceCost float64 `json:"total_maintenance_cost"`
	TotalProfit          float64 `json:"total_profit"`
	OverallOccupancy     float64 `json:"overall_occupancy"`
	TotalCapacity        int     `json:"total_capacity"`
	TotalOccupied        int     `json:"total_occupied"`
	PropertyCount        int     `json:"property_count"`
	TotalCarbonKg        float64 `json:"total_carbon_kg"`
}

// OptimizationPotential estimates what optimization could recover.
type OptimizationPotential struct {
	PotentialMonthlySavings    float64 `json:"potential_monthly_savings"`
	PotentialCarbonReductionKg float64 `json:"potential_carbon_reduction_kg"`
	OptimizationConfidence     float64 `json:"optimization_confidence"`
}

// Dashboard summarizes a portfolio.
type Dashboard struct {
	KPIs                  KPIs                  `json:"kpis"`
	OptimizationPotential OptimizationPotential `json:"optimization_potential"`
	PropertyMetrics       []PropertyMetrics     `json:"property_metrics"`
}

// BuildDashboard totals financials and carbon across props.
func BuildDashboard(props []baseline.Property, params Params) Dashboard {
	var k KPIs
	metrics := make([]PropertyMetrics, 0, len(props))

	for _, p := range props {
		occ := RecentOccupancy(p.DigitalTwin.DailyHistory)
		f := CalculateFinancials(p, occ)

		k.TotalRevenue += f.Revenue
		k.TotalEnergyCost += f.EnergyCost
		k.TotalMaintenanceCost += f.MaintenanceCost
		k.TotalProfit += f.Profit
		k.TotalCapacity += f.TotalCapacity
		k.TotalOccupied += f.OccupiedSeats
		k.TotalCarbonKg += p.BaselineEnergyIntensity * occ * float64(p.Floors) * GridFactor(p, params.GridFactor) * 30

		metrics = append(metrics, PropertyMetrics{
			PropertyID:  p.ID,
			Name:        p.Name,
			Occupancy:   round(occ, 3),
			Profit:      round(f.Profit, 2),
			EnergyCost:  round(f.EnergyCost, 2),
			Utilization: ClassifyUtilization(occ),
		})
	}
	k.PropertyCount = len(props)
	if k.TotalCapacity > 0 {
		k.OverallOccupancy = float64(k.TotalOccupied) / float64(k.TotalCapacity)
	}

	potential := OptimizationPotential{
		PotentialMonthlySavings:    round(k.TotalEnergyCost*optimizationShare, 2),
		PotentialCarbonReductionKg: round(k.TotalCarbonKg*optimizationShare, 2),
		OptimizationConfidence:     0.85,
	}

	k.TotalRevenue = round(k.TotalRevenue, 2)
	k.TotalEnergyCost = round(k.TotalEnergyCost, 2)
	k.TotalMaintenanceCost = round(k.TotalMaintenanceCost, 2)
	k.TotalProfit = round(k.TotalProfit, 2)
	k.OverallOccupancy = round(k.OverallOccupancy, 3)
	k.TotalCarbonKg = round(k.TotalCarbonKg, 2)

	return Dashboard{KPIs: k, OptimizationPotential: potential, PropertyMetrics: metrics}
}

// BenchmarkEntry scores and ranks one property against the portfolio.
type BenchmarkEntry struct {
	PropertyID           string  `json:"property_id"`
	Name                 string  `json:"name"`
	Location             string  `json:"location"`
	Profit               float64 `json:"profit"`
	ProfitMargin         float64 `json:"profit_margin"`
	EnergyEfficiency     float64 `json:"energy_efficiency"`
	SustainabilityScore  float64 `json:"sustainability_score"`
	CarbonIntensity      float64 `json:"carbon_intensity"`
	OccupancyRate        float64 `json:"occupancy_rate"`
	ProfitRank           int     `json:"profit_rank"`
	EnergyEfficiencyRank int     `json:"energy_efficiency_rank"`
	SustainabilityRank   int     `json:"sustainability_score_rank"`
	CarbonRank           int     `json:"carbon_rank"`
}

// Benchmark scores every property and ranks it on profit, energy efficiency
// and sustainability (higher is better) and carbon intensity (lower is
// better). Ties keep input order. Entries are returned in input order.
func Benchmark(props []baseline.Property, params Params) []BenchmarkEntry {
	entries := make([]BenchmarkEntry, 0, len(props))
	for _, p := range props {
		occ := RecentOccupancy(p.DigitalTwin.DailyHistory)
		f := CalculateFinancials(p, occ)

		energyEff := 100 - p.BaselineEnergyIntensity/2
		sustainability := energyEff*0.4 + (1-occ*0.3)*100*0.3 + 50*0.3
		var margin float64
		if f.Revenue > 0 {
			margin = f.Profit / f.Revenue * 100
		}

		entries = append(entries, BenchmarkEntry{
			PropertyID:          p.ID,
			Name:                p.Name,
			Location:            p.Location,
			Profit:              round(f.Profit, 2),
			ProfitMargin:        round(margin, 1),
			EnergyEfficiency:    round(energyEff, 1),
			SustainabilityScore: round(sustainability, 1),
			CarbonIntensity:     round(p.BaselineEnergyIntensity*occ*GridFactor(p, params.GridFactor), 2),
			OccupancyRate:       round(occ, 3),
		})
	}

	rank(entries, func(a, b BenchmarkEntry) int { return cmp.Compare(b.Profit, a.Profit) },
		func(e *BenchmarkEntry, r int) { e.ProfitRank = r })
	rank(entries, func(a, b BenchmarkEntry) int { return cmp.Compare(b.EnergyEfficiency, a.EnergyEfficiency) },
		func(e *BenchmarkEntry, r int) { e.EnergyEfficiencyRank = r })
	rank(entries, func(a, b BenchmarkEntry) int { return cmp.Compare(b.SustainabilityScore, a.SustainabilityScore) },
		func(e *BenchmarkEntry, r int) { e.SustainabilityRank = r })
	rank(entries, func(a, b BenchmarkEntry) int { return cmp.Compare(a.CarbonIntensity, b.CarbonIntensity) },
		func(e *BenchmarkEntry, r int) { e.CarbonRank = r })

	return entries
}

// rank assigns 1-based ranks by a stable sort without reordering entries.
func rank(entries []BenchmarkEntry, compare func(a, b BenchmarkEntry) int, set func(e *BenchmarkEntry, r int)) {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return compare(entries[a], entries[b]) })
	for r, i := range idx {
		set(&entries[i], r+1)
	}
}

// EnergyScenario is one rung of the closure ladder.
type EnergyScenario struct {
	Label        string `json:"scenario"`
	FloorsClosed int    `json:"floors_closed"`
	EnergySavings
}

// EnergyScenarios compares closing none and then one, two and three of the
// top floors at recent occupancy. Rungs that would close every floor are
// omitted.
func EnergyScenarios(p baseline.Property) []EnergyScenario {
	occ := RecentOccupancy(p.DigitalTwin.DailyHistory)
	out := make([]EnergyScenario, 0, 4)
	for n := 0; n <= 3 && n < p.Floors; n++ {
		label := "Current State"
		switch {
		case n == 1:
			label = "Close 1 Floor"
		case n > 1:
			label = fmt.Sprintf("Close %d Floors", n)
		}
		out = append(out, EnergyScenario{
			Label:         label,
			FloorsClosed:  n,
			EnergySavings: CalculateEnergySavings(p, occ, topFloors(p, n), nil).Rounded(),
		})
	}
	return out
}

// StrategicAction is a property's highest-impact recommendation.
type StrategicAction struct {
	PropertyName string  `json:"property_name"`
	Action       string  `json:"action"`
	Impact       float64 `json:"impact"`
	Type         string  `json:"type"`
}

// ExecutiveSummary rolls insights and recommendations up across a portfolio.
type ExecutiveSummary struct {
	TotalProjectedMonthlySavings float64           `json:"total_projected_monthly_savings"`
	TotalProjectedAnnualSavings  float64           `json:"total_projected_annual_savings"`
	TotalCarbonReductionKg       float64           `json:"total_carbon_reduction_kg"`
	AvgEfficiencyImprovement     float64           `json:"avg_efficiency_improvement"`
	PropertiesAnalyzed           int               `json:"properties_analyzed"`
	TopStrategicActions          []StrategicAction `json:"top_strategic_actions"`
	ExecutiveInsight             string            `json:"executive_insight"`
}

const maxStrategicActions = 5

// BuildExecutiveSummary totals projected savings, carbon and efficiency
// across props and lists the five highest-impact actions.
func BuildExecutiveSummary(props []baseline.Property, params Params) ExecutiveSummary {
	var savings, carbon, improvement float64
	actions := make([]StrategicAction, 0, len(props))

	for _, p := range props {
		in := GenerateCopilotInsight(p, params)
		savings += in.MonthlySavings
		carbon += in.CarbonImpactKg
		improvement += in.EfficiencyScoreChange.Improvement

		recs := GenerateRecommendations(p, params)
		if len(recs) == 0 {
			continue
		}
		top := slices.MaxFunc(recs, func(a, b Recommendation) int {
			return cmp.Compare(a.FinancialImpact, b.FinancialImpact)
		})
		actions = append(actions, StrategicAction{
			PropertyName: p.Name,
			Action:       top.Title,
			Impact:       top.FinancialImpact,
			Type:         top.Type,
		})
	}

	slices.SortStableFunc(actions, func(a, b StrategicAction) int { return cmp.Compare(b.Impact, a.Impact) })
	if len(actions) > maxStrategicActions {
		actions = actions[:maxStrategicActions]
	}

	var avg float64
	if len(props) > 0 {
		avg = improvement / float64(len(props))
	}

	return ExecutiveSummary{
		TotalProjectedMonthlySavings: round(savings, 2),
		TotalProjectedAnnualSavings:  round(savings*12, 2),
		TotalCarbonReductionKg:       round(carbon, 2),
		AvgEfficiencyImprovement:     round(avg, 1),
		PropertiesAnalyzed:           len(props),
		TopStrategicActions:          actions,
		ExecutiveInsight: fmt.Sprintf(
			"Across %d properties, implementing recommended optimizations could save ₹%.2f Lakhs monthly and reduce carbon emissions by %.2f tons.",
			len(props), savings/100000, carbon/1000),
	}
}
