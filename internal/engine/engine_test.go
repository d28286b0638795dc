package engine

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// testProperty builds a Bangalore office with days of history at a flat
// occupancy, starting on Monday 2026-01-05.
func testProperty(t *testing.T, floors int, occupancy float64, days int) baseline.Property {
	t.Helper()
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	history := make([]baseline.DailyRecord, days)
	for i := range history {
		history[i] = baseline.DailyRecord{
			Date:          start.AddDate(0, 0, i).Format(time.DateOnly),
			OccupancyRate: occupancy,
			DayOfWeek:     i % 7,
		}
	}
	return baseline.Property{
		ID:                      "prop_test",
		Name:                    "Test Tower",
		Location:                "Bangalore, Karnataka",
		Floors:                  floors,
		RoomsPerFloor:           12,
		RevenuePerSeat:          2500,
		EnergyCostPerUnit:       8.5,
		MaintenancePerFloor:     45000,
		BaselineEnergyIntensity: 150,
		DigitalTwin:             baseline.DigitalTwin{DailyHistory: history},
	}
}

func TestClassifyUtilization(t *testing.T) {
	tests := []struct {
		rate float64
		want Utilization
	}{
		{0, Underutilized},
		{0.3999, Underutilized},
		{0.4, Optimal},
		{0.6, Optimal},
		{0.85, Optimal},
		{0.8501, Overloaded},
		{1, Overloaded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyUtilization(tt.rate), "rate %v", tt.rate)
	}
}

func TestRecentOccupancy(t *testing.T) {
	assert.InDelta(t, DefaultRecentOccupancy, RecentOccupancy(nil), 1e-12)

	history := []baseline.DailyRecord{{OccupancyRate: 0.1}}
	for range 7 {
		history = append(history, baseline.DailyRecord{OccupancyRate: 0.5})
	}
	assert.InDelta(t, 0.5, RecentOccupancy(history), 1e-12, "only the last seven days count")

	assert.InDelta(t, 0.3, RecentOccupancy([]baseline.DailyRecord{{OccupancyRate: 0.2}, {OccupancyRate: 0.4}}), 1e-12)
}

func TestFinancials(t *testing.T) {
	p := testProperty(t, 8, 0.7, 7)

	f := CalculateFinancials(p, 0.7)
	assert.Equal(t, 960, f.TotalCapacity)
	assert.Equal(t, 672, f.OccupiedSeats)
	assert.InDelta(t, 1_680_000, f.Revenue, 1e-6)
	assert.InDelta(t, 7140, f.EnergyCost, 1e-6)
	assert.InDelta(t, 360_000, f.MaintenanceCost, 1e-6)
	assert.InDelta(t, 1_312_860, f.Profit, 1e-6)
}

func TestFinancialsZeroOccupancy(t *testing.T) {
	p := testProperty(t, 5, 0, 7)

	f := CalculateFinancials(p, 0)
	assert.Zero(t, f.Revenue)
	assert.Zero(t, f.EnergyCost)
	assert.Zero(t, f.OccupiedSeats)
	assert.InDelta(t, -f.MaintenanceCost, f.Profit, 1e-9)
	assert.InDelta(t, 5*45000.0, f.MaintenanceCost, 1e-9)
}

func TestEnergySavingsWorkedExample(t *testing.T) {
	p := testProperty(t, 8, 0.7, 7)

	s := CalculateEnergySavings(p, 0.7, []int{7, 8}, nil)
	require.False(t, s.Infeasible)
	assert.Equal(t, 6, s.ActiveFloors)
	assert.InDelta(t, 0.933, s.RedistributedOccupancy, 5e-4)
	assert.InDelta(t, 0.7*8/6.0, s.RedistributedOccupancy, 1e-12)
	assert.InDelta(t, 840, s.BeforeEnergyUsage, 1e-9)
	assert.InDelta(t, 840, s.AfterEnergyUsage, 1e-9)
	assert.InDelta(t, 0, s.DailySavings, 1e-6)
	assert.InDelta(t, 0, s.EnergyReductionPercent, 1e-6)
}

func TestEnergySavingsCap(t *testing.T) {
	p := testProperty(t, 4, 0.8, 7)

	s := CalculateEnergySavings(p, 0.8, []int{4, 3}, nil)
	assert.InDelta(t, MaxRedistributedOccupancy, s.RedistributedOccupancy, 1e-12)
	assert.InDelta(t, 150*0.95*2, s.AfterEnergyUsage, 1e-9)
	assert.InDelta(t, s.DailySavings*7, s.WeeklySavings, 1e-9)
	assert.InDelta(t, s.DailySavings*30, s.MonthlySavings, 1e-9)
}

func TestEnergySavingsTarget(t *testing.T) {
	p := testProperty(t, 4, 0.8, 7)
	target := 0.3

	s := CalculateEnergySavings(p, 0.8, []int{4}, &target)
	assert.InDelta(t, 0.4, s.RedistributedOccupancy, 1e-12)
	assert.InDelta(t, 150*0.8*4, s.BeforeEnergyUsage, 1e-9)
}

func TestEnergySavingsZeroBaseline(t *testing.T) {
	p := testProperty(t, 4, 0, 7)

	s := CalculateEnergySavings(p, 0, []int{4}, nil)
	assert.Zero(t, s.EnergyReductionPercent)
}

func TestEnergySavingsDuplicateFloors(t *testing.T) {
	p := testProperty(t, 4, 0.5, 7)

	s := CalculateEnergySavings(p, 0.5, []int{4, 4, 4}, nil)
	assert.Equal(t, 3, s.ActiveFloors)
}

func TestInfeasibleGuard(t *testing.T) {
	p := testProperty(t, 3, 0.5, 7)
	closeAll := []int{1, 2, 3}

	s := CalculateEnergySavings(p, 0.5, closeAll, nil)
	assert.True(t, s.Infeasible)
	assert.Equal(t, 0, s.ActiveFloors)
	assert.Zero(t, s.DailySavings)

	e := RedistributionEfficiency(p, closeAll)
	assert.True(t, e.Infeasible)
	assert.Equal(t, 0, e.ActiveFloors)

	r := SimulateFloorClosure(p, closeAll, Params{})
	assert.True(t, r.Infeasible)
	assert.NotEmpty(t, r.Reason)
	assert.Equal(t, 0, r.ScenarioSummary.ActiveFloors)
	assert.NotPanics(t, func() { _ = r.Rounded() })
}

func TestTierEfficiencyBoundaries(t *testing.T) {
	tests := []struct {
		avg  float64
		want float64
		risk Risk
	}{
		{0.5, 0.95, RiskLow},
		{0.85, 0.95, RiskLow},
		{0.8501, 0.80, RiskMedium},
		{0.92, 0.80, RiskMedium},
		{0.9201, 0.65, RiskMedium},
		{0.95, 0.65, RiskMedium},
		{0.9501, 0.65, RiskHigh},
		{0.98, 0.65, RiskHigh},
		{0.9801, 0.40, RiskHigh},
		{1.4, 0.40, RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierEfficiency(tt.avg), "efficiency at %v", tt.avg)
		assert.Equal(t, tt.risk, RiskFor(tt.avg), "risk at %v", tt.avg)
	}
}

func TestTierEfficiencyMonotone(t *testing.T) {
	prev := TierEfficiency(0)
	for avg := 0.0; avg <= 1.5; avg += 0.0005 {
		got := TierEfficiency(avg)
		require.LessOrEqual(t, got, prev, "efficiency increased at %v", avg)
		prev = got
	}
}

func TestRedistributionEfficiency(t *testing.T) {
	p := testProperty(t, 8, 0.7, 7)

	e := RedistributionEfficiency(p, []int{7, 8})
	assert.Equal(t, 6, e.ActiveFloors)
	assert.InDelta(t, 0.7*8/6.0, e.NewAvgOccupancy, 1e-12)
	assert.Equal(t, 0.65, e.Efficiency)
	assert.Equal(t, RiskMedium, e.RiskLevel)

	none := RedistributionEfficiency(p, nil)
	assert.Equal(t, 0.95, none.Efficiency)
	assert.Equal(t, RiskLow, none.RiskLevel)
}

func TestSimulateFloorClosure(t *testing.T) {
	p := testProperty(t, 8, 0.5, 14)

	r := SimulateFloorClosure(p, []int{8, 7, 8}, Params{})
	require.False(t, r.Infeasible)

	if diff := cmp.Diff([]int{7, 8}, r.ScenarioSummary.FloorsClosed); diff != "" {
		t.Errorf("floors closed mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 6, r.ScenarioSummary.ActiveFloors)
	assert.Equal(t, 1.0, r.ScenarioSummary.HybridIntensity)
	assert.InDelta(t, 0.5, r.CurrentState.OccupancyRate, 1e-12)

	assert.InDelta(t, 90_000, r.Savings.MonthlyMaintenanceSavings, 1e-9)
	assert.InDelta(t, 21_000, r.Savings.WeeklyMaintenanceSavings, 1e-9)
	assert.InDelta(t, r.EnergyImpact.MonthlySavings+90_000, r.Savings.TotalMonthlySavings, 1e-9)

	delta := r.EnergyImpact.BeforeEnergyUsage - r.EnergyImpact.AfterEnergyUsage
	assert.Equal(t, DefaultGridFactor, r.CarbonImpact.GridFactor)
	assert.InDelta(t, delta*0.82*30, r.CarbonImpact.MonthlyCarbonReductionKg, 1e-9)
	assert.InDelta(t, delta*0.82*30*12/1000, r.CarbonImpact.AnnualCarbonReductionTons, 1e-9)

	assert.Equal(t, RiskLow, r.RiskAssessment.OverloadRisk)
	assert.InDelta(t, 4.0/6*100, r.EfficiencyChange.After, 1e-9)
	assert.Equal(t, 6, r.ProjectedState.TotalCapacity/(p.RoomsPerFloor*baseline.DefaultSeatsPerRoom))
}

func TestSimulateHybridAndTarget(t *testing.T) {
	p := testProperty(t, 8, 0.5, 7)

	hybrid := SimulateFloorClosure(p, []int{8}, Params{HybridIntensity: 0.8})
	assert.InDelta(t, 0.4, hybrid.ScenarioSummary.TargetOccupancy, 1e-12)
	assert.InDelta(t, 0.4*8/7, hybrid.EnergyImpact.RedistributedOccupancy, 1e-12)

	target := 0.9
	overloaded := SimulateFloorClosure(p, []int{8, 7}, Params{TargetOccupancy: &target})
	assert.InDelta(t, 0.9, overloaded.ScenarioSummary.TargetOccupancy, 1e-12)
	assert.Equal(t, MaxRedistributedOccupancy, overloaded.EnergyImpact.RedistributedOccupancy)
	assert.Equal(t, RiskHigh, overloaded.RiskAssessment.OverloadRisk)
	assert.Equal(t, FloorEfficiency, overloaded.RiskAssessment.RedistributionEfficiency)
}

func TestSimulateRounded(t *testing.T) {
	p := testProperty(t, 8, 0.37, 7)

	r := SimulateFloorClosure(p, []int{8}, Params{}).Rounded()
	assert.Equal(t, round(r.Savings.TotalMonthlySavings, 2), r.Savings.TotalMonthlySavings)
	assert.Equal(t, round(r.CurrentState.OccupancyRate, 3), r.CurrentState.OccupancyRate)
}

func TestGridFactor(t *testing.T) {
	override := 0.5
	tests := []struct {
		name     string
		location string
		override *float64
		fallback float64
		want     float64
	}{
		{"mumbai", "Mumbai, Maharashtra", nil, 0, 0.79},
		{"hyderabad", "Hyderabad, Telangana", nil, 0, 0.82},
		{"bengaluru alias", "Whitefield, Bengaluru", nil, 0.5, 0.82},
		{"unknown default", "Pune", nil, 0, DefaultGridFactor},
		{"unknown fallback", "Pune", nil, 0.7, 0.7},
		{"property override", "Mumbai", &override, 0.7, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseline.Property{Location: tt.location, GridFactor: tt.override}
			assert.Equal(t, tt.want, GridFactor(p, tt.fallback))
		})
	}
}

func TestEfficiencyScore(t *testing.T) {
	p := testProperty(t, 5, 0.5, 0)
	assert.InDelta(t, 60, EfficiencyScore(p), 1e-9)

	room := func(occ int) baseline.Room { return baseline.Room{Capacity: 10, CurrentOccupancy: occ} }
	p.DigitalTwin.FloorData = []baseline.Floor{
		{Number: 1, Rooms: []baseline.Room{room(5)}},
		{Number: 2, Rooms: []baseline.Room{room(2)}},
		{Number: 3, Rooms: []baseline.Room{room(9)}},
		{Number: 4, Rooms: []baseline.Room{room(4)}},
		{Number: 5, Rooms: []baseline.Room{room(8)}},
	}
	assert.InDelta(t, 60, EfficiencyScore(p), 1e-9)
}

func TestForecastRequiresHistory(t *testing.T) {
	assert.Empty(t, Forecast7Day(nil, nil))
	assert.Empty(t, Forecast7Day(testProperty(t, 3, 0.5, 13).DigitalTwin.DailyHistory, nil))
}

func TestForecast7Day(t *testing.T) {
	p := testProperty(t, 3, 0, 14)
	for i := range p.DigitalTwin.DailyHistory {
		d := &p.DigitalTwin.DailyHistory[i]
		d.OccupancyRate = 0.3 + 0.05*float64(d.DayOfWeek)
	}

	points := Forecast7Day(p.DigitalTwin.DailyHistory, NoJitter)
	require.Len(t, points, 7)

	assert.Equal(t, "2026-01-19", points[0].Date)
	assert.Equal(t, 0, points[0].DayOfWeek)
	assert.Equal(t, "2026-01-25", points[6].Date)

	for i, pt := range points {
		assert.Equal(t, round(0.85-0.02*float64(i), 2), pt.Confidence)
		assert.Equal(t, i, pt.DayOfWeek)
		assert.InDelta(t, 0.3+0.05*float64(i), pt.ForecastedOccupancy, 1e-9)
		if i > 0 {
			assert.Less(t, pt.Confidence, points[i-1].Confidence)
		}
	}
	assert.Equal(t, 0.73, points[6].Confidence)
}

func TestForecastClamp(t *testing.T) {
	history := testProperty(t, 3, 0.5, 20).DigitalTwin.DailyHistory

	for _, pt := range Forecast7Day(history, func() float64 { return 10 }) {
		assert.Equal(t, 0.95, pt.ForecastedOccupancy)
	}
	for _, pt := range Forecast7Day(history, func() float64 { return 0 }) {
		assert.Equal(t, 0.1, pt.ForecastedOccupancy)
	}
}

func TestForecastRandomJitterBounds(t *testing.T) {
	history := testProperty(t, 3, 0.5, 30).DigitalTwin.DailyHistory
	jitter := RandomJitter(rand.New(rand.NewPCG(1, 2)))

	for _, pt := range Forecast7Day(history, jitter) {
		assert.GreaterOrEqual(t, pt.ForecastedOccupancy, 0.475)
		assert.LessOrEqual(t, pt.ForecastedOccupancy, 0.525)
	}
}

func TestForecastUnparseableDate(t *testing.T) {
	history := testProperty(t, 3, 0.5, 14).DigitalTwin.DailyHistory
	history[len(history)-1].Date = "yesterday"

	points := Forecast7Day(history, NoJitter)
	require.Len(t, points, 7)
	assert.Empty(t, points[0].Date)
	assert.Equal(t, 0, points[0].DayOfWeek)
}

func recTypes(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Type
	}
	return out
}

func TestGenerateRecommendations(t *testing.T) {
	tests := []struct {
		name      string
		floors    int
		occupancy float64
		want      []string
	}{
		{"underutilized", 8, 0.3, []string{"Floor Consolidation", "Energy Optimization", "Hybrid Optimization"}},
		{"underutilized single floor", 1, 0.3, []string{"Energy Optimization", "Hybrid Optimization"}},
		{"optimal", 8, 0.6, []string{"Energy Optimization", "Hybrid Optimization"}},
		{"overloaded", 8, 0.9, []string{"Capacity Expansion", "Energy Optimization", "Hybrid Optimization"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := GenerateRecommendations(testProperty(t, tt.floors, tt.occupancy, 7), Params{})
			if diff := cmp.Diff(tt.want, recTypes(recs)); diff != "" {
				t.Errorf("recommendation types mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConsolidationRecommendation(t *testing.T) {
	p := testProperty(t, 8, 0.3, 7)

	recs := GenerateRecommendations(p, Params{})
	require.NotEmpty(t, recs)
	c := recs[0]
	assert.Equal(t, "rec_prop_test_consolidation", c.ID)
	assert.Equal(t, "Consolidate operations by closing floors 8 and 7", c.Title)
	assert.Equal(t, []int{8, 7}, c.FloorsToClose)

	sim := SimulateFloorClosure(p, []int{8, 7}, Params{}).Rounded()
	assert.Equal(t, sim.Savings.TotalMonthlySavings, c.FinancialImpact)
}

func TestRecommendationsDeterministic(t *testing.T) {
	p := testProperty(t, 6, 0.35, 21)

	first := GenerateRecommendations(p, Params{})
	second := GenerateRecommendations(p, Params{})
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("recommendations differ between calls:\n%s", diff)
	}
}

func TestCapacityRecommendation(t *testing.T) {
	recs := GenerateRecommendations(testProperty(t, 8, 0.9, 7), Params{})
	require.NotEmpty(t, recs)
	assert.InDelta(t, 2500*50, recs[0].FinancialImpact, 1e-9)
}

func TestGenerateCopilotInsight(t *testing.T) {
	under := GenerateCopilotInsight(testProperty(t, 8, 0.3, 7), Params{})
	assert.Equal(t, Underutilized, under.CurrentMetrics.UtilizationStatus)
	assert.Equal(t, "Consolidate operations to 6 floors during off-peak periods.", under.RecommendedAction)
	assert.Equal(t, []int{8, 7}, under.FloorsToClose)
	assert.Contains(t, under.InsightSummary, "underutilized with 30.0% average occupancy")

	optimal := GenerateCopilotInsight(testProperty(t, 8, 0.6, 7), Params{})
	assert.Equal(t, []int{8}, optimal.FloorsToClose)

	over := GenerateCopilotInsight(testProperty(t, 8, 0.9, 7), Params{})
	assert.Empty(t, over.FloorsToClose)
	assert.InDelta(t, 0, over.MonthlySavings, 1e-9)

	single := GenerateCopilotInsight(testProperty(t, 1, 0.6, 7), Params{})
	assert.Empty(t, single.FloorsToClose)
}

func TestBuildDashboard(t *testing.T) {
	a := testProperty(t, 8, 0.75, 7)
	b := testProperty(t, 5, 0.25, 7)
	b.ID = "prop_b"

	d := BuildDashboard([]baseline.Property{a, b}, Params{})
	assert.Equal(t, 2, d.KPIs.PropertyCount)
	assert.Equal(t, 960+600, d.KPIs.TotalCapacity)
	assert.Equal(t, 720+150, d.KPIs.TotalOccupied)
	assert.InDelta(t, round(870.0/1560, 3), d.KPIs.OverallOccupancy, 1e-12)
	require.Len(t, d.PropertyMetrics, 2)
	assert.Equal(t, Underutilized, d.PropertyMetrics[1].Utilization)
	assert.InDelta(t, round(d.KPIs.TotalEnergyCost*0.15, 2), d.OptimizationPotential.PotentialMonthlySavings, 0.011)

	empty := BuildDashboard(nil, Params{})
	assert.Zero(t, empty.KPIs.OverallOccupancy)
}

func TestBenchmarkRanks(t *testing.T) {
	a := testProperty(t, 8, 0.7, 7)
	a.ID = "a"
	b := testProperty(t, 8, 0.3, 7)
	b.ID = "b"
	b.BaselineEnergyIntensity = 100

	entries := Benchmark([]baseline.Property{a, b}, Params{})
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].PropertyID)

	assert.Equal(t, 1, entries[0].ProfitRank)
	assert.Equal(t, 2, entries[1].ProfitRank)
	assert.Equal(t, 1, entries[1].EnergyEfficiencyRank)
	assert.Equal(t, 1, entries[1].SustainabilityRank)
	assert.Equal(t, 1, entries[1].CarbonRank)
	assert.Equal(t, 2, entries[0].CarbonRank)
	assert.InDelta(t, 25, entries[0].EnergyEfficiency, 1e-9)
}

func TestEnergyScenarios(t *testing.T) {
	full := EnergyScenarios(testProperty(t, 8, 0.5, 7))
	require.Len(t, full, 4)
	assert.Equal(t, "Current State", full[0].Label)
	assert.Equal(t, "Close 3 Floors", full[3].Label)
	assert.Equal(t, 5, full[3].ActiveFloors)

	small := EnergyScenarios(testProperty(t, 2, 0.5, 7))
	require.Len(t, small, 2)
	for _, s := range small {
		assert.False(t, s.Infeasible)
	}
}

func TestBuildExecutiveSummary(t *testing.T) {
	props := []baseline.Property{testProperty(t, 8, 0.3, 7), testProperty(t, 6, 0.6, 7)}
	props[1].ID = "prop_two"
	props[1].Name = "Second"

	s := BuildExecutiveSummary(props, Params{})
	assert.Equal(t, 2, s.PropertiesAnalyzed)
	require.Len(t, s.TopStrategicActions, 2)
	assert.GreaterOrEqual(t, s.TopStrategicActions[0].Impact, s.TopStrategicActions[1].Impact)
	assert.InDelta(t, s.TotalProjectedMonthlySavings*12, s.TotalProjectedAnnualSavings, 0.1)
	assert.Contains(t, s.ExecutiveInsight, "Across 2 properties")
}
