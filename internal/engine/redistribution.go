package engine

import (
	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// MaxRedistributedOccupancy is the comfort ceiling for occupancy on the
// floors that stay open.
const MaxRedistributedOccupancy = 0.95

// Redistribution describes moving occupancy from closed floors onto the
// remaining active floors.
type Redistribution struct {
	ActiveFloors int
	// Ratio is occupancy × floors / active floors, uncapped.
	Ratio float64
	// Capped is Ratio limited to MaxRedistributedOccupancy.
	Capped float64
	// Feasible is false when no floors remain open.
	Feasible bool
}

// Redistribute is the single source of truth for redistribution math. Both
// the energy and the efficiency calculations go through it.
func Redistribute(floors, closed int, occupancy float64) Redistribution {
	active := floors - closed
	if active <= 0 {
		return Redistribution{ActiveFloors: active}
	}
	ratio := occupancy * float64(floors) / float64(active)
	return Redistribution{
		ActiveFloors: active,
		Ratio:        ratio,
		Capped:       min(ratio, MaxRedistributedOccupancy),
		Feasible:     true,
	}
}

// EnergySavings is the energy and cost delta of a closure scenario.
type EnergySavings struct {
	BeforeEnergyUsage      float64 `json:"before_energy_usage"`
	AfterEnergyUsage       float64 `json:"after_energy_usage"`
	BeforeCostDaily        float64 `json:"before_cost_daily"`
	AfterCostDaily         float64 `json:"after_cost_daily"`
	DailySavings           float64 `json:"daily_savings"`
	WeeklySavings          float64 `json:"weekly_savings"`
	MonthlySavings         float64 `json:"monthly_savings"`
	EnergyReductionPercent float64 `json:"energy_reduction_percent"`
	RedistributedOccupancy float64 `json:"redistributed_occupancy"`
	ActiveFloors           int     `json:"active_floors"`
	Infeasible             bool    `json:"infeasible,omitempty"`
}

// Rounded returns a copy rounded the way reports present it.
func (e EnergySavings) Rounded() EnergySavings {
	e.BeforeEnergyUsage = round(e.BeforeEnergyUsage, 2)
	e.AfterEnergyUsage = round(e.AfterEnergyUsage, 2)
	e.BeforeCostDaily = round(e.BeforeCostDaily, 2)
	e.AfterCostDaily = round(e.AfterCostDaily, 2)
	e.DailySavings = round(e.DailySavings, 2)
	e.WeeklySavings = round(e.WeeklySavings, 2)
	e.MonthlySavings = round(e.MonthlySavings, 2)
	e.EnergyReductionPercent = round(e.EnergyReductionPercent, 1)
	e.RedistributedOccupancy = round(e.RedistributedOccupancy, 3)
	return e
}

// CalculateEnergySavings computes the energy delta of closing floorsToClose
// while the remaining floors absorb target occupancy (current occupancy when
// target is nil). When no floor stays open the result is zeroed and flagged
// Infeasible instead of dividing by zero.
func CalculateEnergySavings(p baseline.Property, current float64, floorsToClose []int, target *float64) EnergySavings {
	occupancy := current
	if target != nil {
		occupancy = *target
	}

	r := Redistribute(p.Floors, distinctCount(floorsToClose), occupancy)
	if !r.Feasible {
		return EnergySavings{ActiveFloors: r.ActiveFloors, Infeasible: true}
	}

	before := p.BaselineEnergyIntensity * current * float64(p.Floors)
	after := p.BaselineEnergyIntensity * r.Capped * float64(r.ActiveFloors)
	beforeCost := before * p.EnergyCostPerUnit
	afterCost := after * p.EnergyCostPerUnit
	daily := beforeCost - afterCost

	var reduction float64
	if before > 0 {
		reduction = (1 - after/before) * 100
	}

	return EnergySavings{
		BeforeEnergyUsage:      before,
		AfterEnergyUsage:       after,
		BeforeCostDaily:        beforeCost,
		AfterCostDaily:         afterCost,
		DailySavings:           daily,
		WeeklySavings:          daily * 7,
		MonthlySavings:         daily * 30,
		EnergyReductionPercent: reduction,
		RedistributedOccupancy: r.Capped,
		ActiveFloors:           r.ActiveFloors,
	}
}

// Risk is the overload risk after redistribution.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Efficiency is the outcome of redistributing current occupancy.
type Efficiency struct {
	ActiveFloors     int     `json:"active_floors"`
	NewAvgOccupancy  float64 `json:"new_avg_occupancy"`
	Efficiency       float64 `json:"efficiency"`
	RiskLevel        Risk    `json:"risk_level"`
	Infeasible       bool    `json:"infeasible,omitempty"`
	CurrentOccupancy float64 `json:"current_occupancy"`
}

// efficiencyTiers map an upper bound on the new average occupancy to an
// efficiency factor. Anything above the last bound scores FloorEfficiency.
var efficiencyTiers = []struct {
	upTo       float64
	efficiency float64
}{
	{0.85, 0.95},
	{0.92, 0.80},
	{0.98, 0.65},
}

// FloorEfficiency is the efficiency past the last tier.
const FloorEfficiency = 0.40

// TierEfficiency maps a post-redistribution average occupancy to its
// efficiency tier. It is monotone non-increasing in occupancy.
func TierEfficiency(newAvg float64) float64 {
	for _, t := range efficiencyTiers {
		if newAvg <= t.upTo {
			return t.efficiency
		}
	}
	return FloorEfficiency
}

// RiskFor classifies overload risk for a post-redistribution occupancy.
func RiskFor(newAvg float64) Risk {
	switch {
	case newAvg > 0.95:
		return RiskHigh
	case newAvg > 0.85:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RedistributionEfficiency scores how well the property absorbs closing
// floorsToClose at its recent occupancy.
func RedistributionEfficiency(p baseline.Property, floorsToClose []int) Efficiency {
	return redistributionEfficiency(p, RecentOccupancy(p.DigitalTwin.DailyHistory), floorsToClose)
}

func redistributionEfficiency(p baseline.Property, occupancy float64, floorsToClose []int) Efficiency {
	r := Redistribute(p.Floors, distinctCount(floorsToClose), occupancy)
	if !r.Feasible {
		return Efficiency{
			ActiveFloors:     r.ActiveFloors,
			RiskLevel:        RiskHigh,
			Infeasible:       true,
			CurrentOccupancy: occupancy,
		}
	}
	return Efficiency{
		ActiveFloors:     r.ActiveFloors,
		NewAvgOccupancy:  r.Ratio,
		Efficiency:       TierEfficiency(r.Ratio),
		RiskLevel:        RiskFor(r.Ratio),
		CurrentOccupancy: occupancy,
	}
}

// distinctCount counts unique floor numbers.
func distinctCount(floors []int) int {
	seen := make(map[int]struct{}, len(floors))
	for _, f := range floors {
		seen[f] = struct{}{}
	}
	return len(seen)
}
