// Package engine implements the scenario analytics for a baseline property:
// financials, redistribution after floor closures, energy and carbon impact,
// forecasting and rule-based recommendations.
//
// Every function here is pure. Nothing reads the clock, touches storage or
// shares mutable state, so callers may fan out across goroutines freely.
package engine

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// Utilization buckets an occupancy rate.
type Utilization string

const (
	Underutilized Utilization = "Underutilized"
	Optimal       Utilization = "Optimal"
	Overloaded    Utilization = "Overloaded"
)

// Utilization band edges. Both edges belong to Optimal.
const (
	UnderutilizedBelow = 0.4
	OverloadedAbove    = 0.85
)

// DefaultRecentOccupancy is used when a property has no history at all.
const DefaultRecentOccupancy = 0.6

// ClassifyUtilization buckets rate into Underutilized, Optimal or Overloaded.
func ClassifyUtilization(rate float64) Utilization {
	switch {
	case rate < UnderutilizedBelow:
		return Underutilized
	case rate <= OverloadedAbove:
		return Optimal
	default:
		return Overloaded
	}
}

// RecentOccupancy is the mean occupancy of the last seven recorded days.
func RecentOccupancy(history []baseline.DailyRecord) float64 {
	if len(history) == 0 {
		return DefaultRecentOccupancy
	}
	start := len(history) - 7
	if start < 0 {
		start = 0
	}
	rates := make([]float64, 0, len(history)-start)
	for _, d := range history[start:] {
		rates = append(rates, d.OccupancyRate)
	}
	return stat.Mean(rates, nil)
}

// EfficiencyScore is the percentage of floors whose current occupancy sits
// in the optimal band. Properties without floor data are assumed to have 60%
// of floors optimal.
func EfficiencyScore(p baseline.Property) float64 {
	if p.Floors <= 0 {
		return 0
	}
	floors := p.DigitalTwin.FloorData
	if len(floors) == 0 {
		return float64(int(float64(p.Floors)*0.6)) / float64(p.Floors) * 100
	}
	optimal := 0
	for _, f := range floors {
		if ClassifyUtilization(f.OccupancyRate()) == Optimal {
			optimal++
		}
	}
	return float64(optimal) / float64(p.Floors) * 100
}

// round rounds v to the given number of decimal places.
func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// Round rounds v to places decimals for presentation.
func Round(v float64, places int) float64 { return round(v, places) }
