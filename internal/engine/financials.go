package engine

import (
	"math"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// Financials are the daily money figures for a property at an occupancy rate.
// Values are unrounded; call Rounded at the presentation boundary.
type Financials struct {
	Revenue         float64 `json:"revenue"`
	EnergyCost      float64 `json:"energy_cost"`
	MaintenanceCost float64 `json:"maintenance_cost"`
	Profit          float64 `json:"profit"`
	OccupiedSeats   int     `json:"occupied_seats"`
	TotalCapacity   int     `json:"total_capacity"`
}

// Rounded returns a copy with monetary fields rounded to cents.
func (f Financials) Rounded() Financials {
	f.Revenue = round(f.Revenue, 2)
	f.EnergyCost = round(f.EnergyCost, 2)
	f.MaintenanceCost = round(f.MaintenanceCost, 2)
	f.Profit = round(f.Profit, 2)
	return f
}

// CalculateFinancials computes revenue, energy cost, maintenance and profit
// for p at the given occupancy rate.
func CalculateFinancials(p baseline.Property, rate float64) Financials {
	return financialsFor(p, p.Floors, p.TotalCapacity(), rate)
}

// financialsFor computes financials for an arbitrary number of operating
// floors and seat capacity, which is how projected states are priced.
func financialsFor(p baseline.Property, floors, capacity int, rate float64) Financials {
	occupied := int(math.Floor(float64(capacity) * rate))
	revenue := float64(occupied) * p.RevenuePerSeat
	energyCost := p.BaselineEnergyIntensity * rate * p.EnergyCostPerUnit * float64(floors)
	maintenance := float64(floors) * p.MaintenancePerFloor

	return Financials{
		Revenue:         revenue,
		EnergyCost:      energyCost,
		MaintenanceCost: maintenance,
		Profit:          revenue - energyCost - maintenance,
		OccupiedSeats:   occupied,
		TotalCapacity:   capacity,
	}
}
