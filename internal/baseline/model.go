// Package baseline provides the read-only property snapshot and its
// digital-twin history.
package baseline

import "fmt"

// DefaultSeatsPerRoom is used when a property does not declare total_capacity.
const DefaultSeatsPerRoom = 10

// Room is a bookable space on a floor.
type Room struct {
	ID               string `json:"room_id" yaml:"room_id"`
	Type             string `json:"room_type" yaml:"room_type"`
	Capacity         int    `json:"capacity" yaml:"capacity"`
	CurrentOccupancy int    `json:"current_occupancy" yaml:"current_occupancy"`
}

// Floor is one level of a property.
type Floor struct {
	Number        int    `json:"floor_number" yaml:"floor_number"`
	Rooms         []Room `json:"rooms" yaml:"rooms"`
	TotalCapacity int    `json:"total_capacity" yaml:"total_capacity"`
	IsActive      bool   `json:"is_active" yaml:"is_active"`
}

// OccupancyRate returns current occupancy over capacity for the floor's rooms.
func (f Floor) OccupancyRate() float64 {
	var capacity, occupied int
	for _, r := range f.Rooms {
		capacity += r.Capacity
		occupied += r.CurrentOccupancy
	}
	if capacity == 0 {
		return 0
	}
	return float64(occupied) / float64(capacity)
}

// DailyRecord is one day of observed occupancy and energy.
type DailyRecord struct {
	Date          string  `json:"date" yaml:"date"` // YYYY-MM-DD
	OccupancyRate float64 `json:"occupancy_rate" yaml:"occupancy_rate"`
	EnergyUsage   float64 `json:"energy_usage" yaml:"energy_usage"`
	BookingCount  int     `json:"booking_count" yaml:"booking_count"`
	IsEventDay    bool    `json:"is_event_day" yaml:"is_event_day"`
	DayOfWeek     int     `json:"day_of_week" yaml:"day_of_week"` // 0 = Monday
}

// DigitalTwin holds the floor layout and daily history of a property.
type DigitalTwin struct {
	FloorData    []Floor       `json:"floor_data" yaml:"floor_data"`
	DailyHistory []DailyRecord `json:"daily_history" yaml:"daily_history"`
}

// Property is a baseline property. It is never mutated at runtime.
type Property struct {
	ID                      string      `json:"property_id" yaml:"property_id"`
	Name                    string      `json:"name" yaml:"name"`
	Type                    string      `json:"type" yaml:"type"`
	Location                string      `json:"location" yaml:"location"`
	Floors                  int         `json:"floors" yaml:"floors"`
	RoomsPerFloor           int         `json:"rooms_per_floor" yaml:"rooms_per_floor"`
	RevenuePerSeat          float64     `json:"revenue_per_seat" yaml:"revenue_per_seat"`
	EnergyCostPerUnit       float64     `json:"energy_cost_per_unit" yaml:"energy_cost_per_unit"`
	MaintenancePerFloor     float64     `json:"maintenance_per_floor" yaml:"maintenance_per_floor"`
	BaselineEnergyIntensity float64     `json:"baseline_energy_intensity" yaml:"baseline_energy_intensity"`
	Capacity                int         `json:"total_capacity,omitempty" yaml:"total_capacity,omitempty"`
	GridFactor              *float64    `json:"grid_factor,omitempty" yaml:"grid_factor,omitempty"`
	DigitalTwin             DigitalTwin `json:"digital_twin" yaml:"digital_twin"`
}

// TotalCapacity returns the declared seat capacity or the
// floors × rooms × DefaultSeatsPerRoom estimate.
func (p *Property) TotalCapacity() int {
	if p.Capacity > 0 {
		return p.Capacity
	}
	return p.Floors * p.RoomsPerFloor * DefaultSeatsPerRoom
}

// HasFloor reports whether n is a valid floor number for the property.
func (p *Property) HasFloor(n int) bool {
	return n >= 1 && n <= p.Floors
}

// Validate checks the structural invariants of a baseline property.
func (p *Property) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("property id is required")
	}
	if p.Floors < 1 {
		return fmt.Errorf("property %s: floors must be >= 1, got %d", p.ID, p.Floors)
	}
	if p.RoomsPerFloor < 1 {
		return fmt.Errorf("property %s: rooms_per_floor must be >= 1, got %d", p.ID, p.RoomsPerFloor)
	}
	positives := []struct {
		name  string
		value float64
	}{
		{"revenue_per_seat", p.RevenuePerSeat},
		{"energy_cost_per_unit", p.EnergyCostPerUnit},
		{"maintenance_per_floor", p.MaintenancePerFloor},
		{"baseline_energy_intensity", p.BaselineEnergyIntensity},
	}
	for _, f := range positives {
		if f.value <= 0 {
			return fmt.Errorf("property %s: %s must be positive, got %g", p.ID, f.name, f.value)
		}
	}
	for i, d := range p.DigitalTwin.DailyHistory {
		if d.OccupancyRate < 0 || d.OccupancyRate > 1 {
			return fmt.Errorf("property %s: day %d occupancy_rate %g out of [0,1]", p.ID, i, d.OccupancyRate)
		}
		if d.DayOfWeek < 0 || d.DayOfWeek > 6 {
			return fmt.Errorf("property %s: day %d day_of_week %d out of [0,6]", p.ID, i, d.DayOfWeek)
		}
	}
	return nil
}
