// Package scenariotest builds a scenario.Service over a temporary database
// and a small fixed portfolio, for adapter tests.
package scenariotest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/baseline"
	"github.com/evcraddock/proptech-copilot/internal/db"
	"github.com/evcraddock/proptech-copilot/internal/engine"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

// Fixture is a service with direct access to its stores.
type Fixture struct {
	Service  *scenario.Service
	Baseline *baseline.Store
	Overlays *overlay.Store
	Ledger   *audit.Ledger
}

// Property returns a property with days of flat-occupancy history starting
// Monday 2026-01-05.
func Property(id, location string, floors int, occupancy float64, days int) baseline.Property {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	history := make([]baseline.DailyRecord, days)
	for i := range history {
		history[i] = baseline.DailyRecord{
			Date:          start.AddDate(0, 0, i).Format(time.DateOnly),
			OccupancyRate: occupancy,
			EnergyUsage:   150 * occupancy,
			DayOfWeek:     i % 7,
		}
	}
	return baseline.Property{
		ID:                      id,
		Name:                    "Property " + id,
		Type:                    "Commercial Office",
		Location:                location,
		Floors:                  floors,
		RoomsPerFloor:           12,
		RevenuePerSeat:          2500,
		EnergyCostPerUnit:       8.5,
		MaintenancePerFloor:     45000,
		BaselineEnergyIntensity: 150,
		DigitalTwin:             baseline.DigitalTwin{DailyHistory: history},
	}
}

// Portfolio is the fixture's baseline:
//   - prop_001: 8 floors at 0.7 occupancy, three weeks of history
//   - prop_002: 4 floors at 0.3 occupancy, three weeks of history
//   - prop_003: 5 floors at 0.9 occupancy, one week of history
func Portfolio() []baseline.Property {
	return []baseline.Property{
		Property("prop_001", "Bangalore, Karnataka", 8, 0.7, 21),
		Property("prop_002", "Mumbai, Maharashtra", 4, 0.3, 21),
		Property("prop_003", "Hyderabad, Telangana", 5, 0.9, 7),
	}
}

// New creates a fixture. Forecasts are deterministic.
func New(t *testing.T, opts ...scenario.Option) *Fixture {
	t.Helper()

	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	b, err := baseline.NewStore(Portfolio())
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	ledger := audit.NewLedger(d)
	overlays := overlay.NewStore(d, ledger)

	opts = append([]scenario.Option{scenario.WithJitter(engine.NoJitter)}, opts...)
	return &Fixture{
		Service:  scenario.NewService(b, overlays, ledger, opts...),
		Baseline: b,
		Overlays: overlays,
		Ledger:   ledger,
	}
}
