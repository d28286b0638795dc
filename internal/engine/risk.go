package engine

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// LocationRisk is one known hazard of a city, scored in [0,1].
type LocationRisk struct {
	Name  string  `json:"name"`
	Level string  `json:"level"`
	Score float64 `json:"score"`
}

// LocationProfile describes the city a property sits in.
type LocationProfile struct {
	Key        string         `json:"key"`
	City       string         `json:"city"`
	State      string         `json:"state"`
	Region     string         `json:"region"`
	GridFactor float64        `json:"grid_emission_factor"`
	Climate    string         `json:"climate"`
	AvgTempC   float64        `json:"avg_temp"`
	RainfallMM float64        `json:"rainfall_mm"`
	Risks      []LocationRisk `json:"risks"`
}

// locationProfiles is keyed by city aliases. The first entry doubles as the
// profile of unknown locations.
var locationProfiles = []struct {
	aliases []string
	profile LocationProfile
}{
	{
		aliases: []string{"bangalore", "bengaluru"},
		profile: LocationProfile{
			Key: "bangalore", City: "Bangalore", State: "Karnataka", Region: "South",
			GridFactor: 0.82, Climate: "tropical_savanna", AvgTempC: 24, RainfallMM: 970,
			Risks: []LocationRisk{
				{"water_scarcity", "high", 0.8},
				{"traffic_congestion", "high", 0.85},
				{"it_sector_dependency", "medium", 0.6},
				{"seismic", "low", 0.2},
				{"flooding", "medium", 0.45},
				{"air_quality", "medium", 0.5},
				{"real_estate_volatility", "medium", 0.55},
			},
		},
	},
	{
		aliases: []string{"mumbai"},
		profile: LocationProfile{
			Key: "mumbai", City: "Mumbai", State: "Maharashtra", Region: "West",
			GridFactor: 0.79, Climate: "tropical_monsoon", AvgTempC: 27, RainfallMM: 2400,
			Risks: []LocationRisk{
				{"flooding", "critical", 0.95},
				{"coastal_erosion", "high", 0.75},
				{"real_estate_costs", "critical", 0.9},
				{"traffic_congestion", "critical", 0.92},
				{"seismic", "medium", 0.5},
				{"cyclone", "medium", 0.55},
				{"air_quality", "high", 0.7},
			},
		},
	},
	{
		aliases: []string{"hyderabad"},
		profile: LocationProfile{
			Key: "hyderabad", City: "Hyderabad", State: "Telangana", Region: "South",
			GridFactor: 0.82, Climate: "semi_arid", AvgTempC: 26, RainfallMM: 800,
			Risks: []LocationRisk{
				{"drought", "high", 0.75},
				{"rapid_urbanization", "high", 0.8},
				{"water_scarcity", "high", 0.7},
				{"heat_waves", "high", 0.72},
				{"flooding", "medium", 0.5},
				{"seismic", "low", 0.25},
				{"air_quality", "medium", 0.45},
			},
		},
	},
}

// matchLocation finds the profile whose city name appears in location.
func matchLocation(location string) (LocationProfile, bool) {
	loc := strings.ToLower(location)
	for _, l := range locationProfiles {
		for _, alias := range l.aliases {
			if strings.Contains(loc, alias) {
				return l.profile, true
			}
		}
	}
	return LocationProfile{}, false
}

// Location returns the profile for a location string, falling back to
// Bangalore when the city is not known.
func Location(location string) LocationProfile {
	if p, ok := matchLocation(location); ok {
		return p
	}
	return locationProfiles[0].profile
}

// RiskLevel grades the average location risk.
type RiskLevel string

// Risk levels by average score: above 0.7 critical, above 0.55 high, above
// 0.4 medium.
const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// ClassifyRisk maps an average risk score to a level.
func ClassifyRisk(avg float64) RiskLevel {
	switch {
	case avg > 0.7:
		return RiskLevelCritical
	case avg > 0.55:
		return RiskLevelHigh
	case avg > 0.4:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// KeyRisk is one of the top hazards of a property's location.
type KeyRisk struct {
	Name        string  `json:"name"`
	Severity    string  `json:"severity"`
	Probability float64 `json:"probability"`
	Impact      string  `json:"impact"`
	Description string  `json:"description"`
}

// RiskAnalysis is the rule-based location risk assessment of a property.
type RiskAnalysis struct {
	PropertyID              string    `json:"property_id"`
	PropertyName            string    `json:"property_name"`
	Location                string    `json:"location"`
	City                    string    `json:"city"`
	OverallRiskScore        int       `json:"overall_risk_score"`
	RiskLevel               RiskLevel `json:"risk_level"`
	KeyRisks                []KeyRisk `json:"key_risks"`
	MitigationStrategies    []string  `json:"mitigation_strategies"`
	Opportunities           []string  `json:"opportunities"`
	ClimateResilienceScore  int       `json:"climate_resilience_score"`
	FinancialRiskAssessment string    `json:"financial_risk_assessment"`
	RecommendationSummary   string    `json:"recommendation_summary"`
}

// maxKeyRisks caps RiskAnalysis.KeyRisks.
const maxKeyRisks = 5

// AnalyzeRisk scores p's location hazards. Scores are whole percentages,
// truncated; the resilience score is their complement.
func AnalyzeRisk(p baseline.Property) RiskAnalysis {
	loc := Location(p.Location)

	scores := make([]float64, len(loc.Risks))
	for i, r := range loc.Risks {
		scores[i] = r.Score
	}
	avg := stat.Mean(scores, nil)
	level := ClassifyRisk(avg)

	ranked := slices.Clone(loc.Risks)
	slices.SortStableFunc(ranked, func(a, b LocationRisk) int { return cmp.Compare(b.Score, a.Score) })
	ranked = ranked[:min(maxKeyRisks, len(ranked))]

	keyRisks := make([]KeyRisk, len(ranked))
	for i, r := range ranked {
		name := titleCase(r.Name)
		keyRisks[i] = KeyRisk{
			Name:        name,
			Severity:    strings.ToUpper(r.Level),
			Probability: r.Score,
			Impact:      string(impactFor(r.Score)),
			Description: fmt.Sprintf("%s is a %s concern in %s", name, r.Level, loc.City),
		}
	}

	top := strings.ReplaceAll(ranked[0].Name, "_", " ")
	score := int(avg * 100)
	return RiskAnalysis{
		PropertyID:       p.ID,
		PropertyName:     p.Name,
		Location:         p.Location,
		City:             loc.City,
		OverallRiskScore: score,
		RiskLevel:        level,
		KeyRisks:         keyRisks,
		MitigationStrategies: []string{
			fmt.Sprintf("Implement %s mitigation measures", top),
			"Develop comprehensive business continuity plan",
			"Invest in infrastructure resilience upgrades",
			"Establish emergency response protocols",
			"Regular risk assessments and monitoring",
		},
		Opportunities: []string{
			fmt.Sprintf("Leverage %s's growing tech ecosystem", loc.City),
			"Access to skilled workforce in the region",
			fmt.Sprintf("Government incentives for green buildings in %s", loc.State),
		},
		ClimateResilienceScore: 100 - score,
		FinancialRiskAssessment: fmt.Sprintf("Property in %s faces %s financial risk due to %s and related factors.",
			loc.City, strings.ToLower(string(level)), top),
		RecommendationSummary: fmt.Sprintf("Focus on mitigating %s risk which is the primary concern. "+
			"Implement sustainability measures to reduce carbon footprint and operational costs.", top),
	}
}

func impactFor(score float64) RiskLevel {
	switch {
	case score > 0.7:
		return RiskLevelHigh
	case score > 0.4:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

func titleCase(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// CarbonReductionPotential is the share of monthly emissions considered
// avoidable.
const CarbonReductionPotential = 0.25

// CarbonFootprint is a property's emissions with some floors closed.
type CarbonFootprint struct {
	Location                 string  `json:"location"`
	City                     string  `json:"city"`
	Region                   string  `json:"region"`
	GridFactor               float64 `json:"grid_emission_factor"`
	MonthlyEnergyKWh         float64 `json:"monthly_energy_kwh"`
	MonthlyCarbonKg          float64 `json:"monthly_carbon_kg"`
	AnnualCarbonTons         float64 `json:"annual_carbon_tons"`
	ActiveFloors             int     `json:"active_floors"`
	TotalFloors              int     `json:"total_floors"`
	CarbonReductionPotential float64 `json:"carbon_reduction_potential"`
}

// AdjustedCarbon scales dailyEnergy to the floors left open and converts it
// to emissions with the grid factor GridFactor picks for p.
func AdjustedCarbon(p baseline.Property, dailyEnergy float64, closed []int, fallback float64) CarbonFootprint {
	loc := Location(p.Location)
	factor := GridFactor(p, fallback)

	active := p.Floors - distinctCount(closed)
	adjusted := dailyEnergy
	if p.Floors > 0 {
		adjusted = dailyEnergy * float64(active) / float64(p.Floors)
	}

	monthly := adjusted * factor * 30
	return CarbonFootprint{
		Location:                 p.Location,
		City:                     loc.City,
		Region:                   loc.Region,
		GridFactor:               factor,
		MonthlyEnergyKWh:         round(adjusted*30, 2),
		MonthlyCarbonKg:          round(monthly, 2),
		AnnualCarbonTons:         round(monthly*12/1000, 2),
		ActiveFloors:             active,
		TotalFloors:              p.Floors,
		CarbonReductionPotential: round(monthly*CarbonReductionPotential, 2),
	}
}
