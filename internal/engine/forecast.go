package engine

import (
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/evcraddock/proptech-copilot/internal/baseline"
)

// Forecast tuning.
const (
	MinForecastHistory     = 14
	forecastWindow         = 30
	forecastDays           = 7
	defaultWeekdayForecast = 0.5
	minForecast            = 0.1
	maxForecast            = 0.95
	baseConfidence         = 0.85
	confidenceDecay        = 0.02
)

// ForecastPoint is one day of a forecast.
type ForecastPoint struct {
	Date                string  `json:"date"`
	DayOfWeek           int     `json:"day_of_week"`
	ForecastedOccupancy float64 `json:"forecasted_occupancy"`
	Confidence          float64 `json:"confidence"`
}

// Jitter returns a multiplicative noise factor, nominally in [0.95, 1.05].
type Jitter func() float64

// NoJitter makes forecasts fully deterministic.
func NoJitter() float64 { return 1.0 }

// DefaultJitter draws factors uniformly from [0.95, 1.05) from the shared
// generator. It is safe for concurrent use.
func DefaultJitter() float64 { return 0.95 + rand.Float64()*0.10 }

// RandomJitter draws factors uniformly from [0.95, 1.05) using r.
func RandomJitter(r *rand.Rand) Jitter {
	return func() float64 { return 0.95 + r.Float64()*0.10 }
}

// Forecast7Day is a seasonal-naive forecast of the next seven days: the mean
// occupancy per weekday over the last thirty days, jittered and clamped. It
// needs at least two weeks of history and returns nil otherwise. A nil jitter
// behaves like NoJitter.
func Forecast7Day(history []baseline.DailyRecord, jitter Jitter) []ForecastPoint {
	if len(history) < MinForecastHistory {
		return nil
	}
	if jitter == nil {
		jitter = NoJitter
	}

	window := history[max(0, len(history)-forecastWindow):]
	byWeekday := make(map[int][]float64, 7)
	for _, d := range window {
		byWeekday[d.DayOfWeek] = append(byWeekday[d.DayOfWeek], d.OccupancyRate)
	}

	last := history[len(history)-1]
	lastDate, dateErr := time.Parse(time.DateOnly, last.Date)

	points := make([]ForecastPoint, 0, forecastDays)
	for i := range forecastDays {
		offset := i + 1
		dow := (last.DayOfWeek + offset) % 7
		var date string
		if dateErr == nil {
			d := lastDate.AddDate(0, 0, offset)
			dow = mondayWeekday(d.Weekday())
			date = d.Format(time.DateOnly)
		}

		base := defaultWeekdayForecast
		if rates, ok := byWeekday[dow]; ok {
			base = stat.Mean(rates, nil)
		}
		value := min(max(base*jitter(), minForecast), maxForecast)

		points = append(points, ForecastPoint{
			Date:                date,
			DayOfWeek:           dow,
			ForecastedOccupancy: round(value, 3),
			Confidence:          round(baseConfidence-confidenceDecay*float64(i), 2),
		})
	}
	return points
}

// mondayWeekday converts a time.Weekday to a Monday=0 index.
func mondayWeekday(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
