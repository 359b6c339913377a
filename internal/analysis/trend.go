package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/suitability"
)

// Direction is the overall movement of daily suitability across the forecast.
type Direction string

const (
	Improving Direction = "Improving"
	Worsening Direction = "Worsening"
	Stable    Direction = "Stable"
)

// TrendThreshold is the absolute score-point difference, first day vs last day,
// beyond which the trend is no longer Stable.
const TrendThreshold = 10.0

// TrendResult reports the direction and the per-day average scores it was derived from.
type TrendResult struct {
	Trend       Direction          `json:"trend"`
	Message     string             `json:"message"`
	DailyScores map[string]float64 `json:"dailyScores"`
}

// Trend scores the raw 5-day/3-hour forecast for location.
func (a *Analyzer) Trend(ctx context.Context, location, eventType string) (TrendResult, error) {
	entries, err := a.source.ForecastEntries(ctx, location)
	if err != nil {
		return TrendResult{}, fmt.Errorf("trend for %s: %w", location, err)
	}
	return TrendFromEntries(eventType, entries), nil
}

// TrendFromEntries scores each entry as an instant reading, averages per UTC day and
// compares the first day's average with the last day's.
func TrendFromEntries(eventType string, entries []models.ForecastEntry) TrendResult {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, e := range entries {
		s := e.Summary()
		day := e.Date()
		sums[day] += float64(suitability.Score(eventType, &s).Score)
		counts[day]++
	}

	daily := make(map[string]float64, len(sums))
	days := make([]string, 0, len(sums))
	for day, sum := range sums {
		daily[day] = sum / float64(counts[day])
		days = append(days, day)
	}
	sort.Strings(days)

	if len(days) < 2 {
		return TrendResult{
			Trend:       Stable,
			Message:     "Not enough data for trend analysis.",
			DailyScores: daily,
		}
	}

	diff := daily[days[len(days)-1]] - daily[days[0]]
	switch {
	case diff > TrendThreshold:
		return TrendResult{Trend: Improving, Message: "Weather conditions are improving over the forecast period.", DailyScores: daily}
	case diff < -TrendThreshold:
		return TrendResult{Trend: Worsening, Message: "Weather conditions are worsening over the forecast period.", DailyScores: daily}
	}
	return TrendResult{Trend: Stable, Message: "Weather conditions are relatively stable over the forecast period.", DailyScores: daily}
}
