package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/models"
)

// AlertStatus is the outcome of a change check.
type AlertStatus string

const (
	StatusAlert          AlertStatus = "alert"
	StatusNoChange       AlertStatus = "no_change"
	StatusNoPreviousData AlertStatus = "no_previous_data"
	StatusNoData         AlertStatus = "no_data"
)

// TempChangeThreshold is the absolute °C difference that counts as significant.
const TempChangeThreshold = 5.0

// Alert reports whether the forecast for a date moved significantly.
type Alert struct {
	Status   AlertStatus            `json:"status"`
	Message  string                 `json:"message"`
	Details  []string               `json:"details,omitempty"`
	Current  *models.WeatherSummary `json:"current,omitempty"`
	Previous *models.WeatherSummary `json:"previous,omitempty"`
}

var precipitationCategories = map[string]bool{
	"Rain": true, "Drizzle": true, "Thunderstorm": true, "Snow": true,
}

// HasPrecipitation reports whether s describes falling rain or snow.
func HasPrecipitation(s *models.WeatherSummary) bool {
	if s == nil {
		return false
	}
	if precipitationCategories[s.MainCategory] || s.Precipitation > 0 {
		return true
	}
	d := strings.ToLower(s.Description)
	return strings.Contains(d, "rain") || strings.Contains(d, "snow")
}

// ChangeAlert compares the summary for date with the one for the preceding day.
// The preceding day stands in for an earlier forecast; no forecast history is kept.
func (a *Analyzer) ChangeAlert(ctx context.Context, location string, date time.Time) (Alert, error) {
	day := client.Day(date)
	current, err := a.source.GetWeather(ctx, location, day)
	if err != nil {
		return Alert{}, fmt.Errorf("change alert for %s: %w", location, err)
	}
	if current == nil {
		return Alert{
			Status:  StatusNoData,
			Message: "Could not retrieve current forecast for weather change check.",
		}, nil
	}

	prevDay := day.AddDate(0, 0, -1)
	previous, err := a.source.GetWeather(ctx, location, prevDay)
	if err != nil {
		return Alert{}, fmt.Errorf("change alert for %s: %w", location, err)
	}
	if previous == nil {
		return Alert{
			Status: StatusNoPreviousData,
			Message: fmt.Sprintf("No previous forecast available for %s on %s. Cannot determine significant change.",
				location, prevDay.Format(models.DateLayout)),
			Current: current,
		}, nil
	}

	details := DetectChanges(current, previous)
	if len(details) == 0 {
		return Alert{
			Status:   StatusNoChange,
			Message:  fmt.Sprintf("No significant weather change detected for %s on %s.", location, day.Format(models.DateLayout)),
			Current:  current,
			Previous: previous,
		}, nil
	}
	return Alert{
		Status: StatusAlert,
		Message: fmt.Sprintf("Significant weather change detected for %s on %s. Details: %s",
			location, day.Format(models.DateLayout), strings.Join(details, ", ")),
		Details:  details,
		Current:  current,
		Previous: previous,
	}, nil
}

// DetectChanges lists the significant differences between two summaries.
func DetectChanges(current, previous *models.WeatherSummary) []string {
	var details []string
	if diff := math.Abs(current.Temperature - previous.Temperature); diff > TempChangeThreshold {
		details = append(details, fmt.Sprintf("Temperature changed by %.1f°C.", diff))
	}
	if HasPrecipitation(current) != HasPrecipitation(previous) {
		details = append(details, fmt.Sprintf("Precipitation forecast changed from '%s' to '%s'.",
			describe(previous), describe(current)))
	}
	return details
}

func describe(s *models.WeatherSummary) string {
	if s.Description != "" {
		return s.Description
	}
	if s.MainCategory != "" {
		return strings.ToLower(s.MainCategory)
	}
	return "none"
}
