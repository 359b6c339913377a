package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/suitability"
)

// Alternative is a candidate date for an event.
type Alternative struct {
	Date        string                   `json:"date"`
	Weather     *models.WeatherSummary   `json:"weather"`
	Suitability models.SuitabilityResult `json:"suitability"`
}

// Alternatives scores every date from today through the forecast horizon, skipping
// original unless it is already past, and returns the dates with data sorted by score
// descending. A fetch error aborts the search.
func (a *Analyzer) Alternatives(ctx context.Context, location, eventType string, original time.Time) ([]Alternative, error) {
	today := a.source.Today()
	orig := client.Day(original)

	var out []Alternative
	for i := 0; i <= client.ForecastHorizonDays; i++ {
		d := today.AddDate(0, 0, i)
		if d.Equal(orig) && !orig.Before(today) {
			continue
		}
		summary, err := a.source.GetWeather(ctx, location, d)
		if err != nil {
			return nil, fmt.Errorf("alternatives for %s: %w", location, err)
		}
		if summary == nil {
			continue
		}
		out = append(out, Alternative{
			Date:        d.Format(models.DateLayout),
			Weather:     summary,
			Suitability: suitability.Score(eventType, summary),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Suitability.Score > out[j].Suitability.Score
	})
	return out, nil
}

// Reminder is a printable pre-event weather digest.
type Reminder struct {
	Status  string `json:"status"` // "success" or "no_data"
	Summary string `json:"summary,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReminderSummary renders the weather for an event as a multi-line text block.
func (a *Analyzer) ReminderSummary(ctx context.Context, name, location string, date time.Time) (Reminder, error) {
	day := client.Day(date)
	summary, err := a.source.GetWeather(ctx, location, day)
	if err != nil {
		return Reminder{}, fmt.Errorf("reminder for %s: %w", location, err)
	}
	if summary == nil {
		return Reminder{Status: "no_data", Message: "Could not retrieve weather data for event reminder."}, nil
	}
	return Reminder{Status: "success", Summary: formatReminder(name, location, day, summary)}, nil
}

func formatReminder(name, location string, day time.Time, s *models.WeatherSummary) string {
	lines := []string{
		"Event: " + name,
		"Location: " + location,
		"Date: " + day.Format(models.DateLayout),
		"--- Weather Summary ---",
	}
	if s.TemperatureMin != nil && s.TemperatureMax != nil {
		lines = append(lines, fmt.Sprintf("Temperature: %.1f°C (min %.1f°C, max %.1f°C)", s.Temperature, *s.TemperatureMin, *s.TemperatureMax))
	} else {
		lines = append(lines, fmt.Sprintf("Temperature: %.1f°C", s.Temperature))
	}
	if s.FeelsLike != nil {
		lines = append(lines, fmt.Sprintf("Feels Like: %.1f°C", *s.FeelsLike))
	}
	lines = append(lines, fmt.Sprintf("Humidity: %.0f%%", s.Humidity))
	if s.Pressure != nil {
		lines = append(lines, fmt.Sprintf("Pressure: %.0f hPa", *s.Pressure))
	}
	lines = append(lines, fmt.Sprintf("Wind Speed: %.1f m/s", s.WindSpeed))
	if s.Description != "" {
		lines = append(lines, "Weather: "+s.Description)
	}
	lines = append(lines, fmt.Sprintf("Precipitation: %.1f mm", s.Precipitation))
	return strings.Join(lines, "\n")
}
