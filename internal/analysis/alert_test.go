package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/models"
)

func TestHasPrecipitation(t *testing.T) {
	tests := []struct {
		name    string
		summary *models.WeatherSummary
		want    bool
	}{
		{"nil", nil, false},
		{"clear", weather(20, 0, 2, "Clear", "clear sky"), false},
		{"rain category", weather(20, 0, 2, "Rain", ""), true},
		{"drizzle category", weather(20, 0, 2, "Drizzle", ""), true},
		{"thunderstorm category", weather(20, 0, 2, "Thunderstorm", ""), true},
		{"snow category", weather(-2, 0, 2, "Snow", ""), true},
		{"rain in description", weather(20, 0, 2, "Clouds", "Light Rain showers"), true},
		{"snow in description", weather(20, 0, 2, "Clouds", "snow flurries"), true},
		{"measured precipitation", weather(20, 0.2, 2, "Clouds", "overcast"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPrecipitation(tt.summary); got != tt.want {
				t.Errorf("HasPrecipitation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectChanges(t *testing.T) {
	tests := []struct {
		name     string
		current  *models.WeatherSummary
		previous *models.WeatherSummary
		want     []string
	}{
		{
			name:     "identical",
			current:  weather(20, 0, 2, "Clear", "clear sky"),
			previous: weather(20, 0, 2, "Clear", "clear sky"),
		},
		{
			name:     "exactly five degrees",
			current:  weather(25, 0, 2, "Clear", "clear sky"),
			previous: weather(20, 0, 2, "Clear", "clear sky"),
		},
		{
			name:     "six degrees",
			current:  weather(14, 0, 2, "Clear", "clear sky"),
			previous: weather(20, 0, 2, "Clear", "clear sky"),
			want:     []string{"Temperature changed by 6.0°C."},
		},
		{
			name:     "rain appears",
			current:  weather(20, 1.5, 2, "Rain", "light rain"),
			previous: weather(20, 0, 2, "Clear", "clear sky"),
			want:     []string{"Precipitation forecast changed from 'clear sky' to 'light rain'."},
		},
		{
			name:     "both rainy",
			current:  weather(20, 3, 2, "Rain", "moderate rain"),
			previous: weather(20, 1, 2, "Drizzle", "drizzle"),
		},
		{
			name:     "temperature and precipitation",
			current:  weather(10, 0, 2, "Clear", ""),
			previous: weather(20, 0, 2, "Snow", ""),
			want: []string{
				"Temperature changed by 10.0°C.",
				"Precipitation forecast changed from 'snow' to 'clear'.",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectChanges(tt.current, tt.previous)
			if len(got) != len(tt.want) {
				t.Fatalf("DetectChanges() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("detail[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChangeAlert(t *testing.T) {
	sunny := weather(20, 0, 2, "Clear", "clear sky")

	tests := []struct {
		name       string
		current    *models.WeatherSummary
		previous   *models.WeatherSummary
		wantStatus AlertStatus
		wantDetail string
	}{
		{"no change", sunny, weather(20, 0, 2, "Clear", "clear sky"), StatusNoChange, ""},
		{"temperature swing", weather(26.5, 0, 2, "Clear", "clear sky"), sunny, StatusAlert, "Temperature changed by 6.5°C."},
		{"precipitation flip", weather(20, 0, 2, "Rain", "light rain"), sunny, StatusAlert, "Precipitation forecast changed"},
		{"no previous", sunny, nil, StatusNoPreviousData, ""},
		{"no current", nil, sunny, StatusNoData, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			if tt.current != nil {
				src.set("Paris", day(3), tt.current)
			}
			if tt.previous != nil {
				src.set("Paris", day(2), tt.previous)
			}
			a := NewAnalyzer(src, 1, nil)

			got, err := a.ChangeAlert(context.Background(), "Paris", day(3))
			if err != nil {
				t.Fatalf("ChangeAlert() error = %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Fatalf("Status = %s, want %s (%s)", got.Status, tt.wantStatus, got.Message)
			}
			if got.Message == "" {
				t.Error("Message is empty")
			}
			if tt.wantDetail != "" && !strings.Contains(strings.Join(got.Details, " "), tt.wantDetail) {
				t.Errorf("Details = %q, want one containing %q", got.Details, tt.wantDetail)
			}
			if tt.wantStatus == StatusAlert && !strings.Contains(got.Message, "Details: ") {
				t.Errorf("Message = %q, want details appended", got.Message)
			}
		})
	}
}

func TestChangeAlert_ComparesWithPrecedingDay(t *testing.T) {
	src := newFakeSource()
	src.set("Paris", day(3), weather(20, 0, 2, "Clear", ""))
	src.set("Paris", day(2), weather(20, 0, 2, "Clear", ""))
	a := NewAnalyzer(src, 1, nil)

	if _, err := a.ChangeAlert(context.Background(), "Paris", day(3).Add(15*time.Hour)); err != nil {
		t.Fatalf("ChangeAlert() error = %v", err)
	}
	want := []string{"Paris|2025-06-13", "Paris|2025-06-12"}
	if len(src.lookups) != 2 || src.lookups[0] != want[0] || src.lookups[1] != want[1] {
		t.Errorf("lookups = %v, want %v", src.lookups, want)
	}
}

func TestChangeAlert_Error(t *testing.T) {
	src := newFakeSource()
	src.errs["Atlantis"] = client.ErrInvalidLocation
	a := NewAnalyzer(src, 1, nil)

	_, err := a.ChangeAlert(context.Background(), "Atlantis", day(1))
	if !errors.Is(err, client.ErrInvalidLocation) {
		t.Errorf("ChangeAlert() error = %v, want ErrInvalidLocation", err)
	}
}
