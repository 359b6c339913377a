package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/suitability"
)

// Outdoor Sports readings with known scores.
var (
	score0   = models.ForecastEntry{Temperature: 5, Precipitation: 30, WindSpeed: 10, MainCategory: "Snow"}
	score50  = models.ForecastEntry{Temperature: 20, Precipitation: 30, WindSpeed: 2, MainCategory: "Snow"}
	score55  = models.ForecastEntry{Temperature: 20, Precipitation: 0, WindSpeed: 10, MainCategory: "Snow"}
	score100 = models.ForecastEntry{Temperature: 20, Precipitation: 0, WindSpeed: 2, MainCategory: "Clear"}
)

// onDay stamps copies of readings at 3-hour steps on day d.
func onDay(d time.Time, readings ...models.ForecastEntry) []models.ForecastEntry {
	out := make([]models.ForecastEntry, len(readings))
	for i, r := range readings {
		r.Time = d.Add(time.Duration(3*i) * time.Hour)
		out[i] = r
	}
	return out
}

func concat(parts ...[]models.ForecastEntry) []models.ForecastEntry {
	var out []models.ForecastEntry
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestTrendFromEntries_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		entries []models.ForecastEntry
		want    Direction
	}{
		{
			name:    "diff +10 stays stable",
			entries: concat(onDay(day(1), score0), onDay(day(3), score50, score0, score0, score0, score0)),
			want:    Stable,
		},
		{
			name:    "diff +11 improving",
			entries: concat(onDay(day(1), score0), onDay(day(3), score55, score0, score0, score0, score0)),
			want:    Improving,
		},
		{
			name:    "diff -10 stays stable",
			entries: concat(onDay(day(1), score50, score0, score0, score0, score0), onDay(day(2), score0)),
			want:    Stable,
		},
		{
			name:    "diff -11 worsening",
			entries: concat(onDay(day(1), score55, score0, score0, score0, score0), onDay(day(2), score0)),
			want:    Worsening,
		},
		{
			name:    "middle days ignored",
			entries: concat(onDay(day(1), score100), onDay(day(2), score0), onDay(day(3), score100)),
			want:    Stable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrendFromEntries(suitability.OutdoorSports, tt.entries)
			if got.Trend != tt.want {
				t.Errorf("Trend = %s, want %s (daily %v)", got.Trend, tt.want, got.DailyScores)
			}
		})
	}
}

func TestTrendFromEntries_DailyAverages(t *testing.T) {
	entries := concat(
		onDay(day(2), score100, score0),
		onDay(day(1), score55, score55, score50, score0), // out of order on purpose
	)
	got := TrendFromEntries(suitability.OutdoorSports, entries)

	want := map[string]float64{
		day(1).Format(models.DateLayout): 40,
		day(2).Format(models.DateLayout): 50,
	}
	if len(got.DailyScores) != len(want) {
		t.Fatalf("DailyScores = %v, want %v", got.DailyScores, want)
	}
	for d, w := range want {
		if got.DailyScores[d] != w {
			t.Errorf("DailyScores[%s] = %v, want %v", d, got.DailyScores[d], w)
		}
	}
	if got.Trend != Stable {
		t.Errorf("Trend = %s, want Stable (diff 10)", got.Trend)
	}
}

func TestTrendFromEntries_InsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		entries []models.ForecastEntry
	}{
		{"no entries", nil},
		{"single day", onDay(day(1), score0, score100, score100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrendFromEntries(suitability.OutdoorSports, tt.entries)
			if got.Trend != Stable || got.Message != "Not enough data for trend analysis." {
				t.Errorf("got %+v, want Stable / insufficient data", got)
			}
		})
	}
}

func TestTrendFromEntries_GroupsByUTCDate(t *testing.T) {
	late := score0
	late.Time = day(1).Add(23*time.Hour + 30*time.Minute)
	early := score100
	early.Time = day(2).Add(30 * time.Minute)

	got := TrendFromEntries(suitability.OutdoorSports, []models.ForecastEntry{late, early})
	if len(got.DailyScores) != 2 {
		t.Fatalf("DailyScores = %v, want two UTC days", got.DailyScores)
	}
	if got.Trend != Improving {
		t.Errorf("Trend = %s, want Improving", got.Trend)
	}
}

func TestTrendFromEntries_UnknownEventType(t *testing.T) {
	got := TrendFromEntries("Picnic", concat(onDay(day(1), score100), onDay(day(2), score100)))
	for d, s := range got.DailyScores {
		if s != 0 {
			t.Errorf("DailyScores[%s] = %v, want 0 for unknown event type", d, s)
		}
	}
}

func TestAnalyzer_Trend(t *testing.T) {
	src := newFakeSource()
	src.entries = concat(onDay(day(1), score0), onDay(day(5), score100))
	a := NewAnalyzer(src, 1, nil)

	got, err := a.Trend(context.Background(), "Paris", suitability.OutdoorSports)
	if err != nil {
		t.Fatalf("Trend() error = %v", err)
	}
	if got.Trend != Improving {
		t.Errorf("Trend = %s, want Improving", got.Trend)
	}

	src.entriesErr = client.ErrRateLimitExceeded
	if _, err := a.Trend(context.Background(), "Paris", suitability.OutdoorSports); !errors.Is(err, client.ErrRateLimitExceeded) {
		t.Errorf("Trend() error = %v, want ErrRateLimitExceeded", err)
	}
}
