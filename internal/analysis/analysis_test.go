package analysis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testToday = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time { return testToday.AddDate(0, 0, offset) }

// fakeSource serves summaries keyed by location and date, and records lookups.
type fakeSource struct {
	mu      sync.Mutex
	weather map[string]*models.WeatherSummary
	errs    map[string]error

	entries    []models.ForecastEntry
	entriesErr error

	lookups  []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		weather: make(map[string]*models.WeatherSummary),
		errs:    make(map[string]error),
	}
}

func (f *fakeSource) set(location string, d time.Time, s *models.WeatherSummary) {
	f.weather[location+"|"+d.Format(models.DateLayout)] = s
}

func (f *fakeSource) GetWeather(ctx context.Context, location string, date time.Time) (*models.WeatherSummary, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	key := location + "|" + date.Format(models.DateLayout)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, key)
	if err, ok := f.errs[location]; ok {
		return nil, fmt.Errorf("fetch weather for %s: %w", location, err)
	}
	return f.weather[key], nil
}

func (f *fakeSource) ForecastEntries(ctx context.Context, location string) ([]models.ForecastEntry, error) {
	return f.entries, f.entriesErr
}

func (f *fakeSource) Today() time.Time { return testToday }

func weather(temp, precip, wind float64, main, desc string) *models.WeatherSummary {
	return &models.WeatherSummary{
		Temperature: temp, Precipitation: precip, WindSpeed: wind,
		MainCategory: main, Description: desc,
	}
}

func TestNewAnalyzer_Defaults(t *testing.T) {
	a := NewAnalyzer(newFakeSource(), 0, nil)
	if a.concurrency != 1 {
		t.Errorf("concurrency = %d, want 1", a.concurrency)
	}
	if a.logger == nil {
		t.Error("logger should default to a no-op logger")
	}
}
