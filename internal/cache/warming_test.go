package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

type mockWeatherFetcher struct {
	mu    sync.Mutex
	calls []string
	dates []time.Time
	err   error
}

func (m *mockWeatherFetcher) GetWeather(ctx context.Context, location string, date time.Time) (*models.WeatherSummary, error) {
	m.mu.Lock()
	m.calls = append(m.calls, location)
	m.dates = append(m.dates, date)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &models.WeatherSummary{Temperature: 10}, nil
}

func (m *mockWeatherFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	clock := newFakeClock()
	fetcher := &mockWeatherFetcher{}
	warmer := NewCacheWarmer(fetcher, nil, clock.Now)

	if err := warmer.Warm(context.Background(), []string{"Seattle", "Boston"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if n := fetcher.callCount(); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
	for _, d := range fetcher.dates {
		if !d.Equal(clock.Now()) {
			t.Errorf("warmed date %v, want today %v", d, clock.Now())
		}
	}
}

func TestCacheWarmer_Warm_EmptyLocations(t *testing.T) {
	warmer := NewCacheWarmer(&mockWeatherFetcher{}, nil, nil)

	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm() with nil locations error = %v, want nil", err)
	}
	if err := warmer.Warm(context.Background(), []string{}); err != nil {
		t.Fatalf("Warm() with empty locations error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_FetcherError(t *testing.T) {
	boom := errors.New("api down")
	warmer := NewCacheWarmer(&mockWeatherFetcher{err: boom}, nil, nil)

	err := warmer.Warm(context.Background(), []string{"Seattle", "Boston"})
	if !errors.Is(err, boom) {
		t.Fatalf("Warm() error = %v, want wrapping %v", err, boom)
	}
	if !strings.Contains(err.Error(), "warm Seattle") || !strings.Contains(err.Error(), "warm Boston") {
		t.Errorf("Warm() error = %q, want both locations named", err)
	}
}
