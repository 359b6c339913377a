package service

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/event-weather-service/internal/cache"
	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/observability"
	"github.com/kjstillabower/event-weather-service/internal/testhelpers"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}
}

var parisCurrent = &testhelpers.CurrentFixture{
	Temp: 22, FeelsLike: 21, Humidity: 40, Pressure: 1012, WindSpeed: 2,
	Main: "Clear", Description: "clear sky",
}

// harness wires the real client and cache against the fake upstream.
type harness struct {
	clock    *testClock
	upstream *testhelpers.FakeOpenWeather
	svc      *WeatherService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newClock()
	up := testhelpers.NewFakeOpenWeather(t)
	up.AddLocation("Paris", testhelpers.LocationFixture{
		Lat: 48.85, Lon: 2.35,
		Current: parisCurrent,
		Forecast: testhelpers.DailyForecast(clock.Now(), 6, testhelpers.ForecastFixture{
			Temp: 19, Humidity: 55, WindSpeed: 3, Main: "Clouds", Description: "broken clouds",
		}),
	})
	up.AddLocation("Emptyville", testhelpers.LocationFixture{Lat: 1, Lon: 1})

	c := up.NewClient(t, clock.Now)
	wc := cache.NewWeatherCache(cache.NewMemoryStore(cache.DefaultTTL), cache.BackendInMemory, cache.DefaultTTL, clock.Now)
	return &harness{clock: clock, upstream: up, svc: NewWeatherService(c, c, wc, nil, clock.Now)}
}

func TestGetWeather_CacheHitAvoidsUpstream(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.GetWeather(ctx, "Paris", h.clock.Now())
	if err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if first == nil || first.Source != models.SourceCurrent || first.Temperature != 22 {
		t.Fatalf("GetWeather() = %+v, want current reading", first)
	}
	calls := h.upstream.TotalCalls()
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2 (geocode + current)", calls)
	}

	second, err := h.svc.GetWeather(ctx, "Paris", h.clock.Now())
	if err != nil {
		t.Fatalf("second GetWeather() error = %v", err)
	}
	if h.upstream.TotalCalls() != calls {
		t.Errorf("cache hit made %d extra upstream calls", h.upstream.TotalCalls()-calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached summary = %+v, want %+v", second, first)
	}
}

func TestGetWeather_RefetchAfterTTL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.GetWeather(ctx, "Paris", h.clock.Now()); err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	h.clock.Advance(cache.DefaultTTL - time.Minute)
	if _, err := h.svc.GetWeather(ctx, "Paris", h.clock.Now()); err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if n := h.upstream.Calls(testhelpers.PathCurrent); n != 1 {
		t.Fatalf("current calls within TTL = %d, want 1", n)
	}

	h.clock.Advance(time.Minute)
	if _, err := h.svc.GetWeather(ctx, "Paris", h.clock.Now()); err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if n := h.upstream.Calls(testhelpers.PathCurrent); n != 2 {
		t.Errorf("current calls after TTL = %d, want 2", n)
	}
}

func TestGetWeather_ForecastDay(t *testing.T) {
	h := newHarness(t)

	got, err := h.svc.GetWeather(context.Background(), "Paris", h.clock.Now().AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if got == nil || got.Source != models.SourceForecast {
		t.Fatalf("GetWeather() = %+v, want forecast summary", got)
	}
	if got.Temperature != 19 || got.MainCategory != "Clouds" {
		t.Errorf("aggregated = %+v", got)
	}
	if h.upstream.Calls(testhelpers.PathCurrent) != 0 || h.upstream.Calls(testhelpers.PathForecast) != 1 {
		t.Errorf("expected only the forecast endpoint to be used")
	}
}

func TestGetWeather_UnsupportedDates(t *testing.T) {
	h := newHarness(t)
	for _, offset := range []int{-1, 6, 10} {
		got, err := h.svc.GetWeather(context.Background(), "Paris", h.clock.Now().AddDate(0, 0, offset))
		if err != nil {
			t.Fatalf("offset %d: error = %v", offset, err)
		}
		if got != nil {
			t.Errorf("offset %d: got %+v, want nil", offset, got)
		}
	}
	if n := h.upstream.TotalCalls(); n != 0 {
		t.Errorf("upstream calls = %d, want 0 for unsupported dates", n)
	}
}

func TestGetWeather_NoDataIsNotCached(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 2; i++ {
		got, err := h.svc.GetWeather(context.Background(), "Emptyville", h.clock.Now())
		if err != nil {
			t.Fatalf("GetWeather() error = %v", err)
		}
		if got != nil {
			t.Fatalf("GetWeather() = %+v, want nil", got)
		}
	}
	if n := h.upstream.Calls(testhelpers.PathCurrent); n != 2 {
		t.Errorf("current calls = %d, want 2 (no-data results are not cached)", n)
	}
}

func TestGetWeather_Errors(t *testing.T) {
	tests := []struct {
		name     string
		location string
		status   int
		wantErr  error
	}{
		{"unknown location", "Atlantis", 0, client.ErrInvalidLocation},
		{"rate limited", "Paris", http.StatusTooManyRequests, client.ErrRateLimitExceeded},
		{"bad key", "Paris", http.StatusUnauthorized, client.ErrInvalidCredentials},
		{"upstream down", "Paris", http.StatusBadGateway, client.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.upstream.FailWith(tt.status)

			got, err := h.svc.GetWeather(context.Background(), tt.location, h.clock.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetWeather() error = %v, want %v", err, tt.wantErr)
			}
			if got != nil {
				t.Errorf("GetWeather() = %+v, want nil on error", got)
			}
		})
	}
}

func TestGetWeather_ExactLocationKey(t *testing.T) {
	h := newHarness(t)
	h.upstream.AddLocation("paris", testhelpers.LocationFixture{Lat: 48.85, Lon: 2.35, Current: parisCurrent})
	ctx := context.Background()

	_, _ = h.svc.GetWeather(ctx, "Paris", h.clock.Now())
	_, _ = h.svc.GetWeather(ctx, "paris", h.clock.Now())
	if n := h.upstream.Calls(testhelpers.PathCurrent); n != 2 {
		t.Errorf("current calls = %d, want 2 (keys are case-sensitive)", n)
	}
}

type mockCache struct {
	mu   sync.Mutex
	data map[string]models.WeatherSummary
	err  error
	sets int
}

func (m *mockCache) Get(ctx context.Context, location, date string) (*models.WeatherSummary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[location+"|"+date]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m *mockCache) Set(ctx context.Context, location, date string, s models.WeatherSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = make(map[string]models.WeatherSummary)
	}
	m.data[location+"|"+date] = s
	return nil
}

type mockGeocoder struct{ err error }

func (m mockGeocoder) Resolve(ctx context.Context, location string) (models.Coordinates, error) {
	return models.Coordinates{Lat: 1, Lon: 2}, m.err
}

// blockingFetcher counts fetches and holds each until release is closed.
type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, coords models.Coordinates, date time.Time) (*models.WeatherSummary, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	<-f.release
	return &models.WeatherSummary{Temperature: 18, Source: models.SourceCurrent}, nil
}

func (f *blockingFetcher) ForecastEntries(ctx context.Context, coords models.Coordinates) ([]models.ForecastEntry, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []models.ForecastEntry{{Time: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC), Temperature: 18}}, nil
}

func TestGetWeather_CoalescesConcurrentMisses(t *testing.T) {
	clock := newClock()
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	mc := &mockCache{}
	svc := NewWeatherService(mockGeocoder{}, fetcher, mc, nil, clock.Now)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*models.WeatherSummary, callers)
	errs := make([]error, callers)
	call := func(i int) {
		defer wg.Done()
		results[i], errs[i] = svc.GetWeather(context.Background(), "Oslo", clock.Now())
	}

	wg.Add(1)
	go call(0)
	<-fetcher.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go call(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("upstream fetches = %d, want 1", n)
	}
	for i := range results {
		if errs[i] != nil || results[i] == nil || results[i].Temperature != 18 {
			t.Errorf("caller %d got %+v, %v", i, results[i], errs[i])
		}
	}
	if mc.sets != 1 {
		t.Errorf("cache writes = %d, want 1", mc.sets)
	}
}

func TestGetWeather_CallerCancellation(t *testing.T) {
	clock := newClock()
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewWeatherService(mockGeocoder{}, fetcher, &mockCache{}, nil, clock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.GetWeather(ctx, "Oslo", clock.Now())
		done <- err
	}()
	<-fetcher.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("GetWeather() error = %v, want context.Canceled", err)
	}
	close(fetcher.release)
}

func TestGetWeather_CacheErrorsFallThrough(t *testing.T) {
	clock := newClock()
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	close(fetcher.release)
	svc := NewWeatherService(mockGeocoder{}, fetcher, &mockCache{err: errors.New("cache down")}, nil, clock.Now)

	got, err := svc.GetWeather(context.Background(), "Oslo", clock.Now())
	if err != nil {
		t.Fatalf("GetWeather() error = %v, want cache failure to be ignored", err)
	}
	if got == nil || got.Temperature != 18 {
		t.Errorf("GetWeather() = %+v", got)
	}
}

func TestGetWeather_LogsCacheHitWithCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	clock := newClock()
	mc := &mockCache{data: map[string]models.WeatherSummary{"Oslo|2025-06-10": {Temperature: 5}}}
	svc := NewWeatherService(mockGeocoder{}, nil, mc, zap.NewNop(), clock.Now)

	ctx := observability.WithCorrelationID(context.Background(), zap.New(core), "req-42")
	if _, err := svc.GetWeather(ctx, "Oslo", clock.Now()); err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	hits := logs.FilterMessage("cache hit").All()
	if len(hits) != 1 {
		t.Fatalf("cache hit logs = %d, want 1", len(hits))
	}
	if got := hits[0].ContextMap()["correlation_id"]; got != "req-42" {
		t.Errorf("correlation_id = %v, want req-42", got)
	}
}

func TestGetSuitability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, err := h.svc.GetSuitability(ctx, "Outdoor Sports", "Paris", h.clock.Now())
	if err != nil {
		t.Fatalf("GetSuitability() error = %v", err)
	}
	if got.Score != 100 || got.Label != models.LabelGood {
		t.Errorf("GetSuitability() = %+v, want 100 Good", got)
	}

	got, err = h.svc.GetSuitability(ctx, "Outdoor Sports", "Paris", h.clock.Now().AddDate(0, 0, 9))
	if err != nil {
		t.Fatalf("GetSuitability() error = %v", err)
	}
	if got.Score != 0 || got.Label != models.LabelPoor {
		t.Errorf("GetSuitability() without data = %+v, want 0 Poor", got)
	}

	if _, err := h.svc.GetSuitability(ctx, "Outdoor Sports", "Atlantis", h.clock.Now()); !errors.Is(err, client.ErrInvalidLocation) {
		t.Errorf("GetSuitability() error = %v, want ErrInvalidLocation", err)
	}
}

func TestForecastEntries(t *testing.T) {
	h := newHarness(t)

	entries, err := h.svc.ForecastEntries(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("ForecastEntries() error = %v", err)
	}
	if len(entries) != 48 {
		t.Errorf("len(entries) = %d, want 48", len(entries))
	}

	if _, err := h.svc.ForecastEntries(context.Background(), "Atlantis"); !errors.Is(err, client.ErrInvalidLocation) {
		t.Errorf("ForecastEntries() error = %v, want ErrInvalidLocation", err)
	}
}

func TestForecastEntries_SharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewWeatherService(mockGeocoder{}, fetcher, &mockCache{}, nil, newClock().Now)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.ForecastEntries(firstCtx, "Paris")
		first <- err
	}()
	<-fetcher.started

	type result struct {
		entries []models.ForecastEntry
		err     error
	}
	second := make(chan result, 1)
	go func() {
		entries, err := svc.ForecastEntries(context.Background(), "Paris")
		second <- result{entries, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller error = %v, want context.Canceled", err)
	}
	close(fetcher.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second caller error = %v, want nil", got.err)
	}
	if len(got.entries) != 1 {
		t.Errorf("second caller entries = %d, want 1", len(got.entries))
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("upstream fetches = %d, want 1", n)
	}
}

func TestUnsupportedQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.GetHourlyForecast(ctx, "Paris", h.clock.Now()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("GetHourlyForecast() error = %v, want ErrUnsupported", err)
	}
	if _, err := h.svc.GetHistoricalWeather(ctx, "Paris", h.clock.Now().AddDate(0, 0, -3)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("GetHistoricalWeather() error = %v, want ErrUnsupported", err)
	}
	if n := h.upstream.TotalCalls(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestToday(t *testing.T) {
	clock := newClock()
	svc := NewWeatherService(nil, nil, nil, nil, clock.Now)
	want := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	if got := svc.Today(); !got.Equal(want) {
		t.Errorf("Today() = %v, want %v", got, want)
	}
}
