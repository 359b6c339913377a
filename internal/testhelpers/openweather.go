// Package testhelpers provides a fake OpenWeather upstream for tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/client"
)

// TestAPIKey passes the client's key-length check.
const TestAPIKey = "test-api-key-12345"

// CurrentFixture is a current-conditions reading in metric units.
type CurrentFixture struct {
	Temp        float64
	FeelsLike   float64
	Humidity    float64
	Pressure    float64
	WindSpeed   float64
	Rain1h      float64
	Main        string
	Description string
}

// ForecastFixture is one 3-hour forecast slot.
type ForecastFixture struct {
	Time        time.Time
	Temp        float64
	Humidity    float64
	WindSpeed   float64
	Rain3h      float64
	Snow3h      float64
	Main        string
	Description string
}

// LocationFixture is what the fake knows about one place name.
type LocationFixture struct {
	Lat, Lon float64
	Current  *CurrentFixture
	Forecast []ForecastFixture
}

// FakeOpenWeather serves the geocoding, current and forecast endpoints from fixtures
// and counts calls per endpoint.
type FakeOpenWeather struct {
	Server *httptest.Server

	mu        sync.Mutex
	locations map[string]LocationFixture
	status    int
	calls     map[string]int
}

// Endpoint paths, usable with Calls.
const (
	PathGeocode  = "/geo/1.0/direct"
	PathCurrent  = "/data/2.5/weather"
	PathForecast = "/data/2.5/forecast"
)

// NewFakeOpenWeather starts a fake upstream that is closed when t finishes.
func NewFakeOpenWeather(t testing.TB) *FakeOpenWeather {
	t.Helper()
	f := &FakeOpenWeather{
		locations: make(map[string]LocationFixture),
		calls:     make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// AddLocation registers name with its fixtures. Unregistered names geocode to zero results.
func (f *FakeOpenWeather) AddLocation(name string, loc LocationFixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations[name] = loc
}

// FailWith makes every endpoint answer status. Zero restores normal behaviour.
func (f *FakeOpenWeather) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Calls returns how many requests hit path.
func (f *FakeOpenWeather) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// TotalCalls returns the number of requests across all endpoints.
func (f *FakeOpenWeather) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// BaseURL is the data/2.5 root for client.Config.
func (f *FakeOpenWeather) BaseURL() string { return f.Server.URL + "/data/2.5/" }

// GeocodingURL is the geocoding endpoint for client.Config.
func (f *FakeOpenWeather) GeocodingURL() string { return f.Server.URL + PathGeocode }

// NewClient returns an OpenWeather client pointed at the fake with the given clock.
func (f *FakeOpenWeather) NewClient(t testing.TB, now func() time.Time) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(client.Config{
		APIKey:       TestAPIKey,
		BaseURL:      f.BaseURL(),
		GeocodingURL: f.GeocodingURL(),
		Timeout:      2 * time.Second,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func (f *FakeOpenWeather) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"cod":` + strconv.Itoa(status) + `}`))
		return
	}
	if r.URL.Query().Get("appid") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case PathGeocode:
		f.serveGeocode(w, r)
	case PathCurrent:
		loc, ok := f.byCoords(r)
		if !ok || loc.Current == nil {
			writeJSON(w, map[string]any{})
			return
		}
		writeJSON(w, currentPayload(*loc.Current))
	case PathForecast:
		loc, ok := f.byCoords(r)
		if !ok {
			writeJSON(w, map[string]any{"list": []any{}})
			return
		}
		writeJSON(w, forecastPayload(loc.Forecast))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *FakeOpenWeather) serveGeocode(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("q")
	f.mu.Lock()
	loc, ok := f.locations[name]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, []any{})
		return
	}
	writeJSON(w, []map[string]any{{"name": name, "lat": loc.Lat, "lon": loc.Lon, "country": "XX"}})
}

func (f *FakeOpenWeather) byCoords(r *http.Request) (LocationFixture, bool) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err1 != nil || err2 != nil {
		return LocationFixture{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, loc := range f.locations {
		if loc.Lat == lat && loc.Lon == lon {
			return loc, true
		}
	}
	return LocationFixture{}, false
}

func currentPayload(c CurrentFixture) map[string]any {
	out := map[string]any{
		"main": map[string]any{
			"temp":       c.Temp,
			"feels_like": c.FeelsLike,
			"humidity":   c.Humidity,
			"pressure":   c.Pressure,
		},
		"wind":    map[string]any{"speed": c.WindSpeed},
		"weather": []map[string]any{{"main": c.Main, "description": c.Description}},
	}
	if c.Rain1h > 0 {
		out["rain"] = map[string]any{"1h": c.Rain1h}
	}
	return out
}

func forecastPayload(items []ForecastFixture) map[string]any {
	list := make([]map[string]any, 0, len(items))
	for _, it := range items {
		item := map[string]any{
			"dt":      it.Time.Unix(),
			"main":    map[string]any{"temp": it.Temp, "humidity": it.Humidity},
			"wind":    map[string]any{"speed": it.WindSpeed},
			"weather": []map[string]any{{"main": it.Main, "description": it.Description}},
		}
		if it.Rain3h > 0 {
			item["rain"] = map[string]any{"3h": it.Rain3h}
		}
		if it.Snow3h > 0 {
			item["snow"] = map[string]any{"3h": it.Snow3h}
		}
		list = append(list, item)
	}
	return map[string]any{"list": list}
}

// DailyForecast builds eight 3-hour slots per day for days consecutive UTC days starting
// at start, all with the same reading.
func DailyForecast(start time.Time, days int, reading ForecastFixture) []ForecastFixture {
	var out []ForecastFixture
	day := client.Day(start)
	for d := 0; d < days; d++ {
		for h := 0; h < 24; h += 3 {
			slot := reading
			slot.Time = day.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour)
			out = append(out, slot)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
