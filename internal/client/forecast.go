package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

// ForecastHorizonDays is how far ahead the 5-day/3-hour endpoint reaches.
const ForecastHorizonDays = 5

// Fetcher retrieves normalized weather for coordinates.
type Fetcher interface {
	// Fetch returns nil, nil when the date is unsupported or the upstream has no usable data.
	Fetch(ctx context.Context, coords models.Coordinates, date time.Time) (*models.WeatherSummary, error)
	// ForecastEntries returns the raw 3-hour entries of the 5-day forecast.
	ForecastEntries(ctx context.Context, coords models.Coordinates) ([]models.ForecastEntry, error)
}

// Endpoint is the upstream query shape chosen for a target date.
type Endpoint string

const (
	EndpointCurrent     Endpoint = endpointCurrent
	EndpointForecast    Endpoint = endpointForecast
	EndpointUnsupported Endpoint = ""
)

// SelectEndpoint picks the upstream endpoint for target relative to today. Both are
// compared as UTC calendar dates.
func SelectEndpoint(today, target time.Time) Endpoint {
	t0 := Day(today)
	t := Day(target)
	switch {
	case t.Equal(t0):
		return EndpointCurrent
	case t.After(t0) && !t.After(t0.AddDate(0, 0, ForecastHorizonDays)):
		return EndpointForecast
	}
	return EndpointUnsupported
}

// Day truncates t to midnight UTC of its UTC calendar date.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the client's reference calendar date.
func (c *OpenWeatherClient) Today() time.Time {
	return Day(c.now())
}

type precipBlock struct {
	OneH   float64 `json:"1h"`
	ThreeH float64 `json:"3h"`
}

type conditionBlock struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type currentResponse struct {
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  float64  `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []conditionBlock `json:"weather"`
	Rain    *precipBlock     `json:"rain"`
	Snow    *precipBlock     `json:"snow"`
}

type forecastItem struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []conditionBlock `json:"weather"`
	Rain    *precipBlock     `json:"rain"`
	Snow    *precipBlock     `json:"snow"`
}

type forecastResponse struct {
	List []forecastItem `json:"list"`
}

func coordParams(coords models.Coordinates) url.Values {
	return url.Values{
		"lat":   {strconv.FormatFloat(coords.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(coords.Lon, 'f', -1, 64)},
		"units": {"metric"},
	}
}

// Fetch implements Fetcher.
func (c *OpenWeatherClient) Fetch(ctx context.Context, coords models.Coordinates, date time.Time) (*models.WeatherSummary, error) {
	switch SelectEndpoint(c.now(), date) {
	case EndpointCurrent:
		return c.fetchCurrent(ctx, coords)
	case EndpointForecast:
		entries, err := c.ForecastEntries(ctx, coords)
		if err != nil {
			return nil, err
		}
		return AggregateDay(entries, Day(date).Format(models.DateLayout)), nil
	}
	return nil, nil
}

func (c *OpenWeatherClient) fetchCurrent(ctx context.Context, coords models.Coordinates) (*models.WeatherSummary, error) {
	var resp currentResponse
	if err := c.getJSON(ctx, endpointCurrent, c.baseURL+endpointCurrent, coordParams(coords), &resp); err != nil {
		return nil, fmt.Errorf("current weather: %w", err)
	}
	return mapCurrent(resp), nil
}

// mapCurrent converts a current-conditions payload. A payload with no temperature,
// no wind and no condition has nothing usable and maps to nil.
func mapCurrent(resp currentResponse) *models.WeatherSummary {
	hasTemp := resp.Main != nil && resp.Main.Temp != nil
	if !hasTemp && resp.Wind == nil && len(resp.Weather) == 0 {
		return nil
	}

	s := &models.WeatherSummary{Source: models.SourceCurrent}
	if resp.Main != nil {
		if resp.Main.Temp != nil {
			s.Temperature = *resp.Main.Temp
		}
		s.FeelsLike = resp.Main.FeelsLike
		s.Humidity = resp.Main.Humidity
		s.Pressure = resp.Main.Pressure
	}
	if resp.Wind != nil {
		s.WindSpeed = resp.Wind.Speed
	}
	if len(resp.Weather) > 0 {
		s.MainCategory = resp.Weather[0].Main
		s.Description = resp.Weather[0].Description
	}
	s.Precipitation = firstPositive(resp.Rain, resp.Snow, oneHour)
	return s
}

// ForecastEntries implements Fetcher.
func (c *OpenWeatherClient) ForecastEntries(ctx context.Context, coords models.Coordinates) ([]models.ForecastEntry, error) {
	var resp forecastResponse
	if err := c.getJSON(ctx, endpointForecast, c.baseURL+endpointForecast, coordParams(coords), &resp); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	entries := make([]models.ForecastEntry, 0, len(resp.List))
	for _, item := range resp.List {
		e := models.ForecastEntry{
			Time:          time.Unix(item.Dt, 0).UTC(),
			Temperature:   item.Main.Temp,
			Humidity:      item.Main.Humidity,
			WindSpeed:     item.Wind.Speed,
			Precipitation: firstPositive(item.Rain, item.Snow, threeHour),
		}
		if len(item.Weather) > 0 {
			e.MainCategory = item.Weather[0].Main
			e.Description = item.Weather[0].Description
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func oneHour(p *precipBlock) float64   { return p.OneH }
func threeHour(p *precipBlock) float64 { return p.ThreeH }

// firstPositive returns rain's amount when positive, otherwise snow's.
// Each reading contributes at most one of the two.
func firstPositive(rain, snow *precipBlock, pick func(*precipBlock) float64) float64 {
	if rain != nil {
		if v := pick(rain); v > 0 {
			return v
		}
	}
	if snow != nil {
		return pick(snow)
	}
	return 0
}

// AggregateDay folds the entries falling on date (YYYY-MM-DD, UTC) into one daily summary.
// Returns nil when no entry falls on that date.
func AggregateDay(entries []models.ForecastEntry, date string) *models.WeatherSummary {
	var (
		n                                        int
		sumTemp, sumHumidity, sumWind, sumPrecip float64
		minTemp, maxTemp                         float64
		descriptions, categories                 []string
	)
	for _, e := range entries {
		if e.Date() != date {
			continue
		}
		if n == 0 || e.Temperature < minTemp {
			minTemp = e.Temperature
		}
		if n == 0 || e.Temperature > maxTemp {
			maxTemp = e.Temperature
		}
		n++
		sumTemp += e.Temperature
		sumHumidity += e.Humidity
		sumWind += e.WindSpeed
		sumPrecip += e.Precipitation
		descriptions = append(descriptions, e.Description)
		categories = append(categories, e.MainCategory)
	}
	if n == 0 {
		return nil
	}

	count := float64(n)
	return &models.WeatherSummary{
		Temperature:    sumTemp / count,
		TemperatureMin: &minTemp,
		TemperatureMax: &maxTemp,
		Humidity:       sumHumidity / count,
		WindSpeed:      sumWind / count,
		Precipitation:  sumPrecip,
		Description:    mode(descriptions),
		MainCategory:   mode(categories),
		Source:         models.SourceForecast,
	}
}

// mode returns the most frequent value; ties go to the value seen first.
func mode(values []string) string {
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if c := counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best
}
