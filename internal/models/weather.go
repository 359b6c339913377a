package models

import "time"

// DateLayout is the calendar-date format used for cache keys, routes and daily scores.
const DateLayout = "2006-01-02"

// Source identifies which upstream shape a WeatherSummary was built from.
type Source string

const (
	SourceCurrent  Source = "current"
	SourceForecast Source = "forecast"
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherSummary is the normalized weather shape shared by both upstream endpoints.
// TemperatureMin/Max are set only for aggregated forecasts; FeelsLike and Pressure only
// for current conditions.
type WeatherSummary struct {
	Temperature    float64  `json:"temperature" bson:"temperature"`
	TemperatureMin *float64 `json:"temperatureMin,omitempty" bson:"temperature_min,omitempty"`
	TemperatureMax *float64 `json:"temperatureMax,omitempty" bson:"temperature_max,omitempty"`
	FeelsLike      *float64 `json:"feelsLike,omitempty" bson:"feels_like,omitempty"`
	Humidity       float64  `json:"humidity" bson:"humidity"`
	Pressure       *float64 `json:"pressure,omitempty" bson:"pressure,omitempty"`
	WindSpeed      float64  `json:"windSpeed" bson:"wind_speed"`
	Description    string   `json:"description" bson:"description"`
	MainCategory   string   `json:"mainCategory" bson:"main"`
	Precipitation  float64  `json:"precipitation" bson:"precipitation"`
	Source         Source   `json:"source" bson:"source"`
}

// Clone returns a copy that shares no pointer fields with s.
func (s WeatherSummary) Clone() WeatherSummary {
	s.TemperatureMin = cloneFloat(s.TemperatureMin)
	s.TemperatureMax = cloneFloat(s.TemperatureMax)
	s.FeelsLike = cloneFloat(s.FeelsLike)
	s.Pressure = cloneFloat(s.Pressure)
	return s
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ForecastEntry is one 3-hour slot from the 5-day forecast, already in metric units.
type ForecastEntry struct {
	Time          time.Time `json:"time"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"windSpeed"`
	Description   string    `json:"description"`
	MainCategory  string    `json:"mainCategory"`
	Precipitation float64   `json:"precipitation"`
}

// Date returns the UTC calendar date of the entry.
func (e ForecastEntry) Date() string {
	return e.Time.UTC().Format(DateLayout)
}

// Summary treats the entry as an instant reading.
func (e ForecastEntry) Summary() WeatherSummary {
	return WeatherSummary{
		Temperature:   e.Temperature,
		Humidity:      e.Humidity,
		WindSpeed:     e.WindSpeed,
		Description:   e.Description,
		MainCategory:  e.MainCategory,
		Precipitation: e.Precipitation,
		Source:        SourceForecast,
	}
}

// Label is the qualitative suitability bucket.
type Label string

const (
	LabelPoor Label = "Poor"
	LabelOkay Label = "Okay"
	LabelGood Label = "Good"
)

// SuitabilityResult is a derived score; it is never stored on its own.
type SuitabilityResult struct {
	Label Label `json:"label"`
	Score int   `json:"score"`
}
