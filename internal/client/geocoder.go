package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

// Geocoder resolves a free-text location to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, location string) (models.Coordinates, error)
}

type geocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

// Resolve returns the first (highest-confidence) geocoding match.
// Zero matches yield ErrInvalidLocation.
func (c *OpenWeatherClient) Resolve(ctx context.Context, location string) (models.Coordinates, error) {
	var results []geocodeResult
	params := url.Values{"q": {location}, "limit": {"1"}}
	if err := c.getJSON(ctx, endpointGeocode, c.geocodingURL, params, &results); err != nil {
		return models.Coordinates{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(results) == 0 {
		return models.Coordinates{}, fmt.Errorf("geocode %q: %w", location,
			newError(KindInvalidLocation, 0, fmt.Errorf("no coordinates found")))
	}
	return models.Coordinates{Lat: results[0].Lat, Lon: results[0].Lon}, nil
}
