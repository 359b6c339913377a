// Package analysis derives trends, rankings and change alerts from weather summaries.
// Its operations never fail on a single bad input inside a batch; per-item failures are
// reported alongside the item.
package analysis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

// ErrNoData marks an item for which the upstream had nothing for the requested date.
var ErrNoData = errors.New("weather data not available for the requested date")

// WeatherSource is the slice of the weather service the analyzer needs.
type WeatherSource interface {
	GetWeather(ctx context.Context, location string, date time.Time) (*models.WeatherSummary, error)
	ForecastEntries(ctx context.Context, location string) ([]models.ForecastEntry, error)
	Today() time.Time
}

// Analyzer runs multi-date and multi-location analyses over a WeatherSource.
type Analyzer struct {
	source      WeatherSource
	concurrency int
	logger      *zap.Logger
}

// NewAnalyzer creates an Analyzer. concurrency caps parallel fetches in Compare;
// values below 1 mean sequential.
func NewAnalyzer(source WeatherSource, concurrency int, logger *zap.Logger) *Analyzer {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{source: source, concurrency: concurrency, logger: logger}
}
