package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/observability"
	"github.com/kjstillabower/event-weather-service/internal/suitability"
)

// ErrUnsupported marks query shapes the service declares unsupported (hourly, historical).
var ErrUnsupported = errors.New("unsupported weather query")

// Cache is the freshness-aware store the service reads before fetching.
type Cache interface {
	Get(ctx context.Context, location, date string) (*models.WeatherSummary, bool, error)
	Set(ctx context.Context, location, date string, summary models.WeatherSummary) error
}

// WeatherService orchestrates weather retrieval using the cache-aside pattern:
// cache, then geocode and fetch on a miss, then write back.
// Concurrent misses for the same (location, date) share one upstream fetch.
type WeatherService struct {
	geocoder client.Geocoder
	fetcher  client.Fetcher
	cache    Cache
	logger   *zap.Logger
	now      func() time.Time
	group    singleflight.Group
}

// NewWeatherService creates a WeatherService. logger and now may be nil.
func NewWeatherService(geocoder client.Geocoder, fetcher client.Fetcher, cache Cache, logger *zap.Logger, now func() time.Time) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &WeatherService{
		geocoder: geocoder,
		fetcher:  fetcher,
		cache:    cache,
		logger:   logger,
		now:      now,
	}
}

// Today returns the reference calendar date (UTC midnight).
func (s *WeatherService) Today() time.Time {
	return client.Day(s.now())
}

// GetWeather returns the summary for location on date. It returns (nil, nil) when the
// date is outside the supported window or the upstream has no usable data.
func (s *WeatherService) GetWeather(ctx context.Context, location string, date time.Time) (*models.WeatherSummary, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	day := client.Day(date)
	dateKey := day.Format(models.DateLayout)
	start := time.Now()

	if client.SelectEndpoint(s.now(), day) == client.EndpointUnsupported {
		logger.Debug("date outside forecast window", zap.String("location", location), zap.String("date", dateKey))
		return nil, nil
	}

	cached, ok, err := s.cache.Get(ctx, location, dateKey)
	if err != nil {
		logger.Warn("cache get failed", zap.String("location", location), zap.String("date", dateKey), zap.Error(err))
	} else if ok {
		logger.Debug("cache hit", zap.String("location", location), zap.String("date", dateKey))
		return cached, nil
	}

	logger.Debug("cache miss, fetching upstream", zap.String("location", location), zap.String("date", dateKey))

	ch := s.group.DoChan(location+"::"+dateKey, func() (any, error) {
		// Detached from the first caller's cancellation; the HTTP client timeout bounds it.
		return s.fetchAndStore(context.WithoutCancel(ctx), location, day, dateKey)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch weather for %s on %s: %w", location, dateKey, ctx.Err())
	case res = <-ch:
	}
	if res.Shared {
		observability.CoalescedFetchesTotal.Inc()
	}
	if res.Err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(string(client.CategorizeError(res.Err))).Inc()
		return nil, fmt.Errorf("fetch weather for %s on %s: %w", location, dateKey, res.Err)
	}

	summary, _ := res.Val.(*models.WeatherSummary)
	logger.Debug("weather served",
		zap.String("location", location),
		zap.String("date", dateKey),
		zap.Bool("cached", false),
		zap.Bool("no_data", summary == nil),
		zap.Duration("duration", time.Since(start)))
	return summary, nil
}

func (s *WeatherService) fetchAndStore(ctx context.Context, location string, day time.Time, dateKey string) (*models.WeatherSummary, error) {
	coords, err := s.geocoder.Resolve(ctx, location)
	if err != nil {
		return nil, err
	}
	summary, err := s.fetcher.Fetch(ctx, coords, day)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, nil
	}
	if err := s.cache.Set(ctx, location, dateKey, *summary); err != nil {
		observability.LoggerFromContext(ctx, s.logger).Warn("cache set failed",
			zap.String("location", location), zap.String("date", dateKey), zap.Error(err))
	}
	return summary, nil
}

// ForecastEntries returns the raw 3-hour forecast entries for location. Not cached.
// Concurrent calls for one location share a fetch; each caller still returns on its own ctx.
func (s *WeatherService) ForecastEntries(ctx context.Context, location string) ([]models.ForecastEntry, error) {
	ch := s.group.DoChan("forecast::"+location, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		coords, err := s.geocoder.Resolve(detached, location)
		if err != nil {
			return nil, err
		}
		return s.fetcher.ForecastEntries(detached, coords)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("forecast for %s: %w", location, ctx.Err())
	case res = <-ch:
	}
	if res.Shared {
		observability.CoalescedFetchesTotal.Inc()
	}
	if res.Err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(string(client.CategorizeError(res.Err))).Inc()
		return nil, fmt.Errorf("forecast for %s: %w", location, res.Err)
	}
	entries, _ := res.Val.([]models.ForecastEntry)
	return entries, nil
}

// GetSuitability scores the weather for location on date. Missing data scores (Poor, 0).
func (s *WeatherService) GetSuitability(ctx context.Context, eventType, location string, date time.Time) (models.SuitabilityResult, error) {
	summary, err := s.GetWeather(ctx, location, date)
	if err != nil {
		return models.SuitabilityResult{}, err
	}
	result := suitability.Score(eventType, summary)
	observability.SuitabilityScores.WithLabelValues(suitability.MetricLabel(eventType)).Observe(float64(result.Score))
	return result, nil
}

// GetHourlyForecast is declared unsupported; it never touches the cache or upstream.
func (s *WeatherService) GetHourlyForecast(ctx context.Context, location string, date time.Time) ([]models.WeatherSummary, error) {
	return nil, fmt.Errorf("hourly forecast for %s: %w", location, ErrUnsupported)
}

// GetHistoricalWeather is declared unsupported; it never touches the cache or upstream.
func (s *WeatherService) GetHistoricalWeather(ctx context.Context, location string, date time.Time) (*models.WeatherSummary, error) {
	return nil, fmt.Errorf("historical weather for %s: %w", location, ErrUnsupported)
}
