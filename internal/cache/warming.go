package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/observability"
)

// WeatherFetcher is implemented by the service layer to fetch weather for a location and date.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type WeatherFetcher interface {
	GetWeather(ctx context.Context, location string, date time.Time) (*models.WeatherSummary, error)
}

// CacheWarmer warms the cache by prefetching today's weather for a list of locations.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
	now     func() time.Time
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger, now func() time.Time) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, now: now}
}

// Warm fetches weather for each location concurrently and populates the cache via the fetcher.
// Returns the joined per-location errors, if any.
func (w *CacheWarmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	today := w.now()
	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.GetWeather(ctx, loc, today); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	observability.CacheWarmingErrorsTotal.Add(float64(len(errs)))
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	return errors.Join(errs...)
}
