package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/event-weather-service/internal/analysis"
	"github.com/kjstillabower/event-weather-service/internal/cache"
	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/config"
	httphandler "github.com/kjstillabower/event-weather-service/internal/http"
	"github.com/kjstillabower/event-weather-service/internal/lifecycle"
	"github.com/kjstillabower/event-weather-service/internal/observability"
	"github.com/kjstillabower/event-weather-service/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	clientCfg := client.Config{
		APIKey:       cfg.WeatherAPIKey,
		BaseURL:      cfg.WeatherAPIBaseURL,
		GeocodingURL: cfg.GeocodingURL,
		Timeout:      cfg.WeatherAPITimeout,
	}
	if cfg.BreakerEnabled {
		clientCfg.BreakerFailureThreshold = cfg.BreakerFailureThreshold
		clientCfg.BreakerTimeout = cfg.BreakerTimeout
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}
	weatherClient, err := client.NewOpenWeatherClient(clientCfg)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), cfg.WeatherAPITimeout+time.Second)
	if err := weatherClient.ValidateAPIKey(startupCtx); err != nil {
		if client.KindOf(err) == client.KindInvalidCredentials {
			startupCancel()
			logger.Fatal("weather API key rejected", zap.Error(err))
		}
		logger.Warn("weather API key check inconclusive", zap.Error(err))
	}

	store, closeStore, err := cache.Open(startupCtx, cache.Options{
		Backend:               cfg.CacheBackend,
		TTL:                   cfg.CacheTTL,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		Redis: cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		MongoURI:        cfg.MongoURI,
		MongoDatabase:   cfg.MongoDatabase,
		MongoCollection: cfg.MongoCollection,
		SQLitePath:      cfg.SQLitePath,
	})
	startupCancel()
	if err != nil {
		logger.Fatal("cache backend", zap.String("backend", cfg.CacheBackend), zap.Error(err))
	}
	weatherCache := cache.NewWeatherCache(store, cfg.CacheBackend, cfg.CacheTTL, nil)
	logger.Info("cache backend ready", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	weatherService := service.NewWeatherService(weatherClient, weatherClient, weatherCache, logger, nil)
	analyzer := analysis.NewAnalyzer(weatherService, cfg.ComparisonConcurrency, logger)

	maintenance, err := cache.NewMaintenance(logger)
	if err != nil {
		logger.Fatal("cache maintenance", zap.Error(err))
	}
	if pruned, err := maintenance.AddPruning(weatherCache, weatherCache.TTL()); err != nil {
		logger.Warn("cache pruning disabled", zap.Error(err))
	} else if pruned {
		logger.Info("cache pruning scheduled", zap.String("backend", weatherCache.Backend()), zap.Duration("interval", weatherCache.TTL()))
	}
	if cfg.WarmingEnabled && len(cfg.WarmingLocations) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger, nil)
		if err := maintenance.AddWarming(warmer, cfg.WarmingLocations, cfg.WarmingInterval); err != nil {
			logger.Warn("cache warming disabled", zap.Error(err))
		} else {
			logger.Info("cache warming scheduled",
				zap.Strings("locations", cfg.WarmingLocations),
				zap.Duration("interval", cfg.WarmingInterval))
		}
	}
	maintenance.Start()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.DegradedWindow)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		KeyValidator:     weatherClient,
		CachePing:        weatherCache.Ping,
		CacheBackend:     weatherCache.Backend(),
	}
	handler := httphandler.NewHandler(weatherService, analyzer, healthConfig, logger, cfg.MaxCompareLocations)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		TestingMode:    cfg.TestingMode,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.BeginShutdown(lifecycle.ReasonSignal, time.Now())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := maintenance.Shutdown(); err != nil {
		logger.Error("cache maintenance shutdown", zap.Error(err))
	}
	if err := closeStore(); err != nil {
		logger.Error("cache close", zap.Error(err))
	}

	logger.Info("shutdown complete")
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
