package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/event-weather-service/internal/observability"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Limiter guards the weather routes. nil disables rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds each weather request. Zero disables it.
	RequestTimeout time.Duration
	// TestingMode exposes /test for synthetic load and error injection.
	TestingMode bool
}

// NewRouter wires every route. Health, metrics and event-types bypass the rate limiter
// and request timeout.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/event-types", h.GetEventTypes).Methods(http.MethodGet)

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods(http.MethodGet)
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods(http.MethodPost)
	}

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/weather/{location}/{date}", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/{location}/{date}/hourly", h.GetHourlyForecast).Methods(http.MethodGet)
	api.HandleFunc("/weather/{location}/{date}/historical", h.GetHistoricalWeather).Methods(http.MethodGet)
	api.HandleFunc("/suitability/{location}/{date}", h.GetSuitability).Methods(http.MethodGet)
	api.HandleFunc("/trend/{location}", h.GetTrend).Methods(http.MethodGet)
	api.HandleFunc("/compare", h.PostCompare).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{location}/{date}", h.GetAlert).Methods(http.MethodGet)
	api.HandleFunc("/alternatives/{location}/{date}", h.GetAlternatives).Methods(http.MethodGet)
	api.HandleFunc("/reminder/{location}/{date}", h.GetReminder).Methods(http.MethodGet)

	return router
}
