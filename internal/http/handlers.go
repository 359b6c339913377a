package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/event-weather-service/internal/analysis"
	"github.com/kjstillabower/event-weather-service/internal/client"
	"github.com/kjstillabower/event-weather-service/internal/lifecycle"
	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/observability"
	"github.com/kjstillabower/event-weather-service/internal/service"
	"github.com/kjstillabower/event-weather-service/internal/suitability"
	"github.com/kjstillabower/event-weather-service/internal/traffic"
	"github.com/kjstillabower/event-weather-service/internal/validation"
)

// KeyValidator confirms the upstream API key is still accepted.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// HealthConfig holds thresholds and dependency checks for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// KeyValidator, when set, is asked on every health check. A rejected key reports degraded.
	KeyValidator KeyValidator
	// CachePing, when set, is called to check cache reachability.
	CachePing    func(ctx context.Context) error
	CacheBackend string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService      *service.WeatherService
	analyzer            *analysis.Analyzer
	healthConfig        *HealthConfig
	logger              *zap.Logger
	maxCompareLocations int
	validate            *validator.Validate

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxCompareLocations caps POST /compare batches; 0 means 20.
func NewHandler(
	weatherService *service.WeatherService,
	analyzer *analysis.Analyzer,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	maxCompareLocations int,
) *Handler {
	if maxCompareLocations <= 0 {
		maxCompareLocations = 20
	}
	return &Handler{
		weatherService:      weatherService,
		analyzer:            analyzer,
		healthConfig:        healthConfig,
		logger:              logger,
		maxCompareLocations: maxCompareLocations,
		validate:            validator.New(validator.WithRequiredStructEnabled()),
	}
}

type weatherResponse struct {
	Location string                 `json:"location"`
	Date     string                 `json:"date"`
	Weather  *models.WeatherSummary `json:"weather"`
}

// GetWeather handles GET /weather/{location}/{date}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	location, date, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}

	summary, err := h.weatherService.GetWeather(r.Context(), location, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	if summary == nil {
		writeError(w, r, http.StatusNotFound, "NO_DATA", "Weather data not available for the requested date")
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse{Location: location, Date: date.Format(models.DateLayout), Weather: summary})
}

// GetHourlyForecast handles GET /weather/{location}/{date}/hourly.
func (h *Handler) GetHourlyForecast(w http.ResponseWriter, r *http.Request) {
	location, date, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}
	entries, err := h.weatherService.GetHourlyForecast(r.Context(), location, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetHistoricalWeather handles GET /weather/{location}/{date}/historical.
func (h *Handler) GetHistoricalWeather(w http.ResponseWriter, r *http.Request) {
	location, date, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}
	summary, err := h.weatherService.GetHistoricalWeather(r.Context(), location, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type suitabilityResponse struct {
	Location    string                   `json:"location"`
	Date        string                   `json:"date"`
	EventType   string                   `json:"eventType"`
	Suitability models.SuitabilityResult `json:"suitability"`
}

// GetSuitability handles GET /suitability/{location}/{date}?event_type=.
func (h *Handler) GetSuitability(w http.ResponseWriter, r *http.Request) {
	location, date, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}
	eventType, ok := h.eventType(w, r)
	if !ok {
		return
	}

	result, err := h.weatherService.GetSuitability(r.Context(), eventType, location, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, suitabilityResponse{
		Location:    location,
		Date:        date.Format(models.DateLayout),
		EventType:   eventType,
		Suitability: result,
	})
}

type trendResponse struct {
	Location  string `json:"location"`
	EventType string `json:"eventType"`
	analysis.TrendResult
}

// GetTrend handles GET /trend/{location}?event_type=.
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}
	eventType, ok := h.eventType(w, r)
	if !ok {
		return
	}

	result, err := h.analyzer.Trend(r.Context(), location, eventType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, trendResponse{Location: location, EventType: eventType, TrendResult: result})
}

type compareRequest struct {
	Locations []string `json:"locations" validate:"required,min=1,dive,required"`
	Date      string   `json:"date" validate:"required,datetime=2006-01-02"`
	EventType string   `json:"event_type" validate:"required"`
}

type compareResponse struct {
	Date      string                `json:"date"`
	EventType string                `json:"eventType"`
	Results   []analysis.Comparison `json:"results"`
}

// PostCompare handles POST /compare. Per-location failures are reported inline; the
// request itself only fails on invalid input.
func (h *Handler) PostCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with locations, date and event_type")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", validationMessage(err))
		return
	}
	if len(req.Locations) > h.maxCompareLocations {
		writeError(w, r, http.StatusBadRequest, "TOO_MANY_LOCATIONS", "too many locations in one comparison")
		return
	}

	locations := make([]string, len(req.Locations))
	for i, raw := range req.Locations {
		loc, err := validation.ValidateLocation(raw, validation.LocationMinLength, validation.LocationMaxLength)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error()+": "+raw)
			return
		}
		locations[i] = loc
	}
	date, err := validation.ValidateDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return
	}
	eventType, err := validation.ValidateEventType(req.EventType)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_EVENT_TYPE", err.Error())
		return
	}

	results := h.analyzer.Compare(r.Context(), locations, date, eventType)
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, compareResponse{Date: date.Format(models.DateLayout), EventType: eventType, Results: results})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "datetime":
			msgs = append(msgs, "date must be YYYY-MM-DD")
		case "min":
			msgs = append(msgs, "at least one location is required")
		default:
			msgs = append(msgs, strings.ToLower(fe.Field())+" is required")
		}
	}
	return strings.Join(msgs, "; ")
}

// GetAlert handles GET /alerts/{location}/{date}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	location, date, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}

	alert, err := h.analyzer.ChangeAlert(r.Context(), location, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	if alert.Status == analysis.StatusNoData {
		writeJSON(w, http.StatusNotFound, alert)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type alternativesResponse struct {
	Location     string                 `json:"location"`
	OriginalDate string                 `json:"originalDate"`
	EventType    string                 `json:"eventType"`
	Alternatives []analysis.Alternative `json:"alternatives"`
}

// GetAlternatives handles GET /alternatives/{location}/{date}?event_type=.
func (h *Handler) GetAlternatives(w http.ResponseWriter, r *http.Request) {
	location, date, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}
	eventType, ok := h.eventType(w, r)
	if !ok {
		return
	}

	alts, err := h.analyzer.Alternatives(r.Context(), location, eventType, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if alts == nil {
		alts = []analysis.Alternative{}
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, alternativesResponse{
		Location:     location,
		OriginalDate: date.Format(models.DateLayout),
		EventType:    eventType,
		Alternatives: alts,
	})
}

// GetReminder handles GET /reminder/{location}/{date}?name=.
func (h *Handler) GetReminder(w http.ResponseWriter, r *http.Request) {
	location, date, ok := h.locationAndDate(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "Event"
	}

	reminder, err := h.analyzer.ReminderSummary(r.Context(), name, location, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	if reminder.Status == "no_data" {
		writeJSON(w, http.StatusNotFound, reminder)
		return
	}
	writeJSON(w, http.StatusOK, reminder)
}

// GetEventTypes handles GET /event-types.
func (h *Handler) GetEventTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"eventTypes": suitability.EventTypes()})
}

func (h *Handler) location(w http.ResponseWriter, r *http.Request) (string, bool) {
	loc, err := validation.ValidateLocation(mux.Vars(r)["location"], validation.LocationMinLength, validation.LocationMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return "", false
	}
	return loc, true
}

func (h *Handler) locationAndDate(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	loc, ok := h.location(w, r)
	if !ok {
		return "", time.Time{}, false
	}
	date, err := validation.ValidateDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return "", time.Time{}, false
	}
	return loc, date, true
}

func (h *Handler) eventType(w http.ResponseWriter, r *http.Request) (string, bool) {
	et, err := validation.ValidateEventType(r.URL.Query().Get("event_type"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_EVENT_TYPE", err.Error())
		return "", false
	}
	return et, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing(r.Context()) == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]any{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && h.healthConfig.CacheBackend != "" {
		resp["cacheBackend"] = h.healthConfig.CacheBackend
	}
	if d, ok := lifecycle.Current(); ok {
		resp["shuttingDownSince"] = d.Since.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key rejected > error-rate breach > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if d, ok := lifecycle.Current(); ok {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, d.Reason}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.KeyValidator != nil {
		if err := h.healthConfig.KeyValidator.ValidateAPIKey(ctx); err != nil && client.KindOf(err) == client.KindInvalidCredentials {
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		if traffic.Snapshot(h.healthConfig.DegradedWindow).ErrorPct() >= float64(h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps service and upstream errors to responses. Credential faults are
// logged at error; they need an operator, not a retry.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	switch {
	case errors.Is(err, service.ErrUnsupported):
		writeError(w, r, http.StatusBadRequest, "UNSUPPORTED", "This query is not supported by the current weather provider")
		return
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		traffic.RecordError()
		logger.Debug("request deadline exceeded", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Timed out waiting for weather data")
		return
	}

	switch client.KindOf(err) {
	case client.KindInvalidLocation:
		traffic.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location could not be resolved")
	case client.KindRateLimitExceeded:
		traffic.RecordError()
		logger.Debug("upstream rate limited", zap.Error(err))
		writeError(w, r, http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", "Weather provider rate limit reached, retry later")
	case client.KindInvalidCredentials:
		traffic.RecordError()
		logger.Error("weather API rejected credentials", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Weather provider is misconfigured")
	default:
		traffic.RecordError()
		logger.Debug("upstream error", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
}
