package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kjstillabower/event-weather-service/internal/observability"
)

const (
	defaultBaseURL      = "https://api.openweathermap.org/data/2.5/"
	defaultGeocodingURL = "https://api.openweathermap.org/geo/1.0/direct"
)

// Upstream endpoint labels, also used as metric label values.
const (
	endpointGeocode  = "geocode"
	endpointCurrent  = "weather"
	endpointForecast = "forecast"
)

// Config configures the OpenWeather client. Zero values fall back to package defaults.
type Config struct {
	APIKey       string
	BaseURL      string // data/2.5 root; "weather" and "forecast" are appended
	GeocodingURL string
	Timeout      time.Duration

	// Breaker trips after BreakerFailureThreshold consecutive transport/5xx failures
	// and rejects calls for BreakerTimeout. Disabled when BreakerFailureThreshold is 0.
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration

	// Now supplies the reference clock for endpoint selection. Defaults to time.Now.
	Now func() time.Time
}

// OpenWeatherClient talks to the OpenWeather geocoding, current-conditions and
// 5-day/3-hour forecast endpoints. It implements both Geocoder and Fetcher.
// Calls are never retried; failures surface immediately as *Error.
type OpenWeatherClient struct {
	apiKey       string
	baseURL      string
	geocodingURL string
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	now          func() time.Time
}

// NewOpenWeatherClient validates cfg and builds a client.
func NewOpenWeatherClient(cfg Config) (*OpenWeatherClient, error) {
	if cfg.APIKey == "" {
		return nil, newError(KindInvalidCredentials, 0, errors.New("API key is required"))
	}
	if len(cfg.APIKey) < 10 {
		return nil, newError(KindInvalidCredentials, 0, errors.New("API key appears invalid (too short)"))
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	geocodingURL := cfg.GeocodingURL
	if geocodingURL == "" {
		geocodingURL = defaultGeocodingURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &OpenWeatherClient{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		geocodingURL: geocodingURL,
		client:       &http.Client{Timeout: timeout},
		now:          now,
	}
	if cfg.BreakerFailureThreshold > 0 {
		c.breaker = newBreaker(cfg.BreakerFailureThreshold, cfg.BreakerTimeout)
	}
	return c, nil
}

func newBreaker(threshold uint32, timeout time.Duration) *gobreaker.CircuitBreaker[*http.Response] {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.BreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		},
	})
}

// getJSON issues one GET against rawURL with params plus the API key and decodes the
// body into dst. Status codes map to typed errors.
func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint, rawURL string, params url.Values, dst any) error {
	start := time.Now()

	req, err := c.buildRequest(ctx, rawURL, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return newError(KindUpstreamUnavailable, 0, fmt.Errorf("build request: %w", err))
	}

	resp, err := c.execute(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		var typed *Error
		if errors.As(err, &typed) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return newError(KindUpstreamUnavailable, 0, fmt.Errorf("request timeout: %w", err))
		}
		return newError(KindUpstreamUnavailable, 0, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(KindUpstreamUnavailable, resp.StatusCode, fmt.Errorf("read response body: %w", err))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return newError(KindUpstreamUnavailable, resp.StatusCode, fmt.Errorf("parse response: %w", err))
	}
	return nil
}

// errCallerGone marks a failure caused by the caller's context ending, not the upstream.
var errCallerGone = errors.New("caller context done")

// execute runs the request through the breaker when one is configured. Only transport
// failures and 5xx responses count against the breaker; a cancelled or expired caller
// context does not.
func (c *OpenWeatherClient) execute(req *http.Request) (*http.Response, error) {
	do := func() (*http.Response, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerGone, err)
			}
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, newError(KindUpstreamUnavailable, resp.StatusCode, nil)
		}
		return resp, nil
	}
	if c.breaker == nil {
		return do()
	}
	resp, err := c.breaker.Execute(do)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, newError(KindUpstreamUnavailable, 0, err)
	}
	return resp, err
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("appid", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return newError(KindInvalidCredentials, resp.StatusCode, nil)
	case http.StatusNotFound:
		return newError(KindInvalidLocation, resp.StatusCode, nil)
	case http.StatusTooManyRequests:
		return newError(KindRateLimitExceeded, resp.StatusCode, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(KindUpstreamUnavailable, resp.StatusCode, nil)
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey performs a cheap geocoding lookup to confirm the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out []geocodeResult
	params := url.Values{"q": {"London"}, "limit": {"1"}}
	if err := c.getJSON(ctx, endpointGeocode, c.geocodingURL, params, &out); err != nil {
		return fmt.Errorf("validate API key: %w", err)
	}
	return nil
}
