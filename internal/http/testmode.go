package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/event-weather-service/internal/lifecycle"
	"github.com/kjstillabower/event-weather-service/internal/traffic"
)

func (h *Handler) degradedWindow() time.Duration {
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		return h.healthConfig.DegradedWindow
	}
	return 60 * time.Second
}

// GetTestStatus handles GET /test. Returns the traffic counters health decisions use.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := h.degradedWindow()
	c := traffic.Snapshot(window)
	writeJSON(w, http.StatusOK, map[string]any{
		"total_requests_in_window":  c.Requests(),
		"denied_requests_in_window": c.Denied,
		"errors_in_window":          c.Errors,
		"error_pct":                 c.ErrorPct(),
		"window_length":             window.String(),
		"state":                     h.computeHealthStatus(r.Context()).status,
	})
}

// PostTestAction handles POST /test/{action} for load, error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "load":
		n := countFromBody(r, 10)
		traffic.RecordSuccessN(n)
		h.writeTestResult(w, r, action, "Recorded "+strconv.Itoa(n)+" successful requests")
	case "error":
		n := countFromBody(r, 1)
		traffic.RecordErrorN(n)
		h.writeTestResult(w, r, action, "Recorded "+strconv.Itoa(n)+" errors")
	case "reset":
		traffic.Reset()
		lifecycle.Resume()
		h.writeTestResult(w, r, action, "All simulated state cleared")
	case "shutdown":
		lifecycle.BeginShutdown(lifecycle.ReasonTestMode, time.Now())
		h.writeTestResult(w, r, action, "Shutting-down flag set")
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

func countFromBody(r *http.Request, def int) int {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		return def
	}
	return body.Count
}

func (h *Handler) writeTestResult(w http.ResponseWriter, r *http.Request, action, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"action":  action,
		"message": msg,
		"state":   h.computeHealthStatus(r.Context()).status,
	})
}
