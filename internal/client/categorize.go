package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (upstreamErrorsTotal, httpErrorsTotal).
const (
	ErrorCategoryTimeout            ErrorCategory = "timeout"
	ErrorCategoryNetwork            ErrorCategory = "network"
	ErrorCategoryInvalidCredentials ErrorCategory = "invalid_credentials"
	ErrorCategoryInvalidLocation    ErrorCategory = "invalid_location"
	ErrorCategoryRateLimited        ErrorCategory = "rate_limited"
	ErrorCategoryUpstream           ErrorCategory = "upstream_unavailable"
	ErrorCategoryParsing            ErrorCategory = "parsing"
	ErrorCategoryCache              ErrorCategory = "cache"
	ErrorCategoryUnknown            ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
// Typed kinds win over message heuristics, except that a timeout inside an
// upstream_unavailable error is reported as a timeout.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	switch KindOf(err) {
	case KindInvalidCredentials:
		return ErrorCategoryInvalidCredentials
	case KindInvalidLocation:
		return ErrorCategoryInvalidLocation
	case KindRateLimitExceeded:
		return ErrorCategoryRateLimited
	case KindUpstreamUnavailable:
		if strings.Contains(err.Error(), "parse") {
			return ErrorCategoryParsing
		}
		return ErrorCategoryUpstream
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return ErrorCategoryNetwork
	case strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal"):
		return ErrorCategoryParsing
	case strings.Contains(errStr, "cache"):
		return ErrorCategoryCache
	}
	return ErrorCategoryUnknown
}
