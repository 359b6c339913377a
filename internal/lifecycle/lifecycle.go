// Package lifecycle holds the process-wide drain state read by /health.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// Drain reasons.
const (
	ReasonSignal   = "signal"
	ReasonTestMode = "test_mode"
)

// Drain records why and when the service stopped taking new traffic.
type Drain struct {
	Reason string
	Since  time.Time
}

var drain atomic.Pointer[Drain]

// BeginShutdown marks the service as draining. The first call wins; later calls keep
// the original reason and start time.
func BeginShutdown(reason string, now time.Time) {
	drain.CompareAndSwap(nil, &Drain{Reason: reason, Since: now})
}

// Resume clears the draining state. Test mode uses it to undo a simulated shutdown.
func Resume() {
	drain.Store(nil)
}

// IsShuttingDown reports whether the service is draining.
func IsShuttingDown() bool {
	return drain.Load() != nil
}

// Current returns the active drain, if any.
func Current() (Drain, bool) {
	d := drain.Load()
	if d == nil {
		return Drain{}, false
	}
	return *d, true
}
