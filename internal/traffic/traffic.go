// Package traffic keeps a sliding log of request outcomes. Health uses the error share
// of weather requests; the rate-limit gauges use the request and denial totals.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one finished request.
type Outcome uint8

const (
	Success Outcome = iota
	Error
	Denied
)

// DefaultRetention bounds how far back a Tracker remembers outcomes.
const DefaultRetention = 5 * time.Minute

// Counts is a snapshot of outcomes within a window.
type Counts struct {
	Successes int
	Errors    int
	Denied    int
}

// Requests is every outcome, denials included.
func (c Counts) Requests() int { return c.Successes + c.Errors + c.Denied }

// ErrorPct is errors as a percentage of served requests. Denials are not served and
// do not count. Zero when nothing was served.
func (c Counts) ErrorPct() float64 {
	served := c.Successes + c.Errors
	if served == 0 {
		return 0
	}
	return float64(c.Errors) * 100 / float64(served)
}

var defaultTracker = NewTracker(DefaultRetention, nil)

// RecordSuccess records a served request.
func RecordSuccess() { defaultTracker.Record(Success, 1) }

// RecordError records a request that failed on the upstream or its deadline.
func RecordError() { defaultTracker.Record(Error, 1) }

// RecordDenied records a rate-limit denial.
func RecordDenied() { defaultTracker.Record(Denied, 1) }

// RecordSuccessN records n successes at once, for synthetic load.
func RecordSuccessN(n int) { defaultTracker.Record(Success, n) }

// RecordErrorN records n errors at once, for synthetic error injection.
func RecordErrorN(n int) { defaultTracker.Record(Error, n) }

// Snapshot returns the default tracker's counts within window.
func Snapshot(window time.Duration) Counts { return defaultTracker.Snapshot(window) }

// RequestCount returns all outcomes within window.
func RequestCount(window time.Duration) int { return defaultTracker.Snapshot(window).Requests() }

// DenialCount returns denials within window.
func DenialCount(window time.Duration) int { return defaultTracker.Snapshot(window).Denied }

// ErrorRate returns (errors, errors+successes) within window.
func ErrorRate(window time.Duration) (errors, total int) {
	c := defaultTracker.Snapshot(window)
	return c.Errors, c.Errors + c.Successes
}

// Reset clears the default tracker. Tests and the /test/reset action use it.
func Reset() { defaultTracker.Reset() }

type event struct {
	at      time.Time
	outcome Outcome
	n       int
}

// Tracker is a time-ordered log of outcomes, pruned to its retention on every write.
type Tracker struct {
	mu        sync.Mutex
	events    []event
	retention time.Duration
	now       func() time.Time
}

// NewTracker returns a tracker. A non-positive retention falls back to DefaultRetention;
// a nil now to time.Now.
func NewTracker(retention time.Duration, now func() time.Time) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{retention: retention, now: now}
}

// Record appends n outcomes stamped now. n <= 0 is ignored.
func (t *Tracker) Record(o Outcome, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o, n: n})
	t.pruneLocked(now)
}

// Snapshot counts outcomes no older than window.
func (t *Tracker) Snapshot(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)

	var c Counts
	for i := len(t.events) - 1; i >= 0; i-- {
		e := t.events[i]
		if e.at.Before(cutoff) {
			break
		}
		switch e.outcome {
		case Success:
			c.Successes += e.n
		case Error:
			c.Errors += e.n
		case Denied:
			c.Denied += e.n
		}
	}
	return c
}

// Reset drops every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than the retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for i < len(t.events) && t.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
