package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/event-weather-service/internal/models"
	"github.com/kjstillabower/event-weather-service/internal/observability"
)

// DefaultTTL is how long a stored summary stays valid.
const DefaultTTL = 3 * time.Hour

// Backend names accepted by configuration.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
	BackendMongo     = "mongo"
	BackendSQLite    = "sqlite"
)

// Key identifies one cached summary. Location is kept exactly as the caller supplied it.
type Key struct {
	Location string
	Date     string // YYYY-MM-DD
}

func (k Key) String() string {
	return k.Location + "::" + k.Date
}

// Entry is a stored summary plus the time it was written.
type Entry struct {
	Summary   models.WeatherSummary `json:"summary" bson:"summary"`
	Timestamp time.Time             `json:"timestamp" bson:"timestamp"`
}

// Store is a keyed persistence backend holding at most one entry per key.
// Get returns (zero, false, nil) on a miss. Upsert replaces any existing entry.
// Stores do not judge freshness; WeatherCache does.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Upsert(ctx context.Context, key Key, entry Entry) error
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WeatherCache applies the freshness rule on top of a Store: an entry is served only
// while now - Timestamp < ttl.
type WeatherCache struct {
	store   Store
	backend string
	ttl     time.Duration
	now     func() time.Time
}

// NewWeatherCache wraps store. A non-positive ttl falls back to DefaultTTL; a nil now to time.Now.
func NewWeatherCache(store Store, backend string, ttl time.Duration, now func() time.Time) *WeatherCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &WeatherCache{store: store, backend: backend, ttl: ttl, now: now}
}

// Get returns the stored summary for (location, date) if present and fresh. The result
// is a copy; mutating it never reaches the store.
func (c *WeatherCache) Get(ctx context.Context, location, date string) (*models.WeatherSummary, bool, error) {
	entry, ok, err := c.store.Get(ctx, Key{Location: location, Date: date})
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return nil, false, err
	}
	if !ok || c.now().Sub(entry.Timestamp) >= c.ttl {
		observability.CacheMissesTotal.WithLabelValues(c.backend).Inc()
		return nil, false, nil
	}
	observability.CacheHitsTotal.WithLabelValues(c.backend).Inc()
	summary := entry.Summary.Clone()
	return &summary, true, nil
}

// Set upserts summary for (location, date), stamped with the current time.
func (c *WeatherCache) Set(ctx context.Context, location, date string, summary models.WeatherSummary) error {
	err := c.store.Upsert(ctx, Key{Location: location, Date: date}, Entry{Summary: summary.Clone(), Timestamp: c.now()})
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
	}
	return err
}

// Ping checks the backing store. Stores without a Ping are always reachable.
func (c *WeatherCache) Ping(ctx context.Context) error {
	if p, ok := c.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Backend returns the configured backend name.
func (c *WeatherCache) Backend() string { return c.backend }

// TTL returns the freshness window.
func (c *WeatherCache) TTL() time.Duration { return c.ttl }

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// retention is how long a backend keeps an entry around before evicting it. It exceeds
// the TTL so an expired entry reads as stale rather than vanishing mid-window.
func retention(ttl time.Duration) time.Duration {
	return 2 * ttl
}

// Pruner is implemented by stores without native expiry.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// NeedsPruning reports whether the store relies on Prune to evict old entries.
func (c *WeatherCache) NeedsPruning() bool {
	_, ok := c.store.(Pruner)
	return ok
}

// Prune drops entries past the retention window from stores that need it.
// Returns 0 for stores that expire entries on their own.
func (c *WeatherCache) Prune(ctx context.Context) (int64, error) {
	p, ok := c.store.(Pruner)
	if !ok {
		return 0, nil
	}
	return p.Prune(ctx, c.now().Add(-retention(c.ttl)))
}
