package cache

import (
	"context"
	"fmt"
	"time"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string
	TTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	Redis RedisOptions

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	SQLitePath string
}

// Open builds the Store named by opts.Backend. The returned close func releases the
// backend's connections and is never nil.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }
	switch opts.Backend {
	case "", BackendInMemory:
		return NewMemoryStore(opts.TTL), noop, nil
	case BackendMemcached:
		s := NewMemcachedStore(opts.MemcachedAddrs, opts.TTL, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns)
		return s, s.Close, nil
	case BackendRedis:
		s := NewRedisStore(opts.Redis, opts.TTL)
		return s, s.Close, nil
	case BackendMongo:
		s, err := NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase, opts.MongoCollection, opts.TTL)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = "weather_cache.db"
		}
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
