package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file. Use ":memory:" for tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path and creates the schema if missing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS weather_cache (
			location TEXT NOT NULL,
			date TEXT NOT NULL,
			summary TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			PRIMARY KEY (location, date)
		);

		CREATE INDEX IF NOT EXISTS idx_weather_cache_timestamp ON weather_cache(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var (
		raw string
		ts  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, timestamp FROM weather_cache WHERE location = ? AND date = ?`,
		key.Location, key.Date,
	).Scan(&raw, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry.Summary); err != nil {
		return Entry{}, false, err
	}
	entry.Timestamp = time.Unix(0, ts).UTC()
	return entry, true, nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, key Key, entry Entry) error {
	raw, err := json.Marshal(entry.Summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weather_cache (location, date, summary, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (location, date) DO UPDATE SET
			summary = excluded.summary,
			timestamp = excluded.timestamp`,
		key.Location, key.Date, string(raw), entry.Timestamp.UnixNano(),
	)
	return err
}

// Prune deletes entries written before cutoff and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM weather_cache WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping implements Pinger.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
