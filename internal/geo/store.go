package geo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sunSchema = `
CREATE TABLE IF NOT EXISTS sun_times (
	date       TEXT NOT NULL,
	zone       TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	sunrise    TEXT NOT NULL,
	sunset     TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (date, zone, lat, lon)
);`

// SunStore persists resolved sun times per day and coordinate pair in
// SQLite, so a restarted daemon does not hit the API again.
type SunStore struct {
	db *sql.DB
}

// OpenSunStore opens (creating if needed) the database at path.
func OpenSunStore(path string) (*SunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("geo: create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("geo: open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("geo: ping store: %w", err)
	}
	if _, err := db.Exec(sunSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("geo: create schema: %w", err)
	}
	return &SunStore{db: db}, nil
}

// Get returns the stored times for the calendar date of day. ok is false
// when nothing is stored.
func (s *SunStore) Get(ctx context.Context, c Coordinates, day time.Time) (SunTimes, bool, error) {
	var st SunTimes
	err := s.db.QueryRowContext(ctx,
		`SELECT sunrise, sunset FROM sun_times WHERE date = ? AND zone = ? AND lat = ? AND lon = ?`,
		dateKey(day), day.Location().String(), c.Latitude, c.Longitude,
	).Scan(&st.Sunrise, &st.Sunset)
	if errors.Is(err, sql.ErrNoRows) {
		return SunTimes{}, false, nil
	}
	if err != nil {
		return SunTimes{}, false, fmt.Errorf("geo: query sun times: %w", err)
	}
	return st, true, nil
}

// Put stores st for the calendar date of day, replacing any previous row.
func (s *SunStore) Put(ctx context.Context, c Coordinates, day time.Time, st SunTimes) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sun_times (date, zone, lat, lon, sunrise, sunset, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, zone, lat, lon) DO UPDATE SET
			sunrise = excluded.sunrise,
			sunset = excluded.sunset,
			fetched_at = excluded.fetched_at`,
		dateKey(day), day.Location().String(), c.Latitude, c.Longitude,
		st.Sunrise, st.Sunset, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("geo: store sun times: %w", err)
	}
	return nil
}

// Prune deletes rows for dates strictly before the calendar date of
// before and returns how many were removed.
func (s *SunStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sun_times WHERE date < ?`, dateKey(before))
	if err != nil {
		return 0, fmt.Errorf("geo: prune sun times: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SunStore) Close() error {
	return s.db.Close()
}
