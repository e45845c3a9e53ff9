// Package store keeps a local sqlite log of successful readings, so the
// station's history survives broker outages.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/latest-readings.sql
var latestReadingsSQL string

//go:embed sql/readings-count.sql
var readingsCountSQL string

// Reading is one persisted measurement.
type Reading struct {
	StationID    string
	Timestamp    time.Time
	HumidityPct  float64
	TemperatureC float64
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the reading log at path and bootstraps the schema.
// ":memory:" gives an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertReading appends one measurement. Timestamps are stored as RFC3339Nano
// text in UTC.
func (s *Store) InsertReading(stationID string, ts time.Time, humidityPct, temperatureC float64) error {
	tsStr := ts.UTC().Format(time.RFC3339Nano)
	if _, err := s.db.Exec(insertReadingSQL, stationID, tsStr, humidityPct, temperatureC); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// LatestReadings returns up to limit readings for the station, newest first.
func (s *Store) LatestReadings(stationID string, limit int) ([]Reading, error) {
	rows, err := s.db.Query(latestReadingsSQL, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

// ReadingCount returns how many readings the station has logged.
func (s *Store) ReadingCount(stationID string) (int, error) {
	var n int
	err := s.db.QueryRow(readingsCountSQL, stationID).Scan(&n)
	return n, err
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	var out []Reading
	for rows.Next() {
		var rec Reading
		var ts string
		if err := rows.Scan(&rec.StationID, &ts, &rec.HumidityPct, &rec.TemperatureC); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		rec.Timestamp = t
		out = append(out, rec)
	}
	return out, rows.Err()
}
