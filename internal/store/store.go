// Package store persists violation records to sqlite. The schema is
// managed by embedded migrations so a fresh database file is usable
// immediately.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/curbsight/curbsight/internal/monitoring"
	"github.com/curbsight/curbsight/internal/traffic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is one persisted violation.
type Record struct {
	ID          string    `json:"id"`
	TrackID     int64     `json:"track_id"`
	Type        string    `json:"type"`
	FrameIndex  int       `json:"frame_index"`
	VTime       float64   `json:"v_time"`
	SpeedKMH    float64   `json:"speed_kmh"`
	TriggerTime string    `json:"trigger_time"`
	ClipPath    string    `json:"clip_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store wraps the sqlite database.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite allows one writer; serialize through a single conn.
	db.SetMaxOpenConns(1)

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// InsertViolation persists v with its clip path (empty when recording is
// disabled or failed) and returns the stored record.
func (s *Store) InsertViolation(ctx context.Context, v traffic.Violation, clipPath string) (Record, error) {
	rec := Record{
		ID:          uuid.NewString(),
		TrackID:     v.TrackID,
		Type:        string(v.Type),
		FrameIndex:  v.FrameIndex,
		VTime:       v.VTime,
		SpeedKMH:    v.SpeedKMH,
		TriggerTime: v.Timestamp,
		ClipPath:    clipPath,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.ExecContext(ctx, `
		INSERT INTO violations (id, track_id, type, frame_index, v_time, speed_kmh, trigger_time, clip_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TrackID, rec.Type, rec.FrameIndex, rec.VTime, rec.SpeedKMH, rec.TriggerTime, rec.ClipPath, rec.CreatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert violation: %w", err)
	}
	return rec, nil
}

// SetClipPath attaches a finished clip to the most recent record matching
// the violation's identity. It is called when the clip sink closes, after
// the violation row already exists.
func (s *Store) SetClipPath(ctx context.Context, v traffic.Violation, clipPath string) error {
	_, err := s.ExecContext(ctx, `
		UPDATE violations SET clip_path = ?
		WHERE id IN (
			SELECT id FROM violations
			WHERE track_id = ? AND type = ? AND trigger_time = ?
			ORDER BY created_at DESC LIMIT 1
		)`,
		clipPath, v.TrackID, string(v.Type), v.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to set clip path: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, track_id, type, frame_index, v_time, speed_kmh, trigger_time, clip_path, created_at
		FROM violations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TrackID, &r.Type, &r.FrameIndex, &r.VTime, &r.SpeedKMH, &r.TriggerTime, &r.ClipPath, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// CountsByType returns the total violations per type.
func (s *Store) CountsByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.QueryContext(ctx, `SELECT type, COUNT(*) FROM violations GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// HourCount is the number of violations of one type in one hour bucket.
type HourCount struct {
	Hour  string `json:"hour"` // "2026-03-01 08:00"
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// CountsByHour buckets violations per hour per type, oldest first, for
// offline reporting.
func (s *Store) CountsByHour(ctx context.Context) ([]HourCount, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d %H:00', created_at) AS hour, type, COUNT(*)
		FROM violations GROUP BY hour, type ORDER BY hour`)
	if err != nil {
		return nil, fmt.Errorf("failed to bucket violations: %w", err)
	}
	defer rows.Close()

	var out []HourCount
	for rows.Next() {
		var hc HourCount
		if err := rows.Scan(&hc.Hour, &hc.Type, &hc.Count); err != nil {
			return nil, err
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// Speeds returns the recorded speeds of speed-related violations for
// distribution analysis.
func (s *Store) Speeds(ctx context.Context) ([]float64, error) {
	rows, err := s.QueryContext(ctx, `SELECT speed_kmh FROM violations WHERE speed_kmh > 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query speeds: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts the read-only SQL console and debug pages on
// mux under /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://curbsight.db", s.DB, &tailsql.DBOptions{
		Label: "Curbsight DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	monitoring.Logf("store: SQL console mounted at /debug/tailsql/")
	return nil
}
