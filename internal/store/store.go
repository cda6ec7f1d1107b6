// Package store persists ingested sessions and their telemetry samples
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gridline-data/trackside/internal/telemetry"
)

// Store wraps the SQLite handle with session-centric operations. It
// implements the ingestion pipeline's Committer.
type Store struct {
	*sql.DB
}

// Session is one recorded stint: metadata plus an owned, ordered
// collection of samples related by the session id.
type Session struct {
	ID         string    `json:"id"`
	DriverName string    `json:"driver_name"`
	Car        string    `json:"car"`
	Track      string    `json:"track"`
	DurationS  float64   `json:"duration_s"`
	UploadTime time.Time `json:"upload_time"`
}

// Open opens (creating if needed) the database at path and ensures the
// base schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			driver_name   TEXT,
			car           TEXT,
			track         TEXT,
			duration_s    DOUBLE,
			upload_time   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS samples (
			session_id      TEXT NOT NULL,
			source          TEXT,
			car             TEXT,
			track           TEXT,
			lap             INTEGER,
			segment         TEXT,
			sector          INTEGER,
			position_m      DOUBLE,
			lap_time_s      DOUBLE,
			sector_time_s   DOUBLE,
			best_lap_time_s DOUBLE,
			best_sector_1_s DOUBLE,
			best_sector_2_s DOUBLE,
			best_sector_3_s DOUBLE,
			speed           DOUBLE,
			rpm             INTEGER,
			throttle        DOUBLE,
			brake           DOUBLE,
			gear            INTEGER,
			steer           DOUBLE,
			abs             BOOLEAN NOT NULL DEFAULT FALSE,
			tcs             BOOLEAN NOT NULL DEFAULT FALSE,
			in_pitlane      BOOLEAN NOT NULL DEFAULT FALSE,
			is_curve        BOOLEAN NOT NULL DEFAULT FALSE,
			ts              DOUBLE
		);
		CREATE INDEX IF NOT EXISTS idx_samples_session_ts ON samples(session_id, ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Store{db}, nil
}

// CreateSession inserts the session row.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	uploadTime := sess.UploadTime
	if uploadTime.IsZero() {
		uploadTime = time.Now().UTC()
	}
	_, err := s.ExecContext(ctx,
		`INSERT INTO sessions (id, driver_name, car, track, duration_s, upload_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.DriverName, sess.Car, sess.Track, sess.DurationS, uploadTime,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSessionMetadata overwrites the mutable metadata of a session,
// used after ingestion has inferred fields the upload omitted.
func (s *Store) UpdateSessionMetadata(ctx context.Context, id, driver, car, track string, durationS float64) error {
	res, err := s.ExecContext(ctx,
		`UPDATE sessions SET driver_name = ?, car = ?, track = ?, duration_s = ? WHERE id = ?`,
		driver, car, track, durationS, id,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// DeleteSession removes a session row and any samples already committed
// for it, in one transaction. Deleting an unknown id is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session delete tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE session_id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete samples: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session delete: %w", err)
	}
	return nil
}

// CommitBatch inserts one batch of samples for a session inside a
// single transaction. Batches are independent units of work: a failed
// batch rolls back alone and leaves earlier batches committed.
func (s *Store) CommitBatch(ctx context.Context, sessionID string, samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sample batch tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (
			session_id, source, car, track, lap, segment, sector,
			position_m, lap_time_s, sector_time_s,
			best_lap_time_s, best_sector_1_s, best_sector_2_s, best_sector_3_s,
			speed, rpm, throttle, brake, gear, steer,
			abs, tcs, in_pitlane, is_curve, ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		_, err := stmt.ExecContext(ctx,
			sessionID, smp.Source, smp.Car, smp.Track, smp.Lap, smp.Segment, smp.Sector,
			smp.PositionM, smp.LapTimeS, smp.SectorTimeS,
			smp.BestLapTimeS, smp.BestSector1S, smp.BestSector2S, smp.BestSector3S,
			smp.Speed, smp.RPM, smp.Throttle, smp.Brake, smp.Gear, smp.Steer,
			smp.ABS, smp.TCS, smp.InPitlane, smp.IsCurve, smp.TS,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sample batch: %w", err)
	}
	return nil
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.QueryRowContext(ctx,
		`SELECT id, driver_name, car, track, duration_s, upload_time FROM sessions WHERE id = ?`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.DriverName, &sess.Car, &sess.Track, &sess.DurationS, &sess.UploadTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s not found", id)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns all sessions, newest upload first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, driver_name, car, track, duration_s, upload_time FROM sessions ORDER BY upload_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.DriverName, &sess.Car, &sess.Track, &sess.DurationS, &sess.UploadTime); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionSamples returns the samples owned by a session in log order.
func (s *Store) SessionSamples(ctx context.Context, id string) ([]telemetry.Sample, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT source, car, track, lap, segment, sector,
			position_m, lap_time_s, sector_time_s,
			best_lap_time_s, best_sector_1_s, best_sector_2_s, best_sector_3_s,
			speed, rpm, throttle, brake, gear, steer,
			abs, tcs, in_pitlane, is_curve, ts
		FROM samples WHERE session_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []telemetry.Sample
	for rows.Next() {
		var smp telemetry.Sample
		if err := rows.Scan(
			&smp.Source, &smp.Car, &smp.Track, &smp.Lap, &smp.Segment, &smp.Sector,
			&smp.PositionM, &smp.LapTimeS, &smp.SectorTimeS,
			&smp.BestLapTimeS, &smp.BestSector1S, &smp.BestSector2S, &smp.BestSector3S,
			&smp.Speed, &smp.RPM, &smp.Throttle, &smp.Brake, &smp.Gear, &smp.Steer,
			&smp.ABS, &smp.TCS, &smp.InPitlane, &smp.IsCurve, &smp.TS,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// SampleCount returns how many samples a session owns.
func (s *Store) SampleCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples WHERE session_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}
