package store

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SessionStats summarises the samples of one session.
type SessionStats struct {
	SessionID    string  `json:"session_id"`
	SampleCount  int     `json:"sample_count"`
	MeanSpeedKmh float64 `json:"mean_speed_kmh"`
	MaxSpeedKmh  float64 `json:"max_speed_kmh"`
	MeanRPM      float64 `json:"mean_rpm"`
	Laps         int     `json:"laps"`
}

// SessionStats computes summary statistics for a session's samples.
func (s *Store) SessionStats(ctx context.Context, id string) (*SessionStats, error) {
	rows, err := s.QueryContext(ctx, `SELECT speed, rpm, lap FROM samples WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query sample stats: %w", err)
	}
	defer rows.Close()

	var speeds, rpms []float64
	maxLap := 0
	for rows.Next() {
		var speed, rpm float64
		var lap int
		if err := rows.Scan(&speed, &rpm, &lap); err != nil {
			return nil, fmt.Errorf("scan sample stats: %w", err)
		}
		speeds = append(speeds, speed)
		rpms = append(rpms, rpm)
		if lap > maxLap {
			maxLap = lap
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := &SessionStats{SessionID: id, SampleCount: len(speeds), Laps: maxLap}
	if len(speeds) > 0 {
		stats.MeanSpeedKmh = stat.Mean(speeds, nil)
		stats.MaxSpeedKmh = floats.Max(speeds)
		stats.MeanRPM = stat.Mean(rpms, nil)
	}
	return stats, nil
}
