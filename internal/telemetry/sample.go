// Package telemetry defines the sample record shared by the simulator,
// the UDP transport, the session log, and the ingestion pipeline.
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SourceUnknown marks records whose origin was not supplied.
const SourceUnknown = "unknown"

// Sample is one telemetry record for a single simulation tick. It is
// immutable once produced: the same flat field set travels over the wire,
// into the session log, and out of the ingestion pipeline.
//
// Best-lap and best-sector fields are pointers because they are absent
// until at least one lap (or sector) has completed.
type Sample struct {
	Source       string   `json:"source"`
	Car          string   `json:"car"`
	Track        string   `json:"track"`
	Lap          int      `json:"lap"`
	Segment      string   `json:"segment"`
	Sector       int      `json:"sector"`
	PositionM    float64  `json:"position_m"`
	LapTimeS     float64  `json:"lap_time_s"`
	SectorTimeS  float64  `json:"sector_time_s"`
	BestLapTimeS *float64 `json:"best_lap_time_s,omitempty"`
	BestSector1S *float64 `json:"best_sector_1_s,omitempty"`
	BestSector2S *float64 `json:"best_sector_2_s,omitempty"`
	BestSector3S *float64 `json:"best_sector_3_s,omitempty"`
	Speed        float64  `json:"speed"`
	RPM          int      `json:"rpm"`
	Throttle     float64  `json:"throttle"`
	Brake        float64  `json:"brake"`
	Gear         int      `json:"gear"`
	Steer        float64  `json:"steer"`
	ABS          bool     `json:"abs"`
	TCS          bool     `json:"tcs"`
	InPitlane    bool     `json:"in_pitlane"`
	IsCurve      bool     `json:"is_curve"`
	TS           float64  `json:"ts"`
}

// Decode parses a wire or log payload into a Sample. The payload must be
// a JSON object; unknown fields are ignored, missing fields are left at
// their zero values. Anything else (fragments, bare strings, numbers) is
// rejected so that callers can count it as a malformed line.
func Decode(data []byte) (Sample, error) {
	var s Sample
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return s, fmt.Errorf("payload is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal sample: %w", err)
	}
	return s, nil
}

// ApplyDefaults substitutes documented defaults for fields the wire or
// log line omitted. Numeric and boolean zero values already are the
// defaults; only the free-text source needs an explicit marker.
func (s *Sample) ApplyDefaults() {
	if s.Source == "" {
		s.Source = SourceUnknown
	}
}
