// Package track models a closed-loop circuit as an ordered sequence of
// contiguous segments used by the simulation engine.
package track

import (
	"fmt"
	"math"
)

// Segment is a named, bounded stretch of track with a nominal target
// speed and sector/curve attributes.
type Segment struct {
	Name           string
	LengthM        float64
	TargetSpeedKmh float64
	Sector         int
	IsCurve        bool
}

// Track is a closed loop of contiguous segments tiling [0, LengthM).
type Track struct {
	Name     string
	LengthM  float64
	Segments []Segment
}

// SegmentAt resolves the segment covering position p. Any real position
// is accepted; it is wrapped into [0, LengthM) first. If floating-point
// drift leaves no segment matching, the last segment is returned so the
// lookup never fails.
func (t *Track) SegmentAt(p float64) Segment {
	pos := math.Mod(p, t.LengthM)
	if pos < 0 {
		pos += t.LengthM
	}
	acc := 0.0
	for _, seg := range t.Segments {
		if pos >= acc && pos < acc+seg.LengthM {
			return seg
		}
		acc += seg.LengthM
	}
	return t.Segments[len(t.Segments)-1]
}

// SegmentStart returns the track offset at which the named segment
// begins. Segment names are unique within one track; an unknown name
// resolves to offset 0.
func (t *Track) SegmentStart(name string) float64 {
	acc := 0.0
	for _, seg := range t.Segments {
		if seg.Name == name {
			return acc
		}
		acc += seg.LengthM
	}
	return 0
}

// SegmentLength returns the length of the named segment, or 0 if the
// track has no segment by that name.
func (t *Track) SegmentLength(name string) float64 {
	for _, seg := range t.Segments {
		if seg.Name == name {
			return seg.LengthM
		}
	}
	return 0
}

// Validate checks the tiling invariant: segment lengths sum to the track
// length and every sector id is in {1,2,3}.
func (t *Track) Validate() error {
	if len(t.Segments) == 0 {
		return fmt.Errorf("track %q has no segments", t.Name)
	}
	sum := 0.0
	for _, seg := range t.Segments {
		if seg.LengthM <= 0 {
			return fmt.Errorf("segment %q has non-positive length %v", seg.Name, seg.LengthM)
		}
		if seg.Sector < 1 || seg.Sector > 3 {
			return fmt.Errorf("segment %q has invalid sector %d", seg.Name, seg.Sector)
		}
		sum += seg.LengthM
	}
	if math.Abs(sum-t.LengthM) > 1e-6 {
		return fmt.Errorf("track %q segments sum to %v, want %v", t.Name, sum, t.LengthM)
	}
	return nil
}

// Monza returns the built-in Monza layout: 5793 m split into nine
// simplified segments across three timing sectors.
func Monza() *Track {
	return &Track{
		Name:    "Monza",
		LengthM: 5793,
		Segments: []Segment{
			{Name: "Rettifilo", LengthM: 1200, TargetSpeedKmh: 320, Sector: 1},
			{Name: "Variante del Rettifilo", LengthM: 200, TargetSpeedKmh: 90, Sector: 1, IsCurve: true},
			{Name: "Curva Grande", LengthM: 900, TargetSpeedKmh: 170, Sector: 1, IsCurve: true},
			{Name: "Lesmo 1", LengthM: 300, TargetSpeedKmh: 120, Sector: 2, IsCurve: true},
			{Name: "Lesmo 2", LengthM: 300, TargetSpeedKmh: 120, Sector: 2, IsCurve: true},
			{Name: "Variante della Roggia", LengthM: 200, TargetSpeedKmh: 100, Sector: 2, IsCurve: true},
			{Name: "Back Straight", LengthM: 900, TargetSpeedKmh: 320, Sector: 2},
			{Name: "Parabolica", LengthM: 600, TargetSpeedKmh: 140, Sector: 3, IsCurve: true},
			{Name: "Ascari Approach", LengthM: 1193, TargetSpeedKmh: 220, Sector: 3, IsCurve: true},
		},
	}
}
