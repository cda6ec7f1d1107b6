// Package car holds immutable car parameter presets for the simulator.
package car

import "fmt"

// Preset is an immutable parameter bundle describing a car's
// longitudinal performance envelope and drivetrain.
type Preset struct {
	Name         string
	MassKg       float64
	MaxSpeedKmh  float64
	MaxRPM       int
	IdleRPM      int
	Gears        int
	GearSpeedKmh []float64 // len Gears+1, non-decreasing upshift thresholds
	AccelMS2     float64
	BrakeMS2     float64
}

// PorscheGT3RS returns the default preset.
func PorscheGT3RS() Preset {
	return Preset{
		Name:         "Porsche GT3 RS",
		MassKg:       1420,
		MaxSpeedKmh:  315,
		MaxRPM:       9000,
		IdleRPM:      900,
		Gears:        6,
		GearSpeedKmh: []float64{0, 60, 110, 160, 220, 275, 330},
		AccelMS2:     6.5,
		BrakeMS2:     10.0,
	}
}

// Validate checks the preset invariants: a threshold per gear plus one,
// non-decreasing, and sane physical bounds.
func (p Preset) Validate() error {
	if p.Gears < 1 {
		return fmt.Errorf("preset %q has %d gears", p.Name, p.Gears)
	}
	if len(p.GearSpeedKmh) != p.Gears+1 {
		return fmt.Errorf("preset %q has %d gear thresholds, want %d", p.Name, len(p.GearSpeedKmh), p.Gears+1)
	}
	for i := 1; i < len(p.GearSpeedKmh); i++ {
		if p.GearSpeedKmh[i] < p.GearSpeedKmh[i-1] {
			return fmt.Errorf("preset %q gear thresholds decrease at index %d", p.Name, i)
		}
	}
	if p.MassKg <= 0 || p.AccelMS2 <= 0 || p.BrakeMS2 <= 0 {
		return fmt.Errorf("preset %q has non-positive physical parameters", p.Name)
	}
	if p.IdleRPM < 0 || p.MaxRPM <= p.IdleRPM {
		return fmt.Errorf("preset %q has invalid rpm range [%d, %d]", p.Name, p.IdleRPM, p.MaxRPM)
	}
	return nil
}

// GearForSpeed returns the highest gear whose threshold is at or below
// the given speed, clamped to [1, Gears].
func (p Preset) GearForSpeed(speedKmh float64) int {
	gear := 1
	for g := 1; g <= p.Gears && g < len(p.GearSpeedKmh); g++ {
		if speedKmh >= p.GearSpeedKmh[g] {
			gear = g
		}
	}
	if gear < 1 {
		gear = 1
	}
	if gear > p.Gears {
		gear = p.Gears
	}
	return gear
}
