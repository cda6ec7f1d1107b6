// Package sim implements the deterministic telemetry simulator: a
// stateful engine that advances a vehicle around a segmented track once
// per tick and emits one telemetry sample per tick.
package sim

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gridline-data/trackside/internal/car"
	"github.com/gridline-data/trackside/internal/telemetry"
	"github.com/gridline-data/trackside/internal/track"
	"github.com/gridline-data/trackside/internal/units"
)

// DefaultRateHz is the default tick frequency.
const DefaultRateHz = 20

// Pitlane behaviour. Entry is only attempted inside a window near the
// end of the lap; exit is forced inside a window shortly after the
// start line. The entry draw happens once per tick, so the effective
// per-pass probability scales with the tick rate.
const (
	pitSpeedLimitKmh  = 60
	pitEntryBeforeEnd = 250 // entry window centre, metres before the line
	pitExitAfterStart = 300 // exit window centre, metres after the line
	pitWindowHalfM    = 40
	pitEntryProb      = 0.002
)

// Emitter consumes one sample per tick. Implementations must not block
// for long: the tick budget includes the emit.
type Emitter interface {
	Emit(s telemetry.Sample)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(s telemetry.Sample)

// Emit calls f(s).
func (f EmitterFunc) Emit(s telemetry.Sample) { f(s) }

// Config carries the immutable inputs of one simulator instance.
type Config struct {
	Track   *track.Track
	Car     car.Preset
	RateHz  float64 // tick frequency, default 20
	Seed    int64   // random seed; 0 seeds from the wall clock
	Source  string  // sample source tag, default "SIM"
	Emitter Emitter // per-tick sample sink; nil discards samples
}

// Simulator owns the vehicle state for one running simulation. The
// state is mutated exclusively by the Run loop (or step in tests); no
// other goroutine may touch it.
type Simulator struct {
	cfg     Config
	rng     *rand.Rand
	running atomic.Bool

	lap            int
	positionM      float64
	speedMS        float64
	gear           int
	sector         int
	sectorStart    time.Time
	sectorTimes    []float64
	lapSectorTimes [][]float64
	lapStart       time.Time
	bestLapS       float64 // 0 means no lap completed yet
	inPitlane      bool
	pitEntryTime   time.Time
	pitExitTime    time.Time
}

// New creates a simulator. The track and car preset are validated so a
// misconfigured instance fails before the first tick.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Track.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Car.Validate(); err != nil {
		return nil, err
	}
	if cfg.RateHz <= 0 {
		cfg.RateHz = DefaultRateHz
	}
	if cfg.Source == "" {
		cfg.Source = "SIM"
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// reset initialises the vehicle state for a fresh run.
func (s *Simulator) reset(now time.Time) {
	s.lap = 1
	s.positionM = 0
	s.speedMS = 0
	s.gear = 1
	s.sector = 1
	s.sectorStart = now
	s.sectorTimes = nil
	s.lapSectorTimes = nil
	s.lapStart = now
	s.bestLapS = 0
	s.inPitlane = false
	s.pitEntryTime = time.Time{}
	s.pitExitTime = time.Time{}
}

// Run resets the vehicle state and drives the fixed-rate tick loop
// until Stop is called or ctx is cancelled. Overrun ticks proceed
// immediately without catching up; drift is tolerated.
func (s *Simulator) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	defer s.running.Store(false)

	s.reset(time.Now())
	period := time.Duration(float64(time.Second) / s.cfg.RateHz)
	dt := 1.0 / s.cfg.RateHz

	for s.running.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tickStart := time.Now()
		sample := s.step(tickStart, dt)
		if s.cfg.Emitter != nil {
			s.cfg.Emitter.Emit(sample)
		}

		if sleep := period - time.Since(tickStart); sleep > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		}
	}
	return nil
}

// Stop requests the run loop to exit. It is idempotent and safe to call
// from any goroutine; the loop observes it within one tick.
func (s *Simulator) Stop() {
	s.running.Store(false)
}

// Running reports whether the tick loop is active.
func (s *Simulator) Running() bool {
	return s.running.Load()
}

// step advances the vehicle by one tick of dt seconds and derives the
// emitted sample. now is injected so tests can drive a synthetic clock.
func (s *Simulator) step(now time.Time, dt float64) telemetry.Sample {
	seg := s.cfg.Track.SegmentAt(s.positionM)

	s.updatePitlane(now)

	// Sector boundary: close the current split before adopting the new
	// sector.
	if seg.Sector != s.sector {
		s.sectorTimes = append(s.sectorTimes, now.Sub(s.sectorStart).Seconds())
		s.sectorStart = now
		s.sector = seg.Sector
	}

	targetKmh := seg.TargetSpeedKmh
	if s.inPitlane && targetKmh > pitSpeedLimitKmh {
		targetKmh = pitSpeedLimitKmh
	}

	// Longitudinal dynamics: asymmetric gain and noise depending on
	// whether the car is below or above the target speed, clamped to the
	// preset's acceleration envelope, minus quadratic drag.
	targetMS := units.KmhToMs(targetKmh)
	speedErr := targetMS - s.speedMS
	var desiredAcc float64
	if speedErr > 0 {
		desiredAcc = clamp(speedErr*0.7+s.rng.NormFloat64()*0.2, -s.cfg.Car.BrakeMS2, s.cfg.Car.AccelMS2)
	} else {
		desiredAcc = clamp(speedErr*0.9+s.rng.NormFloat64()*0.5, -s.cfg.Car.BrakeMS2, s.cfg.Car.AccelMS2)
	}
	speedKmh := units.MsToKmh(s.speedMS)
	dragAcc := -0.0005 * speedKmh * speedKmh / s.cfg.Car.MassKg
	netAcc := desiredAcc + dragAcc

	s.speedMS += netAcc * dt
	if s.speedMS < 0 {
		s.speedMS = 0
	}
	s.positionM += s.speedMS * dt

	if s.positionM >= s.cfg.Track.LengthM {
		s.rolloverLap(now)
	}

	speedKmh = units.MsToKmh(s.speedMS)
	s.gear = s.cfg.Car.GearForSpeed(speedKmh)

	// RPM from speed through a fixed gear ratio factor, with small noise.
	// Clamped after the noise so reported values stay within the preset's
	// range.
	const gearRatioFactor = 60
	rpm := clamp(speedKmh*gearRatioFactor/float64(max(1, s.gear)), float64(s.cfg.Car.IdleRPM), float64(s.cfg.Car.MaxRPM))
	rpm = clamp(rpm+s.rng.NormFloat64()*50, float64(s.cfg.Car.IdleRPM), float64(s.cfg.Car.MaxRPM))

	var throttle, brake float64
	if netAcc >= 0.1 {
		throttle = clamp(100*netAcc/(s.cfg.Car.AccelMS2+0.001), 0, 100)
		throttle *= 0.9 + s.rng.Float64()*0.15
	} else if netAcc < -0.5 {
		brake = clamp(100*-netAcc/(s.cfg.Car.BrakeMS2+0.001), 0, 100)
		brake *= 0.9 + s.rng.Float64()*0.15
	}

	// TCS and ABS are probabilistic overlays on the pedal outputs, not
	// persistent physical state.
	var tcs, abs bool
	if throttle > 80 && (seg.IsCurve || speedKmh < 60) && s.rng.Float64() < 0.15 {
		tcs = true
		throttle *= 0.85
	}
	if brake > 80 && s.rng.Float64() < 0.2 {
		abs = true
		brake *= 0.8
	}

	steer := s.steerForSegment(seg)

	sample := telemetry.Sample{
		Source:       s.cfg.Source,
		Car:          s.cfg.Car.Name,
		Track:        s.cfg.Track.Name,
		Lap:          s.lap,
		Segment:      seg.Name,
		Sector:       s.sector,
		PositionM:    round(s.positionM, 2),
		LapTimeS:     round(now.Sub(s.lapStart).Seconds(), 3),
		SectorTimeS:  round(now.Sub(s.sectorStart).Seconds(), 3),
		BestLapTimeS: s.bestLap(),
		BestSector1S: s.bestSector(1),
		BestSector2S: s.bestSector(2),
		BestSector3S: s.bestSector(3),
		Speed:        round(speedKmh, 2),
		RPM:          int(rpm),
		Throttle:     round(throttle, 1),
		Brake:        round(brake, 1),
		Gear:         s.gear,
		Steer:        round(steer, 3),
		ABS:          abs,
		TCS:          tcs,
		InPitlane:    s.inPitlane,
		IsCurve:      seg.IsCurve,
		TS:           float64(now.UnixNano()) / 1e9,
	}
	return sample
}

// updatePitlane applies the entry/exit hysteresis. Entry is a small
// random draw allowed only inside the entry window; exit is forced once
// the exit window is reached with the pit flag still set.
func (s *Simulator) updatePitlane(now time.Time) {
	entryCentre := s.cfg.Track.LengthM - pitEntryBeforeEnd
	if !s.inPitlane {
		if math.Abs(s.positionM-entryCentre) <= pitWindowHalfM && s.rng.Float64() < pitEntryProb {
			s.inPitlane = true
			s.pitEntryTime = now
		}
		return
	}
	if math.Abs(s.positionM-pitExitAfterStart) <= pitWindowHalfM {
		s.inPitlane = false
		s.pitExitTime = now
	}
}

// rolloverLap wraps the position, closes the final sector, archives the
// lap's splits and resets per-lap state.
func (s *Simulator) rolloverLap(now time.Time) {
	s.positionM -= s.cfg.Track.LengthM

	s.sectorTimes = append(s.sectorTimes, now.Sub(s.sectorStart).Seconds())
	if len(s.sectorTimes) == 3 {
		archived := make([]float64, 3)
		copy(archived, s.sectorTimes)
		s.lapSectorTimes = append(s.lapSectorTimes, archived)
	}

	lapTime := now.Sub(s.lapStart).Seconds()
	if s.bestLapS == 0 || lapTime < s.bestLapS {
		s.bestLapS = lapTime
	}

	s.lap++
	s.lapStart = now
	s.sectorStart = now
	s.sector = 1
	s.sectorTimes = nil
}

// steerForSegment derives steering from segment identity: curve
// segments produce a sinusoid peaking at the segment midpoint with
// randomised magnitude and sign, straights near-zero noise.
func (s *Simulator) steerForSegment(seg track.Segment) float64 {
	if !seg.IsCurve {
		return s.rng.NormFloat64() * 0.005
	}
	segStart := s.cfg.Track.SegmentStart(seg.Name)
	segLen := s.cfg.Track.SegmentLength(seg.Name)
	if segLen <= 0 {
		return 0
	}
	rel := math.Mod(s.positionM-segStart, s.cfg.Track.LengthM) / segLen
	peak := math.Sin(math.Pi * clamp(rel, 0, 1))
	steer := peak * (0.4 + s.rng.Float64()*0.45)
	if s.rng.Float64() < 0.5 {
		steer = -steer
	}
	return steer
}

// bestLap returns the fastest completed lap time, or nil before the
// first completed lap.
func (s *Simulator) bestLap() *float64 {
	if s.bestLapS == 0 {
		return nil
	}
	v := s.bestLapS
	return &v
}

// bestSector scans the archived lap splits for the minimum time of the
// given sector (1-3). It returns nil while no lap has completed that
// sector.
func (s *Simulator) bestSector(sector int) *float64 {
	idx := sector - 1
	var best float64
	found := false
	for _, splits := range s.lapSectorTimes {
		if idx >= len(splits) {
			continue
		}
		if !found || splits[idx] < best {
			best = splits[idx]
			found = true
		}
	}
	if !found {
		return nil
	}
	return &best
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round(x float64, decimals int) float64 {
	f := math.Pow(10, float64(decimals))
	return math.Round(x*f) / f
}
