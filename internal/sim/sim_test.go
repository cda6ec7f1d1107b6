package sim

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gridline-data/trackside/internal/car"
	"github.com/gridline-data/trackside/internal/telemetry"
	"github.com/gridline-data/trackside/internal/track"
)

func newTestSim(t *testing.T, seed int64) *Simulator {
	t.Helper()
	s, err := New(Config{
		Track: track.Monza(),
		Car:   car.PorscheGT3RS(),
		Seed:  seed,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// runTicks drives the engine with a synthetic 20 Hz clock so tests are
// fast and fully deterministic.
func runTicks(s *Simulator, n int) []telemetry.Sample {
	t0 := time.Unix(1700000000, 0)
	s.reset(t0)
	const dt = 1.0 / DefaultRateHz
	samples := make([]telemetry.Sample, 0, n)
	for i := 0; i < n; i++ {
		now := t0.Add(time.Duration(float64(i) * dt * float64(time.Second)))
		samples = append(samples, s.step(now, dt))
	}
	return samples
}

func TestPositionStaysInBounds(t *testing.T) {
	s := newTestSim(t, 1)
	t0 := time.Unix(1700000000, 0)
	s.reset(t0)
	for i := 0; i < 20000; i++ {
		now := t0.Add(time.Duration(i) * 50 * time.Millisecond)
		s.step(now, 0.05)
		if s.positionM < 0 || s.positionM >= s.cfg.Track.LengthM {
			t.Fatalf("tick %d: position %v outside [0, %v)", i, s.positionM, s.cfg.Track.LengthM)
		}
	}
}

func TestRPMWithinPresetRange(t *testing.T) {
	s := newTestSim(t, 2)
	p := car.PorscheGT3RS()
	for i, sample := range runTicks(s, 10000) {
		if sample.RPM < p.IdleRPM || sample.RPM > p.MaxRPM {
			t.Fatalf("tick %d: rpm %d outside [%d, %d]", i, sample.RPM, p.IdleRPM, p.MaxRPM)
		}
	}
}

func TestLapRolloverArchivesSectorTimes(t *testing.T) {
	s := newTestSim(t, 3)
	samples := runTicks(s, 12000)

	lastLap := samples[len(samples)-1].Lap
	if lastLap < 3 {
		t.Fatalf("simulation only reached lap %d, want at least 3", lastLap)
	}
	// Each completed lap contributes exactly one 3-element split list.
	if got := len(s.lapSectorTimes); got != lastLap-1 {
		t.Errorf("archived laps = %d, want %d", got, lastLap-1)
	}
	for i, splits := range s.lapSectorTimes {
		if len(splits) != 3 {
			t.Errorf("lap %d archived %d sector times, want 3", i+1, len(splits))
		}
		for j, split := range splits {
			if split <= 0 {
				t.Errorf("lap %d sector %d time %v, want > 0", i+1, j+1, split)
			}
		}
	}
}

func TestBestTimesMonotonicallyNonIncreasing(t *testing.T) {
	s := newTestSim(t, 4)
	samples := runTicks(s, 20000)

	var prevLap *float64
	prevSector := map[int]*float64{}
	for i, sample := range samples {
		if prevLap != nil {
			if sample.BestLapTimeS == nil {
				t.Fatalf("tick %d: best lap disappeared", i)
			}
			if *sample.BestLapTimeS > *prevLap {
				t.Fatalf("tick %d: best lap rose from %v to %v", i, *prevLap, *sample.BestLapTimeS)
			}
		}
		prevLap = sample.BestLapTimeS

		for sector, best := range map[int]*float64{1: sample.BestSector1S, 2: sample.BestSector2S, 3: sample.BestSector3S} {
			if prev := prevSector[sector]; prev != nil {
				if best == nil {
					t.Fatalf("tick %d: best sector %d disappeared", i, sector)
				}
				if *best > *prev {
					t.Fatalf("tick %d: best sector %d rose from %v to %v", i, sector, *prev, *best)
				}
			}
			prevSector[sector] = best
		}
	}
	if prevLap == nil {
		t.Fatal("no lap completed in 20000 ticks")
	}
}

func TestSingleLapTimingScenario(t *testing.T) {
	s := newTestSim(t, 5)
	samples := runTicks(s, 12000)

	// Within the first lap, lap time is strictly increasing and exactly
	// two internal sector transitions occur.
	var lapTimes []float64
	transitions := 0
	prevSector := 1
	for _, sample := range samples {
		if sample.Lap != 1 {
			break
		}
		lapTimes = append(lapTimes, sample.LapTimeS)
		if sample.Sector != prevSector {
			transitions++
			prevSector = sample.Sector
		}
	}
	if len(lapTimes) == 0 {
		t.Fatal("no samples in lap 1")
	}
	for i := 1; i < len(lapTimes); i++ {
		if lapTimes[i] <= lapTimes[i-1] {
			t.Fatalf("lap time not strictly increasing at tick %d: %v then %v", i, lapTimes[i-1], lapTimes[i])
		}
	}
	if transitions != 2 {
		t.Errorf("sector transitions in lap 1 = %d, want 2", transitions)
	}
}

func TestSeededRunsAreReproducible(t *testing.T) {
	a := newTestSim(t, 99)
	b := newTestSim(t, 99)
	sa := runTicks(a, 2000)
	sb := runTicks(b, 2000)
	if diff := cmp.Diff(sa, sb); diff != "" {
		t.Errorf("same seed produced different runs (-a +b):\n%s", diff)
	}

	c := newTestSim(t, 100)
	sc := runTicks(c, 2000)
	if diff := cmp.Diff(sa, sc); diff == "" {
		t.Error("different seeds produced identical runs")
	}
}

func TestSteeringProfile(t *testing.T) {
	s := newTestSim(t, 6)
	s.reset(time.Unix(1700000000, 0))

	// Mid start straight: steering is noise around zero.
	s.positionM = 600
	straight := s.cfg.Track.SegmentAt(s.positionM)
	for i := 0; i < 200; i++ {
		if st := s.steerForSegment(straight); st > 0.05 || st < -0.05 {
			t.Fatalf("straight steering %v, want near zero", st)
		}
	}

	// Mid Parabolica: sinusoidal profile bounded by the noise envelope.
	s.positionM = s.cfg.Track.SegmentStart("Parabolica") + 300
	curve := s.cfg.Track.SegmentAt(s.positionM)
	sawLarge := false
	for i := 0; i < 200; i++ {
		st := s.steerForSegment(curve)
		if st > 0.85 || st < -0.85 {
			t.Fatalf("curve steering %v outside envelope", st)
		}
		if st > 0.3 || st < -0.3 {
			sawLarge = true
		}
	}
	if !sawLarge {
		t.Error("curve steering never exceeded 0.3 at segment midpoint")
	}
}

func TestPitlaneClampsTargetSpeed(t *testing.T) {
	s := newTestSim(t, 7)
	t0 := time.Unix(1700000000, 0)
	s.reset(t0)

	// Park the car on the start straight, well clear of the exit window,
	// and force the pit flag.
	s.positionM = 1000
	s.inPitlane = true
	var last telemetry.Sample
	for i := 0; i < 200; i++ {
		now := t0.Add(time.Duration(i) * 50 * time.Millisecond)
		last = s.step(now, 0.05)
	}
	if !last.InPitlane {
		t.Fatal("pit flag cleared outside the exit window")
	}
	// Target is clamped to the pit limit; allow slack for control noise.
	if last.Speed > pitSpeedLimitKmh+15 {
		t.Errorf("speed in pitlane = %v km/h, want near %v", last.Speed, pitSpeedLimitKmh)
	}
}

func TestPitlaneExitForcedInWindow(t *testing.T) {
	s := newTestSim(t, 8)
	now := time.Unix(1700000000, 0)
	s.reset(now)
	s.inPitlane = true
	s.positionM = pitExitAfterStart
	s.updatePitlane(now)
	if s.inPitlane {
		t.Error("pit flag still set inside the exit window")
	}
	if s.pitExitTime.IsZero() {
		t.Error("pit exit time not stamped")
	}
}

func TestRunStopsWithinOneTick(t *testing.T) {
	s, err := New(Config{
		Track:  track.Monza(),
		Car:    car.PorscheGT3RS(),
		RateHz: 100,
		Seed:   9,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	// Give the loop a moment to start, then stop it.
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop() // idempotent

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}

func TestRunHonoursContextCancel(t *testing.T) {
	s := newTestSim(t, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestRunEmitsSamplesInTickOrder(t *testing.T) {
	ch := make(chan telemetry.Sample, 1024)
	s, err := New(Config{
		Track:   track.Monza(),
		Car:     car.PorscheGT3RS(),
		RateHz:  200,
		Seed:    11,
		Emitter: EmitterFunc(func(smp telemetry.Sample) { ch <- smp }),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	time.Sleep(200 * time.Millisecond)
	s.Stop()
	<-done
	close(ch)

	var prevTS float64
	count := 0
	for sample := range ch {
		count++
		if sample.Source != "SIM" || sample.Car != "Porsche GT3 RS" || sample.Track != "Monza" {
			t.Fatalf("unexpected identity fields: %q %q %q", sample.Source, sample.Car, sample.Track)
		}
		if sample.TS < prevTS {
			t.Fatalf("ts decreased from %v to %v", prevTS, sample.TS)
		}
		prevTS = sample.TS
	}
	if count == 0 {
		t.Fatal("no samples emitted")
	}
}
