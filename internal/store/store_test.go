package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/gridline-data/trackside/internal/telemetry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trackside_test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	if err := s.CreateSession(ctx, Session{
		ID: id, DriverName: "pat", Car: "Porsche GT3 RS", Track: "Monza", DurationS: 180.5,
	}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.DriverName != "pat" || got.Car != "Porsche GT3 RS" || got.Track != "Monza" {
		t.Errorf("session = %+v", got)
	}
	if got.UploadTime.IsZero() {
		t.Error("upload time not defaulted")
	}

	if _, err := s.GetSession(ctx, "missing"); err == nil {
		t.Error("GetSession(missing) = nil error")
	}
}

func TestCommitBatchAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	if err := s.CreateSession(ctx, Session{ID: id}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	best := 95.2
	want := []telemetry.Sample{
		{Source: "SIM", Car: "Porsche GT3 RS", Track: "Monza", Lap: 1, Segment: "Rettifilo", Sector: 1, PositionM: 12.5, Speed: 88.2, RPM: 4200, Gear: 2, TS: 1700000000.00},
		{Source: "SIM", Car: "Porsche GT3 RS", Track: "Monza", Lap: 1, Segment: "Rettifilo", Sector: 1, PositionM: 14.1, Speed: 91.0, RPM: 4350, Gear: 2, BestLapTimeS: &best, ABS: true, TS: 1700000000.05},
	}
	if err := s.CommitBatch(ctx, id, want); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	got, err := s.SessionSamples(ctx, id)
	if err != nil {
		t.Fatalf("SessionSamples: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}

	n, err := s.SampleCount(ctx, id)
	if err != nil {
		t.Fatalf("SampleCount: %v", err)
	}
	if n != 2 {
		t.Errorf("SampleCount = %d, want 2", n)
	}
}

func TestCommitBatchesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	if err := s.CreateSession(ctx, Session{ID: id}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CommitBatch(ctx, id, []telemetry.Sample{{Lap: 1, TS: 1}}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := s.CommitBatch(ctx, id, []telemetry.Sample{{Lap: 2, TS: 2}}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if err := s.CommitBatch(ctx, id, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	n, err := s.SampleCount(ctx, id)
	if err != nil {
		t.Fatalf("SampleCount: %v", err)
	}
	if n != 2 {
		t.Errorf("SampleCount = %d, want 2", n)
	}
}

func TestUpdateSessionMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	if err := s.CreateSession(ctx, Session{ID: id}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.UpdateSessionMetadata(ctx, id, "pat", "Porsche GT3 RS", "Monza", 321.7); err != nil {
		t.Fatalf("UpdateSessionMetadata: %v", err)
	}
	got, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Track != "Monza" || got.DurationS != 321.7 {
		t.Errorf("session after update = %+v", got)
	}

	if err := s.UpdateSessionMetadata(ctx, "missing", "", "", "", 0); err == nil {
		t.Error("UpdateSessionMetadata(missing) = nil error")
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	if err := s.CreateSession(ctx, Session{ID: id}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CommitBatch(ctx, id, []telemetry.Sample{{Speed: 100}, {Speed: 120}}); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	if err := s.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, id); err == nil {
		t.Error("GetSession after delete = nil error")
	}
	n, err := s.SampleCount(ctx, id)
	if err != nil {
		t.Fatalf("SampleCount: %v", err)
	}
	if n != 0 {
		t.Errorf("SampleCount after delete = %d, want 0", n)
	}

	// Unknown ids delete cleanly.
	if err := s.DeleteSession(ctx, "missing"); err != nil {
		t.Errorf("DeleteSession(missing) = %v", err)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.CreateSession(ctx, Session{ID: uuid.NewString(), Track: "Monza"}); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("ListSessions returned %d sessions, want 3", len(sessions))
	}
}

func TestSessionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	if err := s.CreateSession(ctx, Session{ID: id}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	samples := []telemetry.Sample{
		{Speed: 100, RPM: 4000, Lap: 1},
		{Speed: 200, RPM: 6000, Lap: 1},
		{Speed: 300, RPM: 8000, Lap: 2},
	}
	if err := s.CommitBatch(ctx, id, samples); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	stats, err := s.SessionStats(ctx, id)
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	if stats.SampleCount != 3 {
		t.Errorf("SampleCount = %d, want 3", stats.SampleCount)
	}
	if stats.MeanSpeedKmh != 200 {
		t.Errorf("MeanSpeedKmh = %v, want 200", stats.MeanSpeedKmh)
	}
	if stats.MaxSpeedKmh != 300 {
		t.Errorf("MaxSpeedKmh = %v, want 300", stats.MaxSpeedKmh)
	}
	if stats.MeanRPM != 6000 {
		t.Errorf("MeanRPM = %v, want 6000", stats.MeanRPM)
	}
	if stats.Laps != 2 {
		t.Errorf("Laps = %d, want 2", stats.Laps)
	}

	empty, err := s.SessionStats(ctx, "missing")
	if err != nil {
		t.Fatalf("SessionStats(missing): %v", err)
	}
	if empty.SampleCount != 0 {
		t.Errorf("empty SampleCount = %d, want 0", empty.SampleCount)
	}
}
