package baseline

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"
)

func obs(entityID string, amount float64, area, device string, at time.Time) *Observation {
	return &Observation{
		EntityID:   entityID,
		Amount:     amount,
		Area:       area,
		DeviceID:   device,
		ObservedAt: at,
	}
}

func TestCompute(t *testing.T) {
	now := time.Now()
	observations := []*Observation{
		obs("u1", 100, "Talatona", "dev-a", now.Add(-48*time.Hour)),
		obs("u1", 200, "Talatona", "dev-a", now.Add(-24*time.Hour)),
		obs("u1", 300, "Maianga", "dev-b", now),
	}

	b := Compute("u1", observations)
	if b == nil {
		t.Fatal("expected a baseline")
	}
	if b.SampleCount != 3 {
		t.Errorf("expected 3 samples, got %d", b.SampleCount)
	}
	if b.MeanAmount != 200 {
		t.Errorf("expected mean 200, got %f", b.MeanAmount)
	}
	// Population stddev of {100,200,300} is sqrt(20000/3).
	want := math.Sqrt(20000.0 / 3.0)
	if math.Abs(b.StddevAmount-want) > 1e-9 {
		t.Errorf("expected stddev %f, got %f", want, b.StddevAmount)
	}
	if len(b.KnownAreas) != 2 || len(b.KnownDevices) != 2 {
		t.Errorf("expected 2 areas and 2 devices, got %v / %v", b.KnownAreas, b.KnownDevices)
	}
	if !b.KnowsArea("Talatona") || b.KnowsArea("Cazenga") {
		t.Error("area knowledge broken")
	}
}

func TestCompute_Empty(t *testing.T) {
	if Compute("u1", nil) != nil {
		t.Error("no observations must yield no baseline")
	}
}

func TestCompute_HourHistogram(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local)
	observations := []*Observation{
		obs("u1", 10, "", "", day.Add(9*time.Hour)),
		obs("u1", 10, "", "", day.Add(9*time.Hour+30*time.Minute)),
		obs("u1", 10, "", "", day.Add(21*time.Hour)),
	}

	b := Compute("u1", observations)
	if b.HourCounts[9] != 2 || b.HourCounts[21] != 1 {
		t.Errorf("unexpected hour histogram: %v", b.HourCounts)
	}
	if f := b.HourFraction(9); math.Abs(f-2.0/3.0) > 1e-9 {
		t.Errorf("expected hour fraction 2/3, got %f", f)
	}

	// Observations keep their own offset; the histogram bucket is the
	// hour as the region saw it, not as the server's zone reads it.
	off := time.FixedZone("UTC-3", -3*3600)
	b = Compute("u1", []*Observation{obs("u1", 10, "", "", time.Date(2026, 8, 1, 23, 0, 0, 0, off))})
	if b.HourCounts[23] != 1 {
		t.Errorf("expected the 23h bucket in the observation's offset, got %v", b.HourCounts)
	}
}

func TestMature(t *testing.T) {
	var nilBaseline *EntityBaseline
	if nilBaseline.Mature() {
		t.Error("nil baseline must not be mature")
	}
	if (&EntityBaseline{SampleCount: minSamples - 1}).Mature() {
		t.Error("below minSamples must not be mature")
	}
	if !(&EntityBaseline{SampleCount: minSamples}).Mature() {
		t.Error("at minSamples must be mature")
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := s.AppendObservation(ctx, obs("u1", float64(100*(i+1)), "A", "d", now.Add(-time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AppendObservation failed: %v", err)
		}
	}
	_ = s.AppendObservation(ctx, obs("u2", 50, "B", "d2", now.Add(-40*24*time.Hour)))

	since := now.Add(-14 * 24 * time.Hour)
	entities, err := s.EntitiesWithObservations(ctx, since)
	if err != nil {
		t.Fatalf("EntitiesWithObservations failed: %v", err)
	}
	if len(entities) != 1 || entities[0] != "u1" {
		t.Errorf("expected only u1 active, got %v", entities)
	}

	observations, err := s.ObservationsSince(ctx, "u1", since)
	if err != nil {
		t.Fatalf("ObservationsSince failed: %v", err)
	}
	if len(observations) != 3 {
		t.Errorf("expected 3 observations, got %d", len(observations))
	}

	if err := s.PruneObservations(ctx, now.Add(-15*24*time.Hour)); err != nil {
		t.Fatalf("PruneObservations failed: %v", err)
	}
	if _, err := s.ObservationsSince(ctx, "u2", time.Time{}); err != nil {
		t.Fatalf("ObservationsSince failed: %v", err)
	}
	old, _ := s.ObservationsSince(ctx, "u2", time.Time{})
	if len(old) != 0 {
		t.Errorf("expected u2 observations pruned, got %d", len(old))
	}
}

func TestWorker_RecordAndRecompute(t *testing.T) {
	s := NewMemoryStore()
	w := NewWorker(s, slog.New(slog.DiscardHandler)).WithInterval(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	for i := 0; i < 12; i++ {
		w.Record(ctx, obs("u1", 100, "Talatona", "dev-a", now.Add(-time.Duration(i)*time.Hour)))
	}

	go w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if b := w.Get("u1"); b != nil {
			if !b.Mature() {
				t.Errorf("12 samples should be mature, got %d", b.SampleCount)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("baseline never computed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w.Stop()
	deadline = time.Now().Add(2 * time.Second)
	for w.Running() {
		if time.Now().After(deadline) {
			t.Fatal("worker never stopped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorker_LoadsPersistedBaselines(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.SaveBaselines(ctx, []*EntityBaseline{
		{EntityID: "u9", MeanAmount: 500, SampleCount: 30},
	})

	w := NewWorker(s, slog.New(slog.DiscardHandler)).WithInterval(time.Hour)
	go w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if b := w.Get("u9"); b != nil {
			if b.MeanAmount != 500 {
				t.Errorf("unexpected loaded baseline: %+v", b)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("persisted baseline never loaded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorker_GetUnknownEntity(t *testing.T) {
	w := NewWorker(NewMemoryStore(), slog.New(slog.DiscardHandler))
	if w.Get("nobody") != nil {
		t.Error("unknown entity must have nil baseline")
	}
}
