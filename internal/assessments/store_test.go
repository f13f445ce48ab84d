package assessments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vigialabs/vigia/internal/risk"
)

func seedResult(i int, region string, level risk.Level, at time.Time) *risk.CombinedResult {
	return &risk.CombinedResult{
		ID:                fmt.Sprintf("as-%03d", i),
		EntityID:          fmt.Sprintf("user-%d", i%3),
		EntityType:        "user",
		Region:            region,
		Score:             0.5,
		Level:             level,
		RecommendedAction: risk.ActionFor(level),
		CategoryScores:    map[risk.Source]float64{risk.SourceAccount: 0.5},
		TopFactors: []risk.RiskFactor{
			{Name: "new_account", Weight: 0.5, Source: risk.SourceAccount},
		},
		EvaluatedAt: at,
	}
}

func TestMemoryStore_RecordGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := seedResult(1, "AO", risk.LevelHigh, time.Now().UTC())
	if err := s.Record(ctx, r); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := s.Get(ctx, "as-001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Region != "AO" || got.Level != risk.LevelHigh {
		t.Errorf("unexpected assessment: %+v", got)
	}
	if len(got.TopFactors) != 1 || got.TopFactors[0].Name != "new_account" {
		t.Errorf("factors not round-tripped: %+v", got.TopFactors)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	_ = s.Record(ctx, seedResult(1, "AO", risk.LevelLow, base.Add(-3*time.Minute)))
	_ = s.Record(ctx, seedResult(2, "AO", risk.LevelCritical, base.Add(-2*time.Minute)))
	_ = s.Record(ctx, seedResult(3, "BR", risk.LevelHigh, base.Add(-time.Minute)))

	page, err := s.List(ctx, Filter{Region: "AO"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 AO assessments, got %d", len(page.Items))
	}
	// Newest first.
	if page.Items[0].ID != "as-002" {
		t.Errorf("expected as-002 first, got %s", page.Items[0].ID)
	}

	page, err = s.List(ctx, Filter{MinLevel: risk.LevelHigh})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("expected 2 assessments at high or above, got %d", len(page.Items))
	}
}

func TestMemoryStore_ListPagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := range 5 {
		_ = s.Record(ctx, seedResult(i, "MZ", risk.LevelMedium, base.Add(time.Duration(i)*time.Minute)))
	}

	first, err := s.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(first.Items) != 2 || !first.HasMore || first.NextCursor == "" {
		t.Fatalf("expected full first page with cursor, got %d items hasMore=%v", len(first.Items), first.HasMore)
	}

	second, err := s.List(ctx, Filter{Limit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("List with cursor failed: %v", err)
	}
	if len(second.Items) != 2 {
		t.Fatalf("expected 2 items on second page, got %d", len(second.Items))
	}
	if second.Items[0].ID == first.Items[1].ID {
		t.Error("second page repeats first page items")
	}

	third, err := s.List(ctx, Filter{Limit: 2, Cursor: second.NextCursor})
	if err != nil {
		t.Fatalf("List with cursor failed: %v", err)
	}
	if len(third.Items) != 1 || third.HasMore {
		t.Errorf("expected final page of 1, got %d hasMore=%v", len(third.Items), third.HasMore)
	}
}

func TestMemoryStore_ListBadCursor(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.List(context.Background(), Filter{Cursor: "!!!not-base64"}); err == nil {
		t.Error("expected error for malformed cursor")
	}
}

func TestMemoryStore_CountSince(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	_ = s.Record(ctx, seedResult(1, "PT", risk.LevelLow, base.Add(-2*time.Hour)))
	_ = s.Record(ctx, seedResult(2, "PT", risk.LevelLow, base.Add(-10*time.Minute)))

	n, err := s.CountSince(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recent assessment, got %d", n)
	}
}

func TestMemoryStore_RecordIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := seedResult(1, "AO", risk.LevelLow, time.Now().UTC())
	_ = s.Record(ctx, r)

	// Mutating the caller's copy must not affect the stored record.
	r.Score = 0.99
	r.TopFactors[0].Name = "mutated"

	got, _ := s.Get(ctx, "as-001")
	if got.Score != 0.5 || got.TopFactors[0].Name != "new_account" {
		t.Errorf("stored record mutated through caller pointer: %+v", got)
	}
}
