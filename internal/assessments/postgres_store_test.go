package assessments

import (
	"context"
	"testing"
	"time"

	"github.com/vigialabs/vigia/internal/risk"
	"github.com/vigialabs/vigia/internal/testutil"
)

func TestPostgresStore_RecordGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()

	r := seedResult(1, "AO", risk.LevelHigh, time.Now().UTC().Truncate(time.Microsecond))
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
	if got.CategoryScores[risk.SourceAccount] != 0.5 {
		t.Errorf("category scores not round-tripped: %+v", got.CategoryScores)
	}
	if len(got.TopFactors) != 1 || got.TopFactors[0].Name != "new_account" {
		t.Errorf("factors not round-tripped: %+v", got.TopFactors)
	}

	if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ListAndPaginate(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 1; i <= 5; i++ {
		level := risk.LevelLow
		if i%2 == 0 {
			level = risk.LevelCritical
		}
		region := "AO"
		if i == 5 {
			region = "BR"
		}
		r := seedResult(i, region, level, base.Add(time.Duration(i)*time.Minute))
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	page, err := s.List(ctx, Filter{Region: "AO"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 4 {
		t.Fatalf("expected 4 AO assessments, got %d", len(page.Items))
	}
	if page.Items[0].ID != "as-004" {
		t.Errorf("expected newest first, got %s", page.Items[0].ID)
	}

	page, err = s.List(ctx, Filter{MinLevel: risk.LevelHigh})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 critical assessments, got %d", len(page.Items))
	}

	// Walk two pages of size 2.
	page, err = s.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore || page.NextCursor == "" {
		t.Fatalf("expected a full first page with cursor, got %+v", page)
	}
	seen := map[string]bool{page.Items[0].ID: true, page.Items[1].ID: true}

	page, err = s.List(ctx, Filter{Limit: 2, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("List with cursor failed: %v", err)
	}
	for _, item := range page.Items {
		if seen[item.ID] {
			t.Errorf("assessment %s repeated across pages", item.ID)
		}
	}
}

func TestPostgresStore_CountSince(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	_ = s.Record(ctx, seedResult(1, "AO", risk.LevelLow, base.Add(-2*time.Hour)))
	_ = s.Record(ctx, seedResult(2, "AO", risk.LevelLow, base))

	n, err := s.CountSince(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recent assessment, got %d", n)
	}
}
