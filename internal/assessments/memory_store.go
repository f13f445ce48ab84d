package assessments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vigialabs/vigia/internal/pagination"
	"github.com/vigialabs/vigia/internal/risk"
)

// MemoryStore is an in-memory Store for tests and single-node runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*risk.CombinedResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*risk.CombinedResult)}
}

func (s *MemoryStore) Record(_ context.Context, result *risk.CombinedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneResult(result)
	s.items[cp.ID] = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*risk.CombinedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResult(r), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) (*Page, error) {
	cursor, err := pagination.Decode(f.Cursor)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(f.Limit)

	s.mu.RLock()
	var matched []*risk.CombinedResult
	for _, r := range s.items {
		if f.Region != "" && r.Region != f.Region {
			continue
		}
		if f.EntityID != "" && r.EntityID != f.EntityID {
			continue
		}
		if f.MinLevel != "" && !r.Level.AtLeast(f.MinLevel) {
			continue
		}
		matched = append(matched, cloneResult(r))
	}
	s.mu.RUnlock()

	// Newest first, ID as a stable tiebreak for identical timestamps.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].EvaluatedAt.Equal(matched[j].EvaluatedAt) {
			return matched[i].EvaluatedAt.After(matched[j].EvaluatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if cursor != nil {
		pos := sort.Search(len(matched), func(i int) bool {
			r := matched[i]
			if !r.EvaluatedAt.Equal(cursor.CreatedAt) {
				return r.EvaluatedAt.Before(cursor.CreatedAt)
			}
			return r.ID < cursor.ID
		})
		matched = matched[pos:]
	}

	if len(matched) > limit+1 {
		matched = matched[:limit+1]
	}
	items, next, hasMore := pagination.ComputePage(matched, limit, func(r *risk.CombinedResult) (time.Time, string) {
		return r.EvaluatedAt, r.ID
	})
	return &Page{Items: items, NextCursor: next, HasMore: hasMore}, nil
}

func (s *MemoryStore) CountSince(_ context.Context, t time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.items {
		if !r.EvaluatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}

func cloneResult(r *risk.CombinedResult) *risk.CombinedResult {
	cp := *r
	cp.CategoryScores = make(map[risk.Source]float64, len(r.CategoryScores))
	for k, v := range r.CategoryScores {
		cp.CategoryScores[k] = v
	}
	cp.TopFactors = append([]risk.RiskFactor(nil), r.TopFactors...)
	return &cp
}

var _ Store = (*MemoryStore)(nil)
