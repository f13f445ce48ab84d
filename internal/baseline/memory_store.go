package baseline

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	observations map[string][]*Observation // entityID → observations
	baselines    map[string]*EntityBaseline
}

// NewMemoryStore creates an in-memory baseline store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		observations: make(map[string][]*Observation),
		baselines:    make(map[string]*EntityBaseline),
	}
}

func (s *MemoryStore) AppendObservation(ctx context.Context, obs *Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	o := *obs
	o.ID = s.nextID
	s.observations[obs.EntityID] = append(s.observations[obs.EntityID], &o)
	return nil
}

func (s *MemoryStore) ObservationsSince(ctx context.Context, entityID string, since time.Time) ([]*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Observation
	for _, o := range s.observations[entityID] {
		if o.ObservedAt.After(since) {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *MemoryStore) EntitiesWithObservations(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for id, observations := range s.observations {
		for _, o := range observations {
			if o.ObservedAt.After(since) {
				result = append(result, id)
				break
			}
		}
	}
	return result, nil
}

func (s *MemoryStore) PruneObservations(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, observations := range s.observations {
		kept := observations[:0]
		for _, o := range observations {
			if !o.ObservedAt.Before(before) {
				kept = append(kept, o)
			}
		}
		if len(kept) == 0 {
			delete(s.observations, id)
		} else {
			s.observations[id] = kept
		}
	}
	return nil
}

func (s *MemoryStore) SaveBaselines(ctx context.Context, baselines []*EntityBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range baselines {
		copied := *b
		s.baselines[b.EntityID] = &copied
	}
	return nil
}

func (s *MemoryStore) AllBaselines(ctx context.Context) ([]*EntityBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*EntityBaseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		copied := *b
		result = append(result, &copied)
	}
	return result, nil
}
