package signalsource

import (
	"context"
	"sync"
	"time"
)

// StaticSource serves facts from an in-memory table. Used in tests and in
// demo deployments that have no registry connectivity; real adapters
// implement Source against their wire protocol elsewhere.
type StaticSource struct {
	name   string
	checks CheckSet

	mu    sync.RWMutex
	facts map[string]map[string]Fact // entityID → check → fact

	// Fault injection for tests.
	latency time.Duration
	err     error
}

// NewStatic creates a static source answering the given checks.
func NewStatic(name string, checks CheckSet) *StaticSource {
	return &StaticSource{
		name:   name,
		checks: checks,
		facts:  make(map[string]map[string]Fact),
	}
}

// SetFact records a fact for an entity.
func (s *StaticSource) SetFact(entityID string, fact Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.facts[entityID] == nil {
		s.facts[entityID] = make(map[string]Fact)
	}
	s.facts[entityID][fact.Check] = fact
}

// SetLatency makes every query take at least d.
func (s *StaticSource) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// SetError makes every query fail with err. Pass nil to clear.
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *StaticSource) Name() string     { return s.name }
func (s *StaticSource) Checks() CheckSet { return s.checks }

func (s *StaticSource) Query(ctx context.Context, ref EntityRef, checks CheckSet) (map[string]Fact, error) {
	s.mu.RLock()
	latency, err := s.latency, s.err
	known := s.facts[ref.EntityID]
	s.mu.RUnlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	result := make(map[string]Fact)
	for _, check := range s.checks {
		if len(checks) > 0 && !checks.Contains(check) {
			continue
		}
		if fact, ok := known[check]; ok {
			result[check] = fact
		} else {
			result[check] = Fact{Check: check, Found: false}
		}
	}
	return result, nil
}
