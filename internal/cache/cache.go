// Package cache provides TTL caching of combined risk results. Two
// backends exist: an in-process store for single-node deployments and a
// Redis store for sharing results across replicas.
package cache

import (
	"context"
	"time"

	"github.com/vigialabs/vigia/internal/risk"
)

// DefaultTTL is how long a behavioral assessment stays fresh. Risk
// signals move fast; five minutes bounds how stale a served score can be.
const DefaultTTL = 5 * time.Minute

// Store caches assessment results keyed by the analysis digest.
type Store interface {
	// Get returns the cached result for key, or (nil, false) when absent
	// or expired. Backend errors degrade to a miss.
	Get(ctx context.Context, key string) (*risk.CombinedResult, bool)

	// Put stores the result under key for ttl. A ttl <= 0 uses DefaultTTL.
	Put(ctx context.Context, key string, result *risk.CombinedResult, ttl time.Duration)

	// Evict removes any entry for key.
	Evict(ctx context.Context, key string)
}
