package metrics

import (
	"sync"
	"time"

	"github.com/vigialabs/vigia/internal/risk"
)

// Collector keeps in-process counters for the engine metrics endpoint.
// Prometheus collectors serve scraping; this serves the JSON API, which
// needs computed rates rather than raw series.
type Collector struct {
	mu            sync.Mutex
	analyses      int64
	flagged       int64
	cacheHits     int64
	cacheMisses   int64
	totalLatency  time.Duration
	latencySample int64
	byRegion      map[string]int64
	byLevel       map[string]int64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		byRegion: make(map[string]int64),
		byLevel:  make(map[string]int64),
	}
}

// RecordAnalysis records a completed analysis. Cached results contribute
// to hit-rate accounting but not to latency, which measures real scoring
// work only.
func (c *Collector) RecordAnalysis(region string, level risk.Level, latency time.Duration, cacheHit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.analyses++
	c.byRegion[region]++
	c.byLevel[string(level)]++
	if level.AtLeast(risk.LevelHigh) {
		c.flagged++
	}
	if cacheHit {
		c.cacheHits++
	} else {
		c.cacheMisses++
		c.totalLatency += latency
		c.latencySample++
	}
}

// Snapshot is a point-in-time view of engine counters.
type Snapshot struct {
	Analyses             int64            `json:"analyses"`
	Flagged              int64            `json:"flagged"`
	DetectionRatePercent float64          `json:"detection_rate_percent"`
	CacheHits            int64            `json:"cache_hits"`
	CacheMisses          int64            `json:"cache_misses"`
	CacheHitRatePercent  float64          `json:"cache_hit_rate_percent"`
	AvgLatencyMillis     float64          `json:"avg_latency_ms"`
	ByRegion             map[string]int64 `json:"by_region"`
	ByLevel              map[string]int64 `json:"by_level"`
}

// Snapshot returns a copy of the current counters with derived rates.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Analyses:    c.analyses,
		Flagged:     c.flagged,
		CacheHits:   c.cacheHits,
		CacheMisses: c.cacheMisses,
		ByRegion:    make(map[string]int64, len(c.byRegion)),
		ByLevel:     make(map[string]int64, len(c.byLevel)),
	}
	for k, v := range c.byRegion {
		s.ByRegion[k] = v
	}
	for k, v := range c.byLevel {
		s.ByLevel[k] = v
	}
	if c.analyses > 0 {
		s.DetectionRatePercent = float64(c.flagged) / float64(c.analyses) * 100
	}
	if lookups := c.cacheHits + c.cacheMisses; lookups > 0 {
		s.CacheHitRatePercent = float64(c.cacheHits) / float64(lookups) * 100
	}
	if c.latencySample > 0 {
		s.AvgLatencyMillis = float64(c.totalLatency.Milliseconds()) / float64(c.latencySample)
	}
	return s
}
