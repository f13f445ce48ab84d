package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vigialabs/vigia/internal/risk"
)

func TestAnalysesTotal_Increments(t *testing.T) {
	AnalysesTotal.Reset()

	AnalysesTotal.WithLabelValues("AO", "high").Inc()
	AnalysesTotal.WithLabelValues("AO", "high").Inc()

	m := &dto.Metric{}
	counter, err := AnalysesTotal.GetMetricWithLabelValues("AO", "high")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2, got %f", m.Counter.GetValue())
	}
}

func TestSourceQueryDuration_Observes(t *testing.T) {
	SourceQueryDuration.Reset()

	SourceQueryDuration.WithLabelValues("sanctions").Observe(0.12)

	ch := make(chan prometheus.Metric, 10)
	SourceQueryDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestMetrics_Registered(t *testing.T) {
	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}

	names := []string{
		"vigia_analyses_total",
		"vigia_source_query_duration_seconds",
		"vigia_cache_requests_total",
	}
	for _, name := range names {
		if !found[name] {
			// Metrics with no samples yet may not gather; that's OK.
			t.Logf("metric %s not yet gathered (no data written)", name)
		}
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector()

	c.RecordAnalysis("AO", risk.LevelCritical, 40*time.Millisecond, false)
	c.RecordAnalysis("AO", risk.LevelLow, 20*time.Millisecond, false)
	c.RecordAnalysis("BR", risk.LevelLow, 0, true)
	c.RecordAnalysis("BR", risk.LevelHigh, 60*time.Millisecond, false)

	s := c.Snapshot()

	if s.Analyses != 4 {
		t.Fatalf("expected 4 analyses, got %d", s.Analyses)
	}
	if s.Flagged != 2 {
		t.Errorf("expected 2 flagged (high + critical), got %d", s.Flagged)
	}
	if s.DetectionRatePercent != 50 {
		t.Errorf("expected detection rate 50%%, got %f", s.DetectionRatePercent)
	}
	if s.CacheHits != 1 || s.CacheMisses != 3 {
		t.Errorf("expected 1 hit / 3 misses, got %d / %d", s.CacheHits, s.CacheMisses)
	}
	if s.CacheHitRatePercent != 25 {
		t.Errorf("expected 25%% hit rate, got %f", s.CacheHitRatePercent)
	}
	if s.AvgLatencyMillis != 40 {
		t.Errorf("expected avg latency 40ms over misses, got %f", s.AvgLatencyMillis)
	}
	if s.ByRegion["AO"] != 2 || s.ByRegion["BR"] != 2 {
		t.Errorf("unexpected region counts: %v", s.ByRegion)
	}
}

func TestCollector_EmptySnapshot(t *testing.T) {
	s := NewCollector().Snapshot()
	if s.DetectionRatePercent != 0 || s.CacheHitRatePercent != 0 || s.AvgLatencyMillis != 0 {
		t.Errorf("expected zero rates on empty collector, got %+v", s)
	}
}
