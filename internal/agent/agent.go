// Package agent orchestrates behavioral fraud analysis for one region.
// An Agent fans a request out to the category analyzers and the regional
// signal sources in parallel, aggregates the answers into a combined
// verdict, and handles caching, persistence, and alerting around the
// scoring itself.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vigialabs/vigia/internal/aggregate"
	"github.com/vigialabs/vigia/internal/analyzer"
	"github.com/vigialabs/vigia/internal/assessments"
	"github.com/vigialabs/vigia/internal/baseline"
	"github.com/vigialabs/vigia/internal/cache"
	"github.com/vigialabs/vigia/internal/idgen"
	"github.com/vigialabs/vigia/internal/metrics"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
	"github.com/vigialabs/vigia/internal/signalsource"
	"github.com/vigialabs/vigia/internal/syncutil"
	"github.com/vigialabs/vigia/internal/traces"
)

// Baselines supplies learned per-entity behavior and accepts new
// observations. *baseline.Worker satisfies it.
type Baselines interface {
	Get(entityID string) *baseline.EntityBaseline
	Record(ctx context.Context, obs *baseline.Observation)
}

// Agent scores behavior for a single region.
type Agent struct {
	profile   *region.Profile
	querier   *signalsource.Querier
	cache     cache.Store
	cacheTTL  time.Duration
	store     assessments.Store
	baselines Baselines
	collector *metrics.Collector
	alertFn   func(*risk.CombinedResult)
	logger    *slog.Logger
	locks     syncutil.ContextShardedMutex
}

// Option configures an Agent.
type Option func(*Agent)

// WithQuerier wires regional signal sources into the analysis fan-out.
func WithQuerier(q *signalsource.Querier) Option {
	return func(a *Agent) { a.querier = q }
}

// WithCache enables result caching.
func WithCache(c cache.Store, ttl time.Duration) Option {
	return func(a *Agent) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithAssessmentStore enables best-effort persistence of results.
func WithAssessmentStore(s assessments.Store) Option {
	return func(a *Agent) { a.store = s }
}

// WithBaselines wires learned entity baselines into the analyzers.
func WithBaselines(b Baselines) Option {
	return func(a *Agent) { a.baselines = b }
}

// WithCollector wires the engine metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(a *Agent) { a.collector = c }
}

// WithAlertFunc registers a callback invoked (asynchronously) for every
// flagged result.
func WithAlertFunc(fn func(*risk.CombinedResult)) Option {
	return func(a *Agent) { a.alertFn = fn }
}

// New creates an Agent for the given region profile.
func New(p *region.Profile, logger *slog.Logger, opts ...Option) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		profile: p,
		logger:  logger.With("region", p.Region),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Region returns the agent's region code.
func (a *Agent) Region() string {
	return a.profile.Region
}

type branchAnswer struct {
	source risk.Source
	result *risk.SignalResult
}

// AnalyzeBehavior runs a full analysis for one request. Category branches
// run in parallel; a branch that lacks data or whose source is down
// degrades to a recoverable outcome rather than failing the call. If ctx
// expires mid-analysis the branches that already answered are scored as a
// partial result; only invalid input and expiry before any branch answers
// are errors.
func (a *Agent) AnalyzeBehavior(ctx context.Context, req *Request) (*risk.CombinedResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimedOut, ctx.Err())
	}

	ctx, span := traces.StartSpan(ctx, "agent.analyze_behavior",
		traces.Region(a.profile.Region),
		traces.EntityID(req.EntityID),
		traces.EntityType(req.EntityType),
	)
	defer span.End()

	key := cacheKey(a.profile.Region, req)
	if hit := a.cacheGet(ctx, req, key); hit != nil {
		span.SetAttributes(traces.CacheHit(true))
		return hit, nil
	}

	// Serialize concurrent identical requests so one computes and the
	// rest hit the cache. Correctness does not depend on this; it only
	// avoids duplicate work during bursts.
	unlock, err := a.locks.LockContext(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimedOut, err)
	}
	defer unlock()
	if hit := a.cacheGet(ctx, req, key); hit != nil {
		span.SetAttributes(traces.CacheHit(true))
		return hit, nil
	}

	start := time.Now()
	results, err := a.fanOut(ctx, req)
	if err != nil {
		return nil, err
	}

	combined := aggregate.Combine(results, a.profile)
	combined.ID = idgen.WithPrefix("as_")
	combined.EntityID = req.EntityID
	combined.EntityType = req.EntityType
	span.SetAttributes(traces.AssessmentID(combined.ID), traces.RiskLevel(string(combined.Level)))

	elapsed := time.Since(start)
	a.finish(ctx, req, key, combined, elapsed)
	return combined, nil
}

// fanOut launches one goroutine per present category plus the regional
// source branch, and collects until all answer or ctx expires. On expiry
// the answers collected so far are returned as-is; ErrTimedOut only when
// nothing answered in time. A branch panic is confined to that branch:
// the category is dropped from the result instead of crashing the
// analysis.
func (a *Agent) fanOut(ctx context.Context, req *Request) (map[risk.Source]*risk.SignalResult, error) {
	var b *baseline.EntityBaseline
	if a.baselines != nil {
		b = a.baselines.Get(req.EntityID)
	}
	p := a.profile
	payload := req.Payload

	type branch struct {
		source risk.Source
		run    func() *risk.SignalResult
	}
	branches := []branch{
		{risk.SourceAccount, func() *risk.SignalResult {
			if payload.Account == nil {
				return nil
			}
			return analyzer.AnalyzeAccount(payload.Account, p, b)
		}},
		{risk.SourceTransaction, func() *risk.SignalResult {
			if payload.Transaction == nil {
				return nil
			}
			return analyzer.AnalyzeTransaction(payload.Transaction, p, b)
		}},
		{risk.SourceLocation, func() *risk.SignalResult {
			if payload.Location == nil {
				return nil
			}
			return analyzer.AnalyzeLocation(payload.Location, p, b)
		}},
		{risk.SourceDevice, func() *risk.SignalResult {
			if payload.Device == nil && payload.Session == nil {
				return nil
			}
			return analyzer.AnalyzeDevice(payload.Device, payload.Session, p, b)
		}},
		{risk.SourceRegional, func() *risk.SignalResult {
			if a.querier == nil || !a.querier.HasSources() {
				return nil
			}
			ref := signalsource.EntityRef{EntityID: req.EntityID, EntityType: req.EntityType}
			facts, unavailable := a.querier.QueryAll(ctx, ref, nil)
			return signalsource.ToSignalResult(facts, unavailable, p)
		}},
	}

	answers := make(chan branchAnswer, len(branches))
	for _, br := range branches {
		go func(br branch) {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("analyzer branch panic",
						"source", string(br.source), "panic", fmt.Sprint(r))
					answers <- branchAnswer{source: br.source, result: nil}
				}
			}()
			answers <- branchAnswer{source: br.source, result: br.run()}
		}(br)
	}

	results := make(map[risk.Source]*risk.SignalResult, len(branches))
	for range branches {
		select {
		case ans := <-answers:
			if ans.result != nil {
				results[ans.source] = ans.result
			}
		case <-ctx.Done():
			// Deadline hit. Keep every branch that already answered
			// (the channel is buffered, so finished branches are never
			// lost) and abandon the rest; their categories stay absent.
		drain:
			for {
				select {
				case ans := <-answers:
					if ans.result != nil {
						results[ans.source] = ans.result
					}
				default:
					break drain
				}
			}
			if len(results) == 0 {
				return nil, fmt.Errorf("%w: %v", ErrTimedOut, ctx.Err())
			}
			a.logger.Warn("analysis deadline hit, scoring on partial answers",
				"answered", len(results), "launched", len(branches))
			return results, nil
		}
	}
	return results, nil
}

func (a *Agent) cacheGet(ctx context.Context, req *Request, key string) *risk.CombinedResult {
	if a.cache == nil || req.SkipCache {
		return nil
	}
	cached, ok := a.cache.Get(ctx, key)
	if !ok {
		metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.CacheHitsTotal.WithLabelValues("hit").Inc()
	cached.Cached = true
	if a.collector != nil {
		a.collector.RecordAnalysis(a.profile.Region, cached.Level, 0, true)
	}
	return cached
}

// finish records everything around a freshly computed result: cache,
// Prometheus series, the engine collector, best-effort persistence, the
// baseline observation, and the alert hook. None of it can fail the
// analysis.
func (a *Agent) finish(ctx context.Context, req *Request, key string, combined *risk.CombinedResult, elapsed time.Duration) {
	if a.cache != nil && !req.SkipCache {
		a.cache.Put(ctx, key, combined, a.cacheTTL)
	}

	metrics.AnalysesTotal.WithLabelValues(a.profile.Region, string(combined.Level)).Inc()
	metrics.AnalysisDuration.WithLabelValues(a.profile.Region).Observe(elapsed.Seconds())
	if combined.Flagged() {
		metrics.FraudFlagsTotal.WithLabelValues(a.profile.Region).Inc()
	}
	if a.collector != nil {
		a.collector.RecordAnalysis(a.profile.Region, combined.Level, elapsed, false)
	}

	if a.store != nil {
		result := *combined
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.store.Record(rctx, &result); err != nil {
				a.logger.Error("failed to persist assessment", "id", result.ID, "error", err)
			}
		}()
	}

	if a.baselines != nil {
		if obs := observationFrom(req); obs != nil {
			a.baselines.Record(ctx, obs)
		}
	}

	if a.alertFn != nil && combined.Flagged() {
		result := *combined
		go a.alertFn(&result)
	}

	a.logger.Info("behavior analyzed",
		"entity_id", req.EntityID,
		"assessment_id", combined.ID,
		"score", combined.Score,
		"level", string(combined.Level),
		"action", string(combined.RecommendedAction),
		"duration_ms", elapsed.Milliseconds(),
	)
}

// observationFrom extracts the baseline observation a request implies.
// Only genuinely observed values feed learning; an analysis with no
// transaction, location, or device contributes nothing.
func observationFrom(req *Request) *baseline.Observation {
	obs := &baseline.Observation{
		EntityID:   req.EntityID,
		ObservedAt: time.Now().UTC(),
	}
	any := false
	if tx := req.Payload.Transaction; tx != nil && tx.Current.Amount > 0 {
		obs.Amount = tx.Current.Amount
		if !tx.Current.Timestamp.IsZero() {
			// Keep the caller's offset: the baseline hour histogram is
			// region-local, like the analyzers' night check.
			obs.ObservedAt = tx.Current.Timestamp
		}
		any = true
	}
	if loc := req.Payload.Location; loc != nil && loc.Current.Area != "" {
		obs.Area = loc.Current.Area
		any = true
	}
	if dev := req.Payload.Device; dev != nil && dev.DeviceID != "" {
		obs.DeviceID = dev.DeviceID
		any = true
	}
	if !any {
		return nil
	}
	return obs
}
