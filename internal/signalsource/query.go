package signalsource

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vigialabs/vigia/internal/circuitbreaker"
	"github.com/vigialabs/vigia/internal/metrics"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/retry"
	"github.com/vigialabs/vigia/internal/risk"
	"github.com/vigialabs/vigia/internal/traces"
)

// DefaultTimeout bounds the whole fan-out; a source that has not answered
// by then is treated as unavailable.
const DefaultTimeout = 3 * time.Second

const (
	queryAttempts  = 2
	queryBaseDelay = 100 * time.Millisecond
)

// Querier fans a check set out to every injected source concurrently. A
// per-source circuit breaker skips registries that keep failing instead of
// paying their timeout on every analysis.
type Querier struct {
	sources []Source
	breaker *circuitbreaker.Breaker
	timeout time.Duration
	logger  *slog.Logger
}

// NewQuerier creates a querier over the given sources.
func NewQuerier(sources []Source, logger *slog.Logger) *Querier {
	return &Querier{
		sources: sources,
		breaker: circuitbreaker.New(5, 30*time.Second),
		timeout: DefaultTimeout,
		logger:  logger,
	}
}

// WithTimeout overrides the fan-out timeout.
func (q *Querier) WithTimeout(d time.Duration) *Querier {
	q.timeout = d
	return q
}

// HasSources reports whether any source is configured.
func (q *Querier) HasSources() bool {
	return len(q.sources) > 0
}

type sourceAnswer struct {
	name  string
	facts map[string]Fact
	err   error
}

// QueryAll queries every source that covers part of the check set and
// merges the answers. Source errors and timeouts degrade to "unavailable":
// the names of sources that did not answer come back in the second return
// value, and QueryAll itself never fails.
func (q *Querier) QueryAll(ctx context.Context, ref EntityRef, checks CheckSet) (map[string]Fact, []string) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	answers := make(chan sourceAnswer, len(q.sources))
	launched := 0

	for _, src := range q.sources {
		if !covers(src.Checks(), checks) {
			continue
		}
		if !q.breaker.Allow(src.Name()) {
			q.logger.Warn("signal source circuit open, skipping", "source", src.Name())
			continue
		}
		launched++
		go q.queryOne(ctx, src, ref, checks, answers)
	}

	facts := make(map[string]Fact)
	var unavailable []string

	for i := 0; i < launched; i++ {
		select {
		case a := <-answers:
			if a.err != nil {
				q.breaker.RecordFailure(a.name)
				metrics.SourceFailuresTotal.WithLabelValues(a.name).Inc()
				q.logger.Warn("signal source unavailable", "source", a.name, "error", a.err)
				unavailable = append(unavailable, a.name)
				continue
			}
			q.breaker.RecordSuccess(a.name)
			for check, fact := range a.facts {
				// Keep the more severe fact when two sources answer the
				// same check.
				if existing, ok := facts[check]; !ok || factWeight(fact, nil) > factWeight(existing, nil) {
					facts[check] = fact
				}
			}
		case <-ctx.Done():
			// Whatever has not answered by the deadline is unavailable.
			unavailable = append(unavailable, "timeout")
			sort.Strings(unavailable)
			return facts, unavailable
		}
	}
	sort.Strings(unavailable)
	return facts, unavailable
}

// queryOne runs a single source query with bounded retries. Panics are
// recovered at this boundary so a broken adapter cannot abort the
// analysis.
func (q *Querier) queryOne(ctx context.Context, src Source, ref EntityRef, checks CheckSet, out chan<- sourceAnswer) {
	defer func() {
		if r := recover(); r != nil {
			out <- sourceAnswer{name: src.Name(), err: fmt.Errorf("source panic: %v", r)}
		}
	}()

	ctx, span := traces.StartSpan(ctx, "signalsource.query",
		traces.SourceName(src.Name()),
		traces.EntityID(ref.EntityID),
	)
	defer span.End()

	start := time.Now()
	var facts map[string]Fact
	err := retry.Do(ctx, queryAttempts, queryBaseDelay, func() error {
		var qerr error
		facts, qerr = src.Query(ctx, ref, checks)
		return qerr
	})
	metrics.SourceQueryDuration.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())

	out <- sourceAnswer{name: src.Name(), facts: facts, err: err}
}

// covers reports whether the source answers at least one requested check.
// An empty request means "everything the source has".
func covers(offered, requested CheckSet) bool {
	if len(requested) == 0 {
		return len(offered) > 0
	}
	for _, check := range requested {
		if offered.Contains(check) {
			return true
		}
	}
	return false
}

// ToSignalResult converts found facts into a regional SignalResult.
// Returns nil when nothing was found and no source failed — the category
// is absent, not zero-risk. Check names resolve weights through the
// region profile first, then the source-supplied weight, then the
// severity default.
func ToSignalResult(facts map[string]Fact, unavailable []string, p *region.Profile) *risk.SignalResult {
	var factors []risk.RiskFactor

	// Sort check names for deterministic factor order.
	names := make([]string, 0, len(facts))
	for name := range facts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fact := facts[name]
		if !fact.Found {
			continue
		}
		factors = append(factors, risk.RiskFactor{
			Name:        name,
			Weight:      factWeight(fact, p),
			Description: fact.Description,
			Source:      risk.SourceRegional,
		})
	}

	if len(factors) == 0 {
		if len(facts) == 0 {
			return nil
		}
		// Sources answered and found nothing: a genuine clean read.
		details := map[string]string{"checks_clear": fmt.Sprintf("%d", len(facts))}
		if len(unavailable) > 0 {
			details["sources_unavailable"] = fmt.Sprintf("%d", len(unavailable))
		}
		return &risk.SignalResult{
			Score:   risk.InsufficientDataScore,
			Level:   risk.LevelLow,
			Details: details,
		}
	}

	var sum float64
	for _, f := range factors {
		sum += f.Weight
	}
	score := risk.Clamp01(sum / float64(len(factors)))

	level := risk.LevelLow
	switch {
	case score >= p.Signal.High:
		level = risk.LevelHigh
	case score >= p.Signal.Medium:
		level = risk.LevelMedium
	}

	details := map[string]string{}
	if len(unavailable) > 0 {
		details["sources_unavailable"] = fmt.Sprintf("%d", len(unavailable))
	}
	return &risk.SignalResult{Score: score, Level: level, Factors: factors, Details: details}
}

// factWeight resolves the effective weight of a fact. p may be nil when
// comparing facts before a profile is in play.
func factWeight(fact Fact, p *region.Profile) float64 {
	if p != nil {
		if w, ok := p.FactorWeights[fact.Check]; ok {
			return w
		}
	}
	if fact.Weight > 0 {
		return risk.Clamp01(fact.Weight)
	}
	return fact.Severity.defaultWeight()
}
