// Package aggregate combines per-category signal results into one verdict.
package aggregate

import (
	"sort"
	"time"

	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
)

// EscalationThreshold is the individual category score above which the
// combined score is floored to that value: a single severe signal — a
// sanctions hit, impossible travel — must never be diluted below High by
// averaging with quiet categories.
const EscalationThreshold = 0.8

// MaxTopFactors bounds the factor list on the combined result.
const MaxTopFactors = 10

// Combine merges the present category results into a CombinedResult using
// the region's category weights.
//
// Missing categories are excluded from both the numerator and the weight
// denominator — absent is not zero-risk; an analysis with two categories
// scores exactly as those two categories' weighted contribution implies.
// Combine is deterministic and order-independent: it iterates categories
// in canonical order and sorts factors before truncation.
func Combine(results map[risk.Source]*risk.SignalResult, p *region.Profile) *risk.CombinedResult {
	combined := &risk.CombinedResult{
		Region:         p.Region,
		CategoryScores: make(map[risk.Source]float64, len(results)),
		EvaluatedAt:    time.Now().UTC(),
	}

	var weightedSum, weightSum, maxIndividual float64
	var allFactors []risk.RiskFactor

	for _, src := range risk.Sources {
		res := results[src]
		if res == nil {
			continue
		}
		w := p.CategoryWeights[src]
		if w <= 0 {
			w = region.DefaultFactorWeight
		}
		weightedSum += res.Score * w
		weightSum += w
		combined.CategoryScores[src] = res.Score
		if res.Score > maxIndividual {
			maxIndividual = res.Score
		}
		allFactors = append(allFactors, res.Factors...)
	}

	var score float64
	if weightSum > 0 {
		score = weightedSum / weightSum
	}
	if maxIndividual >= EscalationThreshold && score < EscalationThreshold {
		score = EscalationThreshold
	}
	combined.Score = risk.Clamp01(score)
	combined.Level = levelFor(combined.Score, p.Combined)
	combined.RecommendedAction = risk.ActionFor(combined.Level)
	combined.TopFactors = topFactors(allFactors)
	return combined
}

func levelFor(score float64, t region.CombinedThresholds) risk.Level {
	switch {
	case score < t.Medium:
		return risk.LevelLow
	case score < t.High:
		return risk.LevelMedium
	case score < t.Critical:
		return risk.LevelHigh
	default:
		return risk.LevelCritical
	}
}

// topFactors sorts descending by weight, breaking ties by name so the
// output does not depend on branch completion order, then truncates.
func topFactors(factors []risk.RiskFactor) []risk.RiskFactor {
	sorted := make([]risk.RiskFactor, len(factors))
	copy(sorted, factors)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].Name < sorted[j].Name
	})
	if len(sorted) > MaxTopFactors {
		sorted = sorted[:MaxTopFactors]
	}
	return sorted
}
