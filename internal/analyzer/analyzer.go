// Package analyzer implements the four signal analyzers: account posture,
// transaction pattern, geolocation, and device/session.
//
// All four follow the same contract. Each evaluates an ordered list of
// checks against the region's pattern tables; every check that fires
// appends one weighted factor. The score is the average of matched factor
// weights, clamped to [0, 1] — averaging, not summing, so many small
// factors cannot inflate the score unboundedly. Missing or malformed input
// degrades to a fixed low-confidence result; analyzers never return errors
// and never panic past their own boundary, because four of them run in
// parallel and one bad payload must not abort the others.
package analyzer

import (
	"fmt"

	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
)

// insufficient is the fixed low-confidence result for payloads that lack
// the fields a variant needs.
func insufficient(reason string) *risk.SignalResult {
	return &risk.SignalResult{
		Score:   risk.InsufficientDataScore,
		Level:   risk.LevelLow,
		Details: map[string]string{"reason": reason},
	}
}

// finalize turns matched factors into a SignalResult using the region's
// signal thresholds.
func finalize(p *region.Profile, factors []risk.RiskFactor, details map[string]string) *risk.SignalResult {
	if len(factors) == 0 {
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

	return &risk.SignalResult{
		Score:   score,
		Level:   levelFor(score, p.Signal),
		Factors: factors,
		Details: details,
	}
}

func levelFor(score float64, t region.SignalThresholds) risk.Level {
	switch {
	case score < t.Medium:
		return risk.LevelLow
	case score < t.High:
		return risk.LevelMedium
	default:
		return risk.LevelHigh
	}
}

func fmtAmount(amount float64, currency string) string {
	return fmt.Sprintf("%.2f %s", amount, currency)
}
