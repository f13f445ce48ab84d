// Package risk defines the shared result types of the behavioral scoring
// engine.
//
// Every signal analyzer produces a SignalResult: a normalized score in
// [0, 1] plus the weighted factors that contributed to it. The aggregator
// combines one SignalResult per category into a single CombinedResult with
// a recommended action. Scores are bounded by construction — factor weights
// are averaged, never summed, so a long tail of small factors cannot
// inflate the score past 1.0.
package risk

import "time"

// Level classifies a score into an operational band.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// rank orders levels for comparison. Unknown levels rank lowest.
func (l Level) rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l is the same or a more severe level than other.
func (l Level) AtLeast(other Level) bool {
	return l.rank() >= other.rank()
}

// Max returns the more severe of l and other.
func (l Level) Max(other Level) Level {
	if other.rank() > l.rank() {
		return other
	}
	return l
}

// ParseLevel converts a string to a Level. Returns false for anything
// that is not one of the four defined bands.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return Level(s), true
	}
	return "", false
}

// Action is the recommended handling for a combined result.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionMonitor Action = "monitor"
	ActionVerify  Action = "verify"
	ActionBlock   Action = "block"
)

// ActionFor maps a level to its action. The mapping is fixed across
// regions; only the thresholds that produce a level are region-tunable.
func ActionFor(l Level) Action {
	switch l {
	case LevelMedium:
		return ActionMonitor
	case LevelHigh:
		return ActionVerify
	case LevelCritical:
		return ActionBlock
	default:
		return ActionAllow
	}
}

// Source identifies the signal category that produced a factor or result.
type Source string

const (
	SourceAccount     Source = "account"
	SourceTransaction Source = "transaction"
	SourceLocation    Source = "location"
	SourceDevice      Source = "device"
	SourceRegional    Source = "regional"
)

// Sources lists all categories in their canonical aggregation order.
// Aggregation iterates this slice, never a map, so results are
// deterministic regardless of branch completion order.
var Sources = []Source{
	SourceAccount,
	SourceTransaction,
	SourceLocation,
	SourceDevice,
	SourceRegional,
}

// RiskFactor is a single named, weighted piece of evidence. Immutable once
// produced: analyzers create factors, everything downstream only reads them.
type RiskFactor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"` // in [0, 1]
	Description string  `json:"description"`
	Source      Source  `json:"source"`
}

// InsufficientDataScore is returned when an analyzer lacks the fields it
// needs, or when no factors matched. A low-confidence default rather than
// zero: absence of evidence is not evidence of safety.
const InsufficientDataScore = 0.1

// SignalResult is the outcome of one analyzer invocation.
type SignalResult struct {
	Score   float64           `json:"score"` // in [0, 1]
	Level   Level             `json:"level"`
	Factors []RiskFactor      `json:"factors"`
	Details map[string]string `json:"details,omitempty"`
}

// CombinedResult is the final verdict for one analysis call.
type CombinedResult struct {
	ID                string             `json:"id"`
	EntityID          string             `json:"entityId"`
	EntityType        string             `json:"entityType"`
	Region            string             `json:"region"`
	Score             float64            `json:"score"` // in [0, 1]
	Level             Level              `json:"level"`
	RecommendedAction Action             `json:"recommendedAction"`
	CategoryScores    map[Source]float64 `json:"categoryScores"`
	TopFactors        []RiskFactor       `json:"topFactors"`
	Cached            bool               `json:"cached"`
	EvaluatedAt       time.Time          `json:"evaluatedAt"`
}

// Flagged reports whether the result counts as a fraud detection for
// metrics purposes.
func (r *CombinedResult) Flagged() bool {
	return r.Level == LevelHigh || r.Level == LevelCritical
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
