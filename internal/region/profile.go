// Package region holds the per-region configuration of the scoring engine:
// category weights, factor weights, level thresholds, and the pattern
// tables the analyzers evaluate against.
//
// A Profile is immutable after construction. Tuning a region means loading
// a new profile and constructing a new agent with it — there is no
// hot-mutation path.
package region

import (
	"fmt"
	"math"

	"github.com/vigialabs/vigia/internal/risk"
)

// DefaultFactorWeight is used for any factor name a profile does not list.
// Conservative middle weight: unknown evidence neither dominates nor
// disappears.
const DefaultFactorWeight = 0.5

// SignalThresholds are the level boundaries for a single analyzer result:
// score < Medium is low, < High is medium, else high.
type SignalThresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// CombinedThresholds are the level boundaries for the combined result:
// score < Medium is low, < High is medium, < Critical is high, else
// critical.
type CombinedThresholds struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// DefaultSignalThresholds per the uniform analyzer contract.
var DefaultSignalThresholds = SignalThresholds{Medium: 0.4, High: 0.7}

// DefaultCombinedThresholds for the aggregator.
var DefaultCombinedThresholds = CombinedThresholds{Medium: 0.4, High: 0.6, Critical: 0.8}

// PatternTables are the region-specific thresholds the analyzers check
// payloads against. Amounts are in the region's local currency.
type PatternTables struct {
	// TypicalAmount is the median transaction amount; LargeAmount the p95.
	TypicalAmount float64 `json:"typicalAmount"`
	LargeAmount   float64 `json:"largeAmount"`

	// Night window for high-risk-hour checks, in region-local time;
	// timestamps are evaluated in their own offset. The window wraps
	// midnight when NightStartHour > NightEndHour.
	NightStartHour int `json:"nightStartHour"`
	NightEndHour   int `json:"nightEndHour"`

	// NewAccountDays is the age under which an account is considered new.
	NewAccountDays int `json:"newAccountDays"`
	// DormantDays is the inactivity span after which a sudden
	// reactivation is suspicious.
	DormantDays int `json:"dormantDays"`

	// MaxDailyTxns is the per-entity daily count above which frequency is
	// flagged.
	MaxDailyTxns int `json:"maxDailyTxns"`

	// HighRiskAreas are area labels (city/province) with elevated fraud
	// incidence. HighRiskCountries are destination countries that trigger
	// the cross-border check.
	HighRiskAreas     []string `json:"highRiskAreas"`
	HighRiskCountries []string `json:"highRiskCountries"`

	// MaxPlausibleSpeedKmh bounds the impossible-travel check. Defaults to
	// airliner cruise speed.
	MaxPlausibleSpeedKmh float64 `json:"maxPlausibleSpeedKmh"`

	// StructuringWindow flags repeated just-under-threshold amounts:
	// transfers within [StructuringFraction*LargeAmount, LargeAmount).
	StructuringFraction float64 `json:"structuringFraction"`
}

// Profile is the full configuration for one region.
type Profile struct {
	Region   string `json:"region"` // ISO 3166-1 alpha-2, e.g. "AO"
	Name     string `json:"name"`
	Currency string `json:"currency"`

	// CategoryWeights must cover at least the categories the region uses
	// and sum to approximately 1.0.
	CategoryWeights map[risk.Source]float64 `json:"categoryWeights"`

	// FactorWeights override DefaultFactorWeight per factor name.
	FactorWeights map[string]float64 `json:"factorWeights"`

	Signal   SignalThresholds   `json:"signalThresholds"`
	Combined CombinedThresholds `json:"combinedThresholds"`
	Patterns PatternTables      `json:"patterns"`
}

// FactorWeight returns the region's weight for a factor name, falling back
// to DefaultFactorWeight for names the profile does not list.
func (p *Profile) FactorWeight(name string) float64 {
	if w, ok := p.FactorWeights[name]; ok {
		return w
	}
	return DefaultFactorWeight
}

// Factor builds a RiskFactor with the region's weight for the name.
func (p *Profile) Factor(name string, source risk.Source, description string) risk.RiskFactor {
	return risk.RiskFactor{
		Name:        name,
		Weight:      p.FactorWeight(name),
		Description: description,
		Source:      source,
	}
}

// IsHighRiskArea reports whether the area label is on the region's list.
func (p *Profile) IsHighRiskArea(area string) bool {
	for _, a := range p.Patterns.HighRiskAreas {
		if a == area {
			return true
		}
	}
	return false
}

// IsHighRiskCountry reports whether the country code is on the region's
// list.
func (p *Profile) IsHighRiskCountry(country string) bool {
	for _, c := range p.Patterns.HighRiskCountries {
		if c == country {
			return true
		}
	}
	return false
}

// InNightWindow reports whether hour falls in the region's night window.
// Handles windows that wrap midnight (e.g. 22 → 6).
func (p *Profile) InNightWindow(hour int) bool {
	start, end := p.Patterns.NightStartHour, p.Patterns.NightEndHour
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Validate checks internal consistency. Profiles loaded from files go
// through this before any agent is built on them.
func (p *Profile) Validate() error {
	if p.Region == "" {
		return fmt.Errorf("region %q: region code is required", p.Name)
	}
	if len(p.CategoryWeights) == 0 {
		return fmt.Errorf("region %s: categoryWeights must not be empty", p.Region)
	}

	var sum float64
	for src, w := range p.CategoryWeights {
		if !validSource(src) {
			return fmt.Errorf("region %s: unknown category %q", p.Region, src)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("region %s: category %s weight %v out of [0,1]", p.Region, src, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("region %s: category weights sum to %.3f, want ~1.0", p.Region, sum)
	}

	for name, w := range p.FactorWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("region %s: factor %q weight %v out of [0,1]", p.Region, name, w)
		}
	}

	s := p.Signal
	if s.Medium <= 0 || s.High <= s.Medium || s.High > 1 {
		return fmt.Errorf("region %s: signal thresholds must satisfy 0 < medium < high <= 1", p.Region)
	}
	c := p.Combined
	if c.Medium <= 0 || c.High <= c.Medium || c.Critical <= c.High || c.Critical > 1 {
		return fmt.Errorf("region %s: combined thresholds must satisfy 0 < medium < high < critical <= 1", p.Region)
	}

	if p.Patterns.LargeAmount > 0 && p.Patterns.TypicalAmount > p.Patterns.LargeAmount {
		return fmt.Errorf("region %s: typicalAmount exceeds largeAmount", p.Region)
	}
	if h := p.Patterns.NightStartHour; h < 0 || h > 23 {
		return fmt.Errorf("region %s: nightStartHour must be 0-23", p.Region)
	}
	if h := p.Patterns.NightEndHour; h < 0 || h > 23 {
		return fmt.Errorf("region %s: nightEndHour must be 0-23", p.Region)
	}
	if p.Patterns.MaxPlausibleSpeedKmh < 0 {
		return fmt.Errorf("region %s: maxPlausibleSpeedKmh must not be negative", p.Region)
	}
	return nil
}

func validSource(s risk.Source) bool {
	for _, known := range risk.Sources {
		if s == known {
			return true
		}
	}
	return false
}

// applyDefaults fills zero-valued thresholds and pattern fields so partial
// profile files stay usable.
func (p *Profile) applyDefaults() {
	if p.Signal.Medium == 0 && p.Signal.High == 0 {
		p.Signal = DefaultSignalThresholds
	}
	if p.Combined.Medium == 0 && p.Combined.High == 0 && p.Combined.Critical == 0 {
		p.Combined = DefaultCombinedThresholds
	}
	if p.Patterns.MaxPlausibleSpeedKmh == 0 {
		p.Patterns.MaxPlausibleSpeedKmh = 900
	}
	if p.Patterns.NewAccountDays == 0 {
		p.Patterns.NewAccountDays = 30
	}
	if p.Patterns.DormantDays == 0 {
		p.Patterns.DormantDays = 180
	}
	if p.Patterns.MaxDailyTxns == 0 {
		p.Patterns.MaxDailyTxns = 20
	}
	if p.Patterns.StructuringFraction == 0 {
		p.Patterns.StructuringFraction = 0.85
	}
}
