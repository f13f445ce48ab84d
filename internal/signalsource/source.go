// Package signalsource defines the capability interface for externally
// sourced regional risk checks — credit bureaus, central-bank sanctions
// lists, telecom SIM-swap registries, civil-identity services — and the
// concurrent fan-out that queries them.
//
// Concrete wire adapters live outside this module. Sources are constructed
// by the composition root and injected into agents; nothing here discovers
// adapters dynamically.
package signalsource

import (
	"context"
)

// Severity classifies how damning a returned fact is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityElevated Severity = "elevated"
	SeveritySevere   Severity = "severe"
)

// defaultWeight maps a severity to a factor weight when the source did
// not supply one and the region profile has no entry for the check.
func (s Severity) defaultWeight() float64 {
	switch s {
	case SeveritySevere:
		return 0.9
	case SeverityElevated:
		return 0.5
	default:
		return 0.2
	}
}

// Fact is one structured risk fact returned by a source.
type Fact struct {
	Check       string   `json:"check"`
	Found       bool     `json:"found"`
	Severity    Severity `json:"severity,omitempty"`
	Weight      float64  `json:"weight,omitempty"` // optional source-supplied weight
	Description string   `json:"description,omitempty"`
}

// CheckSet names the checks a caller wants or a source can answer, e.g.
// "sanctions_hit", "credit_default", "telecom_fraud_flag",
// "identity_mismatch".
type CheckSet []string

// Contains reports whether the set includes the named check.
func (c CheckSet) Contains(check string) bool {
	for _, name := range c {
		if name == check {
			return true
		}
	}
	return false
}

// StandardChecks are the checks the launch-market registries answer:
// sanctions and watchlist screening, credit-bureau default flags, telecom
// SIM-swap flags, and mule-account lists.
var StandardChecks = CheckSet{
	"sanctions_hit",
	"watchlist_hit",
	"bureau_default",
	"sim_swap_flag",
	"known_mule_account",
}

// EntityRef identifies the subject of a query. Opaque to this package.
type EntityRef struct {
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
}

// Source is one external registry adapter. Query returns the facts it
// could determine, keyed by check name. A non-nil error means the source
// is unavailable; the caller degrades rather than failing the analysis.
type Source interface {
	Name() string
	Checks() CheckSet
	Query(ctx context.Context, ref EntityRef, checks CheckSet) (map[string]Fact, error)
}
