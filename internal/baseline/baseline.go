// Package baseline learns per-entity activity profiles from past
// observations: typical amounts, usual hours, known areas and devices.
// Analyzers consume baselines as their optional history input; a missing
// baseline simply disables the history-dependent checks.
package baseline

import (
	"context"
	"time"
)

const (
	// historyDays is the observation window baselines are computed over.
	historyDays = 14
	// minSamples is the observation count below which a baseline is too
	// thin to flag deviations.
	minSamples = 10
	// maxKnownLabels caps the distinct areas/devices kept per entity.
	maxKnownLabels = 50
)

// EntityBaseline is the learned activity profile for one entity.
type EntityBaseline struct {
	EntityID     string    `json:"entityId"`
	MeanAmount   float64   `json:"meanAmount"`
	StddevAmount float64   `json:"stddevAmount"`
	HourCounts   [24]int   `json:"hourCounts"`
	SampleCount  int       `json:"sampleCount"`
	KnownAreas   []string  `json:"knownAreas"`
	KnownDevices []string  `json:"knownDevices"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Mature reports whether the baseline has enough samples for deviation
// checks to be meaningful.
func (b *EntityBaseline) Mature() bool {
	return b != nil && b.SampleCount >= minSamples
}

// HourFraction returns the fraction of observed activity in the given
// local hour.
func (b *EntityBaseline) HourFraction(hour int) float64 {
	if b.SampleCount == 0 || hour < 0 || hour > 23 {
		return 0
	}
	return float64(b.HourCounts[hour]) / float64(b.SampleCount)
}

// KnowsArea reports whether the entity has been observed in the area.
func (b *EntityBaseline) KnowsArea(area string) bool {
	for _, a := range b.KnownAreas {
		if a == area {
			return true
		}
	}
	return false
}

// KnowsDevice reports whether the device has been observed for the entity.
func (b *EntityBaseline) KnowsDevice(deviceID string) bool {
	for _, d := range b.KnownDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// Observation is a single activity sample recorded after an analysis.
type Observation struct {
	ID         int64     `json:"id"`
	EntityID   string    `json:"entityId"`
	Amount     float64   `json:"amount"`
	Area       string    `json:"area,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}

// Store persists observations and computed baselines.
type Store interface {
	AppendObservation(ctx context.Context, obs *Observation) error
	ObservationsSince(ctx context.Context, entityID string, since time.Time) ([]*Observation, error)
	EntitiesWithObservations(ctx context.Context, since time.Time) ([]string, error)
	PruneObservations(ctx context.Context, before time.Time) error

	SaveBaselines(ctx context.Context, baselines []*EntityBaseline) error
	AllBaselines(ctx context.Context) ([]*EntityBaseline, error)
}

// Provider is the read side consumed by agents. Get returns nil when no
// baseline exists for the entity yet.
type Provider interface {
	Get(entityID string) *EntityBaseline
}
