package baseline

import (
	"math"
	"time"
)

// Compute builds a baseline from an entity's observations. Returns nil for
// an empty slice.
func Compute(entityID string, observations []*Observation) *EntityBaseline {
	if len(observations) == 0 {
		return nil
	}

	b := &EntityBaseline{
		EntityID:    entityID,
		SampleCount: len(observations),
		UpdatedAt:   time.Now().UTC(),
	}

	var sum float64
	areas := make(map[string]bool)
	devices := make(map[string]bool)
	for _, o := range observations {
		sum += o.Amount
		// Hour in the observation's own offset, same as the analyzers
		// read transaction timestamps.
		b.HourCounts[o.ObservedAt.Hour()]++
		if o.Area != "" && !areas[o.Area] && len(areas) < maxKnownLabels {
			areas[o.Area] = true
			b.KnownAreas = append(b.KnownAreas, o.Area)
		}
		if o.DeviceID != "" && !devices[o.DeviceID] && len(devices) < maxKnownLabels {
			devices[o.DeviceID] = true
			b.KnownDevices = append(b.KnownDevices, o.DeviceID)
		}
	}
	b.MeanAmount = sum / float64(len(observations))

	var sq float64
	for _, o := range observations {
		d := o.Amount - b.MeanAmount
		sq += d * d
	}
	b.StddevAmount = math.Sqrt(sq / float64(len(observations)))

	return b
}
