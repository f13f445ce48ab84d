package analyzer

import (
	"fmt"
	"math"
	"time"

	"github.com/vigialabs/vigia/internal/baseline"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
)

const earthRadiusKm = 6371.0

// minTravelDistanceKm keeps GPS jitter between nearby cells from
// triggering the travel check.
const minTravelDistanceKm = 100.0

// AnalyzeLocation scores the geolocation signal. Impossible travel —
// distance over elapsed time exceeding the region's max plausible speed —
// forces the level to at least High regardless of the weighted average: it
// indicates near-certain spoofing or a compromised session, not merely
// elevated probability.
func AnalyzeLocation(data *LocationData, p *region.Profile, b *baseline.EntityBaseline) *risk.SignalResult {
	if data == nil {
		return insufficient("no location data")
	}
	cur := data.Current
	if !validCoordinates(cur.Latitude, cur.Longitude) {
		return insufficient("malformed coordinates")
	}

	var factors []risk.RiskFactor
	details := map[string]string{}
	impossible := false

	if prev, ok := lastValidPoint(data.Trail); ok {
		ts := cur.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		elapsed := ts.Sub(prev.Timestamp)
		if elapsed > 0 {
			distance := haversineKm(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
			speed := distance / elapsed.Hours()
			details["travel_distance_km"] = fmt.Sprintf("%.0f", distance)
			details["travel_speed_kmh"] = fmt.Sprintf("%.0f", speed)

			if distance > minTravelDistanceKm && speed > p.Patterns.MaxPlausibleSpeedKmh {
				impossible = true
				factors = append(factors, p.Factor("impossible_travel", risk.SourceLocation,
					fmt.Sprintf("%.0f km in %s implies %.0f km/h (max plausible %.0f)",
						distance, elapsed.Round(time.Minute), speed, p.Patterns.MaxPlausibleSpeedKmh)))
			}
		}
	}

	if cur.Area != "" && p.IsHighRiskArea(cur.Area) {
		factors = append(factors, p.Factor("high_risk_area", risk.SourceLocation,
			fmt.Sprintf("area %q is on the regional high-risk list", cur.Area)))
	}

	if cur.VPNOrProxy {
		factors = append(factors, p.Factor("vpn_or_proxy", risk.SourceLocation,
			"connection routed through a VPN, proxy, or anonymizer"))
	}

	if cur.Country != "" && cur.Country != p.Region {
		factors = append(factors, p.Factor("country_mismatch", risk.SourceLocation,
			fmt.Sprintf("observed in %s while scored under the %s profile", cur.Country, p.Region)))
	}

	// Many distinct areas inside the trail's last day suggests location
	// spoofing even when no single hop is impossible.
	if n := distinctAreas24h(data.Trail, cur); n >= 4 {
		factors = append(factors, p.Factor("rapid_area_changes", risk.SourceLocation,
			fmt.Sprintf("%d distinct areas within 24h", n)))
	}

	if b.Mature() && cur.Area != "" && len(b.KnownAreas) > 0 && !b.KnowsArea(cur.Area) {
		details["unknown_area"] = cur.Area
	}

	result := finalize(p, factors, details)
	if impossible && !result.Level.AtLeast(risk.LevelHigh) {
		result.Level = risk.LevelHigh
	}
	return result
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false // null island: almost always an unset field
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// lastValidPoint returns the most recent trail point with usable
// coordinates and timestamp.
func lastValidPoint(trail []LocationPoint) (LocationPoint, bool) {
	for i := len(trail) - 1; i >= 0; i-- {
		pt := trail[i]
		if validCoordinates(pt.Latitude, pt.Longitude) && !pt.Timestamp.IsZero() {
			return pt, true
		}
	}
	return LocationPoint{}, false
}

func distinctAreas24h(trail []LocationPoint, cur LocationPoint) int {
	ref := cur.Timestamp
	if ref.IsZero() {
		ref = time.Now()
	}
	dayAgo := ref.Add(-24 * time.Hour)

	areas := map[string]bool{}
	if cur.Area != "" {
		areas[cur.Area] = true
	}
	for _, pt := range trail {
		if pt.Area != "" && pt.Timestamp.After(dayAgo) {
			areas[pt.Area] = true
		}
	}
	return len(areas)
}

// haversineKm computes the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
