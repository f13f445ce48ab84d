package analyzer

import (
	"fmt"
	"time"

	"github.com/vigialabs/vigia/internal/baseline"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
)

// simSwapWindow is how recently a SIM swap must have happened to count as
// a takeover precursor.
const simSwapWindow = 72 * time.Hour

// AnalyzeDevice scores the device fingerprint and, when present, session
// behavior. Session data alone is not enough — a device identifier is the
// minimum required field.
func AnalyzeDevice(data *DeviceData, session *SessionData, p *region.Profile, b *baseline.EntityBaseline) *risk.SignalResult {
	if data == nil {
		return insufficient("no device data")
	}
	if data.DeviceID == "" {
		return insufficient("device identifier missing")
	}

	var factors []risk.RiskFactor
	details := map[string]string{"device_id": data.DeviceID}

	if data.Emulator {
		factors = append(factors, p.Factor("emulator", risk.SourceDevice,
			"device fingerprint matches an emulator"))
	}
	if data.Rooted {
		factors = append(factors, p.Factor("rooted_device", risk.SourceDevice,
			"device is rooted or jailbroken"))
	}
	if data.TamperedApp {
		factors = append(factors, p.Factor("tampered_app", risk.SourceDevice,
			"application signature does not match a released build"))
	}

	if data.SIMSwappedAt != nil {
		since := time.Since(*data.SIMSwappedAt)
		if since >= 0 && since <= simSwapWindow {
			factors = append(factors, p.Factor("sim_swap_recent", risk.SourceDevice,
				fmt.Sprintf("SIM swapped %s ago", since.Round(time.Hour))))
		}
	}

	// A device the entity has never used before. Only meaningful once the
	// baseline has seen some devices.
	if b.Mature() && len(b.KnownDevices) > 0 && !b.KnowsDevice(data.DeviceID) {
		factors = append(factors, p.Factor("unknown_device", risk.SourceDevice,
			"device not previously observed for this entity"))
	}

	if session != nil {
		if session.ScriptedTiming {
			factors = append(factors, p.Factor("session_automation", risk.SourceDevice,
				"input cadence consistent with scripted automation"))
		}
		if session.FailedPINAttempts >= 3 {
			factors = append(factors, p.Factor("repeated_failed_logins", risk.SourceDevice,
				fmt.Sprintf("%d failed PIN attempts this session", session.FailedPINAttempts)))
		}
	}

	return finalize(p, factors, details)
}
