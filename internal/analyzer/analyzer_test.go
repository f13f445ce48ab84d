package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/vigialabs/vigia/internal/baseline"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
)

// fixtureProfile gives the tests full control over thresholds instead of
// depending on builtin tuning.
func fixtureProfile() *region.Profile {
	return &region.Profile{
		Region:   "AO",
		Currency: "AOA",
		CategoryWeights: map[risk.Source]float64{
			risk.SourceAccount:     0.25,
			risk.SourceTransaction: 0.25,
			risk.SourceLocation:    0.25,
			risk.SourceDevice:      0.25,
		},
		FactorWeights: map[string]float64{
			"new_account":            0.55,
			"unverified_kyc":         0.45,
			"dormant_reactivated":    0.65,
			"repeated_failed_logins": 0.60,
			"large_amount":           0.60,
			"amount_spike":           0.70,
			"night_transaction":      0.35,
			"high_risk_destination":  0.75,
			"high_frequency":         0.55,
			"structuring_pattern":    0.80,
			"impossible_travel":      0.95,
			"high_risk_area":         0.50,
			"vpn_or_proxy":           0.40,
			"country_mismatch":       0.55,
			"emulator":               0.85,
			"rooted_device":          0.60,
			"tampered_app":           0.80,
			"sim_swap_recent":        0.90,
			"unknown_device":         0.50,
			"session_automation":     0.70,
		},
		Signal:   region.DefaultSignalThresholds,
		Combined: region.DefaultCombinedThresholds,
		Patterns: region.PatternTables{
			TypicalAmount:        45000,
			LargeAmount:          900000,
			NightStartHour:       22,
			NightEndHour:         6,
			NewAccountDays:       30,
			DormantDays:          180,
			MaxDailyTxns:         20,
			HighRiskAreas:        []string{"Cazenga"},
			HighRiskCountries:    []string{"NG"},
			MaxPlausibleSpeedKmh: 900,
			StructuringFraction:  0.85,
		},
	}
}

func hasFactor(result *risk.SignalResult, name string) bool {
	for _, f := range result.Factors {
		if f.Name == name {
			return true
		}
	}
	return false
}

func assertInsufficient(t *testing.T, result *risk.SignalResult) {
	t.Helper()
	if result.Score != risk.InsufficientDataScore {
		t.Errorf("expected insufficient-data score, got %f", result.Score)
	}
	if result.Level != risk.LevelLow {
		t.Errorf("expected low level, got %s", result.Level)
	}
	if len(result.Factors) != 0 {
		t.Errorf("expected no factors, got %v", result.Factors)
	}
}

// --- account ---

func TestAnalyzeAccount_MissingData(t *testing.T) {
	p := fixtureProfile()
	assertInsufficient(t, AnalyzeAccount(nil, p, nil))
	assertInsufficient(t, AnalyzeAccount(&AccountData{}, p, nil))
	assertInsufficient(t, AnalyzeAccount(&AccountData{OpenedAt: time.Now().Add(48 * time.Hour)}, p, nil))
}

func TestAnalyzeAccount_CleanAccount(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeAccount(&AccountData{
		OpenedAt:     time.Now().AddDate(-3, 0, 0),
		KYCVerified:  true,
		LastActiveAt: time.Now().Add(-48 * time.Hour),
	}, p, nil)

	if len(result.Factors) != 0 {
		t.Errorf("clean account should match nothing, got %v", result.Factors)
	}
	if result.Score != risk.InsufficientDataScore {
		t.Errorf("no factors falls back to the low-confidence default, got %f", result.Score)
	}
}

func TestAnalyzeAccount_NewUnverified(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeAccount(&AccountData{
		OpenedAt: time.Now().AddDate(0, 0, -3),
	}, p, nil)

	if !hasFactor(result, "new_account") || !hasFactor(result, "unverified_kyc") {
		t.Fatalf("expected new_account and unverified_kyc, got %v", result.Factors)
	}
	// (0.55 + 0.45) / 2 = 0.50 → medium.
	if math.Abs(result.Score-0.50) > 1e-9 {
		t.Errorf("expected score 0.50, got %f", result.Score)
	}
	if result.Level != risk.LevelMedium {
		t.Errorf("expected medium, got %s", result.Level)
	}
}

func TestAnalyzeAccount_DormantReactivation(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeAccount(&AccountData{
		OpenedAt:     time.Now().AddDate(-4, 0, 0),
		KYCVerified:  true,
		LastActiveAt: time.Now().AddDate(0, 0, -300),
	}, p, nil)

	if !hasFactor(result, "dormant_reactivated") {
		t.Errorf("expected dormant_reactivated, got %v", result.Factors)
	}
}

func TestAnalyzeAccount_FailedLogins(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeAccount(&AccountData{
		OpenedAt:        time.Now().AddDate(-1, 0, 0),
		KYCVerified:     true,
		LastActiveAt:    time.Now(),
		FailedLogins24h: 7,
	}, p, nil)

	if !hasFactor(result, "repeated_failed_logins") {
		t.Errorf("expected repeated_failed_logins, got %v", result.Factors)
	}
}

// --- transaction ---

func dayTime(hour int) time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.Local)
}

func TestAnalyzeTransaction_MissingData(t *testing.T) {
	p := fixtureProfile()
	assertInsufficient(t, AnalyzeTransaction(nil, p, nil))
	assertInsufficient(t, AnalyzeTransaction(&TransactionData{}, p, nil))
	assertInsufficient(t, AnalyzeTransaction(&TransactionData{Current: Transaction{Amount: -5}}, p, nil))
}

func TestAnalyzeTransaction_LargeAmount(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeTransaction(&TransactionData{
		Current: Transaction{Amount: 1500000, Timestamp: dayTime(11)},
	}, p, nil)

	if !hasFactor(result, "large_amount") {
		t.Fatalf("expected large_amount, got %v", result.Factors)
	}
}

func TestAnalyzeTransaction_NightWindow(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeTransaction(&TransactionData{
		Current: Transaction{Amount: 10000, Timestamp: dayTime(23)},
	}, p, nil)
	if !hasFactor(result, "night_transaction") {
		t.Errorf("expected night_transaction at 23h, got %v", result.Factors)
	}

	result = AnalyzeTransaction(&TransactionData{
		Current: Transaction{Amount: 10000, Timestamp: dayTime(14)},
	}, p, nil)
	if hasFactor(result, "night_transaction") {
		t.Errorf("14h is outside the night window")
	}
}

func TestAnalyzeTransaction_NightWindowUsesTimestampOffset(t *testing.T) {
	p := fixtureProfile()

	// 23:00 in a UTC-3 market while the process zone sits in UTC+8,
	// where the same instant reads 10:00 the next morning. The check
	// must follow the timestamp's own offset, not the server's zone.
	prev := time.Local
	time.Local = time.FixedZone("server", 8*3600)
	defer func() { time.Local = prev }()

	ts := time.Date(2026, 8, 1, 23, 0, 0, 0, time.FixedZone("UTC-3", -3*3600))
	result := AnalyzeTransaction(&TransactionData{
		Current: Transaction{Amount: 10000, Timestamp: ts},
	}, p, nil)

	if !hasFactor(result, "night_transaction") {
		t.Errorf("expected night_transaction at 23:00 region-local, got %v", result.Factors)
	}
}

func TestAnalyzeTransaction_HighRiskDestination(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeTransaction(&TransactionData{
		Current: Transaction{Amount: 10000, DestinationCountry: "NG", Timestamp: dayTime(10)},
	}, p, nil)
	if !hasFactor(result, "high_risk_destination") {
		t.Errorf("expected high_risk_destination, got %v", result.Factors)
	}
}

func TestAnalyzeTransaction_AmountSpikeNeedsMatureBaseline(t *testing.T) {
	p := fixtureProfile()
	tx := &TransactionData{Current: Transaction{Amount: 600000, Timestamp: dayTime(10)}}

	immature := &baseline.EntityBaseline{EntityID: "u", MeanAmount: 30000, StddevAmount: 5000, SampleCount: 3}
	result := AnalyzeTransaction(tx, p, immature)
	if hasFactor(result, "amount_spike") {
		t.Error("spike must not fire on an immature baseline")
	}

	mature := &baseline.EntityBaseline{EntityID: "u", MeanAmount: 30000, StddevAmount: 5000, SampleCount: 40}
	result = AnalyzeTransaction(tx, p, mature)
	if !hasFactor(result, "amount_spike") {
		t.Errorf("expected amount_spike with mature baseline, got %v", result.Factors)
	}
}

func TestAnalyzeTransaction_Structuring(t *testing.T) {
	p := fixtureProfile()
	ref := dayTime(10)
	// Three transfers in [765000, 900000): just under the large-amount line.
	history := []Transaction{
		{Amount: 800000, Timestamp: ref.Add(-2 * time.Hour)},
		{Amount: 850000, Timestamp: ref.Add(-5 * time.Hour)},
		{Amount: 20000, Timestamp: ref.Add(-6 * time.Hour)},
	}
	result := AnalyzeTransaction(&TransactionData{
		Current: Transaction{Amount: 870000, Timestamp: ref},
		History: history,
	}, p, nil)

	if !hasFactor(result, "structuring_pattern") {
		t.Errorf("expected structuring_pattern, got %v", result.Factors)
	}
}

func TestAnalyzeTransaction_HighFrequency(t *testing.T) {
	p := fixtureProfile()
	ref := dayTime(10)
	var history []Transaction
	for i := 0; i < 25; i++ {
		history = append(history, Transaction{
			Amount:    1000,
			Timestamp: ref.Add(-time.Duration(i) * 30 * time.Minute),
		})
	}
	result := AnalyzeTransaction(&TransactionData{
		Current: Transaction{Amount: 1000, Timestamp: ref},
		History: history,
	}, p, nil)

	if !hasFactor(result, "high_frequency") {
		t.Errorf("expected high_frequency, got %v", result.Factors)
	}
}

// --- location ---

func TestAnalyzeLocation_MalformedCoordinates(t *testing.T) {
	p := fixtureProfile()
	assertInsufficient(t, AnalyzeLocation(nil, p, nil))
	assertInsufficient(t, AnalyzeLocation(&LocationData{
		Current: LocationPoint{Latitude: 0, Longitude: 0},
	}, p, nil))
	assertInsufficient(t, AnalyzeLocation(&LocationData{
		Current: LocationPoint{Latitude: 91, Longitude: 13},
	}, p, nil))
	assertInsufficient(t, AnalyzeLocation(&LocationData{
		Current: LocationPoint{Latitude: math.NaN(), Longitude: 13},
	}, p, nil))
}

func TestAnalyzeLocation_ImpossibleTravelForcesHigh(t *testing.T) {
	p := fixtureProfile()
	now := time.Now()
	// Luanda to Lisbon (~5700 km) in one hour.
	result := AnalyzeLocation(&LocationData{
		Current: LocationPoint{Latitude: 38.72, Longitude: -9.14, Country: "AO", Timestamp: now},
		Trail: []LocationPoint{
			{Latitude: -8.83, Longitude: 13.24, Country: "AO", Timestamp: now.Add(-time.Hour)},
		},
	}, p, nil)

	if !hasFactor(result, "impossible_travel") {
		t.Fatalf("expected impossible_travel, got %v", result.Factors)
	}
	if !result.Level.AtLeast(risk.LevelHigh) {
		t.Errorf("impossible travel must force at least high, got %s", result.Level)
	}
}

func TestAnalyzeLocation_PlausibleTravelDoesNotFire(t *testing.T) {
	p := fixtureProfile()
	now := time.Now()
	// Luanda to Benguela (~430 km) in six hours: a drive.
	result := AnalyzeLocation(&LocationData{
		Current: LocationPoint{Latitude: -12.58, Longitude: 13.41, Country: "AO", Timestamp: now},
		Trail: []LocationPoint{
			{Latitude: -8.83, Longitude: 13.24, Country: "AO", Timestamp: now.Add(-6 * time.Hour)},
		},
	}, p, nil)

	if hasFactor(result, "impossible_travel") {
		t.Errorf("plausible travel flagged: %v", result.Details)
	}
}

func TestAnalyzeLocation_ShortHopIgnored(t *testing.T) {
	p := fixtureProfile()
	now := time.Now()
	// Two points ~1 km apart seconds later: GPS jitter, not travel.
	result := AnalyzeLocation(&LocationData{
		Current: LocationPoint{Latitude: -8.830, Longitude: 13.250, Country: "AO", Timestamp: now},
		Trail: []LocationPoint{
			{Latitude: -8.838, Longitude: 13.245, Country: "AO", Timestamp: now.Add(-5 * time.Second)},
		},
	}, p, nil)

	if hasFactor(result, "impossible_travel") {
		t.Error("sub-100km hops must not trigger the travel check")
	}
}

func TestAnalyzeLocation_AreaAndCountryChecks(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeLocation(&LocationData{
		Current: LocationPoint{
			Latitude: -8.83, Longitude: 13.24,
			Area: "Cazenga", Country: "ZA", VPNOrProxy: true,
			Timestamp: time.Now(),
		},
	}, p, nil)

	for _, name := range []string{"high_risk_area", "vpn_or_proxy", "country_mismatch"} {
		if !hasFactor(result, name) {
			t.Errorf("expected %s, got %v", name, result.Factors)
		}
	}
}

func TestHaversine(t *testing.T) {
	// Luanda to Lisbon is roughly 5740 km.
	d := haversineKm(-8.83, 13.24, 38.72, -9.14)
	if d < 5500 || d > 6000 {
		t.Errorf("unexpected Luanda-Lisbon distance: %f km", d)
	}
	if haversineKm(10, 20, 10, 20) != 0 {
		t.Error("identical points must be zero distance")
	}
}

// --- device ---

func TestAnalyzeDevice_MissingData(t *testing.T) {
	p := fixtureProfile()
	assertInsufficient(t, AnalyzeDevice(nil, nil, p, nil))
	assertInsufficient(t, AnalyzeDevice(&DeviceData{}, nil, p, nil))
}

func TestAnalyzeDevice_IntegrityChecks(t *testing.T) {
	p := fixtureProfile()
	swapAt := time.Now().Add(-10 * time.Hour)
	result := AnalyzeDevice(&DeviceData{
		DeviceID:     "dev-1",
		Emulator:     true,
		Rooted:       true,
		TamperedApp:  true,
		SIMSwappedAt: &swapAt,
	}, nil, p, nil)

	for _, name := range []string{"emulator", "rooted_device", "tampered_app", "sim_swap_recent"} {
		if !hasFactor(result, name) {
			t.Errorf("expected %s, got %v", name, result.Factors)
		}
	}
	if result.Level != risk.LevelHigh {
		t.Errorf("expected high, got %s (score %f)", result.Level, result.Score)
	}
}

func TestAnalyzeDevice_OldSIMSwapIgnored(t *testing.T) {
	p := fixtureProfile()
	swapAt := time.Now().Add(-30 * 24 * time.Hour)
	result := AnalyzeDevice(&DeviceData{DeviceID: "dev-1", SIMSwappedAt: &swapAt}, nil, p, nil)

	if hasFactor(result, "sim_swap_recent") {
		t.Error("a month-old SIM swap is not a takeover precursor")
	}
}

func TestAnalyzeDevice_UnknownDeviceNeedsBaseline(t *testing.T) {
	p := fixtureProfile()
	data := &DeviceData{DeviceID: "dev-new"}

	result := AnalyzeDevice(data, nil, p, nil)
	if hasFactor(result, "unknown_device") {
		t.Error("unknown_device must not fire without a baseline")
	}

	b := &baseline.EntityBaseline{EntityID: "u", SampleCount: 40, KnownDevices: []string{"dev-old"}}
	result = AnalyzeDevice(data, nil, p, b)
	if !hasFactor(result, "unknown_device") {
		t.Errorf("expected unknown_device, got %v", result.Factors)
	}

	known := &DeviceData{DeviceID: "dev-old"}
	result = AnalyzeDevice(known, nil, p, b)
	if hasFactor(result, "unknown_device") {
		t.Error("known device flagged")
	}
}

func TestAnalyzeDevice_SessionChecks(t *testing.T) {
	p := fixtureProfile()
	result := AnalyzeDevice(
		&DeviceData{DeviceID: "dev-1"},
		&SessionData{ScriptedTiming: true, FailedPINAttempts: 4},
		p, nil)

	if !hasFactor(result, "session_automation") || !hasFactor(result, "repeated_failed_logins") {
		t.Errorf("expected session factors, got %v", result.Factors)
	}
}
