package region

import "github.com/vigialabs/vigia/internal/risk"

// Builtin returns the built-in profiles for the launch markets. Amounts
// are local currency: AOA for Angola, BRL for Brazil, MZN for Mozambique,
// EUR for Portugal. Profile files loaded at startup override these per
// region code.
func Builtin() []*Profile {
	profiles := []*Profile{angola(), brazil(), mozambique(), portugal()}
	for _, p := range profiles {
		p.applyDefaults()
	}
	return profiles
}

// commonFactorWeights are shared starting weights; regions override the
// entries where their fraud mix differs.
func commonFactorWeights() map[string]float64 {
	return map[string]float64{
		// account
		"new_account":            0.55,
		"unverified_kyc":         0.60,
		"dormant_reactivated":    0.50,
		"repeated_failed_logins": 0.65,
		// transaction
		"large_amount":           0.60,
		"amount_spike":           0.70,
		"high_frequency":         0.55,
		"night_transaction":      0.40,
		"high_risk_destination":  0.75,
		"structuring_pattern":    0.80,
		"new_counterparty_burst": 0.50,
		// location
		"impossible_travel":  0.95,
		"high_risk_area":     0.55,
		"vpn_or_proxy":       0.60,
		"country_mismatch":   0.65,
		"rapid_area_changes": 0.50,
		// device
		"rooted_device":      0.80,
		"emulator":           0.85,
		"tampered_app":       0.85,
		"unknown_device":     0.50,
		"sim_swap_recent":    0.90,
		"session_automation": 0.60,
		// regional
		"sanctions_hit":      0.95,
		"credit_default":     0.60,
		"telecom_fraud_flag": 0.70,
		"identity_mismatch":  0.80,
	}
}

func angola() *Profile {
	return &Profile{
		Region:   "AO",
		Name:     "Angola",
		Currency: "AOA",
		CategoryWeights: map[risk.Source]float64{
			// Device and telecom-channel fraud dominates; most volume is
			// mobile/USSD.
			risk.SourceAccount:     0.15,
			risk.SourceTransaction: 0.25,
			risk.SourceLocation:    0.15,
			risk.SourceDevice:      0.25,
			risk.SourceRegional:    0.20,
		},
		FactorWeights: withOverrides(commonFactorWeights(), map[string]float64{
			"sim_swap_recent":   0.95,
			"night_transaction": 0.45,
		}),
		Patterns: PatternTables{
			TypicalAmount:     45000,  // ~AOA, everyday transfer
			LargeAmount:       900000, // p95
			NightStartHour:    22,
			NightEndHour:      6,
			MaxDailyTxns:      15,
			HighRiskAreas:     []string{"Cazenga", "Viana", "Cacuaco", "Lubango-Comercial"},
			HighRiskCountries: []string{"NG", "CD", "ZA"},
		},
	}
}

func brazil() *Profile {
	return &Profile{
		Region:   "BR",
		Name:     "Brazil",
		Currency: "BRL",
		CategoryWeights: map[risk.Source]float64{
			// Instant-payment scams: transaction pattern and device carry
			// the most signal.
			risk.SourceAccount:     0.15,
			risk.SourceTransaction: 0.30,
			risk.SourceLocation:    0.15,
			risk.SourceDevice:      0.25,
			risk.SourceRegional:    0.15,
		},
		FactorWeights: withOverrides(commonFactorWeights(), map[string]float64{
			"amount_spike":           0.75,
			"structuring_pattern":    0.85,
			"new_counterparty_burst": 0.60,
		}),
		Patterns: PatternTables{
			TypicalAmount:     250, // BRL
			LargeAmount:       5000,
			NightStartHour:    0,
			NightEndHour:      6,
			MaxDailyTxns:      30,
			HighRiskAreas:     []string{"SP-Centro", "RJ-Norte", "Fortaleza-Periferia"},
			HighRiskCountries: []string{"PY", "VE"},
		},
	}
}

func mozambique() *Profile {
	return &Profile{
		Region:   "MZ",
		Name:     "Mozambique",
		Currency: "MZN",
		CategoryWeights: map[risk.Source]float64{
			risk.SourceAccount:     0.20,
			risk.SourceTransaction: 0.25,
			risk.SourceLocation:    0.15,
			risk.SourceDevice:      0.20,
			risk.SourceRegional:    0.20,
		},
		FactorWeights: withOverrides(commonFactorWeights(), map[string]float64{
			"sim_swap_recent":    0.95,
			"telecom_fraud_flag": 0.80,
		}),
		Patterns: PatternTables{
			TypicalAmount:     1500, // MZN
			LargeAmount:       40000,
			NightStartHour:    21,
			NightEndHour:      5,
			MaxDailyTxns:      12,
			HighRiskAreas:     []string{"Maputo-Baixa", "Beira-Porto", "Nampula-Central"},
			HighRiskCountries: []string{"ZW", "MW"},
		},
	}
}

func portugal() *Profile {
	return &Profile{
		Region:   "PT",
		Name:     "Portugal",
		Currency: "EUR",
		CategoryWeights: map[risk.Source]float64{
			// Mature market: account takeover via credential/location
			// anomalies outweighs raw transaction pattern.
			risk.SourceAccount:     0.20,
			risk.SourceTransaction: 0.20,
			risk.SourceLocation:    0.25,
			risk.SourceDevice:      0.20,
			risk.SourceRegional:    0.15,
		},
		FactorWeights: withOverrides(commonFactorWeights(), map[string]float64{
			"impossible_travel": 0.95,
			"vpn_or_proxy":      0.65,
			"country_mismatch":  0.70,
		}),
		Combined: CombinedThresholds{Medium: 0.4, High: 0.65, Critical: 0.85},
		Patterns: PatternTables{
			TypicalAmount:     80, // EUR
			LargeAmount:       2500,
			NightStartHour:    1,
			NightEndHour:      6,
			MaxDailyTxns:      25,
			HighRiskAreas:     []string{},
			HighRiskCountries: []string{"RU", "BY"},
		},
	}
}

func withOverrides(base map[string]float64, overrides map[string]float64) map[string]float64 {
	for k, v := range overrides {
		base[k] = v
	}
	return base
}
