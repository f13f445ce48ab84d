package analyzer

import (
	"fmt"
	"time"

	"github.com/vigialabs/vigia/internal/baseline"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
)

// AnalyzeAccount scores the account posture of the entity: age,
// verification state, dormancy, and credential pressure.
func AnalyzeAccount(data *AccountData, p *region.Profile, _ *baseline.EntityBaseline) *risk.SignalResult {
	if data == nil {
		return insufficient("no account data")
	}
	if data.OpenedAt.IsZero() {
		return insufficient("account opening date missing")
	}

	now := time.Now()
	if data.OpenedAt.After(now) {
		return insufficient("account opening date in the future")
	}

	var factors []risk.RiskFactor
	details := map[string]string{}

	ageDays := int(now.Sub(data.OpenedAt).Hours() / 24)
	details["account_age_days"] = fmt.Sprintf("%d", ageDays)

	if ageDays < p.Patterns.NewAccountDays {
		factors = append(factors, p.Factor("new_account", risk.SourceAccount,
			fmt.Sprintf("account is %d days old (threshold %d)", ageDays, p.Patterns.NewAccountDays)))
	}

	if !data.KYCVerified {
		factors = append(factors, p.Factor("unverified_kyc", risk.SourceAccount,
			"identity verification not completed"))
	}

	// Dormant account suddenly active again: a common takeover pattern.
	if !data.LastActiveAt.IsZero() && ageDays >= p.Patterns.NewAccountDays {
		idleDays := int(now.Sub(data.LastActiveAt).Hours() / 24)
		if idleDays >= p.Patterns.DormantDays {
			factors = append(factors, p.Factor("dormant_reactivated", risk.SourceAccount,
				fmt.Sprintf("first activity after %d days idle", idleDays)))
		}
	}

	if data.FailedLogins24h >= 3 {
		factors = append(factors, p.Factor("repeated_failed_logins", risk.SourceAccount,
			fmt.Sprintf("%d failed logins in the last 24h", data.FailedLogins24h)))
	}

	return finalize(p, factors, details)
}
