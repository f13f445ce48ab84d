package analyzer

import (
	"fmt"
	"time"

	"github.com/vigialabs/vigia/internal/baseline"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
)

// AnalyzeTransaction scores the current transaction against the region's
// pattern tables and the caller-supplied history. History-dependent checks
// (spike vs personal baseline, structuring, frequency) only fire when
// enough history or a mature baseline is available.
func AnalyzeTransaction(data *TransactionData, p *region.Profile, b *baseline.EntityBaseline) *risk.SignalResult {
	if data == nil {
		return insufficient("no transaction data")
	}
	tx := data.Current
	if tx.Amount <= 0 {
		return insufficient("transaction amount missing or not positive")
	}

	var factors []risk.RiskFactor
	details := map[string]string{
		"amount": fmtAmount(tx.Amount, p.Currency),
	}

	if p.Patterns.LargeAmount > 0 && tx.Amount >= p.Patterns.LargeAmount {
		factors = append(factors, p.Factor("large_amount", risk.SourceTransaction,
			fmt.Sprintf("amount %s exceeds the regional p95 of %s",
				fmtAmount(tx.Amount, p.Currency), fmtAmount(p.Patterns.LargeAmount, p.Currency))))
	}

	// Spike vs the entity's own baseline: more than 3 standard deviations
	// above the personal mean, and at least 5x it.
	if b.Mature() && b.MeanAmount > 0 {
		limit := b.MeanAmount + 3*b.StddevAmount
		if tx.Amount > limit && tx.Amount > 5*b.MeanAmount {
			factors = append(factors, p.Factor("amount_spike", risk.SourceTransaction,
				fmt.Sprintf("amount %s is %.1fx the entity's typical %s",
					fmtAmount(tx.Amount, p.Currency), tx.Amount/b.MeanAmount,
					fmtAmount(b.MeanAmount, p.Currency))))
		}
	}

	ts := tx.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	// The hour is read in the timestamp's own offset: payloads carry
	// region-local time, and the server's zone must never enter — one
	// process scores four regions spanning several timezones.
	if hour := ts.Hour(); p.InNightWindow(hour) {
		factors = append(factors, p.Factor("night_transaction", risk.SourceTransaction,
			fmt.Sprintf("transaction at %02d:00 falls in the regional night window", hour)))
	}

	if tx.DestinationCountry != "" && p.IsHighRiskCountry(tx.DestinationCountry) {
		factors = append(factors, p.Factor("high_risk_destination", risk.SourceTransaction,
			fmt.Sprintf("destination country %s is on the regional high-risk list", tx.DestinationCountry)))
	}

	if len(data.History) > 0 {
		factors = append(factors, historyChecks(tx, data.History, p, details)...)
	}

	return finalize(p, factors, details)
}

// historyChecks covers the patterns that need the recent transaction
// history: daily frequency, structuring, and counterparty bursts.
func historyChecks(current Transaction, history []Transaction, p *region.Profile, details map[string]string) []risk.RiskFactor {
	var factors []risk.RiskFactor

	ref := current.Timestamp
	if ref.IsZero() {
		ref = time.Now()
	}
	dayAgo := ref.Add(-24 * time.Hour)

	daily := 0
	newDestinations := 0
	seen := map[string]bool{}
	structuring := 0

	lower := p.Patterns.StructuringFraction * p.Patterns.LargeAmount
	for _, h := range history {
		if h.Timestamp.After(dayAgo) {
			daily++
			if h.DestinationAccount != "" && !seen[h.DestinationAccount] {
				seen[h.DestinationAccount] = true
				newDestinations++
			}
			if p.Patterns.LargeAmount > 0 && h.Amount >= lower && h.Amount < p.Patterns.LargeAmount {
				structuring++
			}
		}
	}
	details["daily_count"] = fmt.Sprintf("%d", daily)

	if daily >= p.Patterns.MaxDailyTxns {
		factors = append(factors, p.Factor("high_frequency", risk.SourceTransaction,
			fmt.Sprintf("%d transactions in 24h (regional limit %d)", daily, p.Patterns.MaxDailyTxns)))
	}

	// Repeated just-under-threshold transfers suggest splitting a large
	// movement to stay below reporting limits.
	if p.Patterns.LargeAmount > 0 && current.Amount >= lower && current.Amount < p.Patterns.LargeAmount && structuring >= 2 {
		factors = append(factors, p.Factor("structuring_pattern", risk.SourceTransaction,
			fmt.Sprintf("%d transfers just under %s within 24h",
				structuring+1, fmtAmount(p.Patterns.LargeAmount, p.Currency))))
	}

	if newDestinations >= 5 {
		factors = append(factors, p.Factor("new_counterparty_burst", risk.SourceTransaction,
			fmt.Sprintf("%d distinct destinations in 24h", newDestinations)))
	}

	return factors
}
