package utils

import "github.com/shopspring/decimal"

// Monetary amounts are stored and compared at 2 decimal places, rounded
// half away from zero at every accumulation step. Rounding once at the end
// would drift from the balances the ledger has already persisted.

func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// AddRound2 returns round2(a + b), the single accumulation step used for
// running balances.
func AddRound2(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b).Round(2)
}

// SumRound2 folds amounts left to right, rounding after each addition.
func SumRound2(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = AddRound2(total, a)
	}
	return total
}
