package risk

import (
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// OrderSize converts an available balance (quote currency) into a base-asset
// order size using the profile's balance percentage and the entry price.
// Percent is clamped to 1..100; out-of-range values are adjusted and logged
// rather than rejected, since they come from stored user settings.
func OrderSize(availableBalance, entryPrice decimal.Decimal, balancePercent int) (decimal.Decimal, error) {
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, &ValidationError{Field: "entry_price", Detail: "must be positive"}
	}
	if availableBalance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, nil
	}

	original := balancePercent
	if balancePercent < 1 {
		balancePercent = 1
	}
	if balancePercent > 100 {
		balancePercent = 100
	}
	if balancePercent != original {
		logger.WithFields(map[string]interface{}{
			"original_pct": original,
			"adjusted_pct": balancePercent,
		}).Warn("balance percent out of range, clamped")
	}

	quoteStake := availableBalance.Mul(decimal.NewFromInt(int64(balancePercent))).Div(oneHundred)
	return quoteStake.Div(entryPrice), nil
}
