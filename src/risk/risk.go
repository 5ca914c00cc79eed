package risk

import (
	"fmt"

	"signalengine/src/model"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// ValidationError marks inputs the calculator refuses to work with.
// These are caller bugs or malformed signals, never retried.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// PriceLevels is the output of the calculator: absolute exit prices plus the
// percentages they were derived from (percentages of entry price, not of
// margin).
type PriceLevels struct {
	TakeProfitPrice   decimal.Decimal
	StopLossPrice     decimal.Decimal
	TakeProfitPercent decimal.Decimal
	StopLossPercent   decimal.Decimal
}

// ComputePrices derives take-profit and stop-loss levels from the entry
// price, leverage and the user's multipliers. All arithmetic stays in
// decimal to keep price comparisons exact.
//
//	takeProfitPercent = leverage * takeProfitMultiplier
//	stopLossPercent   = leverage * stopLossMultiplier
//
// For longs the take-profit sits above entry and the stop below; shorts
// invert both.
func ComputePrices(
	entryPrice decimal.Decimal,
	direction string,
	leverage int,
	profile *model.RiskProfile,
) (PriceLevels, error) {

	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return PriceLevels{}, &ValidationError{Field: "entry_price", Detail: "must be positive"}
	}
	if leverage <= 0 {
		return PriceLevels{}, &ValidationError{Field: "leverage", Detail: "must be at least 1"}
	}
	if direction != model.DirectionLong && direction != model.DirectionShort {
		return PriceLevels{}, &ValidationError{Field: "direction", Detail: "must be long or short"}
	}
	if profile == nil {
		return PriceLevels{}, &ValidationError{Field: "risk_profile", Detail: "required"}
	}

	lev := decimal.NewFromInt(int64(leverage))
	tpPct := lev.Mul(profile.TakeProfitMultiplier)
	slPct := lev.Mul(profile.StopLossMultiplier)

	tpFraction := tpPct.Div(oneHundred)
	slFraction := slPct.Div(oneHundred)

	levels := PriceLevels{
		TakeProfitPercent: tpPct,
		StopLossPercent:   slPct,
	}

	if direction == model.DirectionLong {
		levels.TakeProfitPrice = entryPrice.Mul(decimal.NewFromInt(1).Add(tpFraction))
		levels.StopLossPrice = entryPrice.Mul(decimal.NewFromInt(1).Sub(slFraction))
	} else {
		levels.TakeProfitPrice = entryPrice.Mul(decimal.NewFromInt(1).Sub(tpFraction))
		levels.StopLossPrice = entryPrice.Mul(decimal.NewFromInt(1).Add(slFraction))
	}

	return levels, nil
}
