package domain

// calc.go — the calculation kernel. Pure decimal arithmetic: every function
// is total and has no side effects. All margin, P&L and liquidation math in
// the rest of the system goes through here.

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// MarginLevelInfinite is the sentinel returned when no margin is in use.
// Callers that persist margin level store nil instead.
var MarginLevelInfinite = decimal.NewFromInt(9999)

// Notional is the face value of an exposure: quantity × price.
func Notional(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price)
}

// MarginRequired is the collateral locked for a position: notional / leverage.
func MarginRequired(notional, leverage decimal.Decimal) decimal.Decimal {
	return notional.Div(leverage)
}

// UnrealizedPnL is the open profit of a position at the current price.
// Longs profit when price rises, shorts when it falls.
func UnrealizedPnL(side PositionSide, quantity, entryPrice, currentPrice decimal.Decimal) decimal.Decimal {
	if side == SideLong {
		return quantity.Mul(currentPrice.Sub(entryPrice))
	}
	return quantity.Mul(entryPrice.Sub(currentPrice))
}

// PnLPct expresses pnl as a percentage of base. Zero base yields zero.
func PnLPct(pnl, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(base).Mul(hundred)
}

// Equity is the current account value: cash plus open P&L.
func Equity(cashBalance, unrealizedPnL decimal.Decimal) decimal.Decimal {
	return cashBalance.Add(unrealizedPnL)
}

// MarginLevel is the solvency gauge equity/margin_used × 100. With no margin
// in use it returns the MarginLevelInfinite sentinel.
func MarginLevel(equity, marginUsed decimal.Decimal) decimal.Decimal {
	if marginUsed.IsZero() {
		return MarginLevelInfinite
	}
	return equity.Div(marginUsed).Mul(hundred)
}

// CurrentLeverage is total notional over equity. Zero equity yields zero.
func CurrentLeverage(totalNotional, equity decimal.Decimal) decimal.Decimal {
	if equity.IsZero() {
		return decimal.Zero
	}
	return totalNotional.Div(equity)
}

// CheckLiquidation reports whether the margin level has fallen below the
// liquidation threshold (maintenance_pct / initial_pct) × 100.
func CheckLiquidation(marginLevel, maintenancePct, initialPct decimal.Decimal) bool {
	threshold := maintenancePct.Div(initialPct).Mul(hundred)
	return marginLevel.LessThan(threshold)
}

// WinRate is winning/total × 100. Zero total yields zero.
func WinRate(winningTrades, totalTrades int) decimal.Decimal {
	if totalTrades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(winningTrades)).
		Div(decimal.NewFromInt(int64(totalTrades))).
		Mul(hundred)
}
