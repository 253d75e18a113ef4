package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// cfd.go — the position lifecycle, pure over domain structs. Persistence and
// transaction boundaries belong to the trading engine.

// OpenParams describes a position to open. Side is the order side; it is
// canonicalized here (buy → long, sell → short).
type OpenParams struct {
	PortfolioID   uuid.UUID
	ParticipantID uuid.UUID
	Symbol        string
	AssetClass    string
	Side          domain.OrderSide
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	Leverage      decimal.Decimal
	ExitPlan      *domain.ExitPlan
}

// OpenPosition creates a position at its entry price. MarginRequired is
// frozen here from the entry notional and never recomputed.
func OpenPosition(p OpenParams, now time.Time) domain.Position {
	notional := domain.Notional(p.Quantity, p.EntryPrice)
	return domain.Position{
		ID:               uuid.New(),
		PortfolioID:      p.PortfolioID,
		ParticipantID:    p.ParticipantID,
		Symbol:           p.Symbol,
		AssetClass:       p.AssetClass,
		Side:             domain.PositionSideFromOrder(p.Side),
		Quantity:         p.Quantity,
		EntryPrice:       p.EntryPrice,
		CurrentPrice:     p.EntryPrice,
		Leverage:         p.Leverage,
		MarginRequired:   domain.MarginRequired(notional, p.Leverage),
		NotionalValue:    notional,
		UnrealizedPnL:    decimal.Zero,
		UnrealizedPnLPct: decimal.Zero,
		ExitPlan:         p.ExitPlan,
		OpenedAt:         now,
		UpdatedAt:        now,
	}
}

// Revalue restates a position at a new price. The P&L percentage is over the
// entry notional; margin_required stays the entry-time lock.
func Revalue(pos *domain.Position, price decimal.Decimal, now time.Time) {
	pos.CurrentPrice = price
	pos.NotionalValue = domain.Notional(pos.Quantity, price)
	pos.UnrealizedPnL = domain.UnrealizedPnL(pos.Side, pos.Quantity, pos.EntryPrice, price)
	pos.UnrealizedPnLPct = domain.PnLPct(pos.UnrealizedPnL, pos.EntryNotional())
	pos.UpdatedAt = now
}

// CloseResult is the staged outcome of closing a position. The caller owns
// the position row removal and the portfolio update.
type CloseResult struct {
	RealizedPnL    decimal.Decimal
	RealizedPnLPct decimal.Decimal
	MarginReleased decimal.Decimal
}

// ClosePosition applies a final revalue at the close price and stages the
// realized outcome.
func ClosePosition(pos *domain.Position, closePrice decimal.Decimal, now time.Time) CloseResult {
	Revalue(pos, closePrice, now)
	return CloseResult{
		RealizedPnL:    pos.UnrealizedPnL,
		RealizedPnLPct: pos.UnrealizedPnLPct,
		MarginReleased: pos.MarginRequired,
	}
}
