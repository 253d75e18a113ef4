package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a CFD exposure.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// PositionSideFromOrder canonicalizes an order side into a position side:
// buy opens long, sell opens short.
func PositionSideFromOrder(side OrderSide) PositionSide {
	if side == OrderBuy {
		return SideLong
	}
	return SideShort
}

// ClosingOrderSide is the order side that flattens a position.
func (s PositionSide) ClosingOrderSide() OrderSide {
	if s == SideLong {
		return OrderSell
	}
	return OrderBuy
}

// ExitPlan is the agent's stated exit intent for a position. Informational:
// the runtime echoes it back into the prompt but never acts on it.
type ExitPlan struct {
	ProfitTarget *decimal.Decimal `json:"profit_target,omitempty"`
	StopLoss     *decimal.Decimal `json:"stop_loss,omitempty"`
	Invalidation string           `json:"invalidation,omitempty"`
}

// Position is one open CFD exposure. MarginRequired is frozen at open
// (entry notional / leverage); everything else is restated on every
// mark-to-market tick.
type Position struct {
	ID            uuid.UUID
	PortfolioID   uuid.UUID
	ParticipantID uuid.UUID

	Symbol     string
	AssetClass string
	Side       PositionSide
	Quantity   decimal.Decimal // > 0
	EntryPrice decimal.Decimal

	CurrentPrice   decimal.Decimal
	Leverage       decimal.Decimal // > 0
	MarginRequired decimal.Decimal
	NotionalValue  decimal.Decimal

	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct decimal.Decimal

	ExitPlan *ExitPlan

	OpenedAt  time.Time
	UpdatedAt time.Time
}

// EntryNotional is quantity × entry price, the base for P&L percentages.
func (p Position) EntryNotional() decimal.Decimal {
	return Notional(p.Quantity, p.EntryPrice)
}
