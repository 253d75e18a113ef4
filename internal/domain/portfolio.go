package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Portfolio is the account summary for one participant. All aggregates are
// derived from the current position set; only CashBalance and RealizedPnL
// carry state of their own.
//
// Invariants after every portfolio-manager update:
//
//	equity           = cash_balance + unrealized_pnl
//	margin_used      = Σ position.margin_required
//	margin_available = equity − margin_used
//	total_pnl        = realized_pnl + unrealized_pnl
type Portfolio struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID

	CashBalance     decimal.Decimal
	Equity          decimal.Decimal
	MarginUsed      decimal.Decimal
	MarginAvailable decimal.Decimal
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	TotalPnL        decimal.Decimal
	CurrentLeverage decimal.Decimal
	MarginLevel     *decimal.Decimal // nil when no margin is in use

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryPoint is a snapshot of a portfolio at a point in time, appended
// after every portfolio update.
type HistoryPoint struct {
	ID            int64
	ParticipantID uuid.UUID

	Equity        decimal.Decimal
	CashBalance   decimal.Decimal
	MarginUsed    decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	TotalPnL      decimal.Decimal

	RecordedAt time.Time
}
