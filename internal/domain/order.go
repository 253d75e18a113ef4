package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderType is the execution style. Only market orders are implemented;
// limit exists in the schema for forward compatibility.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderExecuted  OrderStatus = "executed"
	OrderRejected  OrderStatus = "rejected"
	OrderCancelled OrderStatus = "cancelled"
)

// TradeAction is what an executed order did to a position.
type TradeAction string

const (
	ActionOpen     TradeAction = "open"
	ActionClose    TradeAction = "close"
	ActionIncrease TradeAction = "increase"
	ActionDecrease TradeAction = "decrease"
)

// Order is a trade intent produced by an agent decision, executed or rejected.
type Order struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	CompetitionID uuid.UUID
	InvocationID  uuid.UUID // invocation that produced this order

	Symbol     string
	AssetClass string
	Type       OrderType
	Side       OrderSide
	Quantity   decimal.Decimal // > 0
	Leverage   decimal.Decimal

	RequestedPrice *decimal.Decimal
	ExecutedPrice  *decimal.Decimal

	Status          OrderStatus
	RejectionReason string

	CreatedAt  time.Time
	ExecutedAt *time.Time
}

// Trade is one accounting entry: the effect of an executed order. PositionID
// is a weak reference — nulled when the position row is removed on close, so
// the trade survives the position.
type Trade struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	ParticipantID uuid.UUID
	PositionID    *uuid.UUID

	Symbol   string
	Side     OrderSide
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Action   TradeAction
	Leverage decimal.Decimal

	NotionalValue decimal.Decimal
	MarginImpact  decimal.Decimal // positive on open, negative on close

	// Populated only on close.
	RealizedPnL    *decimal.Decimal
	RealizedPnLPct *decimal.Decimal

	ExecutedAt time.Time
}
