package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decision is the wire format an agent must reply with: either "hold" with
// no orders, or "trade" with a list of order requests. This grammar is the
// only wire format the runtime owns.
type Decision struct {
	Decision   string         `json:"decision"` // "trade" | "hold"
	Reasoning  string         `json:"reasoning"`
	Confidence *float64       `json:"confidence,omitempty"` // [0, 1]
	Orders     []OrderRequest `json:"orders,omitempty"`
}

// OrderRequest is one order inside a decision. Side and quantity are
// optional on close: the stored position supplies them.
type OrderRequest struct {
	Action     TradeAction      `json:"action"`
	Symbol     string           `json:"symbol"`
	Side       *OrderSide       `json:"side,omitempty"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	Leverage   decimal.Decimal  `json:"leverage"`
	PositionID string           `json:"position_id,omitempty"`
	ExitPlan   *ExitPlan        `json:"exit_plan,omitempty"`
}

const maxReasoningChars = 500

// Validate checks a parsed decision against the grammar. A decision that
// fails here is recorded as invalid_response with the raw reply retained.
func (d Decision) Validate() error {
	switch d.Decision {
	case "trade", "hold":
	default:
		return fmt.Errorf("decision must be \"trade\" or \"hold\", got %q", d.Decision)
	}
	if len(d.Reasoning) > maxReasoningChars {
		return fmt.Errorf("reasoning exceeds %d characters", maxReasoningChars)
	}
	if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 1) {
		return fmt.Errorf("confidence %v outside [0, 1]", *d.Confidence)
	}
	for i, o := range d.Orders {
		if err := o.validate(); err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
	}
	return nil
}

func (o OrderRequest) validate() error {
	switch o.Action {
	case ActionOpen:
		if o.Symbol == "" {
			return fmt.Errorf("open requires a symbol")
		}
		if o.Side == nil {
			return fmt.Errorf("open requires a side")
		}
		if *o.Side != OrderBuy && *o.Side != OrderSell {
			return fmt.Errorf("side must be \"buy\" or \"sell\", got %q", *o.Side)
		}
		if o.Quantity == nil || o.Quantity.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("open requires quantity > 0")
		}
		if o.Leverage.LessThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("open requires leverage >= 1")
		}
	case ActionClose, ActionIncrease, ActionDecrease:
		if o.PositionID == "" {
			return fmt.Errorf("%s requires a position_id", o.Action)
		}
		if o.Side != nil && *o.Side != OrderBuy && *o.Side != OrderSell {
			return fmt.Errorf("side must be \"buy\" or \"sell\", got %q", *o.Side)
		}
		if o.Quantity != nil && o.Quantity.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("quantity must be > 0 when given")
		}
	default:
		return fmt.Errorf("unknown action %q", o.Action)
	}
	return nil
}
