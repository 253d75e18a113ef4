package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// TradingEngine turns validated order requests into positions, trades and
// portfolio mutations. All writes for one order land in one transaction
// under the participant's lock; sibling orders in the same agent reply fail
// independently.
type TradingEngine struct {
	store  ports.Storage
	market ports.MarketData
	locks  *LockRegistry
}

// NewTradingEngine creates a TradingEngine.
func NewTradingEngine(store ports.Storage, market ports.MarketData, locks *LockRegistry) *TradingEngine {
	return &TradingEngine{store: store, market: market, locks: locks}
}

// OrderOutcome is the per-order result handed back to the invoker for its
// execution record.
type OrderOutcome struct {
	Order            domain.Order
	Trade            *domain.Trade
	ValidationPassed bool
}

// Process runs one order request end to end: close-order correction,
// validation, persistence and execution. The returned outcome always
// carries a persisted order row; an error means even that could not be
// recorded.
func (e *TradingEngine) Process(ctx context.Context, competitionID, participantID, invocationID uuid.UUID, req domain.OrderRequest) (OrderOutcome, error) {
	e.locks.Lock(participantID)
	defer e.locks.Unlock(participantID)

	p, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return OrderOutcome{}, fmt.Errorf("engine.Process: %w", err)
	}
	comp, err := e.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return OrderOutcome{}, fmt.Errorf("engine.Process: %w", err)
	}
	pf, err := e.store.GetPortfolio(ctx, participantID)
	if err != nil {
		return OrderOutcome{}, fmt.Errorf("engine.Process: %w", err)
	}

	// For close/increase/decrease the stored position is authoritative:
	// its symbol always wins, side and quantity fill in when omitted.
	req, pos, resolveErr := e.correctAgainstPosition(ctx, participantID, req)

	ok, reason := e.validate(ctx, p, comp, pf, req, pos, resolveErr)

	order := e.buildOrder(competitionID, participantID, invocationID, req)
	if !ok {
		order.Status = domain.OrderRejected
		order.RejectionReason = reason
	}
	if err := e.store.SaveOrder(ctx, order); err != nil {
		return OrderOutcome{}, fmt.Errorf("engine.Process: %w", err)
	}
	if !ok {
		slog.Info("order rejected",
			"participant", p.Name, "symbol", order.Symbol,
			"action", req.Action, "reason", reason)
		return OrderOutcome{Order: order}, nil
	}

	outcome, err := e.execute(ctx, p, order, req, pos)
	if err != nil {
		return outcome, err
	}
	outcome.ValidationPassed = true
	return outcome, nil
}

// correctAgainstPosition resolves the target position of a non-open order —
// by id, falling back to the participant's position in the symbol — and
// rewrites the request from the stored row.
func (e *TradingEngine) correctAgainstPosition(ctx context.Context, participantID uuid.UUID, req domain.OrderRequest) (domain.OrderRequest, *domain.Position, error) {
	if req.Action == domain.ActionOpen {
		return req, nil, nil
	}

	var (
		pos domain.Position
		err error
	)
	if req.PositionID != "" {
		id, perr := uuid.Parse(req.PositionID)
		if perr != nil {
			return req, nil, fmt.Errorf("invalid position_id %q", req.PositionID)
		}
		pos, err = e.store.GetPosition(ctx, id)
	} else {
		pos, err = e.store.FindPositionBySymbol(ctx, participantID, req.Symbol)
	}
	if err != nil {
		return req, nil, err
	}

	req.Symbol = pos.Symbol
	if req.Side == nil {
		side := pos.Side.ClosingOrderSide()
		req.Side = &side
	}
	if req.Quantity == nil {
		q := pos.Quantity
		req.Quantity = &q
	}
	if req.Leverage.IsZero() {
		req.Leverage = pos.Leverage
	}
	return req, &pos, nil
}

// validate applies the risk rules in order and returns the first failure.
func (e *TradingEngine) validate(ctx context.Context, p domain.Participant, comp domain.Competition, pf domain.Portfolio, req domain.OrderRequest, pos *domain.Position, resolveErr error) (bool, string) {
	if p.Status != domain.ParticipantActive {
		return false, fmt.Sprintf("participant is %s", p.Status)
	}
	if req.Leverage.GreaterThan(comp.MaxLeverage) {
		return false, fmt.Sprintf("leverage %s exceeds competition max %s",
			req.Leverage, comp.MaxLeverage)
	}

	switch req.Action {
	case domain.ActionOpen:
		price, err := e.market.Price(ctx, req.Symbol)
		if err != nil {
			return false, fmt.Sprintf("no price available for %s", req.Symbol)
		}
		margin := domain.MarginRequired(domain.Notional(*req.Quantity, price), req.Leverage)
		if margin.GreaterThan(pf.MarginAvailable) {
			return false, fmt.Sprintf("insufficient margin: required %s, available %s",
				margin.StringFixed(2), pf.MarginAvailable.StringFixed(2))
		}
	default:
		if resolveErr != nil {
			return false, fmt.Sprintf("position not found: %v", resolveErr)
		}
		if pos.ParticipantID != p.ID {
			return false, "position belongs to another participant"
		}
	}
	return true, ""
}

func (e *TradingEngine) buildOrder(competitionID, participantID, invocationID uuid.UUID, req domain.OrderRequest) domain.Order {
	order := domain.Order{
		ID:            uuid.New(),
		ParticipantID: participantID,
		CompetitionID: competitionID,
		InvocationID:  invocationID,
		Symbol:        req.Symbol,
		AssetClass:    "crypto",
		Type:          domain.OrderMarket,
		Quantity:      decimal.Zero,
		Leverage:      req.Leverage,
		Status:        domain.OrderPending,
		CreatedAt:     time.Now().UTC(),
	}
	if req.Side != nil {
		order.Side = *req.Side
	} else {
		// A close that failed to resolve has no side; persist the intent
		// as a sell so the row satisfies its constraint.
		order.Side = domain.OrderSell
	}
	if req.Quantity != nil {
		order.Quantity = *req.Quantity
	}
	return order
}

func (e *TradingEngine) execute(ctx context.Context, p domain.Participant, order domain.Order, req domain.OrderRequest, pos *domain.Position) (OrderOutcome, error) {
	switch req.Action {
	case domain.ActionOpen:
		return e.executeOpen(ctx, p, order, req)
	case domain.ActionClose:
		return e.executeClose(ctx, p, order, pos)
	default:
		// increase/decrease pass validation but are not implemented.
		return e.rejectOrder(ctx, order, fmt.Sprintf("action %s is not implemented", req.Action))
	}
}

func (e *TradingEngine) executeOpen(ctx context.Context, p domain.Participant, order domain.Order, req domain.OrderRequest) (OrderOutcome, error) {
	price, err := e.market.Price(ctx, order.Symbol)
	if err != nil {
		if errors.Is(err, ports.ErrNoPrice) {
			return e.rejectOrder(ctx, order, fmt.Sprintf("no price available for %s", order.Symbol))
		}
		return OrderOutcome{}, fmt.Errorf("engine.executeOpen: price %s: %w", order.Symbol, err)
	}

	var trade domain.Trade
	err = e.store.WithTx(ctx, func(st ports.Storage) error {
		pf, err := st.GetPortfolio(ctx, p.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		position := OpenPosition(OpenParams{
			PortfolioID:   pf.ID,
			ParticipantID: p.ID,
			Symbol:        order.Symbol,
			AssetClass:    order.AssetClass,
			Side:          order.Side,
			Quantity:      order.Quantity,
			EntryPrice:    price,
			Leverage:      order.Leverage,
			ExitPlan:      req.ExitPlan,
		}, now)
		if err := st.SavePosition(ctx, position); err != nil {
			return err
		}

		pf, err = AllocateMargin(ctx, st, p.ID)
		if err != nil {
			return err
		}

		trade = domain.Trade{
			ID:            uuid.New(),
			OrderID:       order.ID,
			ParticipantID: p.ID,
			PositionID:    &position.ID,
			Symbol:        position.Symbol,
			Side:          order.Side,
			Quantity:      position.Quantity,
			Price:         price,
			Action:        domain.ActionOpen,
			Leverage:      position.Leverage,
			NotionalValue: position.NotionalValue,
			MarginImpact:  position.MarginRequired,
			ExecutedAt:    now,
		}
		if err := st.SaveTrade(ctx, trade); err != nil {
			return err
		}

		order.Status = domain.OrderExecuted
		order.ExecutedPrice = &price
		order.ExecutedAt = &now
		if err := st.UpdateOrder(ctx, order); err != nil {
			return err
		}
		return UpdateParticipantEquity(ctx, st, p.ID, pf.Equity)
	})
	if err != nil {
		return OrderOutcome{}, fmt.Errorf("engine.executeOpen %s: %w", order.Symbol, err)
	}

	slog.Info("position opened",
		"participant", p.Name, "symbol", order.Symbol, "side", order.Side,
		"quantity", order.Quantity, "leverage", order.Leverage,
		"price", price)
	return OrderOutcome{Order: order, Trade: &trade}, nil
}

func (e *TradingEngine) executeClose(ctx context.Context, p domain.Participant, order domain.Order, pos *domain.Position) (OrderOutcome, error) {
	price, err := e.market.Price(ctx, pos.Symbol)
	if err != nil {
		if errors.Is(err, ports.ErrNoPrice) {
			return e.rejectOrder(ctx, order, fmt.Sprintf("no price available for %s", pos.Symbol))
		}
		return OrderOutcome{}, fmt.Errorf("engine.executeClose: price %s: %w", pos.Symbol, err)
	}

	var trade domain.Trade
	err = e.store.WithTx(ctx, func(st ports.Storage) error {
		// Re-read inside the transaction: the pre-validation copy may be
		// stale by the time the lock and transaction are held.
		position, err := st.GetPosition(ctx, pos.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		res := ClosePosition(&position, price, now)

		if err := st.DeletePosition(ctx, position.ID); err != nil {
			return err
		}
		pf, err := ReleaseMargin(ctx, st, p.ID, res.RealizedPnL)
		if err != nil {
			return err
		}

		trade = domain.Trade{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ParticipantID:  p.ID,
			PositionID:     nil, // the row is gone
			Symbol:         position.Symbol,
			Side:           order.Side,
			Quantity:       position.Quantity,
			Price:          price,
			Action:         domain.ActionClose,
			Leverage:       position.Leverage,
			NotionalValue:  position.NotionalValue,
			MarginImpact:   res.MarginReleased.Neg(),
			RealizedPnL:    &res.RealizedPnL,
			RealizedPnLPct: &res.RealizedPnLPct,
			ExecutedAt:     now,
		}
		if err := st.SaveTrade(ctx, trade); err != nil {
			return err
		}

		// Win/loss bookkeeping; break-even counts as neither.
		part, err := st.GetParticipant(ctx, p.ID)
		if err != nil {
			return err
		}
		part.TotalTrades++
		switch {
		case res.RealizedPnL.GreaterThan(decimal.Zero):
			part.WinningTrades++
		case res.RealizedPnL.LessThan(decimal.Zero):
			part.LosingTrades++
		}
		part.CurrentEquity = pf.Equity
		if pf.Equity.GreaterThan(part.PeakEquity) {
			part.PeakEquity = pf.Equity
		}
		if err := st.UpdateParticipant(ctx, part); err != nil {
			return err
		}

		order.Status = domain.OrderExecuted
		order.ExecutedPrice = &price
		order.ExecutedAt = &now
		return st.UpdateOrder(ctx, order)
	})
	if err != nil {
		return OrderOutcome{}, fmt.Errorf("engine.executeClose %s: %w", pos.Symbol, err)
	}

	slog.Info("position closed",
		"participant", p.Name, "symbol", pos.Symbol,
		"realized_pnl", trade.RealizedPnL.StringFixed(2), "price", price)
	return OrderOutcome{Order: order, Trade: &trade}, nil
}

func (e *TradingEngine) rejectOrder(ctx context.Context, order domain.Order, reason string) (OrderOutcome, error) {
	order.Status = domain.OrderRejected
	order.RejectionReason = reason
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		return OrderOutcome{}, fmt.Errorf("engine.rejectOrder: %w", err)
	}
	return OrderOutcome{Order: order, ValidationPassed: true}, nil
}
