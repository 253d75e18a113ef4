package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// portfolio.go — portfolio accounting. margin_used is always recomputed from
// the live position set, never mutated ad hoc; CashBalance and RealizedPnL
// are the only fields that carry state between refreshes.

// CreatePortfolio initializes a participant's portfolio at its initial
// capital and appends the zero-motion history point.
func CreatePortfolio(ctx context.Context, st ports.Storage, p domain.Participant) (domain.Portfolio, error) {
	now := time.Now().UTC()
	pf := domain.Portfolio{
		ID:              uuid.New(),
		ParticipantID:   p.ID,
		CashBalance:     p.InitialCapital,
		Equity:          p.InitialCapital,
		MarginUsed:      decimal.Zero,
		MarginAvailable: p.InitialCapital,
		RealizedPnL:     decimal.Zero,
		UnrealizedPnL:   decimal.Zero,
		TotalPnL:        decimal.Zero,
		CurrentLeverage: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := st.SavePortfolio(ctx, pf); err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.CreatePortfolio: %w", err)
	}
	if err := appendHistory(ctx, st, pf, now); err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.CreatePortfolio: %w", err)
	}
	return pf, nil
}

// RefreshPortfolio recomputes every aggregate from the portfolio's current
// position set, persists it and appends a history point.
func RefreshPortfolio(ctx context.Context, st ports.Storage, participantID uuid.UUID) (domain.Portfolio, error) {
	pf, err := st.GetPortfolio(ctx, participantID)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.RefreshPortfolio: %w", err)
	}
	positions, err := st.ListPositionsByPortfolio(ctx, pf.ID)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.RefreshPortfolio: %w", err)
	}

	marginUsed := decimal.Zero
	unrealized := decimal.Zero
	notional := decimal.Zero
	for _, pos := range positions {
		marginUsed = marginUsed.Add(pos.MarginRequired)
		unrealized = unrealized.Add(pos.UnrealizedPnL)
		notional = notional.Add(pos.NotionalValue)
	}

	pf.MarginUsed = marginUsed
	pf.UnrealizedPnL = unrealized
	pf.Equity = domain.Equity(pf.CashBalance, unrealized)
	pf.MarginAvailable = pf.Equity.Sub(marginUsed)
	pf.TotalPnL = pf.RealizedPnL.Add(unrealized)
	pf.CurrentLeverage = domain.CurrentLeverage(notional, pf.Equity)
	if marginUsed.IsZero() {
		pf.MarginLevel = nil
	} else {
		level := domain.MarginLevel(pf.Equity, marginUsed)
		pf.MarginLevel = &level
	}
	pf.UpdatedAt = time.Now().UTC()

	if err := st.UpdatePortfolio(ctx, pf); err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.RefreshPortfolio: %w", err)
	}
	if err := appendHistory(ctx, st, pf, pf.UpdatedAt); err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.RefreshPortfolio: %w", err)
	}
	return pf, nil
}

// AllocateMargin books the margin of a freshly saved position. The margin
// model is reserve-only: cash stays in the account, so this is a refresh
// that picks up the new position's margin_required.
func AllocateMargin(ctx context.Context, st ports.Storage, participantID uuid.UUID) (domain.Portfolio, error) {
	return RefreshPortfolio(ctx, st, participantID)
}

// ReleaseMargin settles a close: realized P&L lands in cash and in the
// cumulative realized counter. The released margin itself is never
// subtracted — the position row is gone, so the refresh sees the lower
// aggregate.
func ReleaseMargin(ctx context.Context, st ports.Storage, participantID uuid.UUID, realizedPnL decimal.Decimal) (domain.Portfolio, error) {
	pf, err := st.GetPortfolio(ctx, participantID)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.ReleaseMargin: %w", err)
	}
	pf.CashBalance = pf.CashBalance.Add(realizedPnL)
	pf.RealizedPnL = pf.RealizedPnL.Add(realizedPnL)
	if err := st.UpdatePortfolio(ctx, pf); err != nil {
		return domain.Portfolio{}, fmt.Errorf("engine.ReleaseMargin: %w", err)
	}
	return RefreshPortfolio(ctx, st, participantID)
}

// UpdateParticipantEquity mirrors the portfolio equity onto the participant
// row, bumping the peak when surpassed.
func UpdateParticipantEquity(ctx context.Context, st ports.Storage, participantID uuid.UUID, equity decimal.Decimal) error {
	p, err := st.GetParticipant(ctx, participantID)
	if err != nil {
		return fmt.Errorf("engine.UpdateParticipantEquity: %w", err)
	}
	p.CurrentEquity = equity
	if equity.GreaterThan(p.PeakEquity) {
		p.PeakEquity = equity
	}
	if err := st.UpdateParticipant(ctx, p); err != nil {
		return fmt.Errorf("engine.UpdateParticipantEquity: %w", err)
	}
	return nil
}

// CheckAndLiquidate force-closes every position of a participant whose
// margin level fell below the competition's liquidation threshold. Returns
// true when a liquidation happened.
func CheckAndLiquidate(ctx context.Context, st ports.Storage, market ports.MarketData, participantID uuid.UUID, comp domain.Competition) (bool, error) {
	p, err := st.GetParticipant(ctx, participantID)
	if err != nil {
		return false, fmt.Errorf("engine.CheckAndLiquidate: %w", err)
	}
	if p.Status != domain.ParticipantActive {
		return false, nil
	}
	pf, err := st.GetPortfolio(ctx, participantID)
	if err != nil {
		return false, fmt.Errorf("engine.CheckAndLiquidate: %w", err)
	}
	if pf.MarginUsed.LessThanOrEqual(decimal.Zero) {
		return false, nil
	}

	marginLevel := domain.MarginLevel(pf.Equity, pf.MarginUsed)
	if !domain.CheckLiquidation(marginLevel, comp.MaintenanceMarginPct, comp.InitialMarginPct()) {
		return false, nil
	}

	slog.Warn("liquidating participant",
		"participant", p.Name,
		"margin_level", marginLevel.StringFixed(2),
		"equity", pf.Equity.StringFixed(2))

	positions, err := st.ListPositionsByPortfolio(ctx, pf.ID)
	if err != nil {
		return false, fmt.Errorf("engine.CheckAndLiquidate: %w", err)
	}
	now := time.Now().UTC()
	for _, pos := range positions {
		price, err := market.Price(ctx, pos.Symbol)
		if err != nil {
			// No quote right now: leave the position for the next sweep.
			slog.Warn("liquidation: no price, skipping position",
				"participant", p.Name, "symbol", pos.Symbol, "err", err)
			continue
		}
		res := ClosePosition(&pos, price, now)
		if err := st.DeletePosition(ctx, pos.ID); err != nil {
			return false, fmt.Errorf("engine.CheckAndLiquidate: delete position %s: %w", pos.ID, err)
		}
		pf.CashBalance = pf.CashBalance.Add(res.RealizedPnL)
		pf.RealizedPnL = pf.RealizedPnL.Add(res.RealizedPnL)
	}

	if err := st.UpdatePortfolio(ctx, pf); err != nil {
		return false, fmt.Errorf("engine.CheckAndLiquidate: %w", err)
	}
	pf, err = RefreshPortfolio(ctx, st, participantID)
	if err != nil {
		return false, fmt.Errorf("engine.CheckAndLiquidate: %w", err)
	}

	p.Status = domain.ParticipantLiquidated
	p.CurrentEquity = pf.Equity
	if pf.Equity.GreaterThan(p.PeakEquity) {
		p.PeakEquity = pf.Equity
	}
	if err := st.UpdateParticipant(ctx, p); err != nil {
		return false, fmt.Errorf("engine.CheckAndLiquidate: %w", err)
	}
	return true, nil
}

func appendHistory(ctx context.Context, st ports.Storage, pf domain.Portfolio, at time.Time) error {
	return st.SaveHistoryPoint(ctx, domain.HistoryPoint{
		ParticipantID: pf.ParticipantID,
		Equity:        pf.Equity,
		CashBalance:   pf.CashBalance,
		MarginUsed:    pf.MarginUsed,
		RealizedPnL:   pf.RealizedPnL,
		UnrealizedPnL: pf.UnrealizedPnL,
		TotalPnL:      pf.TotalPnL,
		RecordedAt:    at,
	})
}
