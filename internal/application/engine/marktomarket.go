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

// MarkToMarket revalues every open position at current prices, refreshes
// the owning portfolios and runs the liquidation check. One participant
// failing never blocks the others.
func MarkToMarket(ctx context.Context, store ports.Storage, market ports.MarketData, locks *LockRegistry) error {
	positions, err := store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("engine.MarkToMarket: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	// One batched quote per distinct symbol.
	seen := map[string]bool{}
	var symbols []string
	for _, pos := range positions {
		if !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			symbols = append(symbols, pos.Symbol)
		}
	}
	prices, err := market.Prices(ctx, symbols)
	if err != nil {
		return fmt.Errorf("engine.MarkToMarket: prices: %w", err)
	}

	byParticipant := map[uuid.UUID][]domain.Position{}
	for _, pos := range positions {
		byParticipant[pos.ParticipantID] = append(byParticipant[pos.ParticipantID], pos)
	}

	comps := map[uuid.UUID]domain.Competition{}
	for participantID, owned := range byParticipant {
		if err := markParticipant(ctx, store, market, locks, comps, participantID, owned, prices); err != nil {
			slog.Error("mark-to-market failed for participant",
				"participant_id", participantID, "err", err)
		}
	}
	return nil
}

func markParticipant(
	ctx context.Context,
	store ports.Storage,
	market ports.MarketData,
	locks *LockRegistry,
	comps map[uuid.UUID]domain.Competition,
	participantID uuid.UUID,
	positions []domain.Position,
	prices map[string]decimal.Decimal,
) error {
	locks.Lock(participantID)
	defer locks.Unlock(participantID)

	p, err := store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	comp, ok := comps[p.CompetitionID]
	if !ok {
		comp, err = store.GetCompetition(ctx, p.CompetitionID)
		if err != nil {
			return err
		}
		comps[p.CompetitionID] = comp
	}

	err = store.WithTx(ctx, func(st ports.Storage) error {
		now := time.Now().UTC()
		for _, pos := range positions {
			price, ok := prices[pos.Symbol]
			if !ok {
				slog.Warn("mark-to-market: no price", "symbol", pos.Symbol)
				continue
			}
			Revalue(&pos, price, now)
			if err := st.UpdatePosition(ctx, pos); err != nil {
				return err
			}
		}
		pf, err := RefreshPortfolio(ctx, st, participantID)
		if err != nil {
			return err
		}
		return UpdateParticipantEquity(ctx, st, participantID, pf.Equity)
	})
	if err != nil {
		return err
	}

	liquidated, err := CheckAndLiquidateTx(ctx, store, market, participantID, comp)
	if err != nil {
		return err
	}
	if liquidated {
		slog.Warn("participant liquidated", "participant", p.Name)
	}
	return nil
}

// CheckAndLiquidateTx wraps CheckAndLiquidate in its own transaction so a
// liquidation commits or rolls back as one unit.
func CheckAndLiquidateTx(ctx context.Context, store ports.Storage, market ports.MarketData, participantID uuid.UUID, comp domain.Competition) (bool, error) {
	var liquidated bool
	err := store.WithTx(ctx, func(st ports.Storage) error {
		var err error
		liquidated, err = CheckAndLiquidate(ctx, st, market, participantID, comp)
		return err
	})
	return liquidated, err
}
