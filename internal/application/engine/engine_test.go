package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gauntlet/internal/adapters/storage"
	"github.com/alejandrodnm/gauntlet/internal/application/engine"
	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

type stubMarket struct {
	prices map[string]decimal.Decimal
}

func (m *stubMarket) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Decimal{}, ports.ErrNoPrice
	}
	return p, nil
}

func (m *stubMarket) Prices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, s := range symbols {
		if p, ok := m.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (m *stubMarket) Ticker(_ context.Context, symbol string) (domain.Ticker, error) {
	return domain.Ticker{Symbol: symbol}, nil
}

func (m *stubMarket) OHLCV(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	store  *storage.SQLiteStorage
	market *stubMarket
	eng    *engine.TradingEngine
	locks  *engine.LockRegistry
	comp   domain.Competition
	part   domain.Participant
	pf     domain.Portfolio
}

// newFixture sets up a competition with max leverage 10 and maintenance
// margin 5% (liquidation threshold 50%), one active participant with 10k,
// and a trading engine over in-memory storage.
func newFixture(t *testing.T, prices map[string]decimal.Decimal) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Now().UTC()
	comp := domain.Competition{
		ID:                   uuid.New(),
		Name:                 "test",
		Status:               domain.CompetitionActive,
		StartTime:            now,
		EndTime:              now.Add(24 * time.Hour),
		InvocationInterval:   5 * time.Minute,
		InitialCapital:       dec("10000"),
		MaxLeverage:          dec("10"),
		MaintenanceMarginPct: dec("5"),
		AllowedAssetClasses:  []string{"crypto"},
		MaxParticipants:      5,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, db.SaveCompetition(ctx, comp))

	part := domain.Participant{
		ID:             uuid.New(),
		CompetitionID:  comp.ID,
		Name:           "alpha",
		AgentProvider:  "anthropic",
		AgentModel:     "claude-sonnet-4-5",
		Status:         domain.ParticipantActive,
		JoinedAt:       now,
		InitialCapital: dec("10000"),
		CurrentEquity:  dec("10000"),
		PeakEquity:     dec("10000"),
	}
	require.NoError(t, db.SaveParticipant(ctx, part))

	pf, err := engine.CreatePortfolio(ctx, db, part)
	require.NoError(t, err)

	market := &stubMarket{prices: prices}
	locks := engine.NewLockRegistry()
	return &fixture{
		store:  db,
		market: market,
		eng:    engine.NewTradingEngine(db, market, locks),
		locks:  locks,
		comp:   comp,
		part:   part,
		pf:     pf,
	}
}

func (f *fixture) open(t *testing.T, symbol string, side domain.OrderSide, qty, leverage string) engine.OrderOutcome {
	t.Helper()
	q := dec(qty)
	out, err := f.eng.Process(context.Background(), f.comp.ID, f.part.ID, uuid.Nil, domain.OrderRequest{
		Action:   domain.ActionOpen,
		Symbol:   symbol,
		Side:     &side,
		Quantity: &q,
		Leverage: dec(leverage),
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) close(t *testing.T, req domain.OrderRequest) engine.OrderOutcome {
	t.Helper()
	req.Action = domain.ActionClose
	out, err := f.eng.Process(context.Background(), f.comp.ID, f.part.ID, uuid.Nil, req)
	require.NoError(t, err)
	return out
}

func TestOpen_ReserveModel(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})
	ctx := context.Background()

	out := f.open(t, "BTCUSDT", domain.OrderBuy, "0.5", "10")
	require.Equal(t, domain.OrderExecuted, out.Order.Status)
	require.NotNil(t, out.Trade)
	assert.True(t, out.Trade.MarginImpact.Equal(dec("2500")), "25000 notional / 10x")

	pf, err := f.store.GetPortfolio(ctx, f.part.ID)
	require.NoError(t, err)
	// Cash is untouched on open; margin is a reservation against equity.
	assert.True(t, pf.CashBalance.Equal(dec("10000")), "cash: %s", pf.CashBalance)
	assert.True(t, pf.Equity.Equal(dec("10000")))
	assert.True(t, pf.MarginUsed.Equal(dec("2500")))
	assert.True(t, pf.MarginAvailable.Equal(dec("7500")))
	require.NotNil(t, pf.MarginLevel)
	assert.True(t, pf.MarginLevel.Equal(dec("400")), "10000/2500*100")
}

func TestOpenClose_BreakEven(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})
	ctx := context.Background()

	out := f.open(t, "BTCUSDT", domain.OrderBuy, "0.5", "10")
	posID := out.Trade.PositionID.String()

	closeOut := f.close(t, domain.OrderRequest{Symbol: "BTCUSDT", PositionID: posID})
	require.Equal(t, domain.OrderExecuted, closeOut.Order.Status)
	require.NotNil(t, closeOut.Trade.RealizedPnL)
	assert.True(t, closeOut.Trade.RealizedPnL.IsZero())
	assert.Nil(t, closeOut.Trade.PositionID, "close trade outlives the position")

	pf, err := f.store.GetPortfolio(ctx, f.part.ID)
	require.NoError(t, err)
	assert.True(t, pf.CashBalance.Equal(dec("10000")))
	assert.True(t, pf.Equity.Equal(dec("10000")))
	assert.True(t, pf.MarginUsed.IsZero())
	assert.Nil(t, pf.MarginLevel)

	p, err := f.store.GetParticipant(ctx, f.part.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalTrades)
	assert.Equal(t, 0, p.WinningTrades, "break-even is not a win")
	assert.Equal(t, 0, p.LosingTrades, "break-even is not a loss")
}

func TestOpenClose_Profit(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})
	ctx := context.Background()

	out := f.open(t, "BTCUSDT", domain.OrderBuy, "0.5", "5")
	posID := out.Trade.PositionID.String()

	f.market.prices["BTCUSDT"] = dec("52000")
	closeOut := f.close(t, domain.OrderRequest{Symbol: "BTCUSDT", PositionID: posID})
	require.NotNil(t, closeOut.Trade.RealizedPnL)
	assert.True(t, closeOut.Trade.RealizedPnL.Equal(dec("1000")), "0.5 * 2000")
	assert.True(t, closeOut.Trade.RealizedPnLPct.Equal(dec("4")), "1000 / 25000 * 100")

	pf, err := f.store.GetPortfolio(ctx, f.part.ID)
	require.NoError(t, err)
	assert.True(t, pf.CashBalance.Equal(dec("11000")))
	assert.True(t, pf.RealizedPnL.Equal(dec("1000")))
	assert.True(t, pf.TotalPnL.Equal(dec("1000")))

	p, err := f.store.GetParticipant(ctx, f.part.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.WinningTrades)
	assert.True(t, p.CurrentEquity.Equal(dec("11000")))
	assert.True(t, p.PeakEquity.Equal(dec("11000")))
}

func TestShort_ProfitsWhenPriceFalls(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"ETHUSDT": dec("3000")})

	out := f.open(t, "ETHUSDT", domain.OrderSell, "2", "5")
	posID := out.Trade.PositionID.String()

	f.market.prices["ETHUSDT"] = dec("2800")
	closeOut := f.close(t, domain.OrderRequest{Symbol: "ETHUSDT", PositionID: posID})
	assert.True(t, closeOut.Trade.RealizedPnL.Equal(dec("400")), "2 * 200")
}

func TestPnLIsLeverageIndependent(t *testing.T) {
	for _, lev := range []string{"2", "5", "10"} {
		f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})
		out := f.open(t, "BTCUSDT", domain.OrderBuy, "0.5", lev)
		f.market.prices["BTCUSDT"] = dec("51000")
		closeOut := f.close(t, domain.OrderRequest{
			Symbol: "BTCUSDT", PositionID: out.Trade.PositionID.String(),
		})
		assert.True(t, closeOut.Trade.RealizedPnL.Equal(dec("500")),
			"leverage %s: pnl %s", lev, closeOut.Trade.RealizedPnL)
	}
}

func TestValidate_InsufficientMargin(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})

	// 1 BTC at 2x = 25000 margin > 10000 available.
	q := dec("1")
	side := domain.OrderBuy
	out, err := f.eng.Process(context.Background(), f.comp.ID, f.part.ID, uuid.Nil, domain.OrderRequest{
		Action:   domain.ActionOpen,
		Symbol:   "BTCUSDT",
		Side:     &side,
		Quantity: &q,
		Leverage: dec("2"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, out.Order.Status)
	assert.False(t, out.ValidationPassed)
	assert.Contains(t, out.Order.RejectionReason, "insufficient margin")

	positions, err := f.store.ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestValidate_LeverageCap(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})

	q := dec("0.1")
	side := domain.OrderBuy
	out, err := f.eng.Process(context.Background(), f.comp.ID, f.part.ID, uuid.Nil, domain.OrderRequest{
		Action:   domain.ActionOpen,
		Symbol:   "BTCUSDT",
		Side:     &side,
		Quantity: &q,
		Leverage: dec("50"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, out.Order.Status)
	assert.Contains(t, out.Order.RejectionReason, "exceeds competition max")
}

func TestValidate_UnknownSymbol(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})

	q := dec("1")
	side := domain.OrderBuy
	out, err := f.eng.Process(context.Background(), f.comp.ID, f.part.ID, uuid.Nil, domain.OrderRequest{
		Action:   domain.ActionOpen,
		Symbol:   "NOPEUSDT",
		Side:     &side,
		Quantity: &q,
		Leverage: dec("2"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, out.Order.Status)
	assert.Contains(t, out.Order.RejectionReason, "no price available")
}

func TestClose_SymbolCorrection(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{
		"ETHUSDT": dec("3000"),
		"BTCUSDT": dec("50000"),
	})

	out := f.open(t, "ETHUSDT", domain.OrderBuy, "2", "5")
	posID := out.Trade.PositionID.String()

	f.market.prices["ETHUSDT"] = dec("3100")

	// The agent names the wrong symbol; the stored position wins.
	closeOut := f.close(t, domain.OrderRequest{Symbol: "BTCUSDT", PositionID: posID})
	require.Equal(t, domain.OrderExecuted, closeOut.Order.Status)
	assert.Equal(t, "ETHUSDT", closeOut.Order.Symbol)
	assert.Equal(t, "ETHUSDT", closeOut.Trade.Symbol)
	assert.True(t, closeOut.Trade.Price.Equal(dec("3100")), "closed at the ETH price")
	assert.True(t, closeOut.Trade.RealizedPnL.Equal(dec("200")))
}

func TestClose_LegacySymbolFallback(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})

	f.open(t, "BTCUSDT", domain.OrderBuy, "0.2", "5")

	// No position_id at all: resolve by (participant, symbol).
	closeOut := f.close(t, domain.OrderRequest{Symbol: "BTCUSDT"})
	assert.Equal(t, domain.OrderExecuted, closeOut.Order.Status)
	assert.Equal(t, domain.OrderSell, closeOut.Order.Side, "side inferred from the long")
	assert.True(t, closeOut.Order.Quantity.Equal(dec("0.2")), "quantity from the stored position")
}

func TestIncrease_PersistedRejected(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})

	out := f.open(t, "BTCUSDT", domain.OrderBuy, "0.2", "5")
	posID := out.Trade.PositionID.String()

	res, err := f.eng.Process(context.Background(), f.comp.ID, f.part.ID, uuid.Nil, domain.OrderRequest{
		Action:     domain.ActionIncrease,
		Symbol:     "BTCUSDT",
		PositionID: posID,
	})
	require.NoError(t, err)
	assert.True(t, res.ValidationPassed)
	assert.Equal(t, domain.OrderRejected, res.Order.Status)
	assert.Contains(t, res.Order.RejectionReason, "not implemented")
}

func TestMarkToMarket_Liquidation(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})
	ctx := context.Background()

	// 2 BTC at 10x: notional 100k, margin_used 10000, all equity reserved.
	f.open(t, "BTCUSDT", domain.OrderBuy, "2", "10")

	// Price drifts to 47000: equity 10000 - 6000 = 4000, margin level 40%
	// against the (5/10)*100 = 50% threshold.
	f.market.prices["BTCUSDT"] = dec("47000")
	require.NoError(t, engine.MarkToMarket(ctx, f.store, f.market, f.locks))

	p, err := f.store.GetParticipant(ctx, f.part.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantLiquidated, p.Status)
	assert.True(t, p.CurrentEquity.Equal(dec("4000")), "equity: %s", p.CurrentEquity)

	positions, err := f.store.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions, "liquidation closes everything")

	pf, err := f.store.GetPortfolio(ctx, f.part.ID)
	require.NoError(t, err)
	assert.True(t, pf.CashBalance.Equal(dec("4000")))
	assert.True(t, pf.MarginUsed.IsZero())
}

func TestMarkToMarket_HealthySurvives(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})
	ctx := context.Background()

	f.open(t, "BTCUSDT", domain.OrderBuy, "0.5", "10")

	f.market.prices["BTCUSDT"] = dec("49000")
	require.NoError(t, engine.MarkToMarket(ctx, f.store, f.market, f.locks))

	p, err := f.store.GetParticipant(ctx, f.part.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantActive, p.Status)
	assert.True(t, p.CurrentEquity.Equal(dec("9500")), "equity: %s", p.CurrentEquity)

	pf, err := f.store.GetPortfolio(ctx, f.part.ID)
	require.NoError(t, err)
	assert.True(t, pf.UnrealizedPnL.Equal(dec("-500")))
	assert.True(t, pf.Equity.Equal(dec("9500")))
}

func TestInactiveParticipantCannotTrade(t *testing.T) {
	f := newFixture(t, map[string]decimal.Decimal{"BTCUSDT": dec("50000")})
	ctx := context.Background()

	p, err := f.store.GetParticipant(ctx, f.part.ID)
	require.NoError(t, err)
	p.Status = domain.ParticipantLiquidated
	require.NoError(t, f.store.UpdateParticipant(ctx, p))

	q := dec("0.1")
	side := domain.OrderBuy
	out, err := f.eng.Process(ctx, f.comp.ID, f.part.ID, uuid.Nil, domain.OrderRequest{
		Action:   domain.ActionOpen,
		Symbol:   "BTCUSDT",
		Side:     &side,
		Quantity: &q,
		Leverage: dec("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, out.Order.Status)
	assert.Contains(t, out.Order.RejectionReason, "liquidated")
}
