package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gauntlet/internal/adapters/storage"
	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

func openStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func makeCompetition() domain.Competition {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Competition{
		ID:                   uuid.New(),
		Name:                 "summer-gauntlet",
		Description:          "four agents, one month",
		Status:               domain.CompetitionActive,
		StartTime:            now,
		EndTime:              now.Add(30 * 24 * time.Hour),
		InvocationInterval:   5 * time.Minute,
		InitialCapital:       dec("10000"),
		MaxLeverage:          dec("20"),
		MaintenanceMarginPct: dec("2.5"),
		AllowedAssetClasses:  []string{"crypto"},
		MaxParticipants:      5,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func makeParticipant(compID uuid.UUID, name, equity string) domain.Participant {
	return domain.Participant{
		ID:             uuid.New(),
		CompetitionID:  compID,
		Name:           name,
		AgentProvider:  "anthropic",
		AgentModel:     "claude-sonnet-4-5",
		AgentConfig:    domain.AgentConfig{MaxTokens: 2000, TimeoutSeconds: 30},
		Status:         domain.ParticipantActive,
		JoinedAt:       time.Now().UTC().Truncate(time.Second),
		InitialCapital: dec("10000"),
		CurrentEquity:  dec(equity),
		PeakEquity:     dec(equity),
	}
}

func makePortfolio(participantID uuid.UUID) domain.Portfolio {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Portfolio{
		ID:              uuid.New(),
		ParticipantID:   participantID,
		CashBalance:     dec("10000"),
		Equity:          dec("10000"),
		MarginUsed:      decimal.Zero,
		MarginAvailable: dec("10000"),
		RealizedPnL:     decimal.Zero,
		UnrealizedPnL:   decimal.Zero,
		TotalPnL:        decimal.Zero,
		CurrentLeverage: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func makePosition(pf domain.Portfolio, symbol string) domain.Position {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Position{
		ID:               uuid.New(),
		PortfolioID:      pf.ID,
		ParticipantID:    pf.ParticipantID,
		Symbol:           symbol,
		AssetClass:       "crypto",
		Side:             domain.SideLong,
		Quantity:         dec("0.5"),
		EntryPrice:       dec("50000"),
		CurrentPrice:     dec("50000"),
		Leverage:         dec("10"),
		MarginRequired:   dec("2500"),
		NotionalValue:    dec("25000"),
		UnrealizedPnL:    decimal.Zero,
		UnrealizedPnLPct: decimal.Zero,
		OpenedAt:         now,
		UpdatedAt:        now,
	}
}

func seedParticipant(t *testing.T, db *storage.SQLiteStorage, equity string) (domain.Competition, domain.Participant, domain.Portfolio) {
	t.Helper()
	ctx := context.Background()
	comp := makeCompetition()
	require.NoError(t, db.SaveCompetition(ctx, comp))
	p := makeParticipant(comp.ID, "trader-"+uuid.NewString()[:8], equity)
	require.NoError(t, db.SaveParticipant(ctx, p))
	pf := makePortfolio(p.ID)
	require.NoError(t, db.SavePortfolio(ctx, pf))
	return comp, p, pf
}

func TestSQLiteStorage_CompetitionRoundTrip(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp := makeCompetition()
	require.NoError(t, db.SaveCompetition(ctx, comp))

	got, err := db.GetCompetition(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, comp.Name, got.Name)
	assert.Equal(t, domain.CompetitionActive, got.Status)
	assert.Equal(t, 5*time.Minute, got.InvocationInterval)
	assert.True(t, got.MaxLeverage.Equal(dec("20")))
	assert.Equal(t, []string{"crypto"}, got.AllowedAssetClasses)
	assert.True(t, got.EndTime.After(got.StartTime))

	running, err := db.ListRunningCompetitions(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, running, 1)

	require.NoError(t, db.UpdateCompetitionStatus(ctx, comp.ID, domain.CompetitionCompleted))
	got, err = db.GetCompetition(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CompetitionCompleted, got.Status)
}

func TestSQLiteStorage_GetCompetition_NotFound(t *testing.T) {
	db := openStore(t)

	_, err := db.GetCompetition(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSQLiteStorage_LeaderboardOrder(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp := makeCompetition()
	require.NoError(t, db.SaveCompetition(ctx, comp))

	// Insert out of order; the list must come back equity-descending even
	// though equity is stored as TEXT.
	require.NoError(t, db.SaveParticipant(ctx, makeParticipant(comp.ID, "middle", "9500")))
	require.NoError(t, db.SaveParticipant(ctx, makeParticipant(comp.ID, "leader", "12750.50")))
	require.NoError(t, db.SaveParticipant(ctx, makeParticipant(comp.ID, "last", "980")))

	list, err := db.ListParticipants(ctx, comp.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "leader", list[0].Name)
	assert.Equal(t, "middle", list[1].Name)
	assert.Equal(t, "last", list[2].Name)
}

func TestSQLiteStorage_UpdateParticipant(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	_, p, _ := seedParticipant(t, db, "10000")

	p.Status = domain.ParticipantLiquidated
	p.CurrentEquity = dec("150.25")
	p.TotalTrades = 7
	p.WinningTrades = 3
	p.LosingTrades = 4
	require.NoError(t, db.UpdateParticipant(ctx, p))

	got, err := db.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantLiquidated, got.Status)
	assert.True(t, got.CurrentEquity.Equal(dec("150.25")))
	assert.Equal(t, 7, got.TotalTrades)

	active, err := db.ListActiveParticipants(ctx, p.CompetitionID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSQLiteStorage_PortfolioRoundTrip(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	_, p, pf := seedParticipant(t, db, "10000")

	got, err := db.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CashBalance.Equal(dec("10000")))
	assert.Nil(t, got.MarginLevel, "no margin used means no margin level")

	level := dec("410.5")
	got.MarginUsed = dec("2500")
	got.MarginLevel = &level
	got.Equity = dec("10262.5")
	require.NoError(t, db.UpdatePortfolio(ctx, got))

	got, err = db.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MarginLevel)
	assert.True(t, got.MarginLevel.Equal(dec("410.5")))
	_ = pf
}

func TestSQLiteStorage_PositionRoundTrip(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	_, p, pf := seedParticipant(t, db, "10000")

	pos := makePosition(pf, "BTCUSDT")
	tp := dec("60000")
	pos.ExitPlan = &domain.ExitPlan{ProfitTarget: &tp, Invalidation: "break of 48k support"}
	require.NoError(t, db.SavePosition(ctx, pos))

	got, err := db.GetPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SideLong, got.Side)
	assert.True(t, got.MarginRequired.Equal(dec("2500")))
	require.NotNil(t, got.ExitPlan)
	require.NotNil(t, got.ExitPlan.ProfitTarget)
	assert.True(t, got.ExitPlan.ProfitTarget.Equal(tp))
	assert.Nil(t, got.ExitPlan.StopLoss)

	bySymbol, err := db.FindPositionBySymbol(ctx, p.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, pos.ID, bySymbol.ID)

	_, err = db.FindPositionBySymbol(ctx, p.ID, "ETHUSDT")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	got.CurrentPrice = dec("52000")
	got.UnrealizedPnL = dec("1000")
	require.NoError(t, db.UpdatePosition(ctx, got))

	open, err := db.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].UnrealizedPnL.Equal(dec("1000")))
}

func TestSQLiteStorage_TradeSurvivesPositionDelete(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp, p, pf := seedParticipant(t, db, "10000")
	pos := makePosition(pf, "BTCUSDT")
	require.NoError(t, db.SavePosition(ctx, pos))

	now := time.Now().UTC()
	order := domain.Order{
		ID:            uuid.New(),
		ParticipantID: p.ID,
		CompetitionID: comp.ID,
		Symbol:        "BTCUSDT",
		AssetClass:    "crypto",
		Type:          domain.OrderMarket,
		Side:          domain.OrderBuy,
		Quantity:      dec("0.5"),
		Leverage:      dec("10"),
		Status:        domain.OrderExecuted,
		CreatedAt:     now,
		ExecutedAt:    &now,
	}
	require.NoError(t, db.SaveOrder(ctx, order))

	trade := domain.Trade{
		ID:            uuid.New(),
		OrderID:       order.ID,
		ParticipantID: p.ID,
		PositionID:    &pos.ID,
		Symbol:        "BTCUSDT",
		Side:          domain.OrderBuy,
		Quantity:      dec("0.5"),
		Price:         dec("50000"),
		Action:        domain.ActionOpen,
		Leverage:      dec("10"),
		NotionalValue: dec("25000"),
		MarginImpact:  dec("2500"),
		ExecutedAt:    now,
	}
	require.NoError(t, db.SaveTrade(ctx, trade))

	require.NoError(t, db.DeletePosition(ctx, pos.ID))

	trades, err := db.ListTrades(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Nil(t, trades[0].PositionID, "position reference nulled on delete")
	assert.True(t, trades[0].NotionalValue.Equal(dec("25000")))
}

func TestSQLiteStorage_OrderRejection(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp, p, _ := seedParticipant(t, db, "10000")

	order := domain.Order{
		ID:            uuid.New(),
		ParticipantID: p.ID,
		CompetitionID: comp.ID,
		Symbol:        "ETHUSDT",
		AssetClass:    "crypto",
		Type:          domain.OrderMarket,
		Side:          domain.OrderSell,
		Quantity:      dec("1"),
		Leverage:      dec("50"),
		Status:        domain.OrderPending,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.SaveOrder(ctx, order))

	order.Status = domain.OrderRejected
	order.RejectionReason = "leverage 50 exceeds competition max 20"
	require.NoError(t, db.UpdateOrder(ctx, order))
}

func TestSQLiteStorage_InvocationRoundTrip(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp, p, _ := seedParticipant(t, db, "10000")

	inv := domain.Invocation{
		ID:            uuid.New(),
		ParticipantID: p.ID,
		CompetitionID: comp.ID,
		PromptText:    "market snapshot...",
		Status:        domain.InvocationPending,
		InvokedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.SaveInvocation(ctx, inv))

	inv.Status = domain.InvocationSuccess
	inv.PromptTokens = 1200
	inv.ResponseTokens = 350
	inv.ResponseText = `{"decision":"hold"}`
	inv.ParsedDecision = []byte(`{"decision":"hold","reasoning":"waiting"}`)
	inv.ExecutionResults = []domain.ExecutionResult{{
		OrderID:          uuid.NewString(),
		Action:           domain.ActionOpen,
		Symbol:           "BTCUSDT",
		ValidationPassed: true,
		Status:           domain.OrderExecuted,
	}}
	inv.ResponseTimeMs = 840
	inv.EstimatedCost = 0.0123
	require.NoError(t, db.UpdateInvocation(ctx, inv))

	list, err := db.ListInvocations(ctx, p.ID, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, domain.InvocationSuccess, got.Status)
	assert.Equal(t, 1200, got.PromptTokens)
	assert.JSONEq(t, string(inv.ParsedDecision), string(got.ParsedDecision))
	require.Len(t, got.ExecutionResults, 1)
	assert.Equal(t, "BTCUSDT", got.ExecutionResults[0].Symbol)
	assert.True(t, got.ExecutionResults[0].ValidationPassed)
}

func TestSQLiteStorage_HistoryRange(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	_, p, _ := seedParticipant(t, db, "10000")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		h := domain.HistoryPoint{
			ParticipantID: p.ID,
			Equity:        dec("10000").Add(decimal.NewFromInt(int64(i * 100))),
			CashBalance:   dec("10000"),
			RecordedAt:    base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, db.SaveHistoryPoint(ctx, h))
	}

	// Middle point only.
	got, err := db.ListHistory(ctx, p.ID,
		base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equity.Equal(dec("10100")))

	all, err := db.ListHistory(ctx, p.ID, base.Add(-time.Hour), base.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].RecordedAt.Before(all[2].RecordedAt))
}

func TestSQLiteStorage_CascadeDelete(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp, p, pf := seedParticipant(t, db, "10000")
	require.NoError(t, db.SavePosition(ctx, makePosition(pf, "SOLUSDT")))

	require.NoError(t, db.DeleteCompetition(ctx, comp.ID))

	_, err := db.GetParticipant(ctx, p.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = db.GetPortfolio(ctx, p.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	open, err := db.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSQLiteStorage_WithTxRollback(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp := makeCompetition()
	require.NoError(t, db.SaveCompetition(ctx, comp))

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(st ports.Storage) error {
		if err := st.SaveParticipant(ctx, makeParticipant(comp.ID, "ghost", "10000")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := db.ListParticipants(ctx, comp.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "rolled-back participant must not persist")
}

func TestSQLiteStorage_WithTxCommitAndNesting(t *testing.T) {
	db := openStore(t)
	ctx := context.Background()

	comp := makeCompetition()
	require.NoError(t, db.SaveCompetition(ctx, comp))

	err := db.WithTx(ctx, func(st ports.Storage) error {
		if err := st.SaveParticipant(ctx, makeParticipant(comp.ID, "kept", "10000")); err != nil {
			return err
		}
		// Nested WithTx reuses the outer transaction.
		return st.WithTx(ctx, func(inner ports.Storage) error {
			return inner.SaveParticipant(ctx, makeParticipant(comp.ID, "nested", "9000"))
		})
	})
	require.NoError(t, err)

	list, err := db.ListParticipants(ctx, comp.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
