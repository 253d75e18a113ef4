package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// views.go — JSON projections of the domain entities. Kept separate from
// the domain so wire-format churn never touches the entities.

type competitionView struct {
	ID                   uuid.UUID                `json:"id"`
	Name                 string                   `json:"name"`
	Description          string                   `json:"description,omitempty"`
	Status               domain.CompetitionStatus `json:"status"`
	StartTime            time.Time                `json:"start_time"`
	EndTime              time.Time                `json:"end_time"`
	InvocationIntervalS  int                      `json:"invocation_interval_seconds"`
	InitialCapital       decimal.Decimal          `json:"initial_capital"`
	MaxLeverage          decimal.Decimal          `json:"max_leverage"`
	MaintenanceMarginPct decimal.Decimal          `json:"maintenance_margin_pct"`
	AllowedAssetClasses  []string                 `json:"allowed_asset_classes"`
	MaxParticipants      int                      `json:"max_participants"`
	MarketHoursOnly      bool                     `json:"market_hours_only"`
	CreatedAt            time.Time                `json:"created_at"`
}

func newCompetitionView(c domain.Competition) competitionView {
	return competitionView{
		ID:                   c.ID,
		Name:                 c.Name,
		Description:          c.Description,
		Status:               c.Status,
		StartTime:            c.StartTime,
		EndTime:              c.EndTime,
		InvocationIntervalS:  int(c.InvocationInterval.Seconds()),
		InitialCapital:       c.InitialCapital,
		MaxLeverage:          c.MaxLeverage,
		MaintenanceMarginPct: c.MaintenanceMarginPct,
		AllowedAssetClasses:  c.AllowedAssetClasses,
		MaxParticipants:      c.MaxParticipants,
		MarketHoursOnly:      c.MarketHoursOnly,
		CreatedAt:            c.CreatedAt,
	}
}

type participantView struct {
	ID             uuid.UUID                `json:"id"`
	CompetitionID  uuid.UUID                `json:"competition_id"`
	Name           string                   `json:"name"`
	AgentProvider  string                   `json:"agent_provider"`
	AgentModel     string                   `json:"agent_model"`
	Status         domain.ParticipantStatus `json:"status"`
	JoinedAt       time.Time                `json:"joined_at"`
	InitialCapital decimal.Decimal          `json:"initial_capital"`
	CurrentEquity  decimal.Decimal          `json:"current_equity"`
	PeakEquity     decimal.Decimal          `json:"peak_equity"`
	PnLPct         decimal.Decimal          `json:"pnl_pct"`
	TotalTrades    int                      `json:"total_trades"`
	WinningTrades  int                      `json:"winning_trades"`
	LosingTrades   int                      `json:"losing_trades"`
}

func newParticipantView(p domain.Participant) participantView {
	return participantView{
		ID:             p.ID,
		CompetitionID:  p.CompetitionID,
		Name:           p.Name,
		AgentProvider:  p.AgentProvider,
		AgentModel:     p.AgentModel,
		Status:         p.Status,
		JoinedAt:       p.JoinedAt,
		InitialCapital: p.InitialCapital,
		CurrentEquity:  p.CurrentEquity,
		PeakEquity:     p.PeakEquity,
		PnLPct:         p.PnLPct().Round(2),
		TotalTrades:    p.TotalTrades,
		WinningTrades:  p.WinningTrades,
		LosingTrades:   p.LosingTrades,
	}
}

type leaderboardView struct {
	Rank   int                      `json:"rank"`
	Name   string                   `json:"name"`
	Status domain.ParticipantStatus `json:"status"`
	Equity decimal.Decimal          `json:"equity"`
	PnLPct decimal.Decimal          `json:"pnl_pct"`
}

type portfolioView struct {
	ID              uuid.UUID        `json:"id"`
	ParticipantID   uuid.UUID        `json:"participant_id"`
	CashBalance     decimal.Decimal  `json:"cash_balance"`
	Equity          decimal.Decimal  `json:"equity"`
	MarginUsed      decimal.Decimal  `json:"margin_used"`
	MarginAvailable decimal.Decimal  `json:"margin_available"`
	RealizedPnL     decimal.Decimal  `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal  `json:"unrealized_pnl"`
	TotalPnL        decimal.Decimal  `json:"total_pnl"`
	CurrentLeverage decimal.Decimal  `json:"current_leverage"`
	MarginLevel     *decimal.Decimal `json:"margin_level"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func newPortfolioView(pf domain.Portfolio) portfolioView {
	return portfolioView{
		ID:              pf.ID,
		ParticipantID:   pf.ParticipantID,
		CashBalance:     pf.CashBalance,
		Equity:          pf.Equity,
		MarginUsed:      pf.MarginUsed,
		MarginAvailable: pf.MarginAvailable,
		RealizedPnL:     pf.RealizedPnL,
		UnrealizedPnL:   pf.UnrealizedPnL,
		TotalPnL:        pf.TotalPnL,
		CurrentLeverage: pf.CurrentLeverage,
		MarginLevel:     pf.MarginLevel,
		UpdatedAt:       pf.UpdatedAt,
	}
}

type positionView struct {
	ID               uuid.UUID           `json:"id"`
	ParticipantID    uuid.UUID           `json:"participant_id"`
	Symbol           string              `json:"symbol"`
	AssetClass       string              `json:"asset_class"`
	Side             domain.PositionSide `json:"side"`
	Quantity         decimal.Decimal     `json:"quantity"`
	EntryPrice       decimal.Decimal     `json:"entry_price"`
	CurrentPrice     decimal.Decimal     `json:"current_price"`
	Leverage         decimal.Decimal     `json:"leverage"`
	MarginRequired   decimal.Decimal     `json:"margin_required"`
	NotionalValue    decimal.Decimal     `json:"notional_value"`
	UnrealizedPnL    decimal.Decimal     `json:"unrealized_pnl"`
	UnrealizedPnLPct decimal.Decimal     `json:"unrealized_pnl_pct"`
	ExitPlan         *domain.ExitPlan    `json:"exit_plan,omitempty"`
	OpenedAt         time.Time           `json:"opened_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func newPositionView(pos domain.Position) positionView {
	return positionView{
		ID:               pos.ID,
		ParticipantID:    pos.ParticipantID,
		Symbol:           pos.Symbol,
		AssetClass:       pos.AssetClass,
		Side:             pos.Side,
		Quantity:         pos.Quantity,
		EntryPrice:       pos.EntryPrice,
		CurrentPrice:     pos.CurrentPrice,
		Leverage:         pos.Leverage,
		MarginRequired:   pos.MarginRequired,
		NotionalValue:    pos.NotionalValue,
		UnrealizedPnL:    pos.UnrealizedPnL,
		UnrealizedPnLPct: pos.UnrealizedPnLPct,
		ExitPlan:         pos.ExitPlan,
		OpenedAt:         pos.OpenedAt,
		UpdatedAt:        pos.UpdatedAt,
	}
}

type tradeView struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        uuid.UUID          `json:"order_id"`
	PositionID     *uuid.UUID         `json:"position_id"`
	Symbol         string             `json:"symbol"`
	Side           domain.OrderSide   `json:"side"`
	Action         domain.TradeAction `json:"action"`
	Quantity       decimal.Decimal    `json:"quantity"`
	Price          decimal.Decimal    `json:"price"`
	Leverage       decimal.Decimal    `json:"leverage"`
	NotionalValue  decimal.Decimal    `json:"notional_value"`
	MarginImpact   decimal.Decimal    `json:"margin_impact"`
	RealizedPnL    *decimal.Decimal   `json:"realized_pnl,omitempty"`
	RealizedPnLPct *decimal.Decimal   `json:"realized_pnl_pct,omitempty"`
	ExecutedAt     time.Time          `json:"executed_at"`
}

func newTradeView(t domain.Trade) tradeView {
	return tradeView{
		ID:             t.ID,
		OrderID:        t.OrderID,
		PositionID:     t.PositionID,
		Symbol:         t.Symbol,
		Side:           t.Side,
		Action:         t.Action,
		Quantity:       t.Quantity,
		Price:          t.Price,
		Leverage:       t.Leverage,
		NotionalValue:  t.NotionalValue,
		MarginImpact:   t.MarginImpact,
		RealizedPnL:    t.RealizedPnL,
		RealizedPnLPct: t.RealizedPnLPct,
		ExecutedAt:     t.ExecutedAt,
	}
}

type invocationView struct {
	ID               uuid.UUID                `json:"id"`
	ParticipantID    uuid.UUID                `json:"participant_id"`
	Status           domain.InvocationStatus  `json:"status"`
	ResponseTimeMs   int64                    `json:"response_time_ms"`
	PromptTokens     int                      `json:"prompt_tokens"`
	ResponseTokens   int                      `json:"response_tokens"`
	EstimatedCost    float64                  `json:"estimated_cost"`
	ErrorMessage     string                   `json:"error_message,omitempty"`
	ExecutionResults []domain.ExecutionResult `json:"execution_results,omitempty"`
	InvokedAt        time.Time                `json:"invoked_at"`
}

func newInvocationView(inv domain.Invocation) invocationView {
	return invocationView{
		ID:               inv.ID,
		ParticipantID:    inv.ParticipantID,
		Status:           inv.Status,
		ResponseTimeMs:   inv.ResponseTimeMs,
		PromptTokens:     inv.PromptTokens,
		ResponseTokens:   inv.ResponseTokens,
		EstimatedCost:    inv.EstimatedCost,
		ErrorMessage:     inv.ErrorMessage,
		ExecutionResults: inv.ExecutionResults,
		InvokedAt:        inv.InvokedAt,
	}
}

type historyView struct {
	Equity        decimal.Decimal `json:"equity"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	MarginUsed    decimal.Decimal `json:"margin_used"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

func newHistoryView(h domain.HistoryPoint) historyView {
	return historyView{
		Equity:        h.Equity,
		CashBalance:   h.CashBalance,
		MarginUsed:    h.MarginUsed,
		RealizedPnL:   h.RealizedPnL,
		UnrealizedPnL: h.UnrealizedPnL,
		TotalPnL:      h.TotalPnL,
		RecordedAt:    h.RecordedAt,
	}
}

type historyResponse struct {
	Points          []historyView `json:"points"`
	IntervalMinutes int           `json:"interval_minutes"`
	RawCount        int           `json:"raw_count"`
}

type tickerView struct {
	Symbol       string          `json:"symbol"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	High24h      decimal.Decimal `json:"high_24h"`
	Low24h       decimal.Decimal `json:"low_24h"`
	Volume24h    decimal.Decimal `json:"volume_24h"`
	Change24hPct decimal.Decimal `json:"change_24h_pct"`
}

func newTickerView(t domain.Ticker) tickerView {
	return tickerView{
		Symbol:       t.Symbol,
		LastPrice:    t.LastPrice,
		Bid:          t.Bid,
		Ask:          t.Ask,
		High24h:      t.High24h,
		Low24h:       t.Low24h,
		Volume24h:    t.Volume24h,
		Change24hPct: t.Change24hPct,
	}
}
