package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

// DefaultUniverse is the fixed symbol set agents may trade.
var DefaultUniverse = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT"}

// snapshotTimeframes are packed per symbol into the prompt snapshot.
var snapshotTimeframes = []string{"1m", "5m", "15m", "1h"}

// candlesPerTimeframe leaves room for EMA(20) and MACD(12,26,9) warmup.
const candlesPerTimeframe = 50

// promptCandles is how many trailing candles per timeframe the agent sees.
const promptCandles = 5

// systemPrompt is the static half of every invocation: rules, mechanics and
// the reply grammar. The dynamic context travels in the user payload.
const systemPrompt = `You are an autonomous trading agent competing in a simulated leveraged CFD trading competition.

MECHANICS:
- All positions are CFDs settled in USD. Long profits when price rises, short when it falls.
- Margin required per position = (quantity x price) / leverage, locked at open.
- Equity = cash balance + unrealized P&L. Margin available = equity - margin used.
- If your margin level (equity / margin used x 100) falls below the liquidation
  threshold, ALL your positions are force-closed and you are out of the competition.

SIZING:
- There is no per-position size cap. Your only constraint is margin availability:
  (quantity x price) / leverage must not exceed your margin_available.
- Leverage does not change your exposure, only the margin locked. Higher leverage
  means less margin locked but a tighter liquidation buffer.

RESPONSE FORMAT — reply with valid JSON only:
{
  "decision": "trade" or "hold",
  "reasoning": "brief explanation (max 500 chars)",
  "confidence": 0.0 to 1.0 (optional),
  "orders": [
    {
      "action": "open" or "close",
      "symbol": "BTCUSDT",
      "side": "buy" or "sell",          // required on open
      "quantity": 0.05,                  // required on open
      "leverage": 5,                     // required on open, >= 1
      "position_id": "uuid",             // required on close
      "exit_plan": {                     // optional, open only
        "profit_target": 110000,
        "stop_loss": 95000,
        "invalidation": "break of support"
      }
    }
  ]
}

On "hold", omit orders. Only trade symbols from available_symbols. To close a
position use its position_id from your portfolio context.`

// SystemPrompt returns the static system section of the prompt.
func SystemPrompt() string { return systemPrompt }

// ContextBuilder assembles the dynamic user payload for one invocation.
type ContextBuilder struct {
	market   ports.MarketData
	universe []string
}

// NewContextBuilder creates a builder over the given symbol universe.
// An empty universe falls back to DefaultUniverse.
func NewContextBuilder(market ports.MarketData, universe []string) *ContextBuilder {
	if len(universe) == 0 {
		universe = DefaultUniverse
	}
	return &ContextBuilder{market: market, universe: universe}
}

type promptPayload struct {
	CompetitionContext competitionContext `json:"competition_context"`
	Portfolio          portfolioContext   `json:"portfolio"`
	MarketData         marketSnapshot     `json:"market_data"`
	TradingRules       tradingRules       `json:"trading_rules"`
	Leaderboard        []LeaderboardEntry `json:"leaderboard"`
}

type competitionContext struct {
	CompetitionID   string `json:"competition_id"`
	CompetitionName string `json:"competition_name"`
	CurrentTime     string `json:"current_time"`
	TimeRemaining   string `json:"time_remaining"`
}

type portfolioContext struct {
	CashBalance     decimal.Decimal   `json:"cash_balance"`
	Equity          decimal.Decimal   `json:"equity"`
	MarginUsed      decimal.Decimal   `json:"margin_used"`
	MarginAvailable decimal.Decimal   `json:"margin_available"`
	RealizedPnL     decimal.Decimal   `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal   `json:"unrealized_pnl"`
	TotalPnL        decimal.Decimal   `json:"total_pnl"`
	CurrentLeverage decimal.Decimal   `json:"current_leverage"`
	Positions       []positionContext `json:"positions"`
}

type positionContext struct {
	PositionID       string           `json:"position_id"`
	Symbol           string           `json:"symbol"`
	Side             string           `json:"side"`
	Quantity         decimal.Decimal  `json:"quantity"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	CurrentPrice     decimal.Decimal  `json:"current_price"`
	Leverage         decimal.Decimal  `json:"leverage"`
	NotionalValue    decimal.Decimal  `json:"notional_value"`
	UnrealizedPnL    decimal.Decimal  `json:"unrealized_pnl"`
	UnrealizedPnLPct decimal.Decimal  `json:"unrealized_pnl_pct"`
	MarginRequired   decimal.Decimal  `json:"margin_required"`
	OpenedAt         string           `json:"opened_at"`
	ExitPlan         *domain.ExitPlan `json:"exit_plan,omitempty"`
}

type marketSnapshot struct {
	AvailableSymbols []string         `json:"available_symbols"`
	Symbols          []symbolSnapshot `json:"symbols"`
}

type symbolSnapshot struct {
	Symbol       string                       `json:"symbol"`
	CurrentPrice *decimal.Decimal             `json:"current_price"`
	Timeframes   map[string]timeframeSnapshot `json:"timeframes"`
}

type timeframeSnapshot struct {
	Candles    []candleContext `json:"candles"`
	Indicators IndicatorSet    `json:"indicators"`
}

type candleContext struct {
	Timestamp string          `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

type tradingRules struct {
	MaxLeverage          decimal.Decimal `json:"max_leverage"`
	MaintenanceMarginPct decimal.Decimal `json:"maintenance_margin_pct"`
	AllowedAssetClasses  []string        `json:"allowed_asset_classes"`
}

// LeaderboardEntry is one ranked row in the prompt's leaderboard section.
type LeaderboardEntry struct {
	Rank   int             `json:"rank"`
	Name   string          `json:"name"`
	Equity decimal.Decimal `json:"equity"`
	PnLPct decimal.Decimal `json:"pnl_pct"`
}

// BuildLeaderboard ranks participants by current equity descending.
// The input is expected in leaderboard order already (the store sorts).
func BuildLeaderboard(participants []domain.Participant) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(participants))
	for i, p := range participants {
		out[i] = LeaderboardEntry{
			Rank:   i + 1,
			Name:   p.Name,
			Equity: p.CurrentEquity,
			PnLPct: p.PnLPct().Round(2),
		}
	}
	return out
}

// BuildUserPayload assembles the JSON user payload and returns it along
// with the raw market and portfolio snapshots for the invocation record.
func (b *ContextBuilder) BuildUserPayload(
	ctx context.Context,
	comp domain.Competition,
	pf domain.Portfolio,
	positions []domain.Position,
	leaderboard []LeaderboardEntry,
	now time.Time,
) (payload string, marketJSON, portfolioJSON []byte, err error) {
	market := b.buildMarketSnapshot(ctx)

	posCtx := make([]positionContext, len(positions))
	for i, pos := range positions {
		posCtx[i] = positionContext{
			PositionID:       pos.ID.String(),
			Symbol:           pos.Symbol,
			Side:             string(pos.Side),
			Quantity:         pos.Quantity,
			EntryPrice:       pos.EntryPrice,
			CurrentPrice:     pos.CurrentPrice,
			Leverage:         pos.Leverage,
			NotionalValue:    pos.NotionalValue,
			UnrealizedPnL:    pos.UnrealizedPnL,
			UnrealizedPnLPct: pos.UnrealizedPnLPct,
			MarginRequired:   pos.MarginRequired,
			OpenedAt:         pos.OpenedAt.UTC().Format(time.RFC3339),
			ExitPlan:         pos.ExitPlan,
		}
	}

	doc := promptPayload{
		CompetitionContext: competitionContext{
			CompetitionID:   comp.ID.String(),
			CompetitionName: comp.Name,
			CurrentTime:     now.UTC().Format(time.RFC3339),
			TimeRemaining:   comp.EndTime.Sub(now).Truncate(time.Second).String(),
		},
		Portfolio: portfolioContext{
			CashBalance:     pf.CashBalance,
			Equity:          pf.Equity,
			MarginUsed:      pf.MarginUsed,
			MarginAvailable: pf.MarginAvailable,
			RealizedPnL:     pf.RealizedPnL,
			UnrealizedPnL:   pf.UnrealizedPnL,
			TotalPnL:        pf.TotalPnL,
			CurrentLeverage: pf.CurrentLeverage,
			Positions:       posCtx,
		},
		MarketData: market,
		TradingRules: tradingRules{
			MaxLeverage:          comp.MaxLeverage,
			MaintenanceMarginPct: comp.MaintenanceMarginPct,
			AllowedAssetClasses:  comp.AllowedAssetClasses,
		},
		Leaderboard: leaderboard,
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", nil, nil, fmt.Errorf("agent.BuildUserPayload: marshal: %w", err)
	}
	marketJSON, err = json.Marshal(market)
	if err != nil {
		return "", nil, nil, fmt.Errorf("agent.BuildUserPayload: marshal market: %w", err)
	}
	portfolioJSON, err = json.Marshal(doc.Portfolio)
	if err != nil {
		return "", nil, nil, fmt.Errorf("agent.BuildUserPayload: marshal portfolio: %w", err)
	}
	return string(raw), marketJSON, portfolioJSON, nil
}

// buildMarketSnapshot packs the multi-timeframe view: last five candles and
// latest indicator values per symbol and timeframe. Feed misses degrade to
// partial snapshots, never to a failed invocation.
func (b *ContextBuilder) buildMarketSnapshot(ctx context.Context) marketSnapshot {
	snap := marketSnapshot{AvailableSymbols: b.universe}
	for _, symbol := range b.universe {
		sym := symbolSnapshot{
			Symbol:     symbol,
			Timeframes: make(map[string]timeframeSnapshot, len(snapshotTimeframes)),
		}
		if price, err := b.market.Price(ctx, symbol); err == nil {
			sym.CurrentPrice = &price
		} else {
			slog.Warn("snapshot: no price", "symbol", symbol, "err", err)
		}

		for _, tf := range snapshotTimeframes {
			candles, err := b.market.OHLCV(ctx, symbol, tf, candlesPerTimeframe)
			if err != nil {
				slog.Warn("snapshot: no candles", "symbol", symbol, "timeframe", tf, "err", err)
				continue
			}
			recent := candles
			if len(recent) > promptCandles {
				recent = recent[len(recent)-promptCandles:]
			}
			tfSnap := timeframeSnapshot{Indicators: ComputeIndicators(candles)}
			for _, c := range recent {
				tfSnap.Candles = append(tfSnap.Candles, candleContext{
					Timestamp: c.Timestamp.UTC().Format(time.RFC3339),
					Open:      c.Open,
					High:      c.High,
					Low:       c.Low,
					Close:     c.Close,
					Volume:    c.Volume,
				})
			}
			sym.Timeframes[tf] = tfSnap
		}
		snap.Symbols = append(snap.Symbols, sym)
	}
	return snap
}
