package ports

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// ErrNoPrice is returned when the provider has no quote for a symbol.
// Callers treat it as a per-symbol miss, never as a fatal condition.
var ErrNoPrice = errors.New("no price available")

// MarketData provides spot prices, 24h tickers and OHLCV candles.
// Implementations may cache prices with a short TTL; readers tolerate
// stale reads up to that TTL.
type MarketData interface {
	// Price returns the current last price for a symbol.
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Prices batch-fetches current prices. Symbols with no quote are
	// simply absent from the result.
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)

	// Ticker returns the 24h market summary for a symbol.
	Ticker(ctx context.Context, symbol string) (domain.Ticker, error)

	// OHLCV returns up to limit candles for the symbol and timeframe
	// (e.g. "1m", "5m", "15m", "1h"), oldest first.
	OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)
}
