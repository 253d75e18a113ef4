package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is a 24h market summary for one symbol.
type Ticker struct {
	Symbol       string
	LastPrice    decimal.Decimal
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	High24h      decimal.Decimal
	Low24h       decimal.Decimal
	Volume24h    decimal.Decimal
	Change24hPct decimal.Decimal
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}
