package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/gauntlet/internal/domain"
	"github.com/alejandrodnm/gauntlet/internal/ports"
)

const (
	defaultBaseURL = "https://api.binance.com"

	// Public spot endpoints weigh 1200/min; stay well under it.
	requestsPerSec = 15

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// Consecutive sweeps within the TTL reuse the cached quote.
	priceCacheTTL = 60 * time.Second
)

// Client reads public Binance spot market data. No API key: every endpoint
// used here is unauthenticated.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// NewClient creates a Client against the given base URL. An empty base URL
// means production.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(requestsPerSec, 10),
		cache:   make(map[string]cachedPrice),
	}
}

type priceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Price returns the last price for a symbol, served from the TTL cache
// when fresh.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := c.cachedPrice(symbol); ok {
		return p, nil
	}

	var out priceResponse
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "/api/v3/ticker/price", q, &out); err != nil {
		return decimal.Decimal{}, fmt.Errorf("binance.Price %s: %w", symbol, err)
	}
	p, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("binance.Price %s: parse %q: %w", symbol, out.Price, err)
	}
	c.storePrice(symbol, p)
	return p, nil
}

// Prices batch-fetches last prices. Symbols Binance does not quote are
// absent from the result, not an error.
func (c *Client) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(symbols))
	var missing []string
	for _, s := range symbols {
		if p, ok := c.cachedPrice(s); ok {
			result[s] = p
		} else {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	// symbols=["BTCUSDT","ETHUSDT"] — a JSON array in the query string.
	enc, err := json.Marshal(missing)
	if err != nil {
		return nil, fmt.Errorf("binance.Prices: encode symbols: %w", err)
	}
	var out []priceResponse
	q := url.Values{"symbols": {string(enc)}}
	if err := c.get(ctx, "/api/v3/ticker/price", q, &out); err != nil {
		return nil, fmt.Errorf("binance.Prices: %w", err)
	}

	for _, pr := range out {
		p, err := decimal.NewFromString(pr.Price)
		if err != nil {
			slog.Warn("binance: unparseable price", "symbol", pr.Symbol, "raw", pr.Price)
			continue
		}
		result[pr.Symbol] = p
		c.storePrice(pr.Symbol, p)
	}
	return result, nil
}

type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// Ticker returns the 24h market summary for a symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (domain.Ticker, error) {
	var out ticker24hResponse
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "/api/v3/ticker/24hr", q, &out); err != nil {
		return domain.Ticker{}, fmt.Errorf("binance.Ticker %s: %w", symbol, err)
	}

	t := domain.Ticker{Symbol: out.Symbol}
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&t.LastPrice, out.LastPrice},
		{&t.Bid, out.BidPrice},
		{&t.Ask, out.AskPrice},
		{&t.High24h, out.HighPrice},
		{&t.Low24h, out.LowPrice},
		{&t.Volume24h, out.Volume},
		{&t.Change24hPct, out.PriceChangePercent},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.Ticker{}, fmt.Errorf("binance.Ticker %s: parse %q: %w", symbol, f.raw, err)
		}
		*f.dst = d
	}
	c.storePrice(symbol, t.LastPrice)
	return t, nil
}

// OHLCV returns up to limit candles for a symbol and timeframe, oldest
// first. Timeframes map 1:1 to Binance intervals (1m, 5m, 15m, 1h, ...).
func (c *Client) OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	q := url.Values{
		"symbol":   {symbol},
		"interval": {timeframe},
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	// Each kline is a mixed-type JSON array: open time (ms), then OHLCV
	// as strings, then fields we ignore.
	var raw [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, fmt.Errorf("binance.OHLCV %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("binance.OHLCV %s %s: short kline row (%d fields)", symbol, timeframe, len(k))
		}
		var openMs int64
		if err := json.Unmarshal(k[0], &openMs); err != nil {
			return nil, fmt.Errorf("binance.OHLCV %s %s: open time: %w", symbol, timeframe, err)
		}
		candle := domain.Candle{Timestamp: time.UnixMilli(openMs).UTC()}
		for i, dst := range []*decimal.Decimal{
			&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume,
		} {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				return nil, fmt.Errorf("binance.OHLCV %s %s: field %d: %w", symbol, timeframe, i+1, err)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("binance.OHLCV %s %s: parse %q: %w", symbol, timeframe, s, err)
			}
			*dst = d
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (c *Client) cachedPrice(symbol string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[symbol]
	if !ok || time.Since(entry.fetchedAt) > priceCacheTTL {
		return decimal.Decimal{}, false
	}
	return entry.price, true
}

func (c *Client) storePrice(symbol string, p decimal.Decimal) {
	c.mu.Lock()
	c.cache[symbol] = cachedPrice{price: p, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// get performs a rate-limited GET with retries on 429/5xx.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			slog.Warn("binance: rate limited", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
			// Unknown symbol and similar: a per-symbol miss.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return ports.ErrNoPrice
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("retries exhausted")
}

// sleep waits with exponential backoff and jitter, honoring ctx.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(float64(baseRetryWait) * math.Pow(2, float64(attempt)))
	wait += time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
