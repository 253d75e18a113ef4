package agent

import (
	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// indicators.go — technical indicators for the prompt snapshot. These are
// advisory numbers for the agents, not accounting, so plain float64 is fine.

const (
	emaPeriod     = 20
	rsiShort      = 7
	rsiLong       = 14
	macdFast      = 12
	macdSlow      = 26
	macdSignalLen = 9

	// EMA(20) needs 20 closes; below that every indicator is null.
	minCandles = 20
)

// IndicatorSet holds the latest value of each indicator. Nil means not
// computable from the available candles.
type IndicatorSet struct {
	EMA20         *float64 `json:"ema_20"`
	RSI7          *float64 `json:"rsi_7"`
	RSI14         *float64 `json:"rsi_14"`
	MACD          *float64 `json:"macd"`
	MACDSignal    *float64 `json:"macd_signal"`
	MACDHistogram *float64 `json:"macd_histogram"`
}

// ComputeIndicators derives the indicator set from candles (oldest first).
func ComputeIndicators(candles []domain.Candle) IndicatorSet {
	if len(candles) < minCandles {
		return IndicatorSet{}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
	}

	var set IndicatorSet
	if ema := emaSeries(closes, emaPeriod); ema != nil {
		set.EMA20 = last(ema)
	}
	if r := rsi(closes, rsiShort); r != nil {
		set.RSI7 = r
	}
	if r := rsi(closes, rsiLong); r != nil {
		set.RSI14 = r
	}

	macdLine := macdSeries(closes)
	if macdLine != nil {
		set.MACD = last(macdLine)
		if signal := emaSeries(macdLine, macdSignalLen); signal != nil {
			set.MACDSignal = last(signal)
			hist := *set.MACD - *set.MACDSignal
			set.MACDHistogram = &hist
		}
	}
	return set
}

// emaSeries computes an EMA seeded with the SMA of the first period values.
// Returns nil when there are not enough values.
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)

	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	out = append(out, ema)

	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// rsi computes the latest Wilder-smoothed relative strength index.
func rsi(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		v := 100.0
		return &v
	}
	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	return &v
}

// macdSeries is the fast-minus-slow EMA line, aligned so both EMAs exist.
func macdSeries(closes []float64) []float64 {
	fast := emaSeries(closes, macdFast)
	slow := emaSeries(closes, macdSlow)
	if fast == nil || slow == nil {
		return nil
	}
	// fast is longer; its tail lines up with slow.
	fast = fast[len(fast)-len(slow):]
	out := make([]float64, len(slow))
	for i := range slow {
		out[i] = fast[i] - slow[i]
	}
	return out
}

func last(s []float64) *float64 {
	v := s[len(s)-1]
	return &v
}
