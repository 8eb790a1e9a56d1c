package mockprice

import (
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

// stepsPerCandle is how many intra-bar ticks HistoricalReplay synthesizes
// per recorded candle.
const stepsPerCandle = 12

// HistoricalReplay walks a recorded candle sequence, emitting
// stepsPerCandle interpolated ticks per candle so a downstream consumer
// sees intra-bar price movement instead of one tick per bar. A bullish bar
// (close >= open) interpolates open -> high (steps 0-4) -> high (step 5)
// -> low (steps 6-8) -> close (steps 9-11); a bearish bar mirrors this with
// low and high swapped, so the wick visited first is the one on the side
// the bar eventually reverses away from.
type HistoricalReplay struct {
	symbol  string
	candles []types.Kline
	idx     int
	step    int
}

// NewHistoricalReplay builds a replay generator over candles for symbol.
// candles must be ordered ascending by OpenTime.
func NewHistoricalReplay(symbol string, candles []types.Kline) *HistoricalReplay {
	return &HistoricalReplay{symbol: symbol, candles: candles}
}

// Next returns the next interpolated tick, or ok=false once every candle's
// steps have been exhausted.
func (h *HistoricalReplay) Next() (PriceTick, bool) {
	if h.idx >= len(h.candles) {
		return PriceTick{}, false
	}
	candle := h.candles[h.idx]
	price := intraBarPrice(candle, h.step)
	volumePerStep := candle.Volume.Div(decimal.NewFromInt(stepsPerCandle))

	tick := PriceTick{
		Symbol:    h.symbol,
		Price:     price,
		Volume:    volumePerStep,
		Timestamp: intraBarTimestamp(candle, h.step),
	}

	h.step++
	if h.step >= stepsPerCandle {
		h.step = 0
		h.idx++
	}
	return tick, true
}

// intraBarPrice maps a step in [0, stepsPerCandle) to a price along the
// candle's O/H/L/C path.
func intraBarPrice(c types.Kline, step int) decimal.Decimal {
	bullish := c.Close.GreaterThanOrEqual(c.Open)

	first, second := c.High, c.Low
	if !bullish {
		first, second = c.Low, c.High
	}

	switch {
	case step <= 4:
		return interpolate(c.Open, first, step, 4)
	case step == 5:
		return first
	case step <= 8:
		return interpolate(first, second, step-5, 3)
	default:
		return interpolate(second, c.Close, step-8, 3)
	}
}

// interpolate returns the point i/steps of the way from a to b.
func interpolate(a, b decimal.Decimal, i, steps int) decimal.Decimal {
	if steps <= 0 {
		return b
	}
	frac := decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(int64(steps)))
	return a.Add(b.Sub(a).Mul(frac))
}

// intraBarTimestamp spreads the stepsPerCandle ticks evenly across the
// candle's open-to-close window.
func intraBarTimestamp(c types.Kline, step int) time.Time {
	span := c.CloseTime.Sub(c.OpenTime)
	offset := span * time.Duration(step) / time.Duration(stepsPerCandle)
	return c.OpenTime.Add(offset)
}
