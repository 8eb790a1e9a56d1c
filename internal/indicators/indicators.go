// Package indicators provides the pure-function indicator and scoring
// layer: moving averages, RSI, OBV, ATR, Bollinger Bands (delegated to
// github.com/markcheno/go-talib where the series is long enough to use
// it), plus the structural-feature and global-score bundles the candle
// processor writes into the strategy context each candle.
package indicators

import (
	"math"

	"github.com/atlas-desktop/trading-core/pkg/decimalx"
	"github.com/atlas-desktop/trading-core/pkg/types"
	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// toFloat64 converts a decimal close series to float64 for go-talib, which
// only operates on []float64. This is the one sanctioned float boundary in
// this package: indicator outputs (RSI, OBV, ATR) are oscillators/technical
// scalars, not money, so the spec's float ban on "storage or arithmetic
// paths that compute P&L" does not reach them.
func toFloat64(series []decimal.Decimal) []float64 {
	out := make([]float64, len(series))
	for i, d := range series {
		f, _ := d.Float64()
		out[i] = f
	}
	return out
}

func closes(klines []types.Kline) []float64  { return toFloat64(closesDecimal(klines)) }
func highs(klines []types.Kline) []float64   { return toFloat64(highsDecimal(klines)) }
func lows(klines []types.Kline) []float64    { return toFloat64(lowsDecimal(klines)) }
func volumes(klines []types.Kline) []float64 { return toFloat64(volumesDecimal(klines)) }

func closesDecimal(klines []types.Kline) []decimal.Decimal {
	out := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

func highsDecimal(klines []types.Kline) []decimal.Decimal {
	out := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		out[i] = k.High
	}
	return out
}

func lowsDecimal(klines []types.Kline) []decimal.Decimal {
	out := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		out[i] = k.Low
	}
	return out
}

func volumesDecimal(klines []types.Kline) []decimal.Decimal {
	out := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		out[i] = k.Volume
	}
	return out
}

// SMA returns the simple moving average of the last `period` closes. The
// empty decimal is returned if there are fewer than `period` klines.
func SMA(klines []types.Kline, period int) decimal.Decimal {
	if len(klines) < period || period <= 0 {
		return decimal.Zero
	}
	out := talib.Sma(closes(klines), period)
	return decimal.NewFromFloat(out[len(out)-1])
}

// EMA returns the exponential moving average of the last `period` closes.
func EMA(klines []types.Kline, period int) decimal.Decimal {
	if len(klines) < period || period <= 0 {
		return decimal.Zero
	}
	out := talib.Ema(closes(klines), period)
	return decimal.NewFromFloat(out[len(out)-1])
}

// RSI returns the Relative Strength Index (0-100) over `period` bars using
// go-talib's Wilder smoothing.
func RSI(klines []types.Kline, period int) decimal.Decimal {
	if len(klines) < period+1 || period <= 0 {
		return decimal.NewFromInt(50)
	}
	out := talib.Rsi(closes(klines), period)
	return decimal.NewFromFloat(out[len(out)-1])
}

// OBV returns cumulative On-Balance Volume for the given series.
func OBV(klines []types.Kline) decimal.Decimal {
	if len(klines) == 0 {
		return decimal.Zero
	}
	out := talib.Obv(closes(klines), volumes(klines))
	return decimal.NewFromFloat(out[len(out)-1])
}

// ATR returns Average True Range over `period` bars.
func ATR(klines []types.Kline, period int) decimal.Decimal {
	if len(klines) < period+1 || period <= 0 {
		return decimal.Zero
	}
	out := talib.Atr(highs(klines), lows(klines), closes(klines), period)
	return decimal.NewFromFloat(out[len(out)-1])
}

// BollingerBands returns (upper, middle, lower) for the last `period` bars
// at `stdDev` standard deviations.
func BollingerBands(klines []types.Kline, period int, stdDev float64) (upper, middle, lower decimal.Decimal) {
	if len(klines) < period || period <= 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	u, m, l := talib.BBands(closes(klines), period, stdDev, stdDev, talib.SMA)
	n := len(m)
	return decimal.NewFromFloat(u[n-1]), decimal.NewFromFloat(m[n-1]), decimal.NewFromFloat(l[n-1])
}

// StdDev computes the population standard deviation of the last `period`
// closes using decimal arithmetic end-to-end (Newton's-method sqrt via
// pkg/decimalx), matching the teacher's MeanReversionStrategy approach of
// never dropping to float for a statistic that feeds a price-proximity
// comparison.
func StdDev(klines []types.Kline, period int) decimal.Decimal {
	if len(klines) < period || period <= 0 {
		return decimal.Zero
	}
	window := klines[len(klines)-period:]
	sum := decimal.Zero
	for _, k := range window {
		sum = sum.Add(k.Close)
	}
	mean := sum.Div(decimal.NewFromInt(int64(period)))

	variance := decimal.Zero
	for _, k := range window {
		d := k.Close.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(decimal.NewFromInt(int64(period)))
	return decimalx.Sqrt(variance)
}

// annualizedVolatility converts a per-bar standard deviation of returns
// into an annualized figure assuming barsPerYear samples, used by
// StructuralFeatures' volatility regime tag.
func annualizedVolatility(perBarStdDev float64, barsPerYear float64) float64 {
	if perBarStdDev <= 0 {
		return 0
	}
	return perBarStdDev * math.Sqrt(barsPerYear)
}
