package indicators

import (
	"math"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

// StructuralFeatures bundles the trend/volatility/proximity read on a
// symbol's primary daily series, computed once a symbol has accumulated
// MinCandlesForIndicators bars. Grounded on the original's
// StructuralFeaturesCalculator::from_candles.
type StructuralFeatures struct {
	TrendSlope        decimal.Decimal `json:"trendSlope"`
	SupportProximity  decimal.Decimal `json:"supportProximity"`
	ResistanceProximity decimal.Decimal `json:"resistanceProximity"`
	VolatilityRegime  string          `json:"volatilityRegime"` // "low", "normal", "high"
}

// GlobalScore is the 0-100 symbol attractiveness score, composed of three
// weighted subscores.
type GlobalScore struct {
	StructuralScore decimal.Decimal `json:"structuralScore"`
	MomentumScore   decimal.Decimal `json:"momentumScore"`
	LiquidityScore  decimal.Decimal `json:"liquidityScore"`
	OverallScore    decimal.Decimal `json:"overallScore"`
}

// BacktestPinnedGlobalScore is the fixed override value backtest mode
// substitutes for the real computed score, per the candle processor's
// documented backtest-only pinning behavior (SPEC_FULL.md §4.2/§9).
var BacktestPinnedGlobalScore = decimal.NewFromInt(80)

// StructuralFeaturesFromCandles computes trend slope (linear regression
// slope of closes over the window), support/resistance proximity (distance
// from the window's low/high as a fraction of range), and a volatility
// regime tag from the window's standard deviation relative to its mean.
func StructuralFeaturesFromCandles(klines []types.Kline) StructuralFeatures {
	if len(klines) < 2 {
		return StructuralFeatures{VolatilityRegime: "normal"}
	}

	n := len(klines)
	var sumX, sumY, sumXY, sumXX float64
	for i, k := range klines {
		x := float64(i)
		y, _ := k.Close.Float64()
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	var slope float64
	if denom != 0 {
		slope = (nf*sumXY - sumX*sumY) / denom
	}

	window := klines[n-1]
	lowestLow := window.Low
	highestHigh := window.High
	for _, k := range klines {
		if k.Low.LessThan(lowestLow) {
			lowestLow = k.Low
		}
		if k.High.GreaterThan(highestHigh) {
			highestHigh = k.High
		}
	}
	rangeSpan := highestHigh.Sub(lowestLow)
	var supportProx, resistProx decimal.Decimal
	if rangeSpan.IsPositive() {
		supportProx = window.Close.Sub(lowestLow).Div(rangeSpan)
		resistProx = highestHigh.Sub(window.Close).Div(rangeSpan)
	}

	stddev := StdDev(klines, minInt(len(klines), 20))
	meanPrice := SMA(klines, minInt(len(klines), 20))
	regime := "normal"
	if meanPrice.IsPositive() {
		ratio, _ := stddev.Div(meanPrice).Float64()
		switch {
		case ratio < 0.01:
			regime = "low"
		case ratio > 0.04:
			regime = "high"
		}
	}

	return StructuralFeatures{
		TrendSlope:          decimal.NewFromFloat(slope),
		SupportProximity:    supportProx,
		ResistanceProximity: resistProx,
		VolatilityRegime:    regime,
	}
}

// ComputeGlobalScore blends structural, momentum, and liquidity subscores
// (each normalized to 0-100) into an overall weighted score. Weights mirror
// the original's balanced 40/35/25 split between trend durability,
// near-term momentum, and volume-based liquidity.
func ComputeGlobalScore(klines []types.Kline) GlobalScore {
	if len(klines) == 0 {
		return GlobalScore{}
	}

	features := StructuralFeaturesFromCandles(klines)
	slopeF, _ := features.TrendSlope.Float64()
	structural := sigmoidScore(slopeF, 50)

	rsi := RSI(klines, minInt(len(klines)-1, 14))
	rsiF, _ := rsi.Float64()
	momentum := decimal.NewFromFloat(rsiF)

	liquidity := liquidityScore(klines)

	overall := structural.Mul(decimal.NewFromFloat(0.40)).
		Add(momentum.Mul(decimal.NewFromFloat(0.35))).
		Add(liquidity.Mul(decimal.NewFromFloat(0.25)))

	return GlobalScore{
		StructuralScore: structural,
		MomentumScore:   momentum,
		LiquidityScore:  liquidity,
		OverallScore:    overall,
	}
}

// sigmoidScore maps an unbounded slope value into a 0-100 score centered
// at 50, using a logistic curve so large slopes saturate rather than blow
// out the composite.
func sigmoidScore(value float64, scale float64) decimal.Decimal {
	x := value / scale
	s := 1 / (1 + math.Exp(-x))
	return decimal.NewFromFloat(s * 100)
}

// liquidityScore ranks recent volume against the window's own history,
// so liquidity is relative to the symbol's own norm rather than an
// absolute cross-symbol threshold.
func liquidityScore(klines []types.Kline) decimal.Decimal {
	window := minInt(len(klines), 20)
	if window == 0 {
		return decimal.Zero
	}
	recent := klines[len(klines)-window:]
	var sum decimal.Decimal
	for _, k := range recent {
		sum = sum.Add(k.Volume)
	}
	avg := sum.Div(decimal.NewFromInt(int64(window)))
	latest := klines[len(klines)-1].Volume
	if avg.IsZero() {
		return decimal.NewFromInt(50)
	}
	ratio, _ := latest.Div(avg).Float64()
	return sigmoidScore(ratio-1, 0.5)
}

// ComputeRouteState derives the coarse regime label from the composite
// OverallScore alone: Overheat at 90 and above, Attack at 75, Armed at 55,
// Wait at 35, Idle below that.
func ComputeRouteState(score GlobalScore) types.RouteState {
	overall, _ := score.OverallScore.Float64()
	switch {
	case overall >= 90:
		return types.RouteStateOverheat
	case overall >= 75:
		return types.RouteStateAttack
	case overall >= 55:
		return types.RouteStateArmed
	case overall >= 35:
		return types.RouteStateWait
	default:
		return types.RouteStateIdle
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
