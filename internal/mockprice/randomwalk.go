package mockprice

import (
	"math/rand"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/decimalx"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"
)

// Default RandomWalk tuning, matched to typical intraday equity volatility
// when the caller has no better ATR estimate.
const (
	DefaultATRRatio      = 0.002
	DefaultMeanReversion = 0.01
)

// RandomWalk synthesizes an ATR-scaled, mean-reverting price path for a
// symbol with no recorded history to replay. Every step draws a standard
// normal from a caller-supplied *rand.Rand (never the package-global
// math/rand source) so a seeded run replays identically.
type RandomWalk struct {
	symbol       string
	current      decimal.Decimal
	anchor       decimal.Decimal
	tickSize     decimal.Decimal
	atrRatio     float64
	meanRevert   float64
	step         time.Duration
	clock        time.Time
	normal       distuv.Normal
}

// NewRandomWalk builds a RandomWalk anchored at start. atrRatio and
// meanRevert fall back to DefaultATRRatio/DefaultMeanReversion when zero.
// rng seeds the generator's normal distribution; passing the same rng seed
// across two runs reproduces the same path.
func NewRandomWalk(symbol string, start, tickSize decimal.Decimal, atrRatio, meanRevert float64, step time.Duration, clock time.Time, rng *rand.Rand) *RandomWalk {
	if atrRatio <= 0 {
		atrRatio = DefaultATRRatio
	}
	if meanRevert <= 0 {
		meanRevert = DefaultMeanReversion
	}
	return &RandomWalk{
		symbol:     symbol,
		current:    start,
		anchor:     start,
		tickSize:   tickSize,
		atrRatio:   atrRatio,
		meanRevert: meanRevert,
		step:       step,
		clock:      clock,
		normal:     distuv.Normal{Mu: 0, Sigma: 1, Src: rng},
	}
}

// Next draws the next step: next = current + ATR*N(0,1) - k*(current -
// anchor), clamped to never drop below half the current price, and
// rounded to the instrument's tick size. Never exhausts.
func (w *RandomWalk) Next() (PriceTick, bool) {
	currentF, _ := w.current.Float64()
	atr := currentF * w.atrRatio

	sample := w.normal.Rand()
	driftBack := w.meanRevert * (currentF - floatOf(w.anchor))

	nextF := currentF + atr*sample - driftBack
	floor := currentF * 0.5
	if nextF < floor {
		nextF = floor
	}

	next := decimalx.RoundToTick(decimal.NewFromFloat(nextF), w.tickSize)
	w.current = next
	w.clock = w.clock.Add(w.step)

	return PriceTick{Symbol: w.symbol, Price: next, Timestamp: w.clock}, true
}

func floatOf(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
