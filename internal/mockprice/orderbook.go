package mockprice

import (
	"math/rand"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/decimalx"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

// DefaultSpreadMultiplier is how many tick sizes wide the synthesized
// best-bid/best-ask spread is when the caller has no better estimate.
const DefaultSpreadMultiplier = 2

// volumeJitterPct is the +/-20% per-level volume jitter applied to the
// otherwise linear depth decay, so repeated snapshots at a stationary
// price don't look mechanically identical.
const volumeJitterPct = 0.2

// SynthesizeOrderBook builds a two-sided order book around mid, with
// levels priced tickSize apart and volumes decreasing linearly toward the
// deep end of the book, each jittered by +/-20%. rng is caller-owned so a
// backtest replay stays reproducible across runs with the same seed.
func SynthesizeOrderBook(rng *rand.Rand, symbol string, market types.MarketTag, mid, tickSize, baseVolume decimal.Decimal, now time.Time) SyntheticOrderBook {
	levels := OrderBookLevels(market)
	spread := tickSize.Mul(decimal.NewFromInt(DefaultSpreadMultiplier))
	halfSpread := spread.Div(decimal.NewFromInt(2))

	bestBid := mid.Sub(halfSpread)
	bestAsk := mid.Add(halfSpread)

	bids := make([]OrderBookLevel, 0, levels)
	asks := make([]OrderBookLevel, 0, levels)

	for i := 0; i < levels; i++ {
		offset := tickSize.Mul(decimal.NewFromInt(int64(i)))
		decay := decimal.NewFromInt(int64(levels - i)).Div(decimal.NewFromInt(int64(levels)))

		bidVol := decimalx.Clamp(baseVolume.Mul(decay).Mul(jitter(rng)), decimal.Zero, baseVolume.Mul(decimal.NewFromInt(2)))
		askVol := decimalx.Clamp(baseVolume.Mul(decay).Mul(jitter(rng)), decimal.Zero, baseVolume.Mul(decimal.NewFromInt(2)))

		bids = append(bids, OrderBookLevel{Price: bestBid.Sub(offset), Volume: bidVol})
		asks = append(asks, OrderBookLevel{Price: bestAsk.Add(offset), Volume: askVol})
	}

	return SyntheticOrderBook{Symbol: symbol, Bids: bids, Asks: asks, Timestamp: now}
}

// jitter returns a decimal in [1-volumeJitterPct, 1+volumeJitterPct].
func jitter(rng *rand.Rand) decimal.Decimal {
	f := 1 + (rng.Float64()*2-1)*volumeJitterPct
	return decimal.NewFromFloat(f)
}
