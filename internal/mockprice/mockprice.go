// Package mockprice synthesizes price ticks and order book snapshots for
// backtest and simulation driving, without a live exchange connection.
// Three PriceGenerator implementations trade off fidelity against
// simplicity: HistoricalReplay interpolates recorded candles into
// sub-bar ticks, RandomWalk produces an ATR-scaled mean-reverting walk for
// symbols with no recorded history, and YahooLegacy passes daily bars
// through unmodified for coarse simulation.
//
// Grounded on the slippage/impact modeling idiom in
// internal/backtester/slippage.go and the gonum-based sampling used by
// aristath-sentinel's pkg/formulas/cvar.go (distuv.Normal).
package mockprice

import (
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

// PriceTick is one synthesized quote.
type PriceTick struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// PriceGenerator produces a deterministic-given-its-seed sequence of price
// ticks. Next returns ok=false once the generator is exhausted (end of a
// replay buffer, or a YahooLegacy day past its end date or a failed
// fetch); a RandomWalk generator never exhausts on its own.
type PriceGenerator interface {
	Next() (PriceTick, bool)
}

// OrderBookLevels is how many price levels Synthesize builds per side for
// a given market, matching each venue's typical displayed depth.
func OrderBookLevels(market types.MarketTag) int {
	switch market {
	case types.MarketKorea:
		return 10
	case types.MarketCrypto:
		return 20
	default:
		return 5
	}
}

// OrderBookLevel is one synthesized price/volume pair on one side of the
// book.
type OrderBookLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// SyntheticOrderBook is a synthesized two-sided order book snapshot.
type SyntheticOrderBook struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}
