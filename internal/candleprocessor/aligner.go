package candleprocessor

import (
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
)

// AlignAtTime implements the Multi-Timeframe Aligner (SPEC_FULL.md §4.6):
// given a kline sequence for one timeframe and a reference instant t,
// returns the sub-sequence whose CloseTime <= t. No interpolation; a
// sequence with no qualifying bars returns nil, not a panic. Ordering is
// preserved since the input is already sorted by OpenTime ascending.
func AlignAtTime(klines []types.Kline, t time.Time) []types.Kline {
	return filterUpTo(klines, t)
}
