package mockprice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DailyBarFetcher fetches one day's OHLCV bar for symbol as of day. The
// concrete implementation (an HTTP client against a quote provider, or a
// replay file) lives outside this package; YahooLegacy only needs the
// shape.
type DailyBarFetcher interface {
	FetchDailyBar(ctx context.Context, symbol string, day time.Time) (open, high, low, close, volume decimal.Decimal, err error)
}

// YahooLegacy passes a daily-bar feed through as a single end-of-day tick
// per call to Next, for simulation runs coarse enough that intra-day
// synthesis is unnecessary overhead. Named for the legacy daily-quote
// polling pattern it replaces; the fetcher is pluggable so it is not tied
// to any specific upstream.
type YahooLegacy struct {
	symbol  string
	fetcher DailyBarFetcher
	day     time.Time
	end     time.Time
}

// NewYahooLegacy builds a daily-bar generator walking one day at a time
// from start to end inclusive.
func NewYahooLegacy(symbol string, fetcher DailyBarFetcher, start, end time.Time) *YahooLegacy {
	return &YahooLegacy{symbol: symbol, fetcher: fetcher, day: start, end: end}
}

// Next fetches the next day's closing price as a single tick. Returns
// ok=false once day exceeds end.
func (y *YahooLegacy) Next() (PriceTick, bool) {
	if y.day.After(y.end) {
		return PriceTick{}, false
	}

	_, _, _, close, volume, err := y.fetcher.FetchDailyBar(context.Background(), y.symbol, y.day)
	day := y.day
	y.day = y.day.AddDate(0, 0, 1)
	if err != nil {
		return PriceTick{}, false
	}

	return PriceTick{Symbol: y.symbol, Price: close, Volume: volume, Timestamp: day}, true
}
