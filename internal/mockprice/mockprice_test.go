package mockprice

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func bullishCandle() types.Kline {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return types.Kline{
		Ticker:    "AAA",
		OpenTime:  start,
		CloseTime: start.Add(time.Minute),
		Open:      d("100"),
		High:      d("110"),
		Low:       d("95"),
		Close:     d("108"),
		Volume:    d("1200"),
	}
}

func TestHistoricalReplay_EmitsStepsPerCandleTicksThenExhausts(t *testing.T) {
	replay := NewHistoricalReplay("AAA", []types.Kline{bullishCandle()})

	count := 0
	for {
		_, ok := replay.Next()
		if !ok {
			break
		}
		count++
	}
	if count != stepsPerCandle {
		t.Errorf("emitted %d ticks, want %d", count, stepsPerCandle)
	}
}

func TestHistoricalReplay_BullishPathVisitsHighBeforeLow(t *testing.T) {
	replay := NewHistoricalReplay("AAA", []types.Kline{bullishCandle()})

	var prices []decimal.Decimal
	for {
		tick, ok := replay.Next()
		if !ok {
			break
		}
		prices = append(prices, tick.Price)
	}

	if !prices[5].Equal(d("110")) {
		t.Errorf("step 5 = %s, want the candle high 110", prices[5])
	}
	if !prices[8].Equal(d("95")) {
		t.Errorf("step 8 = %s, want the candle low 95", prices[8])
	}
	if !prices[len(prices)-1].Equal(d("108")) {
		t.Errorf("final step = %s, want the candle close 108", prices[len(prices)-1])
	}
}

func TestHistoricalReplay_VolumeSplitEvenlyAcrossSteps(t *testing.T) {
	replay := NewHistoricalReplay("AAA", []types.Kline{bullishCandle()})
	tick, _ := replay.Next()
	want := d("1200").Div(decimal.NewFromInt(stepsPerCandle))
	if !tick.Volume.Equal(want) {
		t.Errorf("per-step volume = %s, want %s", tick.Volume, want)
	}
}

func TestRandomWalk_StaysPositiveAndNeverExhausts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	walk := NewRandomWalk("AAA", d("100"), d("0.01"), 0.05, 0.2, time.Second, time.Now(), rng)

	for i := 0; i < 500; i++ {
		tick, ok := walk.Next()
		if !ok {
			t.Fatalf("RandomWalk should never exhaust, stopped at step %d", i)
		}
		if tick.Price.IsNegative() || tick.Price.IsZero() {
			t.Fatalf("price went non-positive at step %d: %s", i, tick.Price)
		}
	}
}

func TestRandomWalk_DeterministicGivenSameSeed(t *testing.T) {
	walkA := NewRandomWalk("AAA", d("100"), d("0.01"), 0.05, 0.2, time.Second, time.Unix(0, 0), rand.New(rand.NewSource(7)))
	walkB := NewRandomWalk("AAA", d("100"), d("0.01"), 0.05, 0.2, time.Second, time.Unix(0, 0), rand.New(rand.NewSource(7)))

	for i := 0; i < 20; i++ {
		tickA, _ := walkA.Next()
		tickB, _ := walkB.Next()
		if !tickA.Price.Equal(tickB.Price) {
			t.Fatalf("step %d diverged: %s vs %s", i, tickA.Price, tickB.Price)
		}
	}
}

func TestSynthesizeOrderBook_LevelCountsPerMarket(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		market types.MarketTag
		want   int
	}{
		{types.MarketKorea, 10},
		{types.MarketUS, 5},
		{types.MarketCrypto, 20},
	}
	for _, c := range cases {
		book := SynthesizeOrderBook(rng, "AAA", c.market, d("100"), d("0.01"), d("1000"), time.Now())
		if len(book.Bids) != c.want || len(book.Asks) != c.want {
			t.Errorf("market %s: got %d bids / %d asks, want %d each", c.market, len(book.Bids), len(book.Asks), c.want)
		}
	}
}

func TestSynthesizeOrderBook_BidsDecreaseAwayFromMid(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	book := SynthesizeOrderBook(rng, "AAA", types.MarketUS, d("100"), d("0.01"), d("1000"), time.Now())

	for i := 1; i < len(book.Bids); i++ {
		if book.Bids[i].Price.GreaterThanOrEqual(book.Bids[i-1].Price) {
			t.Errorf("bid level %d (%s) should be below level %d (%s)", i, book.Bids[i].Price, i-1, book.Bids[i-1].Price)
		}
	}
	for i := 1; i < len(book.Asks); i++ {
		if book.Asks[i].Price.LessThanOrEqual(book.Asks[i-1].Price) {
			t.Errorf("ask level %d (%s) should be above level %d (%s)", i, book.Asks[i].Price, i-1, book.Asks[i-1].Price)
		}
	}
}

type fakeDailyBarFetcher struct {
	calls int
}

func (f *fakeDailyBarFetcher) FetchDailyBar(ctx context.Context, symbol string, day time.Time) (decimal.Decimal, decimal.Decimal, decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	f.calls++
	return d("100"), d("105"), d("99"), d("102"), d("500"), nil
}

func TestYahooLegacy_WalksOneDayPerCallUntilEnd(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeDailyBarFetcher{}
	gen := NewYahooLegacy("AAA", fetcher, start, end)

	count := 0
	for {
		tick, ok := gen.Next()
		if !ok {
			break
		}
		if !tick.Price.Equal(d("102")) {
			t.Errorf("tick price = %s, want the daily close 102", tick.Price)
		}
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 daily ticks (Jan 1-3 inclusive), got %d", count)
	}
}
