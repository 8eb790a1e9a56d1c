package context

import (
	"sync"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-core/internal/indicators"
	"github.com/atlas-desktop/trading-core/internal/screening"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

func TestRegisterSymbols_Idempotent(t *testing.T) {
	ctx := New(nil)
	ctx.RegisterSymbols([]string{"AAA", "BBB"})
	ctx.RegisterSymbols([]string{"BBB", "CCC"})

	got := ctx.Symbols()
	want := []string{"AAA", "BBB", "CCC"}
	if len(got) != len(want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbols[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestUpdateKlines_SortsUnorderedInput(t *testing.T) {
	ctx := New(nil)
	later := types.Kline{OpenTime: time.Unix(200, 0), Close: decimal.NewFromInt(2)}
	earlier := types.Kline{OpenTime: time.Unix(100, 0), Close: decimal.NewFromInt(1)}
	ctx.UpdateKlines("AAA", types.TimeframeM1, []types.Kline{later, earlier})

	got := ctx.GetKlines("AAA", types.TimeframeM1)
	if len(got) != 2 {
		t.Fatalf("expected 2 klines, got %d", len(got))
	}
	if !got[0].OpenTime.Equal(earlier.OpenTime) {
		t.Errorf("first kline not earliest: %v", got[0].OpenTime)
	}
}

func TestGetKlines_ReturnsDefensiveCopy(t *testing.T) {
	ctx := New(nil)
	ctx.UpdateKlines("AAA", types.TimeframeM1, []types.Kline{{OpenTime: time.Unix(1, 0), Close: decimal.NewFromInt(1)}})

	got := ctx.GetKlines("AAA", types.TimeframeM1)
	got[0].Close = decimal.NewFromInt(999)

	got2 := ctx.GetKlines("AAA", types.TimeframeM1)
	if !got2[0].Close.Equal(decimal.NewFromInt(1)) {
		t.Errorf("mutating a returned slice leaked into the context: %s", got2[0].Close)
	}
}

func TestRouteStateAndGlobalScore_RoundTrip(t *testing.T) {
	ctx := New(nil)
	ctx.UpdateRouteState("AAA", types.RouteStateArmed)
	state, ok := ctx.GetRouteState("AAA")
	if !ok || state != types.RouteStateArmed {
		t.Errorf("route state = %v, %v, want Armed, true", state, ok)
	}

	ctx.UpdateGlobalScore("AAA", indicators.GlobalScore{OverallScore: decimal.NewFromInt(80)})
	overall, ok := ctx.GetGlobalScoreOverall("AAA")
	if !ok || !overall.Equal(decimal.NewFromInt(80)) {
		t.Errorf("global score overall = %v, %v, want 80, true", overall, ok)
	}

	if _, ok := ctx.GetRouteState("ZZZ"); ok {
		t.Error("expected no route state for an unregistered symbol")
	}
}

func TestUpdateScreening_AdvancesLastAnalyticsSync(t *testing.T) {
	ctx := New(nil)
	t1 := time.Unix(100, 0)
	t2 := time.Unix(200, 0)

	ctx.UpdateScreening("default", screening.Snapshot{Preset: "default", ComputedAt: t1})
	if !ctx.LastAnalyticsSync().Equal(t1) {
		t.Fatalf("lastAnalyticsSync = %v, want %v", ctx.LastAnalyticsSync(), t1)
	}

	ctx.UpdateScreening("other", screening.Snapshot{Preset: "other", ComputedAt: t2})
	if !ctx.LastAnalyticsSync().Equal(t2) {
		t.Errorf("lastAnalyticsSync = %v, want %v", ctx.LastAnalyticsSync(), t2)
	}

	// An older snapshot must not roll the clock backwards.
	ctx.UpdateScreening("default", screening.Snapshot{Preset: "default", ComputedAt: t1})
	if !ctx.LastAnalyticsSync().Equal(t2) {
		t.Errorf("lastAnalyticsSync regressed to %v, want it to stay %v", ctx.LastAnalyticsSync(), t2)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	ctx := New(nil)
	ctx.RegisterSymbols([]string{"AAA"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			ctx.UpdateKlines("AAA", types.TimeframeM1, []types.Kline{{OpenTime: time.Unix(int64(n), 0), Close: decimal.NewFromInt(int64(n))}})
		}(i)
		go func() {
			defer wg.Done()
			_ = ctx.GetKlines("AAA", types.TimeframeM1)
		}()
	}
	wg.Wait()
}
