package indicators

import (
	"testing"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

func kline(closePrice float64) types.Kline {
	c := decimal.NewFromFloat(closePrice)
	return types.Kline{
		Ticker:    "TEST",
		Timeframe: types.TimeframeM1,
		OpenTime:  time.Unix(0, 0),
		Open:      c,
		High:      c.Add(decimal.NewFromFloat(1)),
		Low:       c.Sub(decimal.NewFromFloat(1)),
		Close:     c,
		Volume:    decimal.NewFromFloat(100),
		CloseTime: time.Unix(60, 0),
	}
}

func klines(closes ...float64) []types.Kline {
	out := make([]types.Kline, len(closes))
	for i, c := range closes {
		out[i] = kline(c)
	}
	return out
}

func TestSMA(t *testing.T) {
	ks := klines(1, 2, 3, 4, 5)
	got := SMA(ks, 5)
	want := decimal.NewFromFloat(3)
	if !got.Equal(want) {
		t.Errorf("SMA = %s, want %s", got, want)
	}
}

func TestSMA_InsufficientData(t *testing.T) {
	ks := klines(1, 2)
	if got := SMA(ks, 5); !got.IsZero() {
		t.Errorf("SMA with insufficient data = %s, want zero", got)
	}
}

func TestEMA_ConvergesTowardRisingSeries(t *testing.T) {
	ks := klines(10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20)
	got := EMA(ks, 5)
	if got.LessThanOrEqual(decimal.NewFromFloat(15)) {
		t.Errorf("EMA = %s, expected it to track above the midpoint of a rising series", got)
	}
}

func TestRSI_Bounds(t *testing.T) {
	up := klines(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	got := RSI(up, 14)
	if got.LessThan(decimal.NewFromInt(0)) || got.GreaterThan(decimal.NewFromInt(100)) {
		t.Errorf("RSI out of bounds: %s", got)
	}
	if got.LessThan(decimal.NewFromInt(50)) {
		t.Errorf("RSI for a strictly rising series should be above 50, got %s", got)
	}
}

func TestRSI_ShortSeriesFallback(t *testing.T) {
	ks := klines(1, 2)
	got := RSI(ks, 14)
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("RSI fallback = %s, want 50", got)
	}
}

func TestATR_NonNegative(t *testing.T) {
	ks := klines(10, 11, 9, 12, 8, 13, 7, 14, 6, 15, 5, 16, 4, 17, 3)
	got := ATR(ks, 14)
	if got.IsNegative() {
		t.Errorf("ATR should never be negative, got %s", got)
	}
}

func TestOBV_AccumulatesOnRisingCloses(t *testing.T) {
	ks := klines(1, 2, 3)
	got := OBV(ks)
	if !got.IsPositive() {
		t.Errorf("OBV for a rising series should be positive, got %s", got)
	}
}

func TestBollingerBands_Ordering(t *testing.T) {
	ks := klines(10, 11, 9, 12, 8, 13, 7, 14, 6, 15, 5, 16, 4, 17, 3, 18, 2, 19, 1, 20)
	upper, middle, lower := BollingerBands(ks, 20, 2)
	if !(lower.LessThanOrEqual(middle) && middle.LessThanOrEqual(upper)) {
		t.Errorf("bollinger bands out of order: lower=%s middle=%s upper=%s", lower, middle, upper)
	}
}

func TestStdDev_MatchesKnownVariance(t *testing.T) {
	// closes 2,4,4,4,5,5,7,9 have population variance 4, stddev 2 (classic example).
	ks := klines(2, 4, 4, 4, 5, 5, 7, 9)
	got := StdDev(ks, 8)
	want := decimal.NewFromFloat(2)
	if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Errorf("StdDev = %s, want ~%s", got, want)
	}
}

func TestStdDev_InsufficientData(t *testing.T) {
	ks := klines(1, 2)
	if got := StdDev(ks, 5); !got.IsZero() {
		t.Errorf("StdDev with insufficient data = %s, want zero", got)
	}
}
