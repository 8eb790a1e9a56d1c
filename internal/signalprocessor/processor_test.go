package signalprocessor

import (
	"testing"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

func TestExecutionPrice_BuysPayUpSellsReceiveLess(t *testing.T) {
	slippage := d("0.01")
	buy := executionPrice(d("100"), types.OrderSideBuy, slippage)
	if !buy.Equal(d("101")) {
		t.Errorf("buy execution price = %s, want 101", buy)
	}
	sell := executionPrice(d("100"), types.OrderSideSell, slippage)
	if !sell.Equal(d("99")) {
		t.Errorf("sell execution price = %s, want 99", sell)
	}
}

func TestReduceQuantity_Precedence(t *testing.T) {
	posQty := d("100")

	// reduce_quantity wins when both are present.
	sig := types.Signal{Metadata: map[string]any{"reduce_quantity": "30", "reduce_fraction": "0.5"}}
	if got := reduceQuantity(sig, posQty); !got.Equal(d("30")) {
		t.Errorf("reduce_quantity precedence: got %s, want 30", got)
	}

	// reduce_quantity clamps to the position size.
	sig = types.Signal{Metadata: map[string]any{"reduce_quantity": "500"}}
	if got := reduceQuantity(sig, posQty); !got.Equal(posQty) {
		t.Errorf("reduce_quantity clamp: got %s, want %s", got, posQty)
	}

	// reduce_fraction applies proportionally when reduce_quantity is absent.
	sig = types.Signal{Metadata: map[string]any{"reduce_fraction": "0.25"}}
	if got := reduceQuantity(sig, posQty); !got.Equal(d("25")) {
		t.Errorf("reduce_fraction: got %s, want 25", got)
	}

	// no metadata means a full close.
	sig = types.Signal{}
	if got := reduceQuantity(sig, posQty); !got.Equal(posQty) {
		t.Errorf("full close: got %s, want %s", got, posQty)
	}

	// an out-of-range fraction is ignored, falling back to full close.
	sig = types.Signal{Metadata: map[string]any{"reduce_fraction": "1.5"}}
	if got := reduceQuantity(sig, posQty); !got.Equal(posQty) {
		t.Errorf("out-of-range fraction: got %s, want full close %s", got, posQty)
	}
}

func TestToDecimal_CoercesSupportedTypes(t *testing.T) {
	if v, ok := toDecimal(decimal.NewFromInt(5)); !ok || !v.Equal(decimal.NewFromInt(5)) {
		t.Errorf("decimal.Decimal coercion failed: %v, %v", v, ok)
	}
	if v, ok := toDecimal(2.5); !ok || !v.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("float64 coercion failed: %v, %v", v, ok)
	}
	if v, ok := toDecimal("3.25"); !ok || !v.Equal(d("3.25")) {
		t.Errorf("string coercion failed: %v, %v", v, ok)
	}
	if _, ok := toDecimal("not a number"); ok {
		t.Error("expected an invalid numeric string to fail coercion")
	}
	if _, ok := toDecimal(true); ok {
		t.Error("expected an unsupported type to fail coercion")
	}
}

func TestRealizedPnL_SignInvertedForShorts(t *testing.T) {
	longPnL := realizedPnL(d("100"), d("110"), d("10"), types.PositionSideLong, d("1"))
	if !longPnL.Equal(d("99")) {
		t.Errorf("long pnl = %s, want 99", longPnL)
	}
	shortPnL := realizedPnL(d("100"), d("110"), d("10"), types.PositionSideShort, d("1"))
	if !shortPnL.Equal(d("-101")) {
		t.Errorf("short pnl = %s, want -101", shortPnL)
	}
}
