package signalprocessor

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/atlas-desktop/trading-core/internal/exchange"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	account     exchange.Account
	positions   []exchange.Position
	placed      []exchange.OrderRequest
	orderIDs    []string
	cancelled   []string
	placeErr    error
	nextOrderID int
}

func (f *fakeProvider) FetchAccount(ctx context.Context) (exchange.Account, error) { return f.account, nil }
func (f *fakeProvider) FetchPositions(ctx context.Context) ([]exchange.Position, error) {
	return f.positions, nil
}
func (f *fakeProvider) FetchPendingOrders(ctx context.Context) ([]types.PendingOrder, error) {
	return nil, nil
}
func (f *fakeProvider) FetchExecutionHistory(ctx context.Context, req exchange.HistoryRequest) (exchange.HistoryResponse, error) {
	return exchange.HistoryResponse{}, nil
}
func (f *fakeProvider) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResponse, error) {
	if f.placeErr != nil {
		return exchange.OrderResponse{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextOrderID++
	id := strconv.Itoa(f.nextOrderID)
	f.orderIDs = append(f.orderIDs, id)
	return exchange.OrderResponse{OrderID: id, FilledQuantity: req.Quantity, AvgFillPrice: decimal.NewFromInt(100)}, nil
}
func (f *fakeProvider) CancelOrder(ctx context.Context, orderID, ticker string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}
func (f *fakeProvider) ModifyOrder(ctx context.Context, orderID, ticker string, quantity, price *decimal.Decimal) error {
	return exchange.ErrUnsupported
}
func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (exchange.Quote, error) {
	return exchange.Quote{Symbol: symbol, CurrentPrice: decimal.NewFromInt(100)}, nil
}

func TestLiveExecutor_ProcessSignal_SizesEntryFromAccountBalance(t *testing.T) {
	provider := &fakeProvider{account: exchange.Account{AvailableBalance: d("10000")}}
	cfg := baseConfig()
	exec := NewLiveExecutor(nil, provider, cfg)

	result, err := exec.ProcessSignal(context.Background(), types.Signal{Ticker: "AAA", Side: types.OrderSideBuy, Type: types.SignalTypeEntry, Strength: 1}, d("100"), time.Now())
	if err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if result == nil {
		t.Fatal("expected a trade result")
	}
	if len(provider.placed) != 1 {
		t.Fatalf("expected exactly 1 order placed, got %d", len(provider.placed))
	}
	wantQty := d("10000").Mul(cfg.MaxPositionSizePct).Div(d("100"))
	if !provider.placed[0].Quantity.Equal(wantQty) {
		t.Errorf("placed quantity = %s, want %s", provider.placed[0].Quantity, wantQty)
	}
}

func TestLiveExecutor_ProcessSignal_ShortDisallowed(t *testing.T) {
	provider := &fakeProvider{account: exchange.Account{AvailableBalance: d("10000")}}
	cfg := baseConfig()
	cfg.AllowShort = false
	exec := NewLiveExecutor(nil, provider, cfg)

	_, err := exec.ProcessSignal(context.Background(), types.Signal{Ticker: "AAA", Side: types.OrderSideSell, Type: types.SignalTypeEntry, Strength: 1}, d("100"), time.Now())
	if err != ErrShortNotAllowed {
		t.Fatalf("err = %v, want ErrShortNotAllowed", err)
	}
	if len(provider.placed) != 0 {
		t.Error("expected no order placed for a disallowed short")
	}
}

func TestLiveExecutor_ProcessSignal_ExitReducesAgainstFetchedPosition(t *testing.T) {
	provider := &fakeProvider{
		account:   exchange.Account{AvailableBalance: d("10000")},
		positions: []exchange.Position{{Ticker: "AAA", Quantity: d("10")}},
	}
	exec := NewLiveExecutor(nil, provider, baseConfig())

	_, err := exec.ProcessSignal(context.Background(), types.Signal{Ticker: "AAA", Side: types.OrderSideSell, Type: types.SignalTypeExit, Strength: 1}, d("100"), time.Now())
	if err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if len(provider.placed) != 1 || !provider.placed[0].Quantity.Equal(d("10")) {
		t.Fatalf("expected an exit order for quantity 10, got %+v", provider.placed)
	}
}

func TestLiveExecutor_ProcessSignal_ExitWithNoPositionIsNoOp(t *testing.T) {
	provider := &fakeProvider{account: exchange.Account{AvailableBalance: d("10000")}}
	exec := NewLiveExecutor(nil, provider, baseConfig())

	result, err := exec.ProcessSignal(context.Background(), types.Signal{Ticker: "AAA", Side: types.OrderSideSell, Type: types.SignalTypeExit, Strength: 1}, d("100"), time.Now())
	if err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result when no matching position exists, got %+v", result)
	}
}

func TestLiveExecutor_OnOrderFilled_CancelsSiblingLeg(t *testing.T) {
	provider := &fakeProvider{account: exchange.Account{AvailableBalance: d("10000")}}
	cfg := baseConfig()
	cfg.BracketEnabled = true
	cfg.StopLossPct = d("0.02")
	cfg.TakeProfitPct = d("0.05")
	exec := NewLiveExecutor(nil, provider, cfg)

	_, err := exec.ProcessSignal(context.Background(), types.Signal{Ticker: "AAA", Side: types.OrderSideBuy, Type: types.SignalTypeEntry, Strength: 1}, d("100"), time.Now())
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	// Entry + stop-loss + take-profit = 3 orders placed.
	if len(provider.placed) != 3 {
		t.Fatalf("expected 3 orders (entry + bracket legs), got %d", len(provider.placed))
	}
	stopOrderID := provider.orderIDs[1]
	profitOrderID := provider.orderIDs[2]

	exec.OnOrderFilled(context.Background(), "AAA", stopOrderID)

	if len(provider.cancelled) != 1 || provider.cancelled[0] != profitOrderID {
		t.Fatalf("expected the take-profit leg (%s) to be cancelled, got %v", profitOrderID, provider.cancelled)
	}

	exec.mu.Lock()
	_, stillTracked := exec.brackets["AAA"]
	exec.mu.Unlock()
	if stillTracked {
		t.Error("expected the bracket to be cleared after OnOrderFilled")
	}
}

func TestLiveExecutor_CheckBracketTriggers_AlwaysNil(t *testing.T) {
	exec := NewLiveExecutor(nil, &fakeProvider{}, baseConfig())
	if triggers := exec.CheckBracketTriggers(map[string]decimal.Decimal{"AAA": d("100")}); triggers != nil {
		t.Errorf("expected nil triggers from the live executor, got %+v", triggers)
	}
}

func TestLiveExecutor_CloseAllPositions_FlattensEachOpenPosition(t *testing.T) {
	provider := &fakeProvider{
		positions: []exchange.Position{
			{Ticker: "AAA", Side: types.PositionSideLong, Quantity: d("10")},
			{Ticker: "BBB", Side: types.PositionSideShort, Quantity: d("5")},
		},
	}
	exec := NewLiveExecutor(nil, provider, baseConfig())

	results, err := exec.CloseAllPositions(context.Background(), map[string]decimal.Decimal{}, time.Now())
	if err != nil {
		t.Fatalf("CloseAllPositions: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 close results, got %d", len(results))
	}
	if provider.placed[0].Side != types.OrderSideSell {
		t.Errorf("long position should be flattened with a sell, got %s", provider.placed[0].Side)
	}
	if provider.placed[1].Side != types.OrderSideBuy {
		t.Errorf("short position should be flattened with a buy, got %s", provider.placed[1].Side)
	}
}
