package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCryptoProvider_FetchAccount_IsolatesQuoteAssetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"asset": "USDT", "free": "1000", "locked": "50"},
			{"asset": "BTC", "free": "0.5", "locked": "0"},
		})
	}))
	defer srv.Close()

	p := NewCryptoProvider(nil, srv.URL, "USDT")
	acct, err := p.FetchAccount(context.Background())
	if err != nil {
		t.Fatalf("FetchAccount: %v", err)
	}
	if !acct.TotalBalance.Equal(decimal.NewFromInt(1050)) {
		t.Errorf("total balance = %s, want 1050", acct.TotalBalance)
	}
	if !acct.AvailableBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("available balance = %s, want 1000", acct.AvailableBalance)
	}
}

func TestCryptoProvider_FetchPositions_SkipsQuoteAssetAndZeroBalances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "balances"):
			json.NewEncoder(w).Encode([]map[string]string{
				{"asset": "USDT", "free": "1000", "locked": "0"},
				{"asset": "BTC", "free": "0.5", "locked": "0"},
				{"asset": "ETH", "free": "0", "locked": "0"},
			})
		case strings.Contains(r.URL.Path, "ticker/24hr"):
			json.NewEncoder(w).Encode(map[string]string{"lastPrice": "60000"})
		}
	}))
	defer srv.Close()

	p := NewCryptoProvider(nil, srv.URL, "USDT")
	positions, err := p.FetchPositions(context.Background())
	if err != nil {
		t.Fatalf("FetchPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected exactly 1 synthesized position (BTC only), got %d", len(positions))
	}
	if positions[0].Ticker != "BTC/USDT" {
		t.Errorf("ticker = %s, want BTC/USDT", positions[0].Ticker)
	}
}

func TestCryptoProvider_PlaceOrder_StripsSlashAndUppercases(t *testing.T) {
	var gotSymbol, gotSide string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		gotSide = r.URL.Query().Get("side")
		json.NewEncoder(w).Encode(map[string]any{"orderId": 123, "status": "FILLED", "executedQty": "1", "price": "100"})
	}))
	defer srv.Close()

	p := NewCryptoProvider(nil, srv.URL, "USDT")
	resp, err := p.PlaceOrder(context.Background(), OrderRequest{Ticker: "BTC/USDT", Side: "buy", Type: "market", Quantity: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if gotSymbol != "BTCUSDT" {
		t.Errorf("symbol sent upstream = %s, want BTCUSDT", gotSymbol)
	}
	if gotSide != "BUY" {
		t.Errorf("side sent upstream = %s, want BUY", gotSide)
	}
	if resp.OrderID != "123" {
		t.Errorf("order id = %s, want 123", resp.OrderID)
	}
}

func TestCryptoProvider_ModifyOrder_Unsupported(t *testing.T) {
	p := NewCryptoProvider(nil, "http://unused", "USDT")
	if err := p.ModifyOrder(context.Background(), "1", "BTC/USDT", nil, nil); err != ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
