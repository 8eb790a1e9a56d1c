package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CryptoProvider implements Provider for spot-crypto exchanges that expose
// only balances, not positions directly: positions are synthesized per
// non-quote asset with a current-price probe via GetQuote. Grounded
// directly on the teacher's BinanceAdapter
// (internal/execution/adapters/binance.go): same REST shape, same
// symbol-without-slash wire format, generalized from a single exchange to
// the Provider interface.
type CryptoProvider struct {
	logger     *zap.Logger
	baseURL    string
	quoteAsset string
	httpClient *http.Client
	cache      *TTLCache
}

// NewCryptoProvider builds a provider against baseURL, treating quoteAsset
// (e.g. "USDT") as the balance that is never itself synthesized into a
// position.
func NewCryptoProvider(logger *zap.Logger, baseURL, quoteAsset string) *CryptoProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CryptoProvider{
		logger:     logger,
		baseURL:    baseURL,
		quoteAsset: quoteAsset,
		httpClient: NewHTTPClient(logger),
		cache:      NewTTLCache(),
	}
}

func (p *CryptoProvider) FetchAccount(ctx context.Context) (Account, error) {
	if cached, ok := p.cache.Get(CacheKeyAccount, AccountTTL); ok {
		return cached.(Account), nil
	}
	balances, err := p.fetchBalances(ctx)
	if err != nil {
		return Account{}, err
	}
	var total decimal.Decimal
	var available decimal.Decimal
	for asset, bal := range balances {
		if asset != p.quoteAsset {
			continue
		}
		total = bal.free.Add(bal.locked)
		available = bal.free
	}
	acct := Account{TotalBalance: total, AvailableBalance: available, Currency: p.quoteAsset}
	p.cache.Set(CacheKeyAccount, acct)
	return acct, nil
}

type balance struct {
	free, locked decimal.Decimal
}

func (p *CryptoProvider) fetchBalances(ctx context.Context) (map[string]balance, error) {
	var raw []struct {
		Asset  string          `json:"asset"`
		Free   decimal.Decimal `json:"free"`
		Locked decimal.Decimal `json:"locked"`
	}
	if err := p.get(ctx, "/api/v3/account/balances", nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]balance, len(raw))
	for _, b := range raw {
		out[b.Asset] = balance{free: b.Free, locked: b.Locked}
	}
	return out, nil
}

// FetchPositions synthesizes one position per non-quote asset with a
// non-zero balance, probing each for a current price via GetQuote.
func (p *CryptoProvider) FetchPositions(ctx context.Context) ([]Position, error) {
	if cached, ok := p.cache.Get(CacheKeyPositions, PositionsTTL); ok {
		return cached.([]Position), nil
	}
	balances, err := p.fetchBalances(ctx)
	if err != nil {
		return nil, err
	}
	var positions []Position
	for asset, bal := range balances {
		if asset == p.quoteAsset {
			continue
		}
		qty := bal.free.Add(bal.locked)
		if !qty.IsPositive() {
			continue
		}
		symbol := asset + "/" + p.quoteAsset
		quote, err := p.GetQuote(ctx, symbol)
		if err != nil {
			p.logger.Warn("quote probe failed for synthesized position", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		positions = append(positions, Position{
			Ticker:        symbol,
			Side:          types.PositionSideLong,
			Quantity:      qty,
			AvgEntryPrice: quote.CurrentPrice,
			CurrentPrice:  quote.CurrentPrice,
		})
	}
	p.cache.Set(CacheKeyPositions, positions)
	return positions, nil
}

func (p *CryptoProvider) FetchPendingOrders(ctx context.Context) ([]types.PendingOrder, error) {
	if cached, ok := p.cache.Get(CacheKeyPending, PendingOrdersTTL); ok {
		return cached.([]types.PendingOrder), nil
	}
	var raw []struct {
		OrderID     int64           `json:"orderId"`
		Symbol      string          `json:"symbol"`
		Side        string          `json:"side"`
		Price       decimal.Decimal `json:"price"`
		OrigQty     decimal.Decimal `json:"origQty"`
		ExecutedQty decimal.Decimal `json:"executedQty"`
		Status      string          `json:"status"`
		Time        int64           `json:"time"`
	}
	if err := p.get(ctx, "/api/v3/openOrders", nil, &raw); err != nil {
		return nil, err
	}
	orders := make([]types.PendingOrder, 0, len(raw))
	for _, r := range raw {
		orders = append(orders, types.PendingOrder{
			OrderID:        fmt.Sprintf("%d", r.OrderID),
			Ticker:         r.Symbol,
			Side:           types.OrderSide(strings.ToLower(r.Side)),
			Price:          r.Price,
			Quantity:       r.OrigQty,
			FilledQuantity: r.ExecutedQty,
			Status:         types.OrderStatus(strings.ToLower(r.Status)),
			CreatedAt:      time.UnixMilli(r.Time),
		})
	}
	p.cache.Set(CacheKeyPending, orders)
	return orders, nil
}

// FetchExecutionHistory is not paginated by calendar year on this exchange;
// a single request covers the whole range.
func (p *CryptoProvider) FetchExecutionHistory(ctx context.Context, req HistoryRequest) (HistoryResponse, error) {
	params := url.Values{}
	params.Set("startTime", fmt.Sprintf("%d", req.StartDate.UnixMilli()))
	params.Set("endTime", fmt.Sprintf("%d", req.EndDate.UnixMilli()))
	if req.Cursor != nil {
		params.Set("fromId", *req.Cursor)
	}

	var raw []struct {
		ID       int64           `json:"id"`
		OrderID  int64           `json:"orderId"`
		Symbol   string          `json:"symbol"`
		Side     string          `json:"side"`
		Price    decimal.Decimal `json:"price"`
		Quantity decimal.Decimal `json:"qty"`
		Fee      decimal.Decimal `json:"commission"`
		Time     int64           `json:"time"`
	}
	if err := p.get(ctx, "/api/v3/myTrades", params, &raw); err != nil {
		return HistoryResponse{}, err
	}

	trades := make([]types.Execution, 0, len(raw))
	for _, r := range raw {
		trades = append(trades, types.Execution{
			ID:              fmt.Sprintf("%d", r.ID),
			OrderID:         fmt.Sprintf("%d", r.OrderID),
			Exchange:        "crypto",
			ExchangeTradeID: fmt.Sprintf("%d", r.ID),
			Ticker:          r.Symbol,
			Side:            types.OrderSide(strings.ToLower(r.Side)),
			Quantity:        r.Quantity,
			Price:           r.Price,
			Fee:             r.Fee,
			ExecutedAt:      time.UnixMilli(r.Time),
		})
	}
	var next *string
	if len(raw) > 0 {
		id := fmt.Sprintf("%d", raw[len(raw)-1].ID)
		next = &id
	}
	return HistoryResponse{Trades: trades, NextCursor: next}, nil
}

func (p *CryptoProvider) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", strings.ReplaceAll(req.Ticker, "/", ""))
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", strings.ToUpper(string(req.Type)))
	params.Set("quantity", req.Quantity.String())
	if req.Price != nil {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	var raw struct {
		OrderID     int64           `json:"orderId"`
		Status      string          `json:"status"`
		ExecutedQty decimal.Decimal `json:"executedQty"`
		Price       decimal.Decimal `json:"price"`
	}
	if err := p.post(ctx, "/api/v3/order", params, &raw); err != nil {
		return OrderResponse{}, err
	}
	p.cache.InvalidateAll(CacheKeyAccount, CacheKeyPositions, CacheKeyPending)
	return OrderResponse{
		OrderID:        fmt.Sprintf("%d", raw.OrderID),
		Status:         types.OrderStatus(strings.ToLower(raw.Status)),
		FilledQuantity: raw.ExecutedQty,
		AvgFillPrice:   raw.Price,
		CreatedAt:      time.Now(),
	}, nil
}

func (p *CryptoProvider) CancelOrder(ctx context.Context, orderID, ticker string) error {
	params := url.Values{"symbol": {strings.ReplaceAll(ticker, "/", "")}, "orderId": {orderID}}
	if err := p.delete(ctx, "/api/v3/order", params); err != nil {
		return err
	}
	p.cache.InvalidateAll(CacheKeyAccount, CacheKeyPositions, CacheKeyPending)
	return nil
}

// ModifyOrder is not supported: spot exchanges require cancel-and-replace.
func (p *CryptoProvider) ModifyOrder(ctx context.Context, orderID, ticker string, quantity, price *decimal.Decimal) error {
	return ErrUnsupported
}

func (p *CryptoProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var raw struct {
		Symbol             string          `json:"symbol"`
		PriceChange        decimal.Decimal `json:"priceChange"`
		PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
		LastPrice          decimal.Decimal `json:"lastPrice"`
		HighPrice          decimal.Decimal `json:"highPrice"`
		LowPrice           decimal.Decimal `json:"lowPrice"`
		OpenPrice          decimal.Decimal `json:"openPrice"`
		PrevClosePrice     decimal.Decimal `json:"prevClosePrice"`
		Volume             decimal.Decimal `json:"volume"`
		QuoteVolume        decimal.Decimal `json:"quoteVolume"`
		CloseTime          int64           `json:"closeTime"`
	}
	params := url.Values{"symbol": {strings.ReplaceAll(symbol, "/", "")}}
	if err := p.get(ctx, "/api/v3/ticker/24hr", params, &raw); err != nil {
		return Quote{}, err
	}
	return Quote{
		Symbol:        symbol,
		CurrentPrice:  raw.LastPrice,
		PriceChange:   raw.PriceChange,
		ChangePercent: raw.PriceChangePercent,
		High:          raw.HighPrice,
		Low:           raw.LowPrice,
		Open:          raw.OpenPrice,
		PrevClose:     raw.PrevClosePrice,
		Volume:        raw.Volume,
		TradingValue:  raw.QuoteVolume,
		Timestamp:     time.UnixMilli(raw.CloseTime),
	}, nil
}

func (p *CryptoProvider) get(ctx context.Context, path string, params url.Values, out any) error {
	u := p.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	return p.do(req, out)
}

func (p *CryptoProvider) post(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	return p.do(req, out)
}

func (p *CryptoProvider) delete(ctx context.Context, path string, params url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	return p.do(req, nil)
}

func (p *CryptoProvider) do(req *http.Request, out any) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return newRateLimited(2*time.Second, fmt.Errorf("rate limited"))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ProviderError{Kind: KindAuthentication, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return &ProviderError{Kind: KindAPI, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Kind: KindParse, Err: err}
	}
	return nil
}
