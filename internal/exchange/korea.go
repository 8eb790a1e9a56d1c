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
	"github.com/relvacode/iso8601"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// KoreaEquityProvider implements Provider for Korean-equity brokers whose
// REST API paginates execution history by calendar year and whose
// tax-sheltered (ISA) account view is derived by replaying that history
// rather than returned directly, grounded on the teacher's
// BinanceAdapter request/response shape (internal/execution/adapters/binance.go)
// generalized to a differently-paginated upstream.
type KoreaEquityProvider struct {
	logger     *zap.Logger
	baseURL    string
	httpClient *http.Client
	cache      *TTLCache
	isISA      bool
	isaTTL     time.Duration
}

// NewKoreaEquityProvider builds a provider. isISA marks the account as
// tax-sheltered, enabling position synthesis via execution-history replay
// and clamping isaTTL to the spec's 10-minute floor.
func NewKoreaEquityProvider(logger *zap.Logger, baseURL string, isISA bool, isaTTL time.Duration) *KoreaEquityProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if isaTTL < ISAPositionFloor {
		isaTTL = ISAPositionFloor
	}
	return &KoreaEquityProvider{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: NewHTTPClient(logger),
		cache:      NewTTLCache(),
		isISA:      isISA,
		isaTTL:     isaTTL,
	}
}

func (p *KoreaEquityProvider) FetchAccount(ctx context.Context) (Account, error) {
	if cached, ok := p.cache.Get(CacheKeyAccount, AccountTTL); ok {
		return cached.(Account), nil
	}
	var body struct {
		TotalBalance     decimal.Decimal `json:"totalBalance"`
		AvailableBalance decimal.Decimal `json:"availableBalance"`
		MarginUsed       decimal.Decimal `json:"marginUsed"`
		UnrealizedPnL    decimal.Decimal `json:"unrealizedPnl"`
		Currency         string          `json:"currency"`
	}
	if err := p.get(ctx, "/account", nil, &body); err != nil {
		return Account{}, err
	}
	acct := Account{
		TotalBalance:     body.TotalBalance,
		AvailableBalance: body.AvailableBalance,
		MarginUsed:       body.MarginUsed,
		UnrealizedPnL:    body.UnrealizedPnL,
		Currency:         body.Currency,
	}
	p.cache.Set(CacheKeyAccount, acct)
	return acct, nil
}

// FetchPositions returns positions directly for a regular account. For an
// ISA account it synthesizes positions from replayed execution history
// (see synthesizeISAPositions), cached for the provider's ISA TTL (never
// less than ISAPositionFloor).
func (p *KoreaEquityProvider) FetchPositions(ctx context.Context) ([]Position, error) {
	ttl := PositionsTTL
	if p.isISA {
		ttl = p.isaTTL
	}
	if cached, ok := p.cache.Get(CacheKeyPositions, ttl); ok {
		return cached.([]Position), nil
	}

	var positions []Position
	var err error
	if p.isISA {
		positions, err = p.synthesizeISAPositions(ctx)
	} else {
		var body []struct {
			Ticker        string          `json:"ticker"`
			Side          string          `json:"side"`
			Quantity      decimal.Decimal `json:"quantity"`
			AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
			CurrentPrice  decimal.Decimal `json:"currentPrice"`
		}
		if err = p.get(ctx, "/positions", nil, &body); err == nil {
			for _, b := range body {
				positions = append(positions, positionFromRaw(b.Ticker, b.Side, b.Quantity, b.AvgEntryPrice, b.CurrentPrice))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	p.cache.Set(CacheKeyPositions, positions)
	return positions, nil
}

// synthesizeISAPositions replays this account's full execution history and
// nets quantity/avg-cost per ticker, since ISA accounts do not expose a
// positions endpoint directly.
func (p *KoreaEquityProvider) synthesizeISAPositions(ctx context.Context) ([]Position, error) {
	start := time.Now().AddDate(-10, 0, 0)
	end := time.Now()
	resp, err := p.FetchExecutionHistory(ctx, HistoryRequest{StartDate: start, EndDate: end})
	if err != nil {
		return nil, err
	}

	type accum struct {
		qty  decimal.Decimal
		cost decimal.Decimal
	}
	byTicker := make(map[string]*accum)
	for _, ex := range resp.Trades {
		a, ok := byTicker[ex.Ticker]
		if !ok {
			a = &accum{}
			byTicker[ex.Ticker] = a
		}
		if ex.Side == types.OrderSideBuy {
			a.cost = a.cost.Add(ex.Quantity.Mul(ex.Price))
			a.qty = a.qty.Add(ex.Quantity)
		} else {
			if a.qty.IsPositive() {
				avg := a.cost.Div(a.qty)
				a.cost = a.cost.Sub(ex.Quantity.Mul(avg))
			}
			a.qty = a.qty.Sub(ex.Quantity)
		}
	}

	var positions []Position
	for ticker, a := range byTicker {
		if !a.qty.IsPositive() {
			continue
		}
		avgEntry := a.cost.Div(a.qty)
		quote, err := p.GetQuote(ctx, ticker)
		current := avgEntry
		if err == nil {
			current = quote.CurrentPrice
		}
		positions = append(positions, positionFromRaw(ticker, string(types.OrderSideBuy), a.qty, avgEntry, current))
	}
	return positions, nil
}

func positionFromRaw(ticker, side string, qty, entry, current decimal.Decimal) Position {
	positionSide := types.PositionSideLong
	if side == string(types.OrderSideSell) {
		positionSide = types.PositionSideShort
	}
	unrealized := types.UnrealizedPnL(entry, current, qty, positionSide)
	var pct decimal.Decimal
	if !entry.IsZero() {
		pct = unrealized.Div(entry.Mul(qty)).Mul(decimal.NewFromInt(100))
	}
	return Position{
		Ticker:           ticker,
		Side:             positionSide,
		Quantity:         qty,
		AvgEntryPrice:    entry,
		CurrentPrice:     current,
		UnrealizedPnL:    unrealized,
		UnrealizedPnLPct: pct,
	}
}

func (p *KoreaEquityProvider) FetchPendingOrders(ctx context.Context) ([]types.PendingOrder, error) {
	if cached, ok := p.cache.Get(CacheKeyPending, PendingOrdersTTL); ok {
		return cached.([]types.PendingOrder), nil
	}
	var orders []types.PendingOrder
	if err := p.get(ctx, "/orders/pending", nil, &orders); err != nil {
		return nil, err
	}
	p.cache.Set(CacheKeyPending, orders)
	return orders, nil
}

// FetchExecutionHistory walks the requested range year by year, since the
// upstream Korean-equity API paginates execution history by calendar year.
// A "no data" response for a sub-window ends that sub-window without
// treating it as an error; a failure on one year is logged and the
// traversal continues to the next rather than aborting the whole range.
func (p *KoreaEquityProvider) FetchExecutionHistory(ctx context.Context, req HistoryRequest) (HistoryResponse, error) {
	var all []types.Execution
	yearStart := req.StartDate

	for !yearStart.After(req.EndDate) {
		yearEnd := time.Date(yearStart.Year(), 12, 31, 23, 59, 59, 0, yearStart.Location())
		if yearEnd.After(req.EndDate) {
			yearEnd = req.EndDate
		}

		trades, err := p.fetchHistoryWindow(ctx, yearStart, yearEnd, req.Side)
		if err != nil {
			p.logger.Warn("execution history window failed, continuing",
				zap.Int("year", yearStart.Year()), zap.Error(err))
		} else {
			all = append(all, trades...)
		}

		yearStart = time.Date(yearStart.Year()+1, 1, 1, 0, 0, 0, 0, yearStart.Location())
	}

	return HistoryResponse{Trades: all}, nil
}

func (p *KoreaEquityProvider) fetchHistoryWindow(ctx context.Context, start, end time.Time, side *types.OrderSide) ([]types.Execution, error) {
	params := url.Values{}
	params.Set("start", start.Format("20060102"))
	params.Set("end", end.Format("20060102"))
	if side != nil {
		params.Set("side", string(*side))
	}

	var raw []struct {
		ID         string          `json:"id"`
		OrderID    string          `json:"orderId"`
		Ticker     string          `json:"ticker"`
		Side       string          `json:"side"`
		Quantity   decimal.Decimal `json:"quantity"`
		Price      decimal.Decimal `json:"price"`
		Fee        decimal.Decimal `json:"fee"`
		ExecutedAt string          `json:"executedAt"`
	}
	if err := p.get(ctx, "/execution-history", params, &raw); err != nil {
		return nil, err
	}

	out := make([]types.Execution, 0, len(raw))
	for _, r := range raw {
		executedAt, err := iso8601.ParseString(r.ExecutedAt)
		if err != nil {
			return nil, &ProviderError{Kind: KindParse, Err: err}
		}
		out = append(out, types.Execution{
			ID:         r.ID,
			OrderID:    r.OrderID,
			Exchange:   "kr",
			Ticker:     r.Ticker,
			Side:       types.OrderSide(r.Side),
			Quantity:   r.Quantity,
			Price:      r.Price,
			Fee:        r.Fee,
			ExecutedAt: executedAt,
		})
	}
	return out, nil
}

func (p *KoreaEquityProvider) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	params := url.Values{}
	params.Set("ticker", req.Ticker)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())
	if req.Price != nil {
		params.Set("price", req.Price.String())
	}

	var resp struct {
		OrderID        string          `json:"orderId"`
		Status         string          `json:"status"`
		FilledQuantity decimal.Decimal `json:"filledQuantity"`
		AvgFillPrice   decimal.Decimal `json:"avgFillPrice"`
	}
	if err := p.post(ctx, "/orders", params, &resp); err != nil {
		return OrderResponse{}, err
	}
	p.cache.InvalidateAll(CacheKeyAccount, CacheKeyPositions, CacheKeyPending)
	return OrderResponse{
		OrderID:        resp.OrderID,
		Status:         types.OrderStatus(resp.Status),
		FilledQuantity: resp.FilledQuantity,
		AvgFillPrice:   resp.AvgFillPrice,
		CreatedAt:      time.Now(),
	}, nil
}

func (p *KoreaEquityProvider) CancelOrder(ctx context.Context, orderID, ticker string) error {
	params := url.Values{"orderId": {orderID}, "ticker": {ticker}}
	if err := p.post(ctx, "/orders/cancel", params, nil); err != nil {
		return err
	}
	p.cache.InvalidateAll(CacheKeyAccount, CacheKeyPositions, CacheKeyPending)
	return nil
}

// ModifyOrder is not supported by this broker's API; callers should fall
// back to cancel-and-replace.
func (p *KoreaEquityProvider) ModifyOrder(ctx context.Context, orderID, ticker string, quantity, price *decimal.Decimal) error {
	return ErrUnsupported
}

func (p *KoreaEquityProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var raw struct {
		CurrentPrice  decimal.Decimal `json:"currentPrice"`
		PriceChange   decimal.Decimal `json:"priceChange"`
		ChangePercent decimal.Decimal `json:"changePercent"`
		High          decimal.Decimal `json:"high"`
		Low           decimal.Decimal `json:"low"`
		Open          decimal.Decimal `json:"open"`
		PrevClose     decimal.Decimal `json:"prevClose"`
		Volume        decimal.Decimal `json:"volume"`
		TradingValue  decimal.Decimal `json:"tradingValue"`
		Timestamp     string          `json:"timestamp"`
	}
	params := url.Values{"symbol": {symbol}}
	if err := p.get(ctx, "/quote", params, &raw); err != nil {
		return Quote{}, err
	}
	ts, err := iso8601.ParseString(raw.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return Quote{
		Symbol:        symbol,
		CurrentPrice:  raw.CurrentPrice,
		PriceChange:   raw.PriceChange,
		ChangePercent: raw.ChangePercent,
		High:          raw.High,
		Low:           raw.Low,
		Open:          raw.Open,
		PrevClose:     raw.PrevClose,
		Volume:        raw.Volume,
		TradingValue:  raw.TradingValue,
		Timestamp:     ts,
	}, nil
}

func (p *KoreaEquityProvider) get(ctx context.Context, path string, params url.Values, out any) error {
	u := p.baseURL + path
	if params != nil && len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	return p.do(req, out)
}

func (p *KoreaEquityProvider) post(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, out)
}

func (p *KoreaEquityProvider) do(req *http.Request, out any) error {
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
