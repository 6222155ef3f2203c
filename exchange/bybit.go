package exchange

import (
	"context"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

// BybitPort is a second concrete C2 implementation, proving the port
// abstraction is not Binance-specific (spec §4.2: "Two concrete
// implementations exist ... selected per tenant configuration" generalizes
// to "at least one per configured venue"). It reads the spot book and places
// and cancels spot orders only. Klines, Transfer, MarginAccount,
// GetMarginLevel and the isolated-margin balance query return
// KindFilterFailure, matching spec §7's "permanent errors ... do NOT retry";
// the spot balance query returns a KindConnection not-supported error.
type BybitPort struct {
	client  *bybit.Client
	timeout time.Duration
}

func NewBybit(apiKey, apiSecret string, useTestnet bool, timeout time.Duration) *BybitPort {
	baseURL := bybit.MAINNET
	if useTestnet {
		baseURL = bybit.TESTNET
	}
	client := bybit.NewBybitHttpClient(apiKey, apiSecret, bybit.WithBaseURL(baseURL))
	return &BybitPort{client: client, timeout: timeout}
}

func (b *BybitPort) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.timeout)
}

func (b *BybitPort) wrap(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindConnection
	if err == context.DeadlineExceeded {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Symbol: symbol, Err: err}
}

func (b *BybitPort) BestBid(parent context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	params := map[string]interface{}{"category": "spot", "symbol": symbol}
	resp, err := bybit.NewUsdtPerpetualServiceWithParams(b.client).GetOrderBook(ctx, params)
	if err != nil {
		return decimal.Zero, b.wrap("BestBid", symbol, err)
	}
	return parseBybitTopOfBook(resp, "bidPrice")
}

func (b *BybitPort) BestAsk(parent context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	params := map[string]interface{}{"category": "spot", "symbol": symbol}
	resp, err := bybit.NewUsdtPerpetualServiceWithParams(b.client).GetOrderBook(ctx, params)
	if err != nil {
		return decimal.Zero, b.wrap("BestAsk", symbol, err)
	}
	return parseBybitTopOfBook(resp, "askPrice")
}

// parseBybitTopOfBook is deliberately loose: the SDK returns a generic
// map-shaped response for this endpoint and the Trading Core only needs one
// numeric field out of it.
func parseBybitTopOfBook(resp interface{}, field string) (decimal.Decimal, error) {
	m, ok := resp.(map[string]interface{})
	if !ok {
		return decimal.Zero, &Error{Kind: KindConnection, Op: "parseBybitTopOfBook", Err: errNotAMap}
	}
	v, ok := m[field].(string)
	if !ok {
		return decimal.Zero, &Error{Kind: KindConnection, Op: "parseBybitTopOfBook", Err: errMissingField}
	}
	return decimal.NewFromString(v)
}

func (b *BybitPort) Klines(parent context.Context, symbol, interval string, limit int) ([]Kline, error) {
	return nil, &Error{Kind: KindFilterFailure, Op: "Klines", Symbol: symbol, Err: errNotSupported}
}

func (b *BybitPort) GetAvailableQuoteBalance(parent context.Context, tenantID int64, quoteAsset string, acct AccountType, symbol string) (decimal.Decimal, error) {
	if acct == AccountIsolatedMargin {
		return decimal.Zero, &Error{Kind: KindFilterFailure, Op: "GetAvailableQuoteBalance", Symbol: symbol, Err: errNotSupported}
	}
	ctx, cancel := b.ctx(parent)
	defer cancel()
	_ = ctx
	return decimal.Zero, &Error{Kind: KindConnection, Op: "GetAvailableQuoteBalance", Symbol: symbol, Err: errNotSupported}
}

func (b *BybitPort) PlaceMarket(parent context.Context, symbol string, side Side, qty decimal.Decimal) (OrderResult, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	params := map[string]interface{}{
		"category":  "spot",
		"symbol":    symbol,
		"side":      string(side),
		"orderType": "Market",
		"qty":       qty.String(),
	}
	_, err := bybit.NewUsdtPerpetualServiceWithParams(b.client).CreateOrder(ctx, params)
	if err != nil {
		return OrderResult{}, b.wrap("PlaceMarket", symbol, err)
	}
	return OrderResult{Symbol: symbol, Side: side, Quantity: qty, TransactTime: time.Now().UTC()}, nil
}

func (b *BybitPort) PlaceLimit(parent context.Context, symbol string, side Side, qty, price decimal.Decimal) (OrderResult, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	params := map[string]interface{}{
		"category":  "spot",
		"symbol":    symbol,
		"side":      string(side),
		"orderType": "Limit",
		"qty":       qty.String(),
		"price":     price.String(),
	}
	_, err := bybit.NewUsdtPerpetualServiceWithParams(b.client).CreateOrder(ctx, params)
	if err != nil {
		return OrderResult{}, b.wrap("PlaceLimit", symbol, err)
	}
	return OrderResult{Symbol: symbol, Side: side, Quantity: qty, Price: price, TransactTime: time.Now().UTC()}, nil
}

func (b *BybitPort) PlaceStopLoss(parent context.Context, symbol string, side Side, qty, stopPrice decimal.Decimal) (OrderResult, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	params := map[string]interface{}{
		"category":  "spot",
		"symbol":    symbol,
		"side":      string(side),
		"orderType": "Market",
		"qty":       qty.String(),
		"stopPrice": stopPrice.String(),
	}
	_, err := bybit.NewUsdtPerpetualServiceWithParams(b.client).CreateOrder(ctx, params)
	if err != nil {
		return OrderResult{}, b.wrap("PlaceStopLoss", symbol, err)
	}
	return OrderResult{Symbol: symbol, Side: side, Quantity: qty, Price: stopPrice, TransactTime: time.Now().UTC()}, nil
}

func (b *BybitPort) CancelOrder(parent context.Context, symbol, orderID string) error {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	params := map[string]interface{}{"category": "spot", "symbol": symbol, "orderId": orderID}
	_, err := bybit.NewUsdtPerpetualServiceWithParams(b.client).CancelOrder(ctx, params)
	return b.wrap("CancelOrder", symbol, err)
}

func (b *BybitPort) Transfer(parent context.Context, direction TransferDirection, asset string, amount decimal.Decimal, symbol string) error {
	return &Error{Kind: KindFilterFailure, Op: "Transfer", Symbol: symbol, Err: errNotSupported}
}

func (b *BybitPort) MarginAccount(parent context.Context, symbol string) (MarginAccount, error) {
	return MarginAccount{}, &Error{Kind: KindFilterFailure, Op: "MarginAccount", Symbol: symbol, Err: errNotSupported}
}

func (b *BybitPort) GetMarginLevel(parent context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, &Error{Kind: KindFilterFailure, Op: "GetMarginLevel", Symbol: symbol, Err: errNotSupported}
}
