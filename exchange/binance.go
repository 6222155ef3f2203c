package exchange

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinancePort is the production C2 implementation backed by
// github.com/adshao/go-binance/v2, covering both the spot and isolated
// margin surfaces named in spec §4.2. A second, testnet-pointed instance is
// built by NewBinance with useTestnet=true — the spec requires "two concrete
// implementations ... selected per tenant configuration", which here is one
// adapter parameterized by base URL rather than two divergent types, since
// the wire protocol is identical.
type BinancePort struct {
	client  *binance.Client
	timeout time.Duration
}

// NewBinance constructs a Binance-backed Port. useTestnet switches the
// client's base URL (spec §6 BINANCE_USE_TESTNET).
func NewBinance(apiKey, apiSecret string, useTestnet bool, timeout time.Duration) *BinancePort {
	client := binance.NewClient(apiKey, apiSecret)
	if useTestnet {
		client.BaseURL = "https://testnet.binance.vision"
	}
	return &BinancePort{client: client, timeout: timeout}
}

func (b *BinancePort) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.timeout)
}

func (b *BinancePort) wrap(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindConnection
	if err == context.DeadlineExceeded {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Symbol: symbol, Err: err}
}

func (b *BinancePort) BestBid(parent context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	book, err := b.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil || len(book) == 0 {
		return decimal.Zero, b.wrap("BestBid", symbol, err)
	}
	return decimal.NewFromString(book[0].BidPrice)
}

func (b *BinancePort) BestAsk(parent context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	book, err := b.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil || len(book) == 0 {
		return decimal.Zero, b.wrap("BestAsk", symbol, err)
	}
	return decimal.NewFromString(book[0].AskPrice)
}

func (b *BinancePort) Klines(parent context.Context, symbol, interval string, limit int) ([]Kline, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	raw, err := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, b.wrap("Klines", symbol, err)
	}
	out := make([]Kline, 0, len(raw))
	for _, k := range raw {
		open, _ := decimal.NewFromString(k.Open)
		high, _ := decimal.NewFromString(k.High)
		low, _ := decimal.NewFromString(k.Low)
		close_, _ := decimal.NewFromString(k.Close)
		vol, _ := decimal.NewFromString(k.Volume)
		out = append(out, Kline{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close_,
			Volume:   vol,
		})
	}
	return out, nil
}

func (b *BinancePort) GetAvailableQuoteBalance(parent context.Context, tenantID int64, quoteAsset string, acct AccountType, symbol string) (decimal.Decimal, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()

	if acct == AccountIsolatedMargin {
		info, err := b.client.NewGetIsolatedMarginAccountService().Symbols(symbol).Do(ctx)
		if err != nil || len(info.Assets) == 0 {
			return decimal.Zero, b.wrap("GetAvailableQuoteBalance", symbol, err)
		}
		return decimal.NewFromString(info.Assets[0].QuoteAsset.Free)
	}

	acctInfo, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, b.wrap("GetAvailableQuoteBalance", symbol, err)
	}
	for _, bal := range acctInfo.Balances {
		if bal.Asset == quoteAsset {
			return decimal.NewFromString(bal.Free)
		}
	}
	return decimal.Zero, nil
}

func (b *BinancePort) PlaceMarket(parent context.Context, symbol string, side Side, qty decimal.Decimal) (OrderResult, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		Do(ctx)
	if err != nil {
		return OrderResult{}, b.wrap("PlaceMarket", symbol, err)
	}
	return toOrderResult(symbol, side, qty, res), nil
}

func (b *BinancePort) PlaceLimit(parent context.Context, symbol string, side Side, qty, price decimal.Decimal) (OrderResult, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(qty.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return OrderResult{}, b.wrap("PlaceLimit", symbol, err)
	}
	return toOrderResult(symbol, side, qty, res), nil
}

func (b *BinancePort) PlaceStopLoss(parent context.Context, symbol string, side Side, qty, stopPrice decimal.Decimal) (OrderResult, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeStopLoss).
		Quantity(qty.String()).
		StopPrice(stopPrice.String()).
		Do(ctx)
	if err != nil {
		return OrderResult{}, b.wrap("PlaceStopLoss", symbol, err)
	}
	return toOrderResult(symbol, side, qty, res), nil
}

func (b *BinancePort) CancelOrder(parent context.Context, symbol, orderID string) error {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	_, err := b.client.NewCancelOrderService().Symbol(symbol).OrigClientOrderID(orderID).Do(ctx)
	return b.wrap("CancelOrder", symbol, err)
}

func (b *BinancePort) Transfer(parent context.Context, direction TransferDirection, asset string, amount decimal.Decimal, symbol string) error {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	transferType := binance.MarginTransferType(1)
	if direction == TransferToSpot {
		transferType = binance.MarginTransferType(2)
	}
	_, err := b.client.NewIsolatedMarginTransferService().
		Asset(asset).
		Symbol(symbol).
		Amount(amount.String()).
		TransTo(strconv.Itoa(int(transferType))).
		Do(ctx)
	return b.wrap("Transfer", symbol, err)
}

func (b *BinancePort) MarginAccount(parent context.Context, symbol string) (MarginAccount, error) {
	ctx, cancel := b.ctx(parent)
	defer cancel()
	info, err := b.client.NewGetIsolatedMarginAccountService().Symbols(symbol).Do(ctx)
	if err != nil || len(info.Assets) == 0 {
		return MarginAccount{}, b.wrap("MarginAccount", symbol, err)
	}
	a := info.Assets[0]
	level, _ := decimal.NewFromString(a.MarginLevel)
	baseFree, _ := decimal.NewFromString(a.BaseAsset.Free)
	baseBorrowed, _ := decimal.NewFromString(a.BaseAsset.Borrowed)
	quoteFree, _ := decimal.NewFromString(a.QuoteAsset.Free)
	quoteBorrowed, _ := decimal.NewFromString(a.QuoteAsset.Borrowed)
	return MarginAccount{
		Symbol:      symbol,
		MarginLevel: level,
		BaseAsset:   AssetBalance{Asset: a.BaseAsset.Asset, Free: baseFree, Borrowed: baseBorrowed},
		QuoteAsset:  AssetBalance{Asset: a.QuoteAsset.Asset, Free: quoteFree, Borrowed: quoteBorrowed},
	}, nil
}

func (b *BinancePort) GetMarginLevel(parent context.Context, symbol string) (decimal.Decimal, error) {
	acct, err := b.MarginAccount(parent, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.MarginLevel, nil
}

func toOrderResult(symbol string, side Side, qty decimal.Decimal, res *binance.CreateOrderResponse) OrderResult {
	price, _ := decimal.NewFromString(res.Price)
	return OrderResult{
		OrderID:      res.ClientOrderID,
		Symbol:       symbol,
		Side:         side,
		Quantity:     qty,
		Price:        price,
		Status:       string(res.Status),
		TransactTime: time.UnixMilli(res.TransactTime),
	}
}
