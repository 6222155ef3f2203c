package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/metrics"
)

// instrumentedPort wraps a Port and records per-call latency and error-kind
// counts against the exchange subsystem metrics (spec §4.2's 5s call budget
// is exactly the kind of thing an operator wants a histogram on).
type instrumentedPort struct {
	inner Port
	venue string
}

func instrument(venue string, p Port) Port {
	return &instrumentedPort{inner: p, venue: venue}
}

func (p *instrumentedPort) observe(op string, start time.Time, err error) {
	kind := ""
	var exchErr *Error
	if errors.As(err, &exchErr) {
		kind = exchErr.Kind.String()
	}
	metrics.RecordExchangeCall(p.venue, op, time.Since(start).Seconds(), kind)
}

func (p *instrumentedPort) BestBid(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	v, err := p.inner.BestBid(ctx, symbol)
	p.observe("BestBid", start, err)
	return v, err
}

func (p *instrumentedPort) BestAsk(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	v, err := p.inner.BestAsk(ctx, symbol)
	p.observe("BestAsk", start, err)
	return v, err
}

func (p *instrumentedPort) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	start := time.Now()
	v, err := p.inner.Klines(ctx, symbol, interval, limit)
	p.observe("Klines", start, err)
	return v, err
}

func (p *instrumentedPort) GetAvailableQuoteBalance(ctx context.Context, tenantID int64, quoteAsset string, acct AccountType, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	v, err := p.inner.GetAvailableQuoteBalance(ctx, tenantID, quoteAsset, acct, symbol)
	p.observe("GetAvailableQuoteBalance", start, err)
	return v, err
}

func (p *instrumentedPort) PlaceMarket(ctx context.Context, symbol string, side Side, qty decimal.Decimal) (OrderResult, error) {
	start := time.Now()
	v, err := p.inner.PlaceMarket(ctx, symbol, side, qty)
	p.observe("PlaceMarket", start, err)
	return v, err
}

func (p *instrumentedPort) PlaceLimit(ctx context.Context, symbol string, side Side, qty, price decimal.Decimal) (OrderResult, error) {
	start := time.Now()
	v, err := p.inner.PlaceLimit(ctx, symbol, side, qty, price)
	p.observe("PlaceLimit", start, err)
	return v, err
}

func (p *instrumentedPort) PlaceStopLoss(ctx context.Context, symbol string, side Side, qty, stopPrice decimal.Decimal) (OrderResult, error) {
	start := time.Now()
	v, err := p.inner.PlaceStopLoss(ctx, symbol, side, qty, stopPrice)
	p.observe("PlaceStopLoss", start, err)
	return v, err
}

func (p *instrumentedPort) CancelOrder(ctx context.Context, symbol, orderID string) error {
	start := time.Now()
	err := p.inner.CancelOrder(ctx, symbol, orderID)
	p.observe("CancelOrder", start, err)
	return err
}

func (p *instrumentedPort) Transfer(ctx context.Context, direction TransferDirection, asset string, amount decimal.Decimal, symbol string) error {
	start := time.Now()
	err := p.inner.Transfer(ctx, direction, asset, amount, symbol)
	p.observe("Transfer", start, err)
	return err
}

func (p *instrumentedPort) MarginAccount(ctx context.Context, symbol string) (MarginAccount, error) {
	start := time.Now()
	v, err := p.inner.MarginAccount(ctx, symbol)
	p.observe("MarginAccount", start, err)
	return v, err
}

func (p *instrumentedPort) GetMarginLevel(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	v, err := p.inner.GetMarginLevel(ctx, symbol)
	p.observe("GetMarginLevel", start, err)
	return v, err
}
