package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-memory Port used by tests and by DRY_RUN flows that never
// need to reach a real venue. It lets callers pre-seed bids/asks, klines and
// balances, and records every order placed through it.
type Memory struct {
	mu sync.Mutex

	Bids     map[string]decimal.Decimal
	Asks     map[string]decimal.Decimal
	Candles  map[string][]Kline
	Balances map[string]decimal.Decimal

	FailNextMarket   error
	FailNextStopLoss error

	PlacedOrders []OrderResult
}

func NewMemory() *Memory {
	return &Memory{
		Bids:     map[string]decimal.Decimal{},
		Asks:     map[string]decimal.Decimal{},
		Candles:  map[string][]Kline{},
		Balances: map[string]decimal.Decimal{},
	}
}

func (m *Memory) BestBid(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Bids[symbol]
	if !ok {
		return decimal.Zero, &Error{Kind: KindConnection, Op: "BestBid", Symbol: symbol, Err: errNotSupported}
	}
	return v, nil
}

func (m *Memory) BestAsk(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Asks[symbol]
	if !ok {
		return decimal.Zero, &Error{Kind: KindConnection, Op: "BestAsk", Symbol: symbol, Err: errNotSupported}
	}
	return v, nil
}

func (m *Memory) Klines(_ context.Context, symbol, interval string, limit int) ([]Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks := m.Candles[symbol]
	if len(ks) > limit {
		ks = ks[len(ks)-limit:]
	}
	return ks, nil
}

func (m *Memory) GetAvailableQuoteBalance(_ context.Context, tenantID int64, quoteAsset string, acct AccountType, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balances[quoteAsset], nil
}

func (m *Memory) PlaceMarket(_ context.Context, symbol string, side Side, qty decimal.Decimal) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNextMarket != nil {
		err := m.FailNextMarket
		m.FailNextMarket = nil
		return OrderResult{}, err
	}
	res := OrderResult{OrderID: uuid.NewString(), Symbol: symbol, Side: side, Quantity: qty, Status: "FILLED", TransactTime: time.Now().UTC()}
	m.PlacedOrders = append(m.PlacedOrders, res)
	return res, nil
}

func (m *Memory) PlaceLimit(_ context.Context, symbol string, side Side, qty, price decimal.Decimal) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := OrderResult{OrderID: uuid.NewString(), Symbol: symbol, Side: side, Quantity: qty, Price: price, Status: "NEW", TransactTime: time.Now().UTC()}
	m.PlacedOrders = append(m.PlacedOrders, res)
	return res, nil
}

func (m *Memory) PlaceStopLoss(_ context.Context, symbol string, side Side, qty, stopPrice decimal.Decimal) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNextStopLoss != nil {
		err := m.FailNextStopLoss
		m.FailNextStopLoss = nil
		return OrderResult{}, err
	}
	res := OrderResult{OrderID: uuid.NewString(), Symbol: symbol, Side: side, Quantity: qty, Price: stopPrice, Status: "NEW", TransactTime: time.Now().UTC()}
	m.PlacedOrders = append(m.PlacedOrders, res)
	return res, nil
}

func (m *Memory) CancelOrder(_ context.Context, symbol, orderID string) error { return nil }

func (m *Memory) Transfer(_ context.Context, direction TransferDirection, asset string, amount decimal.Decimal, symbol string) error {
	return nil
}

func (m *Memory) MarginAccount(_ context.Context, symbol string) (MarginAccount, error) {
	return MarginAccount{Symbol: symbol, MarginLevel: decimal.NewFromInt(999)}, nil
}

func (m *Memory) GetMarginLevel(_ context.Context, symbol string) (decimal.Decimal, error) {
	acct, err := m.MarginAccount(context.Background(), symbol)
	return acct.MarginLevel, err
}

var _ Port = (*Memory)(nil)
