// Package exchange defines the capability interface over the spot/isolated-
// margin exchange (spec §4.2, C2) and the typed error hierarchy every call
// fails with. Concrete implementations (testnet, production, in-memory) are
// selected at composition time — there is no runtime duck typing.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is BUY or SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// AccountType selects which balance/margin account a call applies to.
type AccountType string

const (
	AccountSpot           AccountType = "spot"
	AccountIsolatedMargin AccountType = "isolated_margin"
)

// TransferDirection is the leg of a spot<->margin transfer.
type TransferDirection string

const (
	TransferToMargin TransferDirection = "TO_MARGIN"
	TransferToSpot   TransferDirection = "TO_SPOT"
)

// Kline is one OHLCV candle, oldest-first when returned in a slice.
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// OrderResult is the outcome of a placed order.
type OrderResult struct {
	OrderID       string
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Status        string
	TransactTime  time.Time
}

// MarginAccount carries the subset of isolated-margin account info the
// Trading Core needs: the margin level and the base/quote asset balances.
type MarginAccount struct {
	Symbol      string
	MarginLevel decimal.Decimal
	BaseAsset   AssetBalance
	QuoteAsset  AssetBalance
}

// AssetBalance is a single asset's free/locked/borrowed snapshot within an
// isolated-margin account.
type AssetBalance struct {
	Asset    string
	Free     decimal.Decimal
	Locked   decimal.Decimal
	Borrowed decimal.Decimal
}

// Port is the capability interface every exchange adapter implements.
// Every method is bounded by ctx's deadline (spec §4.2 default 5s budget).
type Port interface {
	BestBid(ctx context.Context, symbol string) (decimal.Decimal, error)
	BestAsk(ctx context.Context, symbol string) (decimal.Decimal, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)

	GetAvailableQuoteBalance(ctx context.Context, tenantID int64, quoteAsset string, acct AccountType, symbol string) (decimal.Decimal, error)

	PlaceMarket(ctx context.Context, symbol string, side Side, qty decimal.Decimal) (OrderResult, error)
	PlaceLimit(ctx context.Context, symbol string, side Side, qty, price decimal.Decimal) (OrderResult, error)
	PlaceStopLoss(ctx context.Context, symbol string, side Side, qty, stopPrice decimal.Decimal) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	Transfer(ctx context.Context, direction TransferDirection, asset string, amount decimal.Decimal, symbol string) error
	MarginAccount(ctx context.Context, symbol string) (MarginAccount, error)
	GetMarginLevel(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// ErrorKind discriminates the closed set of ExchangeError subtypes named in
// spec §4.2 — a Go type hierarchy expressed as an enum tag, not a dynamic
// class tree (spec §9).
type ErrorKind int

const (
	KindTimeout ErrorKind = iota
	KindConnection
	KindAuth
	KindInsufficientFunds
	KindFilterFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "TimeoutError"
	case KindConnection:
		return "ConnectionError"
	case KindAuth:
		return "AuthError"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindFilterFailure:
		return "FilterFailure"
	default:
		return "UnknownExchangeError"
	}
}

// Error is the single wrapped error type returned by every Port method.
type Error struct {
	Kind    ErrorKind
	Op      string
	Symbol  string
	Err     error
}

func (e *Error) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("exchange: %s %s(%s): %v", e.Kind, e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("exchange: %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether the error is the kind C6/C11/C13 should treat
// as recoverable (timeout/connection) rather than a permanent failure that
// must surface to the caller unmodified (spec §7).
func IsTransient(err error) bool {
	var xe *Error
	if !asError(err, &xe) {
		return false
	}
	return xe.Kind == KindTimeout || xe.Kind == KindConnection
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
