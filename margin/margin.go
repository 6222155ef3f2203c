// Package margin implements the Margin Sub-Core (spec §4.14, C14): opening
// and closing an isolated-margin position as a transfer->order->stop-loss
// (or reverse) sequence, plus independent periodic margin-level monitoring.
package margin

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/metrics"
)

// Config carries the leverage bound and alert thresholds (spec §4.14).
type Config struct {
	MaxLeverage          decimal.Decimal
	WarningMarginLevel   decimal.Decimal
	LiquidationMarginLevel decimal.Decimal
}

// DefaultConfig is a conservative starting point; composition roots
// override per tenant/venue.
func DefaultConfig() Config {
	return Config{
		MaxLeverage:            decimal.NewFromInt(5),
		WarningMarginLevel:     decimal.NewFromFloat(1.5),
		LiquidationMarginLevel: decimal.NewFromFloat(1.1),
	}
}

// OpenRequest describes a margin entry (spec §4.14: "transfer quote ->
// isolated margin; place market order with the borrowed quote; place
// stop-loss").
type OpenRequest struct {
	Symbol     string
	QuoteAsset string
	Side       exchange.Side
	Quantity   decimal.Decimal
	StopPrice  decimal.Decimal
	TransferAmount decimal.Decimal
}

// OpenResult mirrors execution.Result's shape closely enough to share the
// STOP_LOSS_FAILED alert convention without importing the execution package
// (margin opening is its own sequence, not a detour through C11).
type OpenResult struct {
	Success         bool
	MarketOrder     exchange.OrderResult
	StopOrder       *exchange.OrderResult
	StopLossFailed  bool
	Err             error
}

// Open runs the three-step margin-entry sequence. A stop-loss failure after
// the market order fills does not roll back the entry — it is the same hard
// operational alert as spot (spec §4.14).
func Open(ctx context.Context, port exchange.Port, req OpenRequest) OpenResult {
	if err := port.Transfer(ctx, exchange.TransferToMargin, req.QuoteAsset, req.TransferAmount, req.Symbol); err != nil {
		return OpenResult{Err: fmt.Errorf("margin: transfer to margin: %w", err)}
	}

	order, err := port.PlaceMarket(ctx, req.Symbol, req.Side, req.Quantity)
	if err != nil {
		return OpenResult{Err: fmt.Errorf("margin: place market: %w", err)}
	}

	closingSide := exchange.Sell
	if req.Side == exchange.Sell {
		closingSide = exchange.Buy
	}
	stopOrder, stopErr := port.PlaceStopLoss(ctx, req.Symbol, closingSide, req.Quantity, req.StopPrice)
	if stopErr != nil {
		return OpenResult{Success: true, MarketOrder: order, StopLossFailed: true}
	}

	return OpenResult{Success: true, MarketOrder: order, StopOrder: &stopOrder}
}

// CloseRequest describes unwinding a margin position (spec §4.14: "place
// closing order; repay loan; transfer residual back to spot").
type CloseRequest struct {
	Symbol         string
	QuoteAsset     string
	ClosingSide    exchange.Side
	Quantity       decimal.Decimal
	ResidualAmount decimal.Decimal
}

// CloseResult is the outcome of Close.
type CloseResult struct {
	Success     bool
	ClosingOrder exchange.OrderResult
	Err         error
}

// Close places the closing order then transfers the residual back to spot.
// Loan repayment happens on the venue side of the closing trade; this
// sequence only owns what the Port surface exposes.
func Close(ctx context.Context, port exchange.Port, req CloseRequest) CloseResult {
	order, err := port.PlaceMarket(ctx, req.Symbol, req.ClosingSide, req.Quantity)
	if err != nil {
		return CloseResult{Err: fmt.Errorf("margin: place closing order: %w", err)}
	}

	if req.ResidualAmount.GreaterThan(decimal.Zero) {
		if err := port.Transfer(ctx, exchange.TransferToSpot, req.QuoteAsset, req.ResidualAmount, req.Symbol); err != nil {
			return CloseResult{Success: true, ClosingOrder: order, Err: fmt.Errorf("margin: transfer residual to spot: %w", err)}
		}
	}

	return CloseResult{Success: true, ClosingOrder: order}
}

// AlertLevel is the severity of a margin-level check.
type AlertLevel string

const (
	AlertNone        AlertLevel = "NONE"
	AlertWarning     AlertLevel = "WARNING"
	AlertLiquidation AlertLevel = "LIQUIDATION"
)

// Alert is one position's margin-level reading (spec §4.14: "below a warning
// threshold emit an alert; below a liquidation threshold trigger a
// defensive close").
type Alert struct {
	Symbol      string
	MarginLevel decimal.Decimal
	Level       AlertLevel
	CheckedAt   time.Time
}

// ClosablePort is the subset of exchange.Port the monitor needs to execute a
// defensive close when margin level breaches the liquidation threshold.
type ClosablePort interface {
	GetMarginLevel(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceMarket(ctx context.Context, symbol string, side exchange.Side, qty decimal.Decimal) (exchange.OrderResult, error)
}

// Monitor is the independent periodic task that checks margin levels across
// open positions (spec §4.14).
type Monitor struct {
	Port   ClosablePort
	Config Config
	Now    func() time.Time
}

// Position is the minimal shape Monitor.Check needs from an open margin
// operation to trigger a defensive close.
type Position struct {
	Symbol      string
	ClosingSide exchange.Side
	Quantity    decimal.Decimal
}

// Check reads the live margin level for one position and, on breach of the
// liquidation threshold, places a defensive closing market order.
func (m Monitor) Check(ctx context.Context, pos Position) (Alert, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	level, err := m.Port.GetMarginLevel(ctx, pos.Symbol)
	if err != nil {
		return Alert{}, fmt.Errorf("margin: get margin level: %w", err)
	}

	alert := Alert{Symbol: pos.Symbol, MarginLevel: level, Level: AlertNone, CheckedAt: now()}
	levelFloat, _ := level.Float64()
	metrics.UpdateMarginLevel(pos.Symbol, levelFloat)

	switch {
	case level.LessThanOrEqual(m.Config.LiquidationMarginLevel):
		alert.Level = AlertLiquidation
		if _, err := m.Port.PlaceMarket(ctx, pos.Symbol, pos.ClosingSide, pos.Quantity); err != nil {
			return alert, fmt.Errorf("margin: defensive close failed: %w", err)
		}
		metrics.RecordMarginLiquidation(pos.Symbol)
	case level.LessThanOrEqual(m.Config.WarningMarginLevel):
		alert.Level = AlertWarning
	}

	return alert, nil
}
