// Package autoparam implements the Auto-Parameter Pipeline (spec §4.6, C6):
// given only (symbol, strategy, tenant_id) it fuses the exchange port,
// market data, the technical stop calculator and position sizing into a
// complete trade proposal, with safe fallbacks instead of exceptions on a
// balance-fetch failure.
package autoparam

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/sizing"
	"tradingcore/stopcalc"
)

// MarketBias mirrors a strategy's directional config (spec §4.6 step 1).
type MarketBias string

const (
	BiasBullish MarketBias = "BULLISH"
	BiasBearish MarketBias = "BEARISH"
	BiasUnknown MarketBias = ""
)

// CapitalMode selects how the pipeline sizes capital (spec §3).
type CapitalMode string

const (
	CapitalFixed   CapitalMode = "fixed"
	CapitalBalance CapitalMode = "balance"
)

// CapitalSource records why the proposal's capital came out the way it did
// (spec §4.6 step 2).
type CapitalSource string

const (
	SourceFixed    CapitalSource = "FIXED"
	SourceBalance  CapitalSource = "BALANCE"
	SourceFallback CapitalSource = "FALLBACK"
)

const maxCapital = 100_000
const minCapitalWarningThreshold = 10

// StrategyConfig is the subset of a Strategy the pipeline reads (spec §3/§4.6).
type StrategyConfig struct {
	MarketBias           MarketBias
	DefaultSide          exchange.Side
	CapitalMode          CapitalMode
	CapitalFixed         decimal.Decimal
	CapitalBalancePercent decimal.Decimal
	Timeframe            string
	QuoteAsset           string
}

// Proposal is the C6 output bundle (spec §4.6 step 6).
type Proposal struct {
	Side           exchange.Side
	SideSource     string
	EntryPrice     decimal.Decimal
	StopPrice      decimal.Decimal
	Capital        decimal.Decimal
	CapitalUsed    decimal.Decimal
	CapitalSource  CapitalSource
	Quantity       decimal.Decimal
	RiskAmount     decimal.Decimal
	PositionValue  decimal.Decimal
	Timeframe      string
	MethodUsed     stopcalc.Method
	Confidence     stopcalc.Confidence
	ConfidenceFloat float64
	Warnings       []string
	StopResult     stopcalc.Result
}

// MarketData is the subset of capability the pipeline needs to price entry
// and pull recent candles.
type MarketData interface {
	BestBid(ctx context.Context, symbol string) (decimal.Decimal, error)
	BestAsk(ctx context.Context, symbol string) (decimal.Decimal, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error)
}

// Pipeline runs the C6 sequence.
type Pipeline struct {
	Exchange exchange.Port
	Market   MarketData
}

// Build produces a complete trade proposal. It never raises on a
// balance-fetch failure (falls back instead); it does raise on malformed
// input or impossible arithmetic such as entry == stop (spec §4.6 contract).
func (p Pipeline) Build(ctx context.Context, tenantID int64, symbol string, strategy StrategyConfig, candleWindow int) (Proposal, error) {
	side, sideSource := resolveSide(strategy)

	entry, err := resolveEntryPrice(ctx, p.Market, symbol, side)
	if err != nil {
		return Proposal{}, fmt.Errorf("autoparam: resolve entry price: %w", err)
	}

	capital, capitalSource, warnings := p.resolveCapital(ctx, tenantID, symbol, strategy)

	candles, err := p.Market.Klines(ctx, symbol, strategy.Timeframe, candleWindow)
	if err != nil {
		return Proposal{}, fmt.Errorf("autoparam: fetch candles: %w", err)
	}

	stopResult := stopcalc.Calculate(candles, entry, side, strategy.Timeframe, stopcalc.Params{})
	warnings = append(warnings, stopResult.Warnings...)

	if entry.Equal(stopResult.StopPrice) {
		return Proposal{}, fmt.Errorf("autoparam: computed stop equals entry price (%s), cannot size a position", entry)
	}

	sizeResult := sizing.Size(capital, entry, stopResult.StopPrice, decimal.Zero)
	if sizeResult.Failed {
		return Proposal{}, fmt.Errorf("autoparam: sizing failed: %s", sizeResult.FailReason)
	}

	confidence, confidenceFloat := mapConfidence(stopResult.Confidence)

	return Proposal{
		Side:            side,
		SideSource:      sideSource,
		EntryPrice:      entry,
		StopPrice:       stopResult.StopPrice,
		Capital:         capital,
		CapitalUsed:     sizeResult.PositionValue,
		CapitalSource:   capitalSource,
		Quantity:        sizeResult.Quantity,
		RiskAmount:      sizeResult.RiskAmount,
		PositionValue:   sizeResult.PositionValue,
		Timeframe:       strategy.Timeframe,
		MethodUsed:      stopResult.MethodUsed,
		Confidence:      confidence,
		ConfidenceFloat: confidenceFloat,
		Warnings:        warnings,
		StopResult:      stopResult,
	}, nil
}

func resolveSide(strategy StrategyConfig) (exchange.Side, string) {
	switch strategy.MarketBias {
	case BiasBullish:
		return exchange.Buy, "market_bias"
	case BiasBearish:
		return exchange.Sell, "market_bias"
	}
	if strategy.DefaultSide == exchange.Buy || strategy.DefaultSide == exchange.Sell {
		return strategy.DefaultSide, "strategy_default_side"
	}
	return exchange.Buy, "default"
}

func resolveEntryPrice(ctx context.Context, market MarketData, symbol string, side exchange.Side) (decimal.Decimal, error) {
	if side == exchange.Buy {
		return market.BestAsk(ctx, symbol)
	}
	return market.BestBid(ctx, symbol)
}

// resolveCapital implements spec §4.6 step 2, including the hard
// MAX_CAPITAL ceiling and the non-raising low-capital warning.
func (p Pipeline) resolveCapital(ctx context.Context, tenantID int64, symbol string, strategy StrategyConfig) (decimal.Decimal, CapitalSource, []string) {
	var warnings []string
	var capital decimal.Decimal
	var source CapitalSource

	if strategy.CapitalMode == CapitalBalance {
		available, err := p.Exchange.GetAvailableQuoteBalance(ctx, tenantID, strategy.QuoteAsset, exchange.AccountSpot, symbol)
		if err != nil || available.LessThanOrEqual(decimal.Zero) {
			capital = strategy.CapitalFixed
			source = SourceFallback
			warnings = append(warnings, "balance fetch failed or non-positive, falling back to capital_fixed")
		} else {
			pct := clampPercent(strategy.CapitalBalancePercent)
			if !pct.Equal(strategy.CapitalBalancePercent) {
				warnings = append(warnings, fmt.Sprintf("capital_balance_percent %s out of [0, 100], clamped to %s", strategy.CapitalBalancePercent.String(), pct.String()))
			}
			capital = available.Mul(pct).Div(decimal.NewFromInt(100))
			source = SourceBalance
		}
	} else {
		capital = strategy.CapitalFixed
		source = SourceFixed
	}

	cap := decimal.NewFromInt(maxCapital)
	if capital.GreaterThan(cap) {
		capital = cap
	}
	if capital.LessThan(decimal.NewFromInt(minCapitalWarningThreshold)) {
		warnings = append(warnings, fmt.Sprintf("capital %s is below the practical minimum notional; execution will likely fail", capital))
	}

	return capital, source, warnings
}

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return pct
}

func mapConfidence(c stopcalc.Confidence) (stopcalc.Confidence, float64) {
	switch c {
	case stopcalc.ConfidenceHigh:
		return c, 0.8
	case stopcalc.ConfidenceMedium:
		return c, 0.6
	case stopcalc.ConfidenceLow:
		return c, 0.4
	default:
		return stopcalc.ConfidenceLow, 0.4
	}
}
