// Package execution implements the Execution Framework (spec §4.11, C11):
// it re-runs the guard suite against a VALIDATED TradingIntent and, in LIVE
// mode, drives the exchange port through market-entry then stop-loss, with
// the stop-loss-after-market-success failure path surfaced as a hard alert
// rather than rolled back.
package execution

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/metrics"
	"tradingcore/riskguard"
)

// Mode mirrors riskguard.Mode (spec §4.11: "ExecutionMode ∈ {DRY_RUN, LIVE},
// DRY_RUN is the default everywhere").
type Mode = riskguard.Mode

const (
	ModeDryRun = riskguard.ModeDryRun
	ModeLive   = riskguard.ModeLive
)

// Status is the outcome of an execution attempt (spec §4.11).
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusBlocked Status = "BLOCKED"
)

// ActionType names one exchange-facing step recorded in a Result.
type ActionType string

const (
	ActionMarketBuy     ActionType = "MARKET_BUY"
	ActionMarketSell    ActionType = "MARKET_SELL"
	ActionStopLoss      ActionType = "STOP_LOSS"
	ActionStopLossFailed ActionType = "STOP_LOSS_FAILED"
)

// Action is one recorded step of an execution attempt (spec §4.11 "actions[]").
type Action struct {
	Type    ActionType
	OrderID string
	Price   decimal.Decimal
	Qty     decimal.Decimal
	Error   string
}

// Result is the ExecutionResult aggregate (spec §4.11).
type Result struct {
	Status     Status
	Mode       Mode
	Guards     []riskguard.Guard
	Actions    []Action
	Metadata   map[string]string
	ExecutedAt time.Time
	Error      string
}

// Request is everything Execute needs for one intent (spec §4.11 sequence).
type Request struct {
	Mode       Mode
	Symbol     string
	Side       exchange.Side
	Quantity   decimal.Decimal
	StopPrice  decimal.Decimal
	GuardCtx   riskguard.Context
	// OpeningPosition distinguishes an entry (requires a stop, spec §4.11.4:
	// "shorts (opening) require a stop") from a closing trade (does not:
	// "closing a long does not - the original stop is being canceled").
	OpeningPosition bool
}

// Auditor records every action taken, with the exchange order ID when
// available (spec §4.11: "Every action is appended to the Audit log (C15)").
type Auditor interface {
	RecordAction(ctx context.Context, symbol string, a Action)
}

// Engine runs the C11 execution sequence against an exchange.Port.
type Engine struct {
	Exchange exchange.Port
	Audit    Auditor
	Now      func() time.Time
}

// Execute runs guards, then (DRY_RUN) simulates or (LIVE) places the market
// order followed by the stop-loss, per spec §4.11 steps 1-4.
func (e Engine) Execute(ctx context.Context, req Request) (result Result) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	started := now()
	defer func() {
		metrics.RecordExecution(string(req.Mode), string(result.Status), now().Sub(started).Seconds())
	}()

	guards := riskguard.RunAll(req.GuardCtx)
	for _, g := range guards {
		metrics.RecordGuardEvaluation(g.Name, g.Passed)
	}
	if !riskguard.AllPassed(guards) {
		metrics.RecordGuardBlocked(strconv.FormatInt(req.GuardCtx.TenantID, 10), req.Symbol)
		return Result{
			Status:     StatusBlocked,
			Mode:       req.Mode,
			Guards:     guards,
			ExecutedAt: now(),
		}
	}

	closingSide := oppositeSide(req.Side)

	if req.Mode == ModeDryRun {
		actions := []Action{
			{Type: entryActionType(req.Side), Price: req.GuardCtx.EntryPrice, Qty: req.Quantity},
		}
		if req.OpeningPosition {
			actions = append(actions, Action{Type: ActionStopLoss, Price: req.StopPrice, Qty: req.Quantity})
		}
		e.record(ctx, req.Symbol, actions)
		return Result{
			Status:     StatusSuccess,
			Mode:       req.Mode,
			Guards:     guards,
			Actions:    actions,
			ExecutedAt: now(),
		}
	}

	entryResult, err := e.placeEntry(ctx, req)
	if err != nil {
		action := Action{Type: entryActionType(req.Side), Error: err.Error()}
		e.record(ctx, req.Symbol, []Action{action})
		return Result{
			Status:     StatusFailed,
			Mode:       req.Mode,
			Guards:     guards,
			Actions:    []Action{action},
			ExecutedAt: now(),
			Error:      err.Error(),
		}
	}

	actions := []Action{{
		Type:    entryActionType(req.Side),
		OrderID: entryResult.OrderID,
		Price:   entryResult.Price,
		Qty:     entryResult.Quantity,
	}}

	if !req.OpeningPosition {
		e.record(ctx, req.Symbol, actions)
		return Result{Status: StatusSuccess, Mode: req.Mode, Guards: guards, Actions: actions, ExecutedAt: now()}
	}

	stopResult, stopErr := e.Exchange.PlaceStopLoss(ctx, req.Symbol, closingSide, req.Quantity, req.StopPrice)
	metadata := map[string]string{}
	if stopErr != nil {
		actions = append(actions, Action{Type: ActionStopLossFailed, Error: stopErr.Error()})
		metadata["warning"] = "Stop-loss order failed - set manually!"
		metrics.RecordStopLossFailure(req.Symbol)
		e.record(ctx, req.Symbol, actions)
		return Result{
			Status:     StatusSuccess,
			Mode:       req.Mode,
			Guards:     guards,
			Actions:    actions,
			Metadata:   metadata,
			ExecutedAt: now(),
		}
	}

	actions = append(actions, Action{Type: ActionStopLoss, OrderID: stopResult.OrderID, Price: req.StopPrice, Qty: req.Quantity})
	e.record(ctx, req.Symbol, actions)

	return Result{Status: StatusSuccess, Mode: req.Mode, Guards: guards, Actions: actions, ExecutedAt: now()}
}

func (e Engine) placeEntry(ctx context.Context, req Request) (exchange.OrderResult, error) {
	return e.Exchange.PlaceMarket(ctx, req.Symbol, req.Side, req.Quantity)
}

func (e Engine) record(ctx context.Context, symbol string, actions []Action) {
	if e.Audit == nil {
		return
	}
	for _, a := range actions {
		e.Audit.RecordAction(ctx, symbol, a)
	}
}

func entryActionType(side exchange.Side) ActionType {
	if side == exchange.Buy {
		return ActionMarketBuy
	}
	return ActionMarketSell
}

func oppositeSide(side exchange.Side) exchange.Side {
	if side == exchange.Buy {
		return exchange.Sell
	}
	return exchange.Buy
}
