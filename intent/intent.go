// Package intent implements the Trading Intent Service (spec §4.10, C10):
// the PLAN step of the PLAN→VALIDATE→EXECUTE workflow. TradingIntent is the
// aggregate root; CreateTradingIntentUseCase validates a command, derives
// position sizing and risk, and persists a PENDING intent.
package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/money"
)

// Status is the TradingIntent lifecycle (spec §3: "transitions only in the
// order PENDING→VALIDATED→EXECUTED (terminal) or →FAILED/→CANCELLED from any
// non-terminal state").
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusValidated Status = "VALIDATED"
	StatusExecuted  Status = "EXECUTED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

var ErrInvalidTransition = errors.New("intent: invalid state transition")

const riskRulePercent = 1.0

// TradingIntent is the aggregate root of the PLAN→EXECUTE state machine
// (spec §3).
type TradingIntent struct {
	IntentID   string
	TenantID   int64
	SymbolID   int64
	StrategyID int64

	Side       exchange.Side
	Status     Status
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	StopPrice  decimal.Decimal
	TargetPrice *decimal.Decimal

	Capital     decimal.Decimal
	RiskAmount  decimal.Decimal
	RiskPercent decimal.Decimal

	Regime     string
	Confidence float64
	Reason     string

	ValidatedAt      *int64
	ExecutedAt       *int64
	ValidationResult map[string]any
	ExecutionResult  map[string]any
	ErrorMessage     string
}

// Validate transitions PENDING->VALIDATED (spec §4.10 state diagram).
func (t *TradingIntent) Validate(result map[string]any, validatedAtMillis int64) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: cannot validate from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusValidated
	t.ValidationResult = result
	t.ValidatedAt = &validatedAtMillis
	return nil
}

// Execute transitions VALIDATED->EXECUTED (spec §3: "any attempt to execute
// a non-VALIDATED Intent fails").
func (t *TradingIntent) Execute(result map[string]any, executedAtMillis int64) error {
	if t.Status != StatusValidated {
		return fmt.Errorf("%w: cannot execute from %s", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusExecuted
	t.ExecutionResult = result
	t.ExecutedAt = &executedAtMillis
	return nil
}

// Fail moves a non-terminal intent to FAILED (spec §3: "from any non-terminal
// state").
func (t *TradingIntent) Fail(reason string) error {
	if t.isTerminal() {
		return fmt.Errorf("%w: cannot fail a terminal intent (%s)", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusFailed
	t.ErrorMessage = reason
	return nil
}

// Cancel moves a non-terminal intent to CANCELLED; cancelling an already
// CANCELLED intent is idempotent (spec §5, mirroring Operation cancellation).
func (t *TradingIntent) Cancel() error {
	if t.Status == StatusCancelled {
		return nil
	}
	if t.isTerminal() {
		return fmt.Errorf("%w: cannot cancel a terminal intent (%s)", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusCancelled
	return nil
}

func (t *TradingIntent) isTerminal() bool {
	return t.Status == StatusExecuted || t.Status == StatusFailed || t.Status == StatusCancelled
}

// Command is the manual-entry creation payload (spec §4.10, grounded on the
// original CreateTradingIntentCommand). Quantity is optional: when set (the
// auto-pipeline path) it is trusted as-is to avoid preview/persist drift
// (spec §4.10: "accepts a pre-computed quantity from the auto pipeline").
type Command struct {
	TenantID    int64
	SymbolID    int64
	StrategyID  int64
	Side        exchange.Side
	EntryPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	Capital     decimal.Decimal
	TargetPrice *decimal.Decimal
	Regime      string
	Confidence  float64
	Reason      string
	Quantity    *decimal.Decimal
}

// SymbolRepository resolves and scopes a symbol by tenant.
type SymbolRepository interface {
	GetByID(ctx context.Context, symbolID, tenantID int64) (Symbol, error)
}

// Symbol is the minimal projection CreateTradingIntentUseCase needs.
type Symbol struct {
	ID     int64
	Ticker string
}

// StrategyRepository resolves and scopes a strategy by tenant.
type StrategyRepository interface {
	GetByID(ctx context.Context, strategyID, tenantID int64) (Strategy, error)
}

// Strategy is the minimal projection CreateTradingIntentUseCase needs.
type Strategy struct {
	ID   int64
	Name string
}

// Repository persists and retrieves TradingIntent aggregates.
type Repository interface {
	Save(ctx context.Context, i *TradingIntent) error
	GetByIntentID(ctx context.Context, intentID string, tenantID int64) (*TradingIntent, error)
	ListByTenant(ctx context.Context, tenantID int64, filter ListFilter) ([]*TradingIntent, error)
}

// ListFilter narrows ListByTenant (spec §6 list endpoint query params).
type ListFilter struct {
	Status     *Status
	StrategyID *int64
	SymbolID   *int64
	Limit      int
	Offset     int
}

// CreateTradingIntentUseCase is the PLAN step (spec §4.10).
type CreateTradingIntentUseCase struct {
	Symbols    SymbolRepository
	Strategies StrategyRepository
	Intents    Repository
}

// Execute validates the command, loads the tenant-scoped symbol/strategy,
// computes position size and risk (or trusts a supplied quantity), and
// persists a PENDING intent (spec §4.10 step list).
func (uc CreateTradingIntentUseCase) Execute(ctx context.Context, cmd Command) (*TradingIntent, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	if _, err := uc.Symbols.GetByID(ctx, cmd.SymbolID, cmd.TenantID); err != nil {
		return nil, fmt.Errorf("intent: symbol lookup: %w", err)
	}
	if _, err := uc.Strategies.GetByID(ctx, cmd.StrategyID, cmd.TenantID); err != nil {
		return nil, fmt.Errorf("intent: strategy lookup: %w", err)
	}

	var quantity, riskAmount, riskPercent decimal.Decimal
	stopDistance := cmd.EntryPrice.Sub(cmd.StopPrice).Abs()

	if cmd.Quantity != nil {
		quantity = money.Quantize8(*cmd.Quantity)
		riskAmount = quantity.Mul(stopDistance).Round(8)
	} else {
		riskAmount = money.PercentOf(cmd.Capital, decimal.NewFromFloat(riskRulePercent)).Round(8)
		quantity = money.Quantize8(riskAmount.Div(stopDistance))
	}
	riskPercent = stopDistance.Div(cmd.EntryPrice).Mul(decimal.NewFromInt(100)).Round(2)

	intentEntity := &TradingIntent{
		IntentID:    uuid.NewString(),
		TenantID:    cmd.TenantID,
		SymbolID:    cmd.SymbolID,
		StrategyID:  cmd.StrategyID,
		Side:        cmd.Side,
		Status:      StatusPending,
		Quantity:    quantity,
		EntryPrice:  cmd.EntryPrice,
		StopPrice:   cmd.StopPrice,
		TargetPrice: cmd.TargetPrice,
		Capital:     cmd.Capital.Round(8),
		RiskAmount:  riskAmount,
		RiskPercent: riskPercent,
		Regime:      cmd.Regime,
		Confidence:  cmd.Confidence,
		Reason:      cmd.Reason,
	}

	if err := uc.Intents.Save(ctx, intentEntity); err != nil {
		return nil, fmt.Errorf("intent: save: %w", err)
	}
	return intentEntity, nil
}

func validateCommand(cmd Command) error {
	if cmd.Side != exchange.Buy && cmd.Side != exchange.Sell {
		return fmt.Errorf("intent: invalid side %q, must be BUY or SELL", cmd.Side)
	}
	if cmd.Capital.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("intent: capital must be positive, got %s", cmd.Capital)
	}
	if cmd.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("intent: entry price must be positive, got %s", cmd.EntryPrice)
	}
	if cmd.StopPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("intent: stop price must be positive, got %s", cmd.StopPrice)
	}
	if cmd.EntryPrice.Equal(cmd.StopPrice) {
		return errors.New("intent: entry price and stop price cannot be equal")
	}
	if cmd.Side == exchange.Buy && cmd.StopPrice.GreaterThanOrEqual(cmd.EntryPrice) {
		return errors.New("intent: for BUY orders, stop price must be below entry price")
	}
	if cmd.Side == exchange.Sell && cmd.StopPrice.LessThanOrEqual(cmd.EntryPrice) {
		return errors.New("intent: for SELL orders, stop price must be above entry price")
	}
	if cmd.Confidence < 0 || cmd.Confidence > 1 {
		return fmt.Errorf("intent: confidence must be between 0 and 1, got %v", cmd.Confidence)
	}
	return nil
}
