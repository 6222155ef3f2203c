// Package operation implements the Operation Lifecycle (spec §4.12, C12):
// the live-position entity, its idempotent cancellation gate, and the
// unified spot+margin active-position projection.
package operation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
)

// Status is the Operation lifecycle (spec §4.12).
type Status string

const (
	StatusPlanned   Status = "PLANNED"
	StatusActive    Status = "ACTIVE"
	StatusClosed    Status = "CLOSED"
	StatusCancelled Status = "CANCELLED"
)

// ErrNotFound signals a missing-or-foreign-tenant operation; both cases
// return the identical error so a 404 never leaks tenant existence (spec
// §4.12: "tenant isolation returns the same error as not-found").
var ErrNotFound = errors.New("operation: not found")

// ErrConflict signals a cancel attempt against a terminal, non-cancellable
// status (spec §4.12: "if status not in {PLANNED, ACTIVE}: return conflict").
type ErrConflict struct {
	CurrentStatus Status
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("operation: cannot cancel from status %s", e.CurrentStatus)
}

// Operation is a live or completed position (spec §3).
type Operation struct {
	ID       int64
	TenantID int64
	Symbol   string
	Strategy string
	Side     exchange.Side
	Status   Status

	StopPrice   decimal.Decimal
	TargetPrice *decimal.Decimal

	EntryOrderIDs []string
	ExitOrderIDs  []string

	EntryPrice decimal.Decimal // weighted average
	Quantity   decimal.Decimal // total filled

	IsMargin bool
	Leverage decimal.Decimal

	OpenedAt time.Time
	ClosedAt *time.Time
}

// Repository persists Operations, tenant-scoped on every read.
type Repository interface {
	GetByIDForTenant(ctx context.Context, id, tenantID int64) (*Operation, error)
	Save(ctx context.Context, op *Operation) error
	ListActiveByTenant(ctx context.Context, tenantID int64) ([]*Operation, error)
}

// Cancel implements Gate 6/7 (spec §4.12): fetch tenant-scoped, no-op on an
// already-CANCELLED operation, conflict on any other terminal status,
// otherwise flip atomically.
func Cancel(ctx context.Context, repo Repository, id, tenantID int64) (*Operation, error) {
	op, err := repo.GetByIDForTenant(ctx, id, tenantID)
	if err != nil {
		return nil, ErrNotFound
	}
	if op == nil {
		return nil, ErrNotFound
	}

	if op.Status == StatusCancelled {
		return op, nil
	}
	if op.Status != StatusPlanned && op.Status != StatusActive {
		return nil, &ErrConflict{CurrentStatus: op.Status}
	}

	op.Status = StatusCancelled
	if err := repo.Save(ctx, op); err != nil {
		return nil, fmt.Errorf("operation: save: %w", err)
	}
	return op, nil
}

// Card is the active-position projection (spec §4.12: "joins spot Operations
// + isolated-margin positions into a unified card view").
type Card struct {
	Operation        *Operation
	CurrentPrice     decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	DistanceToStop   decimal.Decimal
	DistanceToTarget *decimal.Decimal
	MarginLevel      *decimal.Decimal
}

// Project builds a Card for one Operation, querying the current price (and,
// for margin, the live margin level) from the exchange.
func Project(ctx context.Context, port exchange.Port, op *Operation) (Card, error) {
	var price decimal.Decimal
	var err error
	if op.Side == exchange.Buy {
		price, err = port.BestBid(ctx, op.Symbol) // mark a long against the price it would exit at
	} else {
		price, err = port.BestAsk(ctx, op.Symbol)
	}
	if err != nil {
		return Card{}, fmt.Errorf("operation: price lookup: %w", err)
	}

	card := Card{Operation: op, CurrentPrice: price}

	if op.Side == exchange.Buy {
		card.UnrealizedPnL = price.Sub(op.EntryPrice).Mul(op.Quantity)
		card.DistanceToStop = price.Sub(op.StopPrice)
	} else {
		card.UnrealizedPnL = op.EntryPrice.Sub(price).Mul(op.Quantity)
		card.DistanceToStop = op.StopPrice.Sub(price)
	}

	if op.TargetPrice != nil {
		var d decimal.Decimal
		if op.Side == exchange.Buy {
			d = op.TargetPrice.Sub(price)
		} else {
			d = price.Sub(*op.TargetPrice)
		}
		card.DistanceToTarget = &d
	}

	if op.IsMargin {
		level, err := port.GetMarginLevel(ctx, op.Symbol)
		if err != nil {
			return Card{}, fmt.Errorf("operation: margin level lookup: %w", err)
		}
		card.MarginLevel = &level
	}

	return card, nil
}

// ProjectPortfolio projects every active operation for a tenant into a
// unified card view (spec §4.12).
func ProjectPortfolio(ctx context.Context, port exchange.Port, repo Repository, tenantID int64) ([]Card, error) {
	ops, err := repo.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("operation: list active: %w", err)
	}
	cards := make([]Card, 0, len(ops))
	for _, op := range ops {
		c, err := Project(ctx, port, op)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}
