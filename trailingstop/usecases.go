package trailingstop

import (
	"context"
	"fmt"

	"tradingcore/exchange"
	"tradingcore/metrics"
)

// StateRepository loads and persists the TrailingStopState behind a
// position, and serializes per-position adjustment (spec §4.13: "adjustments
// for the same position_id MUST be serialized").
type StateRepository interface {
	GetState(ctx context.Context, positionID string) (TrailingStopState, error)
	SaveAdjustment(ctx context.Context, adj StopAdjustment, newStop TrailingStopState) error
	HasAdjustmentToken(ctx context.Context, token string) (bool, error)
	WithPositionLock(ctx context.Context, positionID string, fn func(ctx context.Context) error) error
}

// PriceSource gives the closing price used to evaluate an adjustment: bid
// for a LONG (what it would sell into), ask for a SHORT (what it would buy
// back at) - spec §4.13, grounded on use_cases.py's get_closing_price.
type PriceSource interface {
	BestBid(ctx context.Context, symbol string) (float64, error)
	BestAsk(ctx context.Context, symbol string) (float64, error)
}

// EventPublisher notifies the audit bus of a completed adjustment.
type EventPublisher interface {
	PublishAdjustment(ctx context.Context, adj StopAdjustment)
}

// AdjustTrailingStopUseCase runs one position through the hand-span
// algorithm end to end (spec §4.13).
type AdjustTrailingStopUseCase struct {
	States StateRepository
	Events EventPublisher
	Calc   HandSpanCalculator
}

// Outcome is what AdjustTrailingStopUseCase.Execute returns: either an
// applied StopAdjustment, or a reason it was a no-op.
type Outcome struct {
	Adjustment StopAdjustment
	Applied    bool
	SkipReason string
}

// Execute loads state, computes the candidate adjustment, and persists it
// unless it is a no-op or a duplicate (idempotency token already seen).
func (uc AdjustTrailingStopUseCase) Execute(ctx context.Context, positionID string, symbol string, token string) (Outcome, error) {
	var outcome Outcome

	err := uc.States.WithPositionLock(ctx, positionID, func(ctx context.Context) error {
		state, err := uc.States.GetState(ctx, positionID)
		if err != nil {
			return fmt.Errorf("trailingstop: load state: %w", err)
		}

		if err := state.ValidateState(); err != nil {
			return err
		}

		adj := uc.Calc.Calculate(state)
		if !adj.IsAdjusted {
			outcome = Outcome{Adjustment: adj, Applied: false, SkipReason: "no adjustment"}
			return nil
		}

		if token == "" {
			token = fmt.Sprintf("%s:adjust:auto", positionID)
		}
		adj.AdjustmentToken = token

		seen, err := uc.States.HasAdjustmentToken(ctx, token)
		if err != nil {
			return fmt.Errorf("trailingstop: idempotency check: %w", err)
		}
		if seen {
			metrics.RecordTrailingStopDuplicate(positionID)
			outcome = Outcome{Adjustment: adj, Applied: false, SkipReason: "duplicate adjustment (idempotency)"}
			return nil
		}

		next := state
		next.CurrentStop = adj.NewStop

		if err := uc.States.SaveAdjustment(ctx, adj, next); err != nil {
			return fmt.Errorf("trailingstop: save: %w", err)
		}
		if uc.Events != nil {
			uc.Events.PublishAdjustment(ctx, adj)
		}
		metrics.RecordTrailingStopAdjustment(string(adj.Reason))
		outcome = Outcome{Adjustment: adj, Applied: true}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// ClosingPrice resolves the price a position would currently exit at: bid
// for a LONG, ask for a SHORT (spec §4.13).
func ClosingPrice(ctx context.Context, src PriceSource, symbol string, side exchange.Side) (float64, error) {
	if side == exchange.Buy {
		return src.BestBid(ctx, symbol)
	}
	return src.BestAsk(ctx, symbol)
}

// AdjustmentFilter enumerates positions eligible for this tick's sweep
// (spec §4.13: "adjust-all use case enumerates eligible positions via the
// injected AdjustmentFilter").
type AdjustmentFilter interface {
	EligiblePositions(ctx context.Context) ([]EligiblePosition, error)
}

// EligiblePosition is one candidate for AdjustAllTrailingStopsUseCase.
type EligiblePosition struct {
	PositionID string
	Symbol     string
}

// AdjustAllTrailingStopsUseCase runs AdjustTrailingStopUseCase across every
// eligible position; a failure in one never aborts the batch (spec §4.13).
type AdjustAllTrailingStopsUseCase struct {
	Filter AdjustmentFilter
	Single AdjustTrailingStopUseCase
}

// BatchResult is one position's outcome within an adjust-all sweep.
type BatchResult struct {
	PositionID string
	Outcome    Outcome
	Err        error
}

// ExecuteAll runs the sweep, collecting one BatchResult per eligible
// position regardless of individual failures.
func (uc AdjustAllTrailingStopsUseCase) ExecuteAll(ctx context.Context) []BatchResult {
	positions, err := uc.Filter.EligiblePositions(ctx)
	if err != nil {
		return []BatchResult{{Err: fmt.Errorf("trailingstop: enumerate eligible positions: %w", err)}}
	}

	results := make([]BatchResult, 0, len(positions))
	for _, p := range positions {
		outcome, err := uc.Single.Execute(ctx, p.PositionID, p.Symbol, "")
		results = append(results, BatchResult{PositionID: p.PositionID, Outcome: outcome, Err: err})
	}
	return results
}
