// Package stopcalc implements the Technical Stop Calculator (spec §4.4, C4):
// a pure function from an OHLCV window + entry + side to a stop price, using
// ranked support/resistance pivots with a fixed-percent fallback. Given
// identical input the output MUST be bit-identical (spec §4.4
// "Determinism") — there is no wall-clock or randomness anywhere in this
// package.
package stopcalc

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradingcore/exchange"
)

// Confidence mirrors the HIGH/MEDIUM/LOW ladder from spec §4.4.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Method is which branch of the algorithm produced the stop.
type Method string

const (
	MethodSupportResistance Method = "SUPPORT_RESISTANCE"
	MethodFallbackFixedPct  Method = "FALLBACK_FIXED_PCT"
)

// Level is one ranked support/resistance cluster.
type Level struct {
	Price    decimal.Decimal
	Touches  int
	Strength decimal.Decimal
}

// Result is the C4 output (spec §4.4).
type Result struct {
	StopPrice       decimal.Decimal
	EntryPrice      decimal.Decimal
	Side            exchange.Side
	Timeframe       string
	MethodUsed      Method
	Confidence      Confidence
	LevelsFound     []Level
	Warnings        []string
	StopDistance    decimal.Decimal
	StopDistancePct decimal.Decimal
}

// Params configures the calculation. LevelN and FallbackPercent default to the
// spec's values (2 and 2%) when zero.
type Params struct {
	LevelN          int
	FallbackPercent decimal.Decimal
	PivotWindow     int // k in the fractal rule, default 3
	ClusterTolerancePct decimal.Decimal // default 0.25%
}

func (p Params) withDefaults() Params {
	if p.LevelN <= 0 {
		p.LevelN = 2
	}
	if p.FallbackPercent.IsZero() {
		p.FallbackPercent = decimal.NewFromFloat(2.0)
	}
	if p.PivotWindow <= 0 {
		p.PivotWindow = 3
	}
	if p.ClusterTolerancePct.IsZero() {
		p.ClusterTolerancePct = decimal.NewFromFloat(0.25)
	}
	return p
}

type pivot struct {
	index int
	price decimal.Decimal
	high  bool
}

// Calculate runs the C4 algorithm (spec §4.4 steps 1-4). candles MUST be
// ordered oldest-first.
func Calculate(candles []exchange.Kline, entryPrice decimal.Decimal, side exchange.Side, timeframe string, p Params) Result {
	p = p.withDefaults()

	if len(candles) == 0 {
		return fallback(entryPrice, side, timeframe, p, ConfidenceLow, "empty candle window")
	}

	pivots := findPivots(candles, p.PivotWindow)
	clusters := clusterPivots(pivots, p.ClusterTolerancePct)

	var candidates []Level
	for _, c := range clusters {
		if side == exchange.Buy && c.Price.LessThan(entryPrice) {
			candidates = append(candidates, c)
		} else if side == exchange.Sell && c.Price.GreaterThan(entryPrice) {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Strength.GreaterThan(candidates[j].Strength)
	})

	if len(candidates) < p.LevelN {
		reason := "fewer than level_n qualifying support/resistance levels"
		return fallback(entryPrice, side, timeframe, p, downgrade(len(candidates), p.LevelN), reason, candidates...)
	}

	chosen := candidates[p.LevelN-1]
	// "just below"/"just above" that level: nudge by the cluster tolerance
	// so the stop sits outside the level itself rather than exactly on it.
	nudge := chosen.Price.Mul(p.ClusterTolerancePct).Div(decimal.NewFromInt(100))
	var stop decimal.Decimal
	if side == exchange.Buy {
		stop = chosen.Price.Sub(nudge)
	} else {
		stop = chosen.Price.Add(nudge)
	}

	dist := entryPrice.Sub(stop).Abs()
	distPct := decimal.Zero
	if !entryPrice.IsZero() {
		distPct = dist.Div(entryPrice).Mul(decimal.NewFromInt(100))
	}

	return Result{
		StopPrice:       stop,
		EntryPrice:      entryPrice,
		Side:            side,
		Timeframe:       timeframe,
		MethodUsed:      MethodSupportResistance,
		Confidence:      ConfidenceHigh,
		LevelsFound:     candidates,
		StopDistance:    dist,
		StopDistancePct: distPct,
	}
}

func downgrade(found, needed int) Confidence {
	if found == 0 {
		return ConfidenceLow
	}
	if found < needed {
		return ConfidenceMedium
	}
	return ConfidenceHigh
}

func fallback(entryPrice decimal.Decimal, side exchange.Side, timeframe string, p Params, conf Confidence, reason string, levels ...Level) Result {
	pct := p.FallbackPercent.Div(decimal.NewFromInt(100))
	var stop decimal.Decimal
	if side == exchange.Buy {
		stop = entryPrice.Mul(decimal.NewFromInt(1).Sub(pct))
	} else {
		stop = entryPrice.Mul(decimal.NewFromInt(1).Add(pct))
	}
	dist := entryPrice.Sub(stop).Abs()
	distPct := decimal.Zero
	if !entryPrice.IsZero() {
		distPct = dist.Div(entryPrice).Mul(decimal.NewFromInt(100))
	}
	return Result{
		StopPrice:       stop,
		EntryPrice:      entryPrice,
		Side:            side,
		Timeframe:       timeframe,
		MethodUsed:      MethodFallbackFixedPct,
		Confidence:      conf,
		LevelsFound:     levels,
		Warnings:        []string{reason},
		StopDistance:    dist,
		StopDistancePct: distPct,
	}
}

// findPivots applies the fractal rule (spec §4.4 step 1): bar i is a pivot
// HIGH if its high strictly exceeds every high in [i-k, i+k], and
// symmetrically for LOW.
func findPivots(candles []exchange.Kline, k int) []pivot {
	var out []pivot
	n := len(candles)
	for i := k; i < n-k; i++ {
		isHigh := true
		isLow := true
		for j := i - k; j <= i+k; j++ {
			if j == i {
				continue
			}
			if !candles[i].High.GreaterThan(candles[j].High) {
				isHigh = false
			}
			if !candles[i].Low.LessThan(candles[j].Low) {
				isLow = false
			}
		}
		if isHigh {
			out = append(out, pivot{index: i, price: candles[i].High, high: true})
		}
		if isLow {
			out = append(out, pivot{index: i, price: candles[i].Low, high: false})
		}
	}
	return out
}

// clusterPivots groups pivots within tolerancePct of each other (spec §4.4
// step 2) and scores each cluster by touches * recency_weight, where
// recency_weight favors clusters whose most recent touch is closer to the
// end of the window.
func clusterPivots(pivots []pivot, tolerancePct decimal.Decimal) []Level {
	if len(pivots) == 0 {
		return nil
	}
	sorted := make([]pivot, len(pivots))
	copy(sorted, pivots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].price.LessThan(sorted[j].price) })

	tol := tolerancePct.Div(decimal.NewFromInt(100))

	var clusters []Level
	var curSum decimal.Decimal
	var curCount int
	var curMaxIndex int
	var curAnchor decimal.Decimal

	flush := func() {
		if curCount == 0 {
			return
		}
		avg := curSum.Div(decimal.NewFromInt(int64(curCount)))
		recency := decimal.NewFromFloat(1.0).Add(decimal.NewFromInt(int64(curMaxIndex)).Div(decimal.NewFromInt(1000)))
		clusters = append(clusters, Level{
			Price:    avg,
			Touches:  curCount,
			Strength: decimal.NewFromInt(int64(curCount)).Mul(recency),
		})
	}

	for _, pv := range sorted {
		if curCount == 0 {
			curAnchor = pv.price
			curSum = pv.price
			curCount = 1
			curMaxIndex = pv.index
			continue
		}
		width := curAnchor.Mul(tol)
		if pv.price.Sub(curAnchor).Abs().LessThanOrEqual(width) {
			curSum = curSum.Add(pv.price)
			curCount++
			if pv.index > curMaxIndex {
				curMaxIndex = pv.index
			}
			continue
		}
		flush()
		curAnchor = pv.price
		curSum = pv.price
		curCount = 1
		curMaxIndex = pv.index
	}
	flush()

	return clusters
}
