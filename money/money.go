// Package money centralizes fixed-precision decimal arithmetic so no
// package reaches for binary floats on a monetary value (spec §9:
// "Decimal arithmetic is mandatory everywhere monetary"). shopspring/decimal
// is the teacher's own indirect dependency (via sonirico/vago), promoted
// here to a direct one because it is the correct tool for the job.
package money

import "github.com/shopspring/decimal"

// QuantityPrecision is the fixed quantization applied to every persisted
// order quantity (spec §3: "quantity stored quantized to 8 decimals").
const QuantityPrecision = 8

// Quantize8 rounds to 8 decimal places, truncating toward zero ("banker's
// rounding toward zero for safety", spec §4.5) so a sizing calculation never
// rounds a quantity up past what risk capital actually allows.
func Quantize8(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(QuantityPrecision)
}

// Zero is the shared zero-value decimal, for readable comparisons.
var Zero = decimal.Zero

// Clamp restricts d to the inclusive range [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// PercentOf returns base * pct / 100.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(decimal.NewFromInt(100))
}
