package analysis

import "math"

// RatioSentinel caps a ratio whose denominator is zero while the numerator is not.
// It stands for "undefined / very large" and carries no further numeric meaning.
const RatioSentinel = 999.999

// Ratio divides a by b rounded to three decimals. A zero denominator yields
// RatioSentinel for a positive numerator and 0 otherwise.
func Ratio(a, b float64) float64 {
	return guardedDiv(a, b, RatioSentinel, 3)
}

// guardedDiv divides a by b at the given precision, returning sentinel when b
// is zero and a positive.
func guardedDiv(a, b, sentinel float64, decimals int) float64 {
	if b == 0 {
		if a > 0 {
			return sentinel
		}
		return 0
	}
	return round(a/b, decimals)
}

// share returns a/b or 0 when b is zero
func share(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func round(x float64, decimals int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func between(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
