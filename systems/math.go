package systems

import "math"

// clamp01 clamps a value to the [0, 1] range.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// nonNegative maps negative and NaN values to zero.
func nonNegative(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}

// safeDiv returns num/den, or 0 when den is zero or the result is not finite.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	q := num / den
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}

// logistic returns 1/(1+e^x). Large x saturates to 0 rather than NaN.
func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(x))
}
