// Package money holds the rounding and percentage helpers shared by the
// ledger and the price layer. Arithmetic goes through decimal so that
// balances do not drift by binary float error across many trades.
package money

import "github.com/shopspring/decimal"

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

// Round2 rounds x to cents.
func Round2(x float64) float64 {
	return Round(x, 2)
}

// Mul returns a*b rounded to cents.
func Mul(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Add returns a+b rounded to cents.
func Add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Sub returns a-b rounded to cents.
func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// PercentChange returns (to-from)/from*100, or 0 when from is not positive.
func PercentChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}
