// Package money holds the currency and calendar-period arithmetic shared by the
// loan ledger and the chit-fund settlement code. Every stored amount is a whole
// number of currency units; fractional intermediate results are rounded half-up.
package money

import (
	"github.com/shopspring/decimal"
)

var (
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
)

// RoundCurrency rounds to the nearest whole unit, halves going up.
func RoundCurrency(amount decimal.Decimal) int64 {
	return amount.Add(half).Floor().IntPart()
}

// PercentOf returns pct percent of amount, rounded to a whole unit.
func PercentOf(amount int64, pct decimal.Decimal) int64 {
	return RoundCurrency(decimal.NewFromInt(amount).Mul(pct).Div(hundred))
}

// Ratio returns part/whole*100 to two decimal places, clamped to [0, 100].
// A non-positive whole yields zero.
func Ratio(part, whole int64) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(whole)).Round(2)
	if pct.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// Split divides total evenly into count shares, rounded to a whole unit.
func Split(total int64, count int) int64 {
	if count <= 0 {
		return 0
	}
	return RoundCurrency(decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(count))))
}

// CeilDiv returns ceil(a/b) for non-negative a and positive b.
func CeilDiv(a, b int64) int64 {
	if b <= 0 || a <= 0 {
		return 0
	}
	return (a-1)/b + 1
}
