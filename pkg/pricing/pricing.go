// Package pricing holds the money math shared by orders and group orders.
// Amounts are integer cents; percentages go through decimal so rounding is
// explicit and happens once, half away from zero, at the cent.
package pricing

import (
	"errors"
	"math"

	"github.com/angelmondragon/supplyhub-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// Bounds on client-supplied numbers. They keep every product of quantity and
// price well inside int64.
const (
	MaxLineQuantity = 1_000_000
	MaxStock        = 1_000_000_000
	MaxPriceCents   = 1_000_000_000
	MaxOrderLines   = 100
)

// ErrAmountOverflow means a computed amount does not fit in int64 cents.
var ErrAmountOverflow = errors.New("amount exceeds supported range")

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// SelectDiscount returns the percentage of the highest tier whose minimum is
// met by qty, or zero when none qualifies. Tier order in the slice is irrelevant.
func SelectDiscount(tiers []types.DiscountTier, qty int) decimal.Decimal {
	best := -1
	pct := decimal.Zero
	for _, tier := range tiers {
		if tier.MinQuantity <= qty && tier.MinQuantity > best {
			best = tier.MinQuantity
			pct = tier.DiscountPercent
		}
	}
	return pct
}

// DiscountedUnitCents applies pct to a unit price, rounded to the cent.
func DiscountedUnitCents(baseCents int64, pct decimal.Decimal) int64 {
	if pct.IsZero() {
		return baseCents
	}
	factor := hundred.Sub(pct).Div(hundred)
	return decimal.NewFromInt(baseCents).Mul(factor).Round(0).IntPart()
}

// LineTotalCents is qty x unit price. Negative inputs and results outside
// int64 return ErrAmountOverflow.
func LineTotalCents(qty int, unitCents int64) (int64, error) {
	if qty < 0 || unitCents < 0 {
		return 0, ErrAmountOverflow
	}
	return toCents(decimal.NewFromInt(int64(qty)).Mul(decimal.NewFromInt(unitCents)))
}

// SumCents adds line totals, failing instead of wrapping.
func SumCents(amounts ...int64) (int64, error) {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromInt(a))
	}
	return toCents(total)
}

// GroupTotalCents is the sum over products of currentQuantity x base price x
// (1 - discount/100), rounded once at the end.
func GroupTotalCents(products types.GroupOrderProducts) (int64, error) {
	total := decimal.Zero
	for _, p := range products {
		factor := hundred.Sub(p.CurrentDiscount).Div(hundred)
		line := decimal.NewFromInt(p.BasePriceCents).Mul(decimal.NewFromInt(int64(p.CurrentQuantity))).Mul(factor)
		total = total.Add(line)
	}
	return toCents(total.Round(0))
}

func toCents(v decimal.Decimal) (int64, error) {
	if v.IsNegative() || v.GreaterThan(maxCents) {
		return 0, ErrAmountOverflow
	}
	return v.IntPart(), nil
}

// ValidTier reports whether a tier is usable: positive minimum and a percent
// strictly between 0 and 100.
func ValidTier(tier types.DiscountTier) bool {
	return tier.MinQuantity > 0 &&
		tier.DiscountPercent.GreaterThan(decimal.Zero) &&
		tier.DiscountPercent.LessThan(hundred)
}
