package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// FreeDeliveryThreshold is the subtotal above which delivery is free.
	FreeDeliveryThreshold = decimal.NewFromInt(100)
	// FlatDeliveryFee applies to non-empty carts at or below the threshold.
	FlatDeliveryFee = decimal.NewFromInt(10)

	hundred = decimal.NewFromInt(100)
)

// Totals is derived from cart lines on every read and never stored.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Delivery decimal.Decimal `json:"delivery"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals applies the delivery rule: free above the threshold, flat fee
// otherwise, nothing for an empty cart.
func ComputeTotals(items LineItems) Totals {
	subtotal := items.Subtotal()
	delivery := decimal.Zero
	if subtotal.IsPositive() && subtotal.LessThanOrEqual(FreeDeliveryThreshold) {
		delivery = FlatDeliveryFee
	}
	return Totals{
		Subtotal: subtotal,
		Delivery: delivery,
		Total:    subtotal.Add(delivery),
	}
}

// ToCents converts a currency amount to minor units, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParseAmount parses a decimal string, rejecting negatives.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q is negative", raw)
	}
	return amount, nil
}
