package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func item(price string, qty int) LineItem {
	return LineItem{UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func TestComputeTotalsDeliveryRule(t *testing.T) {
	cases := []struct {
		name     string
		items    LineItems
		subtotal string
		delivery string
		total    string
	}{
		{"empty", nil, "0", "0", "0"},
		{"below threshold", LineItems{item("30", 2), item("15", 1)}, "75", "10", "85"},
		{"exactly threshold", LineItems{item("50", 2)}, "100", "10", "110"},
		{"above threshold", LineItems{item("50", 2), item("15", 1)}, "115", "0", "115"},
		{"cents", LineItems{item("19.99", 3)}, "59.97", "10", "69.97"},
	}
	for _, tc := range cases {
		got := ComputeTotals(tc.items)
		if !got.Subtotal.Equal(decimal.RequireFromString(tc.subtotal)) {
			t.Fatalf("%s: subtotal %s want %s", tc.name, got.Subtotal, tc.subtotal)
		}
		if !got.Delivery.Equal(decimal.RequireFromString(tc.delivery)) {
			t.Fatalf("%s: delivery %s want %s", tc.name, got.Delivery, tc.delivery)
		}
		if !got.Total.Equal(decimal.RequireFromString(tc.total)) {
			t.Fatalf("%s: total %s want %s", tc.name, got.Total, tc.total)
		}
	}
}

func TestCentsConversion(t *testing.T) {
	if got := ToCents(decimal.RequireFromString("69.97")); got != 6997 {
		t.Fatalf("expected 6997, got %d", got)
	}
	if got := ToCents(decimal.RequireFromString("0.005")); got != 1 {
		t.Fatalf("expected half-up rounding to 1, got %d", got)
	}
	if got := FromCents(11500); !got.Equal(decimal.NewFromInt(115)) {
		t.Fatalf("expected 115, got %s", got)
	}
}

func TestParseAmount(t *testing.T) {
	if _, err := ParseAmount("-1"); err == nil {
		t.Fatal("expected negative amount to fail")
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Fatal("expected garbage to fail")
	}
	amount, err := ParseAmount("12.50")
	if err != nil || !amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected parse result %s %v", amount, err)
	}
}
