package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is an immutable snapshot of a cart line, carried by payment
// intents and orders.
type LineItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Size      *string         `json:"size,omitempty"`
	Color     *string         `json:"color,omitempty"`
	Edition   *string         `json:"edition,omitempty"`
	ImageRef  string          `json:"image_ref,omitempty"`
}

// LineTotal is unit price times quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineItems is a jsonb-serialized slice of snapshots.
type LineItems []LineItem

// Subtotal sums line totals.
func (items LineItems) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
