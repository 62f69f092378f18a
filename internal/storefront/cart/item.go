// Package cart is the storefront's cart store: one owned cart, a pluggable
// persistence backend per session mode, and totals derived on every read.
package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/types"
)

// Item is one cart line. Guest storage holds a JSON array of these.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Size      *string         `json:"size,omitempty"`
	Color     *string         `json:"color,omitempty"`
	Edition   *string         `json:"edition,omitempty"`
	ImageRef  string          `json:"image_ref,omitempty"`
}

// Product is what a shopper picks from the catalog.
type Product struct {
	ID        uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	ImageRef  string
}

// Variant selects the optional product dimensions.
type Variant struct {
	Size    *string
	Color   *string
	Edition *string
}

// sameLine is the merge key: product plus every variant dimension.
func (i Item) sameLine(productID uuid.UUID, v Variant) bool {
	return i.ProductID == productID &&
		equalOpt(i.Size, v.Size) &&
		equalOpt(i.Color, v.Color) &&
		equalOpt(i.Edition, v.Edition)
}

func (i Item) variant() Variant {
	return Variant{Size: i.Size, Color: i.Color, Edition: i.Edition}
}

// LineItem snapshots the line for checkout and payment.
func (i Item) LineItem() types.LineItem {
	return types.LineItem{
		ProductID: i.ProductID,
		Name:      i.Name,
		UnitPrice: i.UnitPrice,
		Quantity:  i.Quantity,
		Size:      i.Size,
		Color:     i.Color,
		Edition:   i.Edition,
		ImageRef:  i.ImageRef,
	}
}

// LineItems converts items for totals and snapshots.
func LineItems(items []Item) types.LineItems {
	out := make(types.LineItems, 0, len(items))
	for _, item := range items {
		out = append(out, item.LineItem())
	}
	return out
}

// Totals derives subtotal, delivery and total from items.
func Totals(items []Item) types.Totals {
	return types.ComputeTotals(LineItems(items))
}

func equalOpt(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
