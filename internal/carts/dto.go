package carts

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/types"
)

// CartView is the wire shape of a cart. Totals are derived, never stored.
type CartView struct {
	ID      uuid.UUID      `json:"id"`
	Version int64          `json:"version"`
	Items   []CartItemView `json:"items"`
	Totals  types.Totals   `json:"totals"`
}

// CartItemView is one merged line.
type CartItemView struct {
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

func toView(cart *models.Cart) *CartView {
	view := &CartView{ID: cart.ID, Version: cart.Version, Items: make([]CartItemView, 0, len(cart.Lines))}
	for _, line := range cart.Lines {
		view.Items = append(view.Items, CartItemView{
			ID:        line.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
			Edition:   line.Edition,
			ImageRef:  line.ImageRef,
		})
	}
	view.Totals = types.ComputeTotals(lineItems(cart.Lines))
	return view
}

func lineItems(lines []models.CartLine) types.LineItems {
	items := make(types.LineItems, 0, len(lines))
	for _, line := range lines {
		items = append(items, types.LineItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
			Edition:   line.Edition,
			ImageRef:  line.ImageRef,
		})
	}
	return items
}
