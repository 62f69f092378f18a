package apiclient

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/orderpolicy"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Product is the public catalog entry a shopper adds to the cart.
type Product struct {
	ID        uuid.UUID       `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageRef  string          `json:"image_ref,omitempty"`
	Options   ProductOptions  `json:"options"`
}

// ProductOptions lists the variant values a product may be added with.
type ProductOptions struct {
	Sizes    []string `json:"sizes,omitempty"`
	Colors   []string `json:"colors,omitempty"`
	Editions []string `json:"editions,omitempty"`
}

// Cart is the server cart as returned by every cart call.
type Cart struct {
	ID      uuid.UUID    `json:"id"`
	Version int64        `json:"version"`
	Items   []CartItem   `json:"items"`
	Totals  types.Totals `json:"totals"`
}

// CartItem is one server cart line.
type CartItem struct {
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

// AddItemRequest adds a product line, merging with an identical variant.
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Size      *string   `json:"size,omitempty"`
	Color     *string   `json:"color,omitempty"`
	Edition   *string   `json:"edition,omitempty"`
	ImageRef  string    `json:"image_ref,omitempty"`
}

// CheckoutRequest places a non-card order from the server cart.
type CheckoutRequest struct {
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	Contact         types.Contact       `json:"contact"`
	ShippingAddress types.Address       `json:"shipping_address"`
	BillingAddress  *types.Address      `json:"billing_address,omitempty"`
	ShippingMethod  string              `json:"shipping_method,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	Currency        string              `json:"currency,omitempty"`
}

// CreateIntentRequest asks the backend to price the items and open a
// processor intent for one checkout attempt.
type CreateIntentRequest struct {
	AttemptKey          string           `json:"attempt_key,omitempty"`
	Items               []AddItemRequest `json:"items"`
	Contact             types.Contact    `json:"contact"`
	ShippingAddress     types.Address    `json:"shipping_address"`
	BillingAddress      *types.Address   `json:"billing_address,omitempty"`
	ShippingMethod      string           `json:"shipping_method,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	Currency            string           `json:"currency,omitempty"`
	ExpectedAmountCents *int64           `json:"expected_amount_cents,omitempty"`
}

// Intent is the backend's paired handle on a processor charge.
type Intent struct {
	ID                uuid.UUID                 `json:"id"`
	AttemptKey        string                    `json:"attempt_key"`
	Processor         enums.PaymentProcessor    `json:"processor"`
	ProcessorIntentID string                    `json:"processor_intent_id"`
	ClientSecret      string                    `json:"client_secret,omitempty"`
	Amount            decimal.Decimal           `json:"amount"`
	AmountCents       int64                     `json:"amount_cents"`
	Currency          string                    `json:"currency"`
	Status            enums.PaymentIntentStatus `json:"status"`
	OrderID           *uuid.UUID                `json:"order_id,omitempty"`
	FailureReason     *string                   `json:"failure_reason,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// ConfirmResult is the settled intent plus the order it produced.
type ConfirmResult struct {
	Intent Intent `json:"intent"`
	Order  Order  `json:"order"`
}

// Order is the persisted order as the shopper sees it.
type Order struct {
	ID              uuid.UUID                `json:"id"`
	Status          enums.OrderStatus        `json:"status"`
	PaymentMethod   enums.PaymentMethod      `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus      `json:"payment_status"`
	PaymentIntentID *uuid.UUID               `json:"payment_intent_id,omitempty"`
	Items           []types.LineItem         `json:"items"`
	Subtotal        decimal.Decimal          `json:"subtotal"`
	Delivery        decimal.Decimal          `json:"delivery"`
	TotalAmount     decimal.Decimal          `json:"total_amount"`
	RefundedAmount  decimal.Decimal          `json:"refunded_amount"`
	Currency        string                   `json:"currency"`
	Contact         types.Contact            `json:"contact"`
	ShippingAddress types.Address            `json:"shipping_address"`
	BillingAddress  *types.Address           `json:"billing_address,omitempty"`
	ShippingMethod  string                   `json:"shipping_method,omitempty"`
	Notes           string                   `json:"notes,omitempty"`
	CancelReason    *string                  `json:"cancel_reason,omitempty"`
	Cancellation    *CancellationRequest     `json:"cancellation_request,omitempty"`
	Capabilities    orderpolicy.Capabilities `json:"capabilities"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	CancelledAt     *time.Time               `json:"cancelled_at,omitempty"`
}

// CancellationRequest is the shopper's ask for an admin to cancel a settled order.
type CancellationRequest struct {
	ID             uuid.UUID                `json:"id"`
	Reason         string                   `json:"reason"`
	AdditionalInfo *string                  `json:"additional_info,omitempty"`
	Status         enums.CancellationStatus `json:"status"`
	AdminNotes     *string                  `json:"admin_notes,omitempty"`
	RefundAmount   *decimal.Decimal         `json:"refund_amount,omitempty"`
	RequestedAt    time.Time                `json:"requested_at"`
	ProcessedAt    *time.Time               `json:"processed_at,omitempty"`
}

// OrderPage is one page of the shopper's orders.
type OrderPage = pagination.Page[Order]
