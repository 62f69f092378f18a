package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/orderpolicy"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/angelmondragon/storefront/pkg/types"
)

// OrderView is the wire shape of an order.
type OrderView struct {
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
	Cancellation    *CancellationView        `json:"cancellation_request,omitempty"`
	Capabilities    orderpolicy.Capabilities `json:"capabilities"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	CancelledAt     *time.Time               `json:"cancelled_at,omitempty"`
}

// CancellationView is the wire shape of a cancellation request.
type CancellationView struct {
	ID             uuid.UUID                `json:"id"`
	Reason         string                   `json:"reason"`
	AdditionalInfo *string                  `json:"additional_info,omitempty"`
	Status         enums.CancellationStatus `json:"status"`
	AdminNotes     *string                  `json:"admin_notes,omitempty"`
	RefundAmount   *decimal.Decimal         `json:"refund_amount,omitempty"`
	RequestedAt    time.Time                `json:"requested_at"`
	ProcessedAt    *time.Time               `json:"processed_at,omitempty"`
}

// OrderList is one page of a shopper's orders.
type OrderList = pagination.Page[OrderView]

// ViewOf renders an order for the wire.
func ViewOf(order models.Order) OrderView {
	items := make([]types.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, types.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Edition:   item.Edition,
			ImageRef:  item.ImageRef,
		})
	}
	view := OrderView{
		ID:              order.ID,
		Status:          order.Status,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		PaymentIntentID: order.PaymentIntentID,
		Items:           items,
		Subtotal:        order.Subtotal,
		Delivery:        order.Delivery,
		TotalAmount:     order.TotalAmount,
		RefundedAmount:  order.RefundedAmount,
		Currency:        order.Currency,
		Contact:         order.Contact,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		ShippingMethod:  order.ShippingMethod,
		Notes:           order.Notes,
		CancelReason:    order.CancelReason,
		Capabilities:    orderpolicy.For(order.Status, order.Cancellation != nil),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		CancelledAt:     order.CancelledAt,
	}
	if c := order.Cancellation; c != nil {
		cv := &CancellationView{
			ID:             c.ID,
			Reason:         c.Reason,
			AdditionalInfo: c.AdditionalInfo,
			Status:         c.Status,
			AdminNotes:     c.AdminNotes,
			RequestedAt:    c.RequestedAt,
			ProcessedAt:    c.ProcessedAt,
		}
		if c.RefundAmount.Valid {
			amount := c.RefundAmount.Decimal
			cv.RefundAmount = &amount
		}
		view.Cancellation = cv
	}
	return view
}
