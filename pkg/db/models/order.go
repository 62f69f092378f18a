package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Order is the backend ledger entry. Items are snapshotted at creation and
// never re-priced.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	Status          enums.OrderStatus    `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus  `gorm:"column:payment_status;not null;default:'unpaid'"`
	PaymentIntentID *uuid.UUID           `gorm:"column:payment_intent_id;type:uuid"`
	Subtotal        decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Delivery        decimal.Decimal      `gorm:"column:delivery;type:numeric(12,2);not null"`
	TotalAmount     decimal.Decimal      `gorm:"column:total_amount;type:numeric(12,2);not null"`
	RefundedAmount  decimal.Decimal      `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	Currency        string               `gorm:"column:currency;not null"`
	Contact         types.Contact        `gorm:"column:contact;type:jsonb;serializer:json;not null"`
	ShippingAddress types.Address        `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	BillingAddress  *types.Address       `gorm:"column:billing_address;type:jsonb;serializer:json"`
	ShippingMethod  string               `gorm:"column:shipping_method;not null;default:''"`
	Notes           string               `gorm:"column:notes;not null;default:''"`
	Items           []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Cancellation    *CancellationRequest `gorm:"foreignKey:OrderID"`
	CancelReason    *string              `gorm:"column:cancel_reason"`
	CancelledAt     *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPendingCancellation reports whether an unresolved request exists.
func (o Order) HasPendingCancellation() bool {
	return o.Cancellation != nil && o.Cancellation.Status == enums.CancellationStatusPending
}

// OrderItem is an immutable line snapshot.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	Size      *string         `gorm:"column:size"`
	Color     *string         `gorm:"column:color"`
	Edition   *string         `gorm:"column:edition"`
	ImageRef  string          `gorm:"column:image_ref;not null;default:''"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
}

// CancellationRequest is a shopper's ask to cancel a processing order,
// adjudicated by an admin. One per order.
type CancellationRequest struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID            uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	Reason            string                   `gorm:"column:reason;not null"`
	AdditionalInfo    *string                  `gorm:"column:additional_info"`
	Status            enums.CancellationStatus `gorm:"column:status;not null;default:'pending'"`
	AdminNotes        *string                  `gorm:"column:admin_notes"`
	RefundAmount      decimal.NullDecimal      `gorm:"column:refund_amount;type:numeric(12,2)"`
	ProcessorRefundID *string                  `gorm:"column:processor_refund_id"`
	ProcessedBy       *uuid.UUID               `gorm:"column:processed_by;type:uuid"`
	RequestedAt       time.Time                `gorm:"column:requested_at;not null"`
	ProcessedAt       *time.Time               `gorm:"column:processed_at"`
}
