package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// OrderCreatedEvent is emitted when an order enters the ledger.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID           `json:"orderId"`
	UserID          uuid.UUID           `json:"userId"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	Currency        string              `json:"currency"`
	PaymentIntentID *uuid.UUID          `json:"paymentIntentId,omitempty"`
	ItemCount       int                 `json:"itemCount"`
}

// OrderStatusChangedEvent covers every forward transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"orderId"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// CancellationEvent covers requested, approved and rejected cancellations.
type CancellationEvent struct {
	OrderID        uuid.UUID                `json:"orderId"`
	RequestID      uuid.UUID                `json:"requestId"`
	Status         enums.CancellationStatus `json:"status"`
	Reason         string                   `json:"reason"`
	AdminNotes     *string                  `json:"adminNotes,omitempty"`
	ResultingOrder enums.OrderStatus        `json:"resultingOrderStatus"`
}

// OrderRefundedEvent records money returned to the shopper.
type OrderRefundedEvent struct {
	OrderID           uuid.UUID       `json:"orderId"`
	Amount            decimal.Decimal `json:"amount"`
	ProcessorRefundID string          `json:"processorRefundId"`
}

// PaymentEvent covers intent success and failure.
type PaymentEvent struct {
	PaymentIntentID uuid.UUID              `json:"paymentIntentId"`
	Processor       enums.PaymentProcessor `json:"processor"`
	AmountCents     int64                  `json:"amountCents"`
	OrderID         *uuid.UUID             `json:"orderId,omitempty"`
	FailureReason   *string                `json:"failureReason,omitempty"`
}
