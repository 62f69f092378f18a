package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/types"
)

// PaymentIntent records one card checkout attempt. AttemptKey is unique per
// user so retries of the same attempt converge on one row.
type PaymentIntent struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_payment_intents_user_attempt"`
	AttemptKey        string                    `gorm:"column:attempt_key;not null;uniqueIndex:idx_payment_intents_user_attempt"`
	Processor         enums.PaymentProcessor    `gorm:"column:processor;not null"`
	ProcessorIntentID string                    `gorm:"column:processor_intent_id;not null"`
	ProcessorChargeID *string                   `gorm:"column:processor_charge_id"`
	ClientSecret      string                    `gorm:"column:client_secret;not null;default:''"`
	AmountCents       int64                     `gorm:"column:amount_cents;not null"`
	Currency          string                    `gorm:"column:currency;not null"`
	Status            enums.PaymentIntentStatus `gorm:"column:status;not null;default:'created'"`
	Items             types.LineItems           `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Contact           types.Contact             `gorm:"column:contact;type:jsonb;serializer:json;not null"`
	ShippingAddress   types.Address             `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	BillingAddress    *types.Address            `gorm:"column:billing_address;type:jsonb;serializer:json"`
	ShippingMethod    string                    `gorm:"column:shipping_method;not null;default:''"`
	Notes             string                    `gorm:"column:notes;not null;default:''"`
	OrderID           *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	FailureReason     *string                   `gorm:"column:failure_reason"`
	ConfirmedAt       *time.Time                `gorm:"column:confirmed_at"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// ChargeReference is the processor identifier refunds and lookups use: the
// charge ID when the processor issued one, otherwise the intent ID.
func (p PaymentIntent) ChargeReference() string {
	if p.ProcessorChargeID != nil && *p.ProcessorChargeID != "" {
		return *p.ProcessorChargeID
	}
	return p.ProcessorIntentID
}
