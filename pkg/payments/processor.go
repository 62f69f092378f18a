// Package payments defines the processor-neutral surface the backend and the
// storefront use to talk to a card processor.
package payments

import (
	"context"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// IntentStatus is the processor-reported state of a charge.
type IntentStatus string

const (
	IntentRequiresAction IntentStatus = "requires_action"
	IntentProcessing     IntentStatus = "processing"
	IntentSucceeded      IntentStatus = "succeeded"
	IntentFailed         IntentStatus = "failed"
	IntentCanceled       IntentStatus = "canceled"
)

// CreateIntentParams describes a charge to be authorized.
type CreateIntentParams struct {
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	ReceiptEmail   string
	Reference      string
}

// Intent is the processor-side view of a charge.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountCents  int64
	Currency     string
	FailureMsg   string
}

// ConfirmParams carries the tokenized payment method collected from the shopper.
type ConfirmParams struct {
	IntentID       string
	ClientSecret   string
	SourceID       string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// RefundParams describes a full or partial refund.
type RefundParams struct {
	IntentID       string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

// Refund is the processor-side refund record.
type Refund struct {
	ID          string
	Status      string
	AmountCents int64
}

// Processor is implemented by each card processor integration.
type Processor interface {
	Name() enums.PaymentProcessor
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	Confirm(ctx context.Context, params ConfirmParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	Refund(ctx context.Context, params RefundParams) (*Refund, error)
}

// Confirmer is the shopper-side half: confirming a charge with the processor
// using the client secret handed out by the backend.
type Confirmer interface {
	Confirm(ctx context.Context, params ConfirmParams) (*Intent, error)
}
