package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/types"
)

// IntentView is what the shopper's client needs to confirm with the processor.
type IntentView struct {
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

// ConfirmResult pairs the settled intent with the order it produced.
type ConfirmResult struct {
	Intent IntentView       `json:"intent"`
	Order  orders.OrderView `json:"order"`
}

func toIntentView(intent *models.PaymentIntent) IntentView {
	return IntentView{
		ID:                intent.ID,
		AttemptKey:        intent.AttemptKey,
		Processor:         intent.Processor,
		ProcessorIntentID: intent.ProcessorIntentID,
		ClientSecret:      intent.ClientSecret,
		Amount:            types.FromCents(intent.AmountCents),
		AmountCents:       intent.AmountCents,
		Currency:          intent.Currency,
		Status:            intent.Status,
		OrderID:           intent.OrderID,
		FailureReason:     intent.FailureReason,
		CreatedAt:         intent.CreatedAt,
	}
}
