package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/apiclient"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	paypkg "github.com/angelmondragon/storefront/pkg/payments"
)

// ProcessorConfirmer confirms a created intent with the card processor.
type ProcessorConfirmer interface {
	ConfirmWithProcessor(ctx context.Context, intent apiclient.Intent, sourceID string) (paypkg.IntentStatus, error)
}

// ClientConfirmer confirms shopper-side with the intent's client secret.
type ClientConfirmer struct {
	confirmer paypkg.Confirmer
}

func NewClientConfirmer(confirmer paypkg.Confirmer) *ClientConfirmer {
	return &ClientConfirmer{confirmer: confirmer}
}

func (c *ClientConfirmer) ConfirmWithProcessor(ctx context.Context, intent apiclient.Intent, sourceID string) (paypkg.IntentStatus, error) {
	if intent.ClientSecret == "" {
		return "", pkgerrors.New(pkgerrors.CodePrecondition, "payment intent has no client secret")
	}
	remote, err := c.confirmer.Confirm(ctx, paypkg.ConfirmParams{
		IntentID:       intent.ProcessorIntentID,
		ClientSecret:   intent.ClientSecret,
		SourceID:       sourceID,
		AmountCents:    intent.AmountCents,
		Currency:       intent.Currency,
		IdempotencyKey: "client-confirm:" + intent.ID.String(),
	})
	if err != nil {
		return paypkg.IntentFailed, err
	}
	if remote == nil {
		return "", pkgerrors.New(pkgerrors.CodeProcessor, "processor returned no intent")
	}
	return remote.Status, nil
}

type processorConfirmAPI interface {
	ProcessorConfirm(ctx context.Context, intentID uuid.UUID, sourceID string, opts apiclient.CallOptions) (*apiclient.Intent, error)
}

// BackendConfirmer hands the card source to the backend, for processors
// whose confirmation needs a server credential.
type BackendConfirmer struct {
	api processorConfirmAPI
}

func NewBackendConfirmer(api processorConfirmAPI) *BackendConfirmer {
	return &BackendConfirmer{api: api}
}

func (b *BackendConfirmer) ConfirmWithProcessor(ctx context.Context, intent apiclient.Intent, sourceID string) (paypkg.IntentStatus, error) {
	remote, err := b.api.ProcessorConfirm(ctx, intent.ID, sourceID, apiclient.CallOptions{
		IdempotencyKey: "processor-confirm:" + intent.ID.String(),
	})
	if err != nil {
		return paypkg.IntentFailed, err
	}
	switch remote.Status {
	case enums.PaymentIntentStatusSucceeded, enums.PaymentIntentStatusConfirmed:
		return paypkg.IntentSucceeded, nil
	case enums.PaymentIntentStatusFailed:
		return paypkg.IntentFailed, nil
	case enums.PaymentIntentStatusCanceled:
		return paypkg.IntentCanceled, nil
	case enums.PaymentIntentStatusCreated:
		return paypkg.IntentProcessing, nil
	}
	return "", fmt.Errorf("unexpected intent status %q", remote.Status)
}
