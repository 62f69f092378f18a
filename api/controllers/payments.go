package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/pkg/checkout"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

type createIntentRequest struct {
	AttemptKey          string            `json:"attempt_key,omitempty" validate:"max=128"`
	Items               []cartItemRequest `json:"items" validate:"required,min=1,dive"`
	Contact             types.Contact     `json:"contact"`
	ShippingAddress     types.Address     `json:"shipping_address"`
	BillingAddress      *types.Address    `json:"billing_address,omitempty"`
	ShippingMethod      string            `json:"shipping_method,omitempty" validate:"max=64"`
	Notes               string            `json:"notes,omitempty" validate:"max=1000"`
	Currency            string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	ExpectedAmountCents *int64            `json:"expected_amount_cents,omitempty"`
}

type processorConfirmRequest struct {
	SourceID string `json:"source_id" validate:"required,max=255"`
}

// PaymentsCreateIntent creates, or returns the existing, intent for a
// checkout attempt. The attempt defaults to the request's Idempotency-Key.
func PaymentsCreateIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createIntentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := checkout.ValidateAddress(body.ShippingAddress); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempt := strings.TrimSpace(body.AttemptKey)
		if attempt == "" {
			attempt = strings.TrimSpace(r.Header.Get(types.HeaderIdempotencyKey))
		}

		items := make([]catalog.ItemRef, 0, len(body.Items))
		for _, item := range body.Items {
			items = append(items, catalog.ItemRef{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Variant:   item.variant(),
				ImageRef:  strings.TrimSpace(item.ImageRef),
			})
		}

		intent, err := svc.CreateIntent(r.Context(), userID, payments.CreateIntentInput{
			AttemptKey:          attempt,
			Items:               items,
			Contact:             body.Contact,
			ShippingAddress:     body.ShippingAddress,
			BillingAddress:      body.BillingAddress,
			ShippingMethod:      validators.CleanText(body.ShippingMethod, 64),
			Notes:               validators.CleanText(body.Notes, 1000),
			Currency:            body.Currency,
			ExpectedAmountCents: body.ExpectedAmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// PaymentsProcessorConfirm charges a tokenized card source through the
// server for processors without a client-side confirmation step.
func PaymentsProcessorConfirm(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intentID, err := validators.PathUUID(r, "intentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body processorConfirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.ProcessorConfirm(r.Context(), userID, intentID, strings.TrimSpace(body.SourceID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

// PaymentsConfirm settles a processor-confirmed intent into an order.
func PaymentsConfirm(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intentID, err := validators.PathUUID(r, "intentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Confirm(r.Context(), userID, intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
