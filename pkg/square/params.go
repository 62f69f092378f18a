package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/storefront/pkg/payments"
)

const defaultCurrency = "USD"

func createPaymentRequest(params payments.ConfirmParams, locationID string) *sq.CreatePaymentRequest {
	return &sq.CreatePaymentRequest{
		IdempotencyKey: params.IdempotencyKey,
		SourceID:       params.SourceID,
		LocationID:     optional(locationID),
		AmountMoney:    money(params.AmountCents, params.Currency),
		Autocomplete:   ptr(true),
		ReferenceID:    optional(params.IntentID),
	}
}

func refundPaymentRequest(params payments.RefundParams) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: params.IdempotencyKey,
		PaymentID:      optional(params.IntentID),
		AmountMoney:    money(params.AmountCents, params.Currency),
		Reason:         optional(params.Reason),
	}
}

func ptr[T any](v T) *T { return &v }

// optional maps blank strings to an omitted field.
func optional(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}

// money is nil for a zero amount; Square rejects zero-value money objects.
func money(cents int64, currency string) *sq.Money {
	if cents == 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = defaultCurrency
	}
	return &sq.Money{Amount: ptr(cents), Currency: ptr(sq.Currency(code))}
}
