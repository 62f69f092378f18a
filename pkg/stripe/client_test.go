package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/payments"
)

type fakeIntents struct {
	created   *stripe.PaymentIntentCreateParams
	confirmed *stripe.PaymentIntentConfirmParams
	result    *stripe.PaymentIntent
	err       error
}

func (f *fakeIntents) Create(_ context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	f.created = params
	return f.result, f.err
}

func (f *fakeIntents) Retrieve(_ context.Context, _ string, _ *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error) {
	return f.result, f.err
}

func (f *fakeIntents) Confirm(_ context.Context, _ string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.confirmed = params
	return f.result, f.err
}

type fakeRefunds struct {
	params *stripe.RefundCreateParams
}

func (f *fakeRefunds) Create(_ context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error) {
	f.params = params
	return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded, Amount: *params.Amount}, nil
}

func TestCreateIntentCarriesIdempotencyKey(t *testing.T) {
	fake := &fakeIntents{result: &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: stripe.PaymentIntentStatusRequiresPaymentMethod, Amount: 6997}}
	client := &Client{intents: fake}

	intent, err := client.CreateIntent(context.Background(), payments.CreateIntentParams{
		AmountCents:    6997,
		Currency:       "USD",
		IdempotencyKey: "attempt-1",
		ReceiptEmail:   "ada@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.ClientSecret != "pi_1_secret" || intent.Status != payments.IntentRequiresAction {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if fake.created.IdempotencyKey == nil || *fake.created.IdempotencyKey != "attempt-1" {
		t.Fatal("idempotency key not forwarded")
	}
	if *fake.created.Currency != "usd" {
		t.Fatalf("currency should be lower-cased, got %s", *fake.created.Currency)
	}
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	client := &Client{intents: &fakeIntents{}}
	_, err := client.CreateIntent(context.Background(), payments.CreateIntentParams{AmountCents: 0, Currency: "usd"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfirmDeclineIsProcessorError(t *testing.T) {
	fake := &fakeIntents{err: &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined.", HTTPStatusCode: 402}}
	client := &Client{intents: fake}

	_, err := client.Confirm(context.Background(), payments.ConfirmParams{IntentID: "pi_1", ClientSecret: "pi_1_secret", SourceID: "pm_card_chargeDeclined"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeProcessor {
		t.Fatalf("expected processor error, got %v", err)
	}
	if typed.Message() != "Your card was declined." {
		t.Fatalf("processor message should be verbatim, got %q", typed.Message())
	}
	if fake.confirmed == nil {
		t.Fatal("confirm not forwarded")
	}
}

func TestConfirmFailedStatusSurfacesLastError(t *testing.T) {
	fake := &fakeIntents{result: &stripe.PaymentIntent{
		ID:               "pi_1",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "insufficient funds"},
	}}
	client := &Client{intents: fake}

	intent, err := client.Confirm(context.Background(), payments.ConfirmParams{IntentID: "pi_1"})
	if intent == nil || intent.Status != payments.IntentFailed {
		t.Fatalf("expected failed intent, got %+v", intent)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeProcessor) {
		t.Fatalf("expected processor error, got %v", err)
	}
}

func TestTransportErrorIsDependency(t *testing.T) {
	client := &Client{intents: &fakeIntents{err: errors.New("dial tcp: timeout")}}
	_, err := client.RetrieveIntent(context.Background(), "pi_1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRefundPassesAmount(t *testing.T) {
	refunds := &fakeRefunds{}
	client := &Client{intents: &fakeIntents{}, refunds: refunds}

	refund, err := client.Refund(context.Background(), payments.RefundParams{IntentID: "pi_1", AmountCents: 2500, IdempotencyKey: "refund-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refund.AmountCents != 2500 || *refunds.params.PaymentIntent != "pi_1" {
		t.Fatalf("unexpected refund %+v", refund)
	}
}

func TestKeyValidation(t *testing.T) {
	if err := validateSecretKey("test", "sk_live_123"); err == nil {
		t.Fatal("live key should be rejected in test env")
	}
	if err := validateSecretKey("live", "rk_live_123"); err != nil {
		t.Fatalf("restricted live key should pass: %v", err)
	}
	if _, err := NewConfirmer("test", "pk_live_abc"); err == nil {
		t.Fatal("publishable key env mismatch should fail")
	}
	if _, err := normalizeEnv("staging"); err == nil {
		t.Fatal("unknown env should fail")
	}
}
