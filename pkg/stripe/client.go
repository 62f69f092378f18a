package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/payments"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

type paymentIntentAPI interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

type refundAPI interface {
	Create(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error)
}

// Client implements payments.Processor on top of Stripe PaymentIntents.
type Client struct {
	intents     paymentIntentAPI
	refunds     refundAPI
	environment string
	logger      *logger.Logger
}

var _ payments.Processor = (*Client)(nil)

// NewClient initializes Stripe with a secret key for server-side use.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateSecretKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		intents:     api.V1PaymentIntents,
		refunds:     api.V1Refunds,
		environment: env,
		logger:      logg,
	}, nil
}

// NewConfirmer builds the shopper-side confirmer. It authenticates with a
// publishable key and relies on the intent's client secret.
func NewConfirmer(env, publishableKey string) (payments.Confirmer, error) {
	normalized, err := normalizeEnv(env)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(publishableKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	if !strings.HasPrefix(key, "pk_"+normalized) {
		return nil, fmt.Errorf("stripe environment %q requires a pk_%s publishable key", normalized, normalized)
	}
	api := stripe.NewClient(key)
	return &Client{intents: api.V1PaymentIntents, environment: normalized}, nil
}

func (c *Client) Name() enums.PaymentProcessor {
	return enums.PaymentProcessorStripe
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) CreateIntent(ctx context.Context, params payments.CreateIntentParams) (*payments.Intent, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	req := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(params.AmountCents),
		Currency:           stripe.String(strings.ToLower(params.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	if email := strings.TrimSpace(params.ReceiptEmail); email != "" {
		req.ReceiptEmail = stripe.String(email)
	}
	if params.Reference != "" {
		req.AddMetadata("reference", params.Reference)
	}
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}

	pi, err := c.intents.Create(ctx, req)
	if err != nil {
		c.logError(ctx, "create_payment_intent", err)
		return nil, mapStripeError(err, "create payment intent")
	}
	return toIntent(pi), nil
}

func (c *Client) Confirm(ctx context.Context, params payments.ConfirmParams) (*payments.Intent, error) {
	if params.IntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment intent id is required")
	}
	req := &stripe.PaymentIntentConfirmParams{}
	if params.ClientSecret != "" {
		req.AddExtra("client_secret", params.ClientSecret)
	}
	if params.SourceID != "" {
		req.PaymentMethod = stripe.String(params.SourceID)
	}
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}

	pi, err := c.intents.Confirm(ctx, params.IntentID, req)
	if err != nil {
		c.logError(ctx, "confirm_payment_intent", err)
		return nil, mapStripeError(err, "confirm payment intent")
	}
	intent := toIntent(pi)
	if intent.Status == payments.IntentFailed {
		return intent, pkgerrors.New(pkgerrors.CodeProcessor, intent.FailureMsg)
	}
	return intent, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*payments.Intent, error) {
	pi, err := c.intents.Retrieve(ctx, intentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, mapStripeError(err, "retrieve payment intent")
	}
	return toIntent(pi), nil
}

func (c *Client) Refund(ctx context.Context, params payments.RefundParams) (*payments.Refund, error) {
	if c.refunds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe refunds require a secret key client")
	}
	req := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(params.IntentID),
	}
	if params.AmountCents > 0 {
		req.Amount = stripe.Int64(params.AmountCents)
	}
	if params.Reason != "" {
		req.AddMetadata("reason", params.Reason)
	}
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}

	refund, err := c.refunds.Create(ctx, req)
	if err != nil {
		c.logError(ctx, "create_refund", err)
		return nil, mapStripeError(err, "create refund")
	}
	return &payments.Refund{ID: refund.ID, Status: string(refund.Status), AmountCents: refund.Amount}, nil
}

func toIntent(pi *stripe.PaymentIntent) *payments.Intent {
	if pi == nil {
		return &payments.Intent{}
	}
	intent := &payments.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       statusFor(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}
	if pi.LastPaymentError != nil {
		intent.FailureMsg = pi.LastPaymentError.Msg
		if pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
			intent.Status = payments.IntentFailed
		}
	}
	return intent
}

func statusFor(status stripe.PaymentIntentStatus) payments.IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return payments.IntentSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return payments.IntentProcessing
	case stripe.PaymentIntentStatusCanceled:
		return payments.IntentCanceled
	default:
		return payments.IntentRequiresAction
	}
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
	}
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return pkgerrors.Wrap(pkgerrors.CodeProcessor, err, stripeErr.Msg).
			WithDetails(map[string]any{"decline_code": string(stripeErr.DeclineCode), "code": string(stripeErr.Code)})
	case stripeErr.HTTPStatusCode == 401:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe rejected credentials")
	case stripeErr.Type == stripe.ErrorTypeIdempotency:
		return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, stripeErr.Msg)
	case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500:
		return pkgerrors.Wrap(pkgerrors.CodeProcessor, err, stripeErr.Msg)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
	}
}

func (c *Client) logError(ctx context.Context, op string, err error) {
	if c == nil || c.logger == nil {
		return
	}
	ctx = c.logger.WithField(ctx, "operation", op)
	c.logger.Error(ctx, "stripe request failed", err)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateSecretKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
