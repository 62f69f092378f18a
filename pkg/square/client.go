package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/payments"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	// Square has no intent object; the backend hands out a local reference
	// and the charge is created when the shopper's card token arrives.
	referencePrefix = "sqref_"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

type paymentsAPI interface {
	Create(ctx context.Context, request *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
	Get(ctx context.Context, request *sq.GetPaymentsRequest, opts ...sqoption.RequestOption) (*sq.GetPaymentResponse, error)
}

type refundsAPI interface {
	RefundPayment(ctx context.Context, request *sq.RefundPaymentRequest, opts ...sqoption.RequestOption) (*sq.RefundPaymentResponse, error)
}

// Client implements payments.Processor on top of Square Payments.
type Client struct {
	payments    paymentsAPI
	refunds     refundsAPI
	environment string
	locationID  string
	logger      *logger.Logger
}

var _ payments.Processor = (*Client)(nil)

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Env)
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	logg.Info(ctx, "square client initialized")
	return &Client{
		payments:    sdk.Payments,
		refunds:     sdk.Refunds,
		environment: env,
		locationID:  locationID,
		logger:      logg,
	}, nil
}

func (c *Client) Name() enums.PaymentProcessor {
	return enums.PaymentProcessorSquare
}

// CreateIntent reserves a reference for the charge. No Square call happens
// until Confirm.
func (c *Client) CreateIntent(ctx context.Context, params payments.CreateIntentParams) (*payments.Intent, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	ref := params.IdempotencyKey
	if strings.TrimSpace(ref) == "" {
		ref = uuid.NewString()
	}
	intent := &payments.Intent{
		ID:          referencePrefix + ref,
		Status:      payments.IntentRequiresAction,
		AmountCents: params.AmountCents,
		Currency:    strings.ToUpper(params.Currency),
	}
	c.log(ctx, "response", "create_reference", map[string]any{"reference": intent.ID, "amount": params.AmountCents})
	return intent, nil
}

// Confirm charges the card token. The returned intent ID is the Square
// payment ID, which is what RetrieveIntent and Refund expect afterwards.
func (c *Client) Confirm(ctx context.Context, params payments.ConfirmParams) (*payments.Intent, error) {
	if strings.TrimSpace(params.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source is required")
	}
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = strings.TrimPrefix(params.IntentID, referencePrefix)
	}
	req := createPaymentRequest(params, c.locationID)
	c.log(ctx, "request", "create_payment", map[string]any{
		"reference": params.IntentID,
		"amount":    params.AmountCents,
		"source_id": params.SourceID,
	})

	resp, err := c.payments.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create payment")
	}
	intent := toIntent(resp.GetPayment())
	c.log(ctx, "response", "create_payment", map[string]any{"payment_id": intent.ID, "status": string(intent.Status)})
	if intent.Status == payments.IntentFailed {
		return intent, pkgerrors.New(pkgerrors.CodeProcessor, "square declined the payment")
	}
	return intent, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*payments.Intent, error) {
	if strings.HasPrefix(intentID, referencePrefix) {
		return &payments.Intent{ID: intentID, Status: payments.IntentRequiresAction}, nil
	}
	resp, err := c.payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: intentID})
	if err != nil {
		return nil, c.mapSquareError(err, "get payment")
	}
	return toIntent(resp.GetPayment()), nil
}

func (c *Client) Refund(ctx context.Context, params payments.RefundParams) (*payments.Refund, error) {
	if strings.HasPrefix(params.IntentID, referencePrefix) {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "square reference was never charged")
	}
	if params.IdempotencyKey == "" {
		params.IdempotencyKey = "refund-" + uuid.NewString()
	}
	c.log(ctx, "request", "refund_payment", map[string]any{"payment_id": params.IntentID, "amount": params.AmountCents})

	resp, err := c.refunds.RefundPayment(ctx, refundPaymentRequest(params))
	if err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "refund payment")
	}
	refund := resp.GetRefund()
	out := &payments.Refund{
		ID:     refund.GetID(),
		Status: stringValue(refund.GetStatus()),
	}
	if money := refund.GetAmountMoney(); money != nil && money.Amount != nil {
		out.AmountCents = *money.Amount
	}
	return out, nil
}

func toIntent(payment *sq.Payment) *payments.Intent {
	if payment == nil {
		return &payments.Intent{Status: payments.IntentFailed}
	}
	intent := &payments.Intent{
		ID:     stringValue(payment.GetID()),
		Status: statusFor(stringValue(payment.GetStatus())),
	}
	if money := payment.GetAmountMoney(); money != nil {
		if money.Amount != nil {
			intent.AmountCents = *money.Amount
		}
		if money.Currency != nil {
			intent.Currency = string(*money.Currency)
		}
	}
	return intent
}

func statusFor(status string) payments.IntentStatus {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return payments.IntentSucceeded
	case "APPROVED", "PENDING":
		return payments.IntentProcessing
	case "CANCELED":
		return payments.IntentCanceled
	case "FAILED":
		return payments.IntentFailed
	default:
		return payments.IntentRequiresAction
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "source", "nonce", "token", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
	}
	code := domainCodeForStatus(apiErr.StatusCode)
	message := fmt.Sprintf("square %s failed", op)
	for _, sqErr := range extractSquareErrors(apiErr) {
		if sqErr == nil {
			continue
		}
		if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeIdempotency
			break
		}
		if sqErr.Category == sq.ErrorCategoryAuthenticationError {
			code = pkgerrors.CodeUnauthorized
			break
		}
		if sqErr.Category == sq.ErrorCategoryPaymentMethodError {
			code = pkgerrors.CodeProcessor
			if sqErr.Detail != nil && *sqErr.Detail != "" {
				message = *sqErr.Detail
			}
			break
		}
	}
	return pkgerrors.Wrap(code, err, message)
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func domainCodeForStatus(status int) pkgerrors.Code {
	if status == http.StatusPaymentRequired {
		return pkgerrors.CodeProcessor
	}
	return pkgerrors.CodeForStatus(status)
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
