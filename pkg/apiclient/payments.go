package apiclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CreateIntent opens, or returns the existing, intent for an attempt. The
// attempt key doubles as the idempotency key when none is given.
func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest, opts CallOptions) (*Intent, error) {
	if opts.IdempotencyKey == "" {
		opts.IdempotencyKey = req.AttemptKey
	}
	var out Intent
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/intents", req, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessorConfirm has the backend confirm the charge with a tokenized card
// source, for processors without a shopper-side confirm.
func (c *Client) ProcessorConfirm(ctx context.Context, intentID uuid.UUID, sourceID string, opts CallOptions) (*Intent, error) {
	var out Intent
	body := map[string]string{"source_id": sourceID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/intents/"+intentID.String()+"/processor-confirm", body, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmIntent asks the backend to verify the processor charge and persist
// the order.
func (c *Client) ConfirmIntent(ctx context.Context, intentID uuid.UUID, opts CallOptions) (*ConfirmResult, error) {
	var out ConfirmResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/intents/"+intentID.String()+"/confirm", nil, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
