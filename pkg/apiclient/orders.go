package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

func (c *Client) ListOrders(ctx context.Context, limit int, cursor string) (*OrderPage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	path := "/api/v1/orders"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out OrderPage
	if err := c.do(ctx, http.MethodGet, path, nil, CallOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders/"+orderID.String(), nil, CallOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels a pending order immediately.
func (c *Client) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, opts CallOptions) (*Order, error) {
	var out Order
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", body, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestCancellation files a request for an admin to cancel a settled order.
func (c *Client) RequestCancellation(ctx context.Context, orderID uuid.UUID, reason string, additionalInfo *string, opts CallOptions) (*Order, error) {
	var out Order
	body := struct {
		Reason         string  `json:"reason"`
		AdditionalInfo *string `json:"additional_info,omitempty"`
	}{Reason: reason, AdditionalInfo: additionalInfo}
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancellation-requests", body, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
