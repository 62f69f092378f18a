package apiclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// GetProduct reads a public catalog entry.
func (c *Client) GetProduct(ctx context.Context, productID uuid.UUID) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodGet, "/api/v1/products/"+productID.String(), nil, CallOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart", nil, CallOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddItem requires opts.IdempotencyKey; the server rejects unkeyed adds.
func (c *Client) AddItem(ctx context.Context, req AddItemRequest, opts CallOptions) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodPost, "/api/v1/cart/items", req, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateItem(ctx context.Context, itemID uuid.UUID, quantity int, opts CallOptions) (*Cart, error) {
	var out Cart
	body := map[string]int{"quantity": quantity}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/cart/items/"+itemID.String(), body, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveItem(ctx context.Context, itemID uuid.UUID, opts CallOptions) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodDelete, "/api/v1/cart/items/"+itemID.String(), nil, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearCart(ctx context.Context, opts CallOptions) (*Cart, error) {
	var out Cart
	if err := c.do(ctx, http.MethodDelete, "/api/v1/cart", nil, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Checkout turns the server cart into a non-card order.
func (c *Client) Checkout(ctx context.Context, req CheckoutRequest, opts CallOptions) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodPost, "/api/v1/cart/checkout", req, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
