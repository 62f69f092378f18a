// Package orderflow is the shopper's view of their orders: listing,
// refreshing, cancelling and asking for cancellation. Actions the order
// policy forbids are rejected before any request is sent.
package orderflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/apiclient"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/orderpolicy"
)

const maxReasonLength = 500

type ordersAPI interface {
	ListOrders(ctx context.Context, limit int, cursor string) (*apiclient.OrderPage, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*apiclient.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, opts apiclient.CallOptions) (*apiclient.Order, error)
	RequestCancellation(ctx context.Context, orderID uuid.UUID, reason string, additionalInfo *string, opts apiclient.CallOptions) (*apiclient.Order, error)
}

// Flow caches the orders it has seen so policy checks run on the latest
// known status.
type Flow struct {
	api  ordersAPI
	logg *logger.Logger

	mu     sync.RWMutex
	orders map[uuid.UUID]apiclient.Order
}

func New(api ordersAPI, logg *logger.Logger) (*Flow, error) {
	if api == nil {
		return nil, fmt.Errorf("orders api required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Flow{api: api, logg: logg, orders: map[uuid.UUID]apiclient.Order{}}, nil
}

func (f *Flow) List(ctx context.Context, limit int, cursor string) (*apiclient.OrderPage, error) {
	page, err := f.api.ListOrders(ctx, limit, cursor)
	if err != nil {
		return nil, err
	}
	for _, order := range page.Items {
		f.remember(order)
	}
	return page, nil
}

// Get refreshes one order from the backend.
func (f *Flow) Get(ctx context.Context, orderID uuid.UUID) (*apiclient.Order, error) {
	order, err := f.api.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	f.remember(*order)
	return order, nil
}

// Capabilities reports what the shopper may do with a known order.
func (f *Flow) Capabilities(orderID uuid.UUID) (orderpolicy.Capabilities, bool) {
	order, ok := f.cached(orderID)
	if !ok {
		return orderpolicy.Capabilities{}, false
	}
	return orderpolicy.For(order.Status, order.Cancellation != nil), true
}

// Cancel cancels a pending order. Any other status is rejected locally and
// the cached order is left as it was.
func (f *Flow) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*apiclient.Order, error) {
	reason, err := cleanReason(reason)
	if err != nil {
		return nil, err
	}
	order, err := f.current(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !orderpolicy.CanCancel(order.Status) {
		return nil, disallowed(order, "order can only be cancelled while pending")
	}

	updated, err := f.api.CancelOrder(ctx, orderID, reason, apiclient.CallOptions{IdempotencyKey: "cancel:" + orderID.String()})
	if err != nil {
		f.refreshOnStateError(ctx, orderID, err)
		return nil, err
	}
	f.remember(*updated)
	f.logg.Info(f.logg.WithOrderID(ctx, orderID.String()), "order cancelled")
	return updated, nil
}

// RequestCancellation asks an admin to cancel a processing order.
func (f *Flow) RequestCancellation(ctx context.Context, orderID uuid.UUID, reason string, additionalInfo *string) (*apiclient.Order, error) {
	reason, err := cleanReason(reason)
	if err != nil {
		return nil, err
	}
	if additionalInfo != nil {
		info := strings.TrimSpace(*additionalInfo)
		if info == "" {
			additionalInfo = nil
		} else {
			additionalInfo = &info
		}
	}
	order, err := f.current(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !orderpolicy.CanRequestCancellation(order.Status, order.Cancellation != nil) {
		if orderpolicy.CanCancel(order.Status) {
			return nil, disallowed(order, "pending orders are cancelled directly")
		}
		return nil, disallowed(order, "cancellation cannot be requested in this status")
	}

	updated, err := f.api.RequestCancellation(ctx, orderID, reason, additionalInfo, apiclient.CallOptions{IdempotencyKey: "cancel-request:" + orderID.String()})
	if err != nil {
		f.refreshOnStateError(ctx, orderID, err)
		return nil, err
	}
	f.remember(*updated)
	f.logg.Info(f.logg.WithOrderID(ctx, orderID.String()), "cancellation requested")
	return updated, nil
}

func (f *Flow) current(ctx context.Context, orderID uuid.UUID) (apiclient.Order, error) {
	if order, ok := f.cached(orderID); ok {
		return order, nil
	}
	order, err := f.Get(ctx, orderID)
	if err != nil {
		return apiclient.Order{}, err
	}
	return *order, nil
}

// refreshOnStateError reloads an order the backend says moved on, so the
// next policy check sees the new status.
func (f *Flow) refreshOnStateError(ctx context.Context, orderID uuid.UUID, err error) {
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) && !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return
	}
	if _, refreshErr := f.Get(ctx, orderID); refreshErr != nil {
		f.logg.Warn(f.logg.WithOrderID(ctx, orderID.String()), "order refresh failed: "+refreshErr.Error())
	}
}

func (f *Flow) cached(orderID uuid.UUID) (apiclient.Order, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	order, ok := f.orders[orderID]
	return order, ok
}

func (f *Flow) remember(order apiclient.Order) {
	f.mu.Lock()
	f.orders[order.ID] = order
	f.mu.Unlock()
}

// Forget drops every cached order, e.g. on logout.
func (f *Flow) Forget() {
	f.mu.Lock()
	f.orders = map[uuid.UUID]apiclient.Order{}
	f.mu.Unlock()
}

func cleanReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "a reason is required").
			WithDetails(map[string]any{"field": "reason"})
	}
	if len(reason) > maxReasonLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLength)).
			WithDetails(map[string]any{"field": "reason"})
	}
	return reason, nil
}

func disallowed(order apiclient.Order, msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(map[string]any{
		"status":       order.Status,
		"capabilities": orderpolicy.For(order.Status, order.Cancellation != nil),
	})
}
