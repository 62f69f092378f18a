// Package cartsync moves a guest cart into the shopper's server cart once,
// right after they authenticate.
package cartsync

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/internal/storefront/cart"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// SyncKeyPrefix prefixes the idempotency key of each migrated guest line.
const SyncKeyPrefix = "guest-sync:"

type guestStorage interface {
	Items(ctx context.Context) ([]cart.Item, error)
	Clear(ctx context.Context) error
}

type serverCart interface {
	AddItem(ctx context.Context, req apiclient.AddItemRequest, opts apiclient.CallOptions) (*apiclient.Cart, error)
}

type reloader interface {
	Reload(ctx context.Context) error
}

// Report summarizes one reconciliation.
type Report struct {
	Attempted int
	Synced    int
	Failed    int
	// Skipped is set when the reconciler already ran for this login.
	Skipped bool
	// ItemErrors combines the per-line failures.
	ItemErrors error
}

type Params struct {
	Guest  guestStorage
	Server serverCart
	Cart   reloader
	Logger *logger.Logger
}

// Reconciler is armed once per guest to authenticated transition.
type Reconciler struct {
	guest  guestStorage
	server serverCart
	cart   reloader
	logg   *logger.Logger
	ran    atomic.Bool
}

func New(params Params) (*Reconciler, error) {
	if params.Guest == nil {
		return nil, fmt.Errorf("guest storage required")
	}
	if params.Server == nil {
		return nil, fmt.Errorf("server cart required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{guest: params.Guest, server: params.Server, cart: params.Cart, logg: params.Logger}, nil
}

// Run pushes every guest line to the server cart. A failed line is logged
// and skipped. Guest storage is cleared and the cart reloaded regardless of
// line failures; the returned error covers only those two steps.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	if !r.ran.CompareAndSwap(false, true) {
		return Report{Skipped: true}, nil
	}

	items, err := r.guest.Items(ctx)
	if err != nil {
		r.logg.Error(ctx, "read guest cart failed", err)
		items = nil
	}

	report := Report{Attempted: len(items)}
	for _, item := range items {
		itemCtx := r.logg.WithFields(ctx, map[string]any{
			"guest_item_id": item.ID.String(),
			"product_id":    item.ProductID.String(),
		})
		_, addErr := r.server.AddItem(itemCtx, apiclient.AddItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Edition:   item.Edition,
			ImageRef:  item.ImageRef,
		}, apiclient.CallOptions{IdempotencyKey: SyncKeyPrefix + item.ID.String()})
		if addErr != nil {
			r.logg.Warn(itemCtx, "guest line not synced: "+addErr.Error())
			report.Failed++
			report.ItemErrors = multierr.Append(report.ItemErrors, fmt.Errorf("item %s: %w", item.ID, addErr))
			continue
		}
		report.Synced++
	}

	var finishErr error
	if err != nil {
		finishErr = multierr.Append(finishErr, fmt.Errorf("read guest cart: %w", err))
	} else if clearErr := r.guest.Clear(ctx); clearErr != nil {
		r.logg.Error(ctx, "clear guest cart failed", clearErr)
		finishErr = multierr.Append(finishErr, fmt.Errorf("clear guest cart: %w", clearErr))
	}
	if reloadErr := r.cart.Reload(ctx); reloadErr != nil {
		finishErr = multierr.Append(finishErr, fmt.Errorf("reload cart: %w", reloadErr))
	}

	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"attempted": report.Attempted,
		"synced":    report.Synced,
		"failed":    report.Failed,
	}), "guest cart reconciled")
	return report, finishErr
}

// Rearm allows the next login to reconcile again.
func (r *Reconciler) Rearm() {
	r.ran.Store(false)
}

// Done reports whether the reconciler has run since the last Rearm.
func (r *Reconciler) Done() bool {
	return r.ran.Load()
}
