package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront/internal/storefront/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// Route is where the shopper should be after a navigation decision.
type Route string

const (
	RouteCheckout Route = "checkout"
	RoutePayment  Route = "payment"
)

// Navigator is the in-memory navigation state between the checkout and
// payment steps. Nothing in it is ever persisted.
type Navigator struct {
	mu     sync.Mutex
	intent *Intent
}

func (n *Navigator) put(intent Intent) {
	n.mu.Lock()
	n.intent = &intent
	n.mu.Unlock()
}

// Current returns the pending intent, if any.
func (n *Navigator) Current() (Intent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.intent == nil {
		return Intent{}, false
	}
	return *n.intent, true
}

// Discard drops the intent, e.g. when the shopper leaves the flow or pays.
func (n *Navigator) Discard() {
	n.mu.Lock()
	n.intent = nil
	n.mu.Unlock()
}

type cartReader interface {
	Snapshot() cart.Snapshot
}

type Params struct {
	Cart      cartReader
	Navigator *Navigator
	Logger    *logger.Logger
	Now       func() time.Time
}

// Orchestrator turns a valid form plus the current cart into an Intent.
type Orchestrator struct {
	cart     cartReader
	nav      *Navigator
	logg     *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func New(params Params) (*Orchestrator, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	nav := params.Navigator
	if nav == nil {
		nav = &Navigator{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{cart: params.Cart, nav: nav, logg: params.Logger, validate: newValidator(), now: now}, nil
}

func (o *Orchestrator) Navigator() *Navigator { return o.nav }

// Proceed validates form against the current cart and, on success, stores
// the intent for the payment step.
func (o *Orchestrator) Proceed(ctx context.Context, form Form) (Intent, error) {
	snap := o.cart.Snapshot()
	if snap.Busy {
		return Intent{}, pkgerrors.New(pkgerrors.CodePrecondition, "cart is still updating")
	}
	if len(snap.Items) == 0 {
		return Intent{}, pkgerrors.New(pkgerrors.CodePrecondition, "cart is empty")
	}
	if err := Validate(o.validate, form); err != nil {
		return Intent{}, err
	}

	var billing = form.BillingAddress
	if billing != nil {
		normalized := billing.Normalize()
		billing = &normalized
	}
	intent := Intent{
		Contact:         trimContact(form.Contact),
		ShippingAddress: form.ShippingAddress.Normalize(),
		BillingAddress:  billing,
		ShippingMethod:  form.ShippingMethod,
		Notes:           form.Notes,
		PaymentMethod:   form.PaymentMethod,
		Items:           cart.LineItems(snap.Items),
		TotalSnapshot:   snap.Totals,
		CreatedAt:       o.now(),
	}
	o.nav.put(intent)
	o.logg.Info(o.logg.WithField(ctx, "payment_method", string(intent.PaymentMethod)), "checkout intent ready")
	return intent, nil
}

// EnterPayment returns the pending intent, or RouteCheckout when there is
// none so the caller redirects instead of attempting payment.
func (o *Orchestrator) EnterPayment() (Intent, Route) {
	intent, ok := o.nav.Current()
	if !ok {
		return Intent{}, RouteCheckout
	}
	return intent, RoutePayment
}
