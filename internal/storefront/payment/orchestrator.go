// Package payment drives one payment attempt from intent creation through
// processor and backend confirmation, and repairs attempts whose
// post-charge steps failed.
package payment

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/internal/storefront/checkout"
	"github.com/angelmondragon/storefront/internal/storefront/localstore"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	pkgcheckout "github.com/angelmondragon/storefront/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	paypkg "github.com/angelmondragon/storefront/pkg/payments"
	"github.com/angelmondragon/storefront/pkg/types"
)

// State is the position of the attempt in the payment saga.
type State string

const (
	StateIdle                State = "idle"
	StateIntentCreated       State = "intent_created"
	StateProcessorConfirming State = "processor_confirming"
	StateBackendConfirmed    State = "backend_confirmed"
	StateFailed              State = "failed"
)

// NoticeLevel grades a user-facing message.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is the message shown to the shopper after a step.
type Notice struct {
	Level   NoticeLevel    `json:"level"`
	Message string         `json:"message"`
	Kind    pkgerrors.Kind `json:"kind,omitempty"`
}

type backendAPI interface {
	CreateIntent(ctx context.Context, req apiclient.CreateIntentRequest, opts apiclient.CallOptions) (*apiclient.Intent, error)
	ConfirmIntent(ctx context.Context, intentID uuid.UUID, opts apiclient.CallOptions) (*apiclient.ConfirmResult, error)
	Checkout(ctx context.Context, req apiclient.CheckoutRequest, opts apiclient.CallOptions) (*apiclient.Order, error)
}

type cartClearer interface {
	Clear(ctx context.Context) error
}

type jobQueue interface {
	EnqueueJob(ctx context.Context, job localstore.CompensationJob) (*localstore.CompensationJob, error)
	ClaimCartClear(ctx context.Context, intentID, owner uuid.UUID) (bool, error)
	ReleaseCartClear(ctx context.Context, intentID, owner uuid.UUID) error
}

type Params struct {
	API       backendAPI
	Confirmer ProcessorConfirmer
	Cart      cartClearer
	Jobs      jobQueue
	Logger    *logger.Logger
	Currency  string
}

// Result is what a finished step hands back to the caller.
type Result struct {
	State State            `json:"state"`
	Order *apiclient.Order `json:"order,omitempty"`
	// Pending is set when the charge went through but finishing the order
	// was queued for retry.
	Pending bool `json:"pending"`
}

// Orchestrator owns one payment attempt. Steps are serialized by an
// in-flight guard; a second submit while one runs is rejected.
type Orchestrator struct {
	api       backendAPI
	confirmer ProcessorConfirmer
	cart      cartClearer
	jobs      jobQueue
	logg      *logger.Logger
	currency  string

	inFlight atomic.Bool

	mu            sync.Mutex
	state         State
	attemptKey    string
	intent        *apiclient.Intent
	paidLines     types.LineItems
	processorDone bool
	order         *apiclient.Order
	cartCleared   bool
	notice        *Notice
}

func New(params Params) (*Orchestrator, error) {
	if params.API == nil {
		return nil, fmt.Errorf("backend api required")
	}
	if params.Confirmer == nil {
		return nil, fmt.Errorf("processor confirmer required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("compensation job queue required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	o := &Orchestrator{
		api:       params.API,
		confirmer: params.Confirmer,
		cart:      params.Cart,
		jobs:      params.Jobs,
		logg:      params.Logger,
		currency:  params.Currency,
	}
	o.Reset()
	return o, nil
}

// Reset starts a fresh attempt with a new attempt key.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
	o.attemptKey = uuid.NewString()
	o.intent = nil
	o.paidLines = nil
	o.processorDone = false
	o.order = nil
	o.cartCleared = false
	o.notice = nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) AttemptKey() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attemptKey
}

func (o *Orchestrator) Intent() (apiclient.Intent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.intent == nil {
		return apiclient.Intent{}, false
	}
	return *o.intent, true
}

// Notice returns the latest user-facing message, if any.
func (o *Orchestrator) Notice() (Notice, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.notice == nil {
		return Notice{}, false
	}
	return *o.notice, true
}

func (o *Orchestrator) Busy() bool { return o.inFlight.Load() }

func (o *Orchestrator) begin() error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return pkgerrors.New(pkgerrors.CodeConflict, "a payment step is already in progress")
	}
	return nil
}

func (o *Orchestrator) end() { o.inFlight.Store(false) }

// CreateIntent opens the processor intent for the checkout. Repeating it
// within the same attempt returns the intent already created.
func (o *Orchestrator) CreateIntent(ctx context.Context, ci checkout.Intent) (*apiclient.Intent, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.end()

	o.mu.Lock()
	state, existing, attempt := o.state, o.intent, o.attemptKey
	o.mu.Unlock()
	if existing != nil && state != StateFailed {
		intent := *existing
		return &intent, nil
	}
	if state == StateFailed {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment attempt failed; start a new attempt")
	}

	if err := pkgcheckout.ValidatePaymentStreet(ci.ShippingAddress.Street); err != nil {
		return nil, o.fail(ctx, err, false)
	}
	amount := types.ToCents(ci.TotalSnapshot.Total)
	if amount <= 0 {
		return nil, o.fail(ctx, pkgerrors.New(pkgerrors.CodeInternal, "payment amount must be positive"), false)
	}
	if ci.Contact.Email == "" {
		return nil, o.fail(ctx, pkgerrors.New(pkgerrors.CodeInternal, "contact email is required for card payments"), false)
	}

	items := make([]apiclient.AddItemRequest, 0, len(ci.Items))
	for _, item := range ci.Items {
		items = append(items, apiclient.AddItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Edition:   item.Edition,
			ImageRef:  item.ImageRef,
		})
	}
	intent, err := o.api.CreateIntent(ctx, apiclient.CreateIntentRequest{
		AttemptKey:          attempt,
		Items:               items,
		Contact:             ci.Contact,
		ShippingAddress:     ci.ShippingAddress,
		BillingAddress:      ci.BillingAddress,
		ShippingMethod:      ci.ShippingMethod,
		Notes:               ci.Notes,
		Currency:            o.currency,
		ExpectedAmountCents: &amount,
	}, apiclient.CallOptions{IdempotencyKey: attempt})
	if err != nil {
		return nil, o.fail(ctx, err, false)
	}

	o.mu.Lock()
	o.intent = intent
	o.paidLines = slices.Clone(ci.Items)
	o.state = StateIntentCreated
	o.notice = nil
	o.mu.Unlock()
	o.logg.Info(o.logCtx(ctx), "payment intent created")
	out := *intent
	return &out, nil
}

// Confirm charges sourceID against the created intent, confirms the order
// with the backend and clears the cart. Processor errors are final for the
// attempt; failures after the charge are queued as compensation jobs.
func (o *Orchestrator) Confirm(ctx context.Context, sourceID string) (*Result, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.end()

	o.mu.Lock()
	state, intent, processorDone := o.state, o.intent, o.processorDone
	o.mu.Unlock()
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "create the payment intent before confirming")
	}
	switch state {
	case StateBackendConfirmed:
		return o.result(false), nil
	case StateFailed:
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment attempt failed; start a new attempt")
	}

	o.setState(StateProcessorConfirming)
	if !processorDone {
		status, err := o.confirmer.ConfirmWithProcessor(ctx, *intent, sourceID)
		if err != nil {
			return nil, o.fail(ctx, err, true)
		}
		if status != paypkg.IntentSucceeded {
			return nil, o.fail(ctx, pkgerrors.New(pkgerrors.CodeProcessor, fmt.Sprintf("payment was not completed (%s)", status)), true)
		}
		o.mu.Lock()
		o.processorDone = true
		o.mu.Unlock()
		o.logg.Info(o.logCtx(ctx), "processor confirmed payment")
	}

	confirmed, err := o.api.ConfirmIntent(ctx, intent.ID, apiclient.CallOptions{IdempotencyKey: "confirm:" + intent.ID.String()})
	if err != nil {
		o.logg.Error(o.logCtx(ctx), "backend confirm failed after charge, queueing compensation", err)
		o.enqueue(ctx, intent.ID, localstore.StepBackendConfirm, err)
		o.setNotice(Notice{Level: NoticeWarning, Message: "Payment received. Your order is being finalized.", Kind: pkgerrors.KindOf(err)})
		return o.result(true), nil
	}

	o.mu.Lock()
	o.state = StateBackendConfirmed
	o.order = &confirmed.Order
	o.mu.Unlock()
	o.clearCartOnce(ctx, intent.ID)
	o.setNotice(Notice{Level: NoticeSuccess, Message: "Payment successful. Your order has been placed."})
	o.logg.Info(o.logg.WithOrderID(o.logCtx(ctx), confirmed.Order.ID.String()), "order placed")
	return o.result(false), nil
}

// PlaceOrder settles a non-card checkout. The cart is cleared only after
// the backend accepted the order.
func (o *Orchestrator) PlaceOrder(ctx context.Context, ci checkout.Intent) (*Result, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.end()

	if ci.PaymentMethod.Prepaid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card payments go through the payment intent flow")
	}
	o.mu.Lock()
	state, attempt := o.state, o.attemptKey
	o.mu.Unlock()
	switch state {
	case StateBackendConfirmed:
		return o.result(false), nil
	case StateFailed:
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment attempt failed; start a new attempt")
	}

	order, err := o.api.Checkout(ctx, apiclient.CheckoutRequest{
		PaymentMethod:   ci.PaymentMethod,
		Contact:         ci.Contact,
		ShippingAddress: ci.ShippingAddress,
		BillingAddress:  ci.BillingAddress,
		ShippingMethod:  ci.ShippingMethod,
		Notes:           ci.Notes,
		Currency:        o.currency,
	}, apiclient.CallOptions{IdempotencyKey: attempt})
	if err != nil {
		return nil, o.fail(ctx, err, false)
	}

	o.mu.Lock()
	o.state = StateBackendConfirmed
	o.order = order
	o.mu.Unlock()
	if !o.markCleared() {
		if err := o.cart.Clear(ctx); err != nil {
			o.logg.Warn(o.logCtx(ctx), "clearing cart after order failed: "+err.Error())
		}
	}
	o.setNotice(Notice{Level: NoticeSuccess, Message: "Your order has been placed."})
	o.logg.Info(o.logg.WithOrderID(o.logCtx(ctx), order.ID.String()), "order placed")
	return o.result(false), nil
}

// clearCartOnce clears the cart at most once per payment. The claim keeps a
// queued clear job and a repeated confirm from both clearing; a failed clear
// hands the claim back and is queued for the compensator instead.
func (o *Orchestrator) clearCartOnce(ctx context.Context, intentID uuid.UUID) {
	if o.markCleared() {
		return
	}
	owner := uuid.New()
	claimed, err := o.jobs.ClaimCartClear(ctx, intentID, owner)
	if err != nil {
		o.logg.Error(o.logCtx(ctx), "could not claim cart clear, queueing compensation", err)
		o.enqueue(ctx, intentID, localstore.StepClearCart, err)
		return
	}
	if !claimed {
		o.logg.Info(o.logCtx(ctx), "cart already cleared for this payment")
		return
	}
	if err := o.cart.Clear(ctx); err != nil {
		if releaseErr := o.jobs.ReleaseCartClear(ctx, intentID, owner); releaseErr != nil {
			o.logg.Error(o.logCtx(ctx), "could not release cart clear claim", releaseErr)
		}
		o.logg.Warn(o.logCtx(ctx), "clearing cart after payment failed, queueing compensation")
		o.enqueue(ctx, intentID, localstore.StepClearCart, err)
	}
}

// markCleared reports whether the cart had already been cleared.
func (o *Orchestrator) markCleared() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	done := o.cartCleared
	o.cartCleared = true
	return done
}

func (o *Orchestrator) enqueue(ctx context.Context, intentID uuid.UUID, step localstore.CompensationStep, cause error) {
	o.mu.Lock()
	paid := slices.Clone(o.paidLines)
	o.mu.Unlock()
	_, err := o.jobs.EnqueueJob(ctx, localstore.CompensationJob{
		PaymentIntentID: intentID,
		Step:            step,
		PaidLines:       paid,
		LastError:       cause.Error(),
	})
	if err != nil {
		o.logg.Error(o.logg.WithField(o.logCtx(ctx), "step", string(step)), "could not persist compensation job", err)
	}
}

// fail records err for the shopper. Processor messages are shown verbatim.
func (o *Orchestrator) fail(ctx context.Context, err error, terminal bool) error {
	o.mu.Lock()
	if terminal || o.state != StateIdle {
		o.state = StateFailed
	}
	o.notice = &Notice{Level: NoticeError, Message: userMessage(err), Kind: pkgerrors.KindOf(err)}
	o.mu.Unlock()
	o.logg.Error(o.logCtx(ctx), "payment step failed", err)
	return err
}

func userMessage(err error) string {
	if coded := pkgerrors.As(err); coded != nil {
		return coded.Message()
	}
	return "Something went wrong. Please try again."
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) setNotice(n Notice) {
	o.mu.Lock()
	o.notice = &n
	o.mu.Unlock()
}

func (o *Orchestrator) result(pending bool) *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := &Result{State: o.state, Pending: pending}
	if o.order != nil {
		order := *o.order
		res.Order = &order
	}
	return res
}

func (o *Orchestrator) logCtx(ctx context.Context) context.Context {
	o.mu.Lock()
	fields := map[string]any{"attempt_key": o.attemptKey, "payment_state": string(o.state)}
	if o.intent != nil {
		fields["payment_intent_id"] = o.intent.ID.String()
	}
	o.mu.Unlock()
	return o.logg.WithFields(ctx, fields)
}
