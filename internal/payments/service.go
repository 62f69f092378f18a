package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	dbpkg "github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
	paypkg "github.com/angelmondragon/storefront/pkg/payments"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Service is the backend payment API: it prices and opens intents with the
// configured processor and turns a succeeded intent into exactly one order.
type Service interface {
	CreateIntent(ctx context.Context, userID uuid.UUID, input CreateIntentInput) (*IntentView, error)
	ProcessorConfirm(ctx context.Context, userID, intentID uuid.UUID, sourceID string) (*IntentView, error)
	Confirm(ctx context.Context, userID, intentID uuid.UUID) (*ConfirmResult, error)
	Reconcile(ctx context.Context, params ReconcileParams) (ReconcileReport, error)
}

// CreateIntentInput is one checkout attempt. AttemptKey makes retries land
// on the same intent; ExpectedAmountCents, when set, must match the server
// price.
type CreateIntentInput struct {
	AttemptKey          string
	Items               []catalog.ItemRef
	Contact             types.Contact
	ShippingAddress     types.Address
	BillingAddress      *types.Address
	ShippingMethod      string
	Notes               string
	Currency            string
	ExpectedAmountCents *int64
}

// ReconcileParams bounds one reconciliation sweep.
type ReconcileParams struct {
	ConfirmBefore time.Time
	AbandonBefore time.Time
	Limit         int
}

// ReconcileReport summarizes a sweep.
type ReconcileReport struct {
	Checked   int
	Confirmed int
	Failed    int
	Abandoned int
}

type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Processor  paypkg.Processor
	Catalog    pricer
	Orders     orderCreator
	OrderRepo  orderFinder
	Outbox     outboxPublisher
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
	Currency   string
}

type service struct {
	repo      Repository
	tx        txRunner
	processor paypkg.Processor
	catalog   pricer
	orders    orderCreator
	orderRepo orderFinder
	outbox    outboxPublisher
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	currency  string
}

// NewService builds the payment service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog pricer required")
	}
	if params.Orders == nil || params.OrderRepo == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:      params.Repository,
		tx:        params.TxRunner,
		processor: params.Processor,
		catalog:   params.Catalog,
		orders:    params.Orders,
		orderRepo: params.OrderRepo,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
		currency:  currency,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, userID uuid.UUID, input CreateIntentInput) (*IntentView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	attempt := strings.TrimSpace(input.AttemptKey)
	if attempt == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "attempt key required").
			WithDetails(map[string]any{"field": "attempt_key"})
	}
	if existing, err := s.repo.FindByUserAttempt(ctx, userID, attempt); err == nil {
		view := toIntentView(existing)
		return &view, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}

	if strings.TrimSpace(input.Contact.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "contact email is required for card payments")
	}
	var items types.LineItems
	if len(input.Items) > 0 {
		priced, err := s.catalog.Price(ctx, nil, input.Items)
		if err != nil {
			return nil, err
		}
		items = priced
	}
	totals := types.ComputeTotals(items)
	amount := types.ToCents(totals.Total)
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment amount must be positive")
	}
	if input.ExpectedAmountCents != nil && *input.ExpectedAmountCents != amount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart total changed; review before paying").
			WithDetails(map[string]any{"field": "amount_cents", "server_amount_cents": amount})
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	processorName := string(s.processor.Name())
	remote, err := s.processor.CreateIntent(ctx, paypkg.CreateIntentParams{
		AmountCents:    amount,
		Currency:       currency,
		IdempotencyKey: "intent:" + userID.String() + ":" + attempt,
		ReceiptEmail:   input.Contact.Email,
		Reference:      attempt,
	})
	if err != nil {
		s.metrics.IncIntent(processorName, "create_failed")
		return nil, err
	}

	intent := &models.PaymentIntent{
		UserID:            userID,
		AttemptKey:        attempt,
		Processor:         s.processor.Name(),
		ProcessorIntentID: remote.ID,
		ClientSecret:      remote.ClientSecret,
		AmountCents:       amount,
		Currency:          currency,
		Status:            enums.PaymentIntentStatusCreated,
		Items:             items,
		Contact:           input.Contact,
		ShippingAddress:   input.ShippingAddress.Normalize(),
		BillingAddress:    input.BillingAddress,
		ShippingMethod:    input.ShippingMethod,
		Notes:             input.Notes,
	}
	if err := s.repo.Create(ctx, intent); err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_payment_intents_user_attempt") {
			existing, findErr := s.repo.FindByUserAttempt(ctx, userID, attempt)
			if findErr == nil {
				view := toIntentView(existing)
				return &view, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
	}
	s.metrics.IncIntent(processorName, "created")

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
		"payment_intent_id": intent.ID.String(),
		"processor":         processorName,
		"amount_cents":      amount,
	})
	s.logg.Info(logCtx, "payment intent created")

	view := toIntentView(intent)
	return &view, nil
}

// ProcessorConfirm charges a tokenized card through the backend for
// processors whose confirmation needs a server credential.
func (s *service) ProcessorConfirm(ctx context.Context, userID, intentID uuid.UUID, sourceID string) (*IntentView, error) {
	intent, err := s.load(ctx, s.repo, userID, intentID)
	if err != nil {
		return nil, err
	}
	switch intent.Status {
	case enums.PaymentIntentStatusSucceeded, enums.PaymentIntentStatusConfirmed:
		view := toIntentView(intent)
		return &view, nil
	case enums.PaymentIntentStatusCreated:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent is closed").
			WithDetails(map[string]any{"status": intent.Status})
	}

	remote, err := s.processor.Confirm(ctx, paypkg.ConfirmParams{
		IntentID:       intent.ProcessorIntentID,
		ClientSecret:   intent.ClientSecret,
		SourceID:       sourceID,
		AmountCents:    intent.AmountCents,
		Currency:       intent.Currency,
		IdempotencyKey: "confirm:" + intent.ID.String(),
	})
	if remote == nil {
		return nil, err
	}
	if remote.Status == paypkg.IntentFailed {
		s.markFailed(ctx, intent, failureMessage(remote, err))
		if err == nil {
			err = pkgerrors.New(pkgerrors.CodeProcessor, failureMessage(remote, nil))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if remote.ID != "" && remote.ID != intent.ProcessorIntentID {
		updates["processor_intent_id"] = remote.ID
		updates["processor_charge_id"] = remote.ID
	}
	if remote.Status == paypkg.IntentSucceeded {
		updates["status"] = enums.PaymentIntentStatusSucceeded
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, intent.ID, []enums.PaymentIntentStatus{enums.PaymentIntentStatusCreated}, updates); err != nil && !errors.Is(err, ErrStaleIntent) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processor confirmation")
		}
	}
	fresh, err := s.repo.FindByID(ctx, intent.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment intent")
	}
	view := toIntentView(fresh)
	return &view, nil
}

// Confirm is the backend confirmation. It is idempotent: an intent that
// already produced an order returns that order.
func (s *service) Confirm(ctx context.Context, userID, intentID uuid.UUID) (*ConfirmResult, error) {
	intent, err := s.load(ctx, s.repo, userID, intentID)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, intent)
}

func (s *service) settle(ctx context.Context, intent *models.PaymentIntent) (*ConfirmResult, error) {
	switch intent.Status {
	case enums.PaymentIntentStatusConfirmed:
		return s.confirmed(ctx, intent)
	case enums.PaymentIntentStatusFailed, enums.PaymentIntentStatusCanceled:
		msg := "payment failed"
		if intent.FailureReason != nil {
			msg = *intent.FailureReason
		}
		return nil, pkgerrors.New(pkgerrors.CodeProcessor, msg)
	}

	remote, err := s.processor.RetrieveIntent(ctx, intent.ProcessorIntentID)
	if err != nil {
		return nil, err
	}
	switch remote.Status {
	case paypkg.IntentSucceeded:
	case paypkg.IntentFailed, paypkg.IntentCanceled:
		msg := failureMessage(remote, nil)
		s.markFailed(ctx, intent, msg)
		return nil, pkgerrors.New(pkgerrors.CodeProcessor, msg)
	default:
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment has not completed with the processor").
			WithDetails(map[string]any{"processor_status": remote.Status})
	}
	if remote.AmountCents > 0 && remote.AmountCents != intent.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "processor amount does not match the intent").
			WithDetails(map[string]any{"intent_amount_cents": intent.AmountCents, "processor_amount_cents": remote.AmountCents})
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		intentID := intent.ID
		created, err := s.orders.Create(ctx, tx, orders.CreateInput{
			UserID:          intent.UserID,
			PaymentMethod:   enums.PaymentMethodCard,
			PaymentIntentID: &intentID,
			Items:           intent.Items,
			Currency:        intent.Currency,
			Contact:         intent.Contact,
			ShippingAddress: intent.ShippingAddress,
			BillingAddress:  intent.BillingAddress,
			ShippingMethod:  intent.ShippingMethod,
			Notes:           intent.Notes,
		})
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		err = repo.Update(ctx, intent.ID,
			[]enums.PaymentIntentStatus{enums.PaymentIntentStatusCreated, enums.PaymentIntentStatusSucceeded},
			map[string]any{
				"status":       enums.PaymentIntentStatusConfirmed,
				"order_id":     created.ID,
				"confirmed_at": now,
			})
		if err != nil {
			return err
		}
		orderID := created.ID
		if err := s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSucceeded,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Actor:         &outbox.ActorRef{UserID: intent.UserID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.PaymentEvent{
				PaymentIntentID: intent.ID,
				Processor:       intent.Processor,
				AmountCents:     intent.AmountCents,
				OrderID:         &orderID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment succeeded")
		}
		order = created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaleIntent) || dbpkg.IsUniqueViolation(err, "") {
			fresh, findErr := s.repo.FindByID(ctx, intent.ID)
			if findErr == nil && fresh.Status == enums.PaymentIntentStatusConfirmed {
				return s.confirmed(ctx, fresh)
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment intent changed concurrently")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}

	s.metrics.IncIntent(string(intent.Processor), "confirmed")
	logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, intent.UserID.String()), order.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "payment_intent_id", intent.ID.String()), "payment confirmed")

	intent.Status = enums.PaymentIntentStatusConfirmed
	intent.OrderID = &order.ID
	return &ConfirmResult{Intent: toIntentView(intent), Order: orders.ViewOf(*order)}, nil
}

func (s *service) confirmed(ctx context.Context, intent *models.PaymentIntent) (*ConfirmResult, error) {
	if intent.OrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "confirmed intent has no order")
	}
	order, err := s.orderRepo.FindByID(ctx, *intent.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &ConfirmResult{Intent: toIntentView(intent), Order: orders.ViewOf(*order)}, nil
}

// Reconcile settles intents the shopper's client never confirmed: paid ones
// get their order, declined ones are closed and stale unpaid ones abandoned.
func (s *service) Reconcile(ctx context.Context, params ReconcileParams) (ReconcileReport, error) {
	var report ReconcileReport
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	intents, err := s.repo.ListUnsettled(ctx, params.ConfirmBefore, limit)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled intents")
	}

	var errs error
	for i := range intents {
		intent := &intents[i]
		report.Checked++
		_, err := s.settle(ctx, intent)
		switch {
		case err == nil:
			report.Confirmed++
		case pkgerrors.IsCode(err, pkgerrors.CodeProcessor):
			report.Failed++
		case pkgerrors.IsCode(err, pkgerrors.CodePrecondition):
			if !params.AbandonBefore.IsZero() && intent.CreatedAt.Before(params.AbandonBefore) {
				if abandonErr := s.repo.Update(ctx, intent.ID,
					[]enums.PaymentIntentStatus{enums.PaymentIntentStatusCreated},
					map[string]any{"status": enums.PaymentIntentStatusCanceled, "failure_reason": "abandoned"}); abandonErr != nil {
					errs = multierr.Append(errs, fmt.Errorf("abandon intent %s: %w", intent.ID, abandonErr))
					continue
				}
				report.Abandoned++
				s.metrics.IncIntent(string(intent.Processor), "abandoned")
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("settle intent %s: %w", intent.ID, err))
		}
	}
	return report, errs
}

func (s *service) load(ctx context.Context, repo Repository, userID, intentID uuid.UUID) (*models.PaymentIntent, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	intent, err := repo.FindByID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment intent does not exist; create it first")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "payment intent does not exist; create it first")
	}
	return intent, nil
}

func (s *service) markFailed(ctx context.Context, intent *models.PaymentIntent, reason string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, intent.ID,
			[]enums.PaymentIntentStatus{enums.PaymentIntentStatusCreated, enums.PaymentIntentStatusSucceeded},
			map[string]any{"status": enums.PaymentIntentStatusFailed, "failure_reason": reason}); err != nil {
			return err
		}
		return s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentEvent{
				PaymentIntentID: intent.ID,
				Processor:       intent.Processor,
				AmountCents:     intent.AmountCents,
				FailureReason:   &reason,
			},
		})
	})
	logCtx := s.logg.WithFields(ctx, map[string]any{"payment_intent_id": intent.ID.String(), "reason": reason})
	if err != nil && !errors.Is(err, ErrStaleIntent) {
		s.logg.Error(logCtx, "record payment failure", err)
		return
	}
	intent.Status = enums.PaymentIntentStatusFailed
	intent.FailureReason = &reason
	s.metrics.IncIntent(string(intent.Processor), "failed")
	s.logg.Warn(logCtx, "payment failed")
}

func failureMessage(remote *paypkg.Intent, err error) string {
	if remote != nil && remote.FailureMsg != "" {
		return remote.FailureMsg
	}
	if appErr := pkgerrors.As(err); appErr != nil && appErr.Message() != "" {
		return appErr.Message()
	}
	return "payment was declined"
}
