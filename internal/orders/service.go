package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/orderpolicy"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront/pkg/pagination"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Service is the order ledger: creation on behalf of checkout and payments,
// shopper reads and cancellations, and admin adjudication.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderView, error)
	RequestCancellation(ctx context.Context, input RequestCancellationInput) (*OrderView, error)
	ApproveCancellation(ctx context.Context, input ApproveInput) (*OrderView, error)
	RejectCancellation(ctx context.Context, input RejectInput) (*OrderView, error)
	AdvanceStatus(ctx context.Context, input AdvanceInput) (*OrderView, error)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) isAdmin() bool { return a.Role == enums.UserRoleAdmin }

// CreateInput snapshots everything an order needs. Card orders arrive paid.
type CreateInput struct {
	UserID          uuid.UUID
	PaymentMethod   enums.PaymentMethod
	PaymentIntentID *uuid.UUID
	Items           types.LineItems
	Currency        string
	Contact         types.Contact
	ShippingAddress types.Address
	BillingAddress  *types.Address
	ShippingMethod  string
	Notes           string
}

type CancelInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
}

type RequestCancellationInput struct {
	OrderID        uuid.UUID
	Actor          Actor
	Reason         string
	AdditionalInfo *string
}

// ApproveInput carries the admin decision. RefundAmount defaults to the
// unrefunded balance for card orders and must be empty otherwise.
type ApproveInput struct {
	OrderID      uuid.UUID
	Actor        Actor
	AdminNotes   *string
	RefundAmount *decimal.Decimal
}

type RejectInput struct {
	OrderID    uuid.UUID
	Actor      Actor
	AdminNotes *string
}

type AdvanceInput struct {
	OrderID uuid.UUID
	Actor   Actor
	To      enums.OrderStatus
}

type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Outbox     outboxPublisher
	Refunder   Refunder
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	refunder Refunder
	logg     *logger.Logger
}

// NewService builds the order service. Refunder may be nil until payments
// are wired, in which case card approvals fail with a dependency error.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TxRunner,
		outbox:   params.Outbox,
		refunder: params.Refunder,
		logg:     params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order creation requires a transaction")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	totals := types.ComputeTotals(input.Items)
	status := enums.OrderStatusPending
	if input.PaymentMethod.Prepaid() {
		status = enums.OrderStatusProcessing
	}

	order := &models.Order{
		ID:              uuid.New(),
		UserID:          input.UserID,
		Status:          status,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   input.PaymentMethod.InitialSettlement(),
		PaymentIntentID: input.PaymentIntentID,
		Subtotal:        totals.Subtotal,
		Delivery:        totals.Delivery,
		TotalAmount:     totals.Total,
		RefundedAmount:  decimal.Zero,
		Currency:        strings.ToLower(input.Currency),
		Contact:         input.Contact,
		ShippingAddress: input.ShippingAddress.Normalize(),
		BillingAddress:  input.BillingAddress,
		ShippingMethod:  input.ShippingMethod,
		Notes:           input.Notes,
		CreatedAt:       time.Now().UTC(),
	}
	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Edition:   item.Edition,
			ImageRef:  item.ImageRef,
			LineTotal: item.LineTotal(),
		})
	}

	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.UserRoleCustomer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:         order.ID,
			UserID:          order.UserID,
			Status:          order.Status,
			PaymentMethod:   order.PaymentMethod,
			TotalAmount:     order.TotalAmount,
			Currency:        order.Currency,
			PaymentIntentID: order.PaymentIntentID,
			ItemCount:       len(order.Items),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{NextCursor: page.NextCursor, Items: make([]OrderView, 0, len(page.Items))}
	for _, order := range page.Items {
		list.Items = append(list.Items, ViewOf(order))
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.load(ctx, s.repo, actor, orderID)
	if err != nil {
		return nil, err
	}
	view := ViewOf(*order)
	return &view, nil
}

// Cancel is the shopper's immediate cancel, legal only while pending.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderView, error) {
	reason := strings.TrimSpace(input.Reason)
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.Actor, input.OrderID)
		if err != nil {
			return err
		}
		if !orderpolicy.CanCancel(order.Status) {
			return disallowed(order, "order can only be cancelled while pending")
		}

		now := time.Now().UTC()
		updates := map[string]any{"cancelled_at": now}
		if reason != "" {
			updates["cancel_reason"] = reason
		}
		if err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, updates); err != nil {
			return staleOr(err, "cancel order")
		}
		if err := s.emitStatusChange(ctx, tx, input.Actor, enums.EventOrderCancelled, order.ID, order.Status, enums.OrderStatusCancelled); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	view := ViewOf(*result)
	return &view, nil
}

// RequestCancellation files the single admin-adjudicated request a
// processing order may carry.
func (s *service) RequestCancellation(ctx context.Context, input RequestCancellationInput) (*OrderView, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required").
			WithDetails(map[string]any{"field": "reason"})
	}
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.Actor, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusProcessing && order.Cancellation != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "cancellation already requested").
				WithDetails(map[string]any{"request_status": order.Cancellation.Status})
		}
		if !orderpolicy.CanRequestCancellation(order.Status, order.Cancellation != nil) {
			if orderpolicy.CanCancel(order.Status) {
				return disallowed(order, "pending orders are cancelled directly")
			}
			return disallowed(order, "cancellation cannot be requested in this status")
		}

		req := &models.CancellationRequest{
			OrderID:        order.ID,
			UserID:         input.Actor.UserID,
			Reason:         reason,
			AdditionalInfo: trimmedOrNil(input.AdditionalInfo),
			Status:         enums.CancellationStatusPending,
			RequestedAt:    time.Now().UTC(),
		}
		if err := repo.CreateCancellation(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cancellation request")
		}
		if err := s.emitCancellation(ctx, tx, input.Actor, enums.EventCancellationRequested, order, req, order.Status); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	view := ViewOf(*result)
	return &view, nil
}

// ApproveCancellation resolves a pending request: card orders are refunded
// through the processor first, others are cancelled.
func (s *service) ApproveCancellation(ctx context.Context, input ApproveInput) (*OrderView, error) {
	if !input.Actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	order, err := s.load(ctx, s.repo, input.Actor, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := requirePendingRequest(order); err != nil {
		return nil, err
	}

	outcome := orderpolicy.ApprovalOutcome(order.PaymentMethod, order.PaymentStatus)
	var refundAmount decimal.NullDecimal
	var refundID *string
	if outcome == enums.OrderStatusRefunded {
		amount, err := refundAmountFor(order, input.RefundAmount)
		if err != nil {
			return nil, err
		}
		if s.refunder == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "refunds are not configured")
		}
		id, err := s.refunder.RefundOrder(ctx, *order, amount, "refund:"+order.Cancellation.ID.String())
		if err != nil {
			return nil, err
		}
		refundAmount = decimal.NullDecimal{Decimal: amount, Valid: true}
		refundID = &id
		if s.logg != nil {
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			logCtx = s.logg.WithFields(logCtx, map[string]any{"refund_id": id, "amount": amount.String()})
			s.logg.Info(logCtx, "order refunded")
		}
	} else if input.RefundAmount != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount applies to card orders only").
			WithDetails(map[string]any{"field": "refund_amount"})
	}

	var result *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := time.Now().UTC()
		updates := map[string]any{}
		if outcome == enums.OrderStatusRefunded {
			updates["refunded_amount"] = order.RefundedAmount.Add(refundAmount.Decimal)
			updates["payment_status"] = enums.PaymentStatusRefunded
		} else {
			updates["cancelled_at"] = now
		}
		updates["cancel_reason"] = order.Cancellation.Reason
		if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusProcessing, outcome, updates); err != nil {
			return staleOr(err, "approve cancellation")
		}
		reqUpdates := map[string]any{
			"status":       enums.CancellationStatusApproved,
			"admin_notes":  trimmedOrNil(input.AdminNotes),
			"processed_by": input.Actor.UserID,
			"processed_at": now,
		}
		if refundAmount.Valid {
			reqUpdates["refund_amount"] = refundAmount
			reqUpdates["processor_refund_id"] = refundID
		}
		if err := repo.UpdateCancellation(ctx, order.Cancellation.ID, reqUpdates); err != nil {
			return staleOr(err, "update cancellation request")
		}

		req := *order.Cancellation
		req.Status = enums.CancellationStatusApproved
		req.AdminNotes = trimmedOrNil(input.AdminNotes)
		if err := s.emitCancellation(ctx, tx, input.Actor, enums.EventCancellationApproved, order, &req, outcome); err != nil {
			return err
		}
		if refundAmount.Valid {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderRefunded,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef(input.Actor),
				Data: payloads.OrderRefundedEvent{
					OrderID:           order.ID,
					Amount:            refundAmount.Decimal,
					ProcessorRefundID: *refundID,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order refunded")
			}
		} else if err := s.emitStatusChange(ctx, tx, input.Actor, enums.EventOrderCancelled, order.ID, enums.OrderStatusProcessing, outcome); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	view := ViewOf(*result)
	return &view, nil
}

// RejectCancellation records the admin's notes and leaves the order as is.
func (s *service) RejectCancellation(ctx context.Context, input RejectInput) (*OrderView, error) {
	if !input.Actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.Actor, input.OrderID)
		if err != nil {
			return err
		}
		if err := requirePendingRequest(order); err != nil {
			return err
		}
		notes := trimmedOrNil(input.AdminNotes)
		if err := repo.UpdateCancellation(ctx, order.Cancellation.ID, map[string]any{
			"status":       enums.CancellationStatusRejected,
			"admin_notes":  notes,
			"processed_by": input.Actor.UserID,
			"processed_at": time.Now().UTC(),
		}); err != nil {
			return staleOr(err, "reject cancellation")
		}
		req := *order.Cancellation
		req.Status = enums.CancellationStatusRejected
		req.AdminNotes = notes
		if err := s.emitCancellation(ctx, tx, input.Actor, enums.EventCancellationRejected, order, &req, order.Status); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	view := ViewOf(*result)
	return &view, nil
}

// AdvanceStatus moves an order forward along fulfilment. Cancellation and
// refund have their own operations.
func (s *service) AdvanceStatus(ctx context.Context, input AdvanceInput) (*OrderView, error) {
	if !input.Actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	switch input.To {
	case enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered, enums.OrderStatusCompleted:
	case enums.OrderStatusCancelled, enums.OrderStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the cancellation endpoints to cancel or refund").
			WithDetails(map[string]any{"field": "status"})
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"field": "status", "value": input.To})
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.Actor, input.OrderID)
		if err != nil {
			return err
		}
		if err := orderpolicy.ValidateTransition(order.Status, input.To); err != nil {
			return disallowed(order, err.Error())
		}
		if order.HasPendingCancellation() {
			return disallowed(order, "resolve the pending cancellation request first")
		}
		updates := map[string]any{}
		if order.Status == enums.OrderStatusPending && input.To == enums.OrderStatusProcessing {
			updates["payment_status"] = enums.PaymentStatusPaid
		}
		if err := repo.UpdateStatus(ctx, order.ID, order.Status, input.To, updates); err != nil {
			return staleOr(err, "advance order")
		}
		if err := s.emitStatusChange(ctx, tx, input.Actor, enums.EventOrderStatusChanged, order.ID, order.Status, input.To); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	view := ViewOf(*result)
	return &view, nil
}

// load hides other shoppers' orders behind NOT_FOUND; admins see all.
func (s *service) load(ctx context.Context, repo Repository, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != actor.UserID && !actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) emitStatusChange(ctx context.Context, tx *gorm.DB, actor Actor, eventType enums.OutboxEventType, orderID uuid.UUID, from, to enums.OrderStatus) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actorRef(actor),
		Data:          payloads.OrderStatusChangedEvent{OrderID: orderID, From: from, To: to},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) emitCancellation(ctx context.Context, tx *gorm.DB, actor Actor, eventType enums.OutboxEventType, order *models.Order, req *models.CancellationRequest, resulting enums.OrderStatus) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.CancellationEvent{
			OrderID:        order.ID,
			RequestID:      req.ID,
			Status:         req.Status,
			Reason:         req.Reason,
			AdminNotes:     req.AdminNotes,
			ResultingOrder: resulting,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func requirePendingRequest(order *models.Order) error {
	if order.Cancellation == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no cancellation request for order")
	}
	if order.Cancellation.Status != enums.CancellationStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation request already processed").
			WithDetails(map[string]any{"request_status": order.Cancellation.Status})
	}
	if order.Status != enums.OrderStatusProcessing {
		return disallowed(order, "order is no longer processing")
	}
	return nil
}

// refundAmountFor bounds the refund by what has not been returned yet.
func refundAmountFor(order *models.Order, requested *decimal.Decimal) (decimal.Decimal, error) {
	remaining := order.TotalAmount.Sub(order.RefundedAmount)
	if requested == nil {
		return remaining, nil
	}
	amount := requested.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive").
			WithDetails(map[string]any{"field": "refund_amount"})
	}
	if amount.GreaterThan(remaining) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds order total").
			WithDetails(map[string]any{"field": "refund_amount", "max": remaining.StringFixed(2)})
	}
	return amount, nil
}

func disallowed(order *models.Order, msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(map[string]any{
		"status":       order.Status,
		"capabilities": orderpolicy.For(order.Status, order.Cancellation != nil),
	})
}

func staleOr(err error, action string) error {
	if errors.Is(err, ErrStaleStatus) {
		return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently; reload and retry")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
