package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/carts"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

type stubCartService struct {
	cart         *carts.CartView
	order        *orders.OrderView
	err          error
	lastUser     uuid.UUID
	lastAdd      carts.AddItemInput
	lastUpdate   carts.UpdateItemInput
	lastItem     uuid.UUID
	lastVersion  *int64
	lastCheckout carts.CheckoutInput
}

func (s *stubCartService) Get(_ context.Context, userID uuid.UUID) (*carts.CartView, error) {
	s.lastUser = userID
	return s.cart, s.err
}

func (s *stubCartService) AddItem(_ context.Context, userID uuid.UUID, input carts.AddItemInput) (*carts.CartView, error) {
	s.lastUser = userID
	s.lastAdd = input
	return s.cart, s.err
}

func (s *stubCartService) UpdateItem(_ context.Context, userID, itemID uuid.UUID, input carts.UpdateItemInput) (*carts.CartView, error) {
	s.lastUser, s.lastItem, s.lastUpdate = userID, itemID, input
	return s.cart, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, userID, itemID uuid.UUID, expected *int64) (*carts.CartView, error) {
	s.lastUser, s.lastItem, s.lastVersion = userID, itemID, expected
	return s.cart, s.err
}

func (s *stubCartService) Clear(_ context.Context, userID uuid.UUID, expected *int64) (*carts.CartView, error) {
	s.lastUser, s.lastVersion = userID, expected
	return s.cart, s.err
}

func (s *stubCartService) Checkout(_ context.Context, userID uuid.UUID, input carts.CheckoutInput) (*orders.OrderView, error) {
	s.lastUser, s.lastCheckout = userID, input
	return s.order, s.err
}

type stubPaymentsService struct {
	intent       *payments.IntentView
	result       *payments.ConfirmResult
	err          error
	lastCreate   payments.CreateIntentInput
	lastIntentID uuid.UUID
	lastSourceID string
}

func (s *stubPaymentsService) CreateIntent(_ context.Context, _ uuid.UUID, input payments.CreateIntentInput) (*payments.IntentView, error) {
	s.lastCreate = input
	return s.intent, s.err
}

func (s *stubPaymentsService) ProcessorConfirm(_ context.Context, _ uuid.UUID, intentID uuid.UUID, sourceID string) (*payments.IntentView, error) {
	s.lastIntentID, s.lastSourceID = intentID, sourceID
	return s.intent, s.err
}

func (s *stubPaymentsService) Confirm(_ context.Context, _ uuid.UUID, intentID uuid.UUID) (*payments.ConfirmResult, error) {
	s.lastIntentID = intentID
	return s.result, s.err
}

func (s *stubPaymentsService) Reconcile(context.Context, payments.ReconcileParams) (payments.ReconcileReport, error) {
	return payments.ReconcileReport{}, nil
}

type stubOrdersService struct {
	view        *orders.OrderView
	list        *orders.OrderList
	err         error
	lastParams  pagination.Params
	lastActor   orders.Actor
	lastCancel  orders.CancelInput
	lastRequest orders.RequestCancellationInput
	lastApprove orders.ApproveInput
	lastReject  orders.RejectInput
	lastAdvance orders.AdvanceInput
}

func (s *stubOrdersService) Create(context.Context, *gorm.DB, orders.CreateInput) (*models.Order, error) {
	return nil, s.err
}

func (s *stubOrdersService) List(_ context.Context, _ uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	s.lastParams = params
	return s.list, s.err
}

func (s *stubOrdersService) Get(_ context.Context, actor orders.Actor, _ uuid.UUID) (*orders.OrderView, error) {
	s.lastActor = actor
	return s.view, s.err
}

func (s *stubOrdersService) Cancel(_ context.Context, input orders.CancelInput) (*orders.OrderView, error) {
	s.lastCancel = input
	return s.view, s.err
}

func (s *stubOrdersService) RequestCancellation(_ context.Context, input orders.RequestCancellationInput) (*orders.OrderView, error) {
	s.lastRequest = input
	return s.view, s.err
}

func (s *stubOrdersService) ApproveCancellation(_ context.Context, input orders.ApproveInput) (*orders.OrderView, error) {
	s.lastApprove = input
	return s.view, s.err
}

func (s *stubOrdersService) RejectCancellation(_ context.Context, input orders.RejectInput) (*orders.OrderView, error) {
	s.lastReject = input
	return s.view, s.err
}

func (s *stubOrdersService) AdvanceStatus(_ context.Context, input orders.AdvanceInput) (*orders.OrderView, error) {
	s.lastAdvance = input
	return s.view, s.err
}

// asUser attaches an authenticated caller and chi URL params to req.
func asUser(req *http.Request, userID uuid.UUID, role enums.UserRole, params map[string]string) *http.Request {
	ctx := middleware.WithActor(req.Context(), middleware.Actor{UserID: userID, Role: role})
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return envelope.Error.Code
}
