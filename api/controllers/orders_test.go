package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

func TestOrdersListParsesPaging(t *testing.T) {
	svc := &stubOrdersService{list: &orders.OrderList{Items: []orders.OrderView{{ID: uuid.New()}}}}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor=abc", nil), uuid.New(), enums.UserRoleCustomer, nil)
	resp := httptest.NewRecorder()
	OrdersList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastParams.Limit != 5 || svc.lastParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.lastParams)
	}
}

func TestOrdersListRejectsOversizedLimit(t *testing.T) {
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=1000", nil), uuid.New(), enums.UserRoleCustomer, nil)
	resp := httptest.NewRecorder()
	OrdersList(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderDetailInvalidID(t *testing.T) {
	req := asUser(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": "nope"})
	resp := httptest.NewRecorder()
	OrderDetail(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderDetailCarriesActorRole(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrdersService{view: &orders.OrderView{ID: orderID}}
	req := asUser(httptest.NewRequest(http.MethodGet, "/", nil), userID, enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	OrderDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastActor.UserID != userID || svc.lastActor.Role != enums.UserRoleAdmin {
		t.Fatalf("unexpected actor %+v", svc.lastActor)
	}
}

func TestOrderCancelAcceptsEmptyBody(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{view: &orders.OrderView{ID: orderID, Status: enums.OrderStatusCancelled}}
	req := asUser(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	OrderCancel(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastCancel.OrderID != orderID {
		t.Fatalf("expected cancel for %s", orderID)
	}
}

func TestOrderCancelDisallowedIs422(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled")}
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"changed my mind"}`)), uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	OrderCancel(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if svc.lastCancel.Reason != "changed my mind" {
		t.Fatalf("expected reason forwarded, got %q", svc.lastCancel.Reason)
	}
}

func TestOrderRequestCancellationRequiresReason(t *testing.T) {
	orderID := uuid.New()
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	OrderRequestCancellation(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderRequestCancellationCreated(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{view: &orders.OrderView{ID: orderID}}
	body := `{"reason":"ordered twice","additional_info":"second order is the right one"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.New(), enums.UserRoleCustomer, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	OrderRequestCancellation(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if svc.lastRequest.Reason != "ordered twice" || svc.lastRequest.AdditionalInfo == nil {
		t.Fatalf("unexpected request input %+v", svc.lastRequest)
	}
}

func TestAdminApproveForwardsRefundAmount(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{view: &orders.OrderView{ID: orderID, Status: enums.OrderStatusRefunded}}
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refund_amount":"12.50","admin_notes":"ok"}`)), uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminApproveCancellation(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastApprove.RefundAmount == nil || !svc.lastApprove.RefundAmount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected refund amount %v", svc.lastApprove.RefundAmount)
	}
	if svc.lastApprove.Actor.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin actor")
	}
}

func TestAdminRejectKeepsNotes(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{view: &orders.OrderView{ID: orderID, Status: enums.OrderStatusProcessing}}
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"admin_notes":"already shipped"}`)), uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminRejectCancellation(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastReject.AdminNotes == nil || *svc.lastReject.AdminNotes != "already shipped" {
		t.Fatalf("expected admin notes forwarded")
	}
}

func TestAdminAdvanceStatusRejectsUnknownStatus(t *testing.T) {
	orderID := uuid.New()
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"teleported"}`)), uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminAdvanceStatus(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminAdvanceStatusForwardsTarget(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{view: &orders.OrderView{ID: orderID, Status: enums.OrderStatusShipped}}
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"shipped"}`)), uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminAdvanceStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastAdvance.To != enums.OrderStatusShipped {
		t.Fatalf("expected shipped got %s", svc.lastAdvance.To)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReadyReportsDownDependency(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	handler := HealthReady(cfg, nil, map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestHealthReadyAllUp(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	handler := HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Storefront-Env") != "dev" {
		t.Fatalf("expected env header")
	}
}
