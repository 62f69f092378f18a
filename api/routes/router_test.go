package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/carts"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/outbox"
	paypkg "github.com/angelmondragon/storefront/pkg/payments"
)

type approvingProcessor struct {
	status map[string]paypkg.IntentStatus
}

func (p *approvingProcessor) Name() enums.PaymentProcessor { return enums.PaymentProcessorStripe }

func (p *approvingProcessor) CreateIntent(_ context.Context, params paypkg.CreateIntentParams) (*paypkg.Intent, error) {
	id := "pi_" + uuid.NewString()
	p.status[id] = paypkg.IntentRequiresAction
	return &paypkg.Intent{ID: id, ClientSecret: id + "_secret", Status: paypkg.IntentRequiresAction, AmountCents: params.AmountCents}, nil
}

func (p *approvingProcessor) Confirm(_ context.Context, params paypkg.ConfirmParams) (*paypkg.Intent, error) {
	p.status[params.IntentID] = paypkg.IntentSucceeded
	return &paypkg.Intent{ID: params.IntentID, Status: paypkg.IntentSucceeded, AmountCents: params.AmountCents}, nil
}

func (p *approvingProcessor) RetrieveIntent(_ context.Context, id string) (*paypkg.Intent, error) {
	return &paypkg.Intent{ID: id, Status: p.status[id]}, nil
}

func (p *approvingProcessor) Refund(_ context.Context, params paypkg.RefundParams) (*paypkg.Refund, error) {
	return &paypkg.Refund{ID: "re_1", Status: "succeeded", AmountCents: params.AmountCents}, nil
}

type harness struct {
	handler http.Handler
	product models.Product
	shopper string
	admin   string
	jwtCfg  config.JWTConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Client(t)
	product := models.Product{SKU: "MUG", Name: "Mug", UnitPrice: decimal.RequireFromString("12.50"), IsActive: true}
	require.NoError(t, client.DB().Create(&product).Error)

	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	cfg := &config.Config{
		App: config.AppConfig{Env: "test", IntentRateLimit: 10},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "storefront-test", ExpirationMinutes: 30},
	}

	processor := &approvingProcessor{status: map[string]paypkg.IntentStatus{}}
	outboxSvc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(client.DB()))
	require.NoError(t, err)
	paymentsRepo := payments.NewRepository(client.DB())
	refunder, err := payments.NewRefunder(paymentsRepo, processor, nil, logg)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(client.DB())
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orderRepo,
		TxRunner:   client,
		Outbox:     outboxSvc,
		Refunder:   refunder,
		Logger:     logg,
	})
	require.NoError(t, err)
	cartsSvc, err := carts.NewService(carts.ServiceParams{
		Repository: carts.NewRepository(client.DB()),
		TxRunner:   client,
		Catalog:    catalogSvc,
		Orders:     ordersSvc,
		Logger:     logg,
	})
	require.NoError(t, err)
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repository: paymentsRepo,
		TxRunner:   client,
		Processor:  processor,
		Catalog:    catalogSvc,
		Orders:     ordersSvc,
		OrderRepo:  orderRepo,
		Outbox:     outboxSvc,
		Logger:     logg,
	})
	require.NoError(t, err)

	h := &harness{
		handler: NewRouter(cfg, logg, client, nil, nil, nil, catalogSvc, cartsSvc, paymentsSvc, ordersSvc),
		product: product,
		jwtCfg:  cfg.JWT,
	}
	h.shopper = h.token(t, enums.UserRoleCustomer)
	h.admin = h.token(t, enums.UserRoleAdmin)
	return h
}

func (h *harness) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(h.jwtCfg, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func (h *harness) do(t *testing.T, method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func data(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope), resp.Body.String())
	return envelope.Data
}

const contactAndAddress = `
	"contact": {"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com", "phone": "555-0100"},
	"shipping_address": {"street": "12 Analytical Way", "city": "Austin", "state": "TX", "postal_code": "78701", "country": "US"}`

func TestPublicAndProtectedRoutes(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/live", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/ready", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/v1/products/"+h.product.ID.String(), "", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/products/"+uuid.NewString(), "", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/v1/cart", "", "", nil).Code)

	orderPath := "/api/admin/v1/orders/" + uuid.NewString() + "/status"
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, orderPath, h.shopper, `{"status":"shipped"}`, nil).Code)
}

func TestCartCheckoutAndCancelFlow(t *testing.T) {
	h := newHarness(t)

	add := h.do(t, http.MethodPost, "/api/v1/cart/items", h.shopper, fmt.Sprintf(`{"product_id":"%s","quantity":2}`, h.product.ID), nil)
	require.Equal(t, http.StatusOK, add.Code, add.Body.String())
	etag := add.Header().Get("ETag")
	require.NotEmpty(t, etag)
	items := data(t, add)["items"].([]any)
	require.Len(t, items, 1)
	itemID := items[0].(map[string]any)["id"].(string)

	stale := h.do(t, http.MethodPatch, "/api/v1/cart/items/"+itemID, h.shopper, `{"quantity":3}`, map[string]string{"If-Match": `"0"`})
	assert.Equal(t, http.StatusConflict, stale.Code)

	fresh := h.do(t, http.MethodPatch, "/api/v1/cart/items/"+itemID, h.shopper, `{"quantity":3}`, map[string]string{"If-Match": etag})
	require.Equal(t, http.StatusOK, fresh.Code, fresh.Body.String())

	checkout := h.do(t, http.MethodPost, "/api/v1/cart/checkout", h.shopper, `{"payment_method":"cash_on_delivery",`+contactAndAddress+`}`, nil)
	require.Equal(t, http.StatusCreated, checkout.Code, checkout.Body.String())
	order := data(t, checkout)
	assert.Equal(t, "pending", order["status"])
	orderID := order["id"].(string)

	cart := h.do(t, http.MethodGet, "/api/v1/cart", h.shopper, "", nil)
	assert.Empty(t, data(t, cart)["items"])

	cancel := h.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", h.shopper, `{"reason":"changed my mind"}`, nil)
	require.Equal(t, http.StatusOK, cancel.Code, cancel.Body.String())
	assert.Equal(t, "cancelled", data(t, cancel)["status"])

	again := h.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", h.shopper, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, again.Code)

	other := h.token(t, enums.UserRoleCustomer)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/orders/"+orderID, other, "", nil).Code)
}

func TestCardPaymentAndRefundFlow(t *testing.T) {
	h := newHarness(t)

	body := fmt.Sprintf(`{"attempt_key":"attempt-1","items":[{"product_id":"%s","quantity":2}],%s}`, h.product.ID, contactAndAddress)
	created := h.do(t, http.MethodPost, "/api/v1/payments/intents", h.shopper, body, nil)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	intent := data(t, created)
	intentID := intent["id"].(string)
	assert.EqualValues(t, 3500, intent["amount_cents"])

	early := h.do(t, http.MethodPost, "/api/v1/payments/intents/"+intentID+"/confirm", h.shopper, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, early.Code)

	charged := h.do(t, http.MethodPost, "/api/v1/payments/intents/"+intentID+"/processor-confirm", h.shopper, `{"source_id":"tok_visa"}`, nil)
	require.Equal(t, http.StatusOK, charged.Code, charged.Body.String())

	confirmed := h.do(t, http.MethodPost, "/api/v1/payments/intents/"+intentID+"/confirm", h.shopper, "", nil)
	require.Equal(t, http.StatusOK, confirmed.Code, confirmed.Body.String())
	order := data(t, confirmed)["order"].(map[string]any)
	assert.Equal(t, "processing", order["status"])
	orderID := order["id"].(string)

	replay := h.do(t, http.MethodPost, "/api/v1/payments/intents/"+intentID+"/confirm", h.shopper, "", nil)
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, orderID, data(t, replay)["order"].(map[string]any)["id"])

	cancel := h.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", h.shopper, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, cancel.Code)

	request := h.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancellation-requests", h.shopper, `{"reason":"ordered twice"}`, nil)
	require.Equal(t, http.StatusCreated, request.Code, request.Body.String())

	approve := h.do(t, http.MethodPost, "/api/admin/v1/orders/"+orderID+"/cancellation/approve", h.admin, `{"admin_notes":"refund in full"}`, nil)
	require.Equal(t, http.StatusOK, approve.Code, approve.Body.String())
	assert.Equal(t, "refunded", data(t, approve)["status"])

	detail := h.do(t, http.MethodGet, "/api/v1/orders/"+orderID, h.shopper, "", nil)
	require.Equal(t, http.StatusOK, detail.Code)
	assert.Equal(t, "refunded", data(t, detail)["payment_status"])
}
