package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAddItemSendsConcurrencyHeaders(t *testing.T) {
	var captured http.Header
	var body AddItemRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		require.Equal(t, "/api/v1/cart/items", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, types.Envelope[any]{Data: Cart{
			Version: 4,
			Items: []CartItem{{
				ID:        uuid.New(),
				ProductID: body.ProductID,
				Name:      "Mug",
				UnitPrice: decimal.RequireFromString("12.50"),
				Quantity:  body.Quantity,
			}},
		}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", WithToken("tok"))
	require.NoError(t, err)

	version := int64(3)
	productID := uuid.New()
	cart, err := client.AddItem(context.Background(), AddItemRequest{ProductID: productID, Quantity: 2}, CallOptions{
		IdempotencyKey: "guest-sync:abc",
		IfMatch:        &version,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", captured.Get("Authorization"))
	assert.Equal(t, "guest-sync:abc", captured.Get("Idempotency-Key"))
	assert.Equal(t, `"3"`, captured.Get("If-Match"))
	assert.Equal(t, productID, body.ProductID)
	assert.Equal(t, int64(4), cart.Version)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestErrorEnvelopeBecomesCodedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, types.ProblemEnvelope{Error: types.Problem{
			Code:    string(pkgerrors.CodeConflict),
			Message: "cart changed",
			Details: map[string]any{"current_version": 9},
		}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.GetCart(context.Background())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.Equal(t, "cart changed", typed.Message())
	assert.Equal(t, pkgerrors.KindServerLogic, pkgerrors.KindOf(err))
}

func TestUnauthorizedClassifiesAsAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = client.ListOrders(context.Background(), 5, "")
	assert.Equal(t, pkgerrors.KindAuthRequired, pkgerrors.KindOf(err))
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(srv.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	_, err = client.GetCart(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindNetwork, pkgerrors.KindOf(err))
}

func TestCreateIntentDefaultsIdempotencyKeyToAttempt(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		writeJSON(w, http.StatusCreated, types.Envelope[any]{Data: Intent{ID: uuid.New(), AttemptKey: key, AmountCents: 3000}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	intent, err := client.CreateIntent(context.Background(), CreateIntentRequest{AttemptKey: "attempt-1"}, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "attempt-1", key)
	assert.Equal(t, int64(3000), intent.AmountCents)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
}

func TestSessionHeaderFollowsSetSessionID(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get(types.HeaderSessionID))
		writeJSON(w, http.StatusOK, types.Envelope[any]{Data: Cart{}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = client.GetCart(context.Background())
	require.NoError(t, err)
	client.SetSessionID("sess-1")
	_, err = client.GetCart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "sess-1"}, seen)
}
