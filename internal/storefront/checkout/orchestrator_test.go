package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/storefront/cart"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

type stubCart struct {
	snap cart.Snapshot
}

func (s stubCart) Snapshot() cart.Snapshot { return s.snap }

func cartWith(items ...cart.Item) stubCart {
	return stubCart{snap: cart.Snapshot{Items: items, Totals: cart.Totals(items), Mode: enums.CartModeGuest}}
}

func sampleItem(price string, qty int) cart.Item {
	return cart.Item{ID: uuid.New(), ProductID: uuid.New(), Name: "tee", UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func validForm() Form {
	return Form{
		Contact: types.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "5550100"},
		ShippingAddress: types.Address{
			Street:     "12 Analytical Way",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62701",
			Country:    "us",
		},
		PaymentMethod: enums.PaymentMethodCard,
	}
}

func newOrchestrator(t *testing.T, c cartReader) *Orchestrator {
	t.Helper()
	o, err := New(Params{
		Cart:   c,
		Logger: logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard}),
		Now:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	require.NoError(t, err)
	return o
}

func TestProceedBuildsIntentFromCart(t *testing.T) {
	o := newOrchestrator(t, cartWith(sampleItem("40", 2), sampleItem("25", 1)))

	intent, err := o.Proceed(context.Background(), validForm())
	require.NoError(t, err)
	assert.Len(t, intent.Items, 2)
	assert.True(t, intent.TotalSnapshot.Total.Equal(decimal.RequireFromString("105")))
	assert.Equal(t, "US", intent.ShippingAddress.Country)
	assert.Equal(t, enums.PaymentMethodCard, intent.PaymentMethod)

	got, route := o.EnterPayment()
	assert.Equal(t, RoutePayment, route)
	assert.Equal(t, intent.CreatedAt, got.CreatedAt)
}

func TestProceedRejectsEmptyOrBusyCart(t *testing.T) {
	o := newOrchestrator(t, cartWith())
	_, err := o.Proceed(context.Background(), validForm())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePrecondition))

	busy := cartWith(sampleItem("10", 1))
	busy.snap.Busy = true
	o = newOrchestrator(t, busy)
	_, err = o.Proceed(context.Background(), validForm())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePrecondition))

	_, route := o.EnterPayment()
	assert.Equal(t, RouteCheckout, route)
}

func TestProceedReportsFieldErrors(t *testing.T) {
	o := newOrchestrator(t, cartWith(sampleItem("10", 1)))
	form := validForm()
	form.Contact.Email = "not-an-email"
	form.ShippingAddress.Street = "   "
	form.ShippingAddress.PostalCode = "ABC"

	_, err := o.Proceed(context.Background(), form)
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeValidation, coded.Code())

	details, ok := coded.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["contact.email"])
	assert.Equal(t, "is required", details["shipping_address.street"])
	assert.Equal(t, "has an invalid format", details["shipping_address.postal_code"])

	_, route := o.EnterPayment()
	assert.Equal(t, RouteCheckout, route)
}

func TestShortStreetPassesCheckout(t *testing.T) {
	o := newOrchestrator(t, cartWith(sampleItem("10", 1)))
	form := validForm()
	form.ShippingAddress.Street = "1 Elm"

	_, err := o.Proceed(context.Background(), form)
	assert.NoError(t, err)
}

func TestNonUSPostalCodeIsNotFormatChecked(t *testing.T) {
	o := newOrchestrator(t, cartWith(sampleItem("10", 1)))
	form := validForm()
	form.ShippingAddress.Country = "GB"
	form.ShippingAddress.PostalCode = "SW1A 1AA"

	_, err := o.Proceed(context.Background(), form)
	assert.NoError(t, err)
}

func TestDiscardSendsShopperBackToCheckout(t *testing.T) {
	o := newOrchestrator(t, cartWith(sampleItem("10", 1)))
	_, err := o.Proceed(context.Background(), validForm())
	require.NoError(t, err)

	o.Navigator().Discard()
	_, route := o.EnterPayment()
	assert.Equal(t, RouteCheckout, route)
}
