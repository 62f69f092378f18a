package carts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/types"
)

type fixture struct {
	client *db.Client
	svc    Service
	user   uuid.UUID
	tee    models.Product
	mug    models.Product
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	tee := models.Product{SKU: "TEE", Name: "Tee", UnitPrice: decimal.RequireFromString("40.00"), IsActive: true,
		Options: models.ProductOptions{Sizes: []string{"S", "M"}}}
	mug := models.Product{SKU: "MUG", Name: "Mug", UnitPrice: decimal.RequireFromString("12.50"), IsActive: true}
	require.NoError(t, client.DB().Create(&tee).Error)
	require.NoError(t, client.DB().Create(&mug).Error)

	cat, err := catalog.NewService(catalog.NewRepository(client.DB()))
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(client.DB()),
		TxRunner:   client,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), nil),
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(client.DB()),
		TxRunner:   client,
		Catalog:    cat,
		Orders:     orderSvc,
	})
	require.NoError(t, err)
	return &fixture{client: client, svc: svc, user: uuid.New(), tee: tee, mug: mug}
}

func TestGetCreatesEmptyCart(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Get(context.Background(), f.user)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.EqualValues(t, 0, view.Version)
	assert.True(t, view.Totals.Delivery.IsZero(), "empty cart has no delivery")
}

func TestAddItemMergesSameVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.tee.ID, Variant: catalog.Variant{Size: strPtr("M")}})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.tee.ID, Quantity: 2, Variant: catalog.Variant{Size: strPtr("M")}})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)

	view, err = f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.tee.ID, Variant: catalog.Variant{Size: strPtr("S")}})
	require.NoError(t, err)
	require.Len(t, view.Items, 2, "different size is a separate line")
	assert.EqualValues(t, 3, view.Version)
	assert.True(t, view.Totals.Subtotal.Equal(decimal.RequireFromString("160")))
	assert.True(t, view.Totals.Delivery.IsZero(), "free delivery above threshold")
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.tee.ID, Quantity: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	view, err := f.svc.Get(ctx, f.user)
	require.NoError(t, err)
	assert.EqualValues(t, 0, view.Version, "failed mutations do not bump the version")
}

func TestStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.mug.ID})
	require.NoError(t, err)
	stale := view.Version - 1

	_, err = f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.mug.ID, ExpectedVersion: &stale})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, view.Version, details["current_version"])

	current := view.Version
	view, err = f.svc.UpdateItem(ctx, f.user, view.Items[0].ID, UpdateItemInput{Quantity: 4, ExpectedVersion: &current})
	require.NoError(t, err)
	assert.Equal(t, 4, view.Items[0].Quantity)
}

func TestUpdateRemoveClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.mug.ID})
	require.NoError(t, err)
	lineID := view.Items[0].ID

	_, err = f.svc.UpdateItem(ctx, f.user, lineID, UpdateItemInput{Quantity: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "quantity never below 1")

	_, err = f.svc.RemoveItem(ctx, f.user, uuid.New(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	view, err = f.svc.RemoveItem(ctx, f.user, lineID, nil)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.tee.ID})
	require.NoError(t, err)
	view, err = f.svc.Clear(ctx, f.user, nil)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Totals.Total.IsZero())
}

func TestCheckoutCreatesPendingOrderAndEmptiesCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := CheckoutInput{
		PaymentMethod:   enums.PaymentMethodCashOnDelivery,
		Contact:         types.Contact{FirstName: "Ada", LastName: "Byron", Email: "ada@example.com", Phone: "5551234567"},
		ShippingAddress: types.Address{Street: "12 Analytical Row", City: "Austin", State: "TX", PostalCode: "73301", Country: "US"},
		Currency:        "usd",
	}

	_, err := f.svc.Checkout(ctx, f.user, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePrecondition), "empty cart cannot check out")

	_, err = f.svc.AddItem(ctx, f.user, AddItemInput{ProductID: f.mug.ID, Quantity: 2})
	require.NoError(t, err)

	card := input
	card.PaymentMethod = enums.PaymentMethodCard
	_, err = f.svc.Checkout(ctx, f.user, card)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	order, err := f.svc.Checkout(ctx, f.user, input)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("35")), "25 subtotal plus 10 delivery")
	require.Len(t, order.Items, 1)

	view, err := f.svc.Get(ctx, f.user)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}
