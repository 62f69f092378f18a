package cart

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/storefront/localstore"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cart-test", Output: io.Discard})
}

func newStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	store, err := NewStore(StoreParams{Backend: backend, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Load(context.Background()))
	return store
}

func product(price string) Product {
	return Product{ID: uuid.New(), Name: "item " + price, UnitPrice: decimal.RequireFromString(price)}
}

func strPtr(v string) *string { return &v }

func TestScenarioATotals(t *testing.T) {
	store := newStore(t, NewMemoryBackend())
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, product("40"), Variant{}, 2))
	require.NoError(t, store.AddItem(ctx, product("25"), Variant{}, 1))

	totals := store.Totals()
	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("105.00")))
	assert.True(t, totals.Delivery.IsZero())
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("105.00")))
}

func TestScenarioBTotals(t *testing.T) {
	store := newStore(t, NewMemoryBackend())
	require.NoError(t, store.AddItem(context.Background(), product("20"), Variant{}, 1))

	totals := store.Totals()
	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, totals.Delivery.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("30.00")))
}

func TestEmptyCartHasNoDelivery(t *testing.T) {
	store := newStore(t, NewMemoryBackend())
	totals := store.Totals()
	assert.True(t, totals.Delivery.IsZero())
	assert.True(t, totals.Total.IsZero())
}

func TestSubtotalTracksEveryMutation(t *testing.T) {
	store := newStore(t, NewMemoryBackend())
	ctx := context.Background()
	a, b, c := product("19.99"), product("5.25"), product("80")

	require.NoError(t, store.AddItem(ctx, a, Variant{}, 3))
	require.NoError(t, store.AddItem(ctx, b, Variant{}, 0))
	require.NoError(t, store.AddItem(ctx, c, Variant{}, 1))
	items := store.Items()
	require.NoError(t, store.SetQuantity(ctx, items[1].ID, 4))
	require.NoError(t, store.RemoveItem(ctx, items[2].ID))
	require.NoError(t, store.Increment(ctx, items[0].ID))

	expected := decimal.Zero
	for _, item := range store.Items() {
		expected = expected.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	assert.True(t, store.Totals().Subtotal.Equal(expected))
	assert.True(t, expected.Equal(decimal.RequireFromString("100.96")))
	assert.True(t, store.Totals().Delivery.Equal(decimal.NewFromInt(0)))
}

func TestQuantityNeverBelowOne(t *testing.T) {
	store := newStore(t, NewMemoryBackend())
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, product("10"), Variant{}, 1))
	itemID := store.Items()[0].ID

	err := store.SetQuantity(ctx, itemID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 1, store.Items()[0].Quantity)
	assert.Error(t, store.Snapshot().Err)

	require.NoError(t, store.Decrement(ctx, itemID))
	assert.Equal(t, 1, store.Items()[0].Quantity)

	require.NoError(t, store.Increment(ctx, itemID))
	require.NoError(t, store.Decrement(ctx, itemID))
	assert.Equal(t, 1, store.Items()[0].Quantity)
	assert.NoError(t, store.Snapshot().Err)
}

func TestAddMergesOnlyIdenticalVariants(t *testing.T) {
	store := newStore(t, NewMemoryBackend())
	ctx := context.Background()
	tee := product("15")

	require.NoError(t, store.AddItem(ctx, tee, Variant{Size: strPtr("M")}, 1))
	require.NoError(t, store.AddItem(ctx, tee, Variant{Size: strPtr("M")}, 2))
	require.NoError(t, store.AddItem(ctx, tee, Variant{Size: strPtr("L")}, 1))

	items := store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "L", *items[1].Size)
}

func TestGuestCartRoundTrip(t *testing.T) {
	kv, err := localstore.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	storage := NewGuestStorage(kv)
	ctx := context.Background()

	first := newStore(t, NewGuestBackend(storage))
	require.NoError(t, first.AddItem(ctx, product("12.50"), Variant{Color: strPtr("red")}, 2))
	require.NoError(t, first.AddItem(ctx, product("7"), Variant{}, 1))
	before := first.Snapshot()
	first.Close()

	second := newStore(t, NewGuestBackend(storage))
	after := second.Snapshot()

	require.Len(t, after.Items, len(before.Items))
	for i := range before.Items {
		assert.Equal(t, before.Items[i].ID, after.Items[i].ID)
		assert.Equal(t, before.Items[i].Quantity, after.Items[i].Quantity)
		assert.True(t, before.Items[i].UnitPrice.Equal(after.Items[i].UnitPrice))
		assert.Equal(t, before.Items[i].Color, after.Items[i].Color)
	}
	assert.True(t, before.Totals.Total.Equal(after.Totals.Total))
	assert.Equal(t, enums.CartModeGuest, after.Mode)
}

// fakeCartAPI is a version-checked server cart.
type fakeCartAPI struct {
	mu       sync.Mutex
	cart     apiclient.Cart
	failNext error
	calls    []apiclient.CallOptions
}

func (f *fakeCartAPI) check(opts apiclient.CallOptions) error {
	f.calls = append(f.calls, opts)
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	if opts.IfMatch != nil && *opts.IfMatch != f.cart.Version {
		return pkgerrors.New(pkgerrors.CodeConflict, "cart changed")
	}
	return nil
}

func (f *fakeCartAPI) snapshot() *apiclient.Cart {
	out := f.cart
	out.Items = append([]apiclient.CartItem(nil), f.cart.Items...)
	return &out
}

func (f *fakeCartAPI) GetCart(context.Context) (*apiclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(), nil
}

func (f *fakeCartAPI) AddItem(_ context.Context, req apiclient.AddItemRequest, opts apiclient.CallOptions) (*apiclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(opts); err != nil {
		return nil, err
	}
	f.cart.Items = append(f.cart.Items, apiclient.CartItem{ID: uuid.New(), ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: decimal.NewFromInt(10)})
	f.cart.Version++
	return f.snapshot(), nil
}

func (f *fakeCartAPI) UpdateItem(_ context.Context, itemID uuid.UUID, quantity int, opts apiclient.CallOptions) (*apiclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(opts); err != nil {
		return nil, err
	}
	for i := range f.cart.Items {
		if f.cart.Items[i].ID == itemID {
			f.cart.Items[i].Quantity = quantity
		}
	}
	f.cart.Version++
	return f.snapshot(), nil
}

func (f *fakeCartAPI) RemoveItem(_ context.Context, itemID uuid.UUID, opts apiclient.CallOptions) (*apiclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(opts); err != nil {
		return nil, err
	}
	kept := f.cart.Items[:0]
	for _, item := range f.cart.Items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	f.cart.Items = kept
	f.cart.Version++
	return f.snapshot(), nil
}

func (f *fakeCartAPI) ClearCart(_ context.Context, opts apiclient.CallOptions) (*apiclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(opts); err != nil {
		return nil, err
	}
	f.cart.Items = nil
	f.cart.Version++
	return f.snapshot(), nil
}

func TestRemoteMutationsApplyInIssueOrder(t *testing.T) {
	api := &fakeCartAPI{}
	store := newStore(t, NewRemoteBackend(api))
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, product("10"), Variant{}, 1))
	itemID := store.Items()[0].ID

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Increment(ctx, itemID))
		}()
	}
	wg.Wait()

	assert.Equal(t, 21, store.Items()[0].Quantity)
	assert.Equal(t, 21, api.cart.Items[0].Quantity)
	assert.Equal(t, int64(21), store.Snapshot().Version)
	assert.False(t, store.Busy())
	for _, call := range api.calls {
		require.NotNil(t, call.IfMatch)
	}
}

func TestRemoteFailureKeepsOptimisticState(t *testing.T) {
	api := &fakeCartAPI{}
	store := newStore(t, NewRemoteBackend(api))
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, product("10"), Variant{}, 1))
	itemID := store.Items()[0].ID

	api.failNext = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "PATCH cart item")
	err := store.SetQuantity(ctx, itemID, 5)
	require.Error(t, err)

	snap := store.Snapshot()
	assert.Equal(t, 5, snap.Items[0].Quantity)
	assert.Equal(t, pkgerrors.KindNetwork, pkgerrors.KindOf(snap.Err))
	assert.Equal(t, 1, api.cart.Items[0].Quantity)

	require.NoError(t, store.Reload(ctx))
	assert.Equal(t, 1, store.Items()[0].Quantity)
	assert.NoError(t, store.Err())
}

func TestRemoteConflictReloadsServerCart(t *testing.T) {
	api := &fakeCartAPI{}
	store := newStore(t, NewRemoteBackend(api))
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, product("10"), Variant{}, 1))
	itemID := store.Items()[0].ID

	// Another session bumps the quantity.
	api.mu.Lock()
	api.cart.Items[0].Quantity = 7
	api.cart.Version++
	api.mu.Unlock()

	err := store.SetQuantity(ctx, itemID, 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 7, store.Items()[0].Quantity)
	assert.Equal(t, api.cart.Version, store.Snapshot().Version)
}

func TestRemovePaidKeepsLinesAddedAfterPayment(t *testing.T) {
	store := newStore(t, NewMemoryBackend())
	ctx := context.Background()
	tee, mug := product("15"), product("8")

	require.NoError(t, store.AddItem(ctx, tee, Variant{Size: strPtr("M")}, 1))
	paid := LineItems(store.Items())

	require.NoError(t, store.AddItem(ctx, tee, Variant{Size: strPtr("M")}, 1))
	require.NoError(t, store.AddItem(ctx, mug, Variant{}, 1))

	remaining, err := store.RemovePaid(ctx, paid)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	items := store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, tee.ID, items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, mug.ID, items[1].ProductID)

	remaining, err = store.RemovePaid(ctx, LineItems([]Item{{ProductID: uuid.New(), Quantity: 1}}))
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Len(t, store.Items(), 2)
}

func TestRemovePaidReportsLinesLeftOnFailure(t *testing.T) {
	api := &fakeCartAPI{}
	store := newStore(t, NewRemoteBackend(api))
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, product("10"), Variant{}, 1))
	require.NoError(t, store.AddItem(ctx, product("20"), Variant{}, 1))
	paid := LineItems(store.Items())

	api.failNext = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "DELETE cart item")
	remaining, err := store.RemovePaid(ctx, paid)
	require.Error(t, err)
	assert.Equal(t, paid, remaining)

	remaining, err = store.RemovePaid(ctx, remaining)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Empty(t, store.Items())
	assert.Empty(t, api.cart.Items)
}

func TestSwitchModeLoadsNewBackend(t *testing.T) {
	store := newStore(t, NewMemoryBackend(Item{ID: uuid.New(), ProductID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(3)}))
	require.Len(t, store.Items(), 1)

	api := &fakeCartAPI{}
	require.NoError(t, store.SwitchMode(context.Background(), NewRemoteBackend(api)))
	assert.Empty(t, store.Items())
	assert.Equal(t, enums.CartModeAuthenticated, store.Mode())
}

func TestClosedStoreRejectsWork(t *testing.T) {
	store, err := NewStore(StoreParams{Backend: NewMemoryBackend(), Logger: testLogger()})
	require.NoError(t, err)
	store.Close()
	assert.ErrorIs(t, store.Clear(context.Background()), ErrClosed)
}
