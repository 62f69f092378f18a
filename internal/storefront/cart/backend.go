package cart

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/internal/storefront/localstore"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	"github.com/angelmondragon/storefront/pkg/enums"
)

// Backend persists the cart for one session mode.
type Backend interface {
	Mode() enums.CartMode
	Load(ctx context.Context) (State, error)
	// Apply persists op. local is the optimistic result the store already
	// shows; the returned state replaces it.
	Apply(ctx context.Context, op Op, local State) (State, error)
}

// MemoryBackend keeps the cart in process memory only.
type MemoryBackend struct {
	mu    sync.Mutex
	state State
}

func NewMemoryBackend(items ...Item) *MemoryBackend {
	return &MemoryBackend{state: State{Items: cloneItems(items)}}
}

func (m *MemoryBackend) Mode() enums.CartMode { return enums.CartModeGuest }

func (m *MemoryBackend) Load(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Items: cloneItems(m.state.Items), Version: m.state.Version}, nil
}

func (m *MemoryBackend) Apply(_ context.Context, _ Op, local State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Items: cloneItems(local.Items), Version: local.Version}
	return local, nil
}

type keyValueStore interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// GuestStorage reads and writes the guest cart under localstore.GuestCartKey.
type GuestStorage struct {
	kv keyValueStore
}

func NewGuestStorage(kv keyValueStore) *GuestStorage {
	return &GuestStorage{kv: kv}
}

// Items returns the stored guest cart, empty when nothing is stored.
func (g *GuestStorage) Items(ctx context.Context) ([]Item, error) {
	var items []Item
	if _, err := g.kv.Get(ctx, localstore.GuestCartKey, &items); err != nil {
		return nil, err
	}
	return cloneItems(items), nil
}

func (g *GuestStorage) Save(ctx context.Context, items []Item) error {
	return g.kv.Put(ctx, localstore.GuestCartKey, cloneItems(items))
}

func (g *GuestStorage) Clear(ctx context.Context) error {
	return g.kv.Delete(ctx, localstore.GuestCartKey)
}

// GuestBackend writes every mutation straight to durable local storage.
type GuestBackend struct {
	storage *GuestStorage
}

func NewGuestBackend(storage *GuestStorage) *GuestBackend {
	return &GuestBackend{storage: storage}
}

func (g *GuestBackend) Mode() enums.CartMode { return enums.CartModeGuest }

func (g *GuestBackend) Load(ctx context.Context) (State, error) {
	items, err := g.storage.Items(ctx)
	if err != nil {
		return State{}, err
	}
	return State{Items: items}, nil
}

func (g *GuestBackend) Apply(ctx context.Context, _ Op, local State) (State, error) {
	if err := g.storage.Save(ctx, local.Items); err != nil {
		return State{}, err
	}
	return local, nil
}

type cartAPI interface {
	GetCart(ctx context.Context) (*apiclient.Cart, error)
	AddItem(ctx context.Context, req apiclient.AddItemRequest, opts apiclient.CallOptions) (*apiclient.Cart, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, quantity int, opts apiclient.CallOptions) (*apiclient.Cart, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID, opts apiclient.CallOptions) (*apiclient.Cart, error)
	ClearCart(ctx context.Context, opts apiclient.CallOptions) (*apiclient.Cart, error)
}

// RemoteBackend is the authenticated server cart. Every call carries the
// base version as If-Match, and the cart in each response is the reload.
type RemoteBackend struct {
	api cartAPI
}

func NewRemoteBackend(api cartAPI) *RemoteBackend {
	return &RemoteBackend{api: api}
}

func (r *RemoteBackend) Mode() enums.CartMode { return enums.CartModeAuthenticated }

func (r *RemoteBackend) Load(ctx context.Context) (State, error) {
	remote, err := r.api.GetCart(ctx)
	if err != nil {
		return State{}, err
	}
	return fromRemote(remote), nil
}

func (r *RemoteBackend) Apply(ctx context.Context, op Op, _ State) (State, error) {
	opts := apiclient.CallOptions{IfMatch: op.BaseVersion}
	var (
		remote *apiclient.Cart
		err    error
	)
	switch op.Kind {
	case OpAdd:
		opts.IdempotencyKey = "cart-add:" + op.ID.String()
		remote, err = r.api.AddItem(ctx, apiclient.AddItemRequest{
			ProductID: op.Product.ID,
			Quantity:  op.Quantity,
			Size:      op.Variant.Size,
			Color:     op.Variant.Color,
			Edition:   op.Variant.Edition,
			ImageRef:  op.Product.ImageRef,
		}, opts)
	case OpSetQuantity:
		remote, err = r.api.UpdateItem(ctx, op.ItemID, op.Quantity, opts)
	case OpRemove:
		remote, err = r.api.RemoveItem(ctx, op.ItemID, opts)
	case OpClear:
		remote, err = r.api.ClearCart(ctx, opts)
	}
	if err != nil {
		return State{}, err
	}
	return fromRemote(remote), nil
}

func fromRemote(remote *apiclient.Cart) State {
	if remote == nil {
		return State{Items: []Item{}}
	}
	items := make([]Item, 0, len(remote.Items))
	for _, line := range remote.Items {
		items = append(items, Item{
			ID:        line.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
			Edition:   line.Edition,
			ImageRef:  line.ImageRef,
		})
	}
	return State{Items: items, Version: remote.Version}
}
