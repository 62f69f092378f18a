package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

const defaultCallTimeout = 10 * time.Second

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("cart store closed")

// Snapshot is a consistent read of the store for rendering.
type Snapshot struct {
	Items   []Item         `json:"items"`
	Totals  types.Totals   `json:"totals"`
	Mode    enums.CartMode `json:"mode"`
	Version int64          `json:"version"`
	// Busy is true while a mutation is queued or running; callers disable
	// their cart controls while it is set.
	Busy bool `json:"busy"`
	// Err is the last failure, cleared by the next successful operation.
	Err error `json:"-"`
}

type StoreParams struct {
	Backend Backend
	Logger  *logger.Logger
	// Timeout bounds each backend call.
	Timeout time.Duration
}

type job struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// Store owns one cart. Mutations run one at a time on a single writer
// goroutine in the order they were submitted.
type Store struct {
	logg    *logger.Logger
	timeout time.Duration

	jobs    chan job
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
	pending atomic.Int32

	mu      sync.RWMutex
	backend Backend
	state   State
	synced  bool
	lastErr error
}

// NewStore starts the writer goroutine. Call Load before the first read to
// pick up what the backend already holds.
func NewStore(params StoreParams) (*Store, error) {
	if params.Backend == nil {
		return nil, fmt.Errorf("cart backend required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	s := &Store{
		logg:    params.Logger,
		timeout: timeout,
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		backend: params.Backend,
		state:   State{Items: []Item{}},
	}
	go s.loop()
	return s, nil
}

func (s *Store) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			ctx, cancel := context.WithTimeout(j.ctx, s.timeout)
			err := j.run(ctx)
			cancel()
			j.done <- err
		}
	}
}

// Close stops the writer after the running mutation finishes.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.quit)
	})
	<-s.stopped
}

func (s *Store) submit(ctx context.Context, run func(ctx context.Context) error) error {
	s.pending.Add(1)
	defer s.pending.Add(-1)

	j := job{ctx: ctx, run: run, done: make(chan error, 1)}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrClosed
	}
	return <-j.done
}

// Load replaces the cart with what the backend holds.
func (s *Store) Load(ctx context.Context) error {
	return s.submit(ctx, s.reload)
}

// Reload is Load under the name the session uses after reconciliation.
func (s *Store) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// SwitchMode installs backend and loads from it. The previous backend's
// data is left where it was.
func (s *Store) SwitchMode(ctx context.Context, backend Backend) error {
	if backend == nil {
		return fmt.Errorf("cart backend required")
	}
	return s.submit(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		s.backend = backend
		s.state = State{Items: []Item{}}
		s.synced = false
		s.mu.Unlock()
		s.logg.Info(s.logCtx(ctx), "cart mode switched to "+backend.Mode().String())
		return s.reload(ctx)
	})
}

// AddItem adds qty of product, merging with an identical variant line. A
// zero qty adds one.
func (s *Store) AddItem(ctx context.Context, product Product, variant Variant, qty int) error {
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return s.reject(pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1"))
	}
	if product.ID == uuid.Nil {
		return s.reject(pkgerrors.New(pkgerrors.CodeValidation, "product is required"))
	}
	return s.mutate(ctx, Op{Kind: OpAdd, Product: product, Variant: variant, Quantity: qty})
}

func (s *Store) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	return s.mutate(ctx, Op{Kind: OpRemove, ItemID: itemID})
}

// SetQuantity rejects anything below 1 without touching the cart.
func (s *Store) SetQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	if qty < 1 {
		return s.reject(pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1"))
	}
	return s.mutate(ctx, Op{Kind: OpSetQuantity, ItemID: itemID, Quantity: qty})
}

// Increment raises the line's quantity by one.
func (s *Store) Increment(ctx context.Context, itemID uuid.UUID) error {
	return s.step(ctx, itemID, 1)
}

// Decrement lowers the line's quantity by one. At quantity 1 it does nothing.
func (s *Store) Decrement(ctx context.Context, itemID uuid.UUID) error {
	return s.step(ctx, itemID, -1)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, Op{Kind: OpClear})
}

// RemovePaid takes the paid quantities out of the cart. Lines added or
// raised since the payment keep the difference; paid lines no longer in the
// cart are skipped. It works from a fresh load of the backend and, on
// failure, returns the paid lines not yet removed.
func (s *Store) RemovePaid(ctx context.Context, paid types.LineItems) (types.LineItems, error) {
	remaining := slices.Clone(paid)
	err := s.submit(ctx, func(ctx context.Context) error {
		if err := s.reload(ctx); err != nil {
			return err
		}
		for len(remaining) > 0 {
			line := remaining[0]
			variant := Variant{Size: line.Size, Color: line.Color, Edition: line.Edition}
			s.mu.RLock()
			idx := slices.IndexFunc(s.state.Items, func(item Item) bool {
				return item.sameLine(line.ProductID, variant)
			})
			var current Item
			if idx >= 0 {
				current = s.state.Items[idx]
			}
			s.mu.RUnlock()

			if idx >= 0 {
				op := Op{ID: uuid.New(), Kind: OpRemove, ItemID: current.ID}
				if current.Quantity > line.Quantity {
					op.Kind = OpSetQuantity
					op.Quantity = current.Quantity - line.Quantity
				}
				if err := s.apply(ctx, op); err != nil {
					return err
				}
			}
			remaining = remaining[1:]
		}
		return nil
	})
	if err != nil {
		return remaining, err
	}
	return nil, nil
}

// step reads the quantity on the writer so it sees every earlier mutation.
func (s *Store) step(ctx context.Context, itemID uuid.UUID, delta int) error {
	return s.submit(ctx, func(ctx context.Context) error {
		s.mu.RLock()
		idx := indexOf(s.state.Items, itemID)
		qty := 0
		if idx >= 0 {
			qty = s.state.Items[idx].Quantity
		}
		s.mu.RUnlock()
		if idx < 0 {
			err := itemNotFound(itemID)
			s.record(err)
			return err
		}
		if qty+delta < 1 {
			return nil
		}
		return s.apply(ctx, Op{ID: uuid.New(), Kind: OpSetQuantity, ItemID: itemID, Quantity: qty + delta})
	})
}

func (s *Store) mutate(ctx context.Context, op Op) error {
	op.ID = uuid.New()
	return s.submit(ctx, func(ctx context.Context) error {
		return s.apply(ctx, op)
	})
}

// apply runs on the writer goroutine: optimistic local update, backend call,
// then the backend's state wins. A failed call keeps the optimistic state;
// a version conflict reloads first.
func (s *Store) apply(ctx context.Context, op Op) error {
	s.mu.RLock()
	base := s.state
	synced := s.synced
	backend := s.backend
	s.mu.RUnlock()

	local, err := op.apply(base.Items)
	if err != nil {
		s.record(err)
		return err
	}
	if synced {
		version := base.Version
		op.BaseVersion = &version
	}

	s.mu.Lock()
	s.state = State{Items: local, Version: base.Version}
	s.mu.Unlock()

	result, err := backend.Apply(ctx, op, State{Items: cloneItems(local), Version: base.Version})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.logg.Warn(s.logCtx(ctx), "cart changed elsewhere, reloading")
			if reloadErr := s.reload(ctx); reloadErr != nil {
				s.logg.Error(s.logCtx(ctx), "cart reload after conflict failed", reloadErr)
			}
		} else {
			s.logg.Error(s.logCtx(ctx), fmt.Sprintf("cart %s failed, keeping local state", op.Kind), err)
		}
		s.record(err)
		return err
	}

	s.mu.Lock()
	s.state = State{Items: cloneItems(result.Items), Version: result.Version}
	s.synced = true
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) reload(ctx context.Context) error {
	s.mu.RLock()
	backend := s.backend
	s.mu.RUnlock()

	state, err := backend.Load(ctx)
	if err != nil {
		s.logg.Error(s.logCtx(ctx), "cart reload failed, keeping last known cart", err)
		s.record(err)
		return err
	}
	s.mu.Lock()
	s.state = State{Items: cloneItems(state.Items), Version: state.Version}
	s.synced = true
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) reject(err error) error {
	s.record(err)
	return err
}

func (s *Store) record(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Store) logCtx(ctx context.Context) context.Context {
	s.mu.RLock()
	mode := s.backend.Mode()
	s.mu.RUnlock()
	return s.logg.WithField(ctx, "cart_mode", mode.String())
}

// Items returns a copy of the current lines.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.state.Items)
}

// Totals is recomputed from the current lines on every call.
func (s *Store) Totals() types.Totals {
	return Totals(s.Items())
}

func (s *Store) Mode() enums.CartMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Mode()
}

// Busy reports whether a mutation is queued or in flight.
func (s *Store) Busy() bool {
	return s.pending.Load() > 0
}

// Err returns the last recorded failure.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	items := cloneItems(s.state.Items)
	snap := Snapshot{
		Items:   items,
		Mode:    s.backend.Mode(),
		Version: s.state.Version,
		Err:     s.lastErr,
	}
	s.mu.RUnlock()
	snap.Totals = Totals(items)
	snap.Busy = s.Busy()
	return snap
}
