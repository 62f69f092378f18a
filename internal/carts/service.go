package carts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Service is the server-persisted cart of an authenticated shopper. Every
// mutation bumps the cart version; callers may pin the version they last
// observed and get a CONFLICT when it moved.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartView, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartView, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, input UpdateItemInput) (*CartView, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID, expectedVersion *int64) (*CartView, error)
	Clear(ctx context.Context, userID uuid.UUID, expectedVersion *int64) (*CartView, error)
	Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*orders.OrderView, error)
}

type AddItemInput struct {
	ProductID       uuid.UUID
	Quantity        int
	Variant         catalog.Variant
	ImageRef        string
	ExpectedVersion *int64
}

type UpdateItemInput struct {
	Quantity        int
	ExpectedVersion *int64
}

// CheckoutInput places a non-card order from the cart contents.
type CheckoutInput struct {
	PaymentMethod   enums.PaymentMethod
	Contact         types.Contact
	ShippingAddress types.Address
	BillingAddress  *types.Address
	ShippingMethod  string
	Notes           string
	Currency        string
	ExpectedVersion *int64
}

type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Catalog    pricer
	Orders     orderCreator
	Logger     *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	catalog pricer
	orders  orderCreator
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog pricer required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order creator required")
	}
	return &service{
		repo:    params.Repository,
		tx:      params.TxRunner,
		catalog: params.Catalog,
		orders:  params.Orders,
		logg:    params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	var view *CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.loadOrCreate(ctx, s.repo.WithTx(tx), userID)
		if err != nil {
			return err
		}
		view = toView(cart)
		return nil
	})
	return view, err
}

// AddItem prices the product from the catalog and merges into an existing
// line with the same product and variant.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartView, error) {
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"field": "quantity"})
	}
	return s.mutate(ctx, userID, input.ExpectedVersion, func(tx *gorm.DB, repo Repository, cart *models.Cart) error {
		priced, err := s.catalog.Price(ctx, tx, []catalog.ItemRef{{
			ProductID: input.ProductID,
			Quantity:  qty,
			Variant:   input.Variant,
			ImageRef:  input.ImageRef,
		}})
		if err != nil {
			return err
		}
		item := priced[0]
		for _, line := range cart.Lines {
			if sameLine(line, item) {
				return repo.UpdateLineQuantity(ctx, line.ID, line.Quantity+qty)
			}
		}
		return repo.InsertLine(ctx, &models.CartLine{
			CartID:    cart.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Edition:   item.Edition,
			ImageRef:  item.ImageRef,
		})
	})
}

func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, input UpdateItemInput) (*CartView, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"field": "quantity"})
	}
	return s.mutate(ctx, userID, input.ExpectedVersion, func(_ *gorm.DB, repo Repository, cart *models.Cart) error {
		if _, ok := findLine(cart, itemID); !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return repo.UpdateLineQuantity(ctx, itemID, input.Quantity)
	})
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID, expectedVersion *int64) (*CartView, error) {
	return s.mutate(ctx, userID, expectedVersion, func(_ *gorm.DB, repo Repository, cart *models.Cart) error {
		if _, ok := findLine(cart, itemID); !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return repo.DeleteLine(ctx, cart.ID, itemID)
	})
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID, expectedVersion *int64) (*CartView, error) {
	return s.mutate(ctx, userID, expectedVersion, func(_ *gorm.DB, repo Repository, cart *models.Cart) error {
		return repo.DeleteLines(ctx, cart.ID)
	})
}

// Checkout creates a non-card order from the cart and empties it in the
// same transaction. Card payments go through the payment intent flow.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*orders.OrderView, error) {
	if input.PaymentMethod.Prepaid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card payments use payment intents").
			WithDetails(map[string]any{"field": "payment_method"})
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"field": "payment_method"})
	}

	var order *models.Order
	_, err := s.mutate(ctx, userID, input.ExpectedVersion, func(tx *gorm.DB, repo Repository, cart *models.Cart) error {
		if len(cart.Lines) == 0 {
			return pkgerrors.New(pkgerrors.CodePrecondition, "cart is empty")
		}
		refs := make([]catalog.ItemRef, 0, len(cart.Lines))
		for _, line := range cart.Lines {
			refs = append(refs, catalog.ItemRef{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Variant:   catalog.Variant{Size: line.Size, Color: line.Color, Edition: line.Edition},
				ImageRef:  line.ImageRef,
			})
		}
		items, err := s.catalog.Price(ctx, tx, refs)
		if err != nil {
			return err
		}
		order, err = s.orders.Create(ctx, tx, orders.CreateInput{
			UserID:          userID,
			PaymentMethod:   input.PaymentMethod,
			Items:           items,
			Currency:        input.Currency,
			Contact:         input.Contact,
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  input.BillingAddress,
			ShippingMethod:  input.ShippingMethod,
			Notes:           input.Notes,
		})
		if err != nil {
			return err
		}
		return repo.DeleteLines(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, userID.String()), order.ID.String())
		s.logg.Info(logCtx, "cart checked out")
	}
	view := orders.ViewOf(*order)
	return &view, nil
}

// mutate loads the cart, checks the pinned version, applies fn and bumps
// the version, all inside one transaction.
func (s *service) mutate(ctx context.Context, userID uuid.UUID, expected *int64, fn func(tx *gorm.DB, repo Repository, cart *models.Cart) error) (*CartView, error) {
	var view *CartView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.loadOrCreate(ctx, repo, userID)
		if err != nil {
			return err
		}
		if expected != nil && *expected != cart.Version {
			return versionConflict(cart.Version)
		}
		if err := fn(tx, repo, cart); err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart")
		}
		if _, err := repo.BumpVersion(ctx, cart.ID, cart.Version); err != nil {
			if errors.Is(err, ErrVersionMismatch) {
				return versionConflict(cart.Version + 1)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump cart version")
		}
		fresh, err := repo.FindByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
		}
		view = toView(fresh)
		return nil
	})
	return view, err
}

func (s *service) loadOrCreate(ctx context.Context, repo Repository, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := repo.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	cart = &models.Cart{UserID: userID}
	if err := repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

func versionConflict(current int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cart was modified; reload and retry").
		WithDetails(map[string]any{"current_version": current})
}

func findLine(cart *models.Cart, id uuid.UUID) (models.CartLine, bool) {
	for _, line := range cart.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return models.CartLine{}, false
}

// sameLine is the merge key: product plus size, color and edition.
func sameLine(line models.CartLine, item types.LineItem) bool {
	return line.ProductID == item.ProductID &&
		equalOpt(line.Size, item.Size) &&
		equalOpt(line.Color, item.Color) &&
		equalOpt(line.Edition, item.Edition)
}

func equalOpt(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
