package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Variant is the optional size/color/edition selection of a cart line.
type Variant struct {
	Size    *string
	Color   *string
	Edition *string
}

// ItemRef is a product reference as submitted by a shopper: the server
// reprices it from the catalog.
type ItemRef struct {
	ProductID uuid.UUID
	Quantity  int
	Variant   Variant
	ImageRef  string
}

// Service answers pricing and availability questions for carts and intents.
type Service interface {
	Product(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
	Price(ctx context.Context, tx *gorm.DB, refs []ItemRef) (types.LineItems, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

// Product returns an active product or a NOT_FOUND error.
func (s *service) Product(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.WithTx(tx).Active(ctx, id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

// Price turns shopper references into line snapshots priced from the catalog.
func (s *service) Price(ctx context.Context, tx *gorm.DB, refs []ItemRef) (types.LineItems, error) {
	if len(refs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		if ref.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"product_id": ref.ProductID})
		}
		ids = append(ids, ref.ProductID)
	}
	byID, err := s.repo.WithTx(tx).ActiveByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	items := make(types.LineItems, 0, len(refs))
	for _, ref := range refs {
		product, ok := byID[ref.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": ref.ProductID})
		}
		if err := ValidateVariant(product, ref.Variant); err != nil {
			return nil, err
		}
		image := ref.ImageRef
		if image == "" {
			image = product.ImageRef
		}
		items = append(items, types.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Quantity:  ref.Quantity,
			Size:      ref.Variant.Size,
			Color:     ref.Variant.Color,
			Edition:   ref.Variant.Edition,
			ImageRef:  image,
		})
	}
	return items, nil
}

// ValidateVariant rejects a selection the product does not offer. A product
// with no values for a dimension accepts no selection for it.
func ValidateVariant(product models.Product, v Variant) error {
	checks := []struct {
		field   string
		value   *string
		offered []string
	}{
		{"size", v.Size, product.Options.Sizes},
		{"color", v.Color, product.Options.Colors},
		{"edition", v.Edition, product.Options.Editions},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if !slices.Contains(c.offered, *c.value) {
			return pkgerrors.New(pkgerrors.CodeValidation, "unsupported "+c.field).
				WithDetails(map[string]any{"field": c.field, "value": *c.value, "allowed": c.offered})
		}
	}
	return nil
}
