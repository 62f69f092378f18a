package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type productReader interface {
	Product(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
}

// ProductView is the public product shape used to render add-to-cart choices.
type ProductView struct {
	ID        uuid.UUID             `json:"id"`
	SKU       string                `json:"sku"`
	Name      string                `json:"name"`
	UnitPrice decimal.Decimal       `json:"unit_price"`
	ImageRef  string                `json:"image_ref,omitempty"`
	Options   models.ProductOptions `json:"options"`
}

// ProductDetail returns an active product.
func ProductDetail(catalog productReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := catalog.Product(r.Context(), nil, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ProductView{
			ID:        product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			ImageRef:  product.ImageRef,
			Options:   product.Options,
		})
	}
}
