package carts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/types"
)

// ErrVersionMismatch is returned when a guarded version bump matched no row.
var ErrVersionMismatch = errors.New("cart version changed concurrently")

// Repository defines the persistence surface required by the cart service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	BumpVersion(ctx context.Context, cartID uuid.UUID, expected int64) (int64, error)
	InsertLine(ctx context.Context, line *models.CartLine) error
	UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, quantity int) error
	DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) error
	DeleteLines(ctx context.Context, cartID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pricer interface {
	Price(ctx context.Context, tx *gorm.DB, refs []catalog.ItemRef) (types.LineItems, error)
}

type orderCreator interface {
	Create(ctx context.Context, tx *gorm.DB, input orders.CreateInput) (*models.Order, error)
}
