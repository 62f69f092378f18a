package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/types"
)

// ErrStaleIntent is returned when a guarded intent update matched no row.
var ErrStaleIntent = errors.New("payment intent changed concurrently")

// Repository defines persistence operations for payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByUserAttempt(ctx context.Context, userID uuid.UUID, attemptKey string) (*models.PaymentIntent, error)
	Update(ctx context.Context, id uuid.UUID, from []enums.PaymentIntentStatus, updates map[string]any) error
	ListUnsettled(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentIntent, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type pricer interface {
	Price(ctx context.Context, tx *gorm.DB, refs []catalog.ItemRef) (types.LineItems, error)
}

type orderCreator interface {
	Create(ctx context.Context, tx *gorm.DB, input orders.CreateInput) (*models.Order, error)
}

type orderFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}
