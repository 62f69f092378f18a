package catalog

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// Repository reads purchasable products. Catalog writes happen elsewhere.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Active returns gorm.ErrRecordNotFound for unknown or retired products.
	Active(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// ActiveByIDs omits ids that are unknown or retired.
	ActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Where("is_active = ?", true)
}

func (r *repository) Active(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}
	if err := r.active(ctx).Take(product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (r *repository) ActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	unique := slices.Compact(slices.SortedFunc(slices.Values(ids), func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	}))
	found := make(map[uuid.UUID]models.Product, len(unique))
	if len(unique) == 0 {
		return found, nil
	}
	var rows []models.Product
	if err := r.active(ctx).Where("id IN ?", unique).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		found[p.ID] = p
	}
	return found, nil
}
