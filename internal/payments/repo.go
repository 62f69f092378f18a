package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment intent repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindByUserAttempt(ctx context.Context, userID uuid.UUID, attemptKey string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND attempt_key = ?", userID, attemptKey).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// Update applies updates only while the intent is in one of from.
func (r *repository) Update(ctx context.Context, id uuid.UUID, from []enums.PaymentIntentStatus, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleIntent
	}
	return nil
}

// ListUnsettled returns intents that never produced an order, oldest first.
func (r *repository) ListUnsettled(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND order_id IS NULL AND created_at < ?",
			[]enums.PaymentIntentStatus{enums.PaymentIntentStatusCreated, enums.PaymentIntentStatusSucceeded}, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&intents).Error
	if err != nil {
		return nil, err
	}
	return intents, nil
}
