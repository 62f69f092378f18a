package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront/pkg/types"
)

// CompensationStep names the post-charge step a job still has to finish.
type CompensationStep string

const (
	StepBackendConfirm CompensationStep = "backend_confirm"
	StepClearCart      CompensationStep = "clear_cart"
)

// CompensationJob records a step that failed after the processor took the
// money, so it can be retried until it lands.
type CompensationJob struct {
	ID              uuid.UUID        `gorm:"column:id;primaryKey"`
	PaymentIntentID uuid.UUID        `gorm:"column:payment_intent_id;not null;index:idx_compensation_intent_step,unique"`
	Step            CompensationStep `gorm:"column:step;not null;index:idx_compensation_intent_step,unique"`
	Attempts        int              `gorm:"column:attempts;not null;default:0"`
	LastError       string           `gorm:"column:last_error"`
	// PaidLines is the item snapshot the intent charged for.
	PaidLines     types.LineItems `gorm:"column:paid_lines;serializer:json"`
	NextAttemptAt time.Time       `gorm:"column:next_attempt_at;not null;index"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (CompensationJob) TableName() string { return "compensation_jobs" }

// CartClearClaim marks that one owner holds the right to clear the cart
// after a payment. A claim for a clear that went through is never released.
type CartClearClaim struct {
	PaymentIntentID uuid.UUID `gorm:"column:payment_intent_id;primaryKey"`
	Owner           uuid.UUID `gorm:"column:owner;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CartClearClaim) TableName() string { return "cart_clear_claims" }

// ClaimCartClear reports whether owner may clear the cart for intentID. The
// first caller wins; later callers get false unless they are the same owner.
func (s *Store) ClaimCartClear(ctx context.Context, intentID, owner uuid.UUID) (bool, error) {
	claim := CartClearClaim{PaymentIntentID: intentID, Owner: owner}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
	if res.Error != nil {
		return false, fmt.Errorf("claim cart clear: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	var existing CartClearClaim
	if err := s.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).Take(&existing).Error; err != nil {
		return false, fmt.Errorf("lookup cart clear claim: %w", err)
	}
	return existing.Owner == owner, nil
}

// ReleaseCartClear drops owner's claim after a clear that did not land.
func (s *Store) ReleaseCartClear(ctx context.Context, intentID, owner uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("payment_intent_id = ? AND owner = ?", intentID, owner).
		Delete(&CartClearClaim{}).Error
	if err != nil {
		return fmt.Errorf("release cart clear claim: %w", err)
	}
	return nil
}

// EnqueueJob stores job unless one already exists for the same intent and
// step, in which case the existing job is returned untouched.
func (s *Store) EnqueueJob(ctx context.Context, job CompensationJob) (*CompensationJob, error) {
	var existing CompensationJob
	err := s.db.WithContext(ctx).
		Where("payment_intent_id = ? AND step = ?", job.PaymentIntentID, job.Step).
		Take(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup compensation job: %w", err)
	}
	if job.ID == uuid.Nil {
		job.ID = newID()
	}
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = time.Now()
	}
	job.NextAttemptAt = job.NextAttemptAt.UTC()
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, fmt.Errorf("insert compensation job: %w", err)
	}
	return &job, nil
}

// DueJobs returns jobs whose next attempt is at or before now, oldest first.
func (s *Store) DueJobs(ctx context.Context, now time.Time, limit int) ([]CompensationJob, error) {
	var jobs []CompensationJob
	query := s.db.WithContext(ctx).
		Where("next_attempt_at <= ?", now.UTC()).
		Order("next_attempt_at ASC").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list compensation jobs: %w", err)
	}
	return jobs, nil
}

// PendingJobs lists every job regardless of schedule.
func (s *Store) PendingJobs(ctx context.Context) ([]CompensationJob, error) {
	var jobs []CompensationJob
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list compensation jobs: %w", err)
	}
	return jobs, nil
}

// RescheduleJob records a failed attempt.
func (s *Store) RescheduleJob(ctx context.Context, id uuid.UUID, attempts int, lastErr string, next time.Time) error {
	res := s.db.WithContext(ctx).Model(&CompensationJob{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":        attempts,
		"last_error":      lastErr,
		"next_attempt_at": next.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("reschedule compensation job: %w", res.Error)
	}
	return nil
}

// UpdatePaidLines narrows a clear job to the lines it has not removed yet.
func (s *Store) UpdatePaidLines(ctx context.Context, id uuid.UUID, lines types.LineItems) error {
	res := s.db.WithContext(ctx).Model(&CompensationJob{ID: id}).Select("paid_lines").Updates(&CompensationJob{PaidLines: lines})
	if res.Error != nil {
		return fmt.Errorf("update compensation job lines: %w", res.Error)
	}
	return nil
}

// CompleteJob removes a job that finally succeeded or was abandoned.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&CompensationJob{}).Error; err != nil {
		return fmt.Errorf("delete compensation job: %w", err)
	}
	return nil
}
