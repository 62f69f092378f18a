package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/internal/payments"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	defaultReconcileAfter = 10 * time.Minute
	defaultAbandonAfter   = 24 * time.Hour
	defaultReconcileBatch = 50
)

type reconciler interface {
	Reconcile(ctx context.Context, params payments.ReconcileParams) (payments.ReconcileReport, error)
}

type PaymentReconcileJobParams struct {
	Logger       *logger.Logger
	Payments     reconciler
	After        time.Duration
	AbandonAfter time.Duration
	Batch        int
}

// NewPaymentReconcileJob settles intents whose shopper never completed the
// backend confirmation, so a captured charge always ends up with an order.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments reconciler required")
	}
	job := &paymentReconcileJob{
		logg:         params.Logger,
		payments:     params.Payments,
		after:        params.After,
		abandonAfter: params.AbandonAfter,
		batch:        params.Batch,
		now:          time.Now,
	}
	if job.after <= 0 {
		job.after = defaultReconcileAfter
	}
	if job.abandonAfter <= 0 {
		job.abandonAfter = defaultAbandonAfter
	}
	if job.batch <= 0 {
		job.batch = defaultReconcileBatch
	}
	return job, nil
}

type paymentReconcileJob struct {
	logg         *logger.Logger
	payments     reconciler
	after        time.Duration
	abandonAfter time.Duration
	batch        int
	now          func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	now := j.now()
	report, err := j.payments.Reconcile(ctx, payments.ReconcileParams{
		ConfirmBefore: now.Add(-j.after),
		AbandonBefore: now.Add(-j.abandonAfter),
		Limit:         j.batch,
	})
	if report.Checked > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"checked":   report.Checked,
			"confirmed": report.Confirmed,
			"failed":    report.Failed,
			"abandoned": report.Abandoned,
		}), "payment reconciliation swept intents")
	}
	if err != nil {
		return fmt.Errorf("payment reconcile: %w", err)
	}
	return nil
}
