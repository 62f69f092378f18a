package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront/internal/storefront/localstore"
	"github.com/angelmondragon/storefront/pkg/apiclient"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

const (
	defaultBaseDelay = 2 * time.Second
	defaultMaxDelay  = 5 * time.Minute
	defaultMaxTries  = 8
	dueBatch         = 20
)

type jobStore interface {
	jobQueue
	DueJobs(ctx context.Context, now time.Time, limit int) ([]localstore.CompensationJob, error)
	RescheduleJob(ctx context.Context, id uuid.UUID, attempts int, lastErr string, next time.Time) error
	CompleteJob(ctx context.Context, id uuid.UUID) error
	UpdatePaidLines(ctx context.Context, id uuid.UUID, lines types.LineItems) error
}

type paidLineRemover interface {
	RemovePaid(ctx context.Context, paid types.LineItems) (types.LineItems, error)
}

type confirmAPI interface {
	ConfirmIntent(ctx context.Context, intentID uuid.UUID, opts apiclient.CallOptions) (*apiclient.ConfirmResult, error)
}

type CompensatorParams struct {
	Jobs      jobStore
	API       confirmAPI
	Cart      paidLineRemover
	Logger    *logger.Logger
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxTries  int
	Now       func() time.Time
}

// Compensator retries post-charge steps until they land. Jobs that keep
// failing past MaxTries stay queued at the capped delay and are logged as
// errors on every attempt.
type Compensator struct {
	jobs      jobStore
	api       confirmAPI
	cart      paidLineRemover
	logg      *logger.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
	maxTries  int
	now       func() time.Time
}

// RunReport summarizes one pass over the due jobs.
type RunReport struct {
	Completed   int
	Rescheduled int
}

func NewCompensator(params CompensatorParams) (*Compensator, error) {
	if params.Jobs == nil {
		return nil, fmt.Errorf("job store required")
	}
	if params.API == nil {
		return nil, fmt.Errorf("backend api required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	c := &Compensator{
		jobs:      params.Jobs,
		api:       params.API,
		cart:      params.Cart,
		logg:      params.Logger,
		baseDelay: params.BaseDelay,
		maxDelay:  params.MaxDelay,
		maxTries:  params.MaxTries,
		now:       params.Now,
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.maxDelay <= 0 {
		c.maxDelay = defaultMaxDelay
	}
	if c.maxTries <= 0 {
		c.maxTries = defaultMaxTries
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Run processes due jobs every interval until ctx is cancelled.
func (c *Compensator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := c.RunOnce(ctx); err != nil {
			c.logg.Error(ctx, "compensation pass failed", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce attempts every job that is due now.
func (c *Compensator) RunOnce(ctx context.Context) (RunReport, error) {
	var report RunReport
	jobs, err := c.jobs.DueJobs(ctx, c.now(), dueBatch)
	if err != nil {
		return report, err
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": job.PaymentIntentID.String(),
			"step":              string(job.Step),
			"attempt":           job.Attempts + 1,
		})
		stepErr := c.runStep(ctx, job)
		if stepErr == nil {
			if err := c.jobs.CompleteJob(ctx, job.ID); err != nil {
				return report, err
			}
			c.logg.Info(logCtx, "compensation step completed")
			report.Completed++
			continue
		}

		attempts := job.Attempts + 1
		next := c.now().Add(c.delay(attempts))
		if err := c.jobs.RescheduleJob(ctx, job.ID, attempts, stepErr.Error(), next); err != nil {
			return report, err
		}
		if attempts >= c.maxTries || !pkgerrors.Retryable(stepErr) {
			c.logg.Error(logCtx, "compensation step keeps failing", stepErr)
		} else {
			c.logg.Warn(logCtx, "compensation step failed, rescheduled")
		}
		report.Rescheduled++
	}
	return report, nil
}

func (c *Compensator) runStep(ctx context.Context, job localstore.CompensationJob) error {
	switch job.Step {
	case localstore.StepBackendConfirm:
		if _, err := c.api.ConfirmIntent(ctx, job.PaymentIntentID, apiclient.CallOptions{
			IdempotencyKey: "confirm:" + job.PaymentIntentID.String(),
		}); err != nil {
			return err
		}
		// the order exists now; the cart clear follows as its own job
		if _, err := c.jobs.EnqueueJob(ctx, localstore.CompensationJob{
			PaymentIntentID: job.PaymentIntentID,
			Step:            localstore.StepClearCart,
			PaidLines:       job.PaidLines,
			NextAttemptAt:   c.now(),
		}); err != nil {
			return err
		}
		return nil
	case localstore.StepClearCart:
		return c.removePaid(ctx, job)
	}
	return fmt.Errorf("unknown compensation step %q", job.Step)
}

// removePaid takes only the lines the intent paid for out of the cart, and
// only when no one else has cleared the cart for that payment.
func (c *Compensator) removePaid(ctx context.Context, job localstore.CompensationJob) error {
	claimed, err := c.jobs.ClaimCartClear(ctx, job.PaymentIntentID, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		c.logg.Info(ctx, "cart already cleared for this payment, skipping")
		return nil
	}
	remaining, err := c.cart.RemovePaid(ctx, job.PaidLines)
	if err == nil {
		return nil
	}
	if len(remaining) < len(job.PaidLines) {
		if updateErr := c.jobs.UpdatePaidLines(ctx, job.ID, remaining); updateErr != nil {
			c.logg.Error(ctx, "could not record removed cart lines", updateErr)
		}
	}
	return err
}

// delay is the wait before attempt number attempts+1.
func (c *Compensator) delay(attempts int) time.Duration {
	backoff := retry.WithCappedDuration(c.maxDelay, retry.NewExponential(c.baseDelay))
	var wait time.Duration
	for i := 0; i < attempts; i++ {
		next, stop := backoff.Next()
		if stop {
			break
		}
		wait = next
	}
	return wait
}
