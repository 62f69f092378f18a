package payments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	paypkg "github.com/angelmondragon/storefront/pkg/payments"
	"github.com/angelmondragon/storefront/pkg/types"
)

// Refunder returns money for card orders through the processor that took it.
type Refunder struct {
	repo      Repository
	processor paypkg.Processor
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

func NewRefunder(repo Repository, processor paypkg.Processor, m *metrics.PaymentMetrics, logg *logger.Logger) (*Refunder, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	return &Refunder{repo: repo, processor: processor, metrics: m, logg: logg}, nil
}

// RefundOrder refunds amount against the order's payment intent and returns
// the processor refund ID.
func (r *Refunder) RefundOrder(ctx context.Context, order models.Order, amount decimal.Decimal, idempotencyKey string) (string, error) {
	if order.PaymentIntentID == nil {
		return "", pkgerrors.New(pkgerrors.CodePrecondition, "order has no card payment to refund")
	}
	intent, err := r.repo.FindByID(ctx, *order.PaymentIntentID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent.Processor != r.processor.Name() {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "order was paid through "+string(intent.Processor)+", which is not configured")
	}
	cents := types.ToCents(amount)
	if cents <= 0 || cents > intent.AmountCents {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "refund amount out of range").
			WithDetails(map[string]any{"amount_cents": cents, "max_cents": intent.AmountCents})
	}

	refund, err := r.processor.Refund(ctx, paypkg.RefundParams{
		IntentID:       intent.ChargeReference(),
		AmountCents:    cents,
		Currency:       intent.Currency,
		IdempotencyKey: idempotencyKey,
		Reason:         "cancellation approved",
	})
	if err != nil {
		r.metrics.IncRefund(string(intent.Processor), "failed")
		if r.logg != nil {
			r.logg.Error(r.logg.WithOrderID(ctx, order.ID.String()), "refund failed", err)
		}
		return "", err
	}
	r.metrics.IncRefund(string(intent.Processor), "succeeded")
	return refund.ID, nil
}
