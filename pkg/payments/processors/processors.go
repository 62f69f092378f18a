// Package processors picks the card processor integration named in config.
package processors

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/payments"
	"github.com/angelmondragon/storefront/pkg/square"
	"github.com/angelmondragon/storefront/pkg/stripe"
)

// New returns the server-side processor selected by STOREFRONT_PAYMENTS_PROCESSOR.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.Processor, error) {
	switch cfg.Payments.ProcessorName() {
	case config.ProcessorStripe:
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}
		return client, nil
	case config.ProcessorSquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported payment processor %q", cfg.Payments.Processor)
	}
}
