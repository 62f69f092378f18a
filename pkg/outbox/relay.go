package outbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const (
	defaultRelayBatch    = 50
	defaultRelayAttempts = 10
	defaultRelayPoll     = 500 * time.Millisecond
	defaultRelayCeiling  = 10 * time.Second
	relayJitter          = 250 * time.Millisecond
)

// ErrUndeliverable marks a delivery that cannot succeed without operator
// action (missing topic, no permission). The row is parked, not retried.
var ErrUndeliverable = errors.New("outbox message undeliverable")

// Message is one outbox row as handed to the broker.
type Message struct {
	Data        []byte
	Attributes  map[string]string
	OrderingKey string
}

// Sink delivers a message and blocks until the broker acknowledges it.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type relayStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type RelayParams struct {
	DB           txRunner
	Store        relayStore
	Sink         Sink
	Logger       *logger.Logger
	Metrics      *metrics.OutboxMetrics
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

// Relay moves committed outbox rows to the broker. Each batch runs in one
// transaction so a crash mid-batch redelivers rather than loses events;
// consumers dedupe on the event_id attribute.
type Relay struct {
	db          txRunner
	store       relayStore
	sink        Sink
	logg        *logger.Logger
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	ceiling     time.Duration
}

// BatchReport counts what one Drain did.
type BatchReport struct {
	Published int
	Retried   int
	Parked    int
}

func (b BatchReport) Empty() bool {
	return b.Published+b.Retried+b.Parked == 0
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("outbox relay: database is required")
	case p.Store == nil:
		return nil, errors.New("outbox relay: store is required")
	case p.Sink == nil:
		return nil, errors.New("outbox relay: sink is required")
	case p.Logger == nil:
		return nil, errors.New("outbox relay: logger is required")
	}
	r := &Relay{
		db:          p.DB,
		store:       p.Store,
		sink:        p.Sink,
		logg:        p.Logger,
		metrics:     p.Metrics,
		batchSize:   p.BatchSize,
		maxAttempts: p.MaxAttempts,
		poll:        p.PollInterval,
		ceiling:     p.MaxBackoff,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultRelayBatch
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultRelayAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultRelayPoll
	}
	if r.ceiling < r.poll {
		r.ceiling = defaultRelayCeiling
	}
	return r, nil
}

// Run drains until ctx is cancelled. A full batch loops immediately, an
// idle poll waits one interval, and a storage failure backs off
// exponentially up to the ceiling.
func (r *Relay) Run(ctx context.Context) error {
	failures := r.failureBackoff()
	for {
		report, err := r.Drain(ctx)
		wait := r.poll
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.relay_batch_failed", err)
			wait, _ = failures.Next()
		case !report.Empty():
			failures = r.failureBackoff()
			continue
		default:
			failures = r.failureBackoff()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Relay) failureBackoff() retry.Backoff {
	return retry.WithJitter(relayJitter, retry.WithCappedDuration(r.ceiling, retry.NewExponential(r.poll)))
}

// Drain publishes at most one batch.
func (r *Relay) Drain(ctx context.Context) (BatchReport, error) {
	var report BatchReport
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox rows: %w", err)
		}
		for _, row := range rows {
			if err := r.relayOne(ctx, tx, row, &report); err != nil {
				return err
			}
		}
		return nil
	})
	return report, err
}

func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, report *BatchReport) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt":        row.AttemptCount + 1,
	})

	envelope, err := DecodeEnvelope(row.Payload)
	if err != nil {
		return r.park(ctx, tx, row, fmt.Errorf("decode envelope: %w", err), report)
	}

	deliverErr := r.sink.Deliver(ctx, messageFor(row, envelope))
	switch {
	case deliverErr == nil:
		if err := r.store.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		report.Published++
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Debug(ctx, "outbox.published")
		return nil
	case errors.Is(deliverErr, ErrUndeliverable), row.AttemptCount+1 >= r.maxAttempts:
		return r.park(ctx, tx, row, deliverErr, report)
	}

	r.logg.Warn(r.logg.WithField(ctx, "error", deliverErr.Error()), "outbox.delivery_failed")
	if err := r.store.MarkFailedTx(tx, row.ID, deliverErr); err != nil {
		return fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	report.Retried++
	r.metrics.IncFailed(string(row.EventType))
	return nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, cause error, report *BatchReport) error {
	r.logg.Error(ctx, "outbox.parked", cause)
	if err := r.store.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", row.ID, err)
	}
	report.Parked++
	r.metrics.IncParked(string(row.EventType))
	return nil
}

// messageFor keys ordering by aggregate so one order's events arrive in
// commit order.
func messageFor(row models.OutboxEvent, envelope PayloadEnvelope) Message {
	return Message{
		Data:        row.Payload,
		OrderingKey: row.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
			"schema_version": strconv.Itoa(envelope.Version),
		},
	}
}
