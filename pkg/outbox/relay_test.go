package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type recordingSink struct {
	errs     []error
	messages []Message
}

func (s *recordingSink) Deliver(_ context.Context, msg Message) error {
	s.messages = append(s.messages, msg)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func newRelay(t *testing.T, conn *gorm.DB, sink Sink, maxAttempts int) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		DB:          dbpkg.Open(conn),
		Store:       NewRepository(conn),
		Sink:        sink,
		Logger:      logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		BatchSize:   10,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return relay
}

func seedEvent(t *testing.T, conn *gorm.DB, eventID string, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(PayloadEnvelope{Version: 1, EventID: eventID, OccurredAt: time.Now(), Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
	require.NoError(t, NewRepository(conn).Insert(conn, row))
	return row
}

func reload(t *testing.T, conn *gorm.DB, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", id).Error)
	return row
}

func TestDrainPublishesAndRetriesIndependently(t *testing.T) {
	conn := openTestDB(t)
	first := seedEvent(t, conn, "evt-1", 0)
	second := seedEvent(t, conn, "evt-2", 0)
	sink := &recordingSink{errs: []error{errors.New("transient"), nil}}

	report, err := newRelay(t, conn, sink, 5).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchReport{Published: 1, Retried: 1}, report)

	require.Len(t, sink.messages, 2)
	published := sink.messages[1]
	if published.Attributes["event_id"] == "evt-1" {
		published = sink.messages[0]
	}
	assert.Equal(t, string(enums.EventOrderCreated), published.Attributes["event_type"])
	assert.Equal(t, "1", published.Attributes["schema_version"])

	rows := []models.OutboxEvent{reload(t, conn, first.ID), reload(t, conn, second.ID)}
	var delivered, retried int
	for _, row := range rows {
		if row.PublishedAt != nil {
			delivered++
			assert.Equal(t, row.AggregateID.String(), published.OrderingKey)
		} else {
			retried++
			assert.Equal(t, 1, row.AttemptCount)
			require.NotNil(t, row.LastError)
			assert.Equal(t, "transient", *row.LastError)
		}
	}
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, retried)
}

func TestDrainParksOnLastAttempt(t *testing.T) {
	conn := openTestDB(t)
	row := seedEvent(t, conn, "evt-last", 1)
	sink := &recordingSink{errs: []error{errors.New("still down")}}

	report, err := newRelay(t, conn, sink, 2).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Parked)
	assert.Equal(t, 2, reload(t, conn, row.ID).AttemptCount)

	report, err = newRelay(t, conn, sink, 2).Drain(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Empty(), "parked rows are not fetched again")
}

func TestDrainParksUndeliverableImmediately(t *testing.T) {
	conn := openTestDB(t)
	seedEvent(t, conn, "evt-topic", 0)
	sink := &recordingSink{errs: []error{fmt.Errorf("%w: topic missing", ErrUndeliverable)}}

	report, err := newRelay(t, conn, sink, 10).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchReport{Parked: 1}, report)
}

func TestDrainParksUndecodablePayload(t *testing.T) {
	conn := openTestDB(t)
	row := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`not-json`)}
	require.NoError(t, NewRepository(conn).Insert(conn, row))
	sink := &recordingSink{}

	report, err := newRelay(t, conn, sink, 5).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Parked)
	assert.Empty(t, sink.messages)
}

func TestRunStopsOnCancel(t *testing.T) {
	conn := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := newRelay(t, conn, &recordingSink{}, 5).Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRelayRequiresSink(t *testing.T) {
	_, err := NewRelay(RelayParams{DB: dbpkg.Open(nil), Store: NewRepository(nil), Logger: logger.New(logger.Options{Output: io.Discard})})
	assert.Error(t, err)
}
