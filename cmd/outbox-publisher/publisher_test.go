package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

func TestDrainRetriesOneRowAndPublishesTheNext(t *testing.T) {
	first, second := paidRow(t, 0), paidRow(t, 0)
	store := &memoryEvents{rows: []models.OutboxEvent{first, second}}
	broker := &recordingTransport{errs: []error{errors.New("broker timeout"), nil}}
	dlq := &memoryDLQ{}
	pub := newTestPublisher(t, store, broker, ordersRegistry(t), dlq, 5)

	handled, err := pub.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Empty(t, dlq.entries)
}

func TestSubOrderEventsAreKeyedByParentOrder(t *testing.T) {
	orderID, subOrderID := uuid.New(), uuid.New()
	row := rowFor(t, enums.EventOrderStatusChanged, enums.AggregateSubOrder, subOrderID, payloads.OrderStatusChangedEvent{
		OrderID:        orderID,
		SubOrderID:     &subOrderID,
		ActorRole:      enums.UserRoleSeller,
		DeliveryStatus: enums.DeliveryStatusShipped,
	}, 0)
	store := &memoryEvents{rows: []models.OutboxEvent{row}}
	broker := &recordingTransport{}
	pub := newTestPublisher(t, store, broker, ordersRegistry(t), &memoryDLQ{}, 5)

	_, err := pub.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, broker.sent, 1)

	msg := broker.sent[0]
	assert.Equal(t, "bazaar-orders", msg.Topic)
	assert.Equal(t, orderID.String(), msg.Key)
	assert.Equal(t, orderID.String(), msg.Attributes["order_id"])
	assert.Equal(t, subOrderID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, string(enums.AggregateSubOrder), msg.Attributes["aggregate_type"])
	assert.JSONEq(t, string(row.Payload), string(msg.Data))
}

func TestDrainDeadLetters(t *testing.T) {
	cases := []struct {
		name       string
		row        func(t *testing.T) models.OutboxEvent
		errs       []error
		maxAttempt int
		reason     enums.OutboxDLQErrorReason
	}{
		{
			name: "undecodable payload",
			row: func(t *testing.T) models.OutboxEvent {
				row := paidRow(t, 0)
				row.Payload = json.RawMessage(`{"version":1,"data":null}`)
				return row
			},
			maxAttempt: 5,
			reason:     enums.OutboxDLQReasonNonRetryable,
		},
		{
			name: "aggregate cannot emit event",
			row: func(t *testing.T) models.OutboxEvent {
				row := paidRow(t, 0)
				row.AggregateType = enums.AggregateNotification
				return row
			},
			maxAttempt: 5,
			reason:     enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "broker rejects permanently",
			row:        func(t *testing.T) models.OutboxEvent { return paidRow(t, 0) },
			errs:       []error{registry.NewNonRetryableError(errors.New("message too large"))},
			maxAttempt: 5,
			reason:     enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "attempts exhausted",
			row:        func(t *testing.T) models.OutboxEvent { return paidRow(t, 1) },
			errs:       []error{errors.New("broker timeout")},
			maxAttempt: 2,
			reason:     enums.OutboxDLQReasonMaxAttempts,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := tc.row(t)
			store := &memoryEvents{rows: []models.OutboxEvent{row}}
			dlq := &memoryDLQ{}
			pub := newTestPublisher(t, store, &recordingTransport{errs: tc.errs}, ordersRegistry(t), dlq, tc.maxAttempt)

			_, err := pub.drain(context.Background())
			require.NoError(t, err)

			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			assert.Equal(t, row.ID, entry.EventID)
			assert.Equal(t, tc.reason, entry.ErrorReason)
			assert.Equal(t, []byte(row.Payload), []byte(entry.Payload))
			require.NotNil(t, entry.ErrorMessage)
			assert.Equal(t, []uuid.UUID{row.ID}, store.terminal)
			assert.Empty(t, store.published)
		})
	}
}

func TestDrainCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &memoryEvents{rows: []models.OutboxEvent{paidRow(t, 0), paidRow(t, 0)}}
	broker := &recordingTransport{errs: []error{errors.New("broker timeout"), nil}}
	pub := newTestPublisher(t, store, broker, ordersRegistry(t), &memoryDLQ{}, 5)
	pub.metrics = metrics.NewOutboxMetrics(reg)

	_, err := pub.drain(context.Background())
	require.NoError(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var outcomes []string
	for _, mf := range mfs {
		if mf.GetName() != "bazaar_outbox_deliveries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" {
					outcomes = append(outcomes, label.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{metrics.OutboxPublished, metrics.OutboxRetried}, outcomes)
}

func TestDrainAbortsWhenStateCannotBeWritten(t *testing.T) {
	store := &memoryEvents{rows: []models.OutboxEvent{paidRow(t, 0)}, markErr: errors.New("db gone")}
	pub := newTestPublisher(t, store, &recordingTransport{}, ordersRegistry(t), &memoryDLQ{}, 5)

	_, err := pub.drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark published")
}

func TestNewPublisherDefaultsAndBroker(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard})
	for broker, want := range map[string]string{"kafka": config.BrokerKafka, "pubsub": config.BrokerPubSub} {
		pub, err := NewPublisher(PublisherParams{
			Config:      &config.Config{Eventing: config.EventingConfig{Broker: broker}},
			Logger:      logg,
			DB:          &inlineTx{},
			Transport:   &recordingTransport{},
			Events:      &memoryEvents{},
			Registry:    ordersRegistry(t),
			DeadLetters: &memoryDLQ{},
		})
		require.NoError(t, err)
		assert.Equal(t, want, pub.broker)
		assert.Equal(t, fallbackBatchSize, pub.batchSize)
		assert.Equal(t, fallbackMaxAttempts, pub.maxAttempts)
		assert.Equal(t, fallbackPoll, pub.poll)
	}

	_, err := NewPublisher(PublisherParams{Config: &config.Config{}, Logger: logg})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	pub := newTestPublisher(t, &memoryEvents{}, &recordingTransport{}, ordersRegistry(t), &memoryDLQ{}, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pub.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newTestPublisher(t *testing.T, store eventStore, transport outbox.Transport, resolver eventResolver, dlq deadLetters, maxAttempts int) *Publisher {
	t.Helper()
	pub, err := NewPublisher(PublisherParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      10,
			PollIntervalMS: 10,
			MaxAttempts:    maxAttempts,
		}},
		Logger:      logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:          &inlineTx{},
		Transport:   transport,
		Events:      store,
		Registry:    resolver,
		DeadLetters: dlq,
	})
	require.NoError(t, err)
	pub.jitter = func() time.Duration { return 0 }
	return pub
}

func ordersRegistry(t *testing.T) *registry.EventRegistry {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{
		OrdersTopic:       "bazaar-orders",
		NotificationTopic: "bazaar-notifications",
	})
	require.NoError(t, err)
	return reg
}

func paidRow(t *testing.T, attempts int) models.OutboxEvent {
	orderID := uuid.New()
	return rowFor(t, enums.EventOrderPaid, enums.AggregateOrder, orderID, payloads.OrderPaidEvent{
		OrderID:       orderID,
		CustomerID:    uuid.New(),
		PaymentMethod: enums.PaymentMethodCard,
		TotalPrice:    125000,
		PaidAt:        time.Now().UTC(),
	}, attempts)
}

func rowFor(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, data any, attempts int) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Payload:       envelope,
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

type memoryEvents struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (m *memoryEvents) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(m.rows) > limit {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

func (m *memoryEvents) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.published = append(m.published, id)
	return nil
}

func (m *memoryEvents) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memoryEvents) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.terminal = append(m.terminal, id)
	return nil
}

type inlineTx struct{}

func (inlineTx) Ping(context.Context) error { return nil }

func (inlineTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type recordingTransport struct {
	errs []error
	sent []outbox.Message
}

func (r *recordingTransport) Publish(_ context.Context, msg outbox.Message) error {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return err
		}
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) Ping(context.Context) error { return nil }

func (r *recordingTransport) Close() error { return nil }

type memoryDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memoryDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}
