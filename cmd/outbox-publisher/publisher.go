package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
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

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	backoffCeiling      = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type PublisherParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          txRunner
	Transport   outbox.Transport
	Events      eventStore
	Registry    eventResolver
	DeadLetters deadLetters
	Metrics     *metrics.OutboxMetrics
}

// Publisher drains outbox_events to the broker. Each row ends a batch either
// published, scheduled for retry, or moved to outbox_dlq.
type Publisher struct {
	logg        *logger.Logger
	db          txRunner
	events      eventStore
	transport   outbox.Transport
	broker      string
	registry    eventResolver
	dlq         deadLetters
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
	jitter      func() time.Duration
}

func NewPublisher(p PublisherParams) (*Publisher, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Transport == nil:
		return nil, errors.New("broker transport is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	}

	cfg := p.Config.Outbox
	pub := &Publisher{
		logg:        p.Logger,
		db:          p.DB,
		events:      p.Events,
		transport:   p.Transport,
		broker:      config.BrokerPubSub,
		registry:    p.Registry,
		dlq:         p.DeadLetters,
		metrics:     p.Metrics,
		batchSize:   positiveOr(cfg.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, fallbackMaxAttempts),
		poll:        fallbackPoll,
		now:         time.Now,
		jitter:      func() time.Duration { return rand.N(jitterWindow) },
	}
	if cfg.PollIntervalMS > 0 {
		pub.poll = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	if p.Config.Eventing.IsKafka() {
		pub.broker = config.BrokerKafka
	}
	return pub, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is cancelled. Empty polls wait one interval; failed
// batches back off exponentially up to backoffCeiling.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := p.transport.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.broker, err)
	}

	wait := p.poll
	for {
		if err := ctx.Err(); err != nil {
			p.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		handled, err := p.drain(ctx)
		switch {
		case err != nil:
			p.logg.Error(ctx, "outbox publisher batch error", err)
			wait = min(wait*2, backoffCeiling)
		case handled > 0:
			wait = p.poll
			continue
		default:
			wait = p.poll
		}

		if err := p.pause(ctx, wait+p.jitter()); err != nil {
			return err
		}
	}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

// delivery is what happened to one row before its state is persisted.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	outcome  outcome
	reason   enums.OutboxDLQErrorReason
	err      error
}

// drain handles one batch inside a single transaction so row locks taken by
// the fetch are held until every row's new state is written.
func (p *Publisher) drain(ctx context.Context) (int, error) {
	handled := 0
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := p.events.FetchUnpublishedForPublish(tx, p.batchSize, p.maxAttempts)
		if err != nil {
			return err
		}
		for _, row := range rows {
			d := p.deliver(ctx, row)
			if err := p.record(ctx, tx, d); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (p *Publisher) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}

	resolved, err := p.registry.Resolve(event)
	if err != nil {
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
		return d
	}
	d.resolved = resolved

	err = p.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		d.outcome = outcomePublished
	case errors.As(err, &nonRetryable):
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= p.maxAttempts:
		d.outcome, d.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		d.outcome, d.err = outcomeRetry, err
	}
	return d
}

func (p *Publisher) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if resolved.Descriptor.Topic == "" {
		return registry.NewNonRetryableError(fmt.Errorf("no topic configured for %s", event.EventType))
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.transport.Publish(publishCtx, buildMessage(event, resolved))
}

// buildMessage keys by order so an order's events and its sub-orders' events
// share a partition and arrive in write order.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) outbox.Message {
	key := event.AggregateID
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if orderID, ok := payloads.OrderRef(resolved.Payload); ok {
		key = orderID
		attrs["order_id"] = orderID.String()
	}
	return outbox.Message{
		Topic:      resolved.Descriptor.Topic,
		Key:        key.String(),
		Data:       event.Payload,
		Attributes: attrs,
	}
}

func (p *Publisher) record(ctx context.Context, tx *gorm.DB, d delivery) error {
	ctx = p.logg.WithFields(ctx, p.fields(d))
	eventType := string(d.event.EventType)

	switch d.outcome {
	case outcomePublished:
		if err := p.events.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		p.metrics.IncDelivery(eventType, metrics.OutboxPublished)
		p.metrics.ObserveLag(eventType, p.now().Sub(d.event.CreatedAt))
		p.logg.Info(ctx, "outbox event published")

	case outcomeRetry:
		if err := p.events.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
		p.metrics.IncDelivery(eventType, metrics.OutboxRetried)
		p.logg.Warn(p.logg.WithField(ctx, "error", d.err.Error()), "outbox publish failed")

	case outcomeDeadLetter:
		entry := models.OutboxDLQ{
			EventID:       d.event.ID,
			EventType:     d.event.EventType,
			AggregateType: d.event.AggregateType,
			AggregateID:   d.event.AggregateID,
			Payload:       d.event.Payload,
			ErrorReason:   d.reason,
			AttemptCount:  d.event.AttemptCount,
			FailedAt:      p.now().UTC(),
		}
		if d.err != nil {
			msg := d.err.Error()
			entry.ErrorMessage = &msg
		}
		if err := p.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
		}
		if err := p.events.MarkTerminalTx(tx, d.event.ID, d.err, p.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
		}
		p.metrics.IncDelivery(eventType, metrics.OutboxDeadLettered)
		p.logg.Warn(p.logg.WithField(ctx, "error", errString(d.err)), "outbox event moved to dlq")
	}
	return nil
}

func (p *Publisher) fields(d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"broker":         p.broker,
		"attempt_count":  d.event.AttemptCount,
	}
	if d.outcome == outcomeRetry {
		fields["attempt_count"] = d.event.AttemptCount + 1
	}
	if d.reason != "" {
		fields["error_reason"] = d.reason
	}
	if d.resolved != nil {
		fields["topic"] = d.resolved.Descriptor.Topic
		if d.resolved.Envelope.EventID != "" {
			fields["event_id"] = d.resolved.Envelope.EventID
		}
		if orderID, ok := payloads.OrderRef(d.resolved.Payload); ok {
			fields["order_id"] = orderID.String()
		}
	}
	return fields
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *Publisher) pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
