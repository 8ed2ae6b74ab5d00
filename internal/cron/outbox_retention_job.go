package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	defaultOutboxRetention     = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
	// matches the publisher's default attempt ceiling
	outboxMinAttempts = 10
)

type OutboxRetentionJobParams struct {
	Logger              *logger.Logger
	DB                  txRunner
	Events              publishedEventPruner
	DeadLetters         deadLetterPruner
	Retention           time.Duration
	DeadLetterRetention time.Duration
	MinAttempts         int
}

type publishedEventPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes delivered order events and, on a longer
// horizon, the dead letters operators had time to inspect.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Events == nil:
		return nil, errors.New("outbox event repository required")
	}

	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		events:       params.Events,
		deadLetters:  params.DeadLetters,
		retention:    orDefault(params.Retention, defaultOutboxRetention),
		dlqRetention: orDefault(params.DeadLetterRetention, defaultDeadLetterRetention),
		minAttempts:  params.MinAttempts,
		now:          time.Now,
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	return job, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	events       publishedEventPruner
	deadLetters  deadLetterPruner
	retention    time.Duration
	dlqRetention time.Duration
	minAttempts  int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes each table in its own transaction so a failing dead-letter
// delete never rolls back the event cleanup.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff := now.Add(-j.retention)

	var errs error
	var eventsDeleted, lettersDeleted int64

	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.events.DeletePublishedBefore(ctx, tx, eventCutoff, j.minAttempts)
		eventsDeleted = n
		return err
	})
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune outbox events: %w", err))
	}

	if j.deadLetters != nil {
		dlqCutoff := now.Add(-j.dlqRetention)
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.deadLetters.DeleteFailedBefore(ctx, tx, dlqCutoff)
			lettersDeleted = n
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune outbox dead letters: %w", err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"events_deleted":       eventsDeleted,
		"dead_letters_deleted": lettersDeleted,
	})
	if errs != nil {
		j.logg.Error(logCtx, "outbox retention incomplete", errs)
		return errs
	}
	j.logg.Info(logCtx, "outbox retention complete")
	return nil
}
