package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const (
	PaymentDeadlineJobName = "payment-deadline"
	expiredCancelReason    = "payment not received before deadline"
	defaultSweepBatch      = 200
)

type cancellationNotifier interface {
	NotifyOrderCancelled(ctx context.Context, notice notifications.OrderCancelledNotice) error
}

type PaymentDeadlineJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Outbox    outboxEmitter
	Notifier  cancellationNotifier
	Metrics   *metrics.OrderMetrics
	BatchSize int
}

// NewPaymentDeadlineJob builds the sweep that cancels card orders whose
// payment deadline has passed.
func NewPaymentDeadlineJob(params PaymentDeadlineJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &paymentDeadlineJob{
		logg:     params.Logger,
		db:       params.DB,
		orders:   params.Orders,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type paymentDeadlineJob struct {
	logg     *logger.Logger
	db       txRunner
	orders   orders.Repository
	outbox   outboxEmitter
	notifier cancellationNotifier
	metrics  *metrics.OrderMetrics
	batch    int
	now      func() time.Time
}

func (j *paymentDeadlineJob) Name() string { return PaymentDeadlineJobName }

func (j *paymentDeadlineJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.orders.FindExpiredCardOrders(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("query expired card orders: %w", err)
	}

	var errs error
	cancelled := 0
	for _, candidate := range expired {
		order, err := j.expire(ctx, candidate.ID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", candidate.ID, err))
			continue
		}
		if order == nil {
			continue
		}
		cancelled++
		j.notify(ctx, order)
	}
	j.metrics.AddExpired(cancelled)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(expired),
		"cancelled":  cancelled,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "payment deadline sweep complete")
	return errs
}

// expire cancels one order in its own transaction. A nil order means the
// order was settled or changed since it was listed.
func (j *paymentDeadlineJob) expire(ctx context.Context, orderID uuid.UUID, now time.Time) (*models.Order, error) {
	var cancelled *models.Order
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if !awaitingPayment(order.PaymentStatus) || order.DeliveryStatus.IsTerminal() {
			return nil
		}

		updates := map[string]any{
			"delivery_status": enums.DeliveryStatusCancelled,
			"cancel_reason":   expiredCancelReason,
			"cancelled_at":    now,
			"updated_at":      now,
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return err
		}
		if err := repo.UpdateSubOrdersByOrder(ctx, order.ID, updates); err != nil {
			return err
		}
		if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				CustomerID:  order.CustomerID,
				Reason:      expiredCancelReason,
				CancelledAt: now,
			},
		}); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (j *paymentDeadlineJob) notify(ctx context.Context, order *models.Order) {
	sellers := make([]uuid.UUID, 0, len(order.SubOrders))
	for _, sub := range order.SubOrders {
		sellers = append(sellers, sub.SellerID)
	}
	err := j.notifier.NotifyOrderCancelled(ctx, notifications.OrderCancelledNotice{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		SellerIDs:  sellers,
		Reason:     expiredCancelReason,
	})
	if err != nil {
		j.logg.Error(j.logg.WithOrderID(ctx, order.ID.String()), "cancellation notification failed", err)
	}
}

func awaitingPayment(status enums.PaymentStatus) bool {
	return status == enums.PaymentStatusUnpaid || status == enums.PaymentStatusPending
}
