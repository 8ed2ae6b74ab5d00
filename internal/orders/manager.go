package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusNotifier interface {
	NotifyStatusChanged(ctx context.Context, notice notifications.StatusChangedNotice) error
}

// Actor is the authenticated caller driving a status change.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// UpdateStatusInput targets the parent order (admin) or one sub-order (seller).
type UpdateStatusInput struct {
	Actor          Actor
	OrderID        *uuid.UUID
	SubOrderID     *uuid.UUID
	DeliveryStatus string
	PaymentStatus  *string
	Reason         string
}

type ManagerParams struct {
	Tx             txRunner
	Repo           Repository
	Products       catalog.Repository
	Outbox         outbox.Emitter
	Notifier       statusNotifier
	Metrics        *metrics.OrderMetrics
	Logger         *logger.Logger
	RefundOnCancel bool
	Now            func() time.Time
}

// Manager owns every delivery and payment status change outside settlement
// and expiry, plus the order read side.
type Manager struct {
	tx             txRunner
	repo           Repository
	products       catalog.Repository
	outbox         outbox.Emitter
	notifier       statusNotifier
	metrics        *metrics.OrderMetrics
	logg           *logger.Logger
	refundOnCancel bool
	now            func() time.Time
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		tx:             params.Tx,
		repo:           params.Repo,
		products:       params.Products,
		outbox:         params.Outbox,
		notifier:       params.Notifier,
		metrics:        params.Metrics,
		logg:           params.Logger,
		refundOnCancel: params.RefundOnCancel,
		now:            now,
	}, nil
}

// UpdateStatusResult carries the reloaded order after a committed change.
type UpdateStatusResult struct {
	Order          *models.Order
	SubOrderID     *uuid.UUID
	DeliveryStatus enums.DeliveryStatus
	PaymentStatus  enums.PaymentStatus
	RestockedItems int
}

func (m *Manager) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*UpdateStatusResult, error) {
	nextDelivery, err := enums.ParseDeliveryStatus(input.DeliveryStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidStatus, err, "unknown delivery status")
	}
	var nextPayment *enums.PaymentStatus
	if input.PaymentStatus != nil {
		parsed, err := enums.ParsePaymentStatus(*input.PaymentStatus)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidStatus, err, "unknown payment status")
		}
		nextPayment = &parsed
	}

	var result *UpdateStatusResult
	switch input.Actor.Role {
	case enums.UserRoleAdmin:
		if input.OrderID == nil || *input.OrderID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
		}
		result, err = m.updateOrderAsAdmin(ctx, input, *input.OrderID, nextDelivery, nextPayment)
	case enums.UserRoleSeller:
		if input.SubOrderID == nil || *input.SubOrderID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sub_order_id is required")
		}
		result, err = m.updateSubOrderAsSeller(ctx, input, *input.SubOrderID, nextDelivery, nextPayment)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers and admins can change order status")
	}
	if err != nil {
		return nil, err
	}

	m.metrics.IncTransition(input.Actor.Role.String(), result.DeliveryStatus.String())
	m.notifyCustomer(ctx, result)
	return result, nil
}

func (m *Manager) updateOrderAsAdmin(ctx context.Context, input UpdateStatusInput, orderID uuid.UUID, nextDelivery enums.DeliveryStatus, nextPayment *enums.PaymentStatus) (*UpdateStatusResult, error) {
	result := &UpdateStatusResult{}
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		plan, err := planTransition(order.DeliveryStatus, order.PaymentStatus, nextDelivery, nextPayment, m.refundOnCancel)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		restocked := 0
		if plan.restock {
			if restocked, err = m.restock(ctx, tx, order.Items, now); err != nil {
				return err
			}
		}
		if err := repo.UpdateOrder(ctx, order.ID, statusUpdates(plan, input, now)); err != nil {
			return err
		}

		result.DeliveryStatus = plan.toDelivery
		result.PaymentStatus = plan.toPayment
		result.RestockedItems = restocked
		return m.emitStatusChanged(ctx, tx, input.Actor, order.ID, nil, plan, restocked)
	})
	if err != nil {
		return nil, err
	}
	return m.reload(ctx, orderID, result)
}

func (m *Manager) updateSubOrderAsSeller(ctx context.Context, input UpdateStatusInput, subOrderID uuid.UUID, nextDelivery enums.DeliveryStatus, nextPayment *enums.PaymentStatus) (*UpdateStatusResult, error) {
	probe, err := m.repo.FindSubOrder(ctx, subOrderID, false)
	if err != nil {
		return nil, err
	}
	if probe.SellerID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "sub-order belongs to another seller")
	}

	result := &UpdateStatusResult{SubOrderID: &subOrderID}
	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		// parent first so admin and seller paths take locks in the same order
		order, err := repo.FindOrder(ctx, probe.OrderID, true)
		if err != nil {
			return err
		}
		sub, err := repo.FindSubOrder(ctx, subOrderID, true)
		if err != nil {
			return err
		}
		plan, err := planTransition(sub.DeliveryStatus, sub.PaymentStatus, nextDelivery, nextPayment, m.refundOnCancel)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		restocked := 0
		if plan.restock {
			if restocked, err = m.restock(ctx, tx, sub.Items, now); err != nil {
				return err
			}
		}
		updates := statusUpdates(plan, input, now)
		if err := repo.UpdateSubOrder(ctx, sub.ID, updates); err != nil {
			return err
		}
		// the parent mirrors whichever sub-order changed last
		if err := repo.UpdateOrder(ctx, order.ID, statusUpdates(plan, input, now)); err != nil {
			return err
		}

		result.DeliveryStatus = plan.toDelivery
		result.PaymentStatus = plan.toPayment
		result.RestockedItems = restocked
		return m.emitStatusChanged(ctx, tx, input.Actor, order.ID, &sub.ID, plan, restocked)
	})
	if err != nil {
		return nil, err
	}
	return m.reload(ctx, probe.OrderID, result)
}

// restock returns stock for items not restocked yet and stamps them.
func (m *Manager) restock(ctx context.Context, tx *gorm.DB, items []models.OrderItem, at time.Time) (int, error) {
	products := m.products.WithTx(tx)
	repo := m.repo.WithTx(tx)
	count := 0
	for _, item := range items {
		if item.RestockedAt != nil {
			continue
		}
		marked, err := repo.MarkItemsRestocked(ctx, []uuid.UUID{item.ID}, at)
		if err != nil {
			return 0, err
		}
		if marked == 0 {
			continue
		}
		if err := products.AdjustStock(ctx, item.ProductID, item.Quantity, -item.Quantity); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

func (m *Manager) emitStatusChanged(ctx context.Context, tx *gorm.DB, actor Actor, orderID uuid.UUID, subOrderID *uuid.UUID, plan transition, restocked int) error {
	aggregateType, aggregateID := enums.AggregateOrder, orderID
	if subOrderID != nil {
		aggregateType, aggregateID = enums.AggregateSubOrder, *subOrderID
	}
	return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
		Data: payloads.OrderStatusChangedEvent{
			OrderID:                orderID,
			SubOrderID:             subOrderID,
			ActorRole:              actor.Role,
			PreviousDeliveryStatus: plan.fromDelivery,
			DeliveryStatus:         plan.toDelivery,
			PreviousPaymentStatus:  plan.fromPayment,
			PaymentStatus:          plan.toPayment,
			RestockedItems:         restocked,
		},
	})
}

func (m *Manager) reload(ctx context.Context, orderID uuid.UUID, result *UpdateStatusResult) (*UpdateStatusResult, error) {
	order, err := m.repo.FindOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	result.Order = order
	return result, nil
}

func (m *Manager) notifyCustomer(ctx context.Context, result *UpdateStatusResult) {
	if m.notifier == nil || result.Order == nil {
		return
	}
	notice := notifications.StatusChangedNotice{
		OrderID:        result.Order.ID,
		CustomerID:     result.Order.CustomerID,
		DeliveryStatus: result.DeliveryStatus,
		PaymentStatus:  result.PaymentStatus,
	}
	if err := m.notifier.NotifyStatusChanged(ctx, notice); err != nil {
		logCtx := m.logg.WithOrderID(ctx, result.Order.ID.String())
		m.logg.Warn(logCtx, "status change notification failed: "+err.Error())
	}
}

// ConfirmCOD moves a freshly placed cash-on-delivery order into processing.
// Payment status is left for collection at delivery.
func (m *Manager) ConfirmCOD(ctx context.Context, orderID uuid.UUID) error {
	return m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if order.PaymentMethod != enums.PaymentMethodCOD {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "order %s is not cash on delivery", orderID)
		}
		if order.DeliveryStatus != enums.DeliveryStatusPending {
			return nil
		}

		updates := map[string]any{"delivery_status": enums.DeliveryStatusProcessing}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return err
		}
		if err := repo.UpdateSubOrdersByOrder(ctx, order.ID, map[string]any{"delivery_status": enums.DeliveryStatusProcessing}); err != nil {
			return err
		}
		plan := transition{
			fromDelivery: order.DeliveryStatus,
			toDelivery:   enums.DeliveryStatusProcessing,
			fromPayment:  order.PaymentStatus,
			toPayment:    order.PaymentStatus,
		}
		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:                order.ID,
				PreviousDeliveryStatus: plan.fromDelivery,
				DeliveryStatus:         plan.toDelivery,
				PreviousPaymentStatus:  plan.fromPayment,
				PaymentStatus:          plan.toPayment,
			},
		})
	})
}

func statusUpdates(plan transition, input UpdateStatusInput, now time.Time) map[string]any {
	updates := map[string]any{
		"delivery_status": plan.toDelivery,
		"payment_status":  plan.toPayment,
		"updated_at":      now,
	}
	if plan.deliveryChanged() && plan.toDelivery == enums.DeliveryStatusCancelled {
		reason := input.Reason
		if reason == "" {
			reason = "cancelled by " + input.Actor.Role.String()
		}
		updates["cancel_reason"] = reason
		updates["cancelled_at"] = now
	}
	return updates
}
