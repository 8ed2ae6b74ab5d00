package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Service sends order notifications and serves a user's inbox.
type Service interface {
	NotifyOrderCancelled(ctx context.Context, notice OrderCancelledNotice) error
	NotifyStatusChanged(ctx context.Context, notice StatusChangedNotice) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	now    func() time.Time
}

// OrderCancelledNotice addresses the customer and every seller of an order.
type OrderCancelledNotice struct {
	OrderID    uuid.UUID
	CustomerID uuid.UUID
	SellerIDs  []uuid.UUID
	Reason     string
}

// StatusChangedNotice tells the customer where their order stands.
type StatusChangedNotice struct {
	OrderID        uuid.UUID
	CustomerID     uuid.UUID
	DeliveryStatus enums.DeliveryStatus
	PaymentStatus  enums.PaymentStatus
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

type Item struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	OrderID   *uuid.UUID             `json:"order_id,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter, now: time.Now}, nil
}

func (s *service) NotifyOrderCancelled(ctx context.Context, notice OrderCancelledNotice) error {
	if notice.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	message := fmt.Sprintf("Order %s was cancelled.", notice.OrderID)
	if notice.Reason != "" {
		message = fmt.Sprintf("Order %s was cancelled: %s.", notice.OrderID, notice.Reason)
	}
	recipients := append([]uuid.UUID{notice.CustomerID}, notice.SellerIDs...)
	return s.send(ctx, notice.OrderID, recipients, enums.NotificationTypeOrderCancelled, "Order cancelled", message)
}

func (s *service) NotifyStatusChanged(ctx context.Context, notice StatusChangedNotice) error {
	if notice.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	message := fmt.Sprintf("Order %s is now %s (payment %s).", notice.OrderID, notice.DeliveryStatus, notice.PaymentStatus)
	return s.send(ctx, notice.OrderID, []uuid.UUID{notice.CustomerID}, enums.NotificationTypeOrderStatusChanged, "Order updated", message)
}

// send stores one row per distinct recipient and queues the email request
// in the same transaction.
func (s *service) send(ctx context.Context, orderID uuid.UUID, recipients []uuid.UUID, kind enums.NotificationType, title, message string) error {
	recipients = distinct(recipients)
	if len(recipients) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one recipient required")
	}

	now := s.now().UTC()
	rows := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		order := orderID
		rows = append(rows, models.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      kind,
			Title:     title,
			Message:   message,
			OrderID:   &order,
			CreatedAt: now,
		})
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateMany(ctx, rows); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   rows[0].ID,
			Data: payloads.NotificationRequestedEvent{
				OrderID:      orderID,
				RecipientIDs: recipients,
				Type:         kind,
				Title:        title,
				Message:      message,
			},
			OccurredAt: now,
		})
	})
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      pagination.LimitWithBuffer(params.Limit),
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})

	result := &ListResult{Items: make([]Item, 0, len(rows))}
	for _, row := range rows {
		result.Items = append(result.Items, Item{
			ID:        row.ID,
			Type:      row.Type,
			Title:     row.Title,
			Message:   row.Message,
			OrderID:   row.OrderID,
			ReadAt:    row.ReadAt,
			CreatedAt: row.CreatedAt,
		})
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
