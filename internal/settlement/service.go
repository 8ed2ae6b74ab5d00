package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
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

type stockVerifier interface {
	Verify(ctx context.Context, tx *gorm.DB, reqs []catalog.Requirement) (map[uuid.UUID]models.Product, error)
}

type walletLedger interface {
	CreditPlatform(ctx context.Context, tx *gorm.DB, input ledger.PlatformCreditInput) (*models.PlatformWalletEntry, error)
	CreditSeller(ctx context.Context, tx *gorm.DB, input ledger.SellerCreditInput) (*models.SellerWalletEntry, error)
}

// Service settles an order once money has been collected.
type Service interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Order, error)
}

type ServiceParams struct {
	Tx       txRunner
	Orders   orders.Repository
	Products catalog.Repository
	Guard    stockVerifier
	Ledger   walletLedger
	Outbox   outbox.Emitter
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	orders   orders.Repository
	products catalog.Repository
	guard    stockVerifier
	ledger   walletLedger
	outbox   outbox.Emitter
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("stock verifier required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       params.Tx,
		orders:   params.Orders,
		products: params.Products,
		guard:    params.Guard,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// ConfirmPayment marks the order and its live sub-orders paid, converts stock to
// sold, credits the platform and seller wallets and queues order_paid, all in
// one transaction. Nothing is applied when any step fails.
func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !method.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", method)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if err := checkSettleable(order, method); err != nil {
			return err
		}

		live, items, skipped := liveSubOrders(order)
		if len(live) == 0 {
			return pkgerrors.Newf(pkgerrors.CodeInvalidStatus, "every sub-order of order %s is cancelled or returned", order.ID)
		}
		if len(skipped) > 0 {
			s.logg.Warn(s.logg.WithField(ctx, "skipped_sub_orders", skipped), "settling order without its cancelled sub-orders; their share is owed back to the customer")
		}

		now := s.now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, paidUpdates(order.DeliveryStatus, now)); err != nil {
			return err
		}
		for _, sub := range live {
			if err := repo.UpdateSubOrder(ctx, sub.ID, paidUpdates(sub.DeliveryStatus, now)); err != nil {
				return err
			}
		}

		if err := s.convertStock(ctx, tx, items); err != nil {
			return err
		}

		if _, err := s.ledger.CreditPlatform(ctx, tx, ledger.PlatformCreditInput{
			OrderID:  order.ID,
			Amount:   order.TotalPrice,
			SettleAt: now,
		}); err != nil {
			return err
		}
		credits := make([]payloads.SellerCredit, 0, len(live))
		for _, sub := range live {
			if _, err := s.ledger.CreditSeller(ctx, tx, ledger.SellerCreditInput{
				SellerID:   sub.SellerID,
				OrderID:    order.ID,
				SubOrderID: sub.ID,
				Amount:     sub.Price,
				SettleAt:   now,
			}); err != nil {
				return err
			}
			credits = append(credits, payloads.SellerCredit{SellerID: sub.SellerID, SubOrderID: sub.ID, Amount: sub.Price})
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				CustomerID:    order.CustomerID,
				PaymentMethod: order.PaymentMethod,
				TotalPrice:    order.TotalPrice,
				PaidAt:        now,
				SellerCredits: credits,
			},
			OccurredAt: now,
		})
	})
	s.record(ctx, orderID, method, err)
	if err != nil {
		return nil, err
	}
	return s.orders.FindOrder(ctx, orderID, false)
}

// liveSubOrders splits off sub-orders a seller already cancelled or returned.
// Their items never shipped, so they take no stock and no seller credit.
func liveSubOrders(order *models.Order) ([]models.SubOrder, []models.OrderItem, []string) {
	live := make([]models.SubOrder, 0, len(order.SubOrders))
	keep := make(map[uuid.UUID]bool, len(order.SubOrders))
	var skipped []string
	for _, sub := range order.SubOrders {
		if sub.DeliveryStatus.IsReversal() {
			skipped = append(skipped, sub.ID.String())
			continue
		}
		live = append(live, sub)
		keep[sub.ID] = true
	}
	items := make([]models.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if keep[item.SubOrderID] {
			items = append(items, item)
		}
	}
	return live, items, skipped
}

// convertStock re-checks stock for the settled lines, then moves each line's
// quantity from stock to sold.
func (s *service) convertStock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order has no items to settle")
	}
	reqs := make([]catalog.Requirement, 0, len(items))
	for _, item := range items {
		reqs = append(reqs, catalog.Requirement{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if _, err := s.guard.Verify(ctx, tx, reqs); err != nil {
		return err
	}
	products := s.products.WithTx(tx)
	for _, item := range items {
		if err := products.AdjustStock(ctx, item.ProductID, -item.Quantity, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) record(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod, err error) {
	result := "ok"
	if err != nil {
		result = string(pkgerrors.CodeInternal)
		if typed := pkgerrors.As(err); typed != nil {
			result = string(typed.Code())
		}
	}
	s.metrics.IncSettlement(result)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       orderID.String(),
		"payment_method": method,
		"result":         result,
	})
	switch {
	case err == nil:
		s.logg.Info(logCtx, "order settled")
	case result == string(pkgerrors.CodeAlreadyPaid):
		s.logg.Info(logCtx, "settlement skipped, order already paid")
	default:
		s.logg.Warn(logCtx, "settlement rejected: "+err.Error())
	}
}

func checkSettleable(order *models.Order, method enums.PaymentMethod) error {
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.Newf(pkgerrors.CodeAlreadyPaid, "order %s is already paid", order.ID)
	}
	if order.DeliveryStatus.IsReversal() || order.PaymentStatus == enums.PaymentStatusRefunded {
		return pkgerrors.Newf(pkgerrors.CodeInvalidStatus, "order %s is %s and cannot be paid", order.ID, order.DeliveryStatus).
			WithDetails(map[string]any{"delivery_status": order.DeliveryStatus, "payment_status": order.PaymentStatus})
	}
	if order.PaymentMethod != method {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "order %s is paid by %s, not %s", order.ID, order.PaymentMethod, method)
	}
	return nil
}

// paidUpdates leaves delivery alone once it has moved past processing; COD
// orders are often settled at delivery.
func paidUpdates(current enums.DeliveryStatus, now time.Time) map[string]any {
	updates := map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        now,
		"updated_at":     now,
	}
	if current.Rank() >= 0 && current.Rank() < enums.DeliveryStatusProcessing.Rank() {
		updates["delivery_status"] = enums.DeliveryStatusProcessing
	}
	return updates
}
