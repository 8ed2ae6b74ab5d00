package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/checkout/helpers"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	pkgcheckout "github.com/angelmondragon/bazaar-backend/pkg/checkout"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
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

type stockGuard interface {
	Check(ctx context.Context, tx *gorm.DB, reqs []catalog.Requirement) (map[uuid.UUID]models.Product, error)
}

type codConfirmer interface {
	ConfirmCOD(ctx context.Context, orderID uuid.UUID) error
}

// Service places orders.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
}

// ItemInput is one requested line. UnitPrice and DiscountPercent echo what
// the customer saw and must match the catalog.
type ItemInput struct {
	ProductID       uuid.UUID
	Quantity        int
	UnitPrice       int64
	DiscountPercent int
	Color           string
	Size            string
	CartItemID      *uuid.UUID
}

type PlaceOrderInput struct {
	CustomerID    uuid.UUID
	Items         []ItemInput
	Shipping      helpers.ShippingInput
	PaymentMethod string
}

type SubOrderResult struct {
	ID            uuid.UUID `json:"id"`
	SellerID      uuid.UUID `json:"seller_id"`
	Price         int64     `json:"price"`
	ShippingShare int64     `json:"shipping_share"`
}

type PlaceOrderResult struct {
	OrderID         uuid.UUID            `json:"order_id"`
	PaymentMethod   enums.PaymentMethod  `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus  `json:"payment_status"`
	DeliveryStatus  enums.DeliveryStatus `json:"delivery_status"`
	Subtotal        int64                `json:"subtotal"`
	ShippingFee     int64                `json:"shipping_fee"`
	Total           int64                `json:"total"`
	PaymentDeadline *time.Time           `json:"payment_deadline,omitempty"`
	SubOrders       []SubOrderResult     `json:"sub_orders"`
}

type ServiceParams struct {
	Tx              txRunner
	Orders          orders.Repository
	Cart            cart.Repository
	Guard           stockGuard
	Outbox          outbox.Emitter
	COD             codConfirmer
	Metrics         *metrics.OrderMetrics
	Logger          *logger.Logger
	Checkout        config.CheckoutConfig
	PaymentDeadline time.Duration
	Now             func() time.Time
}

type service struct {
	tx       txRunner
	orders   orders.Repository
	cart     cart.Repository
	guard    stockGuard
	outbox   outbox.Emitter
	cod      codConfirmer
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	cfg      config.CheckoutConfig
	deadline time.Duration
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("catalog guard required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.COD == nil {
		return nil, fmt.Errorf("cod confirmer required")
	}
	if params.PaymentDeadline <= 0 {
		return nil, fmt.Errorf("payment deadline must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       params.Tx,
		orders:   params.Orders,
		cart:     params.Cart,
		guard:    params.Guard,
		outbox:   params.Outbox,
		cod:      params.COD,
		metrics:  params.Metrics,
		logg:     params.Logger,
		cfg:      params.Checkout,
		deadline: params.PaymentDeadline,
		now:      now,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	shipping, err := helpers.ValidateShipping(input.Shipping)
	if err != nil {
		return nil, err
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.PaymentMethod).
			WithDetails(map[string]any{"field": "payment_method"})
	}
	lines := make([]helpers.LineInput, len(input.Items))
	for i, item := range input.Items {
		lines[i] = helpers.LineInput{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := helpers.ValidateLines(lines); err != nil {
		return nil, err
	}

	var result *PlaceOrderResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reqs := make([]catalog.Requirement, len(input.Items))
		for i, item := range input.Items {
			reqs[i] = catalog.Requirement{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		products, err := s.guard.Check(ctx, tx, reqs)
		if err != nil {
			return err
		}

		priced, err := priceLines(input.Items, products)
		if err != nil {
			return err
		}
		groups := helpers.GroupBySeller(priced)
		order, subOrders, items := s.buildOrder(input.CustomerID, method, shipping, groups)

		if err := s.orders.WithTx(tx).CreateOrder(ctx, &order, subOrders, items); err != nil {
			return err
		}
		if cartIDs := cartItemIDs(input.Items); len(cartIDs) > 0 {
			if _, err := s.cart.WithTx(tx).DeleteByIDs(ctx, input.CustomerID, cartIDs); err != nil {
				return err
			}
		}
		if err := s.emitOrderCreatedEvent(ctx, tx, order, subOrders); err != nil {
			return err
		}

		result = newPlaceOrderResult(order, subOrders)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPlaced(method.String())
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       result.OrderID.String(),
		"payment_method": method,
		"total":          result.Total,
		"sub_orders":     len(result.SubOrders),
	})
	s.logg.Info(logCtx, "order placed")

	if method == enums.PaymentMethodCOD {
		if err := s.cod.ConfirmCOD(ctx, result.OrderID); err != nil {
			s.logg.Error(logCtx, "cod confirmation failed", err)
			return result, nil
		}
		result.DeliveryStatus = enums.DeliveryStatusProcessing
	}
	return result, nil
}

func (s *service) buildOrder(customerID uuid.UUID, method enums.PaymentMethod, shipping models.ShippingSnapshot, groups []helpers.SellerGroup) (models.Order, []models.SubOrder, []models.OrderItem) {
	now := s.now().UTC()
	subtotal := helpers.Subtotal(groups)
	fee := pkgcheckout.ShippingFee(subtotal, s.cfg)
	shares := pkgcheckout.SplitShipping(fee, len(groups))
	paymentStatus := method.InitialPaymentStatus()

	order := models.Order{
		ID:             uuid.New(),
		CustomerID:     customerID,
		Subtotal:       subtotal,
		ShippingFee:    fee,
		TotalPrice:     subtotal + fee,
		Shipping:       shipping,
		PaymentMethod:  method,
		PaymentStatus:  paymentStatus,
		DeliveryStatus: enums.DeliveryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if method == enums.PaymentMethodCard {
		deadline := now.Add(s.deadline)
		order.PaymentDeadline = &deadline
	}

	subOrders := make([]models.SubOrder, 0, len(groups))
	var items []models.OrderItem
	for i, group := range groups {
		sub := models.SubOrder{
			ID:             uuid.New(),
			OrderID:        order.ID,
			SellerID:       group.SellerID,
			Price:          group.Subtotal,
			ShippingShare:  shares[i],
			PaymentMethod:  method,
			Shipping:       shipping,
			PaymentStatus:  paymentStatus,
			DeliveryStatus: enums.DeliveryStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		for _, line := range group.Lines {
			items = append(items, models.OrderItem{
				ID:              uuid.New(),
				OrderID:         order.ID,
				SubOrderID:      sub.ID,
				ProductID:       line.ProductID,
				SellerID:        line.SellerID,
				ProductName:     line.ProductName,
				Quantity:        line.Quantity,
				UnitPrice:       line.UnitPrice,
				DiscountPercent: line.DiscountPercent,
				LineTotal:       line.LineTotal,
				Color:           line.Color,
				Size:            line.Size,
				CreatedAt:       now,
			})
		}
		subOrders = append(subOrders, sub)
	}
	return order, subOrders, items
}

func (s *service) emitOrderCreatedEvent(ctx context.Context, tx *gorm.DB, order models.Order, subOrders []models.SubOrder) error {
	summaries := make([]payloads.SubOrderSummary, 0, len(subOrders))
	for _, sub := range subOrders {
		summaries = append(summaries, payloads.SubOrderSummary{
			SubOrderID:    sub.ID,
			SellerID:      sub.SellerID,
			Price:         sub.Price,
			ShippingShare: sub.ShippingShare,
		})
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.CustomerID, Role: enums.UserRoleCustomer.String()},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			CustomerID:    order.CustomerID,
			PaymentMethod: order.PaymentMethod,
			Subtotal:      order.Subtotal,
			ShippingFee:   order.ShippingFee,
			TotalPrice:    order.TotalPrice,
			SubOrders:     summaries,
		},
		Version:    1,
		OccurredAt: order.CreatedAt,
	}
	return s.outbox.Emit(ctx, tx, event)
}

// priceLines resolves each line at the catalog price and rejects lines whose
// client-side price or discount went stale.
func priceLines(items []ItemInput, products map[uuid.UUID]models.Product) ([]helpers.PricedLine, error) {
	lines := make([]helpers.PricedLine, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", item.ProductID)
		}
		if item.UnitPrice != product.Price || item.DiscountPercent != product.DiscountPercent {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "price of %q has changed", product.Name).
				WithDetails(map[string]any{
					"product_id":       product.ID,
					"product_name":     product.Name,
					"unit_price":       product.Price,
					"discount_percent": product.DiscountPercent,
				})
		}
		unit := product.EffectivePrice()
		lines = append(lines, helpers.PricedLine{
			ProductID:       product.ID,
			SellerID:        product.SellerID,
			ProductName:     product.Name,
			Quantity:        item.Quantity,
			UnitPrice:       product.Price,
			DiscountPercent: product.DiscountPercent,
			LineTotal:       unit * int64(item.Quantity),
			Color:           item.Color,
			Size:            item.Size,
		})
	}
	return lines, nil
}

func cartItemIDs(items []ItemInput) []uuid.UUID {
	var ids []uuid.UUID
	for _, item := range items {
		if item.CartItemID != nil && *item.CartItemID != uuid.Nil {
			ids = append(ids, *item.CartItemID)
		}
	}
	return ids
}

func newPlaceOrderResult(order models.Order, subOrders []models.SubOrder) *PlaceOrderResult {
	result := &PlaceOrderResult{
		OrderID:         order.ID,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		DeliveryStatus:  order.DeliveryStatus,
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		Total:           order.TotalPrice,
		PaymentDeadline: order.PaymentDeadline,
		SubOrders:       make([]SubOrderResult, 0, len(subOrders)),
	}
	for _, sub := range subOrders {
		result.SubOrders = append(result.SubOrders, SubOrderResult{
			ID:            sub.ID,
			SellerID:      sub.SellerID,
			Price:         sub.Price,
			ShippingShare: sub.ShippingShare,
		})
	}
	return result
}
