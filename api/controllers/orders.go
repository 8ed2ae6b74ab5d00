package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/checkout/helpers"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type orderPlacer interface {
	PlaceOrder(ctx context.Context, input checkout.PlaceOrderInput) (*checkout.PlaceOrderResult, error)
}

type orderReader interface {
	GetOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*orders.OrderDTO, error)
	ListOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*orders.OrderList, error)
}

type paymentFlow interface {
	CreateIntent(ctx context.Context, customerID, orderID uuid.UUID) (*payments.IntentResult, error)
	ConfirmPayment(ctx context.Context, customerID, orderID uuid.UUID, intentID string) (*models.Order, error)
}

type placeOrderItemRequest struct {
	ProductID       uuid.UUID  `json:"product_id" validate:"required"`
	Quantity        int        `json:"quantity" validate:"required,gt=0"`
	UnitPrice       int64      `json:"unit_price" validate:"min=0"`
	DiscountPercent int        `json:"discount_percent" validate:"min=0,max=100"`
	Color           string     `json:"color" validate:"max=64"`
	Size            string     `json:"size" validate:"max=64"`
	CartItemID      *uuid.UUID `json:"cart_item_id,omitempty"`
}

type shippingRequest struct {
	FullName string `json:"full_name" validate:"required,max=255"`
	Phone    string `json:"phone" validate:"required,phone"`
	Address  string `json:"address" validate:"required,max=500"`
	City     string `json:"city" validate:"required,max=255"`
	District string `json:"district" validate:"required,max=255"`
	Ward     string `json:"ward" validate:"required,max=255"`
	Note     string `json:"note" validate:"max=1000"`
}

type placeOrderRequest struct {
	Items         []placeOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Shipping      shippingRequest         `json:"shipping"`
	PaymentMethod string                  `json:"payment_method" validate:"required,oneof=cod card"`
}

func (req placeOrderRequest) toInput(customerID uuid.UUID) checkout.PlaceOrderInput {
	items := make([]checkout.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkout.ItemInput{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			Color:           validators.SanitizeString(item.Color, 64),
			Size:            validators.SanitizeString(item.Size, 64),
			CartItemID:      item.CartItemID,
		})
	}
	return checkout.PlaceOrderInput{
		CustomerID: customerID,
		Items:      items,
		Shipping: helpers.ShippingInput{
			FullName: req.Shipping.FullName,
			Phone:    req.Shipping.Phone,
			Address:  req.Shipping.Address,
			City:     req.Shipping.City,
			District: req.Shipping.District,
			Ward:     req.Shipping.Ward,
			Note:     validators.SanitizeString(req.Shipping.Note, 1000),
		},
		PaymentMethod: req.PaymentMethod,
	}
}

// PlaceOrder splits the request into one order with a sub-order per seller.
func PlaceOrder(svc orderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("checkout service"))
			return
		}
		actor, err := actorFromRequest(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req placeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.PlaceOrder(ctx, req.toInput(actor.UserID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func ListOrders(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("orders service"))
			return
		}
		actor, err := actorFromRequest(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.ListOrders(ctx, actor.UserID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// OrderDetail returns one order with its sub-orders and items.
func OrderDetail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("orders service"))
			return
		}
		actor, err := actorFromRequest(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.GetOrder(ctx, actor, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func CreatePaymentIntent(svc paymentFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("payments service"))
			return
		}
		actor, err := actorFromRequest(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		intent, err := svc.CreateIntent(ctx, actor.UserID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

type confirmPaymentRequest struct {
	IntentID string `json:"intent_id" validate:"required,max=255"`
}

// ConfirmPayment verifies the intent with the processor and settles the order.
func ConfirmPayment(svc paymentFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("payments service"))
			return
		}
		actor, err := actorFromRequest(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.ConfirmPayment(ctx, actor.UserID, orderID, validators.SanitizeString(req.IntentID, 255))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if order == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement returned no order"))
			return
		}
		responses.WriteSuccess(w, orders.NewOrderDTO(*order))
	}
}
