package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type statusUpdater interface {
	UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*orders.UpdateStatusResult, error)
}

type subOrderLister interface {
	ListSellerSubOrders(ctx context.Context, sellerID uuid.UUID, filter orders.SubOrderFilter, params pagination.Params) (*orders.SubOrderList, error)
}

type subOrderFinder interface {
	FindSubOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.SubOrder, error)
}

type paymentSettler interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Order, error)
}

type sellerWallets interface {
	SellerSummary(ctx context.Context, sellerID uuid.UUID, year, month int) (*ledger.SellerWallet, error)
}

type statusResponse struct {
	Order          *orders.OrderDTO     `json:"order,omitempty"`
	SubOrderID     *uuid.UUID           `json:"sub_order_id,omitempty"`
	DeliveryStatus enums.DeliveryStatus `json:"delivery_status"`
	PaymentStatus  enums.PaymentStatus  `json:"payment_status"`
	RestockedItems int                  `json:"restocked_items"`
}

func newStatusResponse(result *orders.UpdateStatusResult) statusResponse {
	resp := statusResponse{
		SubOrderID:     result.SubOrderID,
		DeliveryStatus: result.DeliveryStatus,
		PaymentStatus:  result.PaymentStatus,
		RestockedItems: result.RestockedItems,
	}
	if result.Order != nil {
		dto := orders.NewOrderDTO(*result.Order)
		resp.Order = &dto
	}
	return resp
}

type statusRequest struct {
	DeliveryStatus string  `json:"delivery_status" validate:"required,max=32"`
	PaymentStatus  *string `json:"payment_status,omitempty" validate:"omitempty,max=32"`
	Reason         string  `json:"reason" validate:"max=500"`
}

// SellerSubOrders lists the caller's sub-orders, optionally filtered by status.
func SellerSubOrders(svc subOrderLister, logg *logger.Logger) http.HandlerFunc {
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
		filter, err := subOrderFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.ListSellerSubOrders(ctx, actor.UserID, filter, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func subOrderFilter(r *http.Request) (orders.SubOrderFilter, error) {
	var filter orders.SubOrderFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("delivery_status")); raw != "" {
		status, err := enums.ParseDeliveryStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery_status")
		}
		filter.DeliveryStatus = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
		}
		filter.PaymentStatus = &status
	}
	return filter, nil
}

// SellerUpdateSubOrderStatus lets a seller move one of their sub-orders.
func SellerUpdateSubOrderStatus(svc statusUpdater, logg *logger.Logger) http.HandlerFunc {
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
		subOrderID, err := validators.ParseUUIDParam(r, "subOrderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.UpdateStatus(ctx, orders.UpdateStatusInput{
			Actor:          actor,
			SubOrderID:     &subOrderID,
			DeliveryStatus: req.DeliveryStatus,
			PaymentStatus:  req.PaymentStatus,
			Reason:         validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newStatusResponse(result))
	}
}

// SellerCODCollected settles a cash-on-delivery order once the seller has
// collected the cash for their sub-order.
func SellerCODCollected(subOrders subOrderFinder, settlement paymentSettler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if subOrders == nil || settlement == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("settlement service"))
			return
		}
		actor, err := actorFromRequest(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subOrderID, err := validators.ParseUUIDParam(r, "subOrderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := subOrders.FindSubOrder(ctx, subOrderID, false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if sub.SellerID != actor.UserID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "sub-order belongs to another seller"))
			return
		}

		order, err := settlement.ConfirmPayment(ctx, sub.OrderID, enums.PaymentMethodCOD)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithOrderID(ctx, sub.OrderID.String()), "cod payment collected")
		responses.WriteSuccess(w, orders.NewOrderDTO(*order))
	}
}

// SellerWallet returns the caller's wallet credits for ?year=&month=.
// Zero values widen the period.
func SellerWallet(svc sellerWallets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("ledger service"))
			return
		}
		actor, err := actorFromRequest(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		year, month, err := walletPeriod(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		wallet, err := svc.SellerSummary(ctx, actor.UserID, year, month)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

func walletPeriod(r *http.Request) (int, int, error) {
	year, err := validators.ParseQueryInt(r, "year", 0, 0, 9999)
	if err != nil {
		return 0, 0, err
	}
	month, err := validators.ParseQueryInt(r, "month", 0, 0, 12)
	if err != nil {
		return 0, 0, err
	}
	if month != 0 && year == 0 {
		year = time.Now().UTC().Year()
	}
	return year, month, nil
}
