package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type platformWallets interface {
	PlatformSummary(ctx context.Context, year, month int) (*ledger.PlatformWallet, error)
}

// AdminUpdateOrderStatus moves a parent order and every sub-order under it.
func AdminUpdateOrderStatus(svc statusUpdater, logg *logger.Logger) http.HandlerFunc {
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
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.UpdateStatus(ctx, orders.UpdateStatusInput{
			Actor:          actor,
			OrderID:        &orderID,
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

// AdminPlatformWallet sums the platform credits for ?year=&month=.
func AdminPlatformWallet(svc platformWallets, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, serviceUnavailable("ledger service"))
			return
		}
		year, month, err := walletPeriod(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		wallet, err := svc.PlatformSummary(ctx, year, month)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}
