package orders

import (
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// transition is the resolved outcome of one status request against a
// target's current delivery and payment state.
type transition struct {
	fromDelivery enums.DeliveryStatus
	toDelivery   enums.DeliveryStatus
	fromPayment  enums.PaymentStatus
	toPayment    enums.PaymentStatus
	restock      bool
}

func (t transition) deliveryChanged() bool { return t.fromDelivery != t.toDelivery }
func (t transition) paymentChanged() bool  { return t.fromPayment != t.toPayment }

func planTransition(
	curDelivery enums.DeliveryStatus,
	curPayment enums.PaymentStatus,
	nextDelivery enums.DeliveryStatus,
	nextPayment *enums.PaymentStatus,
	refundOnCancel bool,
) (transition, error) {
	t := transition{
		fromDelivery: curDelivery,
		toDelivery:   nextDelivery,
		fromPayment:  curPayment,
		toPayment:    curPayment,
	}

	if nextPayment != nil && *nextPayment == curPayment {
		nextPayment = nil
	}

	if nextDelivery != curDelivery {
		if !curDelivery.CanTransitionTo(nextDelivery) {
			return transition{}, pkgerrors.Newf(pkgerrors.CodeInvalidStatus, "cannot move delivery from %s to %s", curDelivery, nextDelivery).
				WithDetails(map[string]any{"from": curDelivery, "to": nextDelivery})
		}
		if nextDelivery.IsReversal() && curPayment.IsSettled() {
			t.restock = true
			if nextDelivery == enums.DeliveryStatusReturned || refundOnCancel {
				t.toPayment = enums.PaymentStatusRefunded
			}
		}
	} else if nextPayment == nil {
		return transition{}, pkgerrors.Newf(pkgerrors.CodeInvalidStatus, "order is already %s", curDelivery).
			WithDetails(map[string]any{"from": curDelivery, "to": nextDelivery})
	}

	if nextPayment == nil || *nextPayment == t.toPayment {
		return t, nil
	}

	switch *nextPayment {
	case enums.PaymentStatusPaid:
		return transition{}, pkgerrors.New(pkgerrors.CodeInvalidStatus, "payment can only be marked paid through settlement")
	case enums.PaymentStatusRefunded:
		if !curPayment.IsSettled() || !nextDelivery.IsReversal() {
			return transition{}, pkgerrors.New(pkgerrors.CodeInvalidStatus, "only a paid order being cancelled or returned can be refunded").
				WithDetails(map[string]any{"payment_status": curPayment, "delivery_status": nextDelivery})
		}
		t.toPayment = enums.PaymentStatusRefunded
		// refunding without a delivery change still owes the restock when none happened yet
		if !t.deliveryChanged() {
			t.restock = true
		}
	default:
		if nextDelivery.IsTerminal() || !t.toPayment.CanTransitionTo(*nextPayment) {
			return transition{}, pkgerrors.Newf(pkgerrors.CodeInvalidStatus, "cannot move payment from %s to %s", t.toPayment, *nextPayment).
				WithDetails(map[string]any{"from": t.toPayment, "to": *nextPayment})
		}
		t.toPayment = *nextPayment
	}
	return t, nil
}
