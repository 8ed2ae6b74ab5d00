package stripewebhook

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type settler interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Order, error)
}

type intentRecorder interface {
	MarkSucceeded(ctx context.Context, intentID string) error
	MarkFailed(ctx context.Context, intentID, reason string) error
}

type ServiceParams struct {
	Settlement settler
	Intents    intentRecorder
	Logger     *logger.Logger
}

// Service applies verified payment_intent events to orders.
type Service struct {
	settlement settler
	intents    intentRecorder
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent recorder required")
	}
	return &Service{
		settlement: params.Settlement,
		intents:    params.Intents,
		logg:       params.Logger,
	}, nil
}

// HandleEvent returns an error only when a retry could succeed; events that
// can never be applied are logged and acknowledged.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := payments.IntentFromEvent(*event)
		if err != nil {
			return err
		}
		return s.settle(ctx, intent)
	case stripe.EventTypePaymentIntentPaymentFailed:
		intent, err := payments.IntentFromEvent(*event)
		if err != nil {
			return err
		}
		return s.intents.MarkFailed(ctx, intent.ID, intent.FailureMessage)
	default:
		return nil
	}
}

func (s *Service) settle(ctx context.Context, intent *payments.Intent) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{"intent_id": intent.ID, "order_id": intent.OrderID()})

	orderID, err := uuid.Parse(intent.OrderID())
	if err != nil {
		s.logg.Warn(logCtx, "payment intent carries no usable order id")
		return nil
	}

	_, err = s.settlement.ConfirmPayment(ctx, orderID, enums.PaymentMethodCard)
	switch {
	case err == nil, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid):
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidStatus):
		s.logg.Warn(logCtx, "payment succeeded for an order that is no longer payable; refund required")
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound), pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		s.logg.Warn(logCtx, "payment succeeded for an unknown or mismatched order: "+err.Error())
		return nil
	default:
		return err
	}

	if err := s.intents.MarkSucceeded(ctx, intent.ID); err != nil {
		s.logg.Error(logCtx, "mark payment intent succeeded", err)
	}
	return nil
}
