package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type orderReader interface {
	FindOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Order, error)
}

type settler interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Order, error)
}

// Service drives the card flow: issue an intent, then confirm it against the
// processor before settling.
type Service interface {
	CreateIntent(ctx context.Context, customerID, orderID uuid.UUID) (*IntentResult, error)
	ConfirmPayment(ctx context.Context, customerID, orderID uuid.UUID, intentID string) (*models.Order, error)
	MarkSucceeded(ctx context.Context, intentID string) error
	MarkFailed(ctx context.Context, intentID, reason string) error
}

type IntentResult struct {
	OrderID      uuid.UUID `json:"order_id"`
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
}

type ServiceParams struct {
	Repo       Repository
	Orders     orderReader
	Gateway    Gateway
	Settlement settler
	Currency   string
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo       Repository
	orders     orderReader
	gateway    Gateway
	settlement settler
	currency   string
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		orders:     params.Orders,
		gateway:    params.Gateway,
		settlement: params.Settlement,
		currency:   currency,
		logg:       params.Logger,
		now:        now,
	}, nil
}

func (s *service) CreateIntent(ctx context.Context, customerID, orderID uuid.UUID) (*IntentResult, error) {
	order, err := s.ownedCardOrder(ctx, customerID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.Newf(pkgerrors.CodeAlreadyPaid, "order %s is already paid", order.ID)
	}
	if order.PaymentStatus != enums.PaymentStatusUnpaid || order.DeliveryStatus.IsTerminal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidStatus, "order %s cannot take a card payment", order.ID).
			WithDetails(map[string]any{"payment_status": order.PaymentStatus, "delivery_status": order.DeliveryStatus})
	}
	if order.PaymentDeadline != nil && !s.now().Before(*order.PaymentDeadline) {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidStatus, "payment window for order %s has closed", order.ID)
	}

	intent, err := s.gateway.CreateIntent(ctx, order.TotalPrice, s.currency, map[string]string{
		metadataOrderID:    order.ID.String(),
		metadataCustomerID: order.CustomerID.String(),
	})
	if err != nil {
		return nil, err
	}
	row := &models.PaymentIntent{
		ID:               uuid.New(),
		OrderID:          order.ID,
		ProviderIntentID: intent.ID,
		Amount:           order.TotalPrice,
		Currency:         s.currency,
		Status:           enums.PaymentIntentStatusCreated,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment intent")
	}
	return &IntentResult{
		OrderID:      order.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       order.TotalPrice,
		Currency:     s.currency,
	}, nil
}

// ConfirmPayment settles the order only after the processor reports the
// intent succeeded for this exact order.
func (s *service) ConfirmPayment(ctx context.Context, customerID, orderID uuid.UUID, intentID string) (*models.Order, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	order, err := s.ownedCardOrder(ctx, customerID, orderID)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.FindByProviderID(ctx, intentID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "payment intent was not issued for this order")
		}
		return nil, err
	}
	if stored.OrderID != order.ID {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "payment intent was not issued for this order")
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.OrderID() != order.ID.String() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "payment intent metadata does not match order")
	}
	if intent.Amount != order.TotalPrice || !strings.EqualFold(intent.Currency, stored.Currency) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "payment intent amount does not match order total").
			WithDetails(map[string]any{
				"intent_amount":   intent.Amount,
				"intent_currency": intent.Currency,
				"order_total":     order.TotalPrice,
			})
	}
	if intent.Status == IntentStatusRequiresConfirmation {
		succeeded, err := s.gateway.Confirm(ctx, intentID)
		if err != nil {
			return nil, err
		}
		if succeeded {
			intent.Status = IntentStatusSucceeded
		}
	}
	if intent.Status != IntentStatusSucceeded {
		return nil, pkgerrors.Newf(pkgerrors.CodePaymentVerificationFailed, "payment intent status is %s", intent.Status).
			WithDetails(map[string]any{"intent_status": intent.Status})
	}

	settled, settleErr := s.settlement.ConfirmPayment(ctx, order.ID, enums.PaymentMethodCard)
	if settleErr == nil || pkgerrors.IsCode(settleErr, pkgerrors.CodeAlreadyPaid) {
		if err := s.MarkSucceeded(ctx, intentID); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "intent_id", intentID), "mark payment intent succeeded", err)
		}
	}
	if settleErr != nil {
		return nil, settleErr
	}
	return settled, nil
}

// MarkSucceeded flags the stored intent once its order has been settled.
func (s *service) MarkSucceeded(ctx context.Context, intentID string) error {
	if strings.TrimSpace(intentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if _, err := s.repo.UpdateStatus(ctx, intentID, enums.PaymentIntentStatusSucceeded, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment intent succeeded")
	}
	return nil
}

// MarkFailed records a processor-side failure on the stored intent. Unknown
// intents are ignored.
func (s *service) MarkFailed(ctx context.Context, intentID, reason string) error {
	if strings.TrimSpace(intentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	var failure *string
	if reason = strings.TrimSpace(reason); reason != "" {
		failure = &reason
	}
	found, err := s.repo.UpdateStatus(ctx, intentID, enums.PaymentIntentStatusFailed, failure)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment intent failed")
	}
	if !found {
		s.logg.Warn(s.logg.WithField(ctx, "intent_id", intentID), "payment failure for unknown intent")
	}
	return nil
}

func (s *service) ownedCardOrder(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	if order.PaymentMethod != enums.PaymentMethodCard {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "order %s is not a card order", order.ID)
	}
	return order, nil
}
