package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

type webhookVerifier interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// StripeGateway implements Gateway on Stripe payment intents.
type StripeGateway struct {
	verifier webhookVerifier
}

func NewStripeGateway(client webhookVerifier) (*StripeGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeGateway{verifier: client}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	minor, err := pkgstripe.ToMinorUnits(amount, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "convert intent amount")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment intent")
	}
	return toIntent(pi)
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve stripe payment intent")
	}
	return toIntent(pi)
}

func (g *StripeGateway) Confirm(ctx context.Context, id string) (bool, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	pi, err := paymentintent.Confirm(id, params)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePaymentVerificationFailed, err, "confirm stripe payment intent")
	}
	return pi.Status == stripe.PaymentIntentStatusSucceeded, nil
}

// VerifyWebhook fails closed: any signature or parse problem is a
// verification failure.
func (g *StripeGateway) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	if strings.TrimSpace(sigHeader) == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodePaymentVerificationFailed, "stripe signature missing")
	}
	event, err := g.verifier.ConstructEvent(payload, sigHeader)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodePaymentVerificationFailed, err, "verify stripe signature")
	}
	return event, nil
}

// IntentFromEvent decodes the payment intent carried by a payment_intent.* event.
func IntentFromEvent(event stripe.Event) (*Intent, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	return toIntent(&pi)
}

func toIntent(pi *stripe.PaymentIntent) (*Intent, error) {
	if pi == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no payment intent")
	}
	currency := string(pi.Currency)
	amount, err := pkgstripe.FromMinorUnits(pi.Amount, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert intent amount")
	}
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       amount,
		Currency:     currency,
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureMessage = pi.LastPaymentError.Msg
	}
	return intent, nil
}
