package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

// Processor-side intent statuses the services act on.
const (
	IntentStatusSucceeded            = "succeeded"
	IntentStatusRequiresConfirmation = "requires_confirmation"
	IntentStatusCanceled             = "canceled"
)

// Intent is the processor's view of a payment intent, amounts in whole units.
type Intent struct {
	ID             string
	ClientSecret   string
	Status         string
	Amount         int64
	Currency       string
	Metadata       map[string]string
	FailureMessage string
}

// OrderID returns the order id the intent was created for.
func (i *Intent) OrderID() string {
	if i == nil || i.Metadata == nil {
		return ""
	}
	return i.Metadata[metadataOrderID]
}

// Gateway is the card processor boundary.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	Confirm(ctx context.Context, id string) (bool, error)
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

const (
	metadataOrderID    = "order_id"
	metadataCustomerID = "customer_id"
)
