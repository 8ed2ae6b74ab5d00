package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type fakeGateway struct {
	created   []map[string]string
	intents   map[string]*Intent
	confirmed []string
	confirmOK bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*Intent{}}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	g.created = append(g.created, metadata)
	intent := &Intent{
		ID:           "pi_" + uuid.NewString(),
		ClientSecret: "secret",
		Status:       "requires_payment_method",
		Amount:       amount,
		Currency:     currency,
		Metadata:     metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	intent, ok := g.intents[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no such intent")
	}
	copied := *intent
	return &copied, nil
}

func (g *fakeGateway) Confirm(ctx context.Context, id string) (bool, error) {
	g.confirmed = append(g.confirmed, id)
	return g.confirmOK, nil
}

func (g *fakeGateway) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return stripe.Event{}, errors.New("not used")
}

type fakeSettler struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeSettler) ConfirmPayment(ctx context.Context, orderID uuid.UUID, method enums.PaymentMethod) (*models.Order, error) {
	f.calls = append(f.calls, orderID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: orderID, PaymentStatus: enums.PaymentStatusPaid}, nil
}

type paymentsFixture struct {
	conn     *gorm.DB
	svc      Service
	gateway  *fakeGateway
	settler  *fakeSettler
	customer uuid.UUID
	order    models.Order
}

func newPaymentsFixture(t *testing.T) paymentsFixture {
	t.Helper()
	conn := dbtest.Open(t)
	gateway := newFakeGateway()
	settler := &fakeSettler{}
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Orders:     orders.NewRepository(conn),
		Gateway:    gateway,
		Settlement: settler,
		Currency:   "VND",
	})
	require.NoError(t, err)

	customer := uuid.New()
	product := dbtest.MustCreateProduct(t, conn, uuid.New(), dbtest.ProductOpts{Name: "Shirt", Price: 100000, Stock: 5})
	deadline := time.Now().UTC().Add(10 * time.Minute)
	order := dbtest.MustCreateOrder(t, conn, dbtest.OrderOpts{
		CustomerID:      customer,
		Method:          enums.PaymentMethodCard,
		ShippingFee:     40000,
		PaymentDeadline: &deadline,
		Lines:           []dbtest.OrderLine{{Product: product, Quantity: 2}},
	})
	return paymentsFixture{conn: conn, svc: svc, gateway: gateway, settler: settler, customer: customer, order: order}
}

func TestCreateIntentPersistsRow(t *testing.T) {
	f := newPaymentsFixture(t)

	result, err := f.svc.CreateIntent(context.Background(), f.customer, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(240000), result.Amount)
	assert.Equal(t, "vnd", result.Currency)
	require.Len(t, f.gateway.created, 1)
	assert.Equal(t, f.order.ID.String(), f.gateway.created[0]["order_id"])

	var row models.PaymentIntent
	require.NoError(t, f.conn.First(&row, "provider_intent_id = ?", result.IntentID).Error)
	assert.Equal(t, f.order.ID, row.OrderID)
	assert.Equal(t, enums.PaymentIntentStatusCreated, row.Status)
}

func TestCreateIntentRejectsForeignOrClosedOrders(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, uuid.New(), f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("payment_deadline", past).Error)
	_, err = f.svc.CreateIntent(ctx, f.customer, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidStatus))

	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("payment_status", enums.PaymentStatusPaid).Error)
	_, err = f.svc.CreateIntent(ctx, f.customer, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid))
	assert.Empty(t, f.gateway.created)
}

func TestConfirmPaymentSettlesSucceededIntent(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	result, err := f.svc.CreateIntent(ctx, f.customer, f.order.ID)
	require.NoError(t, err)
	f.gateway.intents[result.IntentID].Status = IntentStatusSucceeded

	order, err := f.svc.ConfirmPayment(ctx, f.customer, f.order.ID, result.IntentID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, []uuid.UUID{f.order.ID}, f.settler.calls)

	var row models.PaymentIntent
	require.NoError(t, f.conn.First(&row, "provider_intent_id = ?", result.IntentID).Error)
	assert.Equal(t, enums.PaymentIntentStatusSucceeded, row.Status)
}

func TestConfirmPaymentConfirmsPendingIntent(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	result, err := f.svc.CreateIntent(ctx, f.customer, f.order.ID)
	require.NoError(t, err)
	f.gateway.intents[result.IntentID].Status = IntentStatusRequiresConfirmation
	f.gateway.confirmOK = true

	_, err = f.svc.ConfirmPayment(ctx, f.customer, f.order.ID, result.IntentID)
	require.NoError(t, err)
	assert.Equal(t, []string{result.IntentID}, f.gateway.confirmed)
}

func TestConfirmPaymentVerificationFailures(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	result, err := f.svc.CreateIntent(ctx, f.customer, f.order.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, f.customer, f.order.ID, result.IntentID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentVerificationFailed), "unsucceeded intent")

	f.gateway.intents[result.IntentID].Status = IntentStatusSucceeded
	f.gateway.intents[result.IntentID].Metadata = map[string]string{"order_id": uuid.NewString()}
	_, err = f.svc.ConfirmPayment(ctx, f.customer, f.order.ID, result.IntentID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentVerificationFailed), "metadata mismatch")

	_, err = f.svc.ConfirmPayment(ctx, f.customer, f.order.ID, "pi_unknown")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentVerificationFailed), "unknown intent")

	assert.Empty(t, f.settler.calls)
}

func TestConfirmPaymentRejectsAmountMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Intent)
	}{
		{"underpaid", func(in *Intent) { in.Amount-- }},
		{"overpaid", func(in *Intent) { in.Amount += 1000 }},
		{"other currency", func(in *Intent) { in.Currency = "usd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentsFixture(t)
			ctx := context.Background()
			result, err := f.svc.CreateIntent(ctx, f.customer, f.order.ID)
			require.NoError(t, err)
			intent := f.gateway.intents[result.IntentID]
			intent.Status = IntentStatusSucceeded
			tt.mutate(intent)

			_, err = f.svc.ConfirmPayment(ctx, f.customer, f.order.ID, result.IntentID)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentVerificationFailed), "got %v", err)
			assert.Empty(t, f.settler.calls)
		})
	}
}

func TestConfirmPaymentAlreadyPaidStillMarksIntent(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	result, err := f.svc.CreateIntent(ctx, f.customer, f.order.ID)
	require.NoError(t, err)
	f.gateway.intents[result.IntentID].Status = IntentStatusSucceeded
	f.settler.err = pkgerrors.New(pkgerrors.CodeAlreadyPaid, "already paid")

	_, err = f.svc.ConfirmPayment(ctx, f.customer, f.order.ID, result.IntentID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid))

	var row models.PaymentIntent
	require.NoError(t, f.conn.First(&row, "provider_intent_id = ?", result.IntentID).Error)
	assert.Equal(t, enums.PaymentIntentStatusSucceeded, row.Status)
}

func TestMarkFailedStoresReason(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	result, err := f.svc.CreateIntent(ctx, f.customer, f.order.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkFailed(ctx, result.IntentID, "card declined"))
	require.NoError(t, f.svc.MarkFailed(ctx, "pi_missing", ""))

	var row models.PaymentIntent
	require.NoError(t, f.conn.First(&row, "provider_intent_id = ?", result.IntentID).Error)
	assert.Equal(t, enums.PaymentIntentStatusFailed, row.Status)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "card declined", *row.FailureReason)
}
