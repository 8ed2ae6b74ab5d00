package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestCreditsLandInSettlementPeriod(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()

	orderID, seller := uuid.New(), uuid.New()
	at := time.Date(2026, 2, 28, 23, 30, 0, 0, time.UTC)

	platform, err := svc.CreditPlatform(ctx, conn, PlatformCreditInput{OrderID: orderID, Amount: 240000, SettleAt: at})
	require.NoError(t, err)
	assert.Equal(t, 2, platform.Month)
	assert.Equal(t, 2026, platform.Year)

	_, err = svc.CreditSeller(ctx, conn, SellerCreditInput{SellerID: seller, OrderID: orderID, SubOrderID: uuid.New(), Amount: 120000, SettleAt: at})
	require.NoError(t, err)
	_, err = svc.CreditSeller(ctx, conn, SellerCreditInput{SellerID: seller, OrderID: uuid.New(), SubOrderID: uuid.New(), Amount: 80000, SettleAt: at.Add(time.Hour)})
	require.NoError(t, err)

	feb, err := svc.SellerSummary(ctx, seller, 2026, 2)
	require.NoError(t, err)
	assert.Len(t, feb.Entries, 1)
	assert.Equal(t, "120000", feb.Total.String())

	mar, err := svc.SellerSummary(ctx, seller, 2026, 3)
	require.NoError(t, err)
	assert.Len(t, mar.Entries, 1)
	assert.Equal(t, "80000", mar.Total.String())

	all, err := svc.SellerSummary(ctx, seller, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "200000", all.Total.String())

	platformFeb, err := svc.PlatformSummary(ctx, 2026, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, platformFeb.Orders)
	assert.Equal(t, "240000", platformFeb.Total.String())
}

func TestPlatformCreditIsUniquePerOrder(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	orderID := uuid.New()

	_, err = svc.CreditPlatform(context.Background(), conn, PlatformCreditInput{OrderID: orderID, Amount: 1000})
	require.NoError(t, err)
	_, err = svc.CreditPlatform(context.Background(), conn, PlatformCreditInput{OrderID: orderID, Amount: 1000})
	assert.Error(t, err)
}

func TestCreditValidation(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.CreditPlatform(ctx, nil, PlatformCreditInput{Amount: 10})
	assert.Error(t, err)
	_, err = svc.CreditSeller(ctx, nil, SellerCreditInput{OrderID: uuid.New(), SubOrderID: uuid.New(), Amount: 10})
	assert.Error(t, err)
	_, err = svc.CreditSeller(ctx, nil, SellerCreditInput{SellerID: uuid.New(), OrderID: uuid.New(), SubOrderID: uuid.New(), Amount: -1})
	assert.Error(t, err)

	_, err = svc.SellerSummary(ctx, uuid.New(), 2026, 13)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
