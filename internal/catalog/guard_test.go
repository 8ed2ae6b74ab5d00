package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func newGuard(t *testing.T) (*Guard, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	guard, err := NewGuard(NewRepository(conn))
	require.NoError(t, err)
	return guard, conn
}

func TestGuardCheckReturnsLockedProducts(t *testing.T) {
	guard, conn := newGuard(t)
	seller := dbtest.MustCreateUser(t, conn, enums.UserRoleSeller)
	shirt := dbtest.MustCreateProduct(t, conn, seller.ID, dbtest.ProductOpts{Name: "Red Shirt", Price: 100000, Stock: 10})
	hat := dbtest.MustCreateProduct(t, conn, seller.ID, dbtest.ProductOpts{Name: "Hat", Price: 50000, Stock: 1})

	products, err := guard.Check(context.Background(), conn, []Requirement{
		{ProductID: shirt.ID, Quantity: 2},
		{ProductID: hat.ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Red Shirt", products[shirt.ID].Name)

	after := dbtest.MustReloadProduct(t, conn, shirt.ID)
	assert.Equal(t, 10, after.Stock, "check must not write")
}

func TestGuardCheckUnknownProduct(t *testing.T) {
	guard, conn := newGuard(t)
	missing := uuid.New()

	_, err := guard.Check(context.Background(), conn, []Requirement{{ProductID: missing, Quantity: 1}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Contains(t, err.Error(), missing.String())
}

func TestGuardCheckSumsDuplicateLines(t *testing.T) {
	guard, conn := newGuard(t)
	seller := dbtest.MustCreateUser(t, conn, enums.UserRoleSeller)
	shirt := dbtest.MustCreateProduct(t, conn, seller.ID, dbtest.ProductOpts{Name: "Red Shirt", Price: 100000, Stock: 3})

	_, err := guard.Check(context.Background(), conn, []Requirement{
		{ProductID: shirt.ID, Quantity: 2},
		{ProductID: shirt.ID, Quantity: 2},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	assert.Equal(t, `insufficient stock for "Red Shirt": 3 available`, typed.Message())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 4, details["requested"])
	assert.Equal(t, 3, details["available"])
}

func TestGuardCheckSubtractsOpenOrders(t *testing.T) {
	guard, conn := newGuard(t)
	seller := dbtest.MustCreateUser(t, conn, enums.UserRoleSeller)
	lastUnit := dbtest.MustCreateProduct(t, conn, seller.ID, dbtest.ProductOpts{Name: "Last Lamp", Price: 300000, Stock: 1})

	dbtest.MustCreateOrder(t, conn, dbtest.OrderOpts{
		Method: enums.PaymentMethodCard,
		Lines:  []dbtest.OrderLine{{Product: lastUnit, Quantity: 1}},
	})

	_, err := guard.Check(context.Background(), conn, []Requirement{{ProductID: lastUnit.ID, Quantity: 1}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Contains(t, err.Error(), "0 available")

	// Verify only looks at physical stock.
	_, err = guard.Verify(context.Background(), conn, []Requirement{{ProductID: lastUnit.ID, Quantity: 1}})
	require.NoError(t, err)
}

func TestGuardCheckIgnoresClosedAndSettledOrders(t *testing.T) {
	guard, conn := newGuard(t)
	seller := dbtest.MustCreateUser(t, conn, enums.UserRoleSeller)
	product := dbtest.MustCreateProduct(t, conn, seller.ID, dbtest.ProductOpts{Name: "Mug", Price: 20000, Stock: 2})

	dbtest.MustCreateOrder(t, conn, dbtest.OrderOpts{
		Method:         enums.PaymentMethodCard,
		DeliveryStatus: enums.DeliveryStatusCancelled,
		Lines:          []dbtest.OrderLine{{Product: product, Quantity: 2}},
	})
	dbtest.MustCreateOrder(t, conn, dbtest.OrderOpts{
		Method:         enums.PaymentMethodCard,
		PaymentStatus:  enums.PaymentStatusPaid,
		DeliveryStatus: enums.DeliveryStatusProcessing,
		Lines:          []dbtest.OrderLine{{Product: product, Quantity: 2}},
	})

	_, err := guard.Check(context.Background(), conn, []Requirement{{ProductID: product.ID, Quantity: 2}})
	require.NoError(t, err)
}

// The second of two back-to-back placements for the last unit sees the
// first as a reservation.
func TestGuardLastUnitBackToBack(t *testing.T) {
	guard, conn := newGuard(t)
	seller := dbtest.MustCreateUser(t, conn, enums.UserRoleSeller)
	product := dbtest.MustCreateProduct(t, conn, seller.ID, dbtest.ProductOpts{Name: "Vase", Price: 90000, Stock: 1})

	successes, failures := 0, 0
	for i := 0; i < 2; i++ {
		err := conn.Transaction(func(tx *gorm.DB) error {
			if _, err := guard.Check(context.Background(), tx, []Requirement{{ProductID: product.ID, Quantity: 1}}); err != nil {
				return err
			}
			dbtest.MustCreateOrder(t, tx, dbtest.OrderOpts{
				Method: enums.PaymentMethodCOD,
				Lines:  []dbtest.OrderLine{{Product: product, Quantity: 1}},
			})
			return nil
		})
		if err != nil {
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
			failures++
			continue
		}
		successes++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
}

func TestGuardRejectsBadRequirements(t *testing.T) {
	guard, conn := newGuard(t)

	_, err := guard.Check(context.Background(), conn, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = guard.Check(context.Background(), conn, []Requirement{{ProductID: uuid.New(), Quantity: 0}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
