package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderLine is one product and quantity in a seeded order.
type OrderLine struct {
	Product  models.Product
	Quantity int
}

// OrderOpts describes a seeded order. Zero statuses fall back to the
// payment method defaults.
type OrderOpts struct {
	CustomerID      uuid.UUID
	Method          enums.PaymentMethod
	PaymentStatus   enums.PaymentStatus
	DeliveryStatus  enums.DeliveryStatus
	ShippingFee     int64
	PaymentDeadline *time.Time
	CreatedAt       time.Time
	Lines           []OrderLine
}

// Shipping is a valid address snapshot for fixtures.
func Shipping() models.ShippingSnapshot {
	return models.ShippingSnapshot{
		FullName: "Nguyen Van A",
		Phone:    "0912345678",
		Address:  "12 Ly Thuong Kiet",
		City:     "Ha Noi",
		District: "Hoan Kiem",
		Ward:     "Hang Bai",
	}
}

// MustCreateOrder writes a parent order with one sub-order per seller and
// returns it with sub-orders and items loaded.
func MustCreateOrder(t *testing.T, conn *gorm.DB, opts OrderOpts) models.Order {
	t.Helper()
	if opts.Method == "" {
		opts.Method = enums.PaymentMethodCOD
	}
	if opts.PaymentStatus == "" {
		opts.PaymentStatus = opts.Method.InitialPaymentStatus()
	}
	if opts.DeliveryStatus == "" {
		opts.DeliveryStatus = enums.DeliveryStatusPending
	}
	if opts.CustomerID == uuid.Nil {
		opts.CustomerID = uuid.New()
	}
	if opts.CreatedAt.IsZero() {
		opts.CreatedAt = time.Now().UTC()
	}

	order := models.Order{
		ID:              uuid.New(),
		CustomerID:      opts.CustomerID,
		ShippingFee:     opts.ShippingFee,
		Shipping:        Shipping(),
		PaymentMethod:   opts.Method,
		PaymentStatus:   opts.PaymentStatus,
		DeliveryStatus:  opts.DeliveryStatus,
		PaymentDeadline: opts.PaymentDeadline,
		CreatedAt:       opts.CreatedAt,
		UpdatedAt:       opts.CreatedAt,
	}

	subBySeller := map[uuid.UUID]*models.SubOrder{}
	var sellers []uuid.UUID
	var items []models.OrderItem
	for _, line := range opts.Lines {
		sellerID := line.Product.SellerID
		sub, ok := subBySeller[sellerID]
		if !ok {
			sub = &models.SubOrder{
				ID:             uuid.New(),
				OrderID:        order.ID,
				SellerID:       sellerID,
				PaymentMethod:  opts.Method,
				Shipping:       order.Shipping,
				PaymentStatus:  opts.PaymentStatus,
				DeliveryStatus: opts.DeliveryStatus,
				CreatedAt:      opts.CreatedAt,
				UpdatedAt:      opts.CreatedAt,
			}
			subBySeller[sellerID] = sub
			sellers = append(sellers, sellerID)
		}
		unit := line.Product.EffectivePrice()
		lineTotal := unit * int64(line.Quantity)
		sub.Price += lineTotal
		order.Subtotal += lineTotal
		items = append(items, models.OrderItem{
			ID:              uuid.New(),
			OrderID:         order.ID,
			SubOrderID:      sub.ID,
			ProductID:       line.Product.ID,
			SellerID:        sellerID,
			ProductName:     line.Product.Name,
			Quantity:        line.Quantity,
			UnitPrice:       line.Product.Price,
			DiscountPercent: line.Product.DiscountPercent,
			LineTotal:       lineTotal,
			CreatedAt:       opts.CreatedAt,
		})
	}
	order.TotalPrice = order.Subtotal + order.ShippingFee

	subs := make([]models.SubOrder, 0, len(sellers))
	for i, sellerID := range sellers {
		sub := subBySeller[sellerID]
		sub.ShippingShare = opts.ShippingFee / int64(len(sellers))
		if int64(i) < opts.ShippingFee%int64(len(sellers)) {
			sub.ShippingShare++
		}
		subs = append(subs, *sub)
	}

	if err := conn.Omit(clause.Associations).Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(subs) > 0 {
		if err := conn.Omit(clause.Associations).Create(&subs).Error; err != nil {
			t.Fatalf("create sub-orders: %v", err)
		}
	}
	if len(items) > 0 {
		if err := conn.Create(&items).Error; err != nil {
			t.Fatalf("create order items: %v", err)
		}
	}
	return MustReloadOrder(t, conn, order.ID)
}

// MustReloadOrder fetches an order with its sub-orders and items.
func MustReloadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	err := conn.
		Preload("SubOrders", func(db *gorm.DB) *gorm.DB { return db.Order("seller_id ASC") }).
		Preload("SubOrders.Items").
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}
