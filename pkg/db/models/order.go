package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ShippingSnapshot is the address copied onto orders at placement.
type ShippingSnapshot struct {
	FullName string `gorm:"column:full_name;not null" json:"full_name"`
	Phone    string `gorm:"column:phone;not null" json:"phone"`
	Address  string `gorm:"column:address;not null" json:"address"`
	City     string `gorm:"column:city;not null" json:"city"`
	District string `gorm:"column:district;not null" json:"district"`
	Ward     string `gorm:"column:ward;not null" json:"ward"`
	Note     string `gorm:"column:note;not null;default:''" json:"note,omitempty"`
}

// Order is the customer-facing parent order spanning one or more sellers.
type Order struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      uuid.UUID            `gorm:"column:customer_id;type:uuid;not null"`
	Subtotal        int64                `gorm:"column:subtotal;not null"`
	ShippingFee     int64                `gorm:"column:shipping_fee;not null"`
	TotalPrice      int64                `gorm:"column:total_price;not null"`
	Shipping        ShippingSnapshot     `gorm:"embedded;embeddedPrefix:shipping_"`
	PaymentMethod   enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null"`
	DeliveryStatus  enums.DeliveryStatus `gorm:"column:delivery_status;type:delivery_status;not null"`
	PaymentDeadline *time.Time           `gorm:"column:payment_deadline"`
	CancelReason    *string              `gorm:"column:cancel_reason"`
	CancelledAt     *time.Time           `gorm:"column:cancelled_at"`
	PaidAt          *time.Time           `gorm:"column:paid_at"`
	SubOrders       []SubOrder           `gorm:"foreignKey:OrderID"`
	Items           []OrderItem          `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// SubOrder is the per-seller slice of a parent order.
type SubOrder struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	SellerID       uuid.UUID            `gorm:"column:seller_id;type:uuid;not null"`
	Price          int64                `gorm:"column:price;not null"`
	ShippingShare  int64                `gorm:"column:shipping_share;not null"`
	PaymentMethod  enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method;not null"`
	Shipping       ShippingSnapshot     `gorm:"embedded;embeddedPrefix:shipping_"`
	PaymentStatus  enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null"`
	DeliveryStatus enums.DeliveryStatus `gorm:"column:delivery_status;type:delivery_status;not null"`
	CancelReason   *string              `gorm:"column:cancel_reason"`
	CancelledAt    *time.Time           `gorm:"column:cancelled_at"`
	PaidAt         *time.Time           `gorm:"column:paid_at"`
	Items          []OrderItem          `gorm:"foreignKey:SubOrderID"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is a priced line snapshot owned by one sub-order.
type OrderItem struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	SubOrderID      uuid.UUID  `gorm:"column:sub_order_id;type:uuid;not null"`
	ProductID       uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	SellerID        uuid.UUID  `gorm:"column:seller_id;type:uuid;not null"`
	ProductName     string     `gorm:"column:product_name;not null"`
	Quantity        int        `gorm:"column:quantity;not null"`
	UnitPrice       int64      `gorm:"column:unit_price;not null"`
	DiscountPercent int        `gorm:"column:discount_percent;not null;default:0"`
	LineTotal       int64      `gorm:"column:line_total;not null"`
	Color           string     `gorm:"column:color;not null;default:''"`
	Size            string     `gorm:"column:size;not null;default:''"`
	RestockedAt     *time.Time `gorm:"column:restocked_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}
