package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type OrderItemDTO struct {
	ID              uuid.UUID  `json:"id"`
	SubOrderID      uuid.UUID  `json:"sub_order_id"`
	ProductID       uuid.UUID  `json:"product_id"`
	SellerID        uuid.UUID  `json:"seller_id"`
	ProductName     string     `json:"product_name"`
	Quantity        int        `json:"quantity"`
	UnitPrice       int64      `json:"unit_price"`
	DiscountPercent int        `json:"discount_percent"`
	LineTotal       int64      `json:"line_total"`
	Color           string     `json:"color,omitempty"`
	Size            string     `json:"size,omitempty"`
	RestockedAt     *time.Time `json:"restocked_at,omitempty"`
}

type SubOrderDTO struct {
	ID             uuid.UUID               `json:"id"`
	OrderID        uuid.UUID               `json:"order_id"`
	SellerID       uuid.UUID               `json:"seller_id"`
	Price          int64                   `json:"price"`
	ShippingShare  int64                   `json:"shipping_share"`
	PaymentMethod  enums.PaymentMethod     `json:"payment_method"`
	PaymentStatus  enums.PaymentStatus     `json:"payment_status"`
	DeliveryStatus enums.DeliveryStatus    `json:"delivery_status"`
	Shipping       models.ShippingSnapshot `json:"shipping"`
	CancelReason   *string                 `json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time              `json:"cancelled_at,omitempty"`
	PaidAt         *time.Time              `json:"paid_at,omitempty"`
	Items          []OrderItemDTO          `json:"items"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

type OrderDTO struct {
	ID              uuid.UUID               `json:"id"`
	CustomerID      uuid.UUID               `json:"customer_id"`
	Subtotal        int64                   `json:"subtotal"`
	ShippingFee     int64                   `json:"shipping_fee"`
	TotalPrice      int64                   `json:"total_price"`
	PaymentMethod   enums.PaymentMethod     `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus     `json:"payment_status"`
	DeliveryStatus  enums.DeliveryStatus    `json:"delivery_status"`
	PaymentDeadline *time.Time              `json:"payment_deadline,omitempty"`
	Shipping        models.ShippingSnapshot `json:"shipping"`
	CancelReason    *string                 `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time              `json:"cancelled_at,omitempty"`
	PaidAt          *time.Time              `json:"paid_at,omitempty"`
	SubOrders       []SubOrderDTO           `json:"sub_orders"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// OrderList is one page of a customer's orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// SubOrderList is one page of a seller's sub-orders.
type SubOrderList struct {
	SubOrders  []SubOrderDTO `json:"sub_orders"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func NewOrderDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		TotalPrice:      order.TotalPrice,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		DeliveryStatus:  order.DeliveryStatus,
		PaymentDeadline: order.PaymentDeadline,
		Shipping:        order.Shipping,
		CancelReason:    order.CancelReason,
		CancelledAt:     order.CancelledAt,
		PaidAt:          order.PaidAt,
		SubOrders:       make([]SubOrderDTO, 0, len(order.SubOrders)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}

	// list queries preload items on the parent only
	itemsBySub := make(map[uuid.UUID][]models.OrderItem)
	for _, item := range order.Items {
		itemsBySub[item.SubOrderID] = append(itemsBySub[item.SubOrderID], item)
	}
	for _, sub := range order.SubOrders {
		if len(sub.Items) == 0 {
			sub.Items = itemsBySub[sub.ID]
		}
		dto.SubOrders = append(dto.SubOrders, NewSubOrderDTO(sub))
	}
	return dto
}

func NewSubOrderDTO(sub models.SubOrder) SubOrderDTO {
	items := make([]OrderItemDTO, 0, len(sub.Items))
	for _, item := range sub.Items {
		items = append(items, OrderItemDTO{
			ID:              item.ID,
			SubOrderID:      item.SubOrderID,
			ProductID:       item.ProductID,
			SellerID:        item.SellerID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			LineTotal:       item.LineTotal,
			Color:           item.Color,
			Size:            item.Size,
			RestockedAt:     item.RestockedAt,
		})
	}
	return SubOrderDTO{
		ID:             sub.ID,
		OrderID:        sub.OrderID,
		SellerID:       sub.SellerID,
		Price:          sub.Price,
		ShippingShare:  sub.ShippingShare,
		PaymentMethod:  sub.PaymentMethod,
		PaymentStatus:  sub.PaymentStatus,
		DeliveryStatus: sub.DeliveryStatus,
		Shipping:       sub.Shipping,
		CancelReason:   sub.CancelReason,
		CancelledAt:    sub.CancelledAt,
		PaidAt:         sub.PaidAt,
		Items:          items,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
}
