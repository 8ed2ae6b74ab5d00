package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderCreatedEvent announces a placed order and its per-seller split.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Subtotal      int64               `json:"subtotal"`
	ShippingFee   int64               `json:"shipping_fee"`
	TotalPrice    int64               `json:"total_price"`
	SubOrders     []SubOrderSummary   `json:"sub_orders"`
}

type SubOrderSummary struct {
	SubOrderID    uuid.UUID `json:"sub_order_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	Price         int64     `json:"price"`
	ShippingShare int64     `json:"shipping_share"`
}

// OrderPaidEvent is emitted once a settlement commits.
type OrderPaidEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalPrice    int64               `json:"total_price"`
	PaidAt        time.Time           `json:"paid_at"`
	SellerCredits []SellerCredit      `json:"seller_credits"`
}

type SellerCredit struct {
	SellerID   uuid.UUID `json:"seller_id"`
	SubOrderID uuid.UUID `json:"sub_order_id"`
	Amount     int64     `json:"amount"`
}

// OrderCancelledEvent is emitted when the payment deadline sweep cancels an order.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// OrderStatusChangedEvent records a manual status transition.
type OrderStatusChangedEvent struct {
	OrderID                uuid.UUID            `json:"order_id"`
	SubOrderID             *uuid.UUID           `json:"sub_order_id,omitempty"`
	ActorRole              enums.UserRole       `json:"actor_role"`
	PreviousDeliveryStatus enums.DeliveryStatus `json:"previous_delivery_status"`
	DeliveryStatus         enums.DeliveryStatus `json:"delivery_status"`
	PreviousPaymentStatus  enums.PaymentStatus  `json:"previous_payment_status"`
	PaymentStatus          enums.PaymentStatus  `json:"payment_status"`
	RestockedItems         int                  `json:"restocked_items"`
}

// NotificationRequestedEvent asks the email sender to alert the listed users.
type NotificationRequestedEvent struct {
	OrderID      uuid.UUID              `json:"order_id"`
	RecipientIDs []uuid.UUID            `json:"recipient_ids"`
	Type         enums.NotificationType `json:"type"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
}

// OrderRef returns the order a decoded payload belongs to.
func OrderRef(payload any) (uuid.UUID, bool) {
	var id uuid.UUID
	switch p := payload.(type) {
	case *OrderCreatedEvent:
		id = p.OrderID
	case *OrderPaidEvent:
		id = p.OrderID
	case *OrderCancelledEvent:
		id = p.OrderID
	case *OrderStatusChangedEvent:
		id = p.OrderID
	case *NotificationRequestedEvent:
		id = p.OrderID
	}
	return id, id != uuid.Nil
}
