package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformWalletEntry is an append-only platform credit, one per settled order.
type PlatformWalletEntry struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Amount    int64     `gorm:"column:amount;not null"`
	Month     int       `gorm:"column:month;not null"`
	Year      int       `gorm:"column:year;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// SellerWalletEntry is an append-only seller credit, one per settled sub-order.
type SellerWalletEntry struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID   uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	SubOrderID uuid.UUID `gorm:"column:sub_order_id;type:uuid;not null;uniqueIndex"`
	Amount     int64     `gorm:"column:amount;not null"`
	Month      int       `gorm:"column:month;not null"`
	Year       int       `gorm:"column:year;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
