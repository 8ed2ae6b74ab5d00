package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a seller listing with its stock and sold counters.
type Product struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID        uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	Name            string    `gorm:"column:name;not null"`
	Price           int64     `gorm:"column:price;not null"`
	DiscountPercent int       `gorm:"column:discount_percent;not null;default:0"`
	Stock           int       `gorm:"column:stock;not null"`
	Sold            int       `gorm:"column:sold;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectivePrice is the unit price after the product discount.
func (p Product) EffectivePrice() int64 {
	return DiscountedPrice(p.Price, p.DiscountPercent)
}

// DiscountedPrice applies a whole-percent discount, rounding down.
func DiscountedPrice(price int64, discountPercent int) int64 {
	if discountPercent <= 0 {
		return price
	}
	if discountPercent >= 100 {
		return 0
	}
	return price * int64(100-discountPercent) / 100
}
