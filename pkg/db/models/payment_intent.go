package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// PaymentIntent records a processor intent issued for a card order.
type PaymentIntent struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID                 `gorm:"column:order_id;type:uuid;not null"`
	ProviderIntentID string                    `gorm:"column:provider_intent_id;not null;uniqueIndex"`
	Amount           int64                     `gorm:"column:amount;not null"`
	Currency         string                    `gorm:"column:currency;not null"`
	Status           enums.PaymentIntentStatus `gorm:"column:status;not null;default:'created'"`
	FailureReason    *string                   `gorm:"column:failure_reason"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
