package payments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Repository persists the intents issued for card orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error)
	UpdateStatus(ctx context.Context, providerIntentID string, status enums.PaymentIntentStatus, failureReason *string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).Where("provider_intent_id = ?", providerIntentID).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "payment intent %s not found", providerIntentID)
		}
		return nil, err
	}
	return &intent, nil
}

// UpdateStatus reports false when no row carries the provider id.
func (r *repository) UpdateStatus(ctx context.Context, providerIntentID string, status enums.PaymentIntentStatus, failureReason *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("provider_intent_id = ?", providerIntentID).
		Updates(map[string]any{
			"status":         status,
			"failure_reason": failureReason,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
