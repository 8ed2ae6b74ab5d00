package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository manages persistence for wallet entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePlatformEntry(ctx context.Context, entry *models.PlatformWalletEntry) error
	CreateSellerEntry(ctx context.Context, entry *models.SellerWalletEntry) error
	ListSellerEntries(ctx context.Context, sellerID uuid.UUID, year, month int) ([]models.SellerWalletEntry, error)
	ListPlatformEntries(ctx context.Context, year, month int) ([]models.PlatformWalletEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePlatformEntry(ctx context.Context, entry *models.PlatformWalletEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreateSellerEntry(ctx context.Context, entry *models.SellerWalletEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListSellerEntries returns a seller's credits, optionally narrowed to one
// period. Zero year or month matches any.
func (r *repository) ListSellerEntries(ctx context.Context, sellerID uuid.UUID, year, month int) ([]models.SellerWalletEntry, error) {
	query := r.db.WithContext(ctx).Where("seller_id = ?", sellerID)
	query = period(query, year, month)

	var entries []models.SellerWalletEntry
	if err := query.Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListPlatformEntries(ctx context.Context, year, month int) ([]models.PlatformWalletEntry, error) {
	var entries []models.PlatformWalletEntry
	if err := period(r.db.WithContext(ctx), year, month).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func period(query *gorm.DB, year, month int) *gorm.DB {
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	if month > 0 {
		query = query.Where("month = ?", month)
	}
	return query
}
