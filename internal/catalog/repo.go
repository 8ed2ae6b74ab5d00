package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Repository is the catalog store consumed by the order engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIDs(ctx context.Context, ids []uuid.UUID, forUpdate bool) ([]models.Product, error)
	ReservedQuantities(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, stockDelta, soldDelta int) error
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

// FindByIDs loads products ordered by id so concurrent lockers acquire rows in the same order.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID, forUpdate bool) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC")
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ReservedQuantities sums the units held by placed orders that have not settled
// and are not cancelled or returned at either the parent or sub-order level.
func (r *repository) ReservedQuantities(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	reserved := make(map[uuid.UUID]int, len(ids))
	if len(ids) == 0 {
		return reserved, nil
	}
	var rows []struct {
		ProductID uuid.UUID
		Quantity  int
	}
	closed := []enums.DeliveryStatus{enums.DeliveryStatusCancelled, enums.DeliveryStatusReturned}
	err := r.db.WithContext(ctx).
		Table("order_items AS oi").
		Select("oi.product_id AS product_id, COALESCE(SUM(oi.quantity), 0) AS quantity").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN sub_orders so ON so.id = oi.sub_order_id").
		Where("oi.product_id IN ?", ids).
		Where("o.payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusUnpaid, enums.PaymentStatusPending}).
		Where("o.delivery_status NOT IN ?", closed).
		Where("so.delivery_status NOT IN ?", closed).
		Group("oi.product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		reserved[row.ProductID] = row.Quantity
	}
	return reserved, nil
}

// AdjustStock applies both deltas in one guarded update that never lets
// stock or sold go negative.
func (r *repository) AdjustStock(ctx context.Context, productID uuid.UUID, stockDelta, soldDelta int) error {
	if stockDelta == 0 && soldDelta == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock + ? >= 0 AND sold + ? >= 0", productID, stockDelta, soldDelta).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", stockDelta),
			"sold":       gorm.Expr("sold + ?", soldDelta),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var product models.Product
	if err := r.db.WithContext(ctx).Select("id", "name", "stock", "sold").First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", productID)
		}
		return err
	}
	if product.Stock+stockDelta < 0 {
		return insufficientStock(product, -stockDelta, product.Stock)
	}
	return pkgerrors.Newf(pkgerrors.CodeConflict, "sold counter for %q cannot drop below zero", product.Name)
}
