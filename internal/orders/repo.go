package orders

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
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository persists parent orders, sub-orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order, subOrders []models.SubOrder, items []models.OrderItem) error
	FindOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Order, error)
	FindSubOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.SubOrder, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateSubOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateSubOrdersByOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	MarkItemsRestocked(ctx context.Context, itemIDs []uuid.UUID, at time.Time) (int64, error)
	FindExpiredCardOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	ListSellerSubOrders(ctx context.Context, sellerID uuid.UUID, filter SubOrderFilter, limit int, cursor *pagination.Cursor) ([]models.SubOrder, error)
	SellerHasSubOrder(ctx context.Context, orderID, sellerID uuid.UUID) (bool, error)
}

// SubOrderFilter narrows the seller sub-order list.
type SubOrderFilter struct {
	DeliveryStatus *enums.DeliveryStatus
	PaymentStatus  *enums.PaymentStatus
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

// CreateOrder inserts the parent, its sub-orders and items. Associations are
// written explicitly so items are not saved twice through both parents.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order, subOrders []models.SubOrder, items []models.OrderItem) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	if len(subOrders) > 0 {
		if err := db.Omit(clause.Associations).Create(&subOrders).Error; err != nil {
			return err
		}
	}
	if len(items) > 0 {
		if err := db.Create(&items).Error; err != nil {
			return err
		}
	}
	order.SubOrders = attachItems(subOrders, items)
	order.Items = items
	return nil
}

// FindOrder loads the parent with sub-orders (by seller id) and items. With
// forUpdate the parent row is locked before its sub-orders.
func (r *repository) FindOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Order, error) {
	var order models.Order
	if err := r.query(ctx, forUpdate).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", id)
		}
		return nil, err
	}

	var subOrders []models.SubOrder
	if err := r.query(ctx, forUpdate).
		Where("order_id = ?", id).
		Order("seller_id ASC").
		Find(&subOrders).Error; err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	order.SubOrders = attachItems(subOrders, items)
	order.Items = items
	return &order, nil
}

func (r *repository) FindSubOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.SubOrder, error) {
	var sub models.SubOrder
	if err := r.query(ctx, forUpdate).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "sub-order %s not found", id)
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("sub_order_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&sub.Items).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.update(ctx, &models.Order{}, "id = ?", id, updates)
}

func (r *repository) UpdateSubOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.update(ctx, &models.SubOrder{}, "id = ?", id, updates)
}

func (r *repository) UpdateSubOrdersByOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.update(ctx, &models.SubOrder{}, "order_id = ?", orderID, updates)
}

// MarkItemsRestocked stamps items that have not been restocked yet and
// reports how many rows changed.
func (r *repository) MarkItemsRestocked(ctx context.Context, itemIDs []uuid.UUID, at time.Time) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id IN ? AND restocked_at IS NULL", itemIDs).
		UpdateColumn("restocked_at", at)
	return res.RowsAffected, res.Error
}

// FindExpiredCardOrders lists card orders not yet settled past their
// deadline, whether still unpaid or flagged pending.
func (r *repository) FindExpiredCardOrders(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("payment_method = ?", enums.PaymentMethodCard).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusUnpaid, enums.PaymentStatusPending}).
		Where("delivery_status NOT IN ?", []enums.DeliveryStatus{
			enums.DeliveryStatusCompleted,
			enums.DeliveryStatusCancelled,
			enums.DeliveryStatusReturned,
		}).
		Where("payment_deadline IS NOT NULL AND payment_deadline <= ?", now).
		Order("payment_deadline ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("SubOrders", func(db *gorm.DB) *gorm.DB { return db.Order("seller_id ASC") }).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("customer_id = ?", customerID)
	query = applyCursor(query, cursor)

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListSellerSubOrders(ctx context.Context, sellerID uuid.UUID, filter SubOrderFilter, limit int, cursor *pagination.Cursor) ([]models.SubOrder, error) {
	query := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("seller_id = ?", sellerID)
	if filter.DeliveryStatus != nil {
		query = query.Where("delivery_status = ?", *filter.DeliveryStatus)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	query = applyCursor(query, cursor)

	var subs []models.SubOrder
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) SellerHasSubOrder(ctx context.Context, orderID, sellerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SubOrder{}).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) query(ctx context.Context, forUpdate bool) *gorm.DB {
	db := r.db.WithContext(ctx)
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r *repository) update(ctx context.Context, model any, where string, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(model).Where(where, id).Updates(updates).Error
}

func applyCursor(query *gorm.DB, cursor *pagination.Cursor) *gorm.DB {
	if cursor == nil {
		return query
	}
	return query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
}

func attachItems(subOrders []models.SubOrder, items []models.OrderItem) []models.SubOrder {
	bySub := make(map[uuid.UUID][]models.OrderItem, len(subOrders))
	for _, item := range items {
		bySub[item.SubOrderID] = append(bySub[item.SubOrderID], item)
	}
	for i := range subOrders {
		subOrders[i].Items = bySub[subOrders[i].ID]
	}
	return subOrders
}
