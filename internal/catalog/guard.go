package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Requirement is a requested quantity of one product.
type Requirement struct {
	ProductID uuid.UUID
	Quantity  int
}

// Guard checks product existence and stock inside the caller's transaction.
type Guard struct {
	repo Repository
}

func NewGuard(repo Repository) (*Guard, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &Guard{repo: repo}, nil
}

// Check row-locks every product and fails when stock minus the units held by
// open unsettled orders cannot cover the request. It writes nothing.
func (g *Guard) Check(ctx context.Context, tx *gorm.DB, reqs []Requirement) (map[uuid.UUID]models.Product, error) {
	return g.check(ctx, tx, reqs, true)
}

// Verify re-checks plain stock >= quantity at settlement time.
func (g *Guard) Verify(ctx context.Context, tx *gorm.DB, reqs []Requirement) (map[uuid.UUID]models.Product, error) {
	return g.check(ctx, tx, reqs, false)
}

func (g *Guard) check(ctx context.Context, tx *gorm.DB, reqs []Requirement, subtractReserved bool) (map[uuid.UUID]models.Product, error) {
	requested, ids, err := aggregate(reqs)
	if err != nil {
		return nil, err
	}
	repo := g.repo.WithTx(tx)

	products, err := repo.FindByIDs(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", id).
				WithDetails(map[string]any{"product_id": id.String()})
		}
	}

	reserved := map[uuid.UUID]int{}
	if subtractReserved {
		if reserved, err = repo.ReservedQuantities(ctx, ids); err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		product := byID[id]
		available := product.Stock - reserved[id]
		if available < 0 {
			available = 0
		}
		if available < requested[id] {
			return nil, insufficientStock(product, requested[id], available)
		}
	}
	return byID, nil
}

func aggregate(reqs []Requirement) (map[uuid.UUID]int, []uuid.UUID, error) {
	if len(reqs) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	requested := make(map[uuid.UUID]int, len(reqs))
	for _, req := range reqs {
		if req.ProductID == uuid.Nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if req.Quantity <= 0 {
			return nil, nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity for product %s must be greater than zero", req.ProductID)
		}
		requested[req.ProductID] += req.Quantity
	}
	ids := make([]uuid.UUID, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return requested, ids, nil
}

func insufficientStock(product models.Product, requested, available int) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %q: %d available", product.Name, available).
		WithDetails(map[string]any{
			"product_id":   product.ID.String(),
			"product_name": product.Name,
			"requested":    requested,
			"available":    available,
		})
}
