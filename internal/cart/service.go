package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Service exposes the cart operations used by the HTTP layer.
type Service interface {
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error)
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	RemoveItems(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*View, error)
}

type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	Color     string
	Size      string
}

// Line is a cart item priced at the current catalog price.
type Line struct {
	ID              uuid.UUID `json:"id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductName     string    `json:"product_name"`
	SellerID        uuid.UUID `json:"seller_id"`
	Quantity        int       `json:"quantity"`
	Color           string    `json:"color,omitempty"`
	Size            string    `json:"size,omitempty"`
	UnitPrice       int64     `json:"unit_price"`
	DiscountPercent int       `json:"discount_percent"`
	LineTotal       int64     `json:"line_total"`
	Available       bool      `json:"available"`
}

type View struct {
	Items    []Line `json:"items"`
	Subtotal int64  `json:"subtotal"`
}

type service struct {
	repo     Repository
	products catalog.Repository
}

func NewService(repo Repository, products catalog.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo, products: products}, nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	found, err := s.products.FindByIDs(ctx, []uuid.UUID{input.ProductID}, false)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", input.ProductID)
	}

	item := &models.CartItem{
		UserID:    userID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Color:     strings.TrimSpace(input.Color),
		Size:      strings.TrimSpace(input.Size),
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
	}
	return s.Get(ctx, userID)
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart items")
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	view := &View{Items: make([]Line, 0, len(items))}
	for _, item := range items {
		line := Line{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Color:     item.Color,
			Size:      item.Size,
		}
		if product, ok := byID[item.ProductID]; ok {
			line.ProductName = product.Name
			line.SellerID = product.SellerID
			line.UnitPrice = product.Price
			line.DiscountPercent = product.DiscountPercent
			line.LineTotal = product.EffectivePrice() * int64(item.Quantity)
			line.Available = product.Stock >= item.Quantity
			view.Subtotal += line.LineTotal
		}
		view.Items = append(view.Items, line)
	}
	return view, nil
}

func (s *service) RemoveItems(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*View, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one cart item id is required")
	}
	if _, err := s.repo.DeleteByIDs(ctx, userID, ids); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart items")
	}
	return s.Get(ctx, userID)
}
