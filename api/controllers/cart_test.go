package controllers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type fakeCart struct {
	added   cart.AddItemInput
	removed []uuid.UUID
}

func (f *fakeCart) AddItem(ctx context.Context, userID uuid.UUID, input cart.AddItemInput) (*cart.View, error) {
	f.added = input
	return &cart.View{}, nil
}

func (f *fakeCart) Get(ctx context.Context, userID uuid.UUID) (*cart.View, error) {
	return &cart.View{Items: []cart.Line{}}, nil
}

func (f *fakeCart) RemoveItems(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*cart.View, error) {
	f.removed = ids
	return &cart.View{}, nil
}

func TestCartUpsertItem(t *testing.T) {
	svc := &fakeCart{}
	productID := uuid.New()
	body := fmt.Sprintf(`{"product_id":%q,"quantity":3,"color":"blue ","size":"L"}`, productID)

	rec := serve(CartUpsertItem(svc, nil), newRequest(http.MethodPut, "/api/v1/cart/items", body, uuid.New(), enums.UserRoleCustomer, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.added.ProductID != productID || svc.added.Quantity != 3 || svc.added.Color != "blue" {
		t.Fatalf("unexpected input %+v", svc.added)
	}

	rec = serve(CartUpsertItem(svc, nil), newRequest(http.MethodPut, "/api/v1/cart/items", `{"product_id":"`+productID.String()+`","quantity":0}`, uuid.New(), enums.UserRoleCustomer, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero quantity, got %d", rec.Code)
	}
}

func TestCartRemoveItems(t *testing.T) {
	svc := &fakeCart{}
	id := uuid.New()
	rec := serve(CartRemoveItems(svc, nil), newRequest(http.MethodDelete, "/api/v1/cart/items", `{"item_ids":["`+id.String()+`"]}`, uuid.New(), enums.UserRoleCustomer, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(svc.removed) != 1 || svc.removed[0] != id {
		t.Fatalf("unexpected removed ids %v", svc.removed)
	}
}
