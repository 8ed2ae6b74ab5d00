package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// GetOrder returns the order when the actor owns it, sells in it, or is an admin.
func (m *Manager) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := m.repo.FindOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case enums.UserRoleAdmin:
	case enums.UserRoleCustomer:
		if order.CustomerID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}
	case enums.UserRoleSeller:
		ok, err := m.repo.SellerHasSubOrder(ctx, orderID, actor.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order has no sub-order for this seller")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}

	dto := NewOrderDTO(*order)
	return &dto, nil
}

func (m *Manager) ListOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := m.repo.ListCustomerOrders(ctx, customerID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, err
	}

	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows))}
	for _, row := range rows {
		list.Orders = append(list.Orders, NewOrderDTO(row))
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

func (m *Manager) ListSellerSubOrders(ctx context.Context, sellerID uuid.UUID, filter SubOrderFilter, params pagination.Params) (*SubOrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := m.repo.ListSellerSubOrders(ctx, sellerID, filter, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, err
	}

	rows, next := pagination.Trim(rows, params.Limit, func(s models.SubOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	})
	list := &SubOrderList{SubOrders: make([]SubOrderDTO, 0, len(rows))}
	for _, row := range rows {
		list.SubOrders = append(list.SubOrders, NewSubOrderDTO(row))
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}
