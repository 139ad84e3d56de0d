package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/auth"
)

// Get returns an order visible to the principal. Users only see their own
// orders; an order of another user is reported as not found.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("order_not_found", "order not found")
		}
		return nil, errors.Wrap(err, "get order")
	}
	if p.IsAdmin() {
		return o, nil
	}
	if o.UserID != p.UserID {
		return nil, apperr.NotFound("order_not_found", "order not found")
	}
	o.Customer = nil
	return o, nil
}

// ListForUser returns the user's placed orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, page Page) (*List, error) {
	orders, total, err := s.orders.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return &List{Orders: orders, Total: total, Page: page}, nil
}

// ListAll returns orders of all users matching filter.
func (s *Service) ListAll(ctx context.Context, filter Filter) (*List, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperr.Validation(CodeInvalidStatus, "unknown order status "+string(st), string(st))
		}
	}
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &List{Orders: orders, Total: total, Page: filter.Page}, nil
}
