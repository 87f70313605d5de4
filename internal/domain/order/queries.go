package order

import "context"

// GetForCustomer fetches an order the given user owns.
func (s *Service) GetForCustomer(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == "" || o.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetOrderByNumber(ctx, number)
}

func (s *Service) ListForCustomer(ctx context.Context, userID string) ([]*Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListOrders(ctx, limit, offset)
}

// History returns the audit trail for an order, oldest entry first.
func (s *Service) History(ctx context.Context, orderID string) ([]*StatusChange, error) {
	if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.orders.History(ctx, orderID)
}
