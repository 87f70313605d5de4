package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type TransitionRequest struct {
	OrderID   string
	To        Status
	Comment   string
	ChangedBy string
}

// UpdateStatus moves an order through the status state machine. The order
// row is locked for the duration, the audit row is written in the same
// transaction, and stock moves with the transition: cancellation returns
// the ordered quantities, reactivation out of cancelled takes them again
// and is refused outright if any product can no longer cover its line.
func (s *Service) UpdateStatus(ctx context.Context, req TransitionRequest) (*Order, error) {
	var (
		updated    *Order
		fromStatus Status
	)
	txErr := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		o, err := s.orders.GetOrderForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if !o.CanTransitionTo(req.To) {
			return o.transitionError(req.To)
		}

		switch {
		case req.To == StatusCancelled:
			if err := s.restoreStock(ctx, tx, o); err != nil {
				return err
			}
		case o.Status == StatusCancelled:
			if err := s.reclaimStock(ctx, tx, o); err != nil {
				return err
			}
		}

		now := s.nowFn()
		from := o.Status
		var deliveredAt *time.Time
		if req.To == StatusDelivered {
			deliveredAt = &now
		}
		if err := s.orders.UpdateOrderStatus(ctx, tx, o.ID, req.To, deliveredAt); err != nil {
			return err
		}

		if err := s.orders.InsertStatusChange(ctx, tx, &StatusChange{
			ID:         uuid.New().String(),
			OrderID:    o.ID,
			FromStatus: &from,
			ToStatus:   req.To,
			Comment:    req.Comment,
			ChangedBy:  req.ChangedBy,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		o.Status = req.To
		o.DeliveredAt = deliveredAt
		o.UpdatedAt = now
		updated = o
		fromStatus = from
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.publishStatusChange(ctx, updated, fromStatus, req)
	return updated, nil
}

// CancelByCustomer cancels the caller's own order. Ownership is checked
// before the cancellation policy so a foreign order never leaks its state.
func (s *Service) CancelByCustomer(ctx context.Context, orderID, userID, comment string) (*Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == "" || o.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if !o.CancellableByCustomer() {
		return nil, ErrCancellationNotAllowed
	}
	return s.UpdateStatus(ctx, TransitionRequest{
		OrderID:   orderID,
		To:        StatusCancelled,
		Comment:   comment,
		ChangedBy: userID,
	})
}

// restoreStock returns every tracked line quantity to inventory. Ordered
// products cannot be deleted while an order references them, so every
// line still has a product row.
func (s *Service) restoreStock(ctx context.Context, tx *sql.Tx, o *Order) error {
	for _, item := range o.Items {
		p, err := s.stock.GetProductForUpdate(ctx, tx, item.ProductID)
		if err != nil {
			return err
		}
		if !p.TracksStock() {
			continue
		}
		if err := s.stock.AdjustStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// reclaimStock re-takes inventory for a reactivated order. Every line is
// checked against current stock before any decrement so a partial
// reactivation can never happen.
func (s *Service) reclaimStock(ctx context.Context, tx *sql.Tx, o *Order) error {
	products := make(map[string]*catalog.Product, len(o.Items))
	for _, item := range o.Items {
		p, err := s.stock.GetProductForUpdate(ctx, tx, item.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return fmt.Errorf("%w: %s is no longer available", catalog.ErrInsufficientStock, item.Snapshot.Name)
			}
			return err
		}
		if !p.CanFulfill(item.Quantity) {
			return fmt.Errorf("%w: %s (%d available, %d required)",
				catalog.ErrInsufficientStock, p.Name, p.StockQuantity, item.Quantity)
		}
		products[item.ProductID] = p
	}
	for _, item := range o.Items {
		if !products[item.ProductID].TracksStock() {
			continue
		}
		if err := s.stock.AdjustStock(ctx, tx, item.ProductID, -item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publishStatusChange(ctx context.Context, o *Order, from Status, req TransitionRequest) {
	if s.events == nil {
		return
	}
	email := o.GuestEmail
	if o.UserID != "" {
		resolved, err := s.orders.UserEmail(ctx, o.UserID)
		if err != nil {
			logrus.WithError(err).WithField("order", o.OrderNumber).Warn("resolve customer email")
		} else {
			email = resolved
		}
	}

	env, err := NewEnvelope(EventOrderStatusChanged, StatusChangedEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerEmail: email,
		FromStatus:    from,
		ToStatus:      o.Status,
		ChangedBy:     req.ChangedBy,
		ChangedAt:     o.UpdatedAt,
	})
	if err != nil {
		logrus.WithError(err).Error("encode order.status_changed event")
		return
	}
	if err := s.events.Publish(ctx, o.ID, env); err != nil {
		logrus.WithError(err).WithField("order", o.OrderNumber).Error("publish order.status_changed event")
	}
}
