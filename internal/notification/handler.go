package notification

import (
	"context"
	"encoding/json"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/email"
	"github.com/sirupsen/logrus"
)

// Sender is the email surface the notifier uses.
type Sender interface {
	SendOrderConfirmation(to string, data email.ConfirmationData) error
	SendStatusUpdate(to, orderNumber, status string) error
}

// Handler turns order events into customer email. Events are
// self-contained, so the notifier never touches the database.
type Handler struct {
	sender Sender
	log    *logrus.Logger
}

func NewHandler(sender Sender, log *logrus.Logger) *Handler {
	return &Handler{sender: sender, log: log}
}

// HandleEvent processes one event from Kafka.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var env order.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		h.log.WithError(err).Error("unmarshal event envelope")
		return err
	}

	switch env.Type {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(env)
	case order.EventOrderStatusChanged:
		return h.handleStatusChanged(env)
	default:
		return nil
	}
}

func (h *Handler) handleStatusChanged(env order.Envelope) error {
	var e order.StatusChangedEvent
	if err := json.Unmarshal(env.Data, &e); err != nil {
		h.log.WithError(err).Error("unmarshal order.status_changed event")
		return err
	}

	// Only milestones the customer cares about become email.
	switch e.ToStatus {
	case order.StatusShipped, order.StatusDelivered, order.StatusCancelled:
	default:
		return nil
	}

	if e.CustomerEmail == "" {
		h.log.WithField("order", e.OrderNumber).Warn("order has no customer email, skipping status update")
		return nil
	}

	if err := h.sender.SendStatusUpdate(e.CustomerEmail, e.OrderNumber, string(e.ToStatus)); err != nil {
		h.log.WithError(err).WithField("order", e.OrderNumber).Error("send status update email")
		return err
	}

	h.log.WithFields(logrus.Fields{"order": e.OrderNumber, "status": e.ToStatus, "to": e.CustomerEmail}).
		Info("status update sent")
	return nil
}

func (h *Handler) handleOrderPlaced(env order.Envelope) error {
	var e order.PlacedEvent
	if err := json.Unmarshal(env.Data, &e); err != nil {
		h.log.WithError(err).Error("unmarshal order.placed event")
		return err
	}

	if e.CustomerEmail == "" {
		h.log.WithField("order", e.OrderNumber).Warn("order has no customer email, skipping confirmation")
		return nil
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		items[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	data := email.ConfirmationData{
		OrderNumber:  e.OrderNumber,
		Items:        items,
		Subtotal:     e.Subtotal,
		Discount:     e.Discount,
		ShippingCost: e.ShippingCost,
		Total:        e.Total,
	}
	if err := h.sender.SendOrderConfirmation(e.CustomerEmail, data); err != nil {
		h.log.WithError(err).WithField("order", e.OrderNumber).Error("send confirmation email")
		return err
	}

	h.log.WithFields(logrus.Fields{"order": e.OrderNumber, "to": e.CustomerEmail}).
		Info("order confirmation sent")
	return nil
}
