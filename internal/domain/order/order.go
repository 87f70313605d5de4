package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/internal/domain/shipping"
	"github.com/shopspring/decimal"
)

const PaymentCashOnDelivery = "cash_on_delivery"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStatus          = errors.New("invalid order status transition")
	ErrOrderDelivered         = errors.New("order has already been delivered")
	ErrOrderCancelled         = errors.New("order is already cancelled")
	ErrNotOrderOwner          = errors.New("order does not belong to this customer")
	ErrCancellationNotAllowed = errors.New("order can no longer be cancelled")
	ErrGuestEmailRequired     = errors.New("guest checkout requires an email address")
	ErrInvalidAddress         = errors.New("invalid shipping address")
)

// validTransitions defines the allowed state machine: the linear flow plus
// cancellation from pending/processing, and admin reactivation out of
// cancelled back into the flow.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {StatusPending, StatusProcessing},
}

// ProductSnapshot freezes the product fields an order line depends on at
// purchase time, so historical orders survive product edits and deletion.
type ProductSnapshot struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	SKU         string          `json:"sku,omitempty"`
}

type Item struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Snapshot  ProductSnapshot `json:"product_snapshot"`
}

type Order struct {
	ID                string           `json:"id"`
	OrderNumber       string           `json:"order_number"`
	UserID            string           `json:"user_id,omitempty"`
	GuestEmail        string           `json:"guest_email,omitempty"`
	Status            Status           `json:"status"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	DiscountAmount    decimal.Decimal  `json:"discount_amount"`
	ShippingCost      decimal.Decimal  `json:"shipping_cost"`
	Total             decimal.Decimal  `json:"total"`
	CouponCode        string           `json:"coupon_code,omitempty"`
	ShippingAddress   shipping.Address `json:"shipping_address"`
	BillingAddress    shipping.Address `json:"billing_address"`
	PaymentMethod     string           `json:"payment_method"`
	EstimatedDelivery time.Time        `json:"estimated_delivery_date"`
	DeliveredAt       *time.Time       `json:"delivered_at,omitempty"`
	Items             []*Item          `json:"items,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// CustomerEmail returns the address order notifications go to.
func (o *Order) CustomerEmail(userEmail string) string {
	if userEmail != "" {
		return userEmail
	}
	return o.GuestEmail
}

// CanTransitionTo checks the status state machine.
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, ok := validTransitions[o.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns the specific rejection for an invalid transition.
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusDelivered:
		return ErrOrderDelivered
	case o.Status == StatusCancelled && target == StatusCancelled:
		return ErrOrderCancelled
	case target == StatusCancelled:
		return ErrCancellationNotAllowed
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// CancellableByCustomer reports whether a customer may still cancel:
// pending and processing orders only.
func (o *Order) CancellableByCustomer() bool {
	return o.Status == StatusPending || o.Status == StatusProcessing
}

// StatusChange is one row of the append-only audit trail. FromStatus is nil
// for the initial entry written at checkout.
type StatusChange struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	FromStatus *Status   `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	Comment    string    `json:"comment,omitempty"`
	ChangedBy  string    `json:"changed_by"`
	CreatedAt  time.Time `json:"created_at"`
}
