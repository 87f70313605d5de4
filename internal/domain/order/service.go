package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/example/storefront/internal/domain/shipping"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const orderNumberAttempts = 5

// TxRunner scopes a function to one database transaction: any error rolls
// every write back. The PostgreSQL store implements it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Store is the order persistence surface. Methods taking a *sql.Tx run
// inside the checkout or status-update transaction.
type Store interface {
	InsertOrder(ctx context.Context, tx *sql.Tx, o *Order) error
	InsertItem(ctx context.Context, tx *sql.Tx, item *Item) error
	InsertStatusChange(ctx context.Context, tx *sql.Tx, ch *StatusChange) error
	OrderNumberExists(ctx context.Context, tx *sql.Tx, number string) (bool, error)
	GetOrderForUpdate(ctx context.Context, tx *sql.Tx, orderID string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, tx *sql.Tx, orderID string, status Status, deliveredAt *time.Time) error

	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]*Order, error)
	History(ctx context.Context, orderID string) ([]*StatusChange, error)

	// UserEmail resolves the account email for registered customers, so
	// status events carry a deliverable address. Empty for unknown users.
	UserEmail(ctx context.Context, userID string) (string, error)
}

// StockStore locks and mutates product stock inside a transaction.
// AdjustStock with a negative delta must refuse to take managed stock
// below zero unless the product allows backorders.
type StockStore interface {
	GetProductForUpdate(ctx context.Context, tx *sql.Tx, productID string) (*catalog.Product, error)
	AdjustStock(ctx context.Context, tx *sql.Tx, productID string, delta int) error
}

// CartTxStore is the transactional slice of the cart store checkout needs.
type CartTxStore interface {
	LinesTx(ctx context.Context, tx *sql.Tx, id cart.Identity) ([]*cart.Line, error)
	ClearLinesTx(ctx context.Context, tx *sql.Tx, id cart.Identity) error
	AppliedCouponCodeTx(ctx context.Context, tx *sql.Tx, id cart.Identity) (string, error)
	ClearAppliedCouponTx(ctx context.Context, tx *sql.Tx, id cart.Identity) error
}

// CouponTxStore locks and consumes coupons inside the checkout
// transaction.
type CouponTxStore interface {
	GetCouponByCodeForUpdate(ctx context.Context, tx *sql.Tx, code string) (*promotion.Coupon, error)
	IncrementCouponUsage(ctx context.Context, tx *sql.Tx, couponID string) error
	InsertCouponUsage(ctx context.Context, tx *sql.Tx, u *promotion.CouponUsage) error
	CountUsageByUserTx(ctx context.Context, tx *sql.Tx, couponID, userID string) (int, error)
	CountUsageByEmailTx(ctx context.Context, tx *sql.Tx, couponID, email string) (int, error)
}

// ShippingResolver matches the submitted address to a zone.
type ShippingResolver interface {
	FindForAddress(ctx context.Context, addr shipping.Address) (*shipping.Zone, error)
}

// SaleSource supplies the flash sales in effect for line pricing.
type SaleSource interface {
	ActiveSales(ctx context.Context, now time.Time) ([]*promotion.FlashSale, error)
}

// EventPublisher delivers order events best-effort after commit. The Kafka
// producer implements it.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	tx       TxRunner
	orders   Store
	stock    StockStore
	carts    CartTxStore
	coupons  CouponTxStore
	shipping ShippingResolver
	sales    SaleSource
	events   EventPublisher
	nowFn    func() time.Time
}

func NewService(tx TxRunner, orders Store, stock StockStore, carts CartTxStore, coupons CouponTxStore, resolver ShippingResolver, sales SaleSource, events EventPublisher) *Service {
	return &Service{
		tx:       tx,
		orders:   orders,
		stock:    stock,
		carts:    carts,
		coupons:  coupons,
		shipping: resolver,
		sales:    sales,
		events:   events,
		nowFn:    time.Now,
	}
}

type CheckoutRequest struct {
	Identity        cart.Identity
	Customer        promotion.CustomerIdentity
	GuestEmail      string
	ShippingAddress shipping.Address
	BillingAddress  *shipping.Address
}

// Checkout commits the cart into an order. Steps 2-7 run in one
// transaction: order + items (with product snapshots), stock decrement
// against freshly locked rows, coupon consumption, the initial history
// entry, and the cart wipe. Any failure rolls the whole thing back; the
// confirmation event is published only after commit and never fails the
// checkout.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if !req.Identity.Valid() {
		return nil, cart.ErrNoIdentity
	}
	if req.Identity.UserID == "" && req.GuestEmail == "" {
		return nil, ErrGuestEmailRequired
	}
	if req.Customer.UserID == "" && req.Customer.Email == "" {
		// Guest coupon usage is tracked against the checkout email.
		req.Customer.Email = req.GuestEmail
	}
	if err := req.ShippingAddress.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	zone, err := s.shipping.FindForAddress(ctx, req.ShippingAddress)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	sales, err := s.sales.ActiveSales(ctx, now)
	if err != nil {
		return nil, err
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	var placed *Order
	txErr := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		lines, err := s.carts.LinesTx(ctx, tx, req.Identity)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return cart.ErrEmptyCart
		}
		// Lock product rows in a stable order so concurrent checkouts
		// cannot deadlock on each other.
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		priced, subtotal, err := s.priceLines(ctx, tx, lines, sales, now)
		if err != nil {
			return err
		}
		if len(priced) == 0 {
			return cart.ErrEmptyCart
		}

		coupon, discount, err := s.consumeCouponInput(ctx, tx, req, priced, subtotal, now)
		if err != nil {
			return err
		}

		total := subtotal.Sub(discount).Add(zone.ShippingCost)

		number, err := s.generateOrderNumber(ctx, tx, now)
		if err != nil {
			return err
		}

		o := &Order{
			ID:                uuid.New().String(),
			OrderNumber:       number,
			UserID:            req.Identity.UserID,
			GuestEmail:        req.GuestEmail,
			Status:            StatusPending,
			Subtotal:          subtotal,
			DiscountAmount:    discount,
			ShippingCost:      zone.ShippingCost,
			Total:             total,
			ShippingAddress:   req.ShippingAddress,
			BillingAddress:    billing,
			PaymentMethod:     PaymentCashOnDelivery,
			EstimatedDelivery: zone.EstimatedDelivery(now),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if coupon != nil {
			o.CouponCode = coupon.Code
		}
		if err := s.orders.InsertOrder(ctx, tx, o); err != nil {
			return err
		}

		for _, pl := range priced {
			// Stock is re-validated against the row locked in this
			// transaction, never against anything cached earlier.
			if !pl.product.CanFulfill(pl.qty) {
				return fmt.Errorf("%w: %s (%d available, %d requested)",
					catalog.ErrInsufficientStock, pl.product.Name, pl.product.StockQuantity, pl.qty)
			}
			item := &Item{
				ID:        uuid.New().String(),
				OrderID:   o.ID,
				ProductID: pl.product.ID,
				Quantity:  pl.qty,
				Price:     pl.unit,
				Subtotal:  pl.lineTotal,
				Snapshot: ProductSnapshot{
					Name:        pl.product.Name,
					Description: pl.product.Description,
					Price:       pl.unit,
					Image:       pl.product.PrimaryImageURL(),
					SKU:         pl.product.SKU,
				},
			}
			if err := s.orders.InsertItem(ctx, tx, item); err != nil {
				return err
			}
			o.Items = append(o.Items, item)

			if pl.product.TracksStock() {
				if err := s.stock.AdjustStock(ctx, tx, pl.product.ID, -pl.qty); err != nil {
					return err
				}
			}
		}

		if coupon != nil && discount.IsPositive() {
			usage := &promotion.CouponUsage{
				ID:             uuid.New().String(),
				CouponID:       coupon.ID,
				OrderID:        o.ID,
				UserID:         req.Customer.UserID,
				CustomerEmail:  req.Customer.Email,
				DiscountAmount: discount,
				CreatedAt:      now,
			}
			if err := s.coupons.InsertCouponUsage(ctx, tx, usage); err != nil {
				return err
			}
			if err := s.coupons.IncrementCouponUsage(ctx, tx, coupon.ID); err != nil {
				return err
			}
			if err := s.carts.ClearAppliedCouponTx(ctx, tx, req.Identity); err != nil {
				return err
			}
		}

		if err := s.orders.InsertStatusChange(ctx, tx, &StatusChange{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			ToStatus:  StatusPending,
			Comment:   "Order placed",
			ChangedBy: s.actor(req),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if err := s.carts.ClearLinesTx(ctx, tx, req.Identity); err != nil {
			return err
		}

		placed = o
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.publishPlaced(ctx, placed, req.Customer.Email)
	return placed, nil
}

type pricedLine struct {
	product   *catalog.Product
	qty       int
	unit      decimal.Decimal
	lineTotal decimal.Decimal
}

// priceLines locks each product row and prices the line with the effective
// unit price (sale price and flash sales included). Lines whose product
// has been deleted since it was carted are dropped, matching the cart
// summary; inactive products reject the checkout.
func (s *Service) priceLines(ctx context.Context, tx *sql.Tx, lines []*cart.Line, sales []*promotion.FlashSale, now time.Time) ([]pricedLine, decimal.Decimal, error) {
	priced := make([]pricedLine, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		p, err := s.stock.GetProductForUpdate(ctx, tx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				continue
			}
			return nil, decimal.Zero, err
		}
		if !p.IsActive {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", catalog.ErrProductInactive, p.Name)
		}
		unit := promotion.EffectiveUnitPrice(p, sales, now)
		lineTotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
		priced = append(priced, pricedLine{product: p, qty: line.Quantity, unit: unit, lineTotal: lineTotal})
		subtotal = subtotal.Add(lineTotal)
	}
	return priced, subtotal, nil
}

// consumeCouponInput re-reads and locks the applied coupon inside the
// transaction and recomputes the discount against the priced lines. A
// coupon that went invalid since it was applied is dropped silently, the
// same policy the cart summary follows.
func (s *Service) consumeCouponInput(ctx context.Context, tx *sql.Tx, req CheckoutRequest, priced []pricedLine, subtotal decimal.Decimal, now time.Time) (*promotion.Coupon, decimal.Decimal, error) {
	code, err := s.carts.AppliedCouponCodeTx(ctx, tx, req.Identity)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if code == "" {
		return nil, decimal.Zero, nil
	}

	coupon, err := s.coupons.GetCouponByCodeForUpdate(ctx, tx, code)
	if err != nil {
		if errors.Is(err, promotion.ErrCouponNotFound) {
			return nil, decimal.Zero, nil
		}
		return nil, decimal.Zero, err
	}
	if !coupon.IsValid(now) {
		return nil, decimal.Zero, nil
	}

	if coupon.PerCustomerLimit != nil && !req.Customer.IsAnonymous() {
		var used int
		if req.Customer.UserID != "" {
			used, err = s.coupons.CountUsageByUserTx(ctx, tx, coupon.ID, req.Customer.UserID)
		} else {
			used, err = s.coupons.CountUsageByEmailTx(ctx, tx, coupon.ID, req.Customer.Email)
		}
		if err != nil {
			return nil, decimal.Zero, err
		}
		if used >= *coupon.PerCustomerLimit {
			return nil, decimal.Zero, nil
		}
	}

	applicable := decimal.Zero
	for _, pl := range priced {
		if couponCoversLine(coupon, pl.product) {
			applicable = applicable.Add(pl.lineTotal)
		}
	}
	discount := coupon.CalculateDiscountOn(subtotal, applicable)
	return coupon, discount, nil
}

func couponCoversLine(c *promotion.Coupon, p *catalog.Product) bool {
	if !c.IsRestricted() {
		return true
	}
	for _, id := range c.ProductIDs {
		if id == p.ID {
			return true
		}
	}
	if p.CategoryID != "" {
		for _, id := range c.CategoryIDs {
			if id == p.CategoryID {
				return true
			}
		}
	}
	return false
}

// generateOrderNumber produces ORD-{year}-{6 digits}, retrying on the rare
// collision. The unique index on order_number is the final backstop.
func (s *Service) generateOrderNumber(ctx context.Context, tx *sql.Tx, now time.Time) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number := fmt.Sprintf("ORD-%d-%06d", now.Year(), rand.IntN(1000000))
		exists, err := s.orders.OrderNumberExists(ctx, tx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique order number after %d attempts", orderNumberAttempts)
}

func (s *Service) actor(req CheckoutRequest) string {
	if req.Identity.UserID != "" {
		return req.Identity.UserID
	}
	return "guest"
}

func (s *Service) publishPlaced(ctx context.Context, o *Order, userEmail string) {
	if s.events == nil {
		return
	}
	items := make([]PlacedItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = PlacedItem{
			ProductID: item.ProductID,
			Name:      item.Snapshot.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		}
	}
	env, err := NewEnvelope(EventOrderPlaced, PlacedEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerEmail: o.CustomerEmail(userEmail),
		Items:         items,
		Subtotal:      o.Subtotal,
		Discount:      o.DiscountAmount,
		ShippingCost:  o.ShippingCost,
		Total:         o.Total,
		PlacedAt:      o.CreatedAt,
	})
	if err != nil {
		logrus.WithError(err).Error("encode order.placed event")
		return
	}
	if err := s.events.Publish(ctx, o.ID, env); err != nil {
		logrus.WithError(err).WithField("order", o.OrderNumber).Error("publish order.placed event")
	}
}
