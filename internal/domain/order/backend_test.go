package order

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/example/storefront/internal/domain/shipping"
	"github.com/shopspring/decimal"
)

// fakeBackend is an in-memory stand-in for the PostgreSQL store. RunInTx
// snapshots the state before the closure and restores it on error, so
// rollback behaviour can be asserted without a database.
type fakeBackend struct {
	products   map[string]*catalog.Product
	cartLines  map[string][]*cart.Line
	cartCoupon map[string]string
	coupons    map[string]*promotion.Coupon
	usages     []*promotion.CouponUsage
	orders     map[string]*Order
	items      map[string][]*Item
	history    map[string][]*StatusChange
	userEmails map[string]string
	published  []Envelope
	publishErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products:   map[string]*catalog.Product{},
		cartLines:  map[string][]*cart.Line{},
		cartCoupon: map[string]string{},
		coupons:    map[string]*promotion.Coupon{},
		orders:     map[string]*Order{},
		items:      map[string][]*Item{},
		history:    map[string][]*StatusChange{},
		userEmails: map[string]string{},
	}
}

type backendSnapshot struct {
	products   map[string]*catalog.Product
	cartLines  map[string][]*cart.Line
	cartCoupon map[string]string
	coupons    map[string]*promotion.Coupon
	usages     []*promotion.CouponUsage
	orders     map[string]*Order
	items      map[string][]*Item
	history    map[string][]*StatusChange
}

func (f *fakeBackend) snapshot() backendSnapshot {
	s := backendSnapshot{
		products:   map[string]*catalog.Product{},
		cartLines:  map[string][]*cart.Line{},
		cartCoupon: map[string]string{},
		coupons:    map[string]*promotion.Coupon{},
		usages:     append([]*promotion.CouponUsage(nil), f.usages...),
		orders:     map[string]*Order{},
		items:      map[string][]*Item{},
		history:    map[string][]*StatusChange{},
	}
	for id, p := range f.products {
		cp := *p
		s.products[id] = &cp
	}
	for k, lines := range f.cartLines {
		s.cartLines[k] = append([]*cart.Line(nil), lines...)
	}
	for k, v := range f.cartCoupon {
		s.cartCoupon[k] = v
	}
	for code, c := range f.coupons {
		cp := *c
		s.coupons[code] = &cp
	}
	for id, o := range f.orders {
		cp := *o
		s.orders[id] = &cp
	}
	for k, v := range f.items {
		s.items[k] = append([]*Item(nil), v...)
	}
	for k, v := range f.history {
		s.history[k] = append([]*StatusChange(nil), v...)
	}
	return s
}

func (f *fakeBackend) restore(s backendSnapshot) {
	f.products = s.products
	f.cartLines = s.cartLines
	f.cartCoupon = s.cartCoupon
	f.coupons = s.coupons
	f.usages = s.usages
	f.orders = s.orders
	f.items = s.items
	f.history = s.history
}

func (f *fakeBackend) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	snap := f.snapshot()
	if err := fn(nil); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func cartKey(id cart.Identity) string {
	if id.UserID != "" {
		return "u:" + id.UserID
	}
	return "s:" + id.SessionID
}

func (f *fakeBackend) LinesTx(_ context.Context, _ *sql.Tx, id cart.Identity) ([]*cart.Line, error) {
	return f.cartLines[cartKey(id)], nil
}

func (f *fakeBackend) ClearLinesTx(_ context.Context, _ *sql.Tx, id cart.Identity) error {
	delete(f.cartLines, cartKey(id))
	return nil
}

func (f *fakeBackend) AppliedCouponCodeTx(_ context.Context, _ *sql.Tx, id cart.Identity) (string, error) {
	return f.cartCoupon[cartKey(id)], nil
}

func (f *fakeBackend) ClearAppliedCouponTx(_ context.Context, _ *sql.Tx, id cart.Identity) error {
	delete(f.cartCoupon, cartKey(id))
	return nil
}

func (f *fakeBackend) GetProductForUpdate(_ context.Context, _ *sql.Tx, productID string) (*catalog.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeBackend) AdjustStock(_ context.Context, _ *sql.Tx, productID string, delta int) error {
	p, ok := f.products[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	if p.TracksStock() && !p.AllowBackorders && p.StockQuantity+delta < 0 {
		return catalog.ErrInsufficientStock
	}
	p.StockQuantity += delta
	return nil
}

func (f *fakeBackend) GetCouponByCodeForUpdate(_ context.Context, _ *sql.Tx, code string) (*promotion.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return nil, promotion.ErrCouponNotFound
	}
	return c, nil
}

func (f *fakeBackend) IncrementCouponUsage(_ context.Context, _ *sql.Tx, couponID string) error {
	for _, c := range f.coupons {
		if c.ID == couponID {
			c.UsedCount++
			return nil
		}
	}
	return promotion.ErrCouponNotFound
}

func (f *fakeBackend) InsertCouponUsage(_ context.Context, _ *sql.Tx, u *promotion.CouponUsage) error {
	f.usages = append(f.usages, u)
	return nil
}

func (f *fakeBackend) CountUsageByUserTx(_ context.Context, _ *sql.Tx, couponID, userID string) (int, error) {
	n := 0
	for _, u := range f.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) CountUsageByEmailTx(_ context.Context, _ *sql.Tx, couponID, email string) (int, error) {
	n := 0
	for _, u := range f.usages {
		if u.CouponID == couponID && u.CustomerEmail == email {
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) InsertOrder(_ context.Context, _ *sql.Tx, o *Order) error {
	f.orders[o.ID] = o
	return nil
}

func (f *fakeBackend) InsertItem(_ context.Context, _ *sql.Tx, item *Item) error {
	f.items[item.OrderID] = append(f.items[item.OrderID], item)
	return nil
}

func (f *fakeBackend) InsertStatusChange(_ context.Context, _ *sql.Tx, ch *StatusChange) error {
	f.history[ch.OrderID] = append(f.history[ch.OrderID], ch)
	return nil
}

func (f *fakeBackend) OrderNumberExists(_ context.Context, _ *sql.Tx, number string) (bool, error) {
	for _, o := range f.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) GetOrderForUpdate(_ context.Context, _ *sql.Tx, orderID string) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeBackend) UpdateOrderStatus(_ context.Context, _ *sql.Tx, orderID string, status Status, deliveredAt *time.Time) error {
	o, ok := f.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.DeliveredAt = deliveredAt
	return nil
}

func (f *fakeBackend) GetOrder(_ context.Context, orderID string) (*Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeBackend) GetOrderByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range f.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (f *fakeBackend) ListOrdersByUser(_ context.Context, userID string) ([]*Order, error) {
	var out []*Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListOrders(_ context.Context, limit, offset int) ([]*Order, error) {
	var out []*Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeBackend) History(_ context.Context, orderID string) ([]*StatusChange, error) {
	return f.history[orderID], nil
}

func (f *fakeBackend) UserEmail(_ context.Context, userID string) (string, error) {
	return f.userEmails[userID], nil
}

func (f *fakeBackend) Publish(_ context.Context, key string, event any) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	if env, ok := event.(Envelope); ok {
		f.published = append(f.published, env)
	}
	return nil
}

type stubResolver struct {
	zone *shipping.Zone
	err  error
}

func (s stubResolver) FindForAddress(_ context.Context, _ shipping.Address) (*shipping.Zone, error) {
	return s.zone, s.err
}

type stubSales struct {
	sales []*promotion.FlashSale
}

func (s stubSales) ActiveSales(_ context.Context, _ time.Time) ([]*promotion.FlashSale, error) {
	return s.sales, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intPtr(n int) *int { return &n }
