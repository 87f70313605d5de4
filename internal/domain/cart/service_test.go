package cart

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeStore keeps cart lines in memory, keyed the way the SQL store keys
// them.
type fakeStore struct {
	lines   map[string]map[string]int // identity key -> product -> qty
	coupons map[string]string        // identity key -> applied coupon code
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lines:   make(map[string]map[string]int),
		coupons: make(map[string]string),
	}
}

func key(id Identity) string {
	if id.UserID != "" {
		return "u:" + id.UserID
	}
	return "s:" + id.SessionID
}

func (f *fakeStore) Lines(ctx context.Context, id Identity) ([]*Line, error) {
	var out []*Line
	for productID, qty := range f.lines[key(id)] {
		out = append(out, &Line{ProductID: productID, Quantity: qty, UserID: id.UserID, SessionID: id.SessionID})
	}
	return out, nil
}

func (f *fakeStore) AddLine(ctx context.Context, id Identity, productID string, qty int) error {
	m := f.lines[key(id)]
	if m == nil {
		m = make(map[string]int)
		f.lines[key(id)] = m
	}
	m[productID] += qty
	return nil
}

func (f *fakeStore) SetQuantity(ctx context.Context, id Identity, productID string, qty int) error {
	m := f.lines[key(id)]
	if m == nil || m[productID] == 0 {
		return ErrLineNotFound
	}
	m[productID] = qty
	return nil
}

func (f *fakeStore) RemoveLine(ctx context.Context, id Identity, productID string) error {
	delete(f.lines[key(id)], productID)
	return nil
}

func (f *fakeStore) ClearLines(ctx context.Context, id Identity) error {
	delete(f.lines, key(id))
	return nil
}

func (f *fakeStore) MergeGuestCart(ctx context.Context, sessionID, userID string) error {
	guest := f.lines["s:"+sessionID]
	user := f.lines["u:"+userID]
	if user == nil {
		user = make(map[string]int)
		f.lines["u:"+userID] = user
	}
	for productID, qty := range guest {
		user[productID] += qty
	}
	delete(f.lines, "s:"+sessionID)
	return nil
}

func (f *fakeStore) AppliedCouponCode(ctx context.Context, id Identity) (string, error) {
	return f.coupons[key(id)], nil
}

func (f *fakeStore) SetAppliedCoupon(ctx context.Context, id Identity, code string) error {
	f.coupons[key(id)] = code
	return nil
}

func (f *fakeStore) ClearAppliedCoupon(ctx context.Context, id Identity) error {
	delete(f.coupons, key(id))
	return nil
}

type fakeCatalog struct {
	products map[string]*catalog.Product
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

type fakePromos struct {
	coupons map[string]*promotion.Coupon
	sales   []*promotion.FlashSale
	usedUp  map[string]bool
}

func (f *fakePromos) GetCoupon(ctx context.Context, code string) (*promotion.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return nil, promotion.ErrCouponNotFound
	}
	return c, nil
}

func (f *fakePromos) CanBeUsedBy(ctx context.Context, c *promotion.Coupon, identity promotion.CustomerIdentity, at time.Time) error {
	if !c.IsValid(at) {
		return promotion.ErrCouponInvalid
	}
	if f.usedUp[c.Code] {
		return promotion.ErrCustomerLimitReached
	}
	return nil
}

func (f *fakePromos) ActiveSales(ctx context.Context, at time.Time) ([]*promotion.FlashSale, error) {
	return f.sales, nil
}

func newTestService() (*Service, *fakeStore, *fakeCatalog, *fakePromos) {
	store := newFakeStore()
	cat := &fakeCatalog{products: map[string]*catalog.Product{
		"p1": {ID: "p1", Name: "Mug", CategoryID: "c1", Price: dec("10"), IsActive: true, ManageStock: true, StockQuantity: 100},
		"p2": {ID: "p2", Name: "Shirt", CategoryID: "c2", Price: dec("25"), IsActive: true, HasUnlimitedStock: true, ManageStock: true},
	}}
	promos := &fakePromos{coupons: map[string]*promotion.Coupon{}, usedUp: map[string]bool{}}
	return NewService(store, cat, promos), store, cat, promos
}

func validCoupon(code string) *promotion.Coupon {
	return &promotion.Coupon{
		ID:        "cpn-" + code,
		Code:      code,
		Type:      promotion.CouponPercentage,
		Value:     dec("10"),
		ValidFrom: now.Add(-time.Hour),
		Enabled:   true,
	}
}

func TestService_AddItem(t *testing.T) {
	svc, store, cat, _ := newTestService()
	ctx := context.Background()
	id := ForSession("sess-1")

	require.NoError(t, svc.AddItem(ctx, id, "p1", 2))
	require.NoError(t, svc.AddItem(ctx, id, "p1", 3))
	assert.Equal(t, 5, store.lines["s:sess-1"]["p1"], "quantities accumulate")

	assert.ErrorIs(t, svc.AddItem(ctx, id, "p1", 0), catalog.ErrInvalidQuantity)
	assert.ErrorIs(t, svc.AddItem(ctx, id, "missing", 1), catalog.ErrProductNotFound)
	assert.ErrorIs(t, svc.AddItem(ctx, Identity{}, "p1", 1), ErrNoIdentity)

	cat.products["p1"].IsActive = false
	assert.ErrorIs(t, svc.AddItem(ctx, id, "p1", 1), catalog.ErrProductInactive)

	cat.products["p1"].IsActive = true
	assert.ErrorIs(t, svc.AddItem(ctx, id, "p1", 101), catalog.ErrInsufficientStock)
}

func TestService_MergeGuestCart(t *testing.T) {
	svc, store, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, ForSession("S"), "p1", 2))
	require.NoError(t, svc.AddItem(ctx, ForUser("u1"), "p1", 1))

	require.NoError(t, svc.MergeGuestCart(ctx, "S", "u1"))
	assert.Equal(t, 3, store.lines["u:u1"]["p1"], "guest quantity summed into user line")
	assert.Empty(t, store.lines["s:S"], "no rows remain for the guest session")

	// Replaying the merge must not double quantities.
	require.NoError(t, svc.MergeGuestCart(ctx, "S", "u1"))
	assert.Equal(t, 3, store.lines["u:u1"]["p1"])
}

func TestService_Summary(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	id := ForUser("u1")

	require.NoError(t, svc.AddItem(ctx, id, "p1", 2)) // 2 x 10
	require.NoError(t, svc.AddItem(ctx, id, "p2", 1)) // 1 x 25

	summary, err := svc.Summary(ctx, id, promotion.CustomerIdentity{UserID: "u1"}, now)
	require.NoError(t, err)
	assert.True(t, summary.Subtotal.Equal(dec("45")))
	assert.True(t, summary.Discount.IsZero())
	assert.True(t, summary.Total.Equal(dec("45")))
	assert.Len(t, summary.Lines, 2)
}

func TestService_Summary_FlashSalePricing(t *testing.T) {
	svc, _, _, promos := newTestService()
	ctx := context.Background()
	id := ForUser("u1")

	promos.sales = []*promotion.FlashSale{{
		DiscountPercentage: dec("50"),
		ProductIDs:         []string{"p1"},
		StartDate:          now.Add(-time.Hour),
		EndDate:            now.Add(time.Hour),
	}}

	require.NoError(t, svc.AddItem(ctx, id, "p1", 2))
	summary, err := svc.Summary(ctx, id, promotion.CustomerIdentity{UserID: "u1"}, now)
	require.NoError(t, err)
	assert.True(t, summary.Subtotal.Equal(dec("10")), "flash sale halves the unit price")
}

func TestService_ApplyCoupon(t *testing.T) {
	svc, store, _, promos := newTestService()
	ctx := context.Background()
	id := ForUser("u1")
	customer := promotion.CustomerIdentity{UserID: "u1"}

	promos.coupons["SAVE10"] = validCoupon("SAVE10")
	require.NoError(t, svc.AddItem(ctx, id, "p1", 2))

	summary, err := svc.ApplyCoupon(ctx, id, "SAVE10", customer, now)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", summary.CouponCode)
	assert.True(t, summary.Discount.Equal(dec("2")))
	assert.True(t, summary.Total.Equal(dec("18")))
	assert.Equal(t, "SAVE10", store.coupons["u:u1"])
}

func TestService_ApplyCoupon_MinimumUnmet(t *testing.T) {
	svc, _, _, promos := newTestService()
	ctx := context.Background()
	id := ForUser("u1")

	c := validCoupon("BIG")
	min := dec("500")
	c.MinimumOrderAmount = &min
	promos.coupons["BIG"] = c

	require.NoError(t, svc.AddItem(ctx, id, "p1", 1))
	_, err := svc.ApplyCoupon(ctx, id, "BIG", promotion.CustomerIdentity{UserID: "u1"}, now)
	assert.ErrorIs(t, err, promotion.ErrCouponMinimumUnmet)
}

func TestService_ApplyCoupon_RestrictionMissesCart(t *testing.T) {
	svc, _, _, promos := newTestService()
	ctx := context.Background()
	id := ForUser("u1")

	c := validCoupon("SHOES")
	c.ProductIDs = []string{"p99"}
	promos.coupons["SHOES"] = c

	require.NoError(t, svc.AddItem(ctx, id, "p1", 1))
	_, err := svc.ApplyCoupon(ctx, id, "SHOES", promotion.CustomerIdentity{UserID: "u1"}, now)
	assert.ErrorIs(t, err, promotion.ErrCouponInvalid)
}

func TestService_Summary_InvalidCouponSilentlyCleared(t *testing.T) {
	svc, store, _, promos := newTestService()
	ctx := context.Background()
	id := ForUser("u1")
	customer := promotion.CustomerIdentity{UserID: "u1"}

	promos.coupons["SAVE10"] = validCoupon("SAVE10")
	require.NoError(t, svc.AddItem(ctx, id, "p1", 2))
	_, err := svc.ApplyCoupon(ctx, id, "SAVE10", customer, now)
	require.NoError(t, err)

	// Coupon expires between requests.
	until := now.Add(-time.Minute)
	promos.coupons["SAVE10"].ValidUntil = &until

	summary, err := svc.Summary(ctx, id, customer, now)
	require.NoError(t, err, "an unrelated cart view never fails over a stale coupon")
	assert.True(t, summary.Discount.IsZero())
	assert.Empty(t, summary.CouponCode)
	assert.Empty(t, store.coupons["u:u1"], "slot cleared")
}

func TestService_Summary_RestrictedCouponDiscountsSubsetOnly(t *testing.T) {
	svc, _, _, promos := newTestService()
	ctx := context.Background()
	id := ForUser("u1")
	customer := promotion.CustomerIdentity{UserID: "u1"}

	c := validCoupon("MUGS")
	c.Type = promotion.CouponPercentage
	c.Value = dec("50")
	c.CategoryIDs = []string{"c1"}
	promos.coupons["MUGS"] = c

	require.NoError(t, svc.AddItem(ctx, id, "p1", 2)) // c1: 20
	require.NoError(t, svc.AddItem(ctx, id, "p2", 1)) // c2: 25

	summary, err := svc.ApplyCoupon(ctx, id, "MUGS", customer, now)
	require.NoError(t, err)
	assert.True(t, summary.Discount.Equal(dec("10")), "50%% of the c1 subset only, got %s", summary.Discount)
	assert.True(t, summary.Total.Equal(dec("35")))
}

func TestService_Clear(t *testing.T) {
	svc, store, _, promos := newTestService()
	ctx := context.Background()
	id := ForUser("u1")

	promos.coupons["SAVE10"] = validCoupon("SAVE10")
	require.NoError(t, svc.AddItem(ctx, id, "p1", 1))
	_, err := svc.ApplyCoupon(ctx, id, "SAVE10", promotion.CustomerIdentity{UserID: "u1"}, now)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, id))
	assert.Empty(t, store.lines["u:u1"])
	assert.Empty(t, store.coupons["u:u1"])
}

func TestService_Summary_SkipsDeletedProducts(t *testing.T) {
	svc, _, cat, _ := newTestService()
	ctx := context.Background()
	id := ForUser("u1")

	require.NoError(t, svc.AddItem(ctx, id, "p1", 1))
	require.NoError(t, svc.AddItem(ctx, id, "p2", 1))
	delete(cat.products, "p2")

	summary, err := svc.Summary(ctx, id, promotion.CustomerIdentity{UserID: "u1"}, now)
	require.NoError(t, err)
	assert.Len(t, summary.Lines, 1)
	assert.True(t, summary.Subtotal.Equal(dec("10")))
}
