package order

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/example/storefront/internal/domain/shipping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var checkoutNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

var testAddress = shipping.Address{
	Name:         "Jordan Rivers",
	Phone:        "01700000000",
	AddressLine1: "12 Lake View Road",
	City:         "Dhaka",
}

func newTestService(b *fakeBackend) *Service {
	svc := NewService(b, b, b, b, b, stubResolver{zone: testZone()}, stubSales{}, b)
	svc.nowFn = func() time.Time { return checkoutNow }
	return svc
}

func testZone() *shipping.Zone {
	return &shipping.Zone{
		ID:              "zone-1",
		Name:            "Inside City",
		Areas:           []string{"Dhaka"},
		ShippingCost:    dec("5.00"),
		DeliveryTimeMin: 2,
		DeliveryTimeMax: 4,
		IsActive:        true,
	}
}

func seedProduct(b *fakeBackend, id, name string, price string, stock int) {
	b.products[id] = &catalog.Product{
		ID:            id,
		Name:          name,
		SKU:           "SKU-" + id,
		Price:         dec(price),
		StockQuantity: stock,
		ManageStock:   true,
		IsActive:      true,
	}
}

func TestCheckoutPlacesOrder(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Ceramic Mug", "10.00", 5)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 2}}

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1", Email: "u1@example.com"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ORD-2026-\d{6}$`), o.OrderNumber)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentCashOnDelivery, o.PaymentMethod)
	assert.True(t, o.Subtotal.Equal(dec("20.00")), "subtotal %s", o.Subtotal)
	assert.True(t, o.ShippingCost.Equal(dec("5.00")))
	assert.True(t, o.Total.Equal(dec("25.00")), "total %s", o.Total)
	assert.Equal(t, checkoutNow.AddDate(0, 0, 4), o.EstimatedDelivery)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Ceramic Mug", o.Items[0].Snapshot.Name)
	assert.True(t, o.Items[0].Price.Equal(dec("10.00")))

	assert.Equal(t, 3, b.products["p1"].StockQuantity)
	assert.Empty(t, b.cartLines[cartKey(id)], "cart should be cleared")

	trail := b.history[o.ID]
	require.Len(t, trail, 1)
	assert.Nil(t, trail[0].FromStatus)
	assert.Equal(t, StatusPending, trail[0].ToStatus)

	require.Len(t, b.published, 1)
	assert.Equal(t, EventOrderPlaced, b.published[0].Type)
}

func TestCheckoutTotalInvariant(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "12.50", 10)
	seedProduct(b, "p2", "Plate", "7.25", 10)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 2},
	}

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err)

	sum := o.Subtotal.Sub(o.DiscountAmount).Add(o.ShippingCost)
	assert.True(t, o.Total.Equal(sum), "total %s != subtotal-discount+shipping %s", o.Total, sum)
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "10.00", 5)
	seedProduct(b, "p2", "Plate", "8.00", 1)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	}

	svc := newTestService(b)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Plate")

	assert.Equal(t, 5, b.products["p1"].StockQuantity, "earlier decrement must roll back")
	assert.Equal(t, 1, b.products["p2"].StockQuantity)
	assert.Empty(t, b.orders)
	assert.Len(t, b.cartLines[cartKey(id)], 2, "cart survives a failed checkout")
	assert.Empty(t, b.published)
}

func TestCheckoutEmptyCart(t *testing.T) {
	b := newFakeBackend()
	svc := newTestService(b)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        cart.ForUser("u1"),
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestCheckoutRejectsGuestWithoutEmail(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "10.00", 5)
	id := cart.ForSession("sess-1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 1}}

	svc := newTestService(b)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		ShippingAddress: testAddress,
	})
	assert.ErrorIs(t, err, ErrGuestEmailRequired)
}

func TestCheckoutInvalidAddress(t *testing.T) {
	b := newFakeBackend()
	svc := newTestService(b)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity: cart.ForUser("u1"),
		Customer: promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: shipping.Address{
			Name: "No Street",
		},
	})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCheckoutUntrackedStockNotDecremented(t *testing.T) {
	b := newFakeBackend()
	b.products["p1"] = &catalog.Product{
		ID:                "p1",
		Name:              "Digital Gift Card",
		Price:             dec("25.00"),
		HasUnlimitedStock: true,
		ManageStock:       true,
		StockQuantity:     0,
		IsActive:          true,
	}
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 4}}

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err)
	assert.True(t, o.Subtotal.Equal(dec("100.00")))
	assert.Equal(t, 0, b.products["p1"].StockQuantity)
}

func TestCheckoutBackorderTakesStockNegative(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Walnut Desk", "200.00", 1)
	b.products["p1"].AllowBackorders = true
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 5}}

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err, "backorders take the checkout past current stock")

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, -4, b.products["p1"].StockQuantity, "balance records the owed units")
}

func TestCheckoutConsumesAppliedCoupon(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "25.00", 10)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 2}}
	b.coupons["SAVE10"] = &promotion.Coupon{
		ID:        "c1",
		Code:      "SAVE10",
		Type:      promotion.CouponPercentage,
		Value:     dec("10"),
		ValidFrom: checkoutNow.Add(-time.Hour),
		Enabled:   true,
	}
	b.cartCoupon[cartKey(id)] = "SAVE10"

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1", Email: "u1@example.com"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err)

	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.True(t, o.DiscountAmount.Equal(dec("5.00")), "discount %s", o.DiscountAmount)
	assert.True(t, o.Total.Equal(dec("50.00")), "50 - 5 + 5 shipping, got %s", o.Total)

	assert.Equal(t, 1, b.coupons["SAVE10"].UsedCount)
	require.Len(t, b.usages, 1)
	assert.Equal(t, "c1", b.usages[0].CouponID)
	assert.Equal(t, o.ID, b.usages[0].OrderID)
	assert.True(t, b.usages[0].DiscountAmount.Equal(dec("5.00")), "usage records the redeemed amount")
	assert.Empty(t, b.cartCoupon[cartKey(id)], "coupon slot cleared after redemption")
}

func TestCheckoutDropsCouponGoneInvalid(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "25.00", 10)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 1}}
	b.coupons["SPENT"] = &promotion.Coupon{
		ID:         "c1",
		Code:       "SPENT",
		Type:       promotion.CouponPercentage,
		Value:      dec("10"),
		UsageLimit: intPtr(5),
		UsedCount:  5,
		ValidFrom:  checkoutNow.Add(-time.Hour),
		Enabled:    true,
	}
	b.cartCoupon[cartKey(id)] = "SPENT"

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err, "a stale coupon must not block checkout")

	assert.Empty(t, o.CouponCode)
	assert.True(t, o.DiscountAmount.IsZero())
	assert.Equal(t, 5, b.coupons["SPENT"].UsedCount)
	assert.Empty(t, b.usages)
}

func TestCheckoutPerCustomerLimitEnforcedInTx(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "25.00", 10)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 1}}
	b.coupons["ONCE"] = &promotion.Coupon{
		ID:               "c1",
		Code:             "ONCE",
		Type:             promotion.CouponFixed,
		Value:            dec("5.00"),
		PerCustomerLimit: intPtr(1),
		ValidFrom:        checkoutNow.Add(-time.Hour),
		Enabled:          true,
	}
	b.usages = []*promotion.CouponUsage{{CouponID: "c1", UserID: "u1"}}
	b.cartCoupon[cartKey(id)] = "ONCE"

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err)
	assert.True(t, o.DiscountAmount.IsZero(), "second redemption by the same customer gets no discount")
	assert.Empty(t, o.CouponCode)
}

func TestCheckoutGuestCouponTrackedByEmail(t *testing.T) {
	newBackend := func() *fakeBackend {
		b := newFakeBackend()
		seedProduct(b, "p1", "Mug", "25.00", 10)
		b.coupons["ONCE"] = &promotion.Coupon{
			ID:               "c1",
			Code:             "ONCE",
			Type:             promotion.CouponFixed,
			Value:            dec("5.00"),
			PerCustomerLimit: intPtr(1),
			ValidFrom:        checkoutNow.Add(-time.Hour),
			Enabled:          true,
		}
		return b
	}
	id := cart.ForSession("S")
	guestReq := CheckoutRequest{
		Identity:        id,
		GuestEmail:      "guest@example.com",
		ShippingAddress: testAddress,
	}

	t.Run("usage row carries the guest email", func(t *testing.T) {
		b := newBackend()
		b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 1}}
		b.cartCoupon[cartKey(id)] = "ONCE"

		o, err := newTestService(b).Checkout(context.Background(), guestReq)
		require.NoError(t, err)
		assert.True(t, o.DiscountAmount.Equal(dec("5.00")))
		require.Len(t, b.usages, 1)
		assert.Equal(t, "guest@example.com", b.usages[0].CustomerEmail)
		assert.Empty(t, b.usages[0].UserID)
	})

	t.Run("limit counts prior redemptions under the same email", func(t *testing.T) {
		b := newBackend()
		b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 1}}
		b.cartCoupon[cartKey(id)] = "ONCE"
		b.usages = []*promotion.CouponUsage{{CouponID: "c1", CustomerEmail: "guest@example.com"}}

		o, err := newTestService(b).Checkout(context.Background(), guestReq)
		require.NoError(t, err)
		assert.True(t, o.DiscountAmount.IsZero(), "same guest email gets no second discount")
		assert.Empty(t, o.CouponCode)
		require.Len(t, b.usages, 1, "no new usage row for a refused redemption")
	})
}

func TestCheckoutNoActiveZones(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "10.00", 5)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 1}}

	svc := newTestService(b)
	svc.shipping = stubResolver{err: shipping.ErrNoActiveZones}
	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	assert.ErrorIs(t, err, shipping.ErrNoActiveZones)
	assert.Len(t, b.cartLines[cartKey(id)], 1)
}

func TestCheckoutPublishFailureDoesNotFailOrder(t *testing.T) {
	b := newFakeBackend()
	seedProduct(b, "p1", "Mug", "10.00", 5)
	id := cart.ForUser("u1")
	b.cartLines[cartKey(id)] = []*cart.Line{{ProductID: "p1", Quantity: 1}}
	b.publishErr = assert.AnError

	svc := newTestService(b)
	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		Identity:        id,
		Customer:        promotion.CustomerIdentity{UserID: "u1"},
		ShippingAddress: testAddress,
	})
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Len(t, b.orders, 1)
}
