package promotion

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrCouponInvalid        = errors.New("coupon is not valid")
	ErrCouponMinimumUnmet   = errors.New("order total is below the coupon minimum")
	ErrCouponLimitReached   = errors.New("coupon usage limit reached")
	ErrCustomerLimitReached = errors.New("coupon already used the maximum number of times by this customer")
)

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

type CouponStatus string

const (
	CouponActive   CouponStatus = "active"
	CouponInactive CouponStatus = "inactive"
	CouponExpired  CouponStatus = "expired"
)

type Coupon struct {
	ID                 string           `json:"id"`
	Code               string           `json:"code"`
	Type               CouponType       `json:"type"`
	Value              decimal.Decimal  `json:"value"`
	MinimumOrderAmount *decimal.Decimal `json:"minimum_order_amount,omitempty"`
	ProductIDs         []string         `json:"product_ids,omitempty"`
	CategoryIDs        []string         `json:"category_ids,omitempty"`
	UsageLimit         *int             `json:"usage_limit,omitempty"`
	UsedCount          int              `json:"used_count"`
	PerCustomerLimit   *int             `json:"per_customer_limit,omitempty"`
	ValidFrom          time.Time        `json:"valid_from"`
	ValidUntil         *time.Time       `json:"valid_until,omitempty"`
	Enabled            bool             `json:"enabled"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// CouponUsage records one successful redemption. Rows are immutable.
type CouponUsage struct {
	ID             string          `json:"id"`
	CouponID       string          `json:"coupon_id"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id,omitempty"`
	CustomerEmail  string          `json:"customer_email,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EffectiveStatus derives the coupon status from stored dates and counters
// at read time. Nothing is swept in the background; callers always see a
// status consistent with now.
func (c *Coupon) EffectiveStatus(now time.Time) CouponStatus {
	if !c.Enabled {
		return CouponInactive
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return CouponExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return CouponExpired
	}
	return CouponActive
}

// IsValid reports whether the coupon can currently be redeemed at all,
// independent of any particular customer.
func (c *Coupon) IsValid(now time.Time) bool {
	if c.EffectiveStatus(now) != CouponActive {
		return false
	}
	return !now.Before(c.ValidFrom)
}

// AppliesToProducts reports whether the coupon restriction set intersects
// the given product IDs. An empty restriction list applies to everything.
func (c *Coupon) AppliesToProducts(productIDs []string) bool {
	return intersects(c.ProductIDs, productIDs)
}

// AppliesToCategories is the category counterpart of AppliesToProducts.
func (c *Coupon) AppliesToCategories(categoryIDs []string) bool {
	return intersects(c.CategoryIDs, categoryIDs)
}

func intersects(restriction, ids []string) bool {
	if len(restriction) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(restriction))
	for _, id := range restriction {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// IsRestricted reports whether the coupon only applies to specific
// products or categories.
func (c *Coupon) IsRestricted() bool {
	return len(c.ProductIDs) > 0 || len(c.CategoryIDs) > 0
}

// CalculateDiscount computes the discount against the full order total.
func (c *Coupon) CalculateDiscount(orderTotal decimal.Decimal) decimal.Decimal {
	return c.CalculateDiscountOn(orderTotal, orderTotal)
}

// CalculateDiscountOn computes the discount when only a subset of the order
// (applicableSubtotal) falls under the coupon's restriction. The minimum
// order check is always against the full order total. The result is never
// negative and never exceeds the applicable base.
func (c *Coupon) CalculateDiscountOn(orderTotal, applicableSubtotal decimal.Decimal) decimal.Decimal {
	if c.MinimumOrderAmount != nil && orderTotal.LessThan(*c.MinimumOrderAmount) {
		return decimal.Zero
	}
	base := applicableSubtotal
	if base.IsNegative() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.Type {
	case CouponPercentage:
		discount = base.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
	case CouponFixed:
		discount = c.Value
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(base) {
		return base
	}
	return discount
}
