package promotion

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrSaleNotFound = errors.New("flash sale not found")

type SaleStatus string

const (
	SaleScheduled SaleStatus = "scheduled"
	SaleActive    SaleStatus = "active"
	SaleExpired   SaleStatus = "expired"
)

// FlashSale is a time-boxed percentage discount over an explicit product
// or category set. Campaigns share the same shape and rules.
type FlashSale struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	ProductIDs         []string        `json:"product_ids,omitempty"`
	CategoryIDs        []string        `json:"category_ids,omitempty"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	MaxUsage           *int            `json:"max_usage,omitempty"`
	UsedCount          int             `json:"used_count"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// EffectiveStatus derives the sale status from the time window and usage
// cap at read time, so it can never be stale.
func (f *FlashSale) EffectiveStatus(now time.Time) SaleStatus {
	if f.MaxUsage != nil && f.UsedCount >= *f.MaxUsage {
		return SaleExpired
	}
	if now.Before(f.StartDate) {
		return SaleScheduled
	}
	if now.After(f.EndDate) {
		return SaleExpired
	}
	return SaleActive
}

// Covers reports whether the sale applies to a product, either directly or
// through its category. Unlike coupons, a sale with no product and no
// category set covers nothing.
func (f *FlashSale) Covers(productID, categoryID string) bool {
	for _, id := range f.ProductIDs {
		if id == productID {
			return true
		}
	}
	if categoryID != "" {
		for _, id := range f.CategoryIDs {
			if id == categoryID {
				return true
			}
		}
	}
	return false
}

// DiscountedPrice applies the sale percentage to a unit price.
func (f *FlashSale) DiscountedPrice(price decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(100).Sub(f.DiscountPercentage).Div(decimal.NewFromInt(100))
	discounted := price.Mul(factor).Round(2)
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted
}
