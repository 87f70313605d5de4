package cart

import (
	"context"
	"errors"
	"time"

	"github.com/example/storefront/internal/domain/catalog"
	"github.com/example/storefront/internal/domain/promotion"
	"github.com/shopspring/decimal"
)

// Store is the persistence surface for cart lines and the per-cart applied
// coupon slot. MergeGuestCart must run in a single database transaction and
// be idempotent: after it returns, no lines remain under the session ID.
type Store interface {
	Lines(ctx context.Context, id Identity) ([]*Line, error)
	AddLine(ctx context.Context, id Identity, productID string, qty int) error
	SetQuantity(ctx context.Context, id Identity, productID string, qty int) error
	RemoveLine(ctx context.Context, id Identity, productID string) error
	ClearLines(ctx context.Context, id Identity) error
	MergeGuestCart(ctx context.Context, sessionID, userID string) error

	AppliedCouponCode(ctx context.Context, id Identity) (string, error)
	SetAppliedCoupon(ctx context.Context, id Identity, code string) error
	ClearAppliedCoupon(ctx context.Context, id Identity) error
}

// ProductFinder is the slice of the catalog the cart needs.
type ProductFinder interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// PromotionResolver is the slice of the promotion engine the cart needs.
// *promotion.Service satisfies it.
type PromotionResolver interface {
	GetCoupon(ctx context.Context, code string) (*promotion.Coupon, error)
	CanBeUsedBy(ctx context.Context, c *promotion.Coupon, identity promotion.CustomerIdentity, now time.Time) error
	ActiveSales(ctx context.Context, now time.Time) ([]*promotion.FlashSale, error)
}

type Service struct {
	store    Store
	products ProductFinder
	promos   PromotionResolver
}

func NewService(store Store, products ProductFinder, promos PromotionResolver) *Service {
	return &Service{store: store, products: products, promos: promos}
}

func (s *Service) AddItem(ctx context.Context, id Identity, productID string, qty int) error {
	if !id.Valid() {
		return ErrNoIdentity
	}
	if qty < 1 {
		return catalog.ErrInvalidQuantity
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return catalog.ErrProductInactive
	}
	if !p.CanFulfill(qty) {
		return catalog.ErrInsufficientStock
	}
	return s.store.AddLine(ctx, id, productID, qty)
}

func (s *Service) UpdateItem(ctx context.Context, id Identity, productID string, qty int) error {
	if !id.Valid() {
		return ErrNoIdentity
	}
	if qty < 1 {
		return catalog.ErrInvalidQuantity
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.CanFulfill(qty) {
		return catalog.ErrInsufficientStock
	}
	return s.store.SetQuantity(ctx, id, productID, qty)
}

func (s *Service) RemoveItem(ctx context.Context, id Identity, productID string) error {
	if !id.Valid() {
		return ErrNoIdentity
	}
	return s.store.RemoveLine(ctx, id, productID)
}

func (s *Service) Clear(ctx context.Context, id Identity) error {
	if !id.Valid() {
		return ErrNoIdentity
	}
	if err := s.store.ClearLines(ctx, id); err != nil {
		return err
	}
	return s.store.ClearAppliedCoupon(ctx, id)
}

// MergeGuestCart folds a guest session's cart into the user's cart after
// login. Quantities for products present in both carts are summed; other
// guest lines are re-owned. The store runs it transactionally, and because
// all guest rows are consumed, replaying the merge is a no-op.
func (s *Service) MergeGuestCart(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return ErrNoIdentity
	}
	return s.store.MergeGuestCart(ctx, sessionID, userID)
}

// ApplyCoupon validates the coupon against the current cart before storing
// it in the cart's applied-coupon slot.
func (s *Service) ApplyCoupon(ctx context.Context, id Identity, code string, customer promotion.CustomerIdentity, now time.Time) (Summary, error) {
	if !id.Valid() {
		return Summary{}, ErrNoIdentity
	}
	coupon, err := s.promos.GetCoupon(ctx, code)
	if err != nil {
		return Summary{}, err
	}
	if err := s.promos.CanBeUsedBy(ctx, coupon, customer, now); err != nil {
		return Summary{}, err
	}

	summary, err := s.summarize(ctx, id, nil, now)
	if err != nil {
		return Summary{}, err
	}
	if summary.IsEmpty() {
		return Summary{}, ErrEmptyCart
	}
	if coupon.MinimumOrderAmount != nil && summary.Subtotal.LessThan(*coupon.MinimumOrderAmount) {
		return Summary{}, promotion.ErrCouponMinimumUnmet
	}
	applicable := applicableSubtotal(coupon, summary.Lines)
	if coupon.IsRestricted() && applicable.IsZero() {
		return Summary{}, promotion.ErrCouponInvalid
	}

	if err := s.store.SetAppliedCoupon(ctx, id, coupon.Code); err != nil {
		return Summary{}, err
	}
	return s.Summary(ctx, id, customer, now)
}

func (s *Service) RemoveCoupon(ctx context.Context, id Identity) error {
	if !id.Valid() {
		return ErrNoIdentity
	}
	return s.store.ClearAppliedCoupon(ctx, id)
}

// Summary computes subtotal, discount, and total for the cart. A coupon in
// the applied slot that has since become invalid is silently cleared and
// contributes no discount; browsing the cart never fails over it.
func (s *Service) Summary(ctx context.Context, id Identity, customer promotion.CustomerIdentity, now time.Time) (Summary, error) {
	if !id.Valid() {
		return Summary{}, ErrNoIdentity
	}
	code, err := s.store.AppliedCouponCode(ctx, id)
	if err != nil {
		return Summary{}, err
	}

	var coupon *promotion.Coupon
	if code != "" {
		coupon, err = s.promos.GetCoupon(ctx, code)
		if err == nil {
			err = s.promos.CanBeUsedBy(ctx, coupon, customer, now)
		}
		if err != nil {
			if !isCouponRejection(err) {
				return Summary{}, err
			}
			// Coupon no longer valid: drop it instead of failing the view.
			if clearErr := s.store.ClearAppliedCoupon(ctx, id); clearErr != nil {
				return Summary{}, clearErr
			}
			coupon = nil
		}
	}

	return s.summarize(ctx, id, coupon, now)
}

func (s *Service) summarize(ctx context.Context, id Identity, coupon *promotion.Coupon, now time.Time) (Summary, error) {
	lines, err := s.store.Lines(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	sales, err := s.promos.ActiveSales(ctx, now)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Total:    decimal.Zero,
	}
	for _, line := range lines {
		p, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				continue
			}
			return Summary{}, err
		}
		unit := promotion.EffectiveUnitPrice(p, sales, now)
		lineTotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
		summary.Lines = append(summary.Lines, SummaryLine{
			ProductID:  p.ID,
			Name:       p.Name,
			CategoryID: p.CategoryID,
			UnitPrice:  unit,
			Quantity:   line.Quantity,
			LineTotal:  lineTotal,
		})
		summary.Subtotal = summary.Subtotal.Add(lineTotal)
	}

	if coupon != nil {
		summary.CouponCode = coupon.Code
		applicable := applicableSubtotal(coupon, summary.Lines)
		summary.Discount = coupon.CalculateDiscountOn(summary.Subtotal, applicable)
	}

	summary.Total = summary.Subtotal.Sub(summary.Discount)
	if summary.Total.IsNegative() {
		summary.Total = decimal.Zero
	}
	return summary, nil
}

// applicableSubtotal sums the lines that fall under the coupon's
// restriction sets; for an unrestricted coupon that is the whole cart.
func applicableSubtotal(coupon *promotion.Coupon, lines []SummaryLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if lineApplicable(coupon, line) {
			total = total.Add(line.LineTotal)
		}
	}
	return total
}

func lineApplicable(coupon *promotion.Coupon, line SummaryLine) bool {
	if !coupon.IsRestricted() {
		return true
	}
	for _, id := range coupon.ProductIDs {
		if id == line.ProductID {
			return true
		}
	}
	if line.CategoryID != "" {
		for _, id := range coupon.CategoryIDs {
			if id == line.CategoryID {
				return true
			}
		}
	}
	return false
}

func isCouponRejection(err error) bool {
	return errors.Is(err, promotion.ErrCouponNotFound) ||
		errors.Is(err, promotion.ErrCouponInvalid) ||
		errors.Is(err, promotion.ErrCouponLimitReached) ||
		errors.Is(err, promotion.ErrCustomerLimitReached)
}
