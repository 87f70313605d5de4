package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerIdentity identifies the redeeming customer for per-customer
// limits. The user ID is preferred over the email; when both are empty the
// per-customer check is skipped (permissive by policy, see DESIGN.md).
type CustomerIdentity struct {
	UserID string
	Email  string
}

func (ci CustomerIdentity) IsAnonymous() bool {
	return ci.UserID == "" && ci.Email == ""
}

type CouponStore interface {
	GetCouponByCode(ctx context.Context, code string) (*Coupon, error)
	ListCoupons(ctx context.Context) ([]*Coupon, error)
	InsertCoupon(ctx context.Context, c *Coupon) error
	UpdateCoupon(ctx context.Context, c *Coupon) error
	DeleteCoupon(ctx context.Context, id string) error

	// CountUsageByUser / CountUsageByEmail count prior redemptions for the
	// per-customer limit.
	CountUsageByUser(ctx context.Context, couponID, userID string) (int, error)
	CountUsageByEmail(ctx context.Context, couponID, email string) (int, error)
}

type SaleStore interface {
	ListFlashSales(ctx context.Context) ([]*FlashSale, error)
	GetFlashSale(ctx context.Context, id string) (*FlashSale, error)
	InsertFlashSale(ctx context.Context, f *FlashSale) error
	UpdateFlashSale(ctx context.Context, f *FlashSale) error
	DeleteFlashSale(ctx context.Context, id string) error
}

type Service struct {
	coupons CouponStore
	sales   SaleStore
}

func NewService(coupons CouponStore, sales SaleStore) *Service {
	return &Service{coupons: coupons, sales: sales}
}

// GetCoupon looks a coupon up by code, case-insensitively.
func (s *Service) GetCoupon(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return nil, ErrCouponNotFound
	}
	return s.coupons.GetCouponByCode(ctx, code)
}

// CanBeUsedBy checks validity plus the per-customer limit for the given
// identity.
func (s *Service) CanBeUsedBy(ctx context.Context, c *Coupon, identity CustomerIdentity, now time.Time) error {
	if !c.IsValid(now) {
		if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
			return ErrCouponLimitReached
		}
		return ErrCouponInvalid
	}
	if c.PerCustomerLimit == nil || identity.IsAnonymous() {
		return nil
	}

	var (
		used int
		err  error
	)
	if identity.UserID != "" {
		used, err = s.coupons.CountUsageByUser(ctx, c.ID, identity.UserID)
	} else {
		used, err = s.coupons.CountUsageByEmail(ctx, c.ID, identity.Email)
	}
	if err != nil {
		return fmt.Errorf("count coupon usage: %w", err)
	}
	if used >= *c.PerCustomerLimit {
		return ErrCustomerLimitReached
	}
	return nil
}

// ActiveSales returns the sales whose effective status is active now.
func (s *Service) ActiveSales(ctx context.Context, now time.Time) ([]*FlashSale, error) {
	all, err := s.sales.ListFlashSales(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*FlashSale, 0, len(all))
	for _, f := range all {
		if f.EffectiveStatus(now) == SaleActive {
			active = append(active, f)
		}
	}
	return active, nil
}

// EffectiveUnitPrice returns the price a customer pays for one unit of the
// product right now: the product's base price reduced by the best active
// flash sale covering it, if any.
func EffectiveUnitPrice(p *catalog.Product, sales []*FlashSale, now time.Time) decimal.Decimal {
	price := p.BasePrice()
	best := price
	for _, f := range sales {
		if f.EffectiveStatus(now) != SaleActive || !f.Covers(p.ID, p.CategoryID) {
			continue
		}
		if discounted := f.DiscountedPrice(price); discounted.LessThan(best) {
			best = discounted
		}
	}
	return best
}

type CouponInput struct {
	Code               string           `json:"code"`
	Type               CouponType       `json:"type"`
	Value              decimal.Decimal  `json:"value"`
	MinimumOrderAmount *decimal.Decimal `json:"minimum_order_amount"`
	ProductIDs         []string         `json:"product_ids"`
	CategoryIDs        []string         `json:"category_ids"`
	UsageLimit         *int             `json:"usage_limit"`
	PerCustomerLimit   *int             `json:"per_customer_limit"`
	ValidFrom          time.Time        `json:"valid_from"`
	ValidUntil         *time.Time       `json:"valid_until"`
	Enabled            bool             `json:"enabled"`
}

func (in CouponInput) validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("code is required")
	}
	switch in.Type {
	case CouponPercentage:
		if in.Value.IsNegative() || in.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("percentage value must be between 0 and 100")
		}
	case CouponFixed:
		if in.Value.IsNegative() {
			return fmt.Errorf("fixed value must not be negative")
		}
	default:
		return fmt.Errorf("unknown coupon type %q", in.Type)
	}
	if in.ValidUntil != nil && in.ValidUntil.Before(in.ValidFrom) {
		return fmt.Errorf("valid_until must not precede valid_from")
	}
	return nil
}

func (s *Service) CreateCoupon(ctx context.Context, in CouponInput) (*Coupon, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	c := &Coupon{
		ID:                 uuid.New().String(),
		Code:               strings.ToUpper(strings.TrimSpace(in.Code)),
		Type:               in.Type,
		Value:              in.Value,
		MinimumOrderAmount: in.MinimumOrderAmount,
		ProductIDs:         in.ProductIDs,
		CategoryIDs:        in.CategoryIDs,
		UsageLimit:         in.UsageLimit,
		PerCustomerLimit:   in.PerCustomerLimit,
		ValidFrom:          in.ValidFrom,
		ValidUntil:         in.ValidUntil,
		Enabled:            in.Enabled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.coupons.InsertCoupon(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) UpdateCoupon(ctx context.Context, id string, in CouponInput) (*Coupon, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	coupons, err := s.coupons.ListCoupons(ctx)
	if err != nil {
		return nil, err
	}
	var c *Coupon
	for _, candidate := range coupons {
		if candidate.ID == id {
			c = candidate
			break
		}
	}
	if c == nil {
		return nil, ErrCouponNotFound
	}

	c.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	c.Type = in.Type
	c.Value = in.Value
	c.MinimumOrderAmount = in.MinimumOrderAmount
	c.ProductIDs = in.ProductIDs
	c.CategoryIDs = in.CategoryIDs
	c.UsageLimit = in.UsageLimit
	c.PerCustomerLimit = in.PerCustomerLimit
	c.ValidFrom = in.ValidFrom
	c.ValidUntil = in.ValidUntil
	c.Enabled = in.Enabled
	c.UpdatedAt = time.Now()

	if err := s.coupons.UpdateCoupon(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListCoupons(ctx context.Context) ([]*Coupon, error) {
	return s.coupons.ListCoupons(ctx)
}

func (s *Service) DeleteCoupon(ctx context.Context, id string) error {
	return s.coupons.DeleteCoupon(ctx, id)
}

func (s *Service) ListFlashSales(ctx context.Context) ([]*FlashSale, error) {
	return s.sales.ListFlashSales(ctx)
}

func (s *Service) CreateFlashSale(ctx context.Context, f *FlashSale) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if f.DiscountPercentage.IsNegative() || f.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("discount_percentage must be between 0 and 100")
	}
	if f.EndDate.Before(f.StartDate) {
		return fmt.Errorf("end_date must not precede start_date")
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	return s.sales.InsertFlashSale(ctx, f)
}

func (s *Service) UpdateFlashSale(ctx context.Context, f *FlashSale) error {
	f.UpdatedAt = time.Now()
	return s.sales.UpdateFlashSale(ctx, f)
}

func (s *Service) DeleteFlashSale(ctx context.Context, id string) error {
	return s.sales.DeleteFlashSale(ctx, id)
}
