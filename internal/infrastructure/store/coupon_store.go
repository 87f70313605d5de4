package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/storefront/internal/domain/promotion"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CouponStore persists coupons and their redemption log. The checkout path
// locks the coupon row so two concurrent orders cannot both take the last
// redemption.
type CouponStore struct {
	db *sql.DB
}

func NewCouponStore(db *sql.DB) *CouponStore {
	return &CouponStore{db: db}
}

const couponColumns = `id, code, type, value, minimum_order_amount, product_ids, category_ids,
	usage_limit, used_count, per_customer_limit, valid_from, valid_until, enabled,
	created_at, updated_at`

func scanCoupon(row interface{ Scan(...any) error }) (*promotion.Coupon, error) {
	var c promotion.Coupon
	var minAmount decimal.NullDecimal
	var usageLimit, perCustomer sql.NullInt64
	var validUntil sql.NullTime
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &minAmount,
		pq.Array(&c.ProductIDs), pq.Array(&c.CategoryIDs),
		&usageLimit, &c.UsedCount, &perCustomer, &c.ValidFrom, &validUntil,
		&c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.MinimumOrderAmount = decimalPtr(minAmount)
	c.UsageLimit = intPtr(usageLimit)
	c.PerCustomerLimit = intPtr(perCustomer)
	c.ValidUntil = timePtr(validUntil)
	return &c, nil
}

func (s *CouponStore) GetCouponByCode(ctx context.Context, code string) (*promotion.Coupon, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, strings.ToUpper(code))
	c, err := scanCoupon(row)
	if err == sql.ErrNoRows {
		return nil, promotion.ErrCouponNotFound
	}
	return c, err
}

func (s *CouponStore) ListCoupons(ctx context.Context) ([]*promotion.Coupon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []*promotion.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

func (s *CouponStore) InsertCoupon(ctx context.Context, c *promotion.Coupon) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coupons (id, code, type, value, minimum_order_amount, product_ids,
			category_ids, usage_limit, used_count, per_customer_limit, valid_from,
			valid_until, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.Code, c.Type, c.Value, nullDecimal(c.MinimumOrderAmount),
		pq.Array(c.ProductIDs), pq.Array(c.CategoryIDs), nullInt(c.UsageLimit),
		c.UsedCount, nullInt(c.PerCustomerLimit), c.ValidFrom, nullTime(c.ValidUntil),
		c.Enabled, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *CouponStore) UpdateCoupon(ctx context.Context, c *promotion.Coupon) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET code = $2, type = $3, value = $4, minimum_order_amount = $5,
			product_ids = $6, category_ids = $7, usage_limit = $8, per_customer_limit = $9,
			valid_from = $10, valid_until = $11, enabled = $12, updated_at = $13
		 WHERE id = $1`,
		c.ID, c.Code, c.Type, c.Value, nullDecimal(c.MinimumOrderAmount),
		pq.Array(c.ProductIDs), pq.Array(c.CategoryIDs), nullInt(c.UsageLimit),
		nullInt(c.PerCustomerLimit), c.ValidFrom, nullTime(c.ValidUntil),
		c.Enabled, c.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrCouponNotFound
	}
	return nil
}

func (s *CouponStore) DeleteCoupon(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrCouponNotFound
	}
	return nil
}

func (s *CouponStore) CountUsageByUser(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID).Scan(&n)
	return n, err
}

func (s *CouponStore) CountUsageByEmail(ctx context.Context, couponID, email string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND customer_email = $2`,
		couponID, email).Scan(&n)
	return n, err
}

// GetCouponByCodeForUpdate locks the coupon row for the checkout
// transaction, serializing redemptions against the usage limit.
func (s *CouponStore) GetCouponByCodeForUpdate(ctx context.Context, tx *sql.Tx, code string) (*promotion.Coupon, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`, strings.ToUpper(code))
	c, err := scanCoupon(row)
	if err == sql.ErrNoRows {
		return nil, promotion.ErrCouponNotFound
	}
	return c, err
}

func (s *CouponStore) IncrementCouponUsage(ctx context.Context, tx *sql.Tx, couponID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1, updated_at = now() WHERE id = $1`,
		couponID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrCouponNotFound
	}
	return nil
}

func (s *CouponStore) InsertCouponUsage(ctx context.Context, tx *sql.Tx, u *promotion.CouponUsage) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO coupon_usages (id, coupon_id, order_id, user_id, customer_email,
			discount_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.CouponID, u.OrderID, nullString(u.UserID), nullString(u.CustomerEmail),
		u.DiscountAmount, u.CreatedAt)
	return err
}

func (s *CouponStore) CountUsageByUserTx(ctx context.Context, tx *sql.Tx, couponID, userID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID).Scan(&n)
	return n, err
}

func (s *CouponStore) CountUsageByEmailTx(ctx context.Context, tx *sql.Tx, couponID, email string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND customer_email = $2`,
		couponID, email).Scan(&n)
	return n, err
}
