package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/google/uuid"
)

// CartStore persists cart lines and the applied-coupon slot, both keyed by
// user id or guest session id. The coupon lives in a cart_sessions row, not
// in any web session, so it follows the cart through login and merge.
type CartStore struct {
	db *sql.DB
}

func NewCartStore(db *sql.DB) *CartStore {
	return &CartStore{db: db}
}

// ownerClause returns the WHERE fragment and argument for a cart identity.
func ownerClause(id cart.Identity) (string, any) {
	if id.UserID != "" {
		return "user_id = $1", id.UserID
	}
	return "session_id = $1", id.SessionID
}

func (s *CartStore) Lines(ctx context.Context, id cart.Identity) ([]*cart.Line, error) {
	clause, arg := ownerClause(id)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, product_id, quantity, created_at, updated_at
		 FROM cart_items WHERE `+clause+` ORDER BY created_at ASC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCartLines(rows)
}

func scanCartLines(rows *sql.Rows) ([]*cart.Line, error) {
	var lines []*cart.Line
	for rows.Next() {
		var l cart.Line
		var userID, sessionID sql.NullString
		if err := rows.Scan(&l.ID, &userID, &sessionID, &l.ProductID, &l.Quantity,
			&l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.UserID = userID.String
		l.SessionID = sessionID.String
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

// AddLine adds quantity to an existing line for the product or creates one.
// The partial unique indexes on (user_id, product_id) and
// (session_id, product_id) make the upsert race-safe.
func (s *CartStore) AddLine(ctx context.Context, id cart.Identity, productID string, qty int) error {
	clause, arg := ownerClause(id)
	now := time.Now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = quantity + $2, updated_at = $3
		 WHERE `+clause+` AND product_id = $4`, arg, qty, now, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, user_id, session_id, product_id, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		uuid.New().String(), nullString(id.UserID), nullString(id.SessionID), productID, qty, now)
	return err
}

func (s *CartStore) SetQuantity(ctx context.Context, id cart.Identity, productID string, qty int) error {
	clause, arg := ownerClause(id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = $3
		 WHERE `+clause+` AND product_id = $4`, arg, qty, time.Now(), productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (s *CartStore) RemoveLine(ctx context.Context, id cart.Identity, productID string) error {
	clause, arg := ownerClause(id)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE `+clause+` AND product_id = $2`, arg, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (s *CartStore) ClearLines(ctx context.Context, id cart.Identity) error {
	clause, arg := ownerClause(id)
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE `+clause, arg)
	return err
}

// MergeGuestCart folds a guest cart into the user's cart in one
// transaction: quantities sum where both carts hold the product, remaining
// guest lines are re-owned, and the guest rows disappear. Running it again
// with the same session finds nothing and is a no-op.
func (s *CartStore) MergeGuestCart(ctx context.Context, sessionID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE cart_items u
		 SET quantity = u.quantity + g.quantity, updated_at = now()
		 FROM cart_items g
		 WHERE u.user_id = $1 AND g.session_id = $2 AND u.product_id = g.product_id`,
		userID, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items g
		 WHERE g.session_id = $1
		   AND EXISTS (SELECT 1 FROM cart_items u WHERE u.user_id = $2 AND u.product_id = g.product_id)`,
		sessionID, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE cart_items SET user_id = $2, session_id = NULL, updated_at = now()
		 WHERE session_id = $1`,
		sessionID, userID); err != nil {
		return err
	}

	// The guest's applied coupon moves with the cart unless the user
	// already has one.
	if _, err := tx.ExecContext(ctx,
		`UPDATE cart_sessions SET user_id = $2, session_id = NULL, updated_at = now()
		 WHERE session_id = $1
		   AND NOT EXISTS (SELECT 1 FROM cart_sessions WHERE user_id = $2)`,
		sessionID, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_sessions WHERE session_id = $1`, sessionID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *CartStore) AppliedCouponCode(ctx context.Context, id cart.Identity) (string, error) {
	clause, arg := ownerClause(id)
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT applied_coupon_code FROM cart_sessions WHERE `+clause, arg).Scan(&code)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *CartStore) SetAppliedCoupon(ctx context.Context, id cart.Identity, code string) error {
	clause, arg := ownerClause(id)
	now := time.Now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_sessions SET applied_coupon_code = $2, updated_at = $3 WHERE `+clause,
		arg, code, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cart_sessions (id, user_id, session_id, applied_coupon_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		uuid.New().String(), nullString(id.UserID), nullString(id.SessionID), code, now)
	return err
}

func (s *CartStore) ClearAppliedCoupon(ctx context.Context, id cart.Identity) error {
	clause, arg := ownerClause(id)
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_sessions WHERE `+clause, arg)
	return err
}

// LinesTx reads the cart inside the checkout transaction.
func (s *CartStore) LinesTx(ctx context.Context, tx *sql.Tx, id cart.Identity) ([]*cart.Line, error) {
	clause, arg := ownerClause(id)
	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, session_id, product_id, quantity, created_at, updated_at
		 FROM cart_items WHERE `+clause+` ORDER BY created_at ASC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCartLines(rows)
}

func (s *CartStore) ClearLinesTx(ctx context.Context, tx *sql.Tx, id cart.Identity) error {
	clause, arg := ownerClause(id)
	_, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE `+clause, arg)
	return err
}

func (s *CartStore) AppliedCouponCodeTx(ctx context.Context, tx *sql.Tx, id cart.Identity) (string, error) {
	clause, arg := ownerClause(id)
	var code string
	err := tx.QueryRowContext(ctx,
		`SELECT applied_coupon_code FROM cart_sessions WHERE `+clause, arg).Scan(&code)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *CartStore) ClearAppliedCouponTx(ctx context.Context, tx *sql.Tx, id cart.Identity) error {
	clause, arg := ownerClause(id)
	_, err := tx.ExecContext(ctx, `DELETE FROM cart_sessions WHERE `+clause, arg)
	return err
}
