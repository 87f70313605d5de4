package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/shipping"
)

// OrderStore persists orders, their immutable item snapshots, and the
// append-only status history. Writes happen inside the checkout or
// transition transaction; reads come straight off the pool.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, order_number, user_id, guest_email, status, subtotal,
	discount_amount, shipping_cost, total, coupon_code, shipping_address,
	billing_address, payment_method, estimated_delivery, delivered_at,
	created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	var o order.Order
	var userID, guestEmail, couponCode sql.NullString
	var shippingAddr, billingAddr []byte
	var deliveredAt sql.NullTime
	err := row.Scan(&o.ID, &o.OrderNumber, &userID, &guestEmail, &o.Status,
		&o.Subtotal, &o.DiscountAmount, &o.ShippingCost, &o.Total, &couponCode,
		&shippingAddr, &billingAddr, &o.PaymentMethod, &o.EstimatedDelivery,
		&deliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.UserID = userID.String
	o.GuestEmail = guestEmail.String
	o.CouponCode = couponCode.String
	o.DeliveredAt = timePtr(deliveredAt)
	if err := json.Unmarshal(shippingAddr, &o.ShippingAddress); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(billingAddr, &o.BillingAddress); err != nil {
		return nil, err
	}
	return &o, nil
}

func marshalAddress(a shipping.Address) ([]byte, error) {
	return json.Marshal(a)
}

func (s *OrderStore) InsertOrder(ctx context.Context, tx *sql.Tx, o *order.Order) error {
	shippingAddr, err := marshalAddress(o.ShippingAddress)
	if err != nil {
		return err
	}
	billingAddr, err := marshalAddress(o.BillingAddress)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, order_number, user_id, guest_email, status, subtotal,
			discount_amount, shipping_cost, total, coupon_code, shipping_address,
			billing_address, payment_method, estimated_delivery, delivered_at,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.OrderNumber, nullString(o.UserID), nullString(o.GuestEmail), o.Status,
		o.Subtotal, o.DiscountAmount, o.ShippingCost, o.Total, nullString(o.CouponCode),
		shippingAddr, billingAddr, o.PaymentMethod, o.EstimatedDelivery,
		nullTime(o.DeliveredAt), o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *OrderStore) InsertItem(ctx context.Context, tx *sql.Tx, item *order.Item) error {
	snapshot, err := json.Marshal(item.Snapshot)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_items (id, order_id, product_id, quantity, price, subtotal, product_snapshot)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.Subtotal, snapshot)
	return err
}

func (s *OrderStore) InsertStatusChange(ctx context.Context, tx *sql.Tx, ch *order.StatusChange) error {
	var from any
	if ch.FromStatus != nil {
		from = string(*ch.FromStatus)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (id, order_id, from_status, to_status, comment, changed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ch.ID, ch.OrderID, from, ch.ToStatus, nullString(ch.Comment), ch.ChangedBy, ch.CreatedAt)
	return err
}

func (s *OrderStore) OrderNumberExists(ctx context.Context, tx *sql.Tx, number string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	return exists, err
}

func (s *OrderStore) GetOrderForUpdate(ctx context.Context, tx *sql.Tx, orderID string) (*order.Order, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Items, err = s.loadItemsTx(ctx, tx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, orderID string, status order.Status, deliveredAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, delivered_at = $3, updated_at = now() WHERE id = $1`,
		orderID, status, nullTime(deliveredAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return s.finishOrder(ctx, row)
}

func (s *OrderStore) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	return s.finishOrder(ctx, row)
}

func (s *OrderStore) finishOrder(ctx context.Context, row *sql.Row) (*order.Order, error) {
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Items, err = s.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(ctx, rows)
}

func (s *OrderStore) ListOrders(ctx context.Context, limit, offset int) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(ctx, rows)
}

func (s *OrderStore) collectOrders(ctx context.Context, rows *sql.Rows) ([]*order.Order, error) {
	defer rows.Close()
	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range orders {
		items, err := s.loadItems(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
	}
	return orders, nil
}

const itemColumns = `id, order_id, product_id, quantity, price, subtotal, product_snapshot`

func scanItems(rows *sql.Rows) ([]*order.Item, error) {
	defer rows.Close()
	var items []*order.Item
	for rows.Next() {
		var item order.Item
		var snapshot []byte
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.Price, &item.Subtotal, &snapshot); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *OrderStore) loadItems(ctx context.Context, orderID string) ([]*order.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (s *OrderStore) loadItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]*order.Item, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (s *OrderStore) History(ctx context.Context, orderID string) ([]*order.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, from_status, to_status, comment, changed_by, created_at
		 FROM order_status_history WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*order.StatusChange
	for rows.Next() {
		var ch order.StatusChange
		var from sql.NullString
		var comment sql.NullString
		if err := rows.Scan(&ch.ID, &ch.OrderID, &from, &ch.ToStatus, &comment,
			&ch.ChangedBy, &ch.CreatedAt); err != nil {
			return nil, err
		}
		if from.Valid {
			st := order.Status(from.String)
			ch.FromStatus = &st
		}
		ch.Comment = comment.String
		history = append(history, &ch)
	}
	return history, rows.Err()
}

// UserEmail resolves a registered customer's address for order events.
// Unknown users come back empty rather than as an error; notification is
// best-effort.
func (s *OrderStore) UserEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx,
		`SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email, err
}
