package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/storefront/internal/domain/catalog"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ProductStore persists the catalog. It also serves the checkout path,
// which locks product rows inside its own transaction.
type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

const productColumns = `id, name, description, sku, price, sale_price, stock_quantity,
	manage_stock, allow_backorders, has_unlimited_stock, category_id, is_active,
	created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*catalog.Product, error) {
	var p catalog.Product
	var salePrice decimal.NullDecimal
	var categoryID sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.Price, &salePrice,
		&p.StockQuantity, &p.ManageStock, &p.AllowBackorders, &p.HasUnlimitedStock,
		&categoryID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if salePrice.Valid {
		p.SalePrice = &salePrice.Decimal
	}
	p.CategoryID = categoryID.String
	return &p, nil
}

func (s *ProductStore) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadImages(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProductStore) ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]*catalog.Product, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active = true")
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range products {
		if err := s.loadImages(ctx, p); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func (s *ProductStore) InsertProduct(ctx context.Context, p *catalog.Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, description, sku, price, sale_price, stock_quantity,
			manage_stock, allow_backorders, has_unlimited_stock, category_id, is_active,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.Name, p.Description, p.SKU, p.Price, nullDecimal(p.SalePrice),
		p.StockQuantity, p.ManageStock, p.AllowBackorders, p.HasUnlimitedStock,
		nullString(p.CategoryID), p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	return s.replaceImages(ctx, p)
}

func (s *ProductStore) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = $2, description = $3, sku = $4, price = $5,
			sale_price = $6, stock_quantity = $7, manage_stock = $8,
			allow_backorders = $9, has_unlimited_stock = $10, category_id = $11,
			is_active = $12, updated_at = $13
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.SKU, p.Price, nullDecimal(p.SalePrice),
		p.StockQuantity, p.ManageStock, p.AllowBackorders, p.HasUnlimitedStock,
		nullString(p.CategoryID), p.IsActive, p.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrProductNotFound
	}
	return s.replaceImages(ctx, p)
}

// DeleteProduct removes a product unless order items still reference it.
// The foreign key from order_items is RESTRICT, so the violation maps to
// a domain error instead of leaking a pq error to callers.
func (s *ProductStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			return catalog.ErrProductInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (s *ProductStore) loadImages(ctx context.Context, p *catalog.Product) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, url, is_primary, position
		 FROM product_images WHERE product_id = $1 ORDER BY position ASC`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var img catalog.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.IsPrimary, &img.Position); err != nil {
			return err
		}
		p.Images = append(p.Images, img)
	}
	return rows.Err()
}

func (s *ProductStore) replaceImages(ctx context.Context, p *catalog.Product) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM product_images WHERE product_id = $1`, p.ID); err != nil {
		return err
	}
	for _, img := range p.Images {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO product_images (id, product_id, url, is_primary, position)
			 VALUES ($1, $2, $3, $4, $5)`,
			img.ID, p.ID, img.URL, img.IsPrimary, img.Position); err != nil {
			return err
		}
	}
	return nil
}

// GetProductForUpdate reads a product under FOR UPDATE so checkout and
// status transitions see stock no concurrent transaction can move.
func (s *ProductStore) GetProductForUpdate(ctx context.Context, tx *sql.Tx, productID string) (*catalog.Product, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadImagesTx(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProductStore) loadImagesTx(ctx context.Context, tx *sql.Tx, p *catalog.Product) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, product_id, url, is_primary, position
		 FROM product_images WHERE product_id = $1 ORDER BY position ASC`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var img catalog.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.IsPrimary, &img.Position); err != nil {
			return err
		}
		p.Images = append(p.Images, img)
	}
	return rows.Err()
}

// AdjustStock applies a stock delta to a row already locked in this
// transaction. The CHECK constraint refuses a negative balance unless the
// product allows backorders, backstopping the service-level validation.
func (s *ProductStore) AdjustStock(ctx context.Context, tx *sql.Tx, productID string, delta int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		 WHERE id = $1`, productID, delta)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "check_violation" {
			return catalog.ErrInsufficientStock
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (s *ProductStore) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	var c catalog.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, is_active, created_at, updated_at
		 FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Slug, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, catalog.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ProductStore) ListCategories(ctx context.Context, activeOnly bool) ([]*catalog.Category, error) {
	query := `SELECT id, name, slug, is_active, created_at, updated_at FROM categories`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

func (s *ProductStore) InsertCategory(ctx context.Context, c *catalog.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Slug, c.IsActive, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *ProductStore) UpdateCategory(ctx context.Context, c *catalog.Category) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = $2, slug = $3, is_active = $4, updated_at = $5
		 WHERE id = $1`,
		c.ID, c.Name, c.Slug, c.IsActive, c.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

func (s *ProductStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}
