package store

import (
	"context"
	"database/sql"

	"github.com/example/storefront/internal/domain/promotion"
	"github.com/lib/pq"
)

type SaleStore struct {
	db *sql.DB
}

func NewSaleStore(db *sql.DB) *SaleStore {
	return &SaleStore{db: db}
}

const saleColumns = `id, name, discount_percentage, product_ids, category_ids,
	start_date, end_date, max_usage, used_count, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (*promotion.FlashSale, error) {
	var f promotion.FlashSale
	var maxUsage sql.NullInt64
	err := row.Scan(&f.ID, &f.Name, &f.DiscountPercentage,
		pq.Array(&f.ProductIDs), pq.Array(&f.CategoryIDs),
		&f.StartDate, &f.EndDate, &maxUsage, &f.UsedCount, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.MaxUsage = intPtr(maxUsage)
	return &f, nil
}

func (s *SaleStore) ListFlashSales(ctx context.Context) ([]*promotion.FlashSale, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+saleColumns+` FROM flash_sales ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*promotion.FlashSale
	for rows.Next() {
		f, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, f)
	}
	return sales, rows.Err()
}

func (s *SaleStore) GetFlashSale(ctx context.Context, id string) (*promotion.FlashSale, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM flash_sales WHERE id = $1`, id)
	f, err := scanSale(row)
	if err == sql.ErrNoRows {
		return nil, promotion.ErrSaleNotFound
	}
	return f, err
}

func (s *SaleStore) InsertFlashSale(ctx context.Context, f *promotion.FlashSale) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flash_sales (id, name, discount_percentage, product_ids, category_ids,
			start_date, end_date, max_usage, used_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.Name, f.DiscountPercentage, pq.Array(f.ProductIDs), pq.Array(f.CategoryIDs),
		f.StartDate, f.EndDate, nullInt(f.MaxUsage), f.UsedCount, f.CreatedAt, f.UpdatedAt)
	return err
}

func (s *SaleStore) UpdateFlashSale(ctx context.Context, f *promotion.FlashSale) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flash_sales SET name = $2, discount_percentage = $3, product_ids = $4,
			category_ids = $5, start_date = $6, end_date = $7, max_usage = $8, updated_at = $9
		 WHERE id = $1`,
		f.ID, f.Name, f.DiscountPercentage, pq.Array(f.ProductIDs), pq.Array(f.CategoryIDs),
		f.StartDate, f.EndDate, nullInt(f.MaxUsage), f.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrSaleNotFound
	}
	return nil
}

func (s *SaleStore) DeleteFlashSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flash_sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return promotion.ErrSaleNotFound
	}
	return nil
}
