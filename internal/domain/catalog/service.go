package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence surface the catalog service needs. The
// PostgreSQL implementation lives in internal/infrastructure/store.
type Store interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, error)
	InsertProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id string) error

	GetCategory(ctx context.Context, id string) (*Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]*Category, error)
	InsertCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id string) error
}

type ProductFilter struct {
	CategoryID string
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type ProductInput struct {
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	SKU               string           `json:"sku"`
	Price             decimal.Decimal  `json:"price"`
	SalePrice         *decimal.Decimal `json:"sale_price"`
	StockQuantity     int              `json:"stock_quantity"`
	ManageStock       bool             `json:"manage_stock"`
	AllowBackorders   bool             `json:"allow_backorders"`
	HasUnlimitedStock bool             `json:"has_unlimited_stock"`
	CategoryID        string           `json:"category_id"`
	IsActive          bool             `json:"is_active"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if in.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if in.SalePrice != nil && in.SalePrice.IsNegative() {
		return ErrInvalidPrice
	}
	if in.ManageStock && !in.HasUnlimitedStock && in.StockQuantity < 0 {
		return fmt.Errorf("stock_quantity must not be negative when stock is managed")
	}
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, error) {
	return s.store.ListProducts(ctx, filter)
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.CategoryID != "" {
		if _, err := s.store.GetCategory(ctx, in.CategoryID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	p := &Product{
		ID:                uuid.New().String(),
		Name:              in.Name,
		Description:       in.Description,
		SKU:               in.SKU,
		Price:             in.Price,
		SalePrice:         in.SalePrice,
		StockQuantity:     in.StockQuantity,
		ManageStock:       in.ManageStock,
		AllowBackorders:   in.AllowBackorders,
		HasUnlimitedStock: in.HasUnlimitedStock,
		CategoryID:        in.CategoryID,
		IsActive:          in.IsActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.InsertProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Name = in.Name
	p.Description = in.Description
	p.SKU = in.SKU
	p.Price = in.Price
	p.SalePrice = in.SalePrice
	p.StockQuantity = in.StockQuantity
	p.ManageStock = in.ManageStock
	p.AllowBackorders = in.AllowBackorders
	p.HasUnlimitedStock = in.HasUnlimitedStock
	p.CategoryID = in.CategoryID
	p.IsActive = in.IsActive
	p.UpdatedAt = time.Now()

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct removes a product. The store rejects the deletion with
// ErrProductInUse while cart lines or order items still reference it.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.store.DeleteProduct(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]*Category, error) {
	return s.store.ListCategories(ctx, activeOnly)
}

func (s *Service) CreateCategory(ctx context.Context, name, slug string, active bool) (*Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if slug == "" {
		slug = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	}
	now := time.Now()
	c := &Category{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, c *Category) error {
	c.UpdatedAt = time.Now()
	return s.store.UpdateCategory(ctx, c)
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.store.DeleteCategory(ctx, id)
}
