package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not available")
	ErrProductInUse      = errors.New("product is referenced by open carts or orders")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidPrice      = errors.New("price must not be negative")
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProductImage struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary"`
	Position  int    `json:"position"`
}

type Product struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	SKU               string           `json:"sku"`
	Price             decimal.Decimal  `json:"price"`
	SalePrice         *decimal.Decimal `json:"sale_price,omitempty"`
	StockQuantity     int              `json:"stock_quantity"`
	ManageStock       bool             `json:"manage_stock"`
	AllowBackorders   bool             `json:"allow_backorders"`
	HasUnlimitedStock bool             `json:"has_unlimited_stock"`
	CategoryID        string           `json:"category_id"`
	IsActive          bool             `json:"is_active"`
	Images            []ProductImage   `json:"images,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// BasePrice returns the price a customer pays before any promotion is
// applied: the sale price when one is set below the regular price.
func (p *Product) BasePrice() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.LessThan(p.Price) {
		return *p.SalePrice
	}
	return p.Price
}

// TracksStock reports whether stock bookkeeping applies to this product.
func (p *Product) TracksStock() bool {
	return p.ManageStock && !p.HasUnlimitedStock
}

// CanFulfill reports whether an order for qty units can be taken against
// current stock. Backorders bypass the stock check entirely.
func (p *Product) CanFulfill(qty int) bool {
	if qty <= 0 {
		return false
	}
	if !p.TracksStock() || p.AllowBackorders {
		return true
	}
	return p.StockQuantity >= qty
}

// PrimaryImageURL returns the primary image, or the first one, or "".
func (p *Product) PrimaryImageURL() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}
