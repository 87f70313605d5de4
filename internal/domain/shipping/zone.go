package shipping

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrZoneNotFound  = errors.New("shipping zone not found")
	ErrNoActiveZones = errors.New("no active shipping zones configured")
)

// Zone is a named delivery region with a flat shipping cost and a
// delivery-time range in days.
type Zone struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Areas           []string        `json:"areas"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	DeliveryTimeMin int             `json:"delivery_time_min"`
	DeliveryTimeMax int             `json:"delivery_time_max"`
	IsActive        bool            `json:"is_active"`
	Position        int             `json:"position"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EstimatedDelivery returns the latest expected delivery date for an order
// placed at the given time.
func (z *Zone) EstimatedDelivery(placedAt time.Time) time.Time {
	days := z.DeliveryTimeMax
	if days <= 0 {
		days = z.DeliveryTimeMin
	}
	return placedAt.AddDate(0, 0, days)
}

// Address is the structured delivery address submitted at checkout. Orders
// persist a snapshot of it, never a reference.
type Address struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	City         string `json:"city"`
	District     string `json:"district,omitempty"`
	Division     string `json:"division,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
}

func (a Address) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(a.Phone) == "" {
		return fmt.Errorf("phone is required")
	}
	if strings.TrimSpace(a.AddressLine1) == "" {
		return fmt.Errorf("address_line_1 is required")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("city is required")
	}
	return nil
}

// SearchTerms returns the matchable address fields in resolution priority
// order, blanks skipped.
func (a Address) SearchTerms() []string {
	var terms []string
	for _, field := range []string{a.City, a.District, a.Division, a.PostalCode} {
		if s := strings.TrimSpace(field); s != "" {
			terms = append(terms, s)
		}
	}
	return terms
}
