package shipping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ZoneInput is the admin payload for creating or updating a zone.
type ZoneInput struct {
	Name            string          `json:"name"`
	Areas           []string        `json:"areas"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	DeliveryTimeMin int             `json:"delivery_time_min"`
	DeliveryTimeMax int             `json:"delivery_time_max"`
	IsActive        bool            `json:"is_active"`
	Position        int             `json:"position"`
}

func (in ZoneInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if in.ShippingCost.IsNegative() {
		return fmt.Errorf("shipping_cost must not be negative")
	}
	if in.DeliveryTimeMin < 0 || in.DeliveryTimeMax < in.DeliveryTimeMin {
		return fmt.Errorf("delivery time range is invalid")
	}
	return nil
}

func (r *Resolver) ListZones(ctx context.Context) ([]*Zone, error) {
	return r.store.ListZones(ctx)
}

func (r *Resolver) GetZone(ctx context.Context, id string) (*Zone, error) {
	return r.store.GetZone(ctx, id)
}

func (r *Resolver) CreateZone(ctx context.Context, in ZoneInput) (*Zone, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	z := &Zone{
		ID:              uuid.New().String(),
		Name:            strings.TrimSpace(in.Name),
		Areas:           in.Areas,
		ShippingCost:    in.ShippingCost,
		DeliveryTimeMin: in.DeliveryTimeMin,
		DeliveryTimeMax: in.DeliveryTimeMax,
		IsActive:        in.IsActive,
		Position:        in.Position,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.store.InsertZone(ctx, z); err != nil {
		return nil, err
	}
	return z, nil
}

func (r *Resolver) UpdateZone(ctx context.Context, id string, in ZoneInput) (*Zone, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	z, err := r.store.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}

	z.Name = strings.TrimSpace(in.Name)
	z.Areas = in.Areas
	z.ShippingCost = in.ShippingCost
	z.DeliveryTimeMin = in.DeliveryTimeMin
	z.DeliveryTimeMax = in.DeliveryTimeMax
	z.IsActive = in.IsActive
	z.Position = in.Position
	z.UpdatedAt = time.Now()

	if err := r.store.UpdateZone(ctx, z); err != nil {
		return nil, err
	}
	return z, nil
}

func (r *Resolver) DeleteZone(ctx context.Context, id string) error {
	return r.store.DeleteZone(ctx, id)
}
