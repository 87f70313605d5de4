package store

import (
	"context"
	"database/sql"

	"github.com/example/storefront/internal/domain/shipping"
	"github.com/lib/pq"
)

// ZoneStore persists shipping zones. Position drives resolution order, so
// every listing is sorted by it.
type ZoneStore struct {
	db *sql.DB
}

func NewZoneStore(db *sql.DB) *ZoneStore {
	return &ZoneStore{db: db}
}

const zoneColumns = `id, name, areas, shipping_cost, delivery_time_min, delivery_time_max,
	is_active, position, created_at, updated_at`

func scanZone(row interface{ Scan(...any) error }) (*shipping.Zone, error) {
	var z shipping.Zone
	err := row.Scan(&z.ID, &z.Name, pq.Array(&z.Areas), &z.ShippingCost,
		&z.DeliveryTimeMin, &z.DeliveryTimeMax, &z.IsActive, &z.Position,
		&z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &z, nil
}

func (s *ZoneStore) listZones(ctx context.Context, activeOnly bool) ([]*shipping.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM shipping_zones`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY position ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []*shipping.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

func (s *ZoneStore) ListActiveZones(ctx context.Context) ([]*shipping.Zone, error) {
	return s.listZones(ctx, true)
}

func (s *ZoneStore) ListZones(ctx context.Context) ([]*shipping.Zone, error) {
	return s.listZones(ctx, false)
}

func (s *ZoneStore) GetZone(ctx context.Context, id string) (*shipping.Zone, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+zoneColumns+` FROM shipping_zones WHERE id = $1`, id)
	z, err := scanZone(row)
	if err == sql.ErrNoRows {
		return nil, shipping.ErrZoneNotFound
	}
	return z, err
}

func (s *ZoneStore) InsertZone(ctx context.Context, z *shipping.Zone) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shipping_zones (id, name, areas, shipping_cost, delivery_time_min,
			delivery_time_max, is_active, position, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		z.ID, z.Name, pq.Array(z.Areas), z.ShippingCost, z.DeliveryTimeMin,
		z.DeliveryTimeMax, z.IsActive, z.Position, z.CreatedAt, z.UpdatedAt)
	return err
}

func (s *ZoneStore) UpdateZone(ctx context.Context, z *shipping.Zone) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipping_zones SET name = $2, areas = $3, shipping_cost = $4,
			delivery_time_min = $5, delivery_time_max = $6, is_active = $7,
			position = $8, updated_at = $9
		 WHERE id = $1`,
		z.ID, z.Name, pq.Array(z.Areas), z.ShippingCost, z.DeliveryTimeMin,
		z.DeliveryTimeMax, z.IsActive, z.Position, z.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shipping.ErrZoneNotFound
	}
	return nil
}

func (s *ZoneStore) DeleteZone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shipping_zones WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shipping.ErrZoneNotFound
	}
	return nil
}
