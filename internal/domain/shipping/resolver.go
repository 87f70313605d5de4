package shipping

import (
	"context"
	"strings"
)

type ZoneStore interface {
	// ListActiveZones returns active zones in storage order.
	ListActiveZones(ctx context.Context) ([]*Zone, error)
	ListZones(ctx context.Context) ([]*Zone, error)
	GetZone(ctx context.Context, id string) (*Zone, error)
	InsertZone(ctx context.Context, z *Zone) error
	UpdateZone(ctx context.Context, z *Zone) error
	DeleteZone(ctx context.Context, id string) error
}

type Resolver struct {
	store ZoneStore
}

func NewResolver(store ZoneStore) *Resolver {
	return &Resolver{store: store}
}

// FindForAddress matches the address against the active zones' area lists:
// zones in storage order, terms in priority order, case-insensitive
// substring match. The first zone with any match wins. When nothing
// matches, the first active zone is the defined fallback so checkout still
// gets a shipping cost. ErrNoActiveZones is a hard stop for checkout.
func (r *Resolver) FindForAddress(ctx context.Context, addr Address) (*Zone, error) {
	zones, err := r.store.ListActiveZones(ctx)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, ErrNoActiveZones
	}

	terms := addr.SearchTerms()
	for _, zone := range zones {
		if zoneMatches(zone, terms) {
			return zone, nil
		}
	}
	return zones[0], nil
}

func zoneMatches(zone *Zone, terms []string) bool {
	for _, term := range terms {
		term = strings.ToLower(term)
		for _, area := range zone.Areas {
			area = strings.ToLower(strings.TrimSpace(area))
			if area == "" {
				continue
			}
			if strings.Contains(area, term) || strings.Contains(term, area) {
				return true
			}
		}
	}
	return false
}
