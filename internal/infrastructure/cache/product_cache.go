package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/storefront/internal/domain/catalog"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	productKeyPrefix = "product:"
	productTTL       = 5 * time.Minute
)

// Store is the catalog surface the cache fronts, including the
// transactional stock methods checkout and cancellation go through.
type Store interface {
	catalog.Store
	GetProductForUpdate(ctx context.Context, tx *sql.Tx, productID string) (*catalog.Product, error)
	AdjustStock(ctx context.Context, tx *sql.Tx, productID string, delta int) error
}

// ProductCache is a read-through Redis cache in front of the catalog
// store. Every Redis call goes through a circuit breaker: when Redis is
// down or slow, reads fall straight through to PostgreSQL instead of
// stacking up timeouts.
type ProductCache struct {
	next Store
	rdb  *redis.Client
	cb   *gobreaker.CircuitBreaker
	log  *logrus.Logger
}

func NewProductCache(next Store, rdb *redis.Client, log *logrus.Logger) *ProductCache {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "product-cache",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("cache breaker state change")
		},
	})
	return &ProductCache{next: next, rdb: rdb, cb: cb, log: log}
}

func productKey(id string) string {
	return productKeyPrefix + id
}

func (c *ProductCache) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	if cached := c.readCached(ctx, id); cached != nil {
		return cached, nil
	}

	p, err := c.next.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	c.writeCached(ctx, p)
	return p, nil
}

func (c *ProductCache) readCached(ctx context.Context, id string) *catalog.Product {
	raw, err := c.cb.Execute(func() (any, error) {
		return c.rdb.Get(ctx, productKey(id)).Bytes()
	})
	if err != nil {
		if err != redis.Nil && err != gobreaker.ErrOpenState {
			c.log.WithError(err).WithField("product", id).Debug("cache read failed")
		}
		return nil
	}

	var p catalog.Product
	if err := json.Unmarshal(raw.([]byte), &p); err != nil {
		c.log.WithError(err).WithField("product", id).Warn("corrupt cache entry")
		c.invalidate(ctx, id)
		return nil
	}
	return &p
}

func (c *ProductCache) writeCached(ctx context.Context, p *catalog.Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if _, err := c.cb.Execute(func() (any, error) {
		return nil, c.rdb.Set(ctx, productKey(p.ID), raw, productTTL).Err()
	}); err != nil && err != gobreaker.ErrOpenState {
		c.log.WithError(err).WithField("product", p.ID).Debug("cache write failed")
	}
}

func (c *ProductCache) invalidate(ctx context.Context, id string) {
	if _, err := c.cb.Execute(func() (any, error) {
		return nil, c.rdb.Del(ctx, productKey(id)).Err()
	}); err != nil && err != gobreaker.ErrOpenState {
		c.log.WithError(err).WithField("product", id).Warn("cache invalidation failed")
	}
}

// Listings always hit the database; only single-product lookups, the hot
// path for carts and product pages, are cached.
func (c *ProductCache) ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]*catalog.Product, error) {
	return c.next.ListProducts(ctx, filter)
}

func (c *ProductCache) InsertProduct(ctx context.Context, p *catalog.Product) error {
	return c.next.InsertProduct(ctx, p)
}

func (c *ProductCache) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	if err := c.next.UpdateProduct(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.ID)
	return nil
}

func (c *ProductCache) DeleteProduct(ctx context.Context, id string) error {
	if err := c.next.DeleteProduct(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// GetProductForUpdate always reads the locked row; a cached copy has no
// place inside a transaction.
func (c *ProductCache) GetProductForUpdate(ctx context.Context, tx *sql.Tx, productID string) (*catalog.Product, error) {
	return c.next.GetProductForUpdate(ctx, tx, productID)
}

// AdjustStock drops the cached product after the delta lands so reads do
// not serve the old stock balance for the rest of the TTL.
func (c *ProductCache) AdjustStock(ctx context.Context, tx *sql.Tx, productID string, delta int) error {
	if err := c.next.AdjustStock(ctx, tx, productID, delta); err != nil {
		return err
	}
	c.invalidate(ctx, productID)
	return nil
}

func (c *ProductCache) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	return c.next.GetCategory(ctx, id)
}

func (c *ProductCache) ListCategories(ctx context.Context, activeOnly bool) ([]*catalog.Category, error) {
	return c.next.ListCategories(ctx, activeOnly)
}

func (c *ProductCache) InsertCategory(ctx context.Context, cat *catalog.Category) error {
	return c.next.InsertCategory(ctx, cat)
}

func (c *ProductCache) UpdateCategory(ctx context.Context, cat *catalog.Category) error {
	return c.next.UpdateCategory(ctx, cat)
}

func (c *ProductCache) DeleteCategory(ctx context.Context, id string) error {
	return c.next.DeleteCategory(ctx, id)
}

// ConnectRedis opens the client and verifies the connection.
func ConnectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
