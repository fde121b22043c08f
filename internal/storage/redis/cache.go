// Package redis provides a read-through cache over the product repository.
// Listing detail pages are by far the hottest read path; caching them keeps
// catalog browsing off the primary store. Cache failures are never allowed
// to fail a request — the cache degrades to a passthrough.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/wheelhouse/internal/domain/product"
	"github.com/xenking/wheelhouse/internal/query"
)

const productKeyPrefix = "wheelhouse:product:"

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

var _ product.Repository = (*ProductCache)(nil)

// ProductCache decorates a product repository with a TTL cache on GetByID.
// Every mutation invalidates the listing's cache entry, so a stale quantity
// is bounded by the TTL only when the mutation happened on another instance
// whose invalidation raced this one's read.
type ProductCache struct {
	inner product.Repository
	rdb   *redis.Client
	ttl   time.Duration
}

// NewProductCache wraps inner with a Redis cache using the given TTL.
func NewProductCache(inner product.Repository, rdb *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{inner: inner, rdb: rdb, ttl: ttl}
}

// GetByID serves from cache when possible, falling back to the store and
// populating the cache on a miss.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	key := productKeyPrefix + id

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var p product.Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
		// Undecodable entry: drop it and fall through to the store.
		c.invalidate(ctx, id)
	}

	p, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			zctx.From(ctx).Debug("Product cache set failed", zap.String("id", id), zap.Error(err))
		}
	}
	return p, nil
}

// Create passes through; a brand-new listing has no cache entry yet.
func (c *ProductCache) Create(ctx context.Context, p *product.Product) error {
	return c.inner.Create(ctx, p)
}

// List passes through: predicate-shaped queries are not cacheable by key.
func (c *ProductCache) List(ctx context.Context, pipe query.Pipeline) ([]product.Product, query.Meta, error) {
	return c.inner.List(ctx, pipe)
}

// Update invalidates the listing's cache entry after the store update.
func (c *ProductCache) Update(ctx context.Context, id string, upd product.Update) (*product.Product, error) {
	p, err := c.inner.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, id)
	return p, nil
}

// Delete invalidates the listing's cache entry after the store delete.
func (c *ProductCache) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// ApplyReservation invalidates the listing's cache entry after the stock
// mutation so subsequent availability checks re-read live quantities.
func (c *ProductCache) ApplyReservation(ctx context.Context, r product.Reservation) error {
	if err := c.inner.ApplyReservation(ctx, r); err != nil {
		return err
	}
	c.invalidate(ctx, r.ProductID)
	return nil
}

// Count passes through.
func (c *ProductCache) Count(ctx context.Context) (int64, error) {
	return c.inner.Count(ctx)
}

// CountLowStock passes through.
func (c *ProductCache) CountLowStock(ctx context.Context, threshold int) (int64, error) {
	return c.inner.CountLowStock(ctx, threshold)
}

func (c *ProductCache) invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, productKeyPrefix+id).Err(); err != nil {
		zctx.From(ctx).Debug("Product cache invalidation failed", zap.String("id", id), zap.Error(err))
	}
}
