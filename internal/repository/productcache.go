package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zelenka/internal/domain"
)

// CachedProducts cache-aside декоратор над ProductRepository. Кэш на чтение
// по id; любая запись (включая операции с запасом) инвалидирует ключ.
// Ошибки кэша не фатальны: чтение уходит во внутренний репозиторий.
type CachedProducts struct {
	inner ProductRepository
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedProducts(inner ProductRepository, rdb *redis.Client, ttl time.Duration) *CachedProducts {
	return &CachedProducts{inner: inner, rdb: rdb, ttl: ttl}
}

var _ ProductRepository = (*CachedProducts)(nil)

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func (c *CachedProducts) invalidate(ctx context.Context, id int64) {
	c.rdb.Del(ctx, productKey(id))
	// a read between this delete and the surrounding transaction's commit
	// can re-cache pre-commit state; delete again once the commit is visible
	OnCommit(ctx, func() {
		c.rdb.Del(context.Background(), productKey(id))
	})
}

func (c *CachedProducts) Create(ctx context.Context, p *domain.Product) error {
	return c.inner.Create(ctx, p)
}

func (c *CachedProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if raw, err := c.rdb.Get(ctx, productKey(id)).Result(); err == nil {
		var p domain.Product
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return &p, nil
		}
		// corrupt entry, drop it
		c.invalidate(ctx, id)
	}
	p, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(p); err == nil {
		c.rdb.Set(ctx, productKey(id), payload, c.ttl)
	}
	return p, nil
}

func (c *CachedProducts) Update(ctx context.Context, p *domain.Product) error {
	if err := c.inner.Update(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.ID)
	return nil
}

func (c *CachedProducts) Delete(ctx context.Context, id int64) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *CachedProducts) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	// listings always hit the source of truth
	return c.inner.List(ctx, f)
}

func (c *CachedProducts) ReserveStock(ctx context.Context, id, qty int64) (int64, error) {
	available, err := c.inner.ReserveStock(ctx, id, qty)
	if err == nil {
		c.invalidate(ctx, id)
	}
	return available, err
}

func (c *CachedProducts) ReleaseStock(ctx context.Context, id, qty int64) error {
	if err := c.inner.ReleaseStock(ctx, id, qty); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}
