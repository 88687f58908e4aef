// Package productcache keeps the process-local view of the catalog. It is a
// write-through cache over the product repository, with one extra rule: the
// arbiter's authoritative snapshots always overwrite the cached entry by id,
// never the other way around.
package productcache

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/kvelder/shopcore/internal/product"
)

var _ product.Repository = (*Cache)(nil)

// Cache fronts a product.Repository with an in-memory view.
type Cache struct {
	repo product.Repository

	mu    sync.RWMutex
	byID  map[string]*product.Product
	order []string
}

// New creates an empty Cache over the given repository.
func New(repo product.Repository) *Cache {
	return &Cache{
		repo: repo,
		byID: make(map[string]*product.Product),
	}
}

// Warm seeds the cache from the repository's full catalog listing.
func (c *Cache) Warm(ctx context.Context) error {
	products, err := c.repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "warm product cache")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]*product.Product, len(products))
	c.order = make([]string, 0, len(products))
	for i := range products {
		c.put(products[i].Clone())
	}
	return nil
}

// put inserts or overwrites an entry. Caller holds c.mu.
func (c *Cache) put(p *product.Product) {
	if _, known := c.byID[p.ID]; !known {
		c.order = append(c.order, p.ID)
	}
	c.byID[p.ID] = p
}

// PutAll overwrites cached entries with authoritative snapshots by id.
func (c *Cache) PutAll(snapshots []product.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range snapshots {
		c.put(snapshots[i].Clone())
	}
}

// List returns the cached catalog in warm order. A cold cache warms itself.
func (c *Cache) List(ctx context.Context) ([]product.Product, error) {
	c.mu.RLock()
	empty := len(c.byID) == 0
	c.mu.RUnlock()
	if empty {
		if err := c.Warm(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]product.Product, 0, len(c.order))
	for _, id := range c.order {
		if p, ok := c.byID[id]; ok {
			out = append(out, *p.Clone())
		}
	}
	return out, nil
}

// GetByID returns the cached product, reading through to the repository on a
// miss.
func (c *Cache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	c.mu.RLock()
	p, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return p.Clone(), nil
	}

	fetched, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.put(fetched.Clone())
	c.mu.Unlock()
	return fetched, nil
}

// GetByIDs returns every requested product that exists, in request order.
func (c *Cache) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		p, err := c.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// Save writes through to the repository, then updates the cached entry.
func (c *Cache) Save(ctx context.Context, p *product.Product) error {
	if err := c.repo.Save(ctx, p); err != nil {
		return err
	}
	c.mu.Lock()
	c.put(p.Clone())
	c.mu.Unlock()
	return nil
}

// Delete removes the product from the repository and evicts it.
func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
	for i, known := range c.order {
		if known == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}
