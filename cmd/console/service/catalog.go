package service

import (
	"context"

	"github.com/opsconsole/console/common/cache"
	"github.com/opsconsole/console/common/engine"
)

const allTemplatesKey = "templates:*"

// Catalog reads template snapshots through a short-lived cache. Writers
// call Invalidate after commit; commits themselves never trust the cache.
type Catalog struct {
	store Store
	cache cache.Cache[[]engine.ProcessTemplate]
}

// NewCatalog creates a catalog. A nil cache disables caching.
func NewCatalog(store Store, c cache.Cache[[]engine.ProcessTemplate]) *Catalog {
	if c == nil {
		c = cache.Noop[[]engine.ProcessTemplate]{}
	}
	return &Catalog{store: store, cache: c}
}

// All returns every stored version of every process
func (c *Catalog) All(ctx context.Context) ([]engine.ProcessTemplate, error) {
	if all, ok := c.cache.Get(ctx, allTemplatesKey); ok {
		return all, nil
	}
	all, err := c.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, allTemplatesKey, all)
	return all, nil
}

// Versions returns every stored version of one process
func (c *Catalog) Versions(ctx context.Context, processID string) ([]engine.ProcessTemplate, error) {
	key := "templates:" + processID
	if versions, ok := c.cache.Get(ctx, key); ok {
		return versions, nil
	}
	versions, err := c.store.TemplateVersions(ctx, processID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, versions)
	return versions, nil
}

// Fresh bypasses the cache
func (c *Catalog) Fresh(ctx context.Context, processID string) ([]engine.ProcessTemplate, error) {
	return c.store.TemplateVersions(ctx, processID)
}

// Invalidate drops cached snapshots touching processID
func (c *Catalog) Invalidate(ctx context.Context, processID string) {
	c.cache.Delete(ctx, "templates:"+processID)
	c.cache.Delete(ctx, allTemplatesKey)
}
