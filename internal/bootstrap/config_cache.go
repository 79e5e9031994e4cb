package bootstrap

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/portal/internal/allauth"
)

// ConfigFetcher reads the backend configuration.
type ConfigFetcher interface {
	GetConfig(ctx context.Context) (*allauth.Config, error)
}

// ConfigCache fetches the backend configuration once. Concurrent callers share
// one request; a failed fetch is not cached.
type ConfigCache struct {
	fetcher ConfigFetcher
	group   singleflight.Group

	mu  sync.RWMutex
	cfg *allauth.Config
}

// NewConfigCache wraps fetcher.
func NewConfigCache(fetcher ConfigFetcher) *ConfigCache {
	return &ConfigCache{fetcher: fetcher}
}

// Get returns the cached configuration, fetching it on first use. The result
// is shared and must not be modified.
func (c *ConfigCache) Get(ctx context.Context) (*allauth.Config, error) {
	if cfg := c.cached(); cfg != nil {
		return cfg, nil
	}
	ch := c.group.DoChan("config", func() (any, error) {
		if cfg := c.cached(); cfg != nil {
			return cfg, nil
		}
		cfg, err := c.fetcher.GetConfig(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cfg = cfg
		c.mu.Unlock()
		return cfg, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*allauth.Config), nil
	}
}

func (c *ConfigCache) cached() *allauth.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}
