package cache

import (
	"context"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/antonio-alexander/go-stash"
)

// stasher is the subset of a go-stash implementation (memory.New()
// or redis.New()) the page cache needs
type stasher interface {
	stash.Configurer
	stash.Parameterizer
	stash.Initializer
	stash.Shutdowner
	stash.Stasher
}

type stashCache struct {
	stash stasher
	utilities.Logger
}

// NewStash caches pages in the go-stash implementation provided as
// one of the parameters, without one nothing is cached
func NewStash(parameters ...any) interface {
	internal.Configurer
	internal.Opener
	internal.Clearer
	Cache
} {
	c := &stashCache{
		Logger: utilities.NewLogger(),
	}
	for _, parameter := range parameters {
		switch p := parameter.(type) {
		case stasher:
			c.stash = p
		case utilities.Logger:
			c.Logger = p
		}
	}
	if c.stash != nil {
		c.stash.SetParameters(parameters...)
	}
	return c
}

func (c *stashCache) Configure(envs map[string]string) error {
	if c.stash == nil {
		return nil
	}
	return c.stash.Configure(envs)
}

func (c *stashCache) Open(ctx context.Context) error {
	if c.stash == nil {
		c.Error(ctx, "stash cache opened without a stash, pages won't be cached")
		return nil
	}
	return c.stash.Initialize()
}

func (c *stashCache) Close(ctx context.Context) error {
	if c.stash == nil {
		return nil
	}
	return c.stash.Shutdown()
}

func (c *stashCache) Clear(ctx context.Context) error {
	if c.stash == nil {
		return nil
	}
	if err := c.stash.Clear(); err != nil {
		return err
	}
	c.Trace(ctx, "cleared page cache")
	return nil
}

func (c *stashCache) PageRead(ctx context.Context, key string) (*data.Page, error) {
	if c.stash == nil {
		return nil, ErrPageNotCached
	}
	page := &data.Page{}
	if err := c.stash.Read(key, page); err != nil {
		c.Trace(ctx, "cache miss for page: %s (%s)", key, err)
		return nil, ErrPageNotCached
	}
	c.Trace(ctx, "cache hit for page: %s", key)
	return page, nil
}

func (c *stashCache) PageWrite(ctx context.Context, key string, page *data.Page) error {
	if page == nil {
		return ErrPageNil
	}
	if c.stash == nil {
		return nil
	}
	if _, err := c.stash.Write(key, page); err != nil {
		c.Error(ctx, "error while writing page (%s): %s", key, err)
		return err
	}
	c.Trace(ctx, "cached page: %s", key)
	return nil
}

func (c *stashCache) PagesDelete(ctx context.Context, keys ...string) error {
	if c.stash == nil {
		return nil
	}
	for _, key := range keys {
		if err := c.stash.Delete(key); err != nil {
			c.Error(ctx, "error while deleting page (%s): %s", key, err)
			continue
		}
		c.Trace(ctx, "evicted cached page: %s", key)
	}
	return nil
}
