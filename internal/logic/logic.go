package logic

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/cache"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/pages"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"
)

var ErrRendererNotSet = errors.New("renderer not set")

type Logic interface {
	// Page returns the page rendered from the template name with v,
	// key identifies the rendered output within the cache
	Page(ctx context.Context, name, key string, v any) (*data.Page, error)
}

type logic struct {
	sync.RWMutex
	renderer pages.Renderer
	notifier internal.Notifier
	cache    interface {
		cache.Cache
		internal.Clearer
	}
	config struct {
		cacheEnabled bool
	}
	generation atomic.Uint64
	metrics    utilities.Metrics
	utilities.Logger
	utilities.Counter
}

func NewLogic(parameters ...any) interface {
	internal.Configurer
	internal.Opener
	Logic
} {
	l := &logic{
		Logger:  utilities.NewLogger(),
		Counter: utilities.NewCounter(),
	}
	for _, parameter := range parameters {
		switch p := parameter.(type) {
		case pages.Renderer:
			l.renderer = p
			if notifier, ok := p.(internal.Notifier); ok {
				l.notifier = notifier
			}
		case interface {
			cache.Cache
			internal.Clearer
		}:
			l.cache = p
		case utilities.Logger:
			l.Logger = p
		case utilities.Counter:
			l.Counter = p
		case utilities.Metrics:
			l.metrics = p
		}
	}
	return l
}

func (l *logic) cacheEnabled() bool {
	l.RLock()
	defer l.RUnlock()

	return l.config.cacheEnabled
}

func (l *logic) hit(name string) {
	l.IncrementHit(name)
	if l.metrics != nil {
		l.metrics.IncrementCache(utilities.CacheResultHit)
	}
}

func (l *logic) miss(name string) {
	l.IncrementMiss(name)
	if l.metrics != nil {
		l.metrics.IncrementCache(utilities.CacheResultMiss)
	}
}

func (l *logic) Configure(envs map[string]string) error {
	l.Lock()
	defer l.Unlock()

	if cacheEnabled, ok := envs["LOGIC_CACHE_ENABLED"]; ok {
		l.config.cacheEnabled, _ = strconv.ParseBool(cacheEnabled)
	}
	return nil
}

func (l *logic) Open(ctx context.Context) error {
	l.Lock()
	defer l.Unlock()

	if l.renderer == nil {
		return ErrRendererNotSet
	}
	if l.config.cacheEnabled && l.cache == nil {
		l.Error(ctx, "cache enabled, but no cache provided; disabling cache")
		l.config.cacheEnabled = false
	}
	if !l.config.cacheEnabled {
		return nil
	}
	l.Info(ctx, "page cache enabled")
	if l.notifier != nil {
		//rendered pages are stale once the templates change
		l.notifier.OnReload(func(ctx context.Context) {
			//KIM: renders started before this point mustn't be written
			// back once the cache has been cleared
			l.Lock()
			defer l.Unlock()
			l.generation.Add(1)
			if err := l.cache.Clear(ctx); err != nil {
				l.Error(ctx, "error while clearing page cache after reload: %s", err)
				return
			}
			l.Debug(ctx, "page cache cleared after template reload")
		})
	}
	return nil
}

func (l *logic) Close(ctx context.Context) error {
	return nil
}

// Page counts hits and misses by template name rather than key so the
// counters stay bounded no matter how many employee ids are requested
func (l *logic) Page(ctx context.Context, name, key string, v any) (*data.Page, error) {
	cacheEnabled := l.cacheEnabled()
	if cacheEnabled {
		page, err := l.cache.PageRead(ctx, key)
		if err == nil {
			l.hit(name)
			l.Trace(ctx, "cache hit for page: %s", key)
			return page, nil
		}
		if !errors.Is(err, cache.ErrPageNotCached) {
			l.Error(ctx, "error while reading page (%s) from cache: %s", key, err)
		}
		l.miss(name)
		l.Trace(ctx, "cache miss for page: %s", key)
	}
	generation := l.generation.Load()
	page, err := l.renderer.Render(ctx, name, v)
	if err != nil {
		return nil, err
	}
	if !cacheEnabled {
		return page, nil
	}
	l.RLock()
	defer l.RUnlock()
	if generation != l.generation.Load() {
		l.Debug(ctx, "templates reloaded while rendering page (%s), not caching it", key)
		return page, nil
	}
	if err := l.cache.PageWrite(ctx, key, page); err != nil {
		l.Error(ctx, "error while writing page (%s) to cache: %s", key, err)
	}
	return page, nil
}
