package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"
)

const defaultCapacity int = 1024

type memoryEntry struct {
	page     *data.Page
	written  int64
	sequence uint64
}

type memoryCache struct {
	sync.RWMutex
	sync.WaitGroup
	pages    map[string]*memoryEntry //map[key]page
	sequence uint64
	config   struct {
		pruneInterval time.Duration
		ttl           time.Duration
		capacity      int
	}
	ctx       context.Context
	ctxCancel context.CancelFunc
	utilities.Logger
}

func NewMemory(parameters ...any) interface {
	internal.Configurer
	internal.Opener
	internal.Clearer
	Cache
} {
	c := &memoryCache{
		pages:  make(map[string]*memoryEntry),
		Logger: utilities.NewLogger(),
	}
	for _, parameter := range parameters {
		switch p := parameter.(type) {
		case utilities.Logger:
			c.Logger = p
		}
	}
	return c
}

// evictOldest removes the entry written the longest time ago, it
// must be called with the lock held
func (c *memoryCache) evictOldest() {
	var oldestKey string
	var oldest uint64
	var found bool

	for key, entry := range c.pages {
		if !found || entry.sequence < oldest {
			oldestKey, oldest, found = key, entry.sequence, true
		}
	}
	if found {
		delete(c.pages, oldestKey)
	}
}

func (c *memoryCache) expired(entry *memoryEntry) bool {
	return c.config.ttl > 0 && time.Since(time.Unix(0, entry.written)) > c.config.ttl
}

func (c *memoryCache) launchPrune() {
	started := make(chan struct{})
	c.Add(1)
	go func() {
		defer c.Done()

		pruneFx := func() {
			c.Lock()
			defer c.Unlock()

			for key, entry := range c.pages {
				if c.expired(entry) {
					delete(c.pages, key)
				}
			}
		}
		tPrune := time.NewTicker(c.config.pruneInterval)
		defer tPrune.Stop()
		close(started)
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-tPrune.C:
				pruneFx()
			}
		}
	}()
	<-started
}

func (c *memoryCache) Configure(envs map[string]string) error {
	if s, ok := envs["CACHE_PRUNE_INTERVAL"]; ok {
		pruneInterval, _ := strconv.Atoi(s)
		c.config.pruneInterval = time.Second * time.Duration(pruneInterval)
	}
	if c.config.pruneInterval <= 0 {
		c.config.pruneInterval = 10 * time.Second
	}
	if s, ok := envs["CACHE_TTL"]; ok {
		ttl, _ := strconv.Atoi(s)
		c.config.ttl = time.Second * time.Duration(ttl)
	}
	c.config.capacity = defaultCapacity
	if s, ok := envs["CACHE_CAPACITY"]; ok {
		if capacity, err := strconv.Atoi(s); err == nil && capacity > 0 {
			c.config.capacity = capacity
		}
	}
	return nil
}

func (c *memoryCache) Open(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	c.pages = make(map[string]*memoryEntry)
	c.ctx, c.ctxCancel = context.WithCancel(context.Background())
	if c.config.ttl > 0 {
		c.launchPrune()
	}
	return nil
}

func (c *memoryCache) Close(ctx context.Context) error {
	if c.ctxCancel != nil {
		c.ctxCancel()
	}
	c.Wait()
	return nil
}

func (c *memoryCache) Clear(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	c.pages = make(map[string]*memoryEntry)
	c.Trace(ctx, "cleared page cache")
	return nil
}

func (c *memoryCache) PageRead(ctx context.Context, key string) (*data.Page, error) {
	c.RLock()
	defer c.RUnlock()

	entry, ok := c.pages[key]
	if !ok || c.expired(entry) {
		return nil, ErrPageNotCached
	}
	return entry.page.Copy(), nil
}

func (c *memoryCache) PageWrite(ctx context.Context, key string, page *data.Page) error {
	if page == nil {
		return ErrPageNil
	}
	c.Lock()
	defer c.Unlock()

	capacity := c.config.capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if _, found := c.pages[key]; !found {
		for len(c.pages) >= capacity {
			c.evictOldest()
		}
	}
	c.sequence++
	c.pages[key] = &memoryEntry{
		page:     page.Copy(),
		written:  time.Now().UnixNano(),
		sequence: c.sequence,
	}
	return nil
}

func (c *memoryCache) PagesDelete(ctx context.Context, keys ...string) error {
	c.Lock()
	defer c.Unlock()

	for _, key := range keys {
		delete(c.pages, key)
	}
	return nil
}
