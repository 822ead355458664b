package cache

import (
	"context"
	"errors"

	"github.com/antonio-alexander/go-blog-pages/internal/data"
)

var (
	ErrPageNotCached = errors.New("page not cached")
	ErrPageNil       = errors.New("page is nil")
)

// Cache stores rendered pages; everything in it can be re-rendered
// so implementations are free to drop entries at any time
type Cache interface {
	PageRead(ctx context.Context, key string) (*data.Page, error)
	PageWrite(ctx context.Context, key string, page *data.Page) error
	PagesDelete(ctx context.Context, keys ...string) error
}
