package catalog

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
)

// LRU keeps recently used unit tables in process, in front of the Redis
// cache or the database. Errors are never cached.
type LRU struct {
	next  Source
	cache *lru.Cache
}

func NewLRU(next Source, size int) (*LRU, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRU{next: next, cache: c}, nil
}

func (l *LRU) Units(ctx context.Context, productID string) (Units, error) {
	if v, ok := l.cache.Get(productID); ok {
		return v.(Units), nil
	}
	us, err := l.next.Units(ctx, productID)
	if err != nil {
		return nil, err
	}
	l.cache.Add(productID, us)
	return us, nil
}

func (l *LRU) Invalidate(productID string) {
	l.cache.Remove(productID)
}
