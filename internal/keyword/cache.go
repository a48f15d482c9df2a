package keyword

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// Source provides the active keyword set.
type Source interface {
	ListActive(ctx context.Context) ([]domain.Keyword, error)
}

// Cache holds a compiled keyword set and reloads it from Source once it is
// older than the refresh interval. It is safe for concurrent use.
type Cache struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	set       *Set
	fetchedAt time.Time
}

// NewCache creates a cache that refreshes at most once per interval.
func NewCache(source Source, interval time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		source:   source,
		interval: interval,
		logger:   logger.With("component", "keyword_cache"),
		now:      time.Now,
	}
}

// Get returns the current keyword set, reloading it when stale. When a reload
// fails but an older set exists, the older set is returned and the failure is
// logged; with nothing cached the error is returned.
func (c *Cache) Get(ctx context.Context) (*Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.set != nil && c.now().Sub(c.fetchedAt) < c.interval {
		return c.set, nil
	}

	keywords, err := c.source.ListActive(ctx)
	if err != nil {
		if c.set != nil {
			c.logger.Warn("keyword refresh failed, using cached set",
				"error", err,
				"cached_count", c.set.Len(),
				"age", c.now().Sub(c.fetchedAt))
			return c.set, nil
		}
		return nil, fmt.Errorf("failed to load keywords: %w", err)
	}

	c.set = Compile(keywords)
	c.fetchedAt = c.now()
	c.logger.Debug("keyword set refreshed", "count", c.set.Len())
	return c.set, nil
}

// Invalidate forces the next Get to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
