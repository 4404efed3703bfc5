package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxSize is the default number of resident entries.
	DefaultMaxSize = 1000
	// DefaultSweepInterval is how often hard-expired entries are dropped.
	DefaultSweepInterval = 5 * time.Minute

	// expiryBuffer is the share of an entry's lifetime cut off its end, so a
	// URL is never handed out right before the provider stops honouring it.
	expiryBuffer = 0.1
)

type entry struct {
	path      string
	url       string
	createdAt time.Time
	expiresAt time.Time
}

// staleAt is the moment the entry stops being served.
func (e *entry) staleAt() time.Time {
	lifetime := e.expiresAt.Sub(e.createdAt)
	return e.expiresAt.Add(-time.Duration(float64(lifetime) * expiryBuffer))
}

// Options configures a SignedURLCache.
type Options struct {
	MaxSize       int
	SweepInterval time.Duration
	Now           func() time.Time
}

// SignedURLCache memoizes signed read URLs by object path.
// Eviction at capacity drops the oldest inserted entry.
type SignedURLCache struct {
	mu            sync.Mutex
	entries       map[string]*list.Element
	order         *list.List
	maxSize       int
	sweepInterval time.Duration
	now           func() time.Time
}

// NewSignedURLCache creates an empty cache. Call Start to run the sweep.
func NewSignedURLCache(opts Options) *SignedURLCache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SignedURLCache{
		entries:       make(map[string]*list.Element),
		order:         list.New(),
		maxSize:       opts.MaxSize,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
	}
}

// Get returns the cached URL for path if it is still inside its buffered
// validity window. Stale entries are evicted.
func (c *SignedURLCache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[path]
	if !ok {
		return "", false
	}

	e := el.Value.(*entry)
	if !c.now().Before(e.staleAt()) {
		c.removeElement(el)
		return "", false
	}

	return e.url, true
}

// Set stores url for path, valid for ttl from now.
func (c *SignedURLCache) Set(path, url string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if el, ok := c.entries[path]; ok {
		e := el.Value.(*entry)
		e.url = url
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		return
	}

	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	c.entries[path] = c.order.PushBack(&entry{
		path:      path,
		url:       url,
		createdAt: now,
		expiresAt: now.Add(ttl),
	})
}

// Delete removes the entry for path, if any.
func (c *SignedURLCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.removeElement(el)
	}
}

// Clear removes every entry.
func (c *SignedURLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of resident entries.
func (c *SignedURLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// EntryStats describes one resident entry. Durations are in milliseconds.
type EntryStats struct {
	Path           string `json:"path"`
	RemainingTTLMs int64  `json:"remaining_ttl_ms"`
	AgeMs          int64  `json:"age_ms"`
}

// Stats is a snapshot of the cache.
type Stats struct {
	Size     int          `json:"size"`
	Capacity int          `json:"capacity"`
	Entries  []EntryStats `json:"entries"`
}

// Stats returns the current size, capacity and per-entry timings,
// oldest inserted first.
func (c *SignedURLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := Stats{
		Size:     c.order.Len(),
		Capacity: c.maxSize,
		Entries:  make([]EntryStats, 0, c.order.Len()),
	}
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		stats.Entries = append(stats.Entries, EntryStats{
			Path:           e.path,
			RemainingTTLMs: e.expiresAt.Sub(now).Milliseconds(),
			AgeMs:          now.Sub(e.createdAt).Milliseconds(),
		})
	}
	return stats
}

// Sweep drops every entry whose nominal expiry has passed and returns how
// many were removed.
func (c *SignedURLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// Start runs the periodic sweep until ctx is cancelled.
func (c *SignedURLCache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Msg("Signed URL cache swept")
				}
			}
		}
	}()
}

// removeElement must be called with mu held.
func (c *SignedURLCache) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.path)
}
