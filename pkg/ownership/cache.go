package ownership

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheTTL is how long a user's title set is trusted.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheCapacity is the number of distinct users kept.
	DefaultCacheCapacity = 1024

	// fillTimeout bounds a shared load, which outlives the caller that
	// started it.
	fillTimeout = 10 * time.Second
)

// pendingFill marks a load in flight. A write for the same user while it runs
// makes its result stale.
type pendingFill struct {
	stale bool
}

type cacheEntry struct {
	user    string
	titles  []string
	expires time.Time
}

// Cache is a TTL and capacity bounded map from user id to owned titles.
// Fills for one user collapse into a single load. When full, the entry
// filled longest ago is evicted first.
type Cache struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	order   *list.List
	items   map[string]*list.Element
	pending map[string]*pendingFill

	group singleflight.Group
}

// NewCache creates a Cache. Non-positive arguments take the defaults.
func NewCache(ttl time.Duration, capacity int, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		pending:  make(map[string]*pendingFill),
	}
}

// Get returns a copy of the user's titles if a fresh entry exists. Expired
// entries are dropped.
func (c *Cache) Get(user string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[user]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if !c.now().Before(e.expires) {
		c.remove(el)
		return nil, false
	}
	return slices.Clone(e.titles), true
}

// Fill loads the user's titles through load and caches them. Concurrent
// fills for the same user share one load, which runs detached from any
// single caller's cancellation. A caller whose ctx ends stops waiting; the
// load still completes for the others. A load overlapped by Append or
// Invalidate for the same user is returned but not cached.
func (c *Cache) Fill(ctx context.Context, user string, load func(context.Context) ([]string, error)) ([]string, error) {
	ch := c.group.DoChan(user, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		fill := &pendingFill{}
		c.mu.Lock()
		c.pending[user] = fill
		c.mu.Unlock()

		titles, err := load(loadCtx)

		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.pending, user)
		if err != nil {
			return nil, err
		}
		if !fill.stale {
			c.set(user, titles)
		}
		return titles, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	}
}

// set stores titles for user. The caller holds mu.
func (c *Cache) set(user string, titles []string) {
	if el, ok := c.items[user]; ok {
		c.remove(el)
	}

	entry := &cacheEntry{
		user:    user,
		titles:  slices.Clone(titles),
		expires: c.now().Add(c.ttl),
	}
	c.items[user] = c.order.PushFront(entry)

	for c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
}

// markStale discards the result of an in-flight load for user. The caller
// holds mu.
func (c *Cache) markStale(user string) {
	if fill, ok := c.pending[user]; ok {
		fill.stale = true
	}
}

// Append adds title to the user's entry if it is still fresh. A missing or
// expired entry is left for the next fill.
func (c *Cache) Append(user, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.markStale(user)

	el, ok := c.items[user]
	if !ok {
		return
	}
	e := el.Value.(*cacheEntry)
	if !c.now().Before(e.expires) {
		c.remove(el)
		return
	}
	if !slices.Contains(e.titles, title) {
		e.titles = append(e.titles, title)
	}
}

// Invalidate drops the user's entry.
func (c *Cache) Invalidate(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.markStale(user)

	if el, ok := c.items[user]; ok {
		c.remove(el)
	}
}

// Len is the number of cached users, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*cacheEntry)
	delete(c.items, e.user)
	c.order.Remove(el)
}
