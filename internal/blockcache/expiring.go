package blockcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/viktordanov/golang-lru/simplelru"
)

// ExpiringConfig is the configuration structure of an expiring cache.
type ExpiringConfig struct {
	// Clock is used to get the current time for expiration checks.  It must
	// not be nil.
	Clock timeutil.Clock

	// Count is the maximum number of elements to keep in the cache.  It must
	// be positive.
	Count int
}

// entry is an entry of an expiring cache.
type entry[T any] struct {
	// val is the value of the entry.
	val T

	// expiration is the expiration unix time in nanoseconds.  Zero means no
	// expiration.
	expiration int64
}

// Expiring is a thread-safe, fixed-size LRU [Interface] implementation with
// per-entry expiration.
type Expiring[K comparable, T any] struct {
	// mu protects cache.
	mu *sync.Mutex

	cache *simplelru.LRU[K, entry[T]]
	clock timeutil.Clock
}

// NewExpiring returns a new initialized expiring cache.  c must not be nil.
func NewExpiring[K comparable, T any](c *ExpiringConfig) (cache *Expiring[K, T], err error) {
	lru, err := simplelru.NewLRU[K, entry[T]](c.Count, nil)
	if err != nil {
		return nil, fmt.Errorf("blockcache: creating lru: %w", err)
	}

	return &Expiring[K, T]{
		mu:    &sync.Mutex{},
		cache: lru,
		clock: c.Clock,
	}, nil
}

// type check
var _ Interface[string, any] = (*Expiring[string, any])(nil)

// Set implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) Set(key K, val T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, entry[T]{
		val: val,
	})
}

// SetWithExpire implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) SetWithExpire(key K, val T, expiration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, entry[T]{
		val:        val,
		expiration: c.clock.Now().Add(expiration).UnixNano(),
	})
}

// Get implements the [Interface] interface for *Expiring.  An expired key is
// removed from the cache and reported as absent.
func (c *Expiring[K, T]) Get(key K) (val T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if !ok {
		return val, false
	}

	if e.expiration > 0 && c.clock.Now().UnixNano() > e.expiration {
		c.cache.Remove(key)

		return val, false
	}

	return e.val, true
}

// type check
var _ Clearer = (*Expiring[string, any])(nil)

// Clear implements the [Interface] interface for *Expiring.
func (c *Expiring[K, T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
}

// Len implements the [Interface] interface for *Expiring.  n may include
// items that have expired but have not yet been evicted.
func (c *Expiring[K, T]) Len() (n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}
