package rulestore

import (
	"context"
	"time"

	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
)

// CachedConfig is the configuration structure of a caching store wrapper.
type CachedConfig struct {
	// Store is the underlying durable store.  It must not be nil.
	Store Interface

	// Cache is the cache of loaded rule lists keyed by identifier.  It must
	// not be nil.
	Cache blockcache.Interface[string, *RuleList]

	// TTL is how long a loaded rule list stays cached.  Zero means no
	// expiration.
	TTL time.Duration
}

// Cached is an [Interface] implementation that caches loaded rule lists in
// front of another store, so that repeated lookups of the same identifier,
// which the filter-list lifecycle performs on every update, do not hit the
// durable medium every time.  With a TTL set, a blob replaced in a shared
// durable store by another instance is picked up once the entry expires.
type Cached struct {
	store Interface
	cache blockcache.Interface[string, *RuleList]
	ttl   time.Duration
}

// NewCached returns a new caching store wrapper.  c must not be nil.
func NewCached(c *CachedConfig) (s *Cached) {
	return &Cached{
		store: c.Store,
		cache: c.Cache,
		ttl:   c.TTL,
	}
}

// type check
var _ Interface = (*Cached)(nil)

// IDs implements the [Interface] interface for *Cached.
func (s *Cached) IDs(ctx context.Context) (ids []string, err error) {
	return s.store.IDs(ctx)
}

// Get implements the [Interface] interface for *Cached.
func (s *Cached) Get(ctx context.Context, id string) (rl *RuleList, ok bool, err error) {
	rl, ok = s.cache.Get(id)
	if ok {
		return rl, true, nil
	}

	rl, ok, err = s.store.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}

	s.set(id, rl)

	return rl, true, nil
}

// Compile implements the [Interface] interface for *Cached.
func (s *Cached) Compile(ctx context.Context, id string, text string) (rl *RuleList, err error) {
	rl, err = s.store.Compile(ctx, id, text)
	if err == nil && rl != nil {
		s.set(id, rl)
	}

	return rl, err
}

// Remove implements the [Interface] interface for *Cached.  The underlying
// cache has no per-key removal, so the whole cache is cleared.
func (s *Cached) Remove(ctx context.Context, id string) (err error) {
	s.cache.Clear()

	return s.store.Remove(ctx, id)
}

// set puts rl into the cache, with the configured expiration if there is one.
func (s *Cached) set(id string, rl *RuleList) {
	if s.ttl > 0 {
		s.cache.SetWithExpire(id, rl, s.ttl)
	} else {
		s.cache.Set(id, rl)
	}
}
