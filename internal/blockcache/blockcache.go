// Package blockcache contains the cache interfaces and implementations used
// by the content-blocking subsystem, most notably the match-result caches of
// compiled rule sets and the read-through cache of the durable rule-list
// store.
package blockcache

import (
	"time"
)

// Interface is the cache interface.  Implementations must be safe for
// concurrent use.
type Interface[K, T any] interface {
	// Set sets key and val as a cache pair.
	Set(key K, val T)

	// SetWithExpire sets key and val as a cache pair with an expiration time.
	SetWithExpire(key K, val T, expiration time.Duration)

	// Get gets val from the cache using key.
	Get(key K) (val T, ok bool)

	// Clearer completely clears the cache.
	Clearer

	// Len returns the number of items in the cache.
	Len() (n int)
}

// Clearer is a partial cache interface.
type Clearer interface {
	// Clear completely clears the cache.
	Clear()
}

// Empty is an [Interface] implementation that does nothing.
type Empty[K, T any] struct{}

// type check
var _ Interface[any, any] = Empty[any, any]{}

// Set implements the [Interface] interface for Empty.
func (c Empty[K, T]) Set(_ K, _ T) {}

// SetWithExpire implements the [Interface] interface for Empty.
func (c Empty[K, T]) SetWithExpire(_ K, _ T, _ time.Duration) {}

// Get implements the [Interface] interface for Empty.  ok is always false.
func (c Empty[K, T]) Get(_ K) (val T, ok bool) {
	return val, false
}

// type check
var _ Clearer = Empty[any, any]{}

// Clear implements the [Interface] interface for Empty.
func (c Empty[K, T]) Clear() {}

// Len implements the [Interface] interface for Empty.  n is always zero.
func (c Empty[K, T]) Len() (n int) {
	return 0
}
