package blockcache_test

import (
	"testing"

	"github.com/Libertus-Lab/shieldcore/internal/blockcache"
	"github.com/stretchr/testify/assert"
)

func TestDefaultManager(t *testing.T) {
	const cacheID = "rulelists/test"

	m := blockcache.NewDefaultManager()

	cache := blockcache.NewLRU[string, int](&blockcache.LRUConfig{
		Count: 10,
	})
	cache.Set(testKey, testVal)

	m.Add(cacheID, cache)

	assert.Equal(t, []string{cacheID}, m.IDs())

	m.ClearByID(cacheID)

	assert.Equal(t, 0, cache.Len())

	// Clearing an unknown id is a no-op.
	m.ClearByID("unknown")
}
