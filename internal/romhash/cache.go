package romhash

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds how many distinct no_pre_mine seeds' Roms stay
// resident at once. A single Rom is ~1 GiB; a handful of in-flight
// challenge seeds is the realistic working set for one miner run.
const defaultCacheSize = 8

// Cache builds one Rom per distinct no_pre_mine seed and hands out the same
// *Rom to every caller that asks for that seed again while it is cached,
// which is what lets multiple challenges sharing a seed observe identical
// backing buffers by identity (spec.md §8 scenario 5). At most
// defaultCacheSize seeds are kept; a seed evicted as least recently used is
// built again, as a new *Rom, the next time it is asked for.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *Rom]
	build func(noPreMine string) *Rom
}

// NewCache constructs a Cache that builds Roms with NewRom.
func NewCache() *Cache {
	return NewCacheWithBuilder(NewRom)
}

// NewCacheWithBuilder is NewCache with an injectable builder, used by tests
// to avoid constructing full-size Roms.
func NewCacheWithBuilder(build func(noPreMine string) *Rom) *Cache {
	c, err := lru.New[string, *Rom](defaultCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which defaultCacheSize never is.
		panic(err)
	}
	return &Cache{lru: c, build: build}
}

// GetOrBuild returns the cached Rom for noPreMine, building it (and
// evicting the least-recently-used entry if the cache is full) on first
// use. Building happens while holding the cache lock: spec.md §4.1 drives
// ROM construction from a single coordinator goroutine per miner session,
// so there is no concurrent-build race to deduplicate.
func (c *Cache) GetOrBuild(noPreMine string) *Rom {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.lru.Get(noPreMine); ok {
		return r
	}
	r := c.build(noPreMine)
	c.lru.Add(noPreMine, r)
	return r
}
