package sim

import "github.com/google/btree"

// DefaultCacheBytes is the byte budget of the controller's address cache.
const DefaultCacheBytes uint64 = 32 * 1024 * 1024

type cacheEntry struct {
	seq       uint64 // recency stamp; larger is more recent
	addr      uint64
	value     uint64
	timestamp uint64
}

func cacheEntryLess(a, b cacheEntry) bool { return a.seq < b.seq }

// AddressCache is a fixed-budget LRU of recently used physical addresses.
// A btree ordered by recency stamp gives the eviction victim in O(log n).
// A budget of zero bytes disables caching.
type AddressCache struct {
	capacity int
	entries  map[uint64]cacheEntry
	recency  *btree.BTreeG[cacheEntry]
	seq      uint64
}

// NewAddressCache creates a cache holding budget/64 cachelines.
func NewAddressCache(budget uint64) *AddressCache {
	return &AddressCache{
		capacity: int(budget / CachelineSize),
		entries:  make(map[uint64]cacheEntry),
		recency:  btree.NewG[cacheEntry](2, cacheEntryLess),
	}
}

// Capacity returns the number of addresses the cache can hold.
func (c *AddressCache) Capacity() int { return c.capacity }

// Len returns the number of cached addresses.
func (c *AddressCache) Len() int { return len(c.entries) }

// Get looks addr up and, on a hit, marks it most recently used at timestamp.
func (c *AddressCache) Get(addr, timestamp uint64) (uint64, bool) {
	e, ok := c.entries[addr]
	if !ok {
		return 0, false
	}
	c.recency.Delete(e)
	c.seq++
	e.seq = c.seq
	e.timestamp = timestamp
	c.recency.ReplaceOrInsert(e)
	c.entries[addr] = e
	return e.value, true
}

// Put caches addr, evicting the least recently used address when full.
func (c *AddressCache) Put(addr, value, timestamp uint64) {
	if c.capacity == 0 {
		return
	}
	if old, ok := c.entries[addr]; ok {
		c.recency.Delete(old)
	} else if len(c.entries) >= c.capacity {
		if victim, ok := c.recency.DeleteMin(); ok {
			delete(c.entries, victim.addr)
		}
	}
	c.seq++
	e := cacheEntry{seq: c.seq, addr: addr, value: value, timestamp: timestamp}
	c.recency.ReplaceOrInsert(e)
	c.entries[addr] = e
}

// Invalidate drops addr from the cache, reporting whether it was present.
func (c *AddressCache) Invalidate(addr uint64) bool {
	e, ok := c.entries[addr]
	if !ok {
		return false
	}
	c.recency.Delete(e)
	delete(c.entries, addr)
	return true
}
