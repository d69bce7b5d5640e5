package abicache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/greymass/abicached/libraries/chain"
)

type Key struct {
	Account chain.Name
	Version uint32
}

// Cache maps (account, abi_sequence) to a decoded ABI. A nil ABI stored under
// a key is the absent marker: the version is known but has no usable
// definition.
//
// With MaxEntries == 0 the cache is an unbounded map under an RWMutex and
// readers never block each other. A positive MaxEntries switches to an LRU,
// whose lookups update recency and therefore serialise.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*ABI
	lru     *lru.Cache
}

func NewCache(maxEntries int) (*Cache, error) {
	c := &Cache{}
	if maxEntries > 0 {
		l, err := lru.New(maxEntries)
		if err != nil {
			return nil, err
		}
		c.lru = l
		return c, nil
	}
	c.entries = make(map[Key]*ABI)
	return c, nil
}

// Insert stores abi under (account, version), replacing any previous value.
// The zero account is ignored.
func (c *Cache) Insert(account chain.Name, version uint32, abi *ABI) {
	if !account.Valid() {
		return
	}
	key := Key{account, version}
	if c.lru != nil {
		c.lru.Add(key, abi)
		return
	}
	c.mu.Lock()
	c.entries[key] = abi
	c.mu.Unlock()
}

// Find reports whether an entry exists; the returned ABI is nil for the absent
// marker.
func (c *Cache) Find(account chain.Name, version uint32) (*ABI, bool) {
	key := Key{account, version}
	if c.lru != nil {
		v, ok := c.lru.Get(key)
		if !ok {
			return nil, false
		}
		return v.(*ABI), true
	}
	c.mu.RLock()
	abi, ok := c.entries[key]
	c.mu.RUnlock()
	return abi, ok
}

func (c *Cache) Len() int {
	if c.lru != nil {
		return c.lru.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
