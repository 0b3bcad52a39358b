package randomx

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/kulupu-go/kulupu/primitives"
)

// cacheEntry pairs a Cache with the count of VMs currently bound to it. A
// cache is only a candidate for eviction when refs is zero: the LRU
// container gives oldest-first ordering, this layer adds the
// refcount-conditional skip no generic LRU library expresses on its own.
type cacheEntry struct {
	cache *Cache
	refs  int32
}

// CacheLRU is a process-wide LRU of Caches keyed by key hash, bounded to a
// fixed capacity (2 for full mode, 3 for light mode per SPEC_FULL §4.3).
// Eviction only removes an entry with no live VM references; if every slot
// is held by a live VM, Acquire fails with ErrCacheNotAvailable and callers
// are expected to back off and retry.
type CacheLRU struct {
	mu       sync.Mutex
	lru      *simplelru.LRU
	mode     Mode
	cfg      Config
	capacity int
}

// NewCacheLRU builds an LRU of the given capacity for caches of mode.
func NewCacheLRU(mode Mode, cfg Config, capacity int) *CacheLRU {
	l, _ := simplelru.NewLRU(capacity, nil)
	return &CacheLRU{lru: l, mode: mode, cfg: cfg, capacity: capacity}
}

// Acquire returns the cache entry for keyHash, creating or evict-and-reiniting
// one if necessary, and increments its refcount. Callers must call Release
// exactly once when done (typically when the VM built from it is closed or
// replaced).
func (l *CacheLRU) Acquire(keyHash primitives.H256) (*cacheEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.lru.Get(keyHash); ok {
		entry := v.(*cacheEntry)
		atomic.AddInt32(&entry.refs, 1)
		return entry, nil
	}

	if l.lru.Len() < l.capacity {
		cache, err := NewCache(l.mode, keyHash[:], l.cfg)
		if err != nil {
			return nil, err
		}
		entry := &cacheEntry{cache: cache, refs: 1}
		l.lru.Add(keyHash, entry)
		return entry, nil
	}

	// Full: scan oldest-to-newest for an entry with no live VM references.
	for _, k := range l.lru.Keys() {
		v, ok := l.lru.Peek(k)
		if !ok {
			continue
		}
		entry := v.(*cacheEntry)
		if atomic.LoadInt32(&entry.refs) != 0 {
			continue
		}
		l.lru.Remove(k)
		if err := entry.cache.Reinit(keyHash[:]); err != nil {
			return nil, err
		}
		atomic.StoreInt32(&entry.refs, 1)
		l.lru.Add(keyHash, entry)
		return entry, nil
	}

	return nil, ErrCacheNotAvailable
}

// Release decrements the entry's live-VM refcount.
func (l *CacheLRU) Release(entry *cacheEntry) {
	atomic.AddInt32(&entry.refs, -1)
}

// Len reports how many cache slots are currently populated.
func (l *CacheLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

// Close releases every cache held by the LRU. Intended for process shutdown.
func (l *CacheLRU) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range l.lru.Keys() {
		if v, ok := l.lru.Peek(k); ok {
			v.(*cacheEntry).cache.Close()
		}
	}
	l.lru.Purge()
}

// Engine owns the process-wide full and light cache LRUs, sized per
// SPEC_FULL §4.3 (2 full, 3 light).
type Engine struct {
	Full  *CacheLRU
	Light *CacheLRU
}

// NewEngine constructs an Engine with the standard capacities.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		Full:  NewCacheLRU(FullMode, cfg, 2),
		Light: NewCacheLRU(LightMode, cfg, 3),
	}
}

// Close releases every cache the engine owns.
func (e *Engine) Close() {
	e.Full.Close()
	e.Light.Close()
}
