//go:build cgo && randomx

package randomx

/*
#cgo CFLAGS: -I${SRCDIR}/include
#cgo LDFLAGS: -L${SRCDIR}/lib -lrandomx -lstdc++ -lm
#cgo linux LDFLAGS: -lpthread
#cgo darwin LDFLAGS: -lpthread

#include <stdlib.h>
#include <randomx.h>
*/
import "C"
import (
	"runtime"
	"sync"
	"unsafe"
)

// GetFlags returns the flags the library recommends for the current CPU.
func GetFlags() Flag {
	return Flag(C.randomx_get_flags())
}

// Cache owns a native RandomX cache and, in full mode, its dataset. It is
// immutable from the caller's point of view after NewCache/Reinit returns;
// VMs created from it hold a reference for as long as they exist.
type Cache struct {
	mode    Mode
	cfg     Config
	flags   Flag
	cache   *C.randomx_cache
	dataset *C.randomx_dataset
	key     []byte
	mu      sync.RWMutex
}

// NewCache allocates a cache in the given mode and initializes it with key.
func NewCache(mode Mode, key []byte, cfg Config) (*Cache, error) {
	c := &Cache{
		mode:  mode,
		cfg:   cfg,
		flags: cfg.flags(mode) | GetFlags(),
	}
	if err := c.Reinit(key); err != nil {
		return nil, err
	}
	return c, nil
}

// Reinit mutates the cache in place with a new key, preserving the
// allocation (and, for full mode, the dataset memory).
func (c *Cache) Reinit(key []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache == nil {
		c.cache = C.randomx_alloc_cache(C.randomx_flags(c.flags))
		if c.cache == nil {
			return ErrCacheAllocation
		}
	}

	keyPtr := (*C.char)(unsafe.Pointer(&key[0]))
	C.randomx_init_cache(c.cache, unsafe.Pointer(keyPtr), C.size_t(len(key)))

	c.key = append(c.key[:0], key...)

	if c.mode.HasDataset() {
		if c.dataset == nil {
			c.dataset = C.randomx_alloc_dataset(C.randomx_flags(c.flags))
			if c.dataset == nil {
				return ErrDatasetAllocation
			}
		}
		c.initDataset(runtime.NumCPU())
	}

	return nil
}

func (c *Cache) initDataset(numThreads int) {
	if numThreads <= 0 {
		numThreads = 1
	}
	itemCount := uint64(C.randomx_dataset_item_count())
	perThread := itemCount / uint64(numThreads)

	var wg sync.WaitGroup
	for i := 0; i < numThreads; i++ {
		start := uint64(i) * perThread
		count := perThread
		if i == numThreads-1 {
			count = itemCount - start
		}
		wg.Add(1)
		go func(start, count uint64) {
			defer wg.Done()
			C.randomx_init_dataset(c.dataset, c.cache, C.ulong(start), C.ulong(count))
		}(start, count)
	}
	wg.Wait()
}

// CreateVM creates a new VM bound to this cache. The cache's mode determines
// whether the VM runs against the dataset (full, fast) or the cache alone
// (light, slow).
func (c *Cache) CreateVM() (*VM, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cache == nil {
		return nil, ErrNotInitialized
	}

	var vm *C.randomx_vm
	if c.dataset != nil {
		vm = C.randomx_create_vm(C.randomx_flags(c.flags), c.cache, c.dataset)
	} else {
		vm = C.randomx_create_vm(C.randomx_flags(c.flags), c.cache, nil)
	}
	if vm == nil {
		return nil, ErrVMCreation
	}
	return &VM{vm: vm, cache: c}, nil
}

// Key returns a copy of the key this cache was last (re)initialized with.
func (c *Cache) Key() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]byte, len(c.key))
	copy(out, c.key)
	return out
}

// Mode returns the cache's capability mode.
func (c *Cache) Mode() Mode { return c.mode }

// Close releases all native resources held by the cache.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataset != nil {
		C.randomx_release_dataset(c.dataset)
		c.dataset = nil
	}
	if c.cache != nil {
		C.randomx_release_cache(c.cache)
		c.cache = nil
	}
	c.key = nil
}

// VM is a RandomX virtual machine bound to one Cache. It is NOT safe for
// concurrent use.
type VM struct {
	vm    *C.randomx_vm
	cache *Cache
}

// CalculateHash computes a single-shot RandomX hash of input.
func (v *VM) CalculateHash(input []byte) [HashSize]byte {
	var hash [HashSize]byte
	if len(input) == 0 {
		var zero byte
		C.randomx_calculate_hash(v.vm, unsafe.Pointer(&zero), 0, unsafe.Pointer(&hash[0]))
	} else {
		C.randomx_calculate_hash(v.vm, unsafe.Pointer(&input[0]), C.size_t(len(input)), unsafe.Pointer(&hash[0]))
	}
	return hash
}

// CalculateHashFirst begins the pipelined hashing sequence.
func (v *VM) CalculateHashFirst(input []byte) {
	if len(input) == 0 {
		var zero byte
		C.randomx_calculate_hash_first(v.vm, unsafe.Pointer(&zero), 0)
	} else {
		C.randomx_calculate_hash_first(v.vm, unsafe.Pointer(&input[0]), C.size_t(len(input)))
	}
}

// CalculateHashNext returns the hash of the previously submitted input while
// starting the hash for nextInput.
func (v *VM) CalculateHashNext(nextInput []byte) [HashSize]byte {
	var hash [HashSize]byte
	if len(nextInput) == 0 {
		var zero byte
		C.randomx_calculate_hash_next(v.vm, unsafe.Pointer(&zero), 0, unsafe.Pointer(&hash[0]))
	} else {
		C.randomx_calculate_hash_next(v.vm, unsafe.Pointer(&nextInput[0]), C.size_t(len(nextInput)), unsafe.Pointer(&hash[0]))
	}
	return hash
}

// CalculateHashLast flushes and returns the hash of the last submitted input.
func (v *VM) CalculateHashLast() [HashSize]byte {
	var hash [HashSize]byte
	C.randomx_calculate_hash_last(v.vm, unsafe.Pointer(&hash[0]))
	return hash
}

// Close releases the VM. It does not affect the cache it was bound to.
func (v *VM) Close() {
	if v.vm != nil {
		C.randomx_destroy_vm(v.vm)
		v.vm = nil
	}
}
