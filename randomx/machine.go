package randomx

import "github.com/kulupu-go/kulupu/primitives"

// Machine is a goroutine-owned handle that replaces thread-local VM storage:
// Go has no thread-locals, so per SPEC_FULL §9 a goroutine that wants
// iterative hashing owns one Machine for the lifetime of its hashing loop
// instead of reaching into a global table keyed by thread id.
type Machine struct {
	lru     *CacheLRU
	entry   *cacheEntry
	keyHash primitives.H256
	vm      *VM
	bound   bool
}

// NewMachine returns a Machine that will acquire caches from lru.
func NewMachine(lru *CacheLRU) *Machine {
	return &Machine{lru: lru}
}

// VM returns the currently bound VM for keyHash, building a new one if
// necessary. Any VM bound to a different key is released before the new
// key's cache is acquired, so its slot can be reused for the new key.
func (m *Machine) VM(keyHash primitives.H256) (*VM, error) {
	if m.bound && m.keyHash == keyHash {
		return m.vm, nil
	}

	m.releaseCurrent()

	entry, err := m.lru.Acquire(keyHash)
	if err != nil {
		return nil, err
	}

	vm, err := entry.cache.CreateVM()
	if err != nil {
		m.lru.Release(entry)
		return nil, err
	}

	m.entry = entry
	m.keyHash = keyHash
	m.vm = vm
	m.bound = true
	return vm, nil
}

// Bound reports whether the machine currently holds a VM, and for which key.
func (m *Machine) Bound() (primitives.H256, bool) {
	return m.keyHash, m.bound
}

func (m *Machine) releaseCurrent() {
	if !m.bound {
		return
	}
	m.vm.Close()
	m.lru.Release(m.entry)
	m.vm = nil
	m.entry = nil
	m.bound = false
}

// Close releases the machine's currently bound VM and cache reference.
func (m *Machine) Close() {
	m.releaseCurrent()
}
