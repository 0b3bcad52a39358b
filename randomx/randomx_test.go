//go:build cgo && randomx

package randomx

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/kulupu-go/kulupu/primitives"
)

// Bit-exact RandomX vectors (spec scenarios 1-3): light/full agreement and
// cache reinit must reproduce these hashes exactly given a real library.
var coldPathVectors = []struct {
	name string
	key  string
	in   string
	want string
}{
	{
		name: "cold path",
		key:  "RandomX example key",
		in:   "RandomX example input",
		want: "45a7a9aa42684d0f490de906e35c8ff45f9904fbdfa94e7eecd8ae9301d5df3b",
	},
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex vector: %v", err)
	}
	return b
}

func TestLightModeColdPathHash(t *testing.T) {
	for _, v := range coldPathVectors {
		cache, err := NewCache(LightMode, []byte(v.key), Config{})
		if err != nil {
			t.Fatalf("%s: NewCache: %v", v.name, err)
		}
		defer cache.Close()

		vm, err := cache.CreateVM()
		if err != nil {
			t.Fatalf("%s: CreateVM: %v", v.name, err)
		}
		defer vm.Close()

		got := vm.CalculateHash([]byte(v.in))
		want := mustHex(t, v.want)
		if !bytes.Equal(got[:], want) {
			t.Errorf("%s: hash mismatch: got %x, want %x", v.name, got, want)
		}
	}
}

func TestFullLightAgreement(t *testing.T) {
	key := []byte("RandomX example key")
	input := []byte("RandomX example input")

	light, err := NewCache(LightMode, key, Config{})
	if err != nil {
		t.Fatalf("light NewCache: %v", err)
	}
	defer light.Close()
	lvm, err := light.CreateVM()
	if err != nil {
		t.Fatalf("light CreateVM: %v", err)
	}
	defer lvm.Close()

	full, err := NewCache(FullMode, key, Config{})
	if err != nil {
		t.Fatalf("full NewCache: %v", err)
	}
	defer full.Close()
	fvm, err := full.CreateVM()
	if err != nil {
		t.Fatalf("full CreateVM: %v", err)
	}
	defer fvm.Close()

	lhash := lvm.CalculateHash(input)
	fhash := fvm.CalculateHash(input)
	if lhash != fhash {
		t.Errorf("full/light disagreement: light=%x full=%x", lhash, fhash)
	}
}

func TestCacheReinit(t *testing.T) {
	cache, err := NewCache(LightMode, []byte("RandomX example key"), Config{})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Reinit([]byte("RandomX example key 2")); err != nil {
		t.Fatalf("Reinit: %v", err)
	}

	vm, err := cache.CreateVM()
	if err != nil {
		t.Fatalf("CreateVM: %v", err)
	}
	defer vm.Close()

	got := vm.CalculateHash([]byte("RandomX example input"))
	want := mustHex(t, "d0f82db1dbc7145cfc5492bd3cd7c288f153e62762669e6bb6eda8c990113544")
	if !bytes.Equal(got[:], want) {
		t.Errorf("reinit hash mismatch: got %x, want %x", got, want)
	}
}

func TestCalculateHashIterative(t *testing.T) {
	cache, err := NewCache(LightMode, []byte("test key 000"), Config{})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()

	vm, err := cache.CreateVM()
	if err != nil {
		t.Fatalf("CreateVM: %v", err)
	}
	defer vm.Close()

	inputs := [][]byte{
		[]byte("round one"),
		[]byte("round two"),
		[]byte("round three"),
	}

	// Single-shot reference hashes.
	var want [3][HashSize]byte
	for i, in := range inputs {
		want[i] = vm.CalculateHash(in)
	}

	// Iterative path must reproduce the same hashes.
	vm.CalculateHashFirst(inputs[0])
	got0 := vm.CalculateHashNext(inputs[1])
	got1 := vm.CalculateHashNext(inputs[2])
	got2 := vm.CalculateHashLast()

	if got0 != want[0] || got1 != want[1] || got2 != want[2] {
		t.Errorf("iterative hashing diverged from single-shot: got=[%x %x %x] want=[%x %x %x]",
			got0, got1, got2, want[0], want[1], want[2])
	}
}

func TestCacheLRUEviction(t *testing.T) {
	lru := NewCacheLRU(LightMode, Config{}, 2)
	defer lru.Close()

	var keys [3]primitives.H256
	for i := range keys {
		keys[i] = primitives.H256{byte(i + 1)}
	}

	e0, err := lru.Acquire(keys[0])
	if err != nil {
		t.Fatalf("acquire 0: %v", err)
	}
	e1, err := lru.Acquire(keys[1])
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}

	// Both slots are held (refs never released): a third acquire must fail.
	if _, err := lru.Acquire(keys[2]); err != ErrCacheNotAvailable {
		t.Fatalf("expected ErrCacheNotAvailable, got %v", err)
	}

	lru.Release(e0)
	e2, err := lru.Acquire(keys[2])
	if err != nil {
		t.Fatalf("acquire 2 after release: %v", err)
	}
	if e2 == e1 {
		t.Fatalf("expected eviction to reuse the released slot, not the live one")
	}
}

func TestMachineRebindsOnKeyChange(t *testing.T) {
	lru := NewCacheLRU(LightMode, Config{}, 1)
	defer lru.Close()

	m := NewMachine(lru)
	defer m.Close()

	var k1, k2 primitives.H256
	k1[0] = 1
	k2[0] = 2

	if _, err := m.VM(k1); err != nil {
		t.Fatalf("VM(k1): %v", err)
	}
	if got, bound := m.Bound(); !bound || got != k1 {
		t.Fatalf("expected bound to k1, got %x bound=%v", got, bound)
	}

	if _, err := m.VM(k2); err != nil {
		t.Fatalf("VM(k2): %v", err)
	}
	if got, bound := m.Bound(); !bound || got != k2 {
		t.Fatalf("expected rebind to k2, got %x bound=%v", got, bound)
	}
}

func BenchmarkCalculateHash(b *testing.B) {
	cache, err := NewCache(LightMode, []byte("bench key"), Config{})
	if err != nil {
		b.Fatalf("NewCache: %v", err)
	}
	defer cache.Close()
	vm, err := cache.CreateVM()
	if err != nil {
		b.Fatalf("CreateVM: %v", err)
	}
	defer vm.Close()

	input := []byte("benchmark input")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vm.CalculateHash(input)
	}
}
