package keyhash

import (
	"testing"

	"github.com/kulupu-go/kulupu/primitives"
)

type fakeHeader struct {
	number uint64
	hash   primitives.H256
	parent primitives.H256
}

func (h fakeHeader) Hash() primitives.H256       { return h.hash }
func (h fakeHeader) Number() uint64              { return h.number }
func (h fakeHeader) ParentHash() primitives.H256 { return h.parent }

type fakeChain struct {
	byHash map[primitives.H256]fakeHeader
}

func newFakeChain(height uint64) (*fakeChain, []fakeHeader) {
	c := &fakeChain{byHash: make(map[primitives.H256]fakeHeader)}
	headers := make([]fakeHeader, height+1)
	var parent primitives.H256
	for n := uint64(0); n <= height; n++ {
		var hash primitives.H256
		hash[0] = byte(n)
		hash[1] = byte(n >> 8)
		h := fakeHeader{number: n, hash: hash, parent: parent}
		headers[n] = h
		c.byHash[hash] = h
		parent = hash
	}
	return c, headers
}

func (c *fakeChain) HeaderByHash(hash primitives.H256) (Header, error) {
	h, ok := c.byHash[hash]
	if !ok {
		return nil, nil
	}
	return h, nil
}

func TestResolveBeforeFirstEpoch(t *testing.T) {
	const period, offset = uint64(4096), uint64(128)
	chain, headers := newFakeChain(200)

	got, err := Resolve(chain, headers[200], period, offset)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != headers[0].Hash() {
		t.Fatalf("expected genesis as key hash pre-first-epoch, got %x", got)
	}
}

func TestResolveWithinEpochPastOffset(t *testing.T) {
	const period, offset = uint64(4096), uint64(128)
	chain, headers := newFakeChain(period + 500)

	got, err := Resolve(chain, headers[period+500], period, offset)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != headers[period].Hash() {
		t.Fatalf("expected boundary block as key hash, got %x", got)
	}
}

func TestResolveHysteresisPullsBackOneEpoch(t *testing.T) {
	const period, offset = uint64(4096), uint64(128)
	chain, headers := newFakeChain(period + 50)

	got, err := Resolve(chain, headers[period+50], period, offset)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != headers[0].Hash() {
		t.Fatalf("expected hysteresis to pull key hash back one full epoch, got %x", got)
	}
}

func TestResolveMonotonicWithinEpoch(t *testing.T) {
	const period, offset = uint64(4096), uint64(128)
	chain, headers := newFakeChain(period + 300)

	a, err := Resolve(chain, headers[period+200], period, offset)
	if err != nil {
		t.Fatalf("Resolve a: %v", err)
	}
	b, err := Resolve(chain, headers[period+201], period, offset)
	if err != nil {
		t.Fatalf("Resolve b: %v", err)
	}
	if a != b {
		t.Fatalf("expected same-epoch key hashes to match: %x != %x", a, b)
	}
}
