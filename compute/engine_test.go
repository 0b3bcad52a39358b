//go:build cgo && randomx

package compute

import (
	"testing"

	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/randomx"
)

func newTestEngine(t *testing.T) *Machines {
	t.Helper()
	rx := randomx.NewEngine(randomx.Config{})
	t.Cleanup(rx.Close)
	return NewEngine(rx).NewMachines()
}

func TestV1DistinctNoncesDistinctWork(t *testing.T) {
	m := newTestEngine(t)

	c := ComputeV1{
		KeyHash:    testKeyHash(),
		Difficulty: primitives.MinDifficulty,
	}
	_, work1, err := c.SealAndWork(m, ModeSync)
	if err != nil {
		t.Fatalf("SealAndWork 1: %v", err)
	}

	c.Nonce[31] = 1
	_, work2, err := c.SealAndWork(m, ModeSync)
	if err != nil {
		t.Fatalf("SealAndWork 2: %v", err)
	}

	if work1 == work2 {
		t.Fatalf("expected distinct nonces to produce distinct work hashes")
	}
}

func TestV2DistinctNoncesDistinctWork(t *testing.T) {
	m := newTestEngine(t)

	c := ComputeV2{
		KeyHash:    testKeyHash(),
		Difficulty: primitives.MinDifficulty,
	}
	var signer fakeSigner
	sig, _ := c.Sign(signer)

	_, work1, err := c.SealAndWork(m, ModeSync, sig)
	if err != nil {
		t.Fatalf("SealAndWork 1: %v", err)
	}

	c.Nonce[31] = 1
	sig2, _ := c.Sign(signer)
	_, work2, err := c.SealAndWork(m, ModeSync, sig2)
	if err != nil {
		t.Fatalf("SealAndWork 2: %v", err)
	}

	if work1 == work2 {
		t.Fatalf("expected distinct nonces to produce distinct work hashes")
	}
}

func TestLoopRawStopsOnMatch(t *testing.T) {
	m := newTestEngine(t)

	keyHash := testKeyHash()
	rounds := 8
	target := 5

	genPreImage := func(round int) []byte {
		return []byte{byte(round)}
	}
	seen := 0
	validate := func(round int, input []byte, hash primitives.H256) Loop[int] {
		seen++
		if round == target {
			return Break(round)
		}
		return Continue[int]()
	}

	result, ok, err := LoopRaw(m, ModeSync, keyHash, rounds, genPreImage, validate)
	if err != nil {
		t.Fatalf("LoopRaw: %v", err)
	}
	if !ok {
		t.Fatalf("expected LoopRaw to find a match")
	}
	if result != target {
		t.Fatalf("got result %d, want %d", result, target)
	}
	if seen > rounds {
		t.Fatalf("validate called more than rounds times: %d > %d", seen, rounds)
	}
}

func TestLoopRawExhaustsWithoutMatch(t *testing.T) {
	m := newTestEngine(t)

	keyHash := testKeyHash()
	genPreImage := func(round int) []byte { return []byte{byte(round)} }
	validate := func(round int, input []byte, hash primitives.H256) Loop[int] {
		return Continue[int]()
	}

	_, ok, err := LoopRaw(m, ModeSync, keyHash, 4, genPreImage, validate)
	if err != nil {
		t.Fatalf("LoopRaw: %v", err)
	}
	if ok {
		t.Fatalf("expected no match when validate never breaks")
	}
}
