//go:build cgo && randomx

package consensus

import (
	"testing"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/keyhash"
	"github.com/kulupu-go/kulupu/primitives"
	"github.com/kulupu-go/kulupu/randomx"
	"github.com/kulupu-go/kulupu/signer"
)

type fakeHeader struct {
	hash       primitives.H256
	number     uint64
	parentHash primitives.H256
}

func (h fakeHeader) Hash() primitives.H256       { return h.hash }
func (h fakeHeader) Number() uint64              { return h.number }
func (h fakeHeader) ParentHash() primitives.H256 { return h.parentHash }

type fakeBackend struct {
	byHash map[primitives.H256]keyhash.Header
}

func (b fakeBackend) HeaderByHash(hash primitives.H256) (keyhash.Header, error) {
	return b.byHash[hash], nil
}

type versionedRuntime struct {
	tag        Tag
	difficulty primitives.Difficulty
}

func (r versionedRuntime) Difficulty(primitives.H256) (primitives.Difficulty, error) {
	return r.difficulty, nil
}

func (r versionedRuntime) AlgorithmTag(primitives.H256) (Tag, error) {
	return r.tag, nil
}

func newTestAlgorithm(t *testing.T, tag Tag) (*Algorithm, fakeHeader) {
	t.Helper()
	rx := randomx.NewEngine(randomx.Config{})
	t.Cleanup(rx.Close)
	engine := compute.NewEngine(rx)

	var genesis primitives.H256
	genesis[0] = 0xaa
	parent := fakeHeader{hash: genesis, number: 0, parentHash: primitives.H256{}}
	backend := fakeBackend{byHash: map[primitives.H256]keyhash.Header{genesis: parent}}

	runtime := versionedRuntime{tag: tag, difficulty: primitives.NewDifficultyFromUint64(1)}
	return NewAlgorithm(backend, runtime, engine), parent
}

func TestVerifyV1RoundTrip(t *testing.T) {
	algo, parent := newTestAlgorithm(t, TagV1)

	keyHash, err := keyhash.Resolve(fakeBackend{byHash: map[primitives.H256]keyhash.Header{parent.hash: parent}}, parent, primitives.Period, primitives.Offset)
	if err != nil {
		t.Fatalf("keyhash.Resolve: %v", err)
	}

	preHash := primitives.H256{1}
	difficulty := primitives.NewDifficultyFromUint64(1)

	c := compute.ComputeV1{KeyHash: keyHash, PreHash: preHash, Difficulty: difficulty}
	m := algo.engine.NewMachines()
	seal, _, err := c.SealAndWork(m, compute.ModeSync)
	if err != nil {
		t.Fatalf("SealAndWork: %v", err)
	}
	sealBytes := compute.EncodeSealV1(seal)

	ok, err := algo.Verify(parent, preHash, nil, sealBytes, difficulty)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected a freshly computed V1 seal to verify")
	}

	truncated := sealBytes[:len(sealBytes)-1]
	ok, err = algo.Verify(parent, preHash, nil, truncated, difficulty)
	if err != nil {
		t.Fatalf("Verify (truncated): %v", err)
	}
	if ok {
		t.Fatalf("expected a truncated V1 seal to fail decoding and verification")
	}
}

func TestVerifyV2RoundTrip(t *testing.T) {
	algo, parent := newTestAlgorithm(t, TagV2)

	keyHash, err := keyhash.Resolve(fakeBackend{byHash: map[primitives.H256]keyhash.Header{parent.hash: parent}}, parent, primitives.Period, primitives.Offset)
	if err != nil {
		t.Fatalf("keyhash.Resolve: %v", err)
	}

	author, err := signer.GenerateSecp256k1Signer()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Signer: %v", err)
	}

	preHash := primitives.H256{2}
	difficulty := primitives.NewDifficultyFromUint64(1)

	c := compute.ComputeV2{KeyHash: keyHash, PreHash: preHash, Difficulty: difficulty}
	sig, err := c.Sign(author)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	m := algo.engine.NewMachines()
	seal, _, err := c.SealAndWork(m, compute.ModeSync, sig)
	if err != nil {
		t.Fatalf("SealAndWork: %v", err)
	}
	sealBytes := compute.EncodeSealV2(seal)

	digest := []primitives.DigestItem{{ID: primitives.PowEngineID, Payload: author.PublicKey()}}

	ok, err := algo.Verify(parent, preHash, digest, sealBytes, difficulty)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected a freshly signed V2 seal to verify")
	}

	other, err := signer.GenerateSecp256k1Signer()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Signer (other): %v", err)
	}
	wrongDigest := []primitives.DigestItem{{ID: primitives.PowEngineID, Payload: other.PublicKey()}}
	ok, err = algo.Verify(parent, preHash, wrongDigest, sealBytes, difficulty)
	if err != nil {
		t.Fatalf("Verify (wrong author): %v", err)
	}
	if ok {
		t.Fatalf("expected a seal signed by a different author to fail verification")
	}
}

func TestVerifyRejectsUnknownAlgorithmTag(t *testing.T) {
	algo, parent := newTestAlgorithm(t, Tag{'b', 'o', 'g', 'u', 's', '!', '!', '!'})

	_, err := algo.Verify(parent, primitives.H256{}, nil, nil, primitives.NewDifficultyFromUint64(1))
	if err != ErrUnknownAlgorithmTag {
		t.Fatalf("expected ErrUnknownAlgorithmTag, got %v", err)
	}
}
